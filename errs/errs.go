// Package errs provides structured error types and helpers for the tradefeed runtime.
package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Code identifies a failure category within the data layer.
type Code string

const (
	// CodeNetwork indicates a transport-level failure (dial, read, write).
	CodeNetwork Code = "network"
	// CodeDecode indicates an inbound frame or response body that could not be decoded.
	CodeDecode Code = "decode"
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
	// CodeAuth indicates authentication or authorization errors.
	CodeAuth Code = "auth"
	// CodeNotFound indicates a missing resource.
	CodeNotFound Code = "not_found"
	// CodeUnavailable indicates the upstream service is temporarily unavailable.
	CodeUnavailable Code = "unavailable"
)

// E captures structured error information produced across the tradefeed stack.
type E struct {
	Scope   string
	Code    Code
	HTTP    int
	Message string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the given scope and error code.
func New(scope string, code Code, opts ...Option) *E {
	e := &E{
		Scope:   strings.TrimSpace(scope),
		Code:    code,
		HTTP:    0,
		Message: "",
		cause:   nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithHTTP records the associated HTTP status code.
func WithHTTP(status int) Option {
	return func(e *E) {
		e.HTTP = status
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	scope := strings.TrimSpace(e.Scope)
	if scope == "" {
		scope = "unknown"
	}
	parts = append(parts, "scope="+scope)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.HTTP > 0 {
		parts = append(parts, "http="+strconv.Itoa(e.HTTP))
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// CodeOf extracts the failure category from err, or an empty Code when err
// does not carry an envelope.
func CodeOf(err error) Code {
	var envelope *E
	if errors.As(err, &envelope) {
		return envelope.Code
	}
	return ""
}

// IsCode reports whether err carries an envelope with the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
