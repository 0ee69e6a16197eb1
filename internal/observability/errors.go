package observability

import (
	"errors"
	"fmt"
)

// AggregateErrors collapses the non-nil errors from one operation into a
// single joined error and logs it once. Returns nil when every error is nil.
func AggregateErrors(operation string, errs []error, fields ...Field) error {
	joined := errors.Join(errs...)
	if joined == nil {
		return nil
	}
	count := 0
	for _, err := range errs {
		if err != nil {
			count++
		}
	}
	Log().Error(operation+" failed",
		append(fields,
			Field{Key: "error_count", Value: count},
			Field{Key: "error", Value: joined.Error()},
		)...)
	return fmt.Errorf("%s: %w", operation, joined)
}
