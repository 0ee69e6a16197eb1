// Package transport owns the streaming connection lifecycle: dialing,
// keepalive, failure detection, and exponential-backoff reconnection. It has
// no knowledge of message content.
package transport

import "time"

// State describes the supervisor's position in the connection lifecycle.
// Transitions happen only inside the supervisor; they are the only place that
// creates or destroys the underlying channel handle.
type State int

const (
	// StateIdle means no channel exists and none is being established.
	StateIdle State = iota
	// StateConnecting means a dial attempt is in flight.
	StateConnecting
	// StateOpen means the channel is established and frames are flowing.
	StateOpen
	// StateClosing means the channel is being torn down.
	StateClosing
	// StateBackoff means a reconnect is scheduled for a future instant.
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// Status identifies a lifecycle notification delivered to status subscribers.
type Status int

const (
	// StatusConnecting signals a dial attempt has started.
	StatusConnecting Status = iota
	// StatusOpen signals the channel opened; the attempt counter was reset.
	StatusOpen
	// StatusReconnecting signals a reconnect was scheduled after a failure.
	StatusReconnecting
	// StatusDisconnected signals an explicit disconnect.
	StatusDisconnected
	// StatusGaveUp signals the attempt ceiling was reached; no further
	// automatic retries will happen.
	StatusGaveUp
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusReconnecting:
		return "reconnecting"
	case StatusDisconnected:
		return "disconnected"
	case StatusGaveUp:
		return "gave_up"
	default:
		return "unknown"
	}
}

// StatusEvent carries a lifecycle notification.
type StatusEvent struct {
	Status      Status
	Attempt     int
	NextRetryAt time.Time
}
