package transport

import "context"

// Channel is the duplex message channel the supervisor manages. The platform
// websocket implements it in production; tests inject fakes.
type Channel interface {
	// Read blocks until the next text payload arrives or the channel fails.
	Read(ctx context.Context) ([]byte, error)
	// Write sends a text payload.
	Write(ctx context.Context, data []byte) error
	// Close tears the channel down. Safe to call after a failed Read.
	Close() error
}

// Dialer establishes channels. The supervisor holds at most one open channel
// from its dialer at any time.
type Dialer interface {
	Dial(ctx context.Context, url string) (Channel, error)
}
