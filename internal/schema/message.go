// Package schema defines the canonical data model shared by the streaming
// transport, the reconciliation stores, and the derived-state compute layer.
package schema

import "time"

// Kind identifies the type of an inbound streaming message.
type Kind string

const (
	// KindPrices carries a batch of price ticks.
	KindPrices Kind = "prices"
	// KindPosition carries a live position update.
	KindPosition Kind = "position"
	// KindPositionClosed notifies that a position has been closed server-side.
	KindPositionClosed Kind = "position_close"
	// KindPong acknowledges a client heartbeat ping.
	KindPong Kind = "pong"
	// KindPing is the outbound heartbeat sent on the keepalive interval.
	KindPing Kind = "ping"
)

// Envelope is a decoded inbound message. Exactly one payload field is set,
// matching Kind. Envelopes are transient: constructed per decoded frame,
// consumed by the dispatcher, then discarded.
type Envelope struct {
	Kind       Kind
	ReceivedAt time.Time

	Prices   []PriceTick
	Position *LivePosition
	Close    *PositionClose
}
