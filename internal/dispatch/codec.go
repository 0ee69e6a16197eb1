// Package dispatch decodes inbound frames and fans the resulting envelopes
// out to registered subscribers.
package dispatch

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/coachpo/tradefeed/errs"
	"github.com/coachpo/tradefeed/internal/schema"
)

type wireMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// Decode parses a raw frame into an envelope stamped with receivedAt.
func Decode(raw []byte, receivedAt time.Time) (schema.Envelope, error) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return schema.Envelope{}, errs.New("dispatch", errs.CodeDecode,
			errs.WithMessage("unmarshal frame"), errs.WithCause(err))
	}

	envelope := schema.Envelope{Kind: schema.Kind(msg.Type), ReceivedAt: receivedAt}

	switch envelope.Kind {
	case schema.KindPrices:
		var ticks []schema.PriceTick
		if err := json.Unmarshal(msg.Data, &ticks); err != nil {
			return schema.Envelope{}, errs.New("dispatch", errs.CodeDecode,
				errs.WithMessage("unmarshal price batch"), errs.WithCause(err))
		}
		envelope.Prices = ticks
	case schema.KindPosition:
		var position schema.LivePosition
		if err := json.Unmarshal(msg.Data, &position); err != nil {
			return schema.Envelope{}, errs.New("dispatch", errs.CodeDecode,
				errs.WithMessage("unmarshal position update"), errs.WithCause(err))
		}
		envelope.Position = &position
	case schema.KindPositionClosed:
		var closed schema.PositionClose
		if err := json.Unmarshal(msg.Data, &closed); err != nil {
			return schema.Envelope{}, errs.New("dispatch", errs.CodeDecode,
				errs.WithMessage("unmarshal position close"), errs.WithCause(err))
		}
		envelope.Close = &closed
	case schema.KindPong:
		// no payload
	default:
		return schema.Envelope{}, errs.New("dispatch", errs.CodeDecode,
			errs.WithMessage("unknown message type "+msg.Type))
	}

	return envelope, nil
}
