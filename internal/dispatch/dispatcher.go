package dispatch

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/coachpo/tradefeed/internal/observability"
	"github.com/coachpo/tradefeed/internal/schema"
)

// Handler consumes a decoded envelope. Handlers must not retain the envelope's
// slices beyond the call.
type Handler func(schema.Envelope)

// Dispatcher decodes inbound frames and delivers envelopes to every current
// subscriber. Decoding failures are logged and dropped; they never propagate
// to the transport. Heartbeat acknowledgements are consumed here and never
// reach subscribers.
type Dispatcher struct {
	clock      func() time.Time
	maxWorkers int

	mu          sync.RWMutex
	subscribers map[uuid.UUID]Handler
}

// NewDispatcher creates a dispatcher with the given fan-out concurrency
// limit. A non-positive limit defaults to GOMAXPROCS.
func NewDispatcher(maxWorkers int) *Dispatcher {
	if maxWorkers <= 0 {
		maxWorkers = runtime.GOMAXPROCS(0)
	}
	return &Dispatcher{
		clock:       time.Now,
		maxWorkers:  maxWorkers,
		subscribers: make(map[uuid.UUID]Handler),
	}
}

// WithClock overrides the arrival timestamp source, primarily for testing.
func (d *Dispatcher) WithClock(clock func() time.Time) *Dispatcher {
	if clock != nil {
		d.clock = clock
	}
	return d
}

// Subscribe registers a handler and returns its unsubscribe handle.
func (d *Dispatcher) Subscribe(handler Handler) func() {
	if handler == nil {
		return func() {}
	}
	id := uuid.New()
	d.mu.Lock()
	d.subscribers[id] = handler
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		delete(d.subscribers, id)
		d.mu.Unlock()
	}
}

// OnFrame decodes the raw frame and fans the envelope out. It never returns
// an error: a malformed frame must not terminate the channel.
func (d *Dispatcher) OnFrame(raw []byte) {
	envelope, err := Decode(raw, d.clock().UTC())
	if err != nil {
		observability.Telemetry().IncCounter("tradefeed.frames.malformed", 1, nil)
		observability.Log().Error("drop malformed frame",
			observability.Field{Key: "error", Value: err.Error()},
			observability.Field{Key: "bytes", Value: len(raw)},
		)
		return
	}

	observability.Telemetry().IncCounter("tradefeed.frames.received", 1,
		map[string]string{"kind": string(envelope.Kind)})

	if envelope.Kind == schema.KindPong {
		return
	}

	d.dispatch(envelope)
}

func (d *Dispatcher) dispatch(envelope schema.Envelope) {
	d.mu.RLock()
	subscribers := make([]Handler, 0, len(d.subscribers))
	for _, handler := range d.subscribers {
		subscribers = append(subscribers, handler)
	}
	d.mu.RUnlock()

	switch len(subscribers) {
	case 0:
		return
	case 1:
		d.deliver(subscribers[0], envelope)
		return
	}

	workerLimit := d.maxWorkers
	if workerLimit > len(subscribers) {
		workerLimit = len(subscribers)
	}
	p := pool.New().WithMaxGoroutines(workerLimit)
	for _, subscriber := range subscribers {
		handler := subscriber
		p.Go(func() {
			d.deliver(handler, envelope)
		})
	}
	p.Wait()
}

func (d *Dispatcher) deliver(handler Handler, envelope schema.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			_ = observability.AggregateErrors("dispatch fan-out",
				[]error{fmt.Errorf("subscriber panic: %v", r)},
				observability.Field{Key: "kind", Value: string(envelope.Kind)},
			)
		}
	}()
	handler(envelope)
}
