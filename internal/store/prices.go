// Package store holds the in-memory reconciliation stores for streamed
// market and account state. Stores follow a single-writer discipline: all
// mutation goes through the session goroutine, reads return copies.
package store

import (
	"sync"

	"github.com/google/uuid"

	"github.com/coachpo/tradefeed/internal/observability"
	"github.com/coachpo/tradefeed/internal/schema"
)

// PriceListener is invoked once per applied batch with the ticks that changed.
type PriceListener func(batch []schema.PriceTick)

// PriceStore maps instrument symbols to their latest tick, last-write-wins.
type PriceStore struct {
	mu        sync.RWMutex
	ticks     map[string]schema.PriceTick
	listeners map[uuid.UUID]PriceListener
}

// NewPriceStore creates an empty price store.
func NewPriceStore() *PriceStore {
	return &PriceStore{
		ticks:     make(map[string]schema.PriceTick),
		listeners: make(map[uuid.UUID]PriceListener),
	}
}

// ApplyBatch merges the ticks into the store atomically and notifies
// listeners once for the whole batch. Within the batch a later tick for the
// same symbol wins. Empty batches are ignored.
func (s *PriceStore) ApplyBatch(batch []schema.PriceTick) {
	if len(batch) == 0 {
		return
	}

	s.mu.Lock()
	for _, tick := range batch {
		if tick.Symbol == "" {
			continue
		}
		s.ticks[tick.Symbol] = tick
	}
	listeners := s.listenerSnapshotLocked()
	s.mu.Unlock()

	observability.Telemetry().IncCounter("tradefeed.price.batches", 1, nil)
	applied := make([]schema.PriceTick, len(batch))
	copy(applied, batch)
	for _, listener := range listeners {
		listener(applied)
	}
}

// Get returns the latest tick for the symbol.
func (s *PriceStore) Get(symbol string) (schema.PriceTick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tick, ok := s.ticks[symbol]
	return tick, ok
}

// All returns a copy of every stored tick keyed by symbol.
func (s *PriceStore) All() map[string]schema.PriceTick {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]schema.PriceTick, len(s.ticks))
	for symbol, tick := range s.ticks {
		out[symbol] = tick
	}
	return out
}

// Subscribe registers a batch listener and returns its unsubscribe handle.
func (s *PriceStore) Subscribe(listener PriceListener) func() {
	if listener == nil {
		return func() {}
	}
	id := uuid.New()
	s.mu.Lock()
	s.listeners[id] = listener
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Clear wipes all stored ticks. Used only at session teardown; listeners are
// kept so a following session reuses them.
func (s *PriceStore) Clear() {
	s.mu.Lock()
	s.ticks = make(map[string]schema.PriceTick)
	s.mu.Unlock()
}

// Len returns the number of instruments currently tracked.
func (s *PriceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ticks)
}

func (s *PriceStore) listenerSnapshotLocked() []PriceListener {
	if len(s.listeners) == 0 {
		return nil
	}
	out := make([]PriceListener, 0, len(s.listeners))
	for _, listener := range s.listeners {
		out = append(out, listener)
	}
	return out
}
