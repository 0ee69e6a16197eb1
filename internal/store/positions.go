package store

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/coachpo/tradefeed/internal/observability"
	"github.com/coachpo/tradefeed/internal/schema"
)

// PositionListener is invoked after any change to the live position set.
type PositionListener func()

// PositionStore maps position IDs to their latest streamed state. Entries are
// replaced wholesale on upsert and removed only on explicit close
// notifications; there is no per-entry expiry.
type PositionStore struct {
	mu        sync.RWMutex
	positions map[int64]schema.LivePosition
	listeners map[uuid.UUID]PositionListener
}

// NewPositionStore creates an empty position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		positions: make(map[int64]schema.LivePosition),
		listeners: make(map[uuid.UUID]PositionListener),
	}
}

// Upsert stores the position, replacing any previous entry with the same ID.
func (s *PositionStore) Upsert(position schema.LivePosition) {
	s.mu.Lock()
	s.positions[position.ID] = position
	count := len(s.positions)
	listeners := s.listenerSnapshotLocked()
	s.mu.Unlock()

	observability.Telemetry().SetGauge("tradefeed.positions.open", float64(count), nil)
	notify(listeners)
}

// Remove deletes the position with the given ID. Removing an absent ID is a
// no-op and listeners are not notified.
func (s *PositionStore) Remove(id int64) {
	s.mu.Lock()
	_, existed := s.positions[id]
	if existed {
		delete(s.positions, id)
	}
	count := len(s.positions)
	listeners := s.listenerSnapshotLocked()
	s.mu.Unlock()

	if !existed {
		return
	}
	observability.Telemetry().SetGauge("tradefeed.positions.open", float64(count), nil)
	notify(listeners)
}

// Clear wipes every position. Used only at session teardown.
func (s *PositionStore) Clear() {
	s.mu.Lock()
	changed := len(s.positions) > 0
	s.positions = make(map[int64]schema.LivePosition)
	listeners := s.listenerSnapshotLocked()
	s.mu.Unlock()

	if !changed {
		return
	}
	observability.Telemetry().SetGauge("tradefeed.positions.open", 0, nil)
	notify(listeners)
}

// Get returns the position with the given ID.
func (s *PositionStore) Get(id int64) (schema.LivePosition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	position, ok := s.positions[id]
	return position, ok
}

// All returns every live position ordered by ID.
func (s *PositionStore) All() []schema.LivePosition {
	s.mu.RLock()
	out := make([]schema.LivePosition, 0, len(s.positions))
	for _, position := range s.positions {
		out = append(out, position)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of live positions.
func (s *PositionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions)
}

// Subscribe registers a change listener and returns its unsubscribe handle.
func (s *PositionStore) Subscribe(listener PositionListener) func() {
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

func (s *PositionStore) listenerSnapshotLocked() []PositionListener {
	if len(s.listeners) == 0 {
		return nil
	}
	out := make([]PositionListener, 0, len(s.listeners))
	for _, listener := range s.listeners {
		out = append(out, listener)
	}
	return out
}

func notify(listeners []PositionListener) {
	for _, listener := range listeners {
		listener()
	}
}
