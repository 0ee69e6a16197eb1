package store

import (
	"sort"
	"sync"
	"time"

	"github.com/coachpo/tradefeed/internal/observability"
	"github.com/coachpo/tradefeed/internal/schema"
)

// Coalescer accumulates the latest tick per instrument and flushes them to a
// sink at a fixed cadence, bounding the downstream update rate when ticks
// arrive faster than the UI needs them. The wrapped store stays correct under
// either direct or coalesced application.
type Coalescer struct {
	sink     func([]schema.PriceTick)
	interval time.Duration

	mu      sync.Mutex
	pending map[string]schema.PriceTick

	shutdown chan struct{}
	done     chan struct{}
	once     sync.Once
}

// NewCoalescer starts a coalescing stage flushing into sink every interval.
func NewCoalescer(sink func([]schema.PriceTick), interval time.Duration) *Coalescer {
	if interval <= 0 {
		interval = time.Second
	}
	c := &Coalescer{
		sink:     sink,
		interval: interval,
		pending:  make(map[string]schema.PriceTick),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.run()
	return c
}

// Offer records the ticks, keeping only the newest per symbol until the next
// flush.
func (c *Coalescer) Offer(batch []schema.PriceTick) {
	if len(batch) == 0 {
		return
	}
	c.mu.Lock()
	for _, tick := range batch {
		if tick.Symbol == "" {
			continue
		}
		if _, exists := c.pending[tick.Symbol]; exists {
			observability.Telemetry().IncCounter("tradefeed.price.coalesced", 1, nil)
		}
		c.pending[tick.Symbol] = tick
	}
	c.mu.Unlock()
}

// Flush drains the pending ticks into the sink immediately.
func (c *Coalescer) Flush() {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return
	}
	batch := make([]schema.PriceTick, 0, len(c.pending))
	for _, tick := range c.pending {
		batch = append(batch, tick)
	}
	c.pending = make(map[string]schema.PriceTick)
	c.mu.Unlock()

	sort.Slice(batch, func(i, j int) bool { return batch[i].Symbol < batch[j].Symbol })
	c.sink(batch)
}

// Close stops the flush loop after draining any pending ticks.
func (c *Coalescer) Close() {
	c.once.Do(func() {
		close(c.shutdown)
		<-c.done
		c.Flush()
	})
}

func (c *Coalescer) run() {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.Flush()
		}
	}
}
