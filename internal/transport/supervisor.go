package transport

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/coachpo/tradefeed/internal/observability"
	"github.com/coachpo/tradefeed/internal/schema"
)

// Outbound control frames are paced so reconnect storms cannot flood the
// server with pings.
const controlFrameInterval = 250 * time.Millisecond

// Config declares supervisor behaviour.
type Config struct {
	URL               string
	HeartbeatInterval time.Duration
	HandshakeTimeout  time.Duration
	Backoff           BackoffSettings
}

func (c Config) normalize() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	c.Backoff = c.Backoff.normalize()
	return c
}

// FrameHandler consumes raw inbound frames in arrival order.
type FrameHandler func(raw []byte)

// StatusHandler consumes lifecycle notifications.
type StatusHandler func(event StatusEvent)

type pingFrame struct {
	Type string `json:"type"`
}

// Supervisor owns one duplex channel at a time. It dials, keeps the channel
// alive with heartbeats, detects failures, and reconnects with exponential
// backoff up to the attempt ceiling. Connect and Disconnect fire-and-proceed;
// outcomes are observed through status subscriptions.
type Supervisor struct {
	cfg     Config
	dialer  Dialer
	frames  FrameHandler
	limiter *rate.Limiter

	mu         sync.Mutex
	state      State
	attempt    int
	token      string
	channel    Channel
	ctx        context.Context
	cancel     context.CancelFunc
	retryTimer *time.Timer
	backoff    *backoff.ExponentialBackOff
	gen        uint64
	statusSubs map[uuid.UUID]StatusHandler
}

// NewSupervisor creates a supervisor in the Idle state. Inbound frames are
// delivered to frames; a nil handler discards them.
func NewSupervisor(cfg Config, dialer Dialer, frames FrameHandler) *Supervisor {
	cfg = cfg.normalize()
	if dialer == nil {
		dialer = WebsocketDialer{}
	}
	return &Supervisor{
		cfg:        cfg,
		dialer:     dialer,
		frames:     frames,
		limiter:    rate.NewLimiter(rate.Every(controlFrameInterval), 1),
		state:      StateIdle,
		backoff:    newBackoff(cfg.Backoff),
		statusSubs: make(map[uuid.UUID]StatusHandler),
	}
}

// SubscribeStatus registers a lifecycle listener and returns its unsubscribe
// handle.
func (s *Supervisor) SubscribeStatus(handler StatusHandler) func() {
	if handler == nil {
		return func() {}
	}
	id := uuid.New()
	s.mu.Lock()
	s.statusSubs[id] = handler
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.statusSubs, id)
		s.mu.Unlock()
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect starts a connection cycle with the given credential. An empty token
// connects unauthenticated. Calling Connect while a channel is open or being
// established tears the prior attempt down first; there are never two
// channels.
func (s *Supervisor) Connect(token string) {
	s.mu.Lock()
	s.teardownLocked()
	s.token = token
	s.attempt = 0
	s.backoff.Reset()
	s.state = StateConnecting
	gen := s.gen
	ctx, cancel := context.WithCancel(context.Background())
	s.ctx = ctx
	s.cancel = cancel
	s.mu.Unlock()

	s.emit(StatusEvent{Status: StatusConnecting})
	go s.dial(ctx, gen)
}

// Disconnect cancels any pending reconnect, stops the heartbeat, closes the
// live channel, and pins the attempt counter at the ceiling so an in-flight
// scheduled reconnect becomes a no-op. Safe to call repeatedly and before any
// Connect.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	wasIdle := s.state == StateIdle
	s.teardownLocked()
	s.attempt = s.cfg.Backoff.MaxAttempts
	s.state = StateIdle
	s.mu.Unlock()

	if !wasIdle {
		s.emit(StatusEvent{Status: StatusDisconnected})
	}
}

// teardownLocked invalidates the current connection generation: it cancels
// the generation context, stops the single pending retry timer, and closes
// any live channel.
func (s *Supervisor) teardownLocked() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.ctx = nil
		s.cancel = nil
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	if s.channel != nil {
		s.state = StateClosing
		_ = s.channel.Close()
		s.channel = nil
	}
}

func (s *Supervisor) dial(ctx context.Context, gen uint64) {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	channel, err := s.dialer.Dial(dialCtx, s.buildURL())
	cancel()

	s.mu.Lock()
	if gen != s.gen || ctx.Err() != nil {
		s.mu.Unlock()
		if channel != nil {
			_ = channel.Close()
		}
		return
	}
	if err != nil {
		event := s.scheduleRetryLocked()
		s.mu.Unlock()
		observability.Log().Error("dial failed",
			observability.Field{Key: "error", Value: err.Error()},
			observability.Field{Key: "attempt", Value: event.Attempt},
		)
		s.emit(event)
		return
	}

	s.channel = channel
	s.attempt = 0
	s.backoff.Reset()
	s.state = StateOpen
	s.mu.Unlock()

	observability.Telemetry().IncCounter("tradefeed.transport.connects", 1, nil)
	s.emit(StatusEvent{Status: StatusOpen})

	go s.heartbeat(ctx, gen, channel)
	s.readLoop(ctx, gen, channel)
}

func (s *Supervisor) readLoop(ctx context.Context, gen uint64, channel Channel) {
	for {
		data, err := channel.Read(ctx)
		if err != nil {
			s.mu.Lock()
			if gen != s.gen || ctx.Err() != nil {
				s.mu.Unlock()
				return
			}
			_ = channel.Close()
			s.channel = nil
			event := s.scheduleRetryLocked()
			s.mu.Unlock()

			observability.Telemetry().IncCounter("tradefeed.transport.drops", 1, nil)
			s.emit(event)
			return
		}
		if s.frames != nil {
			s.frames(data)
		}
	}
}

// scheduleRetryLocked advances the attempt counter and either arms the single
// retry timer or gives up when the ceiling is reached.
func (s *Supervisor) scheduleRetryLocked() StatusEvent {
	if s.attempt >= s.cfg.Backoff.MaxAttempts {
		s.state = StateIdle
		if s.cancel != nil {
			s.cancel()
			s.ctx = nil
			s.cancel = nil
		}
		return StatusEvent{Status: StatusGaveUp, Attempt: s.attempt}
	}

	s.attempt++
	delay := s.backoff.NextBackOff()
	nextRetryAt := time.Now().Add(delay)
	s.state = StateBackoff

	gen := s.gen
	if s.retryTimer != nil {
		s.retryTimer.Stop()
	}
	s.retryTimer = time.AfterFunc(delay, func() { s.retry(gen) })

	return StatusEvent{Status: StatusReconnecting, Attempt: s.attempt, NextRetryAt: nextRetryAt}
}

func (s *Supervisor) retry(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.state != StateBackoff || s.ctx == nil {
		s.mu.Unlock()
		return
	}
	s.retryTimer = nil
	s.state = StateConnecting
	ctx := s.ctx
	attempt := s.attempt
	s.mu.Unlock()

	observability.Telemetry().IncCounter("tradefeed.transport.reconnects", 1, nil)
	s.emit(StatusEvent{Status: StatusConnecting, Attempt: attempt})
	go s.dial(ctx, gen)
}

func (s *Supervisor) heartbeat(ctx context.Context, gen uint64, channel Channel) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	payload, err := json.Marshal(pingFrame{Type: string(schema.KindPing)})
	if err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		stale := gen != s.gen || s.channel != channel
		s.mu.Unlock()
		if stale {
			return
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := channel.Write(writeCtx, payload)
		cancel()
		if err != nil {
			// the read loop observes the same failure and schedules the retry
			observability.Log().Debug("heartbeat write failed",
				observability.Field{Key: "error", Value: err.Error()})
			return
		}
		observability.Telemetry().IncCounter("tradefeed.transport.pings", 1, nil)
	}
}

func (s *Supervisor) buildURL() string {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()
	if strings.TrimSpace(token) == "" {
		return s.cfg.URL
	}
	parsed, err := url.Parse(s.cfg.URL)
	if err != nil {
		return s.cfg.URL
	}
	query := parsed.Query()
	query.Set("token", token)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func (s *Supervisor) emit(event StatusEvent) {
	s.mu.Lock()
	handlers := make([]StatusHandler, 0, len(s.statusSubs))
	for _, handler := range s.statusSubs {
		handlers = append(handlers, handler)
	}
	s.mu.Unlock()
	for _, handler := range handlers {
		handler(event)
	}
}
