// Package session ties the streaming transport, the dispatcher and the
// in-memory stores into one authenticated lifecycle. A session mirrors a
// user's sign-in: Start opens the stream with their credential, Stop tears
// the stream down and wipes every piece of account-scoped state.
package session

import (
	"context"
	"net/http"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/coachpo/tradefeed/config"
	"github.com/coachpo/tradefeed/internal/dispatch"
	"github.com/coachpo/tradefeed/internal/equity"
	"github.com/coachpo/tradefeed/internal/observability"
	"github.com/coachpo/tradefeed/internal/rest"
	"github.com/coachpo/tradefeed/internal/schema"
	"github.com/coachpo/tradefeed/internal/store"
	"github.com/coachpo/tradefeed/internal/transport"
)

// Session owns one authenticated streaming connection and the stores fed by
// it. All methods are safe for concurrent use.
type Session struct {
	cfg config.Config

	supervisor *transport.Supervisor
	dispatcher *dispatch.Dispatcher
	prices     *store.PriceStore
	positions  *store.PositionStore
	restClient *rest.Client
	calc       *equity.Calculator

	mu          sync.Mutex
	started     bool
	coalescer   *store.Coalescer
	unsubscribe func()
}

// Option customizes session construction.
type Option func(*options)

type options struct {
	dialer     transport.Dialer
	restClient *rest.Client
}

// WithDialer overrides the websocket dialer, primarily for testing.
func WithDialer(dialer transport.Dialer) Option {
	return func(o *options) { o.dialer = dialer }
}

// WithRESTClient overrides the collaborator REST client.
func WithRESTClient(client *rest.Client) Option {
	return func(o *options) { o.restClient = client }
}

// New builds a stopped session from the configuration. Call Start to open
// the stream.
func New(cfg config.Config, opts ...Option) *Session {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	s := &Session{
		cfg:        cfg,
		dispatcher: dispatch.NewDispatcher(0),
		prices:     store.NewPriceStore(),
		positions:  store.NewPositionStore(),
		restClient: o.restClient,
		calc:       equity.NewCalculator(),
	}
	if s.restClient == nil {
		s.restClient = rest.NewClient(cfg.REST.BaseURL,
			rest.WithHTTPClient(&http.Client{Timeout: cfg.REST.Timeout}),
			rest.WithCacheTTL(cfg.REST.CacheTTL),
			rest.WithTokenSource(func() string { return cfg.Stream.Token }))
	}
	s.supervisor = transport.NewSupervisor(transport.Config{
		URL:               cfg.Stream.URL,
		HeartbeatInterval: cfg.Stream.HeartbeatInterval,
		HandshakeTimeout:  cfg.Stream.HandshakeTimeout,
		Backoff: transport.BackoffSettings{
			Base:        cfg.Stream.Backoff.Base,
			Cap:         cfg.Stream.Backoff.Cap,
			MaxAttempts: cfg.Stream.Backoff.MaxAttempts,
		},
	}, o.dialer, s.dispatcher.OnFrame)
	return s
}

// Start opens the stream with the given credential and begins routing
// messages into the stores. Starting an already started session reconnects
// with the new credential but keeps current store contents, matching a
// token refresh.
func (s *Session) Start(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		sink := s.prices.ApplyBatch
		if s.cfg.Stream.CoalesceInterval > 0 {
			s.coalescer = store.NewCoalescer(s.prices.ApplyBatch, s.cfg.Stream.CoalesceInterval)
			sink = s.coalescer.Offer
		}
		s.unsubscribe = s.dispatcher.Subscribe(s.route(sink))
		s.started = true
	}

	observability.Log().Info("session start")
	s.supervisor.Connect(token)
}

// Stop closes the stream and clears all account-scoped state. Safe to call
// repeatedly and before Start.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.supervisor.Disconnect()
	if !s.started {
		return
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	if s.coalescer != nil {
		s.coalescer.Close()
		s.coalescer = nil
	}
	s.prices.Clear()
	s.positions.Clear()
	s.restClient.Invalidate()
	s.started = false
	observability.Log().Info("session stop")
}

// route builds the dispatcher handler that applies each message to the
// matching store. Writes hold the session mutex so a frame still in flight
// when Stop runs is dropped instead of repopulating a wiped store.
func (s *Session) route(priceSink func([]schema.PriceTick)) dispatch.Handler {
	return func(envelope schema.Envelope) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.started {
			return
		}
		switch envelope.Kind {
		case schema.KindPrices:
			priceSink(envelope.Prices)
		case schema.KindPosition:
			if envelope.Position != nil {
				s.positions.Upsert(*envelope.Position)
			}
		case schema.KindPositionClosed:
			if envelope.Close != nil {
				s.positions.Remove(envelope.Close.PositionID)
				s.restClient.Invalidate(rest.KeyPositions, rest.KeyAccount, rest.KeyTrades)
			}
		}
	}
}

// Prices exposes the live price store.
func (s *Session) Prices() *store.PriceStore { return s.prices }

// Positions exposes the live position store.
func (s *Session) Positions() *store.PositionStore { return s.positions }

// REST exposes the collaborator REST client sharing this session's cache.
func (s *Session) REST() *rest.Client { return s.restClient }

// SubscribeStatus relays connection lifecycle events. The returned function
// cancels the subscription.
func (s *Session) SubscribeStatus(handler transport.StatusHandler) func() {
	return s.supervisor.SubscribeStatus(handler)
}

// State reports the transport state.
func (s *Session) State() transport.State { return s.supervisor.State() }

// LiveEquity combines the latest account snapshot with the live position set.
// The boolean is false when no snapshot could be fetched.
func (s *Session) LiveEquity(ctx context.Context) (decimal.Decimal, bool) {
	account, err := s.restClient.Account(ctx)
	if err != nil {
		observability.Log().Debug("equity account fetch failed",
			observability.Field{Key: "error", Value: err.Error()})
		account = nil
	}
	return s.calc.LiveEquity(account, s.positions.All())
}
