package transport

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	dialer *fakeDialer

	in     chan []byte
	writes chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeChannel(dialer *fakeDialer) *fakeChannel {
	return &fakeChannel{
		dialer: dialer,
		in:     make(chan []byte, 16),
		writes: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeChannel) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, errors.New("channel closed")
	case data := <-c.in:
		return data, nil
	}
}

func (c *fakeChannel) Write(_ context.Context, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("channel closed")
	case c.writes <- data:
		return nil
	}
}

func (c *fakeChannel) Close() error {
	c.once.Do(func() {
		close(c.closed)
		if c.dialer != nil {
			c.dialer.channelClosed()
		}
	})
	return nil
}

// drop simulates a server-side disconnect: the pending Read fails.
func (c *fakeChannel) drop() { _ = c.Close() }

type fakeDialer struct {
	mu       sync.Mutex
	failures int // fail this many dials before succeeding
	failAll  bool
	dials    int
	urls     []string
	channels []*fakeChannel
	open     int
	maxOpen  int
}

func (d *fakeDialer) Dial(_ context.Context, url string) (Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.urls = append(d.urls, url)
	if d.failAll || d.failures >= d.dials {
		return nil, errors.New("dial refused")
	}
	channel := newFakeChannel(d)
	d.channels = append(d.channels, channel)
	d.open++
	if d.open > d.maxOpen {
		d.maxOpen = d.open
	}
	return channel, nil
}

func (d *fakeDialer) channelClosed() {
	d.mu.Lock()
	d.open--
	d.mu.Unlock()
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) lastChannel() *fakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.channels) == 0 {
		return nil
	}
	return d.channels[len(d.channels)-1]
}

func (d *fakeDialer) lastURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.urls) == 0 {
		return ""
	}
	return d.urls[len(d.urls)-1]
}

type statusRecorder struct {
	mu     sync.Mutex
	events []StatusEvent
}

func (r *statusRecorder) record(event StatusEvent) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *statusRecorder) has(status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, event := range r.events {
		if event.Status == status {
			return true
		}
	}
	return false
}

func testConfig() Config {
	return Config{
		URL:               "ws://feed.test/ws",
		HeartbeatInterval: 10 * time.Millisecond,
		HandshakeTimeout:  time.Second,
		Backoff: BackoffSettings{
			Base:        time.Millisecond,
			Cap:         4 * time.Millisecond,
			MaxAttempts: 3,
		},
	}
}

func TestBackoffScheduleMatchesFullJumpDoubling(t *testing.T) {
	b := newBackoff(BackoffSettings{Base: time.Second, Cap: 30 * time.Second, MaxAttempts: 10})
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, expected := range want {
		require.Equal(t, expected, b.NextBackOff(), "attempt %d", i+1)
	}

	b.Reset()
	require.Equal(t, time.Second, b.NextBackOff(), "reset must restart the schedule")
}

func TestSupervisorOpensSingleChannel(t *testing.T) {
	dialer := new(fakeDialer)
	s := NewSupervisor(testConfig(), dialer, nil)
	defer s.Disconnect()

	s.Connect("")
	require.Eventually(t, func() bool { return s.State() == StateOpen }, time.Second, time.Millisecond)

	// a second Connect must tear down the previous channel first
	s.Connect("")
	require.Eventually(t, func() bool { return s.State() == StateOpen }, time.Second, time.Millisecond)

	dialer.mu.Lock()
	maxOpen := dialer.maxOpen
	dialer.mu.Unlock()
	require.LessOrEqual(t, maxOpen, 1, "at most one channel may ever be open")
}

func TestSupervisorDeliversFrames(t *testing.T) {
	dialer := new(fakeDialer)
	var mu sync.Mutex
	var frames [][]byte
	s := NewSupervisor(testConfig(), dialer, func(raw []byte) {
		mu.Lock()
		frames = append(frames, raw)
		mu.Unlock()
	})
	defer s.Disconnect()

	s.Connect("")
	require.Eventually(t, func() bool { return s.State() == StateOpen }, time.Second, time.Millisecond)

	dialer.lastChannel().in <- []byte(`{"type":"pong"}`)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(frames) == 1
	}, time.Second, time.Millisecond)
}

func TestSupervisorReconnectsAfterDrop(t *testing.T) {
	dialer := new(fakeDialer)
	recorder := new(statusRecorder)
	s := NewSupervisor(testConfig(), dialer, nil)
	defer s.Disconnect()
	defer s.SubscribeStatus(recorder.record)()

	s.Connect("")
	require.Eventually(t, func() bool { return s.State() == StateOpen }, time.Second, time.Millisecond)

	dialer.lastChannel().drop()
	require.Eventually(t, func() bool {
		return dialer.dialCount() >= 2 && s.State() == StateOpen
	}, time.Second, time.Millisecond)
	require.True(t, recorder.has(StatusReconnecting))

	// a fresh failure after the reopen starts the schedule from attempt 1
	dialer.lastChannel().drop()
	require.Eventually(t, func() bool { return s.State() == StateOpen }, time.Second, time.Millisecond)
}

func TestSupervisorGivesUpAtAttemptCeiling(t *testing.T) {
	dialer := &fakeDialer{failAll: true}
	recorder := new(statusRecorder)
	s := NewSupervisor(testConfig(), dialer, nil)
	defer s.SubscribeStatus(recorder.record)()

	s.Connect("")
	require.Eventually(t, func() bool { return recorder.has(StatusGaveUp) }, time.Second, time.Millisecond)
	require.Equal(t, StateIdle, s.State())

	// initial dial plus one per allowed attempt
	require.Equal(t, 1+testConfig().Backoff.MaxAttempts, dialer.dialCount())

	// no retry may fire after giving up
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1+testConfig().Backoff.MaxAttempts, dialer.dialCount())
}

func TestSupervisorDisconnectCancelsScheduledReconnect(t *testing.T) {
	cfg := testConfig()
	cfg.Backoff.Base = 50 * time.Millisecond
	cfg.Backoff.Cap = 50 * time.Millisecond
	dialer := &fakeDialer{failAll: true}
	recorder := new(statusRecorder)
	s := NewSupervisor(cfg, dialer, nil)
	defer s.SubscribeStatus(recorder.record)()

	s.Connect("")
	require.Eventually(t, func() bool { return recorder.has(StatusReconnecting) }, time.Second, time.Millisecond)

	s.Disconnect()
	require.Equal(t, StateIdle, s.State())
	dials := dialer.dialCount()

	time.Sleep(120 * time.Millisecond)
	require.Equal(t, dials, dialer.dialCount(), "no scheduled reconnect may dial after Disconnect")
	require.True(t, recorder.has(StatusDisconnected))
}

func TestSupervisorDisconnectIsIdempotentAndSafeBeforeConnect(t *testing.T) {
	s := NewSupervisor(testConfig(), new(fakeDialer), nil)
	s.Disconnect()
	s.Disconnect()
	require.Equal(t, StateIdle, s.State())
}

func TestSupervisorHeartbeatSendsPing(t *testing.T) {
	dialer := new(fakeDialer)
	s := NewSupervisor(testConfig(), dialer, nil)
	defer s.Disconnect()

	s.Connect("")
	require.Eventually(t, func() bool { return s.State() == StateOpen }, time.Second, time.Millisecond)

	select {
	case payload := <-dialer.lastChannel().writes:
		require.JSONEq(t, `{"type":"ping"}`, string(payload))
	case <-time.After(time.Second):
		t.Fatal("expected a heartbeat ping")
	}
}

func TestSupervisorAppendsTokenToURL(t *testing.T) {
	dialer := new(fakeDialer)
	s := NewSupervisor(testConfig(), dialer, nil)
	defer s.Disconnect()

	s.Connect("secret-token")
	require.Eventually(t, func() bool { return s.State() == StateOpen }, time.Second, time.Millisecond)
	require.Contains(t, dialer.lastURL(), "token=secret-token")

	s.Connect("")
	require.Eventually(t, func() bool { return dialer.dialCount() >= 2 }, time.Second, time.Millisecond)
	require.False(t, strings.Contains(dialer.lastURL(), "token="),
		"unauthenticated connects must not carry a token parameter")
}
