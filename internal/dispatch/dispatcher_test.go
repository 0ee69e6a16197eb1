package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/tradefeed/errs"
	"github.com/coachpo/tradefeed/internal/schema"
)

func fixedClock() time.Time {
	return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestDecodePriceBatch(t *testing.T) {
	raw := []byte(`{"type":"prices","data":[{"symbol":"BTCUSDT","bid":100,"ask":101,"mid":100.5}],"timestamp":"2024-06-01T12:00:00Z"}`)
	envelope, err := Decode(raw, fixedClock())
	require.NoError(t, err)
	require.Equal(t, schema.KindPrices, envelope.Kind)
	require.Len(t, envelope.Prices, 1)
	require.Equal(t, "BTCUSDT", envelope.Prices[0].Symbol)
	require.True(t, envelope.Prices[0].Mid.Equal(decimal.NewFromFloat(100.5)))
	require.Equal(t, fixedClock(), envelope.ReceivedAt)
}

func TestDecodePositionUpdate(t *testing.T) {
	raw := []byte(`{"type":"position","data":{"id":7,"symbol":"ETHUSDT","side":"SHORT","quantity":"2","entry_price":"3000","mark_price":"2990","unrealized_pnl":"20","leverage":5},"timestamp":"2024-06-01T12:00:00Z"}`)
	envelope, err := Decode(raw, fixedClock())
	require.NoError(t, err)
	require.Equal(t, schema.KindPosition, envelope.Kind)
	require.NotNil(t, envelope.Position)
	require.Equal(t, int64(7), envelope.Position.ID)
	require.Equal(t, schema.SideShort, envelope.Position.Side)
	require.True(t, envelope.Position.UnrealizedPnL.Equal(decimal.NewFromInt(20)))
	require.Equal(t, 5, envelope.Position.Leverage)
}

func TestDecodePositionClose(t *testing.T) {
	raw := []byte(`{"type":"position_close","data":{"position_id":7,"realized_pnl":"-12.5"},"timestamp":"2024-06-01T12:00:00Z"}`)
	envelope, err := Decode(raw, fixedClock())
	require.NoError(t, err)
	require.Equal(t, schema.KindPositionClosed, envelope.Kind)
	require.NotNil(t, envelope.Close)
	require.Equal(t, int64(7), envelope.Close.PositionID)
	require.True(t, envelope.Close.RealizedPnL.Equal(decimal.NewFromFloat(-12.5)))
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	cases := map[string][]byte{
		"invalid json":    []byte(`{not json`),
		"unknown type":    []byte(`{"type":"orders","data":{}}`),
		"bad price data":  []byte(`{"type":"prices","data":{"symbol":"x"}}`),
		"bad close data":  []byte(`{"type":"position_close","data":[1,2]}`),
		"bad update data": []byte(`{"type":"position","data":"nope"}`),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(raw, fixedClock())
			require.Error(t, err)
			require.True(t, errs.IsCode(err, errs.CodeDecode))
		})
	}
}

func subscribeCollector(d *Dispatcher) (*sync.Mutex, *[]schema.Envelope, func()) {
	var mu sync.Mutex
	var got []schema.Envelope
	unsubscribe := d.Subscribe(func(envelope schema.Envelope) {
		mu.Lock()
		got = append(got, envelope)
		mu.Unlock()
	})
	return &mu, &got, unsubscribe
}

func TestDispatcherForwardsToAllSubscribers(t *testing.T) {
	d := NewDispatcher(4).WithClock(fixedClock)
	muA, gotA, unsubA := subscribeCollector(d)
	defer unsubA()
	muB, gotB, unsubB := subscribeCollector(d)
	defer unsubB()

	d.OnFrame([]byte(`{"type":"prices","data":[{"symbol":"BTCUSDT","bid":1,"ask":2,"mid":1.5}]}`))

	muA.Lock()
	require.Len(t, *gotA, 1)
	muA.Unlock()
	muB.Lock()
	require.Len(t, *gotB, 1)
	muB.Unlock()
}

func TestDispatcherSuppressesPong(t *testing.T) {
	d := NewDispatcher(1).WithClock(fixedClock)
	mu, got, unsubscribe := subscribeCollector(d)
	defer unsubscribe()

	d.OnFrame([]byte(`{"type":"pong"}`))
	d.OnFrame([]byte(`{"type":"prices","data":[{"symbol":"BTCUSDT","bid":1,"ask":2,"mid":1.5}]}`))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *got, 1)
	require.Equal(t, schema.KindPrices, (*got)[0].Kind)
}

func TestDispatcherSurvivesMalformedFrames(t *testing.T) {
	d := NewDispatcher(1).WithClock(fixedClock)
	mu, got, unsubscribe := subscribeCollector(d)
	defer unsubscribe()

	require.NotPanics(t, func() {
		d.OnFrame([]byte(`%%%`))
	})
	d.OnFrame([]byte(`{"type":"prices","data":[{"symbol":"BTCUSDT","bid":1,"ask":2,"mid":1.5}]}`))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *got, 1, "valid frames after a malformed one must still be processed")
}

func TestDispatcherSurvivesPanickingSubscriber(t *testing.T) {
	d := NewDispatcher(2).WithClock(fixedClock)
	unsubPanic := d.Subscribe(func(schema.Envelope) { panic("boom") })
	defer unsubPanic()
	mu, got, unsubscribe := subscribeCollector(d)
	defer unsubscribe()

	require.NotPanics(t, func() {
		d.OnFrame([]byte(`{"type":"prices","data":[{"symbol":"BTCUSDT","bid":1,"ask":2,"mid":1.5}]}`))
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *got, 1, "other subscribers must still receive the envelope")
}

func TestDispatcherUnsubscribeStopsDelivery(t *testing.T) {
	d := NewDispatcher(1).WithClock(fixedClock)
	mu, got, unsubscribe := subscribeCollector(d)

	d.OnFrame([]byte(`{"type":"prices","data":[{"symbol":"BTCUSDT","bid":1,"ask":2,"mid":1.5}]}`))
	unsubscribe()
	d.OnFrame([]byte(`{"type":"prices","data":[{"symbol":"BTCUSDT","bid":1,"ask":2,"mid":1.5}]}`))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *got, 1)
}
