package store

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/tradefeed/internal/schema"
)

func tick(symbol string, bid, ask, mid float64) schema.PriceTick {
	return schema.PriceTick{
		Symbol: symbol,
		Bid:    decimal.NewFromFloat(bid),
		Ask:    decimal.NewFromFloat(ask),
		Mid:    decimal.NewFromFloat(mid),
	}
}

func TestPriceStoreLastWriteWins(t *testing.T) {
	s := NewPriceStore()

	s.ApplyBatch([]schema.PriceTick{tick("BTCUSDT", 100, 101, 100.5)})
	got, ok := s.Get("BTCUSDT")
	require.True(t, ok)
	require.True(t, got.Mid.Equal(decimal.NewFromFloat(100.5)))

	s.ApplyBatch([]schema.PriceTick{tick("BTCUSDT", 102, 103, 102.5)})
	got, ok = s.Get("BTCUSDT")
	require.True(t, ok)
	require.True(t, got.Mid.Equal(decimal.NewFromFloat(102.5)))

	_, ok = s.Get("ETHUSDT")
	require.False(t, ok)
}

func TestPriceStoreWithinBatchLaterTickWins(t *testing.T) {
	s := NewPriceStore()
	s.ApplyBatch([]schema.PriceTick{
		tick("BTCUSDT", 100, 101, 100.5),
		tick("BTCUSDT", 110, 111, 110.5),
	})
	got, _ := s.Get("BTCUSDT")
	require.True(t, got.Mid.Equal(decimal.NewFromFloat(110.5)))
}

func TestPriceStoreNotifiesOncePerBatch(t *testing.T) {
	s := NewPriceStore()
	var calls int
	var lastBatch []schema.PriceTick
	unsubscribe := s.Subscribe(func(batch []schema.PriceTick) {
		calls++
		lastBatch = batch
	})
	defer unsubscribe()

	s.ApplyBatch([]schema.PriceTick{
		tick("BTCUSDT", 100, 101, 100.5),
		tick("ETHUSDT", 10, 11, 10.5),
	})
	require.Equal(t, 1, calls)
	require.Len(t, lastBatch, 2)

	s.ApplyBatch(nil)
	require.Equal(t, 1, calls, "empty batch must not notify")

	unsubscribe()
	s.ApplyBatch([]schema.PriceTick{tick("BTCUSDT", 1, 2, 1.5)})
	require.Equal(t, 1, calls, "unsubscribed listener must not fire")
}

func TestPriceStoreUnsubscribeDuringDispatch(t *testing.T) {
	s := NewPriceStore()
	var unsubscribe func()
	unsubscribe = s.Subscribe(func([]schema.PriceTick) {
		unsubscribe()
	})
	// must not deadlock or panic
	s.ApplyBatch([]schema.PriceTick{tick("BTCUSDT", 1, 2, 1.5)})
	s.ApplyBatch([]schema.PriceTick{tick("BTCUSDT", 2, 3, 2.5)})
}

func TestPriceStoreClearAndAll(t *testing.T) {
	s := NewPriceStore()
	s.ApplyBatch([]schema.PriceTick{
		tick("BTCUSDT", 100, 101, 100.5),
		tick("ETHUSDT", 10, 11, 10.5),
	})
	require.Equal(t, 2, s.Len())
	require.Len(t, s.All(), 2)

	s.Clear()
	require.Equal(t, 0, s.Len())
	_, ok := s.Get("BTCUSDT")
	require.False(t, ok)
}
