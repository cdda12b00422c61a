package marketdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusFiltersByType(t *testing.T) {
	bus := NewBus()
	tickers := bus.Subscribe("ticker")
	all := bus.Subscribe()
	defer bus.Unsubscribe(tickers)
	defer bus.Unsubscribe(all)

	bus.Publish(Event{Type: "ticker", Data: "a"})
	bus.Publish(Event{Type: "candle", Data: "b"})

	require.Len(t, tickers.C, 1, "filtered subscriber only sees its type")
	evt := <-tickers.C
	assert.Equal(t, "ticker", evt.Type)

	require.Len(t, all.C, 2, "unfiltered subscriber sees everything")
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("ticker")
	bus.Unsubscribe(sub)
	_, open := <-sub.C
	assert.False(t, open)

	// publishing after unsubscribe must not panic on the closed channel
	bus.Publish(Event{Type: "ticker"})
	// double unsubscribe is a no-op
	bus.Unsubscribe(sub)
}

func TestBusDropsWhenSubscriberIsFull(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("ticker")
	defer bus.Unsubscribe(sub)
	for i := 0; i < 150; i++ {
		bus.Publish(Event{Type: "ticker", Data: i})
	}
	assert.Len(t, sub.C, 100, "overflow is dropped, publish never blocks")
}
