package app

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/fd1az/krakenfeed/business/marketdata/domain"
	"github.com/fd1az/krakenfeed/internal/logger"
)

func testLogger() logger.LoggerInterface {
	return logger.New(io.Discard, logger.LevelError, "test", nil)
}

func TestDispatcherDeliversToRegisteredKindOnly(t *testing.T) {
	d := NewDispatcher(nil, testLogger())

	var tickers, trades int
	d.Register("Ticker", func(domain.Event) { tickers++ })
	d.Register("Trade", func(domain.Event) { trades++ })

	d.Dispatch(context.Background(), tickerEvent(), "BTC/USD", "Ticker", true)

	if tickers != 1 {
		t.Fatalf("tickers = %d, want 1", tickers)
	}
	if trades != 0 {
		t.Fatalf("trades = %d, want 0", trades)
	}
}

func TestDispatcherRegistrationOrderPreserved(t *testing.T) {
	d := NewDispatcher(nil, testLogger())

	var order []int
	d.Register("Ticker", func(domain.Event) { order = append(order, 1) })
	d.Register("Ticker", func(domain.Event) { order = append(order, 2) })
	d.Register("Ticker", func(domain.Event) { order = append(order, 3) })

	d.Dispatch(context.Background(), tickerEvent(), "", "Ticker", true)

	want := []int{1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestDispatcherUnregisterStopsDelivery(t *testing.T) {
	d := NewDispatcher(nil, testLogger())

	var calls int
	handle := d.Register("Ticker", func(domain.Event) { calls++ })
	d.Dispatch(context.Background(), tickerEvent(), "", "Ticker", true)

	d.Unregister(handle)
	d.Dispatch(context.Background(), tickerEvent(), "", "Ticker", true)

	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no delivery after Unregister)", calls)
	}
}

func TestDispatcherIsolatesPanickingListener(t *testing.T) {
	d := NewDispatcher(nil, testLogger())

	var secondCalled bool
	d.Register("Ticker", func(domain.Event) { panic("boom") })
	d.Register("Ticker", func(domain.Event) { secondCalled = true })

	d.Dispatch(context.Background(), tickerEvent(), "", "Ticker", true)

	if !secondCalled {
		t.Fatalf("a panicking listener should not prevent later listeners from running")
	}
}

func TestDispatcherStreamDeliversUnifiedEvents(t *testing.T) {
	flow := NewFlowControl(8, DropOldest, 0, 0)
	d := NewDispatcher(flow, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := d.Stream(ctx)
	d.Dispatch(ctx, tickerEvent(), "BTC/USD", "Ticker", true)

	select {
	case ev := <-stream:
		if domain.Kind2(ev) != "Ticker" {
			t.Fatalf("got kind %q, want Ticker", domain.Kind2(ev))
		}
	case <-time.After(time.Second):
		t.Fatalf("stream never delivered the dispatched event")
	}
}

func TestDispatcherStreamClosesOnContextCancel(t *testing.T) {
	flow := NewFlowControl(8, DropOldest, 0, 0)
	d := NewDispatcher(flow, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	stream := d.Stream(ctx)
	cancel()

	select {
	case _, ok := <-stream:
		if ok {
			t.Fatalf("expected stream to close after context cancellation")
		}
	case <-time.After(time.Second):
		t.Fatalf("stream never closed after context cancellation")
	}
}
