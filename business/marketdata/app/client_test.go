package app

import (
	"io"
	"testing"

	"github.com/fd1az/krakenfeed/business/marketdata/domain"
	"github.com/fd1az/krakenfeed/internal/config"
	"github.com/fd1az/krakenfeed/internal/logger"
	"github.com/fd1az/krakenfeed/internal/wsconn"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.Name = "test"
	cfg.Kraken.PublicURL = "wss://ws.kraken.com"
	cfg.Kraken.PrivateURL = "wss://ws-auth.kraken.com"
	cfg.Kraken.Gap.Policy = "Resync"
	cfg.Kraken.Gap.MaxGapSize = 10
	cfg.Kraken.QueueDepth = 16
	cfg.Kraken.DropPolicy = "DropOldest"
	return cfg
}

func newTestClientApp(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(testConfig(), logger.New(io.Discard, logger.LevelError, "test", nil))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

// subscribedFSM drives c.fsm from Disconnected straight to Subscribed,
// the state handleBookResync expects to find it in before a gap.
func subscribedFSM(c *Client) {
	c.fsm.Connect()
	c.fsm.TransportEstablished(false)
	c.fsm.AllSubscriptionsActive()
}

func TestHandleBookResyncDrivesFSMIntoResyncing(t *testing.T) {
	c := newTestClientApp(t)
	subscribedFSM(c)

	c.handleBookResync("BTC/USD", 10)

	c.fsmMu.Lock()
	phase := c.fsm.State().Phase
	count := c.resyncCount
	c.fsmMu.Unlock()

	if phase != wsconn.PhaseResyncing {
		t.Fatalf("phase = %v, want Resyncing", phase)
	}
	if count != 1 {
		t.Fatalf("resyncCount = %d, want 1", count)
	}
}

func TestHandleBookResyncCompleteReturnsFSMToSubscribed(t *testing.T) {
	c := newTestClientApp(t)
	subscribedFSM(c)

	c.handleBookResync("BTC/USD", 10)
	c.handleBookResyncComplete("BTC/USD", 10)

	c.fsmMu.Lock()
	phase := c.fsm.State().Phase
	count := c.resyncCount
	c.fsmMu.Unlock()

	if phase != wsconn.PhaseSubscribed {
		t.Fatalf("phase = %v, want Subscribed", phase)
	}
	if count != 0 {
		t.Fatalf("resyncCount = %d, want 0", count)
	}
}

func TestHandleBookResyncCompleteWaitsForEveryResyncingBook(t *testing.T) {
	c := newTestClientApp(t)
	subscribedFSM(c)

	c.handleBookResync("BTC/USD", 10)
	c.handleBookResync("ETH/USD", 10)
	c.handleBookResyncComplete("BTC/USD", 10)

	c.fsmMu.Lock()
	phase := c.fsm.State().Phase
	c.fsmMu.Unlock()
	if phase != wsconn.PhaseResyncing {
		t.Fatalf("phase = %v, want Resyncing while ETH/USD is still recovering", phase)
	}

	c.handleBookResyncComplete("ETH/USD", 10)

	c.fsmMu.Lock()
	phase = c.fsm.State().Phase
	c.fsmMu.Unlock()
	if phase != wsconn.PhaseSubscribed {
		t.Fatalf("phase = %v, want Subscribed once every resyncing book has recovered", phase)
	}
}

func TestNewClientWiresBookResyncHooks(t *testing.T) {
	c := newTestClientApp(t)
	if c.books == nil {
		t.Fatal("books manager should be constructed")
	}

	c.books.ApplySnapshot("BTC/USD", 10, domain.SnapshotUpdate{
		Bids:     []domain.PriceLevel{blvl("100", "1")},
		Asks:     []domain.PriceLevel{blvl("101", "1")},
		Sequence: 1,
	})
	// Establish a real sequence baseline before the gap, same as
	// book_manager_test.go: the first delta after a snapshot always
	// delivers unconditionally.
	c.books.ApplyDelta("BTC/USD", 10, domain.DeltaUpdate{Bids: []domain.PriceLevel{blvl("99", "2")}, Sequence: 2})

	c.fsmMu.Lock()
	c.fsm.Connect()
	c.fsm.TransportEstablished(false)
	c.fsm.AllSubscriptionsActive()
	c.fsmMu.Unlock()

	c.books.ApplyDelta("BTC/USD", 10, domain.DeltaUpdate{Bids: []domain.PriceLevel{blvl("98", "2")}, Sequence: 50})

	c.fsmMu.Lock()
	phase := c.fsm.State().Phase
	c.fsmMu.Unlock()
	if phase != wsconn.PhaseResyncing {
		t.Fatalf("phase = %v, want Resyncing once BookManager reports a gap", phase)
	}
}
