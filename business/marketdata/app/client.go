// Package app wires the Kraken wire adapter, the connection lifecycle
// state machine, the subscription and order-book managers, and the
// flow-controlled dispatcher into the single public-facing Client: the
// facade every consumer of this module talks to.
package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fd1az/krakenfeed/business/marketdata/domain"
	"github.com/fd1az/krakenfeed/business/marketdata/infra/kraken"
	"github.com/fd1az/krakenfeed/internal/apperror"
	"github.com/fd1az/krakenfeed/internal/circuitbreaker"
	"github.com/fd1az/krakenfeed/internal/config"
	"github.com/fd1az/krakenfeed/internal/logger"
	"github.com/fd1az/krakenfeed/internal/wsconn"
)

// Client is the public entry point for the Kraken market data feed: one
// connection (public, plus a private one when credentials are configured),
// every subscribed channel, the stitched order books, and the fanned-out
// event stream.
type Client struct {
	cfg *config.Config
	log logger.LoggerInterface

	public  *kraken.Client
	private *kraken.Client // nil unless cfg.Kraken.Credentials.Enabled()
	rest    *kraken.RestClient
	breaker *circuitbreaker.CircuitBreaker[string]

	fsm         *wsconn.FSM
	fsmMu       sync.Mutex
	backoff     wsconn.Backoff
	resyncCount int // books currently Resyncing; fsmMu-guarded

	subs   *SubscriptionManager
	books  *BookManager
	flow   *FlowControl
	disp   *Dispatcher
	lat    *Tracker
	seqMgr *domain.Tracker // ticker/trade/ohlc don't carry a sequence on the wire; only book does

	lastMsgMu sync.Mutex
	lastMsgAt time.Time

	corrMu        sync.Mutex
	correlationID string

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewClient builds a Client from cfg. It does not dial anything; call
// Connect to start the connection lifecycle.
func NewClient(cfg *config.Config, log logger.LoggerInterface) (*Client, error) {
	creds := kraken.Credentials{}
	public, err := kraken.New(cfg.Kraken.PublicURL, cfg.App.Name+"-public", creds, log)
	if err != nil {
		return nil, err
	}

	rest, err := kraken.NewRestClient("")
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:     cfg,
		log:     log,
		public:  public,
		rest:    rest,
		breaker: circuitbreaker.New[string](circuitbreaker.DefaultConfig(cfg.App.Name + "-kraken-rest")),
		fsm:     wsconn.NewFSM(),
		backoff: wsconn.Backoff{
			Initial:    cfg.Kraken.Reconnect.InitialDelay,
			Max:        cfg.Kraken.Reconnect.MaxDelay,
			Multiplier: cfg.Kraken.Reconnect.Multiplier,
		},
	}

	if cfg.Kraken.Credentials.Enabled() {
		rest.SetCredentials(cfg.Kraken.Credentials.APIKey, cfg.Kraken.Credentials.APISecret)
		private, err := kraken.New(cfg.Kraken.PrivateURL, cfg.App.Name+"-private", creds, log)
		if err != nil {
			return nil, err
		}
		c.private = private
	}

	gapPolicy := domain.GapPolicy(cfg.Kraken.Gap.Policy)
	c.seqMgr = domain.NewTracker(gapPolicy, cfg.Kraken.Gap.MaxGapSize, cfg.Kraken.Gap.PendingTimeout, 0)
	c.books = NewBookManager(c.seqMgr, cfg.Book.RestFallbackAfter, c.restFallback)
	c.subs = NewSubscriptionManager(cfg.Kraken.ConnectTimeout, c.sendSubscribe)

	dropPolicy := DropPolicy(cfg.Kraken.DropPolicy)
	coalesceWindow := time.Duration(cfg.Kraken.CoalesceWindowMs) * time.Millisecond
	c.flow = NewFlowControl(cfg.Kraken.QueueDepth, dropPolicy, cfg.Kraken.MaxMessagesPerSec, coalesceWindow)
	c.disp = NewDispatcher(c.flow, log)
	c.lat = NewTracker(0, cfg.Latency.NetworkThreshold, cfg.Latency.TotalThreshold)

	c.wireCallbacks(c.public)
	if c.private != nil {
		c.wireCallbacks(c.private)
	}
	c.books.OnEvent(func(ev domain.Event, symbol domain.Symbol, coalescible bool) {
		c.disp.Dispatch(c.logCtx(), ev, symbol, domain.Kind2(ev), coalescible)
	})
	c.books.OnResync(c.handleBookResync)
	c.books.OnResyncComplete(c.handleBookResyncComplete)
	c.subs.OnEvent(func(ev domain.Event) {
		c.disp.Dispatch(c.logCtx(), ev, "", domain.Kind2(ev), false)
	})
	c.lat.OnAlert(func(a Alert) {
		c.log.Warn(c.logCtx(), "latency threshold exceeded",
			"kind", a.Kind, "value", a.Value, "threshold", a.Threshold, "symbol", a.Symbol)
	})

	return c, nil
}

// wireCallbacks hooks every kraken.Client sink into the book manager,
// dispatcher, and latency tracker. Both the public and private transports
// share the same downstream pipeline.
func (c *Client) wireCallbacks(kc *kraken.Client) {
	kc.OnTicker(func(s domain.TickerSample) {
		c.touch()
		recv := time.Now()
		c.disp.Dispatch(c.logCtx(), domain.TickerEvent{Sample: s}, s.Symbol, "Ticker", true)
		c.lat.Observe(domain.KindTicker, s.Symbol, s.ExchangeTimestamp, recv, time.Now())
	})
	kc.OnTrades(func(ts []domain.TradeSample) {
		c.touch()
		recv := time.Now()
		for _, s := range ts {
			c.disp.Dispatch(c.logCtx(), domain.TradeEvent{Sample: s}, s.Symbol, "Trade", false)
			c.lat.Observe(domain.KindTrade, s.Symbol, s.ExchangeTimestamp, recv, time.Now())
		}
	})
	kc.OnOhlc(func(bar domain.OhlcBar) {
		c.touch()
		recv := time.Now()
		c.disp.Dispatch(c.logCtx(), domain.OhlcEvent{Bar: bar}, bar.Symbol, "Ohlc", true)
		c.lat.Observe(domain.KindOhlc, bar.Symbol, bar.ExchangeTimestamp, recv, time.Now())
	})
	kc.OnBookSnapshot(func(symbol domain.Symbol, depth int, update domain.SnapshotUpdate) {
		c.touch()
		c.books.ApplySnapshot(symbol, depth, update)
	})
	kc.OnBookDelta(func(symbol domain.Symbol, depth int, update domain.DeltaUpdate) {
		c.touch()
		c.books.ApplyDelta(symbol, depth, update)
	})
	kc.OnSubscriptionStatus(func(evt kraken.SubscriptionStatusEvent) {
		c.touch()
		c.handleSubscriptionStatus(evt)
	})
	kc.OnSystemStatus(func(evt kraken.SystemStatusEvent) {
		c.touch()
		c.log.Info(c.logCtx(), "kraken system status", "status", evt.Status, "version", evt.Version)
	})
	kc.OnParseError(func(err error) {
		c.disp.Dispatch(c.logCtx(), domain.ErrorEvent{Err: err}, "", "Error", false)
	})
	kc.OnTransportStateChange(func(state wsconn.State, err error) {
		c.handleTransportStateChange(kc, state, err)
	})
}

// logCtx returns a context carrying the current connection lifecycle's
// correlation ID, for use by callbacks that have no request-scoped context
// of their own (wire callbacks, background monitors).
func (c *Client) logCtx() context.Context {
	c.corrMu.Lock()
	id := c.correlationID
	c.corrMu.Unlock()
	if id == "" {
		return context.Background()
	}
	return logger.WithCorrelationID(context.Background(), id)
}

func (c *Client) touch() {
	c.lastMsgMu.Lock()
	c.lastMsgAt = time.Now()
	c.lastMsgMu.Unlock()
}

// handleSubscriptionStatus reconstructs the single-symbol Channel a
// subscriptionStatus ack refers to (Kraken acks multi-pair subscribe
// requests one pair at a time) and forwards the verdict to the
// subscription manager.
func (c *Client) handleSubscriptionStatus(evt kraken.SubscriptionStatusEvent) {
	kind, depth, interval := kraken.SplitChannelName(evt.ChannelName)
	channel := domain.Channel{Kind: kind, Interval: interval, Depth: depth}
	if evt.Pair != "" {
		channel.Symbols = []domain.Symbol{domain.Normalize(evt.Pair)}
	}
	fp := channel.Fingerprint()

	switch evt.Status {
	case "subscribed", "unsubscribed":
		c.subs.HandleAck(fp, true, "")
	default:
		c.subs.HandleAck(fp, false, evt.ErrorMessage)
	}
}

// handleTransportStateChange translates a transport-level signal from kc
// into the connection lifecycle FSM's phase, re-running auth/subscribe on
// every reconnect since a fresh socket starts with no subscriptions.
func (c *Client) handleTransportStateChange(kc *kraken.Client, state wsconn.State, err error) {
	if kc != c.public {
		// The private transport's own reconnects are independent of the
		// primary FSM; failures there surface as ErrorEvent only.
		if state == wsconn.StateDisconnected || state == wsconn.StateReconnecting {
			if err != nil {
				c.disp.Dispatch(c.logCtx(), domain.ErrorEvent{Err: err}, "", "Error", false)
			}
		}
		return
	}

	c.fsmMu.Lock()
	defer c.fsmMu.Unlock()

	switch state {
	case wsconn.StateConnected:
		go c.onTransportUp()
	case wsconn.StateReconnecting, wsconn.StateDisconnected:
		if err != nil && strings.Contains(err.Error(), "max reconnects") {
			c.fsm.MaxRetriesReached()
		} else {
			c.fsm.TransportDropped(0, time.Time{})
		}
		c.emitState()
	case wsconn.StateClosed:
		c.fsm.UserClose()
		c.emitState()
	}
}

// onTransportUp runs the authenticate-then-subscribe choreography for a
// freshly (re)established transport: fetch a private token if credentials
// are configured, then restore every previously-active subscription.
func (c *Client) onTransportUp() {
	ctx, cancel := context.WithTimeout(c.logCtx(), c.cfg.Kraken.ConnectTimeout)
	defer cancel()

	c.fsmMu.Lock()
	hasCreds := c.cfg.Kraken.Credentials.Enabled()
	c.fsm.TransportEstablished(hasCreds)
	c.emitState()
	c.fsmMu.Unlock()

	if hasCreds {
		token, err := c.fetchToken(ctx)
		if err != nil {
			c.log.Error(ctx, "kraken auth failed", "error", err)
			c.fsmMu.Lock()
			c.fsm.AuthFailed()
			c.emitState()
			c.fsmMu.Unlock()
			return
		}
		c.public.SetCredentials(kraken.Credentials{Token: token})
		if c.private != nil {
			c.private.SetCredentials(kraken.Credentials{Token: token})
		}
		c.fsmMu.Lock()
		c.fsm.AuthAck()
		c.emitState()
		c.fsmMu.Unlock()
	}

	if err := c.subs.Restore(ctx); err != nil {
		c.log.Error(ctx, "subscription restore failed", "error", err)
		c.fsmMu.Lock()
		c.fsm.SubscriptionFailed(0, time.Time{})
		c.emitState()
		c.fsmMu.Unlock()
		return
	}

	c.fsmMu.Lock()
	c.fsm.AllSubscriptionsActive()
	c.emitState()
	c.fsmMu.Unlock()
}

// fetchToken exchanges credentials for a private-channel token, gated by
// the circuit breaker so a string of REST failures doesn't hammer Kraken
// on every reconnect.
func (c *Client) fetchToken(ctx context.Context) (string, error) {
	return c.breaker.Execute(func() (string, error) {
		return c.rest.GetWebSocketsToken(ctx)
	})
}

// emitState must be called with fsmMu held. It publishes the FSM's current
// value as a StateChangeEvent.
func (c *Client) emitState() {
	st := c.fsm.State()
	state := domain.ConnectionState{
		Phase:         domain.ConnectionPhase(st.Phase),
		RetryCount:    st.RetryCount,
		NextAttemptAt: st.NextAttemptAt,
	}
	switch {
	case st.CloseReason != "":
		state.Reason = domain.Reason(st.CloseReason)
	case st.DegradeReason != "":
		state.Reason = domain.Reason(st.DegradeReason)
	}
	c.disp.Dispatch(c.logCtx(), domain.StateChangeEvent{State: state}, "", "StateChange", false)
}

// restFallback is BookManager's hook, run as soon as a book goes
// Invalid/Resyncing while book.rest_fallback_after is positive (its length is
// not used as a delay): fetch a fresh snapshot over REST and feed it back
// through ApplySnapshot, same as a websocket snapshot would be.
func (c *Client) restFallback(symbol domain.Symbol, depth int) {
	ctx, cancel := context.WithTimeout(c.logCtx(), c.cfg.Kraken.ConnectTimeout)
	defer cancel()
	_, err := c.breaker.Execute(func() (string, error) {
		u, err := c.rest.FetchDepth(ctx, symbol, depth)
		if err != nil {
			return "", err
		}
		c.books.ApplySnapshot(symbol, depth, u)
		return "", nil
	})
	if err != nil {
		c.log.Warn(ctx, "rest depth fallback failed", "symbol", symbol, "error", err)
	}
}

// handleBookResync is BookManager's hook for a sequence gap beyond
// tolerance under the Resync policy: it drives the connection FSM into
// Resyncing (a no-op if another book already pushed it there) and forces a
// fresh snapshot by unsubscribing and re-subscribing the book channel, since
// Kraken only sends a snapshot on a new subscription.
func (c *Client) handleBookResync(symbol domain.Symbol, depth int) {
	c.fsmMu.Lock()
	c.resyncCount++
	if c.fsm.State().Phase == wsconn.PhaseSubscribed {
		c.fsm.GapDetected()
		c.emitState()
	}
	c.fsmMu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(c.logCtx(), c.cfg.Kraken.ConnectTimeout)
		defer cancel()
		channel := domain.Channel{Kind: domain.KindBook, Depth: depth, Symbols: []domain.Symbol{symbol}}
		if err := c.Unsubscribe(ctx, channel); err != nil {
			c.log.Warn(ctx, "resync unsubscribe failed", "symbol", symbol, "depth", depth, "error", err)
		}
		if err := c.Subscribe(ctx, channel); err != nil {
			c.log.Warn(ctx, "resync re-subscribe failed", "symbol", symbol, "depth", depth, "error", err)
		}
	}()
}

// handleBookResyncComplete is BookManager's hook for a fresh snapshot
// landing on a book that was Resyncing or Invalid. It returns the
// connection FSM to Subscribed once every book that pushed it into
// Resyncing has recovered.
func (c *Client) handleBookResyncComplete(symbol domain.Symbol, depth int) {
	c.fsmMu.Lock()
	defer c.fsmMu.Unlock()
	if c.resyncCount > 0 {
		c.resyncCount--
	}
	if c.resyncCount == 0 && c.fsm.State().Phase == wsconn.PhaseResyncing {
		c.fsm.ResyncComplete()
		c.emitState()
	}
}

// sendSubscribe is the wire-level callback shared by SubscriptionManager
// for both fresh Subscribe calls and Restore after a reconnect: it picks
// the public or private transport depending on the channel's kind.
func (c *Client) sendSubscribe(ctx context.Context, channel domain.Channel) error {
	if channel.IsPrivate() {
		if c.private == nil {
			return apperror.Unauthorized(apperror.CodeSubscriptionInvalidChannel, string(channel.Kind))
		}
		return c.private.Subscribe(ctx, channel)
	}
	return c.public.Subscribe(ctx, channel)
}

// Connect dials the public transport (and the private one, if credentials
// are configured) and starts the connection lifecycle. It returns once the
// initial dial succeeds; authentication and subscription restoration
// continue asynchronously and are observable via Events/State.
func (c *Client) Connect(ctx context.Context) error {
	connCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.corrMu.Lock()
	c.correlationID = uuid.NewString()
	c.corrMu.Unlock()
	connCtx = logger.WithCorrelationID(connCtx, c.correlationID)

	c.fsmMu.Lock()
	c.fsm.Connect()
	c.emitState()
	c.fsmMu.Unlock()

	if err := c.public.Connect(connCtx); err != nil {
		c.fsmMu.Lock()
		c.fsm.TransportFailed(0, time.Now().Add(c.backoff.Delay(0)))
		c.emitState()
		c.fsmMu.Unlock()
		return apperror.New(apperror.CodeConnectionTransportFailed, apperror.WithCause(err))
	}

	if c.private != nil {
		if err := c.private.Connect(connCtx); err != nil {
			c.log.Warn(connCtx, "private transport connect failed", "error", err)
		}
	}

	c.startHeartbeatMonitor()
	return nil
}

// startHeartbeatMonitor watches the time since the last inbound frame
// (data or heartbeat); once it exceeds kraken.heartbeat_timeout, the
// connection is presumed stale and force-closed so wsconn.Client's own
// reconnect logic takes over.
func (c *Client) startHeartbeatMonitor() {
	c.touch()
	interval := c.cfg.Kraken.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	timeout := c.cfg.Kraken.HeartbeatTimeout
	if timeout <= 0 {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			c.lastMsgMu.Lock()
			stale := time.Since(c.lastMsgAt) > timeout
			c.lastMsgMu.Unlock()
			if stale {
				c.log.Warn(c.logCtx(), "connection stale, forcing reconnect",
					"since_last_message", time.Since(c.lastMsgAt))
				c.public.Close()
			}
		}
	}()
}

// Subscribe requests channel. Multi-symbol channels are split into one
// single-symbol subscription per symbol so each gets its own ack from the
// exchange's per-pair subscriptionStatus frames, matching how
// SubscriptionManager fingerprints and tracks them.
func (c *Client) Subscribe(ctx context.Context, channel domain.Channel) error {
	hasCreds := c.cfg.Kraken.Credentials.Enabled()
	if len(channel.Symbols) == 0 {
		return c.subs.Subscribe(ctx, channel, hasCreds)
	}
	for _, symbol := range channel.Symbols {
		single := channel
		single.Symbols = []domain.Symbol{symbol}
		if err := c.subs.Subscribe(ctx, single, hasCreds); err != nil {
			return err
		}
	}
	return nil
}

// Unsubscribe requests channel be torn down, per-symbol as in Subscribe.
func (c *Client) Unsubscribe(ctx context.Context, channel domain.Channel) error {
	send := func(ch domain.Channel) error {
		if ch.IsPrivate() {
			if c.private == nil {
				return apperror.Unauthorized(apperror.CodeSubscriptionInvalidChannel, string(ch.Kind))
			}
			return c.private.Unsubscribe(ctx, ch)
		}
		return c.public.Unsubscribe(ctx, ch)
	}
	if len(channel.Symbols) == 0 {
		c.subs.Unsubscribe(channel)
		return send(channel)
	}
	for _, symbol := range channel.Symbols {
		single := channel
		single.Symbols = []domain.Symbol{symbol}
		c.subs.Unsubscribe(single)
		if err := send(single); err != nil {
			return err
		}
	}
	return nil
}

// Register adds fn as a listener for events whose kind matches (see
// domain.Kind2): "Ticker", "Trade", "OrderBook", "Ohlc", "StateChange",
// "SubscriptionAck", "SubscriptionFailed", "GapDetected", "Resync", "Error".
func (c *Client) Register(kind string, fn func(domain.Event)) ListenerHandle {
	return c.disp.Register(kind, fn)
}

// Unregister removes a listener added via Register.
func (c *Client) Unregister(handle ListenerHandle) { c.disp.Unregister(handle) }

// Events returns the unified, flow-controlled event stream. It closes when
// ctx is cancelled or the client is closed.
func (c *Client) Events(ctx context.Context) <-chan domain.Event {
	return c.disp.Stream(ctx)
}

// Book returns a point-in-time snapshot of the (symbol, depth) order book,
// or ok=false if no snapshot has arrived for it yet.
func (c *Client) Book(symbol domain.Symbol, depth int) (domain.BookSnapshot, bool) {
	b := c.books.Book(symbol, depth)
	if b == nil {
		return domain.BookSnapshot{}, false
	}
	return b.Snapshot(), true
}

// Subscriptions returns every tracked subscription and its current state.
func (c *Client) Subscriptions() []domain.Subscription {
	return c.subs.Snapshot()
}

// State returns the connection lifecycle's current value.
func (c *Client) State() domain.ConnectionState {
	c.fsmMu.Lock()
	defer c.fsmMu.Unlock()
	st := c.fsm.State()
	state := domain.ConnectionState{
		Phase:         domain.ConnectionPhase(st.Phase),
		RetryCount:    st.RetryCount,
		NextAttemptAt: st.NextAttemptAt,
	}
	if st.CloseReason != "" {
		state.Reason = domain.Reason(st.CloseReason)
	} else if st.DegradeReason != "" {
		state.Reason = domain.Reason(st.DegradeReason)
	}
	return state
}

// Close tears down both transports and the dispatch pipeline. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	var firstErr error
	if err := c.public.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if c.private != nil {
		if err := c.private.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	c.fsmMu.Lock()
	c.fsm.UserClose()
	c.emitState()
	c.fsmMu.Unlock()

	c.flow.Close()
	c.wg.Wait()
	return firstErr
}
