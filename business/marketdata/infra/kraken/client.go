// Package kraken implements the wire codec and parsers for Kraken's v1
// public/private WebSocket API, and the transport adapter that drives
// internal/wsconn.Client against it.
package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fd1az/krakenfeed/business/marketdata/domain"
	"github.com/fd1az/krakenfeed/internal/apperror"
	"github.com/fd1az/krakenfeed/internal/logger"
	"github.com/fd1az/krakenfeed/internal/wsconn"
)

// Credentials carries the private-channel auth token. Kraken's v1 socket
// never sees the API key/secret directly: those are exchanged for a
// short-lived token over REST (business/marketdata/infra/kraken's
// http_client.go), and only the token travels over the wire.
type Credentials struct {
	Token string
}

// Enabled reports whether private channels can be subscribed to.
func (c Credentials) Enabled() bool { return c.Token != "" }

// SetCredentials installs the private-channel auth token. Safe to call before
// Connect or after a reconnect, once a fresh token has been fetched over
// REST; subsequent Subscribe calls for private channels pick it up.
func (c *Client) SetCredentials(creds Credentials) { c.creds = creds }

// Client adapts a wsconn.Client to Kraken's message shapes: it builds
// subscribe/unsubscribe/ping frames, demultiplexes inbound frames by their
// "event" tag or array-channel-name, and hands already-parsed domain values
// to whichever callback fits. It does not apply book updates, track
// sequence numbers against a policy, or maintain subscription state -
// those belong to the orchestrator in business/marketdata/app, which is the
// only thing that knows enough to drive the connection's full lifecycle.
type Client struct {
	ws     *wsconn.Client
	log    logger.LoggerInterface
	creds  Credentials
	reqID  atomic.Int64
	seqMu  sync.Mutex
	seqCtr map[seqKey]uint64

	onTicker       func(domain.TickerSample)
	onTrades       func([]domain.TradeSample)
	onOhlc         func(domain.OhlcBar)
	onBookSnapshot func(symbol domain.Symbol, depth int, update domain.SnapshotUpdate)
	onBookDelta    func(symbol domain.Symbol, depth int, update domain.DeltaUpdate)
	onSubStatus    func(event SubscriptionStatusEvent)
	onSystemStatus func(event SystemStatusEvent)
	onParseError   func(error)
}

type seqKey struct {
	symbol domain.Symbol
	kind   domain.Kind
	depth  int
}

// New builds a Client around a fresh wsconn.Client dialing url.
func New(url, name string, creds Credentials, log logger.LoggerInterface) (*Client, error) {
	wsCfg := wsconn.DefaultConfig(url, name)
	ws, err := wsconn.New(wsCfg)
	if err != nil {
		return nil, apperror.New(apperror.CodeConnectionTransportFailed, apperror.WithCause(err))
	}
	c := &Client{
		ws:     ws,
		log:    log,
		creds:  creds,
		seqCtr: make(map[seqKey]uint64),
	}
	ws.OnMessage(c.handleMessage)
	return c, nil
}

// OnTicker registers the ticker sink. Not safe to call after Connect.
func (c *Client) OnTicker(fn func(domain.TickerSample)) { c.onTicker = fn }

// OnTrades registers the trade sink.
func (c *Client) OnTrades(fn func([]domain.TradeSample)) { c.onTrades = fn }

// OnOhlc registers the ohlc sink.
func (c *Client) OnOhlc(fn func(domain.OhlcBar)) { c.onOhlc = fn }

// OnBookSnapshot registers the book-snapshot sink. depth is the
// subscription's requested depth, carried because Kraken's channel name
// (book-10, book-25, ...) is the only place it appears on the wire.
func (c *Client) OnBookSnapshot(fn func(symbol domain.Symbol, depth int, update domain.SnapshotUpdate)) {
	c.onBookSnapshot = fn
}

// OnBookDelta registers the book-delta sink.
func (c *Client) OnBookDelta(fn func(symbol domain.Symbol, depth int, update domain.DeltaUpdate)) {
	c.onBookDelta = fn
}

// OnSubscriptionStatus registers the subscribe/unsubscribe ack sink.
func (c *Client) OnSubscriptionStatus(fn func(SubscriptionStatusEvent)) { c.onSubStatus = fn }

// OnSystemStatus registers the gateway status sink.
func (c *Client) OnSystemStatus(fn func(SystemStatusEvent)) { c.onSystemStatus = fn }

// OnParseError registers a sink for frames that failed to decode; the
// connection stays up, only the one bad frame is dropped.
func (c *Client) OnParseError(fn func(error)) { c.onParseError = fn }

// OnTransportStateChange forwards the underlying transport's state machine
// verbatim; the orchestrator combines it with auth/subscribe progress to
// drive the richer wsconn.FSM.
func (c *Client) OnTransportStateChange(fn func(wsconn.State, error)) {
	c.ws.OnStateChange(fn)
}

// Connect dials the socket once (Connect, not ConnectWithRetry). After a
// dropped connection wsconn.Client reconnects on its own; the orchestrator
// re-runs auth/subscribe when the transport reports StateConnected again.
func (c *Client) Connect(ctx context.Context) error {
	return c.ws.Connect(ctx)
}

// Close tears down the socket.
func (c *Client) Close() error { return c.ws.Close() }

// State reports the transport's current state.
func (c *Client) State() wsconn.State { return c.ws.State() }

// nextReqID returns a monotonically increasing request id to correlate
// subscribe/unsubscribe/ping requests with their acks.
func (c *Client) nextReqID() int64 { return c.reqID.Add(1) }

// Subscribe sends a subscribe request for channel. For private channels the
// request carries the auth token installed via SetCredentials; public
// channels are sent without one.
func (c *Client) Subscribe(ctx context.Context, channel domain.Channel) error {
	req := SubscribeRequest{
		Event:        "subscribe",
		ReqID:        c.nextReqID(),
		Pair:         symbolStrings(channel.Symbols),
		Subscription: subscriptionParams(channel, c.creds),
	}
	return c.ws.SendJSON(ctx, req)
}

// Unsubscribe sends an unsubscribe request for channel.
func (c *Client) Unsubscribe(ctx context.Context, channel domain.Channel) error {
	req := SubscribeRequest{
		Event:        "unsubscribe",
		ReqID:        c.nextReqID(),
		Pair:         symbolStrings(channel.Symbols),
		Subscription: subscriptionParams(channel, c.creds),
	}
	return c.ws.SendJSON(ctx, req)
}

// Ping sends a liveness probe; the exchange answers with a pong envelope
// carrying the same reqid.
func (c *Client) Ping(ctx context.Context) error {
	return c.ws.SendJSON(ctx, PingRequest{Event: "ping", ReqID: c.nextReqID()})
}

func symbolStrings(symbols []domain.Symbol) []string {
	out := make([]string, len(symbols))
	for i, s := range symbols {
		out[i] = string(s)
	}
	return out
}

func subscriptionParams(channel domain.Channel, creds Credentials) SubscriptionParams {
	p := SubscriptionParams{Name: string(channel.Kind)}
	if channel.Kind == domain.KindBook {
		p.Depth = channel.Depth
	}
	if channel.Kind == domain.KindOhlc {
		p.Interval = channel.Interval
	}
	if channel.IsPrivate() {
		p.Token = creds.Token
	}
	return p
}

// handleMessage is the wsconn.MessageHandler: it runs on every inbound
// frame, event-tagged or array-framed, and fans out to whichever typed
// sink applies.
func (c *Client) handleMessage(ctx context.Context, raw []byte) {
	trimmed := strings.TrimLeft(string(raw), " \t\r\n")
	if strings.HasPrefix(trimmed, "[") {
		c.handleArrayMessage(raw)
		return
	}
	c.handleEventMessage(raw)
}

func (c *Client) handleEventMessage(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.reportParseErr(err)
		return
	}
	switch env.Event {
	case "systemStatus":
		var e SystemStatusEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			c.reportParseErr(err)
			return
		}
		if c.onSystemStatus != nil {
			c.onSystemStatus(e)
		}
	case "subscriptionStatus":
		var e SubscriptionStatusEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			c.reportParseErr(err)
			return
		}
		if c.onSubStatus != nil {
			c.onSubStatus(e)
		}
	case "heartbeat", "pong":
		// liveness only; nothing to dispatch.
	default:
		c.reportParseErr(apperror.New(apperror.CodeParseError,
			apperror.WithMessage(fmt.Sprintf("unrecognized event %q", env.Event))))
	}
}

func (c *Client) handleArrayMessage(raw []byte) {
	msg, err := ParseArrayMessage(raw)
	if err != nil {
		c.reportParseErr(err)
		return
	}
	symbol := domain.Normalize(msg.Pair)
	kind, depth, interval := SplitChannelName(msg.ChannelName)

	switch kind {
	case domain.KindTicker:
		sample, err := ParseTicker(symbol, msg.Payload)
		if err != nil {
			c.reportParseErr(err)
			return
		}
		if c.onTicker != nil {
			c.onTicker(sample)
		}
	case domain.KindTrade:
		trades, err := ParseTrades(symbol, msg.Payload)
		if err != nil {
			c.reportParseErr(err)
			return
		}
		if c.onTrades != nil {
			c.onTrades(trades)
		}
	case domain.KindOhlc:
		bar, err := ParseOhlc(symbol, msg.Payload, interval)
		if err != nil {
			c.reportParseErr(err)
			return
		}
		if c.onOhlc != nil {
			c.onOhlc(bar)
		}
	case domain.KindBook:
		c.handleBookMessage(symbol, depth, msg.Payload)
	default:
		// spread and any other channel kinds are parsed on demand by callers
		// that need them; silently ignoring an unsubscribed channel name
		// here would hide a real bug, so this is reported.
		c.reportParseErr(apperror.New(apperror.CodeParseError,
			apperror.WithMessage("unrecognized channel name: "+msg.ChannelName)))
	}
}

// handleBookMessage tells a snapshot from a delta by payload shape: a
// snapshot carries "as"/"bs", a delta carries "a"/"b"/"c". It then assigns
// the next local sequence number for this (symbol, depth) stream - Kraken's
// book channel carries no numeric sequence of its own (see DESIGN.md).
func (c *Client) handleBookMessage(symbol domain.Symbol, depth int, payload json.RawMessage) {
	var probe struct {
		As json.RawMessage `json:"as"`
		Bs json.RawMessage `json:"bs"`
	}
	_ = json.Unmarshal(payload, &probe)
	key := seqKey{symbol: symbol, kind: domain.KindBook, depth: depth}

	if probe.As != nil || probe.Bs != nil {
		seq := c.resetSeq(key)
		update, err := ParseBookSnapshot(payload, seq)
		if err != nil {
			c.reportParseErr(err)
			return
		}
		if c.onBookSnapshot != nil {
			c.onBookSnapshot(symbol, depth, update)
		}
		return
	}

	seq := c.nextSeq(key)
	update, err := ParseBookDelta(payload, seq)
	if err != nil {
		c.reportParseErr(err)
		return
	}
	if c.onBookDelta != nil {
		c.onBookDelta(symbol, depth, update)
	}
}

func (c *Client) resetSeq(key seqKey) uint64 {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	c.seqCtr[key] = 1
	return 1
}

func (c *Client) nextSeq(key seqKey) uint64 {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	c.seqCtr[key]++
	return c.seqCtr[key]
}

func (c *Client) reportParseErr(err error) {
	if c.onParseError != nil {
		c.onParseError(err)
	}
}

// SplitChannelName splits Kraken's channel-name strings ("book-25",
// "ohlc-5", "ticker", "trade") into the base kind plus its numeric
// parameter.
func SplitChannelName(name string) (kind domain.Kind, depth, interval int) {
	base, param, hasParam := strings.Cut(name, "-")
	k := domain.Kind(base)
	if !hasParam {
		return k, 0, 0
	}
	n, err := strconv.Atoi(param)
	if err != nil {
		return k, 0, 0
	}
	if k == domain.KindBook {
		return k, n, 0
	}
	if k == domain.KindOhlc {
		return k, 0, n
	}
	return k, 0, 0
}
