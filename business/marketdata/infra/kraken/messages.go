// Package kraken implements the wire codec and parsers for Kraken's v1
// public/private WebSocket API: the event-based envelopes (systemStatus,
// subscriptionStatus, heartbeat, ping/pong) and the array-framed data
// channels (ticker, trade, book-N, ohlc-N).
package kraken

import (
	"encoding/json"
	"fmt"

	"github.com/fd1az/krakenfeed/internal/apperror"
)

// Envelope is the minimal shape every event-based (non-array) inbound
// message shares: enough to dispatch on "event" before decoding the rest.
type Envelope struct {
	Event string `json:"event"`
}

// SystemStatusEvent announces the exchange's gateway status on connect.
type SystemStatusEvent struct {
	Event        string `json:"event"`
	Status       string `json:"status"`
	Version      string `json:"version"`
	ConnectionID uint64 `json:"connectionID"`
}

// SubscriptionStatusEvent acknowledges or rejects a subscribe/unsubscribe
// request.
type SubscriptionStatusEvent struct {
	Event        string          `json:"event"`
	ChannelID    int             `json:"channelID"`
	ChannelName  string          `json:"channelName"`
	Pair         string          `json:"pair"`
	Status       string          `json:"status"` // "subscribed" | "unsubscribed" | "error"
	Subscription json.RawMessage `json:"subscription"`
	ReqID        int64           `json:"reqid"`
	ErrorMessage string          `json:"errorMessage"`
}

// HeartbeatEvent is the liveness frame sent when no data is flowing.
type HeartbeatEvent struct {
	Event string `json:"event"`
}

// PongEvent answers an outbound Ping with the same reqid.
type PongEvent struct {
	Event string `json:"event"`
	ReqID int64  `json:"reqid"`
}

// SubscriptionParams names the channel and its optional depth/interval
// parameter for an outbound subscribe/unsubscribe request.
type SubscriptionParams struct {
	Name     string `json:"name"`
	Depth    int    `json:"depth,omitempty"`
	Interval int    `json:"interval,omitempty"`
	Token    string `json:"token,omitempty"` // private channels
}

// SubscribeRequest is the outbound subscribe/unsubscribe frame.
type SubscribeRequest struct {
	Event        string             `json:"event"` // "subscribe" | "unsubscribe"
	ReqID        int64              `json:"reqid,omitempty"`
	Pair         []string           `json:"pair,omitempty"`
	Subscription SubscriptionParams `json:"subscription"`
}

// PingRequest is the outbound liveness probe.
type PingRequest struct {
	Event string `json:"event"`
	ReqID int64  `json:"reqid"`
}

// TickerPayload is the data object of an array-framed ticker message: each
// field holds [value, ...] with exchange-specific secondary values (today
// vs 24h, whole-lot vs lot volume).
type TickerPayload struct {
	Ask    []string `json:"a"`
	Bid    []string `json:"b"`
	Close  []string `json:"c"`
	Volume []string `json:"v"`
	VWAP   []string `json:"p"`
	Trades []int64  `json:"t"`
	Low    []string `json:"l"`
	High   []string `json:"h"`
	Open   []string `json:"o"`
}

// TradeEntry is one row of an array-framed trade message:
// [price, volume, time, side, orderType, misc].
type TradeEntry [6]json.RawMessage

// BookLevelEntry is one row of a book snapshot/delta array: [price, volume, time].
type BookLevelEntry [3]json.RawMessage

// BookSnapshotPayload is the data object of a book-N snapshot message.
type BookSnapshotPayload struct {
	Asks []BookLevelEntry `json:"as"`
	Bids []BookLevelEntry `json:"bs"`
}

// BookDeltaPayload is the data object of a book-N delta message. Ask and
// Bid are independently optional; Checksum is present whenever the
// exchange wants the receiver to self-validate.
type BookDeltaPayload struct {
	Asks     []BookLevelEntry `json:"a,omitempty"`
	Bids     []BookLevelEntry `json:"b,omitempty"`
	Checksum string           `json:"c,omitempty"`
}

// OhlcEntry is one row of an array-framed ohlc-N message:
// [time, etime, open, high, low, close, vwap, volume, count].
type OhlcEntry [9]json.RawMessage

// ArrayMessage is a decoded array-framed data message: [channelID, payload,
// channelName, pair]. Private-channel array messages sometimes carry a
// trailing subscription-params object instead of a pair string; that shape
// is out of scope.
type ArrayMessage struct {
	ChannelID   int
	Payload     json.RawMessage
	ChannelName string
	Pair        string
}

// ParseArrayMessage decodes the heterogeneous-array framing shared by
// ticker/trade/book/ohlc/spread messages.
func ParseArrayMessage(raw []byte) (*ArrayMessage, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, apperror.New(apperror.CodeParseError, apperror.WithCause(err))
	}
	if len(arr) < 4 {
		return nil, apperror.New(apperror.CodeParseError,
			apperror.WithMessage(fmt.Sprintf("array message has %d elements, want >= 4", len(arr))))
	}

	var channelID int
	if err := json.Unmarshal(arr[0], &channelID); err != nil {
		return nil, apperror.New(apperror.CodeParseError, apperror.WithCause(err))
	}
	var channelName, pair string
	if err := json.Unmarshal(arr[len(arr)-2], &channelName); err != nil {
		return nil, apperror.New(apperror.CodeParseError, apperror.WithCause(err))
	}
	if err := json.Unmarshal(arr[len(arr)-1], &pair); err != nil {
		return nil, apperror.New(apperror.CodeParseError, apperror.WithCause(err))
	}

	return &ArrayMessage{
		ChannelID:   channelID,
		Payload:     arr[1],
		ChannelName: channelName,
		Pair:        pair,
	}, nil
}
