package app

import (
	"context"
	"sync"
	"time"

	"github.com/fd1az/krakenfeed/business/marketdata/domain"
	"github.com/fd1az/krakenfeed/internal/apperror"
)

// ackWaiter is signalled once when the channel's ack (or timeout) resolves.
type ackWaiter struct {
	done chan struct{}
	err  error
}

// SubscriptionManager tracks every channel the caller has asked for,
// fingerprint-keyed so re-subscribing an already-active channel is a
// no-op, and restores every Active subscription after a reconnect.
type SubscriptionManager struct {
	mu            sync.Mutex
	subs          map[string]*domain.Subscription
	waiters       map[string]*ackWaiter
	ackTimeout    time.Duration
	sendSubscribe func(ctx context.Context, ch domain.Channel) error
	onEvent       func(domain.Event)
}

// NewSubscriptionManager builds a manager. send is the transport call used
// both for fresh subscribes and for restoring subscriptions after a
// reconnect.
func NewSubscriptionManager(ackTimeout time.Duration, send func(ctx context.Context, ch domain.Channel) error) *SubscriptionManager {
	return &SubscriptionManager{
		subs:          make(map[string]*domain.Subscription),
		waiters:       make(map[string]*ackWaiter),
		ackTimeout:    ackTimeout,
		sendSubscribe: send,
	}
}

// OnEvent registers the sink for SubscriptionAckEvent/SubscriptionFailedEvent.
func (m *SubscriptionManager) OnEvent(fn func(domain.Event)) { m.onEvent = fn }

// Subscribe records channel as Pending, sends the wire request, and blocks
// until the exchange acks/rejects it or ackTimeout elapses. Subscribing an
// already-Active channel with the same fingerprint is a no-op.
func (m *SubscriptionManager) Subscribe(ctx context.Context, channel domain.Channel, hasCredentials bool) error {
	if err := channel.Validate(hasCredentials); err != nil {
		return err
	}
	fp := channel.Fingerprint()

	m.mu.Lock()
	if existing, ok := m.subs[fp]; ok && existing.State == domain.SubActive {
		m.mu.Unlock()
		return nil
	}
	sub := &domain.Subscription{Channel: channel, State: domain.SubPending, RequestedAt: time.Now()}
	m.subs[fp] = sub
	waiter := &ackWaiter{done: make(chan struct{})}
	m.waiters[fp] = waiter
	m.mu.Unlock()

	if err := m.sendSubscribe(ctx, channel); err != nil {
		return err
	}

	select {
	case <-waiter.done:
		return waiter.err
	case <-time.After(m.ackTimeout):
		m.mu.Lock()
		delete(m.waiters, fp)
		sub.State = domain.SubFailed
		sub.LastError = apperror.New(apperror.CodeSubscriptionTimeout, apperror.WithContext(fp))
		m.mu.Unlock()
		return sub.LastError
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unsubscribe marks channel as Unsubscribing; the caller still has to send
// the wire frame via the transport.
func (m *SubscriptionManager) Unsubscribe(channel domain.Channel) {
	fp := channel.Fingerprint()
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.subs[fp]; ok {
		sub.State = domain.SubUnsubscribing
	}
}

// HandleAck applies an exchange ack/reject for the channel identified by
// fingerprint, waking any Subscribe call waiting on it.
func (m *SubscriptionManager) HandleAck(fingerprint string, accepted bool, reason string) {
	m.mu.Lock()
	sub, ok := m.subs[fingerprint]
	waiter := m.waiters[fingerprint]
	delete(m.waiters, fingerprint)
	if ok && accepted && sub.State == domain.SubUnsubscribing {
		delete(m.subs, fingerprint)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	if accepted {
		sub.State = domain.SubActive
		sub.ConfirmedAt = time.Now()
		if m.onEvent != nil {
			m.onEvent(domain.SubscriptionAckEvent{Channel: sub.Channel})
		}
	} else {
		sub.State = domain.SubFailed
		sub.LastError = apperror.New(apperror.CodeSubscriptionRejected, apperror.WithMessage(reason))
		if m.onEvent != nil {
			m.onEvent(domain.SubscriptionFailedEvent{Channel: sub.Channel, Reason: reason})
		}
	}

	if waiter != nil {
		if !accepted {
			waiter.err = sub.LastError
		}
		close(waiter.done)
	}
}

// Active returns every currently Active subscription's channel, in no
// particular order.
func (m *SubscriptionManager) Active() []domain.Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Channel, 0, len(m.subs))
	for _, sub := range m.subs {
		if sub.State == domain.SubActive {
			out = append(out, sub.Channel)
		}
	}
	return out
}

// Restore re-sends every Active subscription's request, marking it Pending
// again - called once per reconnect, after the transport is back up (and
// authenticated, for private channels).
func (m *SubscriptionManager) Restore(ctx context.Context) error {
	for _, channel := range m.Active() {
		fp := channel.Fingerprint()
		m.mu.Lock()
		sub := m.subs[fp]
		sub.State = domain.SubPending
		sub.RequestedAt = time.Now()
		m.mu.Unlock()

		if err := m.sendSubscribe(ctx, channel); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns a copy of every tracked subscription, for introspection.
func (m *SubscriptionManager) Snapshot() []domain.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		out = append(out, *sub)
	}
	return out
}
