package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/fd1az/krakenfeed/business/marketdata/domain"
	"github.com/fd1az/krakenfeed/internal/logger"
)

// ListenerHandle is the opaque token returned at registration; passing it
// to Unregister guarantees no further invocations for that listener, even
// one already scheduled on another goroutine.
type ListenerHandle uint64

type listener struct {
	handle ListenerHandle
	fn     func(domain.Event)
	active bool
}

// Dispatcher fans typed events out to registered callbacks, in registration
// order, isolating one listener's panic or error from the rest, and also
// feeds a single unified stream for consumers that want one ordered
// channel of every event instead of per-kind callbacks.
type Dispatcher struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[string][]*listener
	byHandle  map[ListenerHandle]*listener
	log       logger.LoggerInterface
	flow      *FlowControl
}

// NewDispatcher builds a Dispatcher backed by flow for the unified stream's
// backpressure.
func NewDispatcher(flow *FlowControl, log logger.LoggerInterface) *Dispatcher {
	return &Dispatcher{
		listeners: make(map[string][]*listener),
		byHandle:  make(map[ListenerHandle]*listener),
		log:       log,
		flow:      flow,
	}
}

// Register adds fn as a listener for events whose Kind2 equals kind.
func (d *Dispatcher) Register(kind string, fn func(domain.Event)) ListenerHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	l := &listener{handle: ListenerHandle(d.nextID), fn: fn, active: true}
	d.listeners[kind] = append(d.listeners[kind], l)
	d.byHandle[l.handle] = l
	return l.handle
}

// Unregister deactivates a listener; already-scheduled invocations for it
// check active and become no-ops.
func (d *Dispatcher) Unregister(handle ListenerHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.byHandle[handle]; ok {
		l.active = false
		delete(d.byHandle, handle)
	}
}

// Dispatch delivers ev to every listener registered for ev's kind, in
// registration order, then offers it to the unified stream's flow
// controller. symbol/coalesceKind/coalescible describe how the flow
// controller should treat the event under backpressure.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.Event, symbol domain.Symbol, coalesceKind string, coalescible bool) {
	kind := domain.Kind2(ev)

	d.mu.RLock()
	ls := append([]*listener(nil), d.listeners[kind]...)
	d.mu.RUnlock()

	for _, l := range ls {
		d.invoke(l, ev)
	}

	if d.flow != nil {
		if err := d.flow.Offer(ctx, symbol, coalesceKind, coalescible, ev); err != nil && d.log != nil {
			d.log.Warn(ctx, "dispatcher: unified stream offer failed", "error", err)
		}
	}
}

// invoke calls one listener, isolating a panic or the listener simply not
// being active any more.
func (d *Dispatcher) invoke(l *listener, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil && d.log != nil {
			d.log.Error(context.Background(), "dispatcher: listener panicked",
				"panic", fmt.Sprintf("%v", r), "eventKind", domain.Kind2(ev))
		}
	}()
	d.mu.RLock()
	active := l.active
	d.mu.RUnlock()
	if !active {
		return
	}
	l.fn(ev)
}

// Stream drains the unified stream. It blocks until ctx is cancelled or the
// underlying FlowControl is closed.
func (d *Dispatcher) Stream(ctx context.Context) <-chan domain.Event {
	out := make(chan domain.Event)
	go func() {
		defer close(out)
		for {
			ev, ok := d.flow.Dequeue(ctx)
			if !ok {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
