package wsconn

import "time"

// Phase is one of the eight states the connection lifecycle
// moves through. It layers on top of Client's transport-level State
// (disconnected/connecting/connected/reconnecting/closed): Phase also
// tracks the authentication and subscription choreography that happens
// once the transport socket is up, which Client itself knows nothing about.
type Phase string

const (
	PhaseDisconnected   Phase = "Disconnected"
	PhaseConnecting     Phase = "Connecting"
	PhaseAuthenticating Phase = "Authenticating"
	PhaseSubscribing    Phase = "Subscribing"
	PhaseSubscribed     Phase = "Subscribed"
	PhaseResyncing      Phase = "Resyncing"
	PhaseDegraded       Phase = "Degraded"
	PhaseClosed         Phase = "Closed"
)

// CloseReason names why a Closed phase was entered.
type CloseReason string

const (
	CloseUserRequested CloseReason = "UserRequested"
	CloseAuthRejected  CloseReason = "AuthRejected"
	CloseMaxRetries    CloseReason = "MaxRetriesReached"
)

// FSMState is the value the connection machine publishes on every
// transition: the phase plus the extra fields Degraded and
// Closed carry.
type FSMState struct {
	Phase         Phase
	CloseReason   CloseReason
	DegradeReason string
	RetryCount    int
	NextAttemptAt time.Time
}

// FSM records the transitions of the connection lifecycle table; each method
// moves to its target phase without checking the current one. It owns
// neither the socket nor timers - the orchestrator in
// business/marketdata/app drives those and calls the matching method here
// on each observed event.
type FSM struct {
	state FSMState
}

// NewFSM starts in Disconnected.
func NewFSM() *FSM {
	return &FSM{state: FSMState{Phase: PhaseDisconnected}}
}

// State returns the current value.
func (f *FSM) State() FSMState { return f.state }

// Connect: {Disconnected, Closed{_}} -(connect())-> Connecting, resetting retry_count.
func (f *FSM) Connect() {
	f.state = FSMState{Phase: PhaseConnecting}
}

// TransportEstablished: Connecting -> Authenticating (credentials present)
// or Subscribing.
func (f *FSM) TransportEstablished(hasCredentials bool) {
	if hasCredentials {
		f.state = FSMState{Phase: PhaseAuthenticating}
	} else {
		f.state = FSMState{Phase: PhaseSubscribing}
	}
}

// TransportFailed: Connecting -> Degraded.
func (f *FSM) TransportFailed(retryCount int, nextAttemptAt time.Time) {
	f.state = FSMState{Phase: PhaseDegraded, DegradeReason: "TransportFailed", RetryCount: retryCount, NextAttemptAt: nextAttemptAt}
}

// AuthAck: Authenticating -> Subscribing.
func (f *FSM) AuthAck() {
	f.state = FSMState{Phase: PhaseSubscribing}
}

// AuthFailed: Authenticating -> Closed{AuthRejected}. Terminal, no retry.
func (f *FSM) AuthFailed() {
	f.state = FSMState{Phase: PhaseClosed, CloseReason: CloseAuthRejected}
}

// AllSubscriptionsActive: Subscribing -> Subscribed.
func (f *FSM) AllSubscriptionsActive() {
	f.state = FSMState{Phase: PhaseSubscribed}
}

// SubscriptionFailed: Subscribing -> Degraded (retry the whole cycle unless
// the failure is permanent per-channel, a decision the subscription
// manager makes, not the FSM).
func (f *FSM) SubscriptionFailed(retryCount int, nextAttemptAt time.Time) {
	f.state = FSMState{Phase: PhaseDegraded, DegradeReason: "SubscribeFailed", RetryCount: retryCount, NextAttemptAt: nextAttemptAt}
}

// GapDetected: Subscribed -> Resyncing. Only called when the gap policy is
// Resync; Ignore/Buffer policies never drive this transition.
func (f *FSM) GapDetected() {
	f.state = FSMState{Phase: PhaseResyncing}
}

// TransportDropped: Subscribed -> Degraded.
func (f *FSM) TransportDropped(retryCount int, nextAttemptAt time.Time) {
	f.state = FSMState{Phase: PhaseDegraded, DegradeReason: "TransportDropped", RetryCount: retryCount, NextAttemptAt: nextAttemptAt}
}

// UserClose: Subscribed -> Closed{UserRequested}.
func (f *FSM) UserClose() {
	f.state = FSMState{Phase: PhaseClosed, CloseReason: CloseUserRequested}
}

// ResyncComplete: Resyncing -> Subscribed, once a fresh snapshot has
// arrived for every book that was Invalid.
func (f *FSM) ResyncComplete() {
	f.state = FSMState{Phase: PhaseSubscribed}
}

// BackoffFired: Degraded -> Connecting.
func (f *FSM) BackoffFired() {
	f.state = FSMState{Phase: PhaseConnecting}
}

// MaxRetriesReached: Degraded -> Closed{MaxRetriesReached}.
func (f *FSM) MaxRetriesReached() {
	f.state = FSMState{Phase: PhaseClosed, CloseReason: CloseMaxRetries}
}
