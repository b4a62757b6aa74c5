package domain

import "time"

// ConnectionPhase is one of the eight states the connection lifecycle state
// machine moves through.
type ConnectionPhase string

const (
	PhaseDisconnected   ConnectionPhase = "Disconnected"
	PhaseConnecting     ConnectionPhase = "Connecting"
	PhaseAuthenticating ConnectionPhase = "Authenticating"
	PhaseSubscribing    ConnectionPhase = "Subscribing"
	PhaseSubscribed     ConnectionPhase = "Subscribed"
	PhaseResyncing      ConnectionPhase = "Resyncing"
	PhaseDegraded       ConnectionPhase = "Degraded"
	PhaseClosed         ConnectionPhase = "Closed"
)

// CloseReason/DegradeReason name why a Closed or Degraded state was entered.
type Reason string

const (
	ReasonUserRequested    Reason = "UserRequested"
	ReasonAuthRejected     Reason = "AuthRejected"
	ReasonMaxRetries       Reason = "MaxRetriesReached"
	ReasonTransportFailed  Reason = "TransportFailed"
	ReasonTransportDropped Reason = "TransportDropped"
	ReasonSubscribeFailed  Reason = "SubscribeFailed"
	ReasonStale            Reason = "ConnectionStale"
)

// ConnectionState is the value carried by StateChangeEvent: the current
// phase plus the extra fields Degraded and Closed attach.
type ConnectionState struct {
	Phase         ConnectionPhase
	Reason        Reason
	RetryCount    int
	NextAttemptAt time.Time
}
