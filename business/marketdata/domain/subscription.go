package domain

import "time"

// SubState is the lifecycle state of a Subscription record.
type SubState string

const (
	SubPending       SubState = "Pending"
	SubActive        SubState = "Active"
	SubFailed        SubState = "Failed"
	SubUnsubscribing SubState = "Unsubscribing"
)

// Subscription tracks one outstanding channel request end to end.
type Subscription struct {
	Channel     Channel
	State       SubState
	RequestedAt time.Time
	ConfirmedAt time.Time
	LastError   error
}
