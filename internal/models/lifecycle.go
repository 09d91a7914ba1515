package models

import (
	"context"

	"github.com/looplab/fsm"
)

type TransactionStatus string

const (
	TransactionStarted    TransactionStatus = "Started"
	TransactionInProgress TransactionStatus = "InProgress"
	TransactionCompleted  TransactionStatus = "Completed"
	TransactionCancelled  TransactionStatus = "Cancelled"
)

// Lifecycle events. Cancelled is a valid stored status but no event of this
// system produces it.
const (
	EventMeter = "meter"
	EventStop  = "stop"
)

var transactionEvents = fsm.Events{
	{Name: EventMeter, Src: []string{string(TransactionStarted), string(TransactionInProgress)}, Dst: string(TransactionInProgress)},
	{Name: EventStop, Src: []string{string(TransactionStarted), string(TransactionInProgress)}, Dst: string(TransactionCompleted)},
}

func newLifecycle(from TransactionStatus) *fsm.FSM {
	return fsm.NewFSM(string(from), transactionEvents, fsm.Callbacks{})
}

// CanTransition reports whether event is allowed from status.
func CanTransition(from TransactionStatus, event string) bool {
	return newLifecycle(from).Can(event)
}

// Transition returns the status reached by firing event from status. A
// self-transition (meter while InProgress) is not an error.
func Transition(from TransactionStatus, event string) (TransactionStatus, error) {
	f := newLifecycle(from)
	if err := f.Event(context.Background(), event); err != nil {
		if _, ok := err.(fsm.NoTransitionError); ok {
			return from, nil
		}
		return from, err
	}
	return TransactionStatus(f.Current()), nil
}

// SourceStatuses lists the statuses from which event may fire.
func SourceStatuses(event string) []string {
	for _, e := range transactionEvents {
		if e.Name == event {
			out := make([]string, len(e.Src))
			copy(out, e.Src)
			return out
		}
	}
	return nil
}

// Terminal reports whether no further lifecycle event is possible.
func (s TransactionStatus) Terminal() bool {
	return s == TransactionCompleted || s == TransactionCancelled
}
