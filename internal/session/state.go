package session

import "github.com/pkg/errors"

// ErrInvalidTransition is returned when a state change is not in the table.
var ErrInvalidTransition = errors.New("invalid state transition")

// State is a session's lifecycle position.
type State string

const (
	StateCreated              State = "created"
	StateAwaitingCounterparty State = "awaiting_counterparty"
	StateActive               State = "active"
	StatePaused               State = "paused"
	StateEnded                State = "ended"
)

// Outcome is how a session finished.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// transitions lists every permitted move. Ended has no exits.
var transitions = map[State][]State{
	StateCreated:              {StateAwaitingCounterparty, StatePaused, StateEnded},
	StateAwaitingCounterparty: {StateActive, StatePaused, StateEnded},
	StateActive:               {StatePaused, StateEnded},
	StatePaused:               {StateCreated, StateAwaitingCounterparty, StateActive, StateEnded},
	StateEnded:                nil,
}

// CanTransition reports whether from → to is permitted.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool { return len(transitions[s]) == 0 }
