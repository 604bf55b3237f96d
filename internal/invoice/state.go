package invoice

import (
	"fmt"
)

// State is the lifecycle state of an invoice.
//
// States only move forward: draft -> sent -> approved|rejected.
// A later authority response may re-assert a final verdict but never moves an invoice
// back to sent or draft.
type State string

const (
	StateDraft    State = "draft"
	StateSent     State = "sent"
	StateApproved State = "approved"
	StateRejected State = "rejected"
)

func (s State) rank() int {
	switch s {
	case StateDraft:
		return 0
	case StateSent:
		return 1
	case StateApproved, StateRejected:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool { return s.rank() >= 0 }

// Final reports whether the authority has issued a verdict.
func (s State) Final() bool { return s == StateApproved || s == StateRejected }

// Advance returns the state after moving to next.
// Moving to an earlier state is refused.
func (s State) Advance(next State) (State, error) {
	if !s.Valid() {
		return s, fmt.Errorf("unknown current state %q", s)
	}
	if !next.Valid() {
		return s, fmt.Errorf("unknown target state %q", next)
	}
	if next.rank() < s.rank() {
		return s, fmt.Errorf("invoice state cannot move from %s back to %s", s, next)
	}
	return next, nil
}

// ParseState converts a stored value into a State.
func ParseState(v string) (State, error) {
	s := State(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown invoice state %q", v)
	}
	return s, nil
}
