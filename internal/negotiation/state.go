// Package negotiation holds the offer turn-taking rules. It has no storage or I/O dependencies.
package negotiation

import (
	"errors"
	"fmt"
)

// Status is the negotiation status of an offer.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCountered Status = "countered"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
)

// IsTerminal reports whether no further negotiation is possible.
func (s Status) IsTerminal() bool {
	return s == StatusAccepted || s == StatusDeclined
}

// IsLive reports whether the offer is still under negotiation.
func (s Status) IsLive() bool {
	return s == StatusPending || s == StatusCountered
}

// Role is the side a user plays in an offer.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// Other returns the opposite role.
func (r Role) Other() Role {
	if r == RoleBuyer {
		return RoleSeller
	}
	return RoleBuyer
}

// Action is a negotiation step. ActionOffer only opens a thread.
type Action string

const (
	ActionOffer   Action = "offer"
	ActionCounter Action = "counter"
	ActionAccept  Action = "accept"
	ActionDecline Action = "decline"
)

// ParseAction validates a client supplied action. Opening an offer is not a response.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionCounter, ActionAccept, ActionDecline:
		return a, nil
	}
	return "", fmt.Errorf("invalid action %q", s)
}

// State is the part of an offer the turn rules look at. The zero State is "no offer yet".
type State struct {
	Status       Status
	LastActionBy Role
}

var (
	// ErrInvalidTransition is returned for an action that is not legal in the current state or turn.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNoop is returned when accept or decline is repeated on an offer already in that state.
	ErrNoop = errors.New("no-op transition")
)

// Transition applies action by actor to state and returns the next state.
//
//	state                      actor   accept     decline    counter
//	pending,   last=buyer      seller  accepted   declined   countered (last=seller)
//	countered, last=seller     buyer   accepted   declined   pending   (last=buyer)
//
// Every other combination is ErrInvalidTransition, except a repeated accept or decline (ErrNoop).
// On success LastActionBy is always the actor.
func Transition(state State, actor Role, action Action) (State, error) {
	if actor != RoleBuyer && actor != RoleSeller {
		return state, fmt.Errorf("%w: unknown actor %q", ErrInvalidTransition, actor)
	}

	if action == ActionOffer {
		if state != (State{}) || actor != RoleBuyer {
			return state, fmt.Errorf("%w: only a buyer can open an offer", ErrInvalidTransition)
		}
		return State{Status: StatusPending, LastActionBy: RoleBuyer}, nil
	}

	switch {
	case action == ActionAccept && state.Status == StatusAccepted:
		return state, ErrNoop
	case action == ActionDecline && state.Status == StatusDeclined:
		return state, ErrNoop
	}

	if !awaiting(state, actor) {
		return state, stageError(state, action)
	}

	switch action {
	case ActionAccept:
		return State{Status: StatusAccepted, LastActionBy: actor}, nil
	case ActionDecline:
		return State{Status: StatusDeclined, LastActionBy: actor}, nil
	case ActionCounter:
		if actor == RoleSeller {
			return State{Status: StatusCountered, LastActionBy: RoleSeller}, nil
		}
		return State{Status: StatusPending, LastActionBy: RoleBuyer}, nil
	}
	return state, fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
}

// NextActor returns who may act on state, or false when the offer is terminal.
func NextActor(state State) (Role, bool) {
	switch {
	case state.Status == StatusPending && state.LastActionBy == RoleBuyer:
		return RoleSeller, true
	case state.Status == StatusCountered && state.LastActionBy == RoleSeller:
		return RoleBuyer, true
	}
	return "", false
}

func awaiting(state State, actor Role) bool {
	next, ok := NextActor(state)
	return ok && next == actor
}

func stageError(state State, action Action) error {
	return fmt.Errorf("%w: cannot %s at this stage (status %s, last action by %s)",
		ErrInvalidTransition, action, state.Status, state.LastActionBy)
}
