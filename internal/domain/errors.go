package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrItemNotFound signals a missing item report.
	ErrItemNotFound = errors.New("item not found")
	// ErrMatchNotFound signals a missing match record.
	ErrMatchNotFound = errors.New("match not found")
	// ErrInvalidStateTransition signals a confirm/reject attempt on a non-pending match.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrDuplicateMatch signals that a non-rejected match already covers the pair.
	// Callers creating matches from the pipeline treat this as a no-op, not a failure.
	ErrDuplicateMatch = errors.New("duplicate match")
	// ErrValidation signals invalid input on an item or match field.
	ErrValidation = errors.New("validation failed")
	// ErrKindMismatch signals a match referencing two items of the same kind.
	ErrKindMismatch = errors.New("match requires one lost and one found item")
	// ErrItemArchived signals an operation against an archived item.
	ErrItemArchived = errors.New("item is archived")
)

// InvalidTransitionError wraps ErrInvalidStateTransition with the match state
// that rejected the transition.
type InvalidTransitionError struct {
	MatchID string
	From    string
	To      string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: match %s is %s, cannot transition to %s",
		ErrInvalidStateTransition.Error(), e.MatchID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidStateTransition }

// NewInvalidTransition creates an invalid state transition error.
func NewInvalidTransition(matchID, from, to string) error {
	return &InvalidTransitionError{MatchID: matchID, From: from, To: to}
}
