// Package orderstatus holds the order lifecycle states and the transition
// matrix that governs them. It performs no I/O.
package orderstatus

import (
	"errors"
	"fmt"
	"strings"
)

// Status is a validated order lifecycle state. Values only enter the system
// through Parse.
type Status string

const (
	Pending    Status = "PENDING"
	Confirmed  Status = "CONFIRMED"
	InProgress Status = "IN_PROGRESS"
	Ready      Status = "READY"
	Served     Status = "SERVED"
	Completed  Status = "COMPLETED"
	Cancelled  Status = "CANCELLED"
	Voided     Status = "VOIDED"
	Archived   Status = "ARCHIVED"
)

// Sequence is the forward order of the active states.
var Sequence = []Status{Pending, Confirmed, InProgress, Ready, Served}

// All lists every state in declaration order.
var All = []Status{Pending, Confirmed, InProgress, Ready, Served, Completed, Cancelled, Voided, Archived}

// ErrUnknownStatus is returned by Parse for values outside the enum.
var ErrUnknownStatus = errors.New("unknown order status")

// Parse converts a wire value into a Status. Matching is case-insensitive.
func Parse(s string) (Status, error) {
	candidate := Status(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range All {
		if st == candidate {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

func (s Status) String() string { return string(s) }

// IsActive reports whether s is a non-terminal state.
func (s Status) IsActive() bool {
	switch s {
	case Pending, Confirmed, InProgress, Ready, Served:
		return true
	}
	return false
}

// IsTerminal reports whether s accepts no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case Completed, Cancelled, Voided, Archived:
		return true
	}
	return false
}

// InvalidTransitionError names both endpoints of a rejected transition.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}
