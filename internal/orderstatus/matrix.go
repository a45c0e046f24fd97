package orderstatus

import (
	"fmt"
	"strings"
)

// Matrix maps a state to the set of states it may move to.
type Matrix map[Status]map[Status]bool

// DefaultMatrix allows one forward step through the active sequence, SERVED to
// COMPLETED, and early termination (CANCELLED, VOIDED) from every active state.
// Nothing leaves a terminal state. ARCHIVED is not reachable by transition.
func DefaultMatrix() Matrix {
	m := Matrix{}
	forward := append(append([]Status{}, Sequence...), Completed)
	for i := 0; i < len(forward)-1; i++ {
		m.allow(forward[i], forward[i+1])
	}
	for _, s := range Sequence {
		m.allow(s, Cancelled)
		m.allow(s, Voided)
	}
	return m
}

func (m Matrix) allow(from, to Status) {
	if m[from] == nil {
		m[from] = map[Status]bool{}
	}
	m[from][to] = true
}

// CanTransition reports whether from may move to to. Terminal states never
// transition, whatever the matrix says.
func (m Matrix) CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	return m[from][to]
}

// Validate returns an *InvalidTransitionError when the move is not allowed.
func (m Matrix) Validate(from, to Status) error {
	if !m.CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// Allowed lists the states reachable from s in declaration order.
func (m Matrix) Allowed(from Status) []Status {
	var out []Status
	for _, s := range All {
		if m.CanTransition(from, s) {
			out = append(out, s)
		}
	}
	return out
}

// WithExtra returns a copy of m with extra edges parsed from a string such as
// "READY:COMPLETED;CONFIRMED:READY|SERVED". Edges out of terminal states are
// rejected.
func (m Matrix) WithExtra(rules string) (Matrix, error) {
	out := Matrix{}
	for from, tos := range m {
		for to := range tos {
			out.allow(from, to)
		}
	}

	rules = strings.TrimSpace(rules)
	if rules == "" {
		return out, nil
	}

	for _, rule := range strings.Split(rules, ";") {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}
		parts := strings.SplitN(rule, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("transition rule %q: expected FROM:TO", rule)
		}
		from, err := Parse(parts[0])
		if err != nil {
			return nil, fmt.Errorf("transition rule %q: %w", rule, err)
		}
		if from.IsTerminal() {
			return nil, fmt.Errorf("transition rule %q: %s is terminal", rule, from)
		}
		for _, t := range strings.Split(parts[1], "|") {
			to, err := Parse(t)
			if err != nil {
				return nil, fmt.Errorf("transition rule %q: %w", rule, err)
			}
			out.allow(from, to)
		}
	}
	return out, nil
}

var defaultMatrix = DefaultMatrix()

// CanTransition applies the default matrix.
func CanTransition(from, to Status) bool {
	return defaultMatrix.CanTransition(from, to)
}
