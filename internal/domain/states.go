package domain

import "strings"

// Record states shared by transactions and payment links.
const (
	StatePending    = "PENDING"
	StateProcessing = "PROCESSING"
	StatePaid       = "PAID"
	StateFailed     = "FAILED"
	StateExpired    = "EXPIRED"
	StateCancelled  = "CANCELLED"
)

// recordTransitions is the only source of truth for state movement.
// Terminal states have no outgoing edges, so nothing ever leaves
// PAID, FAILED, EXPIRED or CANCELLED.
var recordTransitions = map[string]map[string]struct{}{
	StatePending: {
		StateProcessing: {},
		StatePaid:       {},
		StateFailed:     {},
		StateExpired:    {},
		StateCancelled:  {},
	},
	StateProcessing: {
		StatePaid:      {},
		StateFailed:    {},
		StateExpired:   {},
		StateCancelled: {},
	},
	StatePaid:      {},
	StateFailed:    {},
	StateExpired:   {},
	StateCancelled: {},
}

// NormalizeState upper-cases and trims a state value read from storage
// or a wire payload.
func NormalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}

// CanTransition reports whether moving from current to next is allowed.
func CanTransition(current, next string) bool {
	current = NormalizeState(current)
	next = NormalizeState(next)
	nextStates, ok := recordTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

// IsTerminal reports whether the state has no outgoing transitions.
func IsTerminal(state string) bool {
	nextStates, ok := recordTransitions[NormalizeState(state)]
	return ok && len(nextStates) == 0
}
