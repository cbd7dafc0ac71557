package domain

// allowedTransitions is the closed transition table for token statuses.
// serving -> waiting covers the officer re-queue action.
var allowedTransitions = map[TokenStatus][]TokenStatus{
	TokenStatusWaiting:   {TokenStatusServing, TokenStatusCancelled},
	TokenStatusServing:   {TokenStatusCompleted, TokenStatusNoShow, TokenStatusWaiting},
	TokenStatusCompleted: {},
	TokenStatusNoShow:    {},
	TokenStatusCancelled: {},
}

// CanTransition reports whether current -> next is a legal lifecycle move.
func CanTransition(current, next TokenStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether status admits no further transitions.
func IsTerminal(status TokenStatus) bool {
	return len(allowedTransitions[status]) == 0
}

// ValidStatus reports whether status is one of the known lifecycle states.
func ValidStatus(status TokenStatus) bool {
	_, ok := allowedTransitions[status]
	return ok
}
