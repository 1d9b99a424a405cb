package payment

import "github.com/kevinvillajim/bcommerce-core/internal/repo"

// transitions encodes the allowed payment status changes. Anything not listed
// is rejected; repeated deliveries of the current status are treated as
// duplicates by the webhook handler, not as transitions.
var transitions = map[repo.PaymentStatus][]repo.PaymentStatus{
	repo.PaymentStatusPending: {
		repo.PaymentStatusPaid,
		repo.PaymentStatusFailed,
		repo.PaymentStatusCancelled,
	},
	repo.PaymentStatusPaid: {
		repo.PaymentStatusRefunded,
	},
}

// CanTransition reports whether the status change is allowed.
func CanTransition(from, to repo.PaymentStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status accepts no further transitions.
func IsTerminal(status repo.PaymentStatus) bool {
	return len(transitions[status]) == 0
}
