package payment

import (
	"testing"

	"github.com/kevinvillajim/bcommerce-core/internal/repo"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to repo.PaymentStatus
		want     bool
	}{
		{repo.PaymentStatusPending, repo.PaymentStatusPaid, true},
		{repo.PaymentStatusPending, repo.PaymentStatusFailed, true},
		{repo.PaymentStatusPending, repo.PaymentStatusCancelled, true},
		{repo.PaymentStatusPaid, repo.PaymentStatusRefunded, true},
		{repo.PaymentStatusPending, repo.PaymentStatusRefunded, false},
		{repo.PaymentStatusPaid, repo.PaymentStatusFailed, false},
		{repo.PaymentStatusPaid, repo.PaymentStatusPending, false},
		{repo.PaymentStatusFailed, repo.PaymentStatusPaid, false},
		{repo.PaymentStatusRefunded, repo.PaymentStatusPaid, false},
		{repo.PaymentStatusCancelled, repo.PaymentStatusPaid, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(repo.PaymentStatusPending) {
		t.Error("PENDING must not be terminal")
	}
	if IsTerminal(repo.PaymentStatusPaid) {
		t.Error("PAID allows refunds, must not be terminal")
	}
	for _, s := range []repo.PaymentStatus{repo.PaymentStatusFailed, repo.PaymentStatusRefunded, repo.PaymentStatusCancelled} {
		if !IsTerminal(s) {
			t.Errorf("%s must be terminal", s)
		}
	}
}
