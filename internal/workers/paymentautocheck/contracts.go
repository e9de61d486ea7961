package paymentautocheck

import (
	"context"

	"iptv-bot/internal/correlator"
	"iptv-bot/internal/stories/payment"
)

type (
	Storage interface {
		ListPendingPayments(ctx context.Context, criteria payment.ListCriteria) ([]*payment.PendingPayment, error)
	}

	// Correlator is the same entry point gateway webhooks go through.
	Correlator interface {
		Handle(ctx context.Context, n correlator.Notification) (correlator.Outcome, error)
	}
)
