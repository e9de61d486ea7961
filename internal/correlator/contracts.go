package correlator

import (
	"context"

	"iptv-bot/internal/conversation"
	"iptv-bot/internal/reconcile"
	"iptv-bot/internal/stories/payment"
	"iptv-bot/internal/stories/syslogs"
)

type (
	Storage interface {
		GetPendingPayment(ctx context.Context, criteria payment.GetCriteria) (*payment.PendingPayment, error)
		CompareAndSwapStatus(ctx context.Context, paymentID string, from, to payment.Status) (bool, error)
		MarkManualReview(ctx context.Context, paymentID string, reason string) error
		CreateSystemLog(ctx context.Context, entry syslogs.Entry) error
	}

	Verifier interface {
		VerifyStatus(ctx context.Context, paymentID string) (payment.Status, error)
	}

	Reconciler interface {
		Reconcile(ctx context.Context, req reconcile.Request) (*reconcile.Result, error)
	}

	Completer interface {
		Succeeded(ctx context.Context, done conversation.Completion) error
		Failed(ctx context.Context, done conversation.Completion) error
	}

	// Scheduler runs provisioning jobs away from the request goroutine.
	Scheduler interface {
		Submit(ctx context.Context, name string, job func(ctx context.Context))
	}

	Alerter interface {
		Alert(ctx context.Context, text string) error
	}

	Publisher interface {
		Publish(ctx context.Context, routingKey string, body any) error
	}

	Metrics interface {
		ObserveNotification(outcome string)
	}
)
