package payment

import "context"

type (
	// Storage provides database operations for pending payments
	Storage interface {
		CreatePendingPayment(ctx context.Context, p PendingPayment) (*PendingPayment, error)
		GetPendingPayment(ctx context.Context, criteria GetCriteria) (*PendingPayment, error)
		ListPendingPayments(ctx context.Context, criteria ListCriteria) ([]*PendingPayment, error)
		// CompareAndSwapStatus moves a payment from one status to another and reports
		// whether this call performed the transition.
		CompareAndSwapStatus(ctx context.Context, paymentID string, from, to Status) (bool, error)
		MarkManualReview(ctx context.Context, paymentID string, reason string) error
	}

	// Gateway is the payment provider.
	Gateway interface {
		CreateCharge(ctx context.Context, phone string, amount float64, metadata map[string]string) (*Charge, error)
		PaymentStatus(ctx context.Context, paymentID string) (Status, error)
	}
)
