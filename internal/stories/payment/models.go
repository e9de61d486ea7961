package payment

import "time"

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Context is the conversation flow a payment was requested from.
type Context string

const (
	ContextPurchase Context = "purchase"
	ContextRenewal  Context = "renewal"
)

// Snapshot is the exact set of provisioning parameters frozen at confirmation.
type Snapshot struct {
	Username    string `json:"username"`
	Connections int    `json:"connections"`
	Months      int    `json:"months"`
	PlanLabel   string `json:"plan_label,omitempty"`
}

// PendingPayment links a gateway charge to the snapshot it pays for.
type PendingPayment struct {
	ID                int64
	PaymentID         string
	Phone             string
	Context           Context
	Amount            float64
	PayCode           string
	Snapshot          Snapshot
	Status            Status
	NeedsManualReview bool
	FailureReason     *string
	ProcessedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Charge is what the gateway returns for a created charge.
type Charge struct {
	PaymentID string
	PayCode   string
}

type GetCriteria struct {
	PaymentID *string
}

type ListCriteria struct {
	Status        *Status
	Phone         *string
	CreatedBefore *time.Time
	CreatedAfter  *time.Time
	ManualReview  *bool
	Limit         int
}
