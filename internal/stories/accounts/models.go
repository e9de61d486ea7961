package accounts

import "time"

type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

// Account is the canonical subscriber record.
type Account struct {
	ID               int64
	Phone            string
	SubscriberID     *string
	CredentialSecret string
	ConnectionCount  int
	PlanLabel        string
	CreatedAt        *time.Time
	ExpiresAt        *time.Time
	Status           Status
	ManualOverride   bool
	LastSyncAt       *time.Time
	// Extra keeps provider fields outside the canonical set, keyed by their generic key.
	Extra     map[string]string
	UpdatedAt time.Time
}

// Username returns the subscriber id or an empty string for unprovisioned records.
func (a *Account) Username() string {
	if a.SubscriberID == nil {
		return ""
	}
	return *a.SubscriberID
}

// DeriveStatus reports the status implied by the expiry date alone.
func DeriveStatus(expiresAt *time.Time, now time.Time) Status {
	if expiresAt != nil && expiresAt.After(now) {
		return StatusActive
	}
	return StatusExpired
}

type GetCriteria struct {
	ID           *int64
	SubscriberID *string
}

type ListCriteria struct {
	Phone          *string
	Provisioned    bool
	ExpiringBefore *time.Time
	ExpiringAfter  *time.Time
	Status         *Status
	Limit          int
	Offset         int
}

// UpdateParams lists the columns a reconciliation may write. Nil fields are left alone.
type UpdateParams struct {
	SubscriberID     *string
	CredentialSecret *string
	ConnectionCount  *int
	PlanLabel        *string
	CreatedAt        *time.Time
	ExpiresAt        *time.Time
	Status           *Status
	ManualOverride   *bool
	LastSyncAt       *time.Time
	// Extra replaces the stored provider extras when non-nil.
	Extra map[string]string
}
