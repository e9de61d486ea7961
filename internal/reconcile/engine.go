// Package reconcile turns provider snapshots into the canonical local Account record.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/samber/lo"

	"iptv-bot/internal/provisioning"
	"iptv-bot/internal/stories/accounts"
)

const fallbackDaysPerMonth = 30

type Metrics interface {
	ObserveReconciledChanges(fields []string)
}

// Fallback carries what the local side knows about a provisioning action. Resyncs send
// an empty Fallback.
type Fallback struct {
	Months      int
	Connections int
	PlanLabel   string
}

type Request struct {
	Phone    string
	Username string
	Snapshot provisioning.Snapshot
	Fallback Fallback
}

// Change is the old and new rendering of one field.
type Change struct {
	Old string
	New string
}

// ChangeSet maps canonical field names to what changed.
type ChangeSet map[string]Change

type Result struct {
	Account *accounts.Account
	Created bool
	Changes ChangeSet
	// Unparsable lists canonical fields present in the snapshot that were not applied.
	Unparsable []string
	// Extra holds the snapshot fields outside the canonical set, as stored on the Account.
	Extra map[string]string
}

type Engine struct {
	storage accounts.Storage
	metrics Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewEngine(storage accounts.Storage, metrics Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		storage: storage,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Reconcile writes the snapshot into the Account identified by req.Username, creating
// it when absent. Only fields present and parsable in the snapshot are touched.
func (e *Engine) Reconcile(ctx context.Context, req Request) (*Result, error) {
	fields := Normalize(req.Snapshot)

	username := req.Username
	if username == "" && fields.Username != nil {
		username = *fields.Username
	}
	if username == "" {
		return nil, fmt.Errorf("reconcile: snapshot without username")
	}

	if len(fields.Unparsable) > 0 {
		e.logger.Warn("Snapshot has unparsable fields",
			"username", username,
			"fields", fields.Unparsable)
	}

	existing, err := e.storage.GetAccount(ctx, accounts.GetCriteria{SubscriberID: &username})
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", username, err)
	}

	now := e.now().UTC()

	var result *Result
	if existing == nil {
		result, err = e.create(ctx, req, username, fields, now)
	} else {
		result, err = e.update(ctx, req, existing, fields, now)
	}
	if err != nil {
		return nil, err
	}
	result.Unparsable = fields.Unparsable
	result.Extra = fields.Extra

	if e.metrics != nil && len(result.Changes) > 0 {
		e.metrics.ObserveReconciledChanges(result.Changes.Fields())
	}

	return result, nil
}

func (e *Engine) create(ctx context.Context, req Request, username string, f Fields, now time.Time) (*Result, error) {
	account := accounts.Account{
		Phone:           req.Phone,
		SubscriberID:    &username,
		ConnectionCount: req.Fallback.Connections,
		PlanLabel:       req.Fallback.PlanLabel,
		CreatedAt:       &now,
		LastSyncAt:      &now,
	}
	if f.Password != nil {
		account.CredentialSecret = *f.Password
	}
	if f.Connections != nil {
		account.ConnectionCount = *f.Connections
	}
	if f.Plan != nil {
		account.PlanLabel = *f.Plan
	}
	if f.CreatedAt != nil {
		account.CreatedAt = f.CreatedAt
	}
	account.Extra = f.Extra
	account.ExpiresAt = f.ExpiresAt
	if f.expiryOmitted() && req.Fallback.Months > 0 {
		expires := now.AddDate(0, 0, fallbackDaysPerMonth*req.Fallback.Months)
		account.ExpiresAt = &expires
	}
	account.Status = accounts.DeriveStatus(account.ExpiresAt, now)

	created, err := e.storage.CreateAccount(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("create account %s: %w", username, err)
	}

	changes := ChangeSet{
		FieldUsername:    {New: username},
		FieldPassword:    {New: mask(created.CredentialSecret)},
		FieldConnections: {New: strconv.Itoa(created.ConnectionCount)},
		FieldPlan:        {New: created.PlanLabel},
		FieldCreatedAt:   {New: formatTime(created.CreatedAt)},
		FieldExpiresAt:   {New: formatTime(created.ExpiresAt)},
		FieldStatus:      {New: string(created.Status)},
	}

	e.logger.Info("Account created from provider snapshot",
		"username", username,
		"phone", req.Phone,
		"expires_at", formatTime(created.ExpiresAt))

	return &Result{Account: created, Created: true, Changes: changes}, nil
}

func (e *Engine) update(ctx context.Context, req Request, existing *accounts.Account, f Fields, now time.Time) (*Result, error) {
	params := accounts.UpdateParams{LastSyncAt: &now}
	changes := ChangeSet{}

	if f.Password != nil && *f.Password != existing.CredentialSecret {
		params.CredentialSecret = f.Password
		changes[FieldPassword] = Change{Old: mask(existing.CredentialSecret), New: mask(*f.Password)}
	}
	if f.Connections != nil && *f.Connections != existing.ConnectionCount {
		params.ConnectionCount = f.Connections
		changes[FieldConnections] = Change{Old: strconv.Itoa(existing.ConnectionCount), New: strconv.Itoa(*f.Connections)}
	}
	if f.Plan != nil && *f.Plan != existing.PlanLabel {
		params.PlanLabel = f.Plan
		changes[FieldPlan] = Change{Old: existing.PlanLabel, New: *f.Plan}
	}
	if f.CreatedAt != nil && !sameTime(f.CreatedAt, existing.CreatedAt) {
		params.CreatedAt = f.CreatedAt
		changes[FieldCreatedAt] = Change{Old: formatTime(existing.CreatedAt), New: formatTime(f.CreatedAt)}
	}

	if extra := mergeExtra(existing.Extra, f.Extra); extra != nil {
		params.Extra = extra
	}

	expiresAt := f.ExpiresAt
	if f.expiryOmitted() && req.Fallback.Months > 0 {
		base := now
		if existing.ExpiresAt != nil && existing.ExpiresAt.After(now) {
			base = *existing.ExpiresAt
		}
		extended := base.AddDate(0, 0, fallbackDaysPerMonth*req.Fallback.Months)
		expiresAt = &extended
	}
	if expiresAt != nil && !sameTime(expiresAt, existing.ExpiresAt) {
		params.ExpiresAt = expiresAt
		changes[FieldExpiresAt] = Change{Old: formatTime(existing.ExpiresAt), New: formatTime(expiresAt)}
	}

	if !existing.ManualOverride {
		effective := existing.ExpiresAt
		if params.ExpiresAt != nil {
			effective = params.ExpiresAt
		}
		status := accounts.DeriveStatus(effective, now)
		if status != existing.Status {
			params.Status = &status
			changes[FieldStatus] = Change{Old: string(existing.Status), New: string(status)}
		}
	}

	username := existing.Username()
	updated, err := e.storage.UpdateAccount(ctx, accounts.GetCriteria{ID: &existing.ID}, params)
	if err != nil {
		return nil, fmt.Errorf("update account %s: %w", username, err)
	}
	if updated == nil {
		return nil, fmt.Errorf("update account %s: account vanished", username)
	}

	if len(changes) > 0 {
		e.logger.Info("Account reconciled",
			"username", username,
			"changed", changes.Fields())
	}

	return &Result{Account: updated, Changes: changes}, nil
}

// expiryOmitted reports whether the snapshot carried no expiry at all. An expiry that
// was sent but could not be parsed keeps the stored value.
func (f Fields) expiryOmitted() bool {
	return f.ExpiresAt == nil && !slices.Contains(f.Unparsable, FieldExpiresAt)
}

// mergeExtra overlays incoming extras on the stored ones. It returns nil when nothing
// would change, so keys the provider stopped sending are kept.
func mergeExtra(stored, incoming map[string]string) map[string]string {
	changed := false
	for key, value := range incoming {
		if old, ok := stored[key]; !ok || old != value {
			changed = true
			break
		}
	}
	if !changed {
		return nil
	}

	merged := make(map[string]string, len(stored)+len(incoming))
	for key, value := range stored {
		merged[key] = value
	}
	for key, value := range incoming {
		merged[key] = value
	}
	return merged
}

// Fields returns the changed field names, sorted.
func (c ChangeSet) Fields() []string {
	out := lo.Keys(c)
	slices.Sort(out)
	return out
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}
