package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"iptv-bot/internal/stories/accounts"

	sq "github.com/Masterminds/squirrel"
)

const accountsTable = "accounts"

var accountRowFields = fields(accountRow{})

type accountRow struct {
	ID               int64      `db:"id"`
	Phone            string     `db:"phone"`
	SubscriberID     *string    `db:"subscriber_id"`
	CredentialSecret string     `db:"credential_secret"`
	ConnectionCount  int        `db:"connection_count"`
	PlanLabel        string     `db:"plan_label"`
	CreatedAt        *time.Time `db:"created_at"`
	ExpiresAt        *time.Time `db:"expires_at"`
	Status           string     `db:"status"`
	ManualOverride   bool       `db:"manual_override"`
	LastSyncAt       *time.Time `db:"last_sync_at"`
	RemindedAt       *time.Time `db:"reminded_at"`
	Extra            string     `db:"extra"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

func (r accountRow) ToModel() *accounts.Account {
	var extra map[string]string
	_ = json.Unmarshal([]byte(r.Extra), &extra)

	return &accounts.Account{
		ID:               r.ID,
		Phone:            r.Phone,
		SubscriberID:     r.SubscriberID,
		CredentialSecret: r.CredentialSecret,
		ConnectionCount:  r.ConnectionCount,
		PlanLabel:        r.PlanLabel,
		CreatedAt:        r.CreatedAt,
		ExpiresAt:        r.ExpiresAt,
		Status:           accounts.Status(r.Status),
		ManualOverride:   r.ManualOverride,
		LastSyncAt:       r.LastSyncAt,
		Extra:            extra,
		UpdatedAt:        r.UpdatedAt,
	}
}

func encodeExtra(extra map[string]string) (string, error) {
	if extra == nil {
		extra = map[string]string{}
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return "", fmt.Errorf("encode account extra: %w", err)
	}
	return string(data), nil
}

func (s *storageImpl) CreateAccount(ctx context.Context, account accounts.Account) (*accounts.Account, error) {
	extra, err := encodeExtra(account.Extra)
	if err != nil {
		return nil, err
	}

	params := map[string]interface{}{
		"phone":             account.Phone,
		"subscriber_id":     account.SubscriberID,
		"credential_secret": account.CredentialSecret,
		"connection_count":  account.ConnectionCount,
		"plan_label":        account.PlanLabel,
		"created_at":        utc(account.CreatedAt),
		"expires_at":        utc(account.ExpiresAt),
		"status":            string(account.Status),
		"manual_override":   account.ManualOverride,
		"last_sync_at":      utc(account.LastSyncAt),
		"extra":             extra,
		"updated_at":        s.now(),
	}

	result, err := s.exec(ctx, s.stmpBuilder().Insert(accountsTable).SetMap(params))
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("result.LastInsertId: %w", err)
	}

	return s.GetAccount(ctx, accounts.GetCriteria{ID: &id})
}

func (s *storageImpl) GetAccount(ctx context.Context, criteria accounts.GetCriteria) (*accounts.Account, error) {
	query := s.stmpBuilder().
		Select(accountRowFields).
		From(accountsTable)

	if criteria.ID != nil {
		query = query.Where(sq.Eq{"id": *criteria.ID})
	}
	if criteria.SubscriberID != nil {
		query = query.Where(sq.Eq{"subscriber_id": *criteria.SubscriberID})
	}

	return getOne[accountRow, accounts.Account](ctx, s.db, query)
}

func (s *storageImpl) ListAccounts(ctx context.Context, criteria accounts.ListCriteria) ([]*accounts.Account, error) {
	query := s.stmpBuilder().
		Select(accountRowFields).
		From(accountsTable)

	if criteria.Phone != nil {
		query = query.Where(sq.Eq{"phone": normalizePhoneVariants(*criteria.Phone)})
	}
	if criteria.Provisioned {
		query = query.Where(sq.NotEq{"subscriber_id": nil})
	}
	if criteria.ExpiringBefore != nil {
		query = query.Where(sq.Lt{"expires_at": criteria.ExpiringBefore.UTC()})
	}
	if criteria.ExpiringAfter != nil {
		query = query.Where(sq.Gt{"expires_at": criteria.ExpiringAfter.UTC()})
	}
	if criteria.Status != nil {
		query = query.Where(sq.Eq{"status": string(*criteria.Status)})
	}
	if criteria.Limit > 0 {
		query = query.Limit(uint64(criteria.Limit))
	}
	if criteria.Offset > 0 {
		query = query.Offset(uint64(criteria.Offset))
	}

	return list[accountRow, accounts.Account](ctx, s.db, query.OrderBy("id ASC"))
}

func (s *storageImpl) UpdateAccount(ctx context.Context, criteria accounts.GetCriteria, params accounts.UpdateParams) (*accounts.Account, error) {
	if criteria.ID == nil && criteria.SubscriberID == nil {
		return nil, fmt.Errorf("update account: empty criteria")
	}

	set := map[string]interface{}{
		"updated_at": s.now(),
	}
	if params.SubscriberID != nil {
		set["subscriber_id"] = *params.SubscriberID
	}
	if params.CredentialSecret != nil {
		set["credential_secret"] = *params.CredentialSecret
	}
	if params.ConnectionCount != nil {
		set["connection_count"] = *params.ConnectionCount
	}
	if params.PlanLabel != nil {
		set["plan_label"] = *params.PlanLabel
	}
	if params.CreatedAt != nil {
		set["created_at"] = params.CreatedAt.UTC()
	}
	if params.ExpiresAt != nil {
		set["expires_at"] = params.ExpiresAt.UTC()
	}
	if params.Status != nil {
		set["status"] = string(*params.Status)
	}
	if params.ManualOverride != nil {
		set["manual_override"] = *params.ManualOverride
	}
	if params.LastSyncAt != nil {
		set["last_sync_at"] = params.LastSyncAt.UTC()
	}
	if params.Extra != nil {
		extra, err := encodeExtra(params.Extra)
		if err != nil {
			return nil, err
		}
		set["extra"] = extra
	}

	query := s.stmpBuilder().Update(accountsTable).SetMap(set)
	if criteria.ID != nil {
		query = query.Where(sq.Eq{"id": *criteria.ID})
	}
	if criteria.SubscriberID != nil {
		query = query.Where(sq.Eq{"subscriber_id": *criteria.SubscriberID})
	}

	if _, err := s.exec(ctx, query); err != nil {
		return nil, err
	}

	return s.GetAccount(ctx, criteria)
}

// ListAccountsToRemind returns active accounts expiring before the deadline that were
// not reminded since the given instant.
func (s *storageImpl) ListAccountsToRemind(ctx context.Context, deadline, notRemindedSince time.Time) ([]*accounts.Account, error) {
	now := s.now()
	query := s.stmpBuilder().
		Select(accountRowFields).
		From(accountsTable).
		Where(sq.NotEq{"subscriber_id": nil}).
		Where(sq.Gt{"expires_at": now}).
		Where(sq.LtOrEq{"expires_at": deadline.UTC()}).
		Where(sq.Or{
			sq.Eq{"reminded_at": nil},
			sq.Lt{"reminded_at": notRemindedSince.UTC()},
		}).
		OrderBy("expires_at ASC")

	return list[accountRow, accounts.Account](ctx, s.db, query)
}

func (s *storageImpl) MarkAccountReminded(ctx context.Context, id int64) error {
	_, err := s.exec(ctx, s.stmpBuilder().
		Update(accountsTable).
		Set("reminded_at", s.now()).
		Where(sq.Eq{"id": id}))
	return err
}

// RefreshExpiredStatuses flips active accounts whose expiry passed, skipping manual overrides.
func (s *storageImpl) RefreshExpiredStatuses(ctx context.Context) (int64, error) {
	now := s.now()
	result, err := s.exec(ctx, s.stmpBuilder().
		Update(accountsTable).
		Set("status", string(accounts.StatusExpired)).
		Set("updated_at", now).
		Where(sq.Eq{"status": string(accounts.StatusActive)}).
		Where(sq.Eq{"manual_override": false}).
		Where(sq.Or{
			sq.Eq{"expires_at": nil},
			sq.LtOrEq{"expires_at": now},
		}))
	if err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("result.RowsAffected: %w", err)
	}
	return affected, nil
}

// normalizePhoneVariants returns the phone with and without the leading plus so
// imported records match numbers received from the chat transport.
func normalizePhoneVariants(phone string) []string {
	phone = strings.TrimSpace(phone)
	bare := strings.TrimPrefix(phone, "+")
	return []string{"+" + bare, bare}
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
