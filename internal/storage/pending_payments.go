package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"iptv-bot/internal/stories/payment"

	sq "github.com/Masterminds/squirrel"
)

const pendingPaymentsTable = "pending_payments"

var pendingPaymentRowFields = fields(pendingPaymentRow{})

type pendingPaymentRow struct {
	ID                int64      `db:"id"`
	PaymentID         string     `db:"payment_id"`
	Phone             string     `db:"phone"`
	Context           string     `db:"context"`
	Amount            float64    `db:"amount"`
	PayCode           string     `db:"pay_code"`
	Snapshot          string     `db:"snapshot"`
	Status            string     `db:"status"`
	NeedsManualReview bool       `db:"needs_manual_review"`
	FailureReason     *string    `db:"failure_reason"`
	ProcessedAt       *time.Time `db:"processed_at"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

func (r pendingPaymentRow) ToModel() *payment.PendingPayment {
	var snapshot payment.Snapshot
	// The snapshot is written by CreatePendingPayment only, so it always decodes.
	_ = json.Unmarshal([]byte(r.Snapshot), &snapshot)

	return &payment.PendingPayment{
		ID:                r.ID,
		PaymentID:         r.PaymentID,
		Phone:             r.Phone,
		Context:           payment.Context(r.Context),
		Amount:            r.Amount,
		PayCode:           r.PayCode,
		Snapshot:          snapshot,
		Status:            payment.Status(r.Status),
		NeedsManualReview: r.NeedsManualReview,
		FailureReason:     r.FailureReason,
		ProcessedAt:       r.ProcessedAt,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func (s *storageImpl) CreatePendingPayment(ctx context.Context, p payment.PendingPayment) (*payment.PendingPayment, error) {
	snapshot, err := json.Marshal(p.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	now := s.now()
	params := map[string]interface{}{
		"payment_id": p.PaymentID,
		"phone":      p.Phone,
		"context":    string(p.Context),
		"amount":     p.Amount,
		"pay_code":   p.PayCode,
		"snapshot":   string(snapshot),
		"status":     string(payment.StatusPending),
		"created_at": now,
		"updated_at": now,
	}

	if _, err := s.exec(ctx, s.stmpBuilder().Insert(pendingPaymentsTable).SetMap(params)); err != nil {
		return nil, err
	}

	return s.GetPendingPayment(ctx, payment.GetCriteria{PaymentID: &p.PaymentID})
}

func (s *storageImpl) GetPendingPayment(ctx context.Context, criteria payment.GetCriteria) (*payment.PendingPayment, error) {
	if criteria.PaymentID == nil {
		return nil, fmt.Errorf("get pending payment: empty criteria")
	}

	query := s.stmpBuilder().
		Select(pendingPaymentRowFields).
		From(pendingPaymentsTable).
		Where(sq.Eq{"payment_id": *criteria.PaymentID})

	return getOne[pendingPaymentRow, payment.PendingPayment](ctx, s.db, query)
}

func (s *storageImpl) ListPendingPayments(ctx context.Context, criteria payment.ListCriteria) ([]*payment.PendingPayment, error) {
	query := s.stmpBuilder().
		Select(pendingPaymentRowFields).
		From(pendingPaymentsTable)

	if criteria.Status != nil {
		query = query.Where(sq.Eq{"status": string(*criteria.Status)})
	}
	if criteria.Phone != nil {
		query = query.Where(sq.Eq{"phone": *criteria.Phone})
	}
	if criteria.CreatedBefore != nil {
		query = query.Where(sq.Lt{"created_at": criteria.CreatedBefore.UTC()})
	}
	if criteria.CreatedAfter != nil {
		query = query.Where(sq.Gt{"created_at": criteria.CreatedAfter.UTC()})
	}
	if criteria.ManualReview != nil {
		query = query.Where(sq.Eq{"needs_manual_review": *criteria.ManualReview})
	}
	if criteria.Limit > 0 {
		query = query.Limit(uint64(criteria.Limit))
	}

	return list[pendingPaymentRow, payment.PendingPayment](ctx, s.db, query.OrderBy("created_at ASC"))
}

// CompareAndSwapStatus performs the status transition only if the row still holds
// the expected status. Exactly one concurrent caller observes true.
func (s *storageImpl) CompareAndSwapStatus(ctx context.Context, paymentID string, from, to payment.Status) (bool, error) {
	now := s.now()
	set := map[string]interface{}{
		"status":     string(to),
		"updated_at": now,
	}
	if to != payment.StatusPending {
		set["processed_at"] = now
	}

	result, err := s.exec(ctx, s.stmpBuilder().
		Update(pendingPaymentsTable).
		SetMap(set).
		Where(sq.Eq{"payment_id": paymentID, "status": string(from)}))
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("result.RowsAffected: %w", err)
	}

	return affected == 1, nil
}

func (s *storageImpl) MarkManualReview(ctx context.Context, paymentID string, reason string) error {
	_, err := s.exec(ctx, s.stmpBuilder().
		Update(pendingPaymentsTable).
		Set("needs_manual_review", true).
		Set("failure_reason", reason).
		Set("updated_at", s.now()).
		Where(sq.Eq{"payment_id": paymentID}))
	return err
}
