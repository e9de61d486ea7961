package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"time"

	"iptv-bot/internal/infra/sqlite3"
	"iptv-bot/internal/stories/conversations"
	"iptv-bot/internal/stories/customers"
	"iptv-bot/internal/stories/payment"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

type storageImpl struct {
	root *sqlx.DB
	db   sqlx.ExtContext
	now  func() time.Time
}

func New(db *sqlx.DB) *storageImpl {
	return &storageImpl{root: db, db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Tx is the part of the store that can be written atomically.
type Tx interface {
	CreatePendingPayment(ctx context.Context, p payment.PendingPayment) (*payment.PendingPayment, error)
	SaveConversation(ctx context.Context, state conversations.State) error
	UpsertCustomer(ctx context.Context, customer customers.Customer) (*customers.Customer, error)
}

// RunInTx executes fn against a transaction-bound copy of the store.
func (s *storageImpl) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	return sqlite3.RunInTx(ctx, s.root, nil, func(tx *sqlx.Tx) error {
		return fn(&storageImpl{root: s.root, db: tx, now: s.now})
	})
}

func (s *storageImpl) stmpBuilder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// rowModel is implemented by every xxxRow struct.
type rowModel[M any] interface {
	ToModel() *M
}

// getOne runs a single-row select and maps it to the model. Missing rows yield nil, nil.
func getOne[R rowModel[M], M any](ctx context.Context, db sqlx.QueryerContext, query sq.SelectBuilder) (*M, error) {
	q, args, err := query.Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var row R
	if err := sqlx.GetContext(ctx, db, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db.GetContext: %w", err)
	}

	return row.ToModel(), nil
}

// list runs a select and maps every row to the model.
func list[R rowModel[M], M any](ctx context.Context, db sqlx.QueryerContext, query sq.SelectBuilder) ([]*M, error) {
	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var rows []R
	if err := sqlx.SelectContext(ctx, db, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("db.SelectContext: %w", err)
	}

	models := make([]*M, 0, len(rows))
	for _, row := range rows {
		models = append(models, row.ToModel())
	}
	return models, nil
}

// exec runs an insert/update/delete builder and returns the driver result.
func (s *storageImpl) exec(ctx context.Context, query sq.Sqlizer) (sql.Result, error) {
	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	result, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}
	return result, nil
}

// Fields возвращает список всех полей структуры, которые есть в БД.
func fields(data any) string {
	var s string
	r := reflect.TypeOf(data)
	for i := 0; i < r.NumField(); i++ {
		tag := r.Field(i).Tag.Get("db")
		if tag != "" {
			s += tag + ","
		}
	}
	return s[:len(s)-1]
}
