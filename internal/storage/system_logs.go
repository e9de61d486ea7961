package storage

import (
	"context"
	"time"

	"iptv-bot/internal/stories/syslogs"

	sq "github.com/Masterminds/squirrel"
	"github.com/samber/lo"
)

const systemLogsTable = "system_logs"

var systemLogRowFields = fields(systemLogRow{})

type systemLogRow struct {
	ID        int64     `db:"id"`
	Kind      string    `db:"kind"`
	Message   string    `db:"message"`
	Details   string    `db:"details"`
	CreatedAt time.Time `db:"created_at"`
}

func (r systemLogRow) ToModel() *syslogs.Entry {
	return &syslogs.Entry{
		ID:        r.ID,
		Kind:      syslogs.Kind(r.Kind),
		Message:   r.Message,
		Details:   r.Details,
		CreatedAt: r.CreatedAt,
	}
}

func (s *storageImpl) CreateSystemLog(ctx context.Context, entry syslogs.Entry) error {
	_, err := s.exec(ctx, s.stmpBuilder().
		Insert(systemLogsTable).
		Columns("kind", "message", "details", "created_at").
		Values(string(entry.Kind), entry.Message, entry.Details, s.now()))
	return err
}

func (s *storageImpl) ListSystemLogs(ctx context.Context, criteria syslogs.ListCriteria) ([]*syslogs.Entry, error) {
	query := s.stmpBuilder().
		Select(systemLogRowFields).
		From(systemLogsTable).
		OrderBy("id DESC")

	if len(criteria.Kinds) > 0 {
		query = query.Where(sq.Eq{"kind": lo.Map(criteria.Kinds, func(k syslogs.Kind, _ int) string {
			return string(k)
		})})
	}
	if criteria.Limit > 0 {
		query = query.Limit(uint64(criteria.Limit))
	}

	return list[systemLogRow, syslogs.Entry](ctx, s.db, query)
}
