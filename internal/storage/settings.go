package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const settingsTable = "settings"

type settingRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

func (s *storageImpl) ListSettings(ctx context.Context) (map[string]string, error) {
	q, args, err := s.stmpBuilder().
		Select("key", "value").
		From(settingsTable).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var rows []settingRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("db.SelectContext: %w", err)
	}

	values := make(map[string]string, len(rows))
	for _, row := range rows {
		values[row.Key] = row.Value
	}
	return values, nil
}

func (s *storageImpl) SetSetting(ctx context.Context, key, value string) error {
	query := s.stmpBuilder().
		Insert(settingsTable).
		Columns("key", "value", "updated_at").
		Values(key, value, s.now()).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at")

	_, err := s.exec(ctx, query)
	return err
}
