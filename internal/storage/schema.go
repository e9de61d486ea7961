package storage

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS customers (
	phone      TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	phone             TEXT NOT NULL,
	subscriber_id     TEXT UNIQUE,
	credential_secret TEXT NOT NULL DEFAULT '',
	connection_count  INTEGER NOT NULL DEFAULT 1,
	plan_label        TEXT NOT NULL DEFAULT '',
	created_at        DATETIME,
	expires_at        DATETIME,
	status            TEXT NOT NULL DEFAULT 'expired',
	manual_override   INTEGER NOT NULL DEFAULT 0,
	last_sync_at      DATETIME,
	reminded_at       DATETIME,
	extra             TEXT NOT NULL DEFAULT '{}',
	updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	phone      TEXT PRIMARY KEY,
	context    TEXT NOT NULL,
	step       TEXT NOT NULL,
	scratch    TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_payments (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	payment_id          TEXT NOT NULL UNIQUE,
	phone               TEXT NOT NULL,
	context             TEXT NOT NULL,
	amount              REAL NOT NULL,
	pay_code            TEXT NOT NULL DEFAULT '',
	snapshot            TEXT NOT NULL,
	status              TEXT NOT NULL,
	needs_manual_review INTEGER NOT NULL DEFAULT 0,
	failure_reason      TEXT,
	processed_at        DATETIME,
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS system_logs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	kind       TEXT NOT NULL,
	message    TEXT NOT NULL,
	details    TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_accounts_phone ON accounts(phone);
CREATE INDEX IF NOT EXISTS idx_accounts_expires_at ON accounts(expires_at);
CREATE INDEX IF NOT EXISTS idx_pending_payments_status ON pending_payments(status, created_at);
CREATE INDEX IF NOT EXISTS idx_system_logs_created_at ON system_logs(created_at);
`

// Migrate creates the tables if they do not exist yet.
func (s *storageImpl) Migrate(ctx context.Context) error {
	if _, err := s.root.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if err := s.ensureColumn(ctx, accountsTable, "extra", "TEXT NOT NULL DEFAULT '{}'"); err != nil {
		return err
	}
	return nil
}

// ensureColumn adds a column that databases created by an older schema lack.
func (s *storageImpl) ensureColumn(ctx context.Context, table, column, definition string) error {
	var names []string
	if err := s.root.SelectContext(ctx, &names, `SELECT name FROM pragma_table_info(?)`, table); err != nil {
		return fmt.Errorf("inspect table %s: %w", table, err)
	}
	for _, name := range names {
		if name == column {
			return nil
		}
	}

	if _, err := s.root.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}
