// Package sqlite3 opens the bot's SQLite database.
package sqlite3

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const memoryDSN = ":memory:"

type options struct {
	dsn             string
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
	connTimeout     time.Duration
	busyTimeout     time.Duration
	journalMode     string
}

type Option func(*options)

func WithDSN(dsn string) Option {
	return func(o *options) { o.dsn = dsn }
}

func WithMaxOpenConns(n int) Option {
	return func(o *options) { o.maxOpenConns = n }
}

func WithMaxIdleConns(n int) Option {
	return func(o *options) { o.maxIdleConns = n }
}

func WithConnMaxLifetime(d time.Duration) Option {
	return func(o *options) { o.connMaxLifetime = d }
}

func WithConnTimeout(d time.Duration) Option {
	return func(o *options) { o.connTimeout = d }
}

// WithBusyTimeout sets how long a writer waits on a locked database before failing.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

// WithJournalMode sets the journal mode pragma, WAL unless overridden.
func WithJournalMode(mode string) Option {
	return func(o *options) { o.journalMode = mode }
}

type DB struct {
	*sqlx.DB
	dsn string
}

// New opens and pings the database. With the default single connection an in-memory
// database is shared by every caller and writers are serialized.
func New(ctx context.Context, opts ...Option) (*DB, error) {
	o := options{
		dsn:             memoryDSN,
		maxOpenConns:    1,
		maxIdleConns:    1,
		connMaxLifetime: time.Hour,
		connTimeout:     10 * time.Second,
		busyTimeout:     5 * time.Second,
		journalMode:     "WAL",
	}
	for _, opt := range opts {
		opt(&o)
	}

	dsn := o.fullDSN()
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %s: %w", o.dsn, err)
	}

	db.SetMaxOpenConns(o.maxOpenConns)
	db.SetMaxIdleConns(o.maxIdleConns)
	db.SetConnMaxLifetime(o.connMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, o.connTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database %s: %w", o.dsn, err)
	}

	return &DB{DB: db, dsn: dsn}, nil
}

// fullDSN adds foreign keys, busy timeout and journal mode to a plain file path.
// DSNs that already carry parameters are used as given.
func (o options) fullDSN() string {
	if o.dsn == memoryDSN || strings.Contains(o.dsn, "?") {
		return o.dsn
	}

	params := url.Values{}
	params.Set("_foreign_keys", "on")
	params.Set("_busy_timeout", strconv.FormatInt(o.busyTimeout.Milliseconds(), 10))
	if o.journalMode != "" {
		params.Set("_journal_mode", o.journalMode)
	}

	return "file:" + o.dsn + "?" + params.Encode()
}

func (d *DB) Close() error {
	return d.DB.Close()
}

// Ready reports whether the database still answers a ping.
func (d *DB) Ready(ctx context.Context) error {
	if err := d.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite not ready: %w", err)
	}
	return nil
}
