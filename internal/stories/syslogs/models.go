package syslogs

import (
	"context"
	"time"
)

type Kind string

const (
	KindInfo    Kind = "info"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// Entry is an operator-visible log line kept in the database.
type Entry struct {
	ID        int64
	Kind      Kind
	Message   string
	Details   string
	CreatedAt time.Time
}

type ListCriteria struct {
	Kinds []Kind
	Limit int
}

type Storage interface {
	CreateSystemLog(ctx context.Context, entry Entry) error
	ListSystemLogs(ctx context.Context, criteria ListCriteria) ([]*Entry, error)
}
