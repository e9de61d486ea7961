package storage

import (
	"context"
	"fmt"
	"time"

	"iptv-bot/internal/stories/conversations"

	sq "github.com/Masterminds/squirrel"
)

const conversationsTable = "conversations"

var conversationRowFields = fields(conversationRow{})

type conversationRow struct {
	Phone     string    `db:"phone"`
	Context   string    `db:"context"`
	Step      string    `db:"step"`
	Scratch   string    `db:"scratch"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r conversationRow) ToModel() *conversationRow {
	return &r
}

func (r conversationRow) toState() (*conversations.State, error) {
	c, step := conversations.Context(r.Context), conversations.Step(r.Step)
	if !conversations.Valid(c, step) {
		return nil, fmt.Errorf("%w: address %s/%s", conversations.ErrCorruptState, c, step)
	}

	scratch, err := conversations.DecodeScratch(c, step, []byte(r.Scratch))
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %v", conversations.ErrCorruptState, c, step, err)
	}

	return &conversations.State{
		Phone:     r.Phone,
		Context:   c,
		Step:      step,
		Scratch:   scratch,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

// GetConversation returns the stored state or nil when the phone never wrote before.
func (s *storageImpl) GetConversation(ctx context.Context, phone string) (*conversations.State, error) {
	query := s.stmpBuilder().
		Select(conversationRowFields).
		From(conversationsTable).
		Where(sq.Eq{"phone": phone})

	row, err := getOne[conversationRow, conversationRow](ctx, s.db, query)
	if err != nil || row == nil {
		return nil, err
	}

	return row.toState()
}

// SaveConversation overwrites the single row kept for the phone.
func (s *storageImpl) SaveConversation(ctx context.Context, state conversations.State) error {
	if !conversations.Valid(state.Context, state.Step) {
		return fmt.Errorf("invalid conversation address %s", state.Addr())
	}

	scratch := conversations.EncodeScratch(state.Scratch)
	query := s.stmpBuilder().
		Insert(conversationsTable).
		Columns("phone", "context", "step", "scratch", "updated_at").
		Values(state.Phone, string(state.Context), string(state.Step), string(scratch), s.now()).
		Suffix("ON CONFLICT(phone) DO UPDATE SET context = excluded.context, step = excluded.step, scratch = excluded.scratch, updated_at = excluded.updated_at")

	_, err := s.exec(ctx, query)
	return err
}
