package notification

import (
	"context"
	"time"

	"iptv-bot/internal/stories/accounts"
)

type (
	Storage interface {
		ListAccountsToRemind(ctx context.Context, deadline, notRemindedSince time.Time) ([]*accounts.Account, error)
		MarkAccountReminded(ctx context.Context, id int64) error
	}

	Messenger interface {
		SendMessage(ctx context.Context, phone, text string) error
	}

	Localizer interface {
		Get(lang, key string, params map[string]interface{}) string
	}
)
