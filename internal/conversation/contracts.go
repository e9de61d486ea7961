package conversation

import (
	"context"

	"iptv-bot/internal/storage"
	"iptv-bot/internal/stories/accounts"
	"iptv-bot/internal/stories/conversations"
	"iptv-bot/internal/stories/customers"
	"iptv-bot/internal/stories/payment"
	"iptv-bot/internal/stories/settings"
)

type (
	// Store is the part of the state store the engine reads and writes.
	Store interface {
		conversations.Storage
		GetCustomer(ctx context.Context, phone string) (*customers.Customer, error)
		GetAccount(ctx context.Context, criteria accounts.GetCriteria) (*accounts.Account, error)
		ListAccounts(ctx context.Context, criteria accounts.ListCriteria) ([]*accounts.Account, error)
		RunInTx(ctx context.Context, fn func(tx storage.Tx) error) error
	}

	// Messenger delivers outbound chat text.
	Messenger interface {
		SendMessage(ctx context.Context, phone, text string) error
	}

	Charger interface {
		CreateCharge(ctx context.Context, phone string, amount float64, metadata map[string]string) (*payment.Charge, error)
	}

	Settings interface {
		Values(ctx context.Context) (settings.Values, error)
	}

	Localizer interface {
		Get(lang, key string, params map[string]interface{}) string
	}

	Metrics interface {
		ObserveTransition(from, to string)
	}
)
