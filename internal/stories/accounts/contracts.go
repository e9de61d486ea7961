package accounts

import "context"

type (
	Storage interface {
		CreateAccount(ctx context.Context, account Account) (*Account, error)
		GetAccount(ctx context.Context, criteria GetCriteria) (*Account, error)
		ListAccounts(ctx context.Context, criteria ListCriteria) ([]*Account, error)
		UpdateAccount(ctx context.Context, criteria GetCriteria, params UpdateParams) (*Account, error)
	}
)
