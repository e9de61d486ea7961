package customers

import "context"

type (
	Storage interface {
		UpsertCustomer(ctx context.Context, customer Customer) (*Customer, error)
		GetCustomer(ctx context.Context, phone string) (*Customer, error)
	}
)
