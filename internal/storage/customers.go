package storage

import (
	"context"
	"time"

	"iptv-bot/internal/stories/customers"

	sq "github.com/Masterminds/squirrel"
)

const customersTable = "customers"

var customerRowFields = fields(customerRow{})

type customerRow struct {
	Phone     string    `db:"phone"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r customerRow) ToModel() *customers.Customer {
	return &customers.Customer{
		Phone:     r.Phone,
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (s *storageImpl) UpsertCustomer(ctx context.Context, customer customers.Customer) (*customers.Customer, error) {
	now := s.now()

	query := s.stmpBuilder().
		Insert(customersTable).
		Columns("phone", "name", "created_at", "updated_at").
		Values(customer.Phone, customer.Name, now, now).
		Suffix("ON CONFLICT(phone) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at")

	if _, err := s.exec(ctx, query); err != nil {
		return nil, err
	}

	return s.GetCustomer(ctx, customer.Phone)
}

func (s *storageImpl) GetCustomer(ctx context.Context, phone string) (*customers.Customer, error) {
	query := s.stmpBuilder().
		Select(customerRowFields).
		From(customersTable).
		Where(sq.Eq{"phone": normalizePhoneVariants(phone)})

	return getOne[customerRow, customers.Customer](ctx, s.db, query)
}
