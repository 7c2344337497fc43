// Package customers resolves the customer a sale is recorded against.
package customers

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"kasir/m/domain"
)

const (
	insertCustomerSQL = `INSERT INTO customers (name, address, phone) VALUES (?, ?, ?) ON CONFLICT (name) DO NOTHING`
	customerIDSQL     = `SELECT id FROM customers WHERE name = ?`
	listCustomersSQL  = `SELECT id, name, address, phone FROM customers ORDER BY name`
)

type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Resolve returns the id of the customer with the given name, creating it with
// placeholder contact details when absent. A blank name is the walk-in customer.
// Resolving the same name twice yields the same id.
func (s *Store) Resolve(ctx context.Context, ext sqlx.ExtContext, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = domain.WalkInCustomer
	}

	if _, err := ext.ExecContext(ctx, ext.Rebind(insertCustomerSQL), name, domain.Placeholder, domain.Placeholder); err != nil {
		return 0, fmt.Errorf("insert customer %q: %w", name, err)
	}
	var id int64
	if err := sqlx.GetContext(ctx, ext, &id, ext.Rebind(customerIDSQL), name); err != nil {
		return 0, fmt.Errorf("load customer %q: %w", name, err)
	}
	return id, nil
}

func (s *Store) List(ctx context.Context) ([]domain.Customer, error) {
	customers := []domain.Customer{}
	if err := s.db.SelectContext(ctx, &customers, listCustomersSQL); err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return customers, nil
}
