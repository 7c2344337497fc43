// Package inventory owns per-product available quantity. The only write paths
// are the conditional decrement used by checkout and administrative restock.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"kasir/m/domain"
)

const (
	selectProductSQL  = `SELECT id, name, unit_price, quantity, image_url FROM products WHERE id = ?`
	decrementStockSQL = `UPDATE products SET quantity = quantity - ? WHERE id = ? AND quantity >= ? RETURNING quantity`
	restockSQL        = `UPDATE products SET quantity = quantity + ? WHERE id = ? RETURNING quantity`
)

// Order values for LowStockOptions.
const (
	OrderByQuantity = "asc"
	OrderByID       = "none"
)

// LowStockOptions controls the low-stock listing consumed by reporting.
// Threshold 0 disables the filter and Limit 0 returns every match.
type LowStockOptions struct {
	Threshold int64
	Limit     int
	Order     string
}

type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// List returns the catalog snapshot ordered by name, optionally filtered by a
// case-insensitive substring of the product name.
func (s *Store) List(ctx context.Context, query string) ([]domain.Product, error) {
	q := `SELECT id, name, unit_price, quantity, image_url FROM products`
	var args []any
	if query = strings.TrimSpace(query); query != "" {
		q += ` WHERE LOWER(name) LIKE ?`
		args = append(args, "%"+strings.ToLower(query)+"%")
	}
	q += ` ORDER BY name`

	products := []domain.Product{}
	if err := s.db.SelectContext(ctx, &products, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// Product reads one product outside any unit of work.
func (s *Store) Product(ctx context.Context, id int64) (domain.Product, error) {
	return s.Get(ctx, s.db, id)
}

// Get reads one product through ext, which may be a transaction.
func (s *Store) Get(ctx context.Context, ext sqlx.ExtContext, id int64) (domain.Product, error) {
	var p domain.Product
	err := sqlx.GetContext(ctx, ext, &p, ext.Rebind(selectProductSQL), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("product %d: %w", id, domain.ErrProductNotFound)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("load product %d: %w", id, err)
	}
	return p, nil
}

// TryDecrement subtracts qty from the product's quantity only if at least qty
// is available at that instant. Check and subtraction are one statement, so
// concurrent callers can never drive the quantity below zero.
func (s *Store) TryDecrement(ctx context.Context, ext sqlx.ExtContext, id, qty int64) (int64, error) {
	if qty < 1 {
		return 0, fmt.Errorf("decrement product %d by %d: %w", id, qty, domain.ErrInvalidQuantity)
	}

	var remaining int64
	err := sqlx.GetContext(ctx, ext, &remaining, ext.Rebind(decrementStockSQL), qty, id, qty)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("decrement product %d: %w", id, err)
	}

	// No row matched: either the product is gone or the stock is short.
	p, err := s.Get(ctx, ext, id)
	if err != nil {
		return 0, err
	}
	return 0, &domain.StockError{
		ProductID:   id,
		ProductName: p.Name,
		Requested:   qty,
		Available:   p.AvailableQuantity,
		Err:         domain.ErrInsufficientStock,
	}
}

// Restock adds qty units to a product and returns the new quantity.
func (s *Store) Restock(ctx context.Context, id, qty int64) (int64, error) {
	if qty < 1 {
		return 0, fmt.Errorf("restock product %d by %d: %w", id, qty, domain.ErrInvalidQuantity)
	}
	var quantity int64
	err := s.db.GetContext(ctx, &quantity, s.db.Rebind(restockSQL), qty, id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("product %d: %w", id, domain.ErrProductNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("restock product %d: %w", id, err)
	}
	return quantity, nil
}

// LowStock lists products for the stock panel of the dashboard.
func (s *Store) LowStock(ctx context.Context, opts LowStockOptions) ([]domain.Product, error) {
	q := `SELECT id, name, unit_price, quantity, image_url FROM products`
	var args []any
	if opts.Threshold > 0 {
		q += ` WHERE quantity <= ?`
		args = append(args, opts.Threshold)
	}
	switch opts.Order {
	case OrderByID:
		q += ` ORDER BY id`
	default:
		q += ` ORDER BY quantity ASC, name ASC`
	}
	if opts.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	products := []domain.Product{}
	if err := s.db.SelectContext(ctx, &products, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	return products, nil
}
