package migrations

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            username TEXT NOT NULL UNIQUE,
            password TEXT NOT NULL,
            level TEXT NOT NULL DEFAULT 'user' CHECK (level IN ('admin', 'user')),
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );`,
	`CREATE TABLE IF NOT EXISTS products (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL UNIQUE,
            unit_price TEXT NOT NULL,
            quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
            image_url TEXT NOT NULL DEFAULT '',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );`,
	`CREATE TABLE IF NOT EXISTS customers (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL UNIQUE,
            address TEXT NOT NULL DEFAULT '-',
            phone TEXT NOT NULL DEFAULT '-'
        );`,
	`CREATE TABLE IF NOT EXISTS sales (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            created_at DATETIME NOT NULL,
            customer_id INTEGER NOT NULL,
            cashier_id INTEGER NOT NULL,
            total_amount TEXT NOT NULL,
            amount_tendered TEXT NOT NULL,
            change_due TEXT NOT NULL,
            payment_method TEXT NOT NULL DEFAULT 'cash',
            FOREIGN KEY(customer_id) REFERENCES customers(id),
            FOREIGN KEY(cashier_id) REFERENCES users(id)
        );`,
	`CREATE INDEX IF NOT EXISTS idx_sales_created_at ON sales(created_at);`,
	`CREATE TABLE IF NOT EXISTS sale_lines (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            sale_id INTEGER NOT NULL,
            product_id INTEGER NOT NULL,
            quantity INTEGER NOT NULL CHECK (quantity >= 1),
            unit_price TEXT NOT NULL,
            subtotal TEXT NOT NULL,
            FOREIGN KEY(sale_id) REFERENCES sales(id),
            FOREIGN KEY(product_id) REFERENCES products(id)
        );`,
	`CREATE INDEX IF NOT EXISTS idx_sale_lines_sale_id ON sale_lines(sale_id);`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			username TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			level TEXT NOT NULL DEFAULT 'user' CHECK (level IN ('admin', 'user')),
			created_at TIMESTAMPTZ DEFAULT NOW()
		);`,
	`CREATE TABLE IF NOT EXISTS products (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			unit_price NUMERIC(14,2) NOT NULL CHECK (unit_price >= 0),
			quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
			image_url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ DEFAULT NOW()
		);`,
	`CREATE TABLE IF NOT EXISTS customers (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			address TEXT NOT NULL DEFAULT '-',
			phone VARCHAR(13) NOT NULL DEFAULT '-'
		);`,
	`CREATE TABLE IF NOT EXISTS sales (
			id BIGSERIAL PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			customer_id BIGINT NOT NULL REFERENCES customers(id),
			cashier_id BIGINT NOT NULL REFERENCES users(id),
			total_amount NUMERIC(14,2) NOT NULL,
			amount_tendered NUMERIC(14,2) NOT NULL,
			change_due NUMERIC(14,2) NOT NULL CHECK (change_due >= 0),
			payment_method VARCHAR(50) NOT NULL DEFAULT 'cash'
		);`,
	`CREATE INDEX IF NOT EXISTS idx_sales_created_at ON sales(created_at);`,
	`CREATE TABLE IF NOT EXISTS sale_lines (
			id BIGSERIAL PRIMARY KEY,
			sale_id BIGINT NOT NULL REFERENCES sales(id),
			product_id BIGINT NOT NULL REFERENCES products(id),
			quantity INTEGER NOT NULL CHECK (quantity >= 1),
			unit_price NUMERIC(14,2) NOT NULL,
			subtotal NUMERIC(14,2) NOT NULL
		);`,
	`CREATE INDEX IF NOT EXISTS idx_sale_lines_sale_id ON sale_lines(sale_id);`,
}

// Run creates the database schema for the dialect behind db.
func Run(ctx context.Context, db *sqlx.DB) error {
	var schema []string
	switch db.DriverName() {
	case "sqlite":
		schema = sqliteSchema
	case "pgx", "postgres":
		schema = postgresSchema
	default:
		return fmt.Errorf("no schema for driver %q", db.DriverName())
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
