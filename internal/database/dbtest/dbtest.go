// Package dbtest provides throwaway migrated sqlite databases for tests.
package dbtest

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"kasir/m/domain"
	"kasir/m/internal/database"
	"kasir/m/internal/migrations"
)

// Open returns a migrated sqlite database in a temp dir, closed on cleanup.
func Open(t testing.TB) *sqlx.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "kasir.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	db, err := database.Connect("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(context.Background(), db))
	return db
}

// Product inserts a product and returns its id.
func Product(t testing.TB, db *sqlx.DB, name string, price int64, quantity int64) int64 {
	t.Helper()
	var id int64
	err := db.QueryRowx(`INSERT INTO products (name, unit_price, quantity, created_at) VALUES (?, ?, ?, ?) RETURNING id`,
		name, domain.NewMoney(price), quantity, time.Now().UTC()).Scan(&id)
	require.NoError(t, err)
	return id
}

// User inserts a user with the given level and password and returns its id.
func User(t testing.TB, db *sqlx.DB, username, password, level string) int64 {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	var id int64
	err = db.QueryRowx(`INSERT INTO users (name, username, password, level, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id`,
		fmt.Sprintf("Kasir %s", username), username, string(hashed), level, time.Now().UTC()).Scan(&id)
	require.NoError(t, err)
	return id
}

// Quantity reads a product's stored quantity.
func Quantity(t testing.TB, db *sqlx.DB, productID int64) int64 {
	t.Helper()
	var qty int64
	require.NoError(t, db.Get(&qty, `SELECT quantity FROM products WHERE id = ?`, productID))
	return qty
}

// Count returns the number of rows in table.
func Count(t testing.TB, db *sqlx.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM "+table))
	return n
}
