// Package seed bootstraps a fresh database with a catalog and a first admin.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"kasir/m/domain"
)

// Admin creates an admin account when no user exists yet. It reports whether
// an account was created.
func Admin(ctx context.Context, db *sqlx.DB, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}
	var users int
	if err := db.GetContext(ctx, &users, `SELECT COUNT(*) FROM users`); err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	if users > 0 {
		return false, nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("unable to secure password: %w", err)
	}
	_, err = db.ExecContext(ctx, db.Rebind(`INSERT INTO users (name, username, password, level, created_at) VALUES (?, ?, ?, ?, ?)`),
		"Administrator", username, string(hashed), domain.LevelAdmin, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("create admin %s: %w", username, err)
	}
	log.Info().Str("username", username).Msg("created first admin account")
	return true, nil
}
