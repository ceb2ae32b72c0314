package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// AdminSeed describes the administrative account created when none exists.
// PasswordHash is already hashed by the caller.
type AdminSeed struct {
	Username     string
	Email        string
	PasswordHash string
}

// Schema returns the DDL for a dialect, in execution order
func Schema(d Dialect) []string {
	if d == DialectPostgres {
		return postgresSchema
	}
	return sqliteSchema
}

// Bootstrap creates the schema if absent and seeds the admin account.
// "Already exists" failures count as success, including a unique violation
// raised by a DDL statement racing another process.
func Bootstrap(ctx context.Context, b Backend, seed AdminSeed, log *zap.Logger) error {
	log = log.Named("bootstrap").With(zap.String("backend", b.Name()))

	for _, ddl := range Schema(b.Dialect()) {
		if _, err := b.Query(ctx, DDL(ddl)); err != nil {
			if IsAlreadyExists(err) || errors.Is(err, ErrDuplicate) {
				log.Debug("schema object already exists", zap.Error(err))
				continue
			}
			return fmt.Errorf("create schema: %w", err)
		}
	}

	created, err := seedAdmin(ctx, b, seed)
	if err != nil {
		// another process seeded concurrently
		if errors.Is(err, ErrDuplicate) || IsAlreadyExists(err) {
			log.Warn("admin seed skipped", zap.Error(err))
			return nil
		}
		return fmt.Errorf("seed admin: %w", err)
	}
	if created {
		log.Info("admin account created", zap.String("username", seed.Username))
	}
	return nil
}

// seedAdmin inserts the admin only when no admin row exists, in one statement
func seedAdmin(ctx context.Context, b Backend, seed AdminSeed) (bool, error) {
	if seed.Username == "" || seed.PasswordHash == "" {
		return false, nil
	}

	d := b.Dialect()
	text := d.Rebind(`INSERT INTO users (username, email, password_hash, first_name, last_name, role, is_active)
		SELECT ?, ?, ?, 'Admin', 'User', 'admin', ` + d.Bool(true) + `
		WHERE NOT EXISTS (SELECT 1 FROM users WHERE role = 'admin')`)

	res, err := b.Query(ctx, Insert(text, seed.Username, seed.Email, seed.PasswordHash))
	if err != nil {
		return false, err
	}
	return res.RowsAffected > 0, nil
}
