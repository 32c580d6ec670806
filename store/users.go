package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	praxis "github.com/praxis-id/praxis"
)

// CreateUser inserts a new identity record. A NULL password hash marks a
// passwordless (WebAuthn-only) account.
func (p *Postgres) CreateUser(ctx context.Context, u *praxis.User) error {
	query := `
		INSERT INTO users (id, email, username, password_hash, totp_secret_enc, totp_enabled, totp_last_counter, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := p.db.ExecContext(ctx, query,
		u.ID, strings.ToLower(u.Email), u.Username,
		nullString(u.PasswordHash), u.TOTPSecretEnc,
		u.TOTPEnabled, u.TOTPLastCounter, u.Verified, u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return praxis.ErrDuplicateRecord
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// UserByEmail returns the user with the given email (case-insensitive), or
// praxis.ErrRecordNotFound.
func (p *Postgres) UserByEmail(ctx context.Context, email string) (*praxis.User, error) {
	return p.scanUser(p.db.QueryRowContext(ctx, userSelect+` WHERE email = $1`, strings.ToLower(email)))
}

// UserByID returns the user with the given id, or praxis.ErrRecordNotFound.
func (p *Postgres) UserByID(ctx context.Context, id string) (*praxis.User, error) {
	return p.scanUser(p.db.QueryRowContext(ctx, userSelect+` WHERE id = $1`, id))
}

// UpdatePasswordHash replaces the stored password hash.
func (p *Postgres) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return p.execOne(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, userID, hash)
}

// SetTOTP stores the encrypted TOTP secret and enabled flag together. A nil
// secret with enabled=false clears enrollment.
func (p *Postgres) SetTOTP(ctx context.Context, userID string, secretEnc []byte, enabled bool) error {
	return p.execOne(ctx,
		`UPDATE users SET totp_secret_enc = $2, totp_enabled = $3, totp_last_counter = 0 WHERE id = $1`,
		userID, secretEnc, enabled)
}

// UpdateTOTPCounter advances the last accepted TOTP time-step counter. The
// counter only moves forward; a concurrent verification that already
// advanced it further wins.
func (p *Postgres) UpdateTOTPCounter(ctx context.Context, userID string, counter int64) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE users SET totp_last_counter = GREATEST(totp_last_counter, $2) WHERE id = $1`,
		userID, counter)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const userSelect = `
	SELECT id, email, username, password_hash, totp_secret_enc, totp_enabled, totp_last_counter, verified, created_at
	FROM users`

func (p *Postgres) scanUser(row *sql.Row) (*praxis.User, error) {
	var (
		u    praxis.User
		hash sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.Username, &hash, &u.TOTPSecretEnc,
		&u.TOTPEnabled, &u.TOTPLastCounter, &u.Verified, &u.CreatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	u.PasswordHash = hash.String
	return &u, nil
}

func (p *Postgres) execOne(ctx context.Context, query string, args ...any) error {
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return praxis.ErrRecordNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isUniqueViolation reports SQLSTATE 23505 (unique_violation).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
