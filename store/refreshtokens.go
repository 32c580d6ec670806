package store

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"fmt"
	"time"

	praxis "github.com/praxis-id/praxis"
)

const refreshSelect = `
	SELECT id, user_id, token_hash, parent_id, root_id, device_info,
	       issued_at, expires_at, root_issued_at, revoked, revoked_reason
	FROM refresh_tokens`

// InsertRefreshToken persists a chain root. Rotation children are inserted
// by Rotate, never directly.
func (p *Postgres) InsertRefreshToken(ctx context.Context, t *praxis.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens
			(id, user_id, token_hash, parent_id, root_id, device_info, issued_at, expires_at, root_issued_at, revoked, revoked_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := p.db.ExecContext(ctx, query,
		t.ID, t.UserID, t.TokenHash, nullString(t.ParentID), t.RootID,
		t.DeviceInfo, t.IssuedAt, t.ExpiresAt, t.RootIssuedAt,
		t.Revoked, nullString(t.RevokedReason),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// RefreshTokenByID loads one token row, or praxis.ErrRecordNotFound.
func (p *Postgres) RefreshTokenByID(ctx context.Context, id string) (*praxis.RefreshToken, error) {
	return scanRefreshToken(p.db.QueryRowContext(ctx, refreshSelect+` WHERE id = $1`, id))
}

// Rotate supersedes the presented token and inserts its successor in one
// transaction. The presented row is locked with FOR UPDATE, so of two
// concurrent rotations exactly one commits; the other blocks on the lock,
// then reads the superseded row and fails with praxis.ErrTokenSuperseded.
// The old record is returned alongside any validation error so the engine
// can revoke the owner's tokens on a reuse sighting.
func (p *Postgres) Rotate(ctx context.Context, oldID string, presentedHash []byte, next *praxis.RefreshToken, absoluteLifetime time.Duration) (*praxis.RefreshToken, error) {
	var old *praxis.RefreshToken

	err := withTx(ctx, p.db, nil, func(ctx context.Context, tx DBTX) error {
		row := tx.QueryRowContext(ctx, refreshSelect+` WHERE id = $1 FOR UPDATE`, oldID)
		loaded, err := scanRefreshToken(row)
		if err != nil {
			return err
		}
		old = loaded

		now := time.Now()
		switch {
		case old.Revoked && old.RevokedReason == praxis.RevokeReasonSuperseded:
			return praxis.ErrTokenSuperseded
		case old.Revoked:
			return praxis.ErrTokenRevoked
		case subtle.ConstantTimeCompare(old.TokenHash, presentedHash) != 1:
			return praxis.ErrTokenValueMismatch
		case now.After(old.ExpiresAt):
			return praxis.ErrTokenExpired
		case absoluteLifetime > 0 && now.After(old.RootIssuedAt.Add(absoluteLifetime)):
			return praxis.ErrChainLifetimeExceeded
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE refresh_tokens SET revoked = TRUE, revoked_reason = $2 WHERE id = $1`,
			oldID, praxis.RevokeReasonSuperseded,
		); err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		next.UserID = old.UserID
		next.ParentID = old.ID
		next.RootID = old.RootID
		next.RootIssuedAt = old.RootIssuedAt
		_, err = tx.ExecContext(ctx, `
			INSERT INTO refresh_tokens
				(id, user_id, token_hash, parent_id, root_id, device_info, issued_at, expires_at, root_issued_at, revoked, revoked_reason)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, NULL)`,
			next.ID, next.UserID, next.TokenHash, next.ParentID, next.RootID,
			next.DeviceInfo, next.IssuedAt, next.ExpiresAt, next.RootIssuedAt,
		)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
	return old, err
}

// RevokeRefreshToken revokes a single token row.
func (p *Postgres) RevokeRefreshToken(ctx context.Context, id, reason string) error {
	return p.execOne(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, revoked_reason = $2 WHERE id = $1 AND NOT revoked`,
		id, reason)
}

// RevokeChain revokes every not-yet-revoked member of one rotation chain.
func (p *Postgres) RevokeChain(ctx context.Context, rootID, reason string) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, revoked_reason = $2 WHERE root_id = $1 AND NOT revoked`,
		rootID, reason)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// RevokeAllRefreshTokens revokes every active token the user owns, across
// all chains. Used on reuse detection and password reset.
func (p *Postgres) RevokeAllRefreshTokens(ctx context.Context, userID, reason string) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, revoked_reason = $2 WHERE user_id = $1 AND NOT revoked`,
		userID, reason)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ActiveRefreshTokens lists the user's live tokens, newest first. Each live
// token is the tip of one session chain.
func (p *Postgres) ActiveRefreshTokens(ctx context.Context, userID string) ([]*praxis.RefreshToken, error) {
	rows, err := p.db.QueryContext(ctx,
		refreshSelect+` WHERE user_id = $1 AND NOT revoked AND expires_at > NOW() ORDER BY issued_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var tokens []*praxis.RefreshToken
	for rows.Next() {
		t, err := scanRefreshTokenRows(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRefreshToken(row *sql.Row) (*praxis.RefreshToken, error) {
	t, err := scanRefreshRow(row)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return t, nil
}

func scanRefreshTokenRows(rows *sql.Rows) (*praxis.RefreshToken, error) {
	t, err := scanRefreshRow(rows)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func scanRefreshRow(s rowScanner) (*praxis.RefreshToken, error) {
	var (
		t      praxis.RefreshToken
		parent sql.NullString
		reason sql.NullString
	)
	err := s.Scan(&t.ID, &t.UserID, &t.TokenHash, &parent, &t.RootID, &t.DeviceInfo,
		&t.IssuedAt, &t.ExpiresAt, &t.RootIssuedAt, &t.Revoked, &reason)
	if err != nil {
		return nil, err
	}
	t.ParentID = parent.String
	t.RevokedReason = reason.String
	return &t, nil
}
