package store

import (
	"context"
	"database/sql"
	"fmt"

	praxis "github.com/praxis-id/praxis"
)

const resetSelect = `
	SELECT id, user_id, token_hash, expires_at, used, verification_count, request_ip, used_ip, created_at
	FROM password_reset_tokens`

// InsertResetToken persists a newly issued reset token.
func (p *Postgres) InsertResetToken(ctx context.Context, t *praxis.ResetToken) error {
	query := `
		INSERT INTO password_reset_tokens
			(id, user_id, token_hash, expires_at, used, verification_count, request_ip, used_ip, created_at)
		VALUES ($1, $2, $3, $4, FALSE, 0, $5, NULL, $6)
	`
	_, err := p.db.ExecContext(ctx, query,
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.RequestIP, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ResetTokenByID loads one reset token, or praxis.ErrRecordNotFound.
func (p *Postgres) ResetTokenByID(ctx context.Context, id string) (*praxis.ResetToken, error) {
	var (
		t      praxis.ResetToken
		usedIP sql.NullString
	)
	err := p.db.QueryRowContext(ctx, resetSelect+` WHERE id = $1`, id).Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Used,
		&t.VerificationCount, &t.RequestIP, &usedIP, &t.CreatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	t.UsedIP = usedIP.String
	return &t, nil
}

// InvalidateResetTokens marks every unused token of the user as used, so a
// newer request always supersedes older outstanding links.
func (p *Postgres) InvalidateResetTokens(ctx context.Context, userID string) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE password_reset_tokens SET used = TRUE WHERE user_id = $1 AND NOT used`,
		userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// IncrementResetAttempts bumps the verification counter and returns the new
// value. The counter caps online guessing independently of the expiry.
func (p *Postgres) IncrementResetAttempts(ctx context.Context, id string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx,
		`UPDATE password_reset_tokens SET verification_count = verification_count + 1 WHERE id = $1 RETURNING verification_count`,
		id).Scan(&n)
	if err != nil {
		return 0, mapNotFound(err)
	}
	return n, nil
}

// ConsumeAndResetPassword performs the atomic tail of a password reset:
// mark the token used (only if it still is not), update the password hash,
// and revoke every refresh token the user owns. A concurrent consume of the
// same token loses on the used guard and sees praxis.ErrRecordNotFound.
func (p *Postgres) ConsumeAndResetPassword(ctx context.Context, tokenID, userID, newHash, usedIP string) error {
	return withTx(ctx, p.db, nil, func(ctx context.Context, tx DBTX) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE password_reset_tokens SET used = TRUE, used_ip = $2 WHERE id = $1 AND NOT used`,
			tokenID, usedIP)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return praxis.ErrRecordNotFound
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET password_hash = $2 WHERE id = $1`, userID, newHash); err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE refresh_tokens SET revoked = TRUE, revoked_reason = $2 WHERE user_id = $1 AND NOT revoked`,
			userID, praxis.RevokeReasonPasswordReset)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
}
