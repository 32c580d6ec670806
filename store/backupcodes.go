package store

import (
	"context"
	"fmt"
	"time"

	praxis "github.com/praxis-id/praxis"
)

// ReplaceBackupCodes deletes every existing code for the user and inserts
// the new batch inside one transaction, so a crash can never leave a mixed
// set of old and new codes.
func (p *Postgres) ReplaceBackupCodes(ctx context.Context, userID string, codes []*praxis.BackupCode) error {
	return withTx(ctx, p.db, nil, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		for _, c := range codes {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO backup_codes (id, user_id, code_hash, used, used_at) VALUES ($1, $2, $3, FALSE, NULL)`,
				c.ID, c.UserID, c.CodeHash)
			if err != nil {
				return fmt.Errorf("db error: %w", err)
			}
		}
		return nil
	})
}

// UnusedBackupCodes returns the user's not-yet-consumed codes. Codes are
// argon2-hashed, so verification has to scan and compare each one.
func (p *Postgres) UnusedBackupCodes(ctx context.Context, userID string) ([]*praxis.BackupCode, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, user_id, code_hash, used, used_at FROM backup_codes WHERE user_id = $1 AND NOT used`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var codes []*praxis.BackupCode
	for rows.Next() {
		var c praxis.BackupCode
		if err := rows.Scan(&c.ID, &c.UserID, &c.CodeHash, &c.Used, &c.UsedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		codes = append(codes, &c)
	}
	return codes, rows.Err()
}

// ConsumeBackupCode flips used false->true. The WHERE NOT used guard makes
// the transition happen exactly once even under concurrent verification;
// the loser sees zero rows affected and gets false.
func (p *Postgres) ConsumeBackupCode(ctx context.Context, id string) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE backup_codes SET used = TRUE, used_at = $2 WHERE id = $1 AND NOT used`,
		id, time.Now())
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

// CountUnusedBackupCodes reports how many codes remain.
func (p *Postgres) CountUnusedBackupCodes(ctx context.Context, userID string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM backup_codes WHERE user_id = $1 AND NOT used`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// DeleteBackupCodes removes all codes for the user (TOTP disable).
func (p *Postgres) DeleteBackupCodes(ctx context.Context, userID string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
