package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	praxis "github.com/praxis-id/praxis"
)

// AppendLoginRecord inserts one audit entry. Rows are never updated after
// insertion, only pruned by retention.
func (p *Postgres) AppendLoginRecord(ctx context.Context, r *praxis.LoginRecord) error {
	query := `
		INSERT INTO login_history
			(id, user_id, login_at, ip_enc, ip_hash, fingerprint_enc, fingerprint_hash,
			 user_agent, location_json, success, fail_reason, login_method, device_type,
			 new_device, new_location)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := p.db.ExecContext(ctx, query,
		r.ID, r.UserID, r.At, r.IPEnc, r.IPHash, r.FingerprintEnc, r.FingerprintHash,
		r.UserAgent, r.LocationJSON, r.Success, nullString(r.FailReason), r.Method, r.DeviceType,
		r.NewDevice, r.NewLocation)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// LoginRecords returns the newest records for a user, capped at limit.
func (p *Postgres) LoginRecords(ctx context.Context, userID string, limit int) ([]*praxis.LoginRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, login_at, ip_enc, ip_hash, fingerprint_enc, fingerprint_hash,
		       user_agent, location_json, success, fail_reason, login_method, device_type,
		       new_device, new_location
		FROM login_history
		WHERE user_id = $1
		ORDER BY login_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var records []*praxis.LoginRecord
	for rows.Next() {
		var (
			r      praxis.LoginRecord
			reason sql.NullString
		)
		err := rows.Scan(&r.ID, &r.UserID, &r.At, &r.IPEnc, &r.IPHash,
			&r.FingerprintEnc, &r.FingerprintHash, &r.UserAgent, &r.LocationJSON,
			&r.Success, &reason, &r.Method, &r.DeviceType,
			&r.NewDevice, &r.NewLocation)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		r.FailReason = reason.String
		records = append(records, &r)
	}
	return records, rows.Err()
}

// SeenLogin reports whether the user already has a successful login from
// the given IP hash respectively fingerprint hash. Feeds the new-device /
// new-location anomaly flags.
func (p *Postgres) SeenLogin(ctx context.Context, userID string, ipHash, fpHash []byte) (bool, bool, error) {
	var ipSeen, fpSeen bool
	err := p.db.QueryRowContext(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM login_history WHERE user_id = $1 AND success AND ip_hash = $2),
			EXISTS (SELECT 1 FROM login_history WHERE user_id = $1 AND success AND fingerprint_hash = $3)`,
		userID, ipHash, fpHash).Scan(&ipSeen, &fpSeen)
	if err != nil {
		return false, false, fmt.Errorf("db error: %w", err)
	}
	return ipSeen, fpSeen, nil
}

// PruneLoginRecords deletes records older than before and returns the
// number removed.
func (p *Postgres) PruneLoginRecords(ctx context.Context, before time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM login_history WHERE login_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}
