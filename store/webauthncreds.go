package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	praxis "github.com/praxis-id/praxis"
)

const credentialSelect = `
	SELECT id, user_id, credential_id, public_key, aaguid, sign_count,
	       transports, device_type, name, created_at, last_used_at
	FROM webauthn_credentials`

// InsertWebAuthnCredential persists a newly registered credential. The raw
// credential id is unique across all users: re-registering the same
// authenticator returns praxis.ErrDuplicateRecord.
func (p *Postgres) InsertWebAuthnCredential(ctx context.Context, c *praxis.WebAuthnCredential) error {
	query := `
		INSERT INTO webauthn_credentials
			(id, user_id, credential_id, public_key, aaguid, sign_count, transports, device_type, name, created_at, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL)
	`
	_, err := p.db.ExecContext(ctx, query,
		c.ID, c.UserID, c.CredentialID, c.PublicKey, c.AAGUID, c.SignCount,
		strings.Join(c.Transports, ","), c.DeviceType, c.Name, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return praxis.ErrDuplicateRecord
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// WebAuthnCredentialsByUser lists the user's credentials, oldest first.
func (p *Postgres) WebAuthnCredentialsByUser(ctx context.Context, userID string) ([]*praxis.WebAuthnCredential, error) {
	rows, err := p.db.QueryContext(ctx, credentialSelect+` WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var creds []*praxis.WebAuthnCredential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

// WebAuthnCredentialByCredentialID resolves a raw credential id to its
// record, or praxis.ErrRecordNotFound. Used by discoverable login.
func (p *Postgres) WebAuthnCredentialByCredentialID(ctx context.Context, credentialID []byte) (*praxis.WebAuthnCredential, error) {
	row := p.db.QueryRowContext(ctx, credentialSelect+` WHERE credential_id = $1`, credentialID)
	c, err := scanCredential(row)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return c, nil
}

// UpdateWebAuthnCredentialUsage records a successful assertion: the new
// sign counter and last-used timestamp.
func (p *Postgres) UpdateWebAuthnCredentialUsage(ctx context.Context, id string, signCount uint32, lastUsedAt time.Time) error {
	return p.execOne(ctx,
		`UPDATE webauthn_credentials SET sign_count = $2, last_used_at = $3 WHERE id = $1`,
		id, signCount, lastUsedAt)
}

// RenameWebAuthnCredential updates the friendly name. Scoped by user so one
// user cannot rename another's credential.
func (p *Postgres) RenameWebAuthnCredential(ctx context.Context, userID, id, name string) error {
	return p.execOne(ctx,
		`UPDATE webauthn_credentials SET name = $3 WHERE id = $1 AND user_id = $2`,
		id, userID, name)
}

// DeleteWebAuthnCredential removes a credential, scoped by user.
func (p *Postgres) DeleteWebAuthnCredential(ctx context.Context, userID, id string) error {
	return p.execOne(ctx,
		`DELETE FROM webauthn_credentials WHERE id = $1 AND user_id = $2`,
		id, userID)
}

func scanCredential(s rowScanner) (*praxis.WebAuthnCredential, error) {
	var (
		c          praxis.WebAuthnCredential
		transports string
		lastUsed   sql.NullTime
	)
	err := s.Scan(&c.ID, &c.UserID, &c.CredentialID, &c.PublicKey, &c.AAGUID,
		&c.SignCount, &transports, &c.DeviceType, &c.Name, &c.CreatedAt, &lastUsed)
	if err != nil {
		return nil, err
	}
	if transports != "" {
		c.Transports = strings.Split(transports, ",")
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		c.LastUsedAt = &t
	}
	return &c, nil
}
