package praxis

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/praxis-id/praxis/internal"
)

// Login methods recorded in the history trail.
const (
	MethodPassword   = "password"
	MethodTOTP       = "totp"
	MethodBackupCode = "backup_code"
	MethodWebAuthn   = "webauthn"
)

// recordLogin appends one history entry. It is best effort end to end:
// encryption, geo lookup, the anomaly probe, and the insert itself may
// all fail without affecting the caller's outcome.
func (e *Engine) recordLogin(ctx context.Context, userID string, device DeviceInfo, method string, success bool, failReason string) {
	record := &LoginRecord{
		ID:         uuid.NewString(),
		UserID:     userID,
		At:         e.now(),
		UserAgent:  device.UserAgent,
		Success:    success,
		FailReason: failReason,
		Method:     method,
		DeviceType: internal.DeviceTypeFromUserAgent(device.UserAgent),
	}

	if device.IP != "" {
		if enc, err := e.cipher.EncryptString(device.IP); err == nil {
			record.IPEnc = enc
		}
		h := internal.HashBytes([]byte(device.IP))
		record.IPHash = h[:]
	}
	if device.Fingerprint != "" {
		if enc, err := e.cipher.EncryptString(device.Fingerprint); err == nil {
			record.FingerprintEnc = enc
		}
		h := internal.HashBytes([]byte(device.Fingerprint))
		record.FingerprintHash = h[:]
	}

	if e.geoip != nil && device.IP != "" {
		if loc, err := e.geoip.Lookup(ctx, device.IP); err == nil {
			if data, err := json.Marshal(loc); err == nil {
				record.LocationJSON = data
			}
		} else {
			e.logf("geoip lookup: %v", err)
		}
	}

	if success {
		ipSeen, fpSeen, err := e.store.SeenLogin(ctx, userID, record.IPHash, record.FingerprintHash)
		if err != nil {
			e.logf("history probe: %v", err)
		} else {
			record.NewLocation = record.IPHash != nil && !ipSeen
			record.NewDevice = record.FingerprintHash != nil && !fpSeen
		}
		if record.NewDevice || record.NewLocation {
			e.metricInc(MetricAnomalousLogin)
			e.emitAudit(ctx, AuditAnomalousLogin, true, userID, "", device.IP, nil, map[string]string{
				"new_device":   boolString(record.NewDevice),
				"new_location": boolString(record.NewLocation),
				"method":       method,
			})
		}
	}

	if err := e.store.AppendLoginRecord(ctx, record); err != nil {
		e.logf("history append: %v", err)
	}
}

// LoginHistory returns the newest entries for the user, decrypted for
// display. Repeated listings hit the bounded decrypt cache instead of
// running AES-GCM per row.
func (e *Engine) LoginHistory(ctx context.Context, userID string, limit int) ([]LoginHistoryEntry, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrInvalidInput
	}
	if limit <= 0 || limit > e.cfg.History.MaxRecords {
		limit = e.cfg.History.MaxRecords
	}

	records, err := e.store.LoginRecords(ctx, userID, limit)
	if err != nil {
		return nil, e.wrapStoreErr(err)
	}

	entries := make([]LoginHistoryEntry, 0, len(records))
	for _, r := range records {
		entry := LoginHistoryEntry{
			At:          r.At,
			UserAgent:   r.UserAgent,
			Method:      r.Method,
			Success:     r.Success,
			FailReason:  r.FailReason,
			NewDevice:   r.NewDevice,
			NewLocation: r.NewLocation,
		}
		entry.IP = e.decryptCached(r.IPEnc)
		if len(r.LocationJSON) > 0 {
			var loc Location
			if json.Unmarshal(r.LocationJSON, &loc) == nil {
				entry.Location = formatLocation(loc)
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// PruneLoginHistory removes entries past the configured retention and
// returns the number deleted.
func (e *Engine) PruneLoginHistory(ctx context.Context) (int64, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}
	cutoff := e.now().Add(-e.cfg.History.Retention)
	n, err := e.store.PruneLoginRecords(ctx, cutoff)
	if err != nil {
		return 0, e.wrapStoreErr(err)
	}
	return n, nil
}

// decryptCached resolves a ciphertext through the LRU cache. Undecodable
// or empty ciphertexts yield "".
func (e *Engine) decryptCached(ciphertext []byte) string {
	if len(ciphertext) == 0 {
		return ""
	}
	if plain, ok := e.decrypt.Get(ciphertext); ok {
		return plain
	}
	plain, err := e.cipher.DecryptString(ciphertext)
	if err != nil {
		return ""
	}
	e.decrypt.Put(ciphertext, plain)
	return plain
}

func formatLocation(loc Location) string {
	out := ""
	for _, part := range []string{loc.City, loc.Region, loc.Country} {
		if part == "" {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += part
	}
	return out
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
