package praxis

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	"github.com/praxis-id/praxis/internal"
)

// RegenerateBackupCodes replaces the user's recovery codes with a fresh
// batch. Every previous code stops working, used or not; the new
// plaintexts are returned exactly once and only hashes are stored.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrInvalidInput
	}

	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return nil, e.wrapStoreErr(err)
	}
	if !user.TOTPEnabled {
		return nil, ErrSecondFactorNotEnrolled
	}

	return e.generateBackupCodes(ctx, userID)
}

// RemainingBackupCodes reports how many unused codes the user has left,
// so callers can warn before the supply runs out.
func (e *Engine) RemainingBackupCodes(ctx context.Context, userID string) (int, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, ErrInvalidInput
	}
	n, err := e.store.CountUnusedBackupCodes(ctx, userID)
	if err != nil {
		return 0, e.wrapStoreErr(err)
	}
	return n, nil
}

// generateBackupCodes mints a batch, hashes each code with argon2id,
// and swaps the stored set atomically.
func (e *Engine) generateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	count := e.cfg.BackupCode.Count
	plaintexts := make([]string, 0, count)
	records := make([]*BackupCode, 0, count)

	for i := 0; i < count; i++ {
		code, err := internal.NewBackupCode(e.cfg.BackupCode.Length)
		if err != nil {
			return nil, err
		}
		hash, err := e.hasher.Hash(internal.CanonicalizeBackupCode(code))
		if err != nil {
			return nil, err
		}
		plaintexts = append(plaintexts, code)
		records = append(records, &BackupCode{
			ID:       uuid.NewString(),
			UserID:   userID,
			CodeHash: hash,
		})
	}

	if err := e.store.ReplaceBackupCodes(ctx, userID, records); err != nil {
		return nil, e.wrapStoreErr(err)
	}

	e.metricInc(MetricBackupCodeRegenerated)
	e.emitAudit(ctx, AuditBackupCodes, true, userID, "", "", nil, map[string]string{
		"count": strconv.Itoa(count),
	})
	return plaintexts, nil
}
