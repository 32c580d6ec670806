package praxis

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// totpManager wraps time-based one-time-password generation and
// verification. Verification reports the time-step counter that
// matched so the engine can reject replays of an already accepted
// code.
type totpManager struct {
	cfg TOTPConfig
}

func newTOTPManager(cfg TOTPConfig) *totpManager {
	return &totpManager{cfg: cfg}
}

func (m *totpManager) digits() otp.Digits {
	if m.cfg.Digits == 8 {
		return otp.DigitsEight
	}
	return otp.DigitsSix
}

// Generate produces a fresh base32 secret and the otpauth provisioning
// URI for the given account label.
func (m *totpManager) Generate(account string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.cfg.Issuer,
		AccountName: account,
		Period:      uint(m.cfg.Period),
		Digits:      m.digits(),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// Verify checks code against secret within the configured skew window.
// It validates each candidate time step individually so the matched
// step is known; the returned counter is the step index that accepted
// the code. ok is false when no step in the window matches.
func (m *totpManager) Verify(secret, code string, now time.Time) (counter uint64, ok bool) {
	period := int64(m.cfg.Period)
	opts := totp.ValidateOpts{
		Period:    uint(m.cfg.Period),
		Skew:      0,
		Digits:    m.digits(),
		Algorithm: otp.AlgorithmSHA1,
	}

	for off := -m.cfg.Skew; off <= m.cfg.Skew; off++ {
		at := now.Add(time.Duration(int64(off)*period) * time.Second)
		valid, err := totp.ValidateCustom(code, secret, at, opts)
		if err != nil || !valid {
			continue
		}
		return uint64(at.Unix() / period), true
	}
	return 0, false
}
