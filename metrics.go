package praxis

import "sync/atomic"

// MetricID identifies one in-process counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricSecondFactorRequired
	MetricSecondFactorSuccess
	MetricSecondFactorFailure
	MetricChallengeExpired
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricTOTPReplayRejected
	MetricBackupCodeUsed
	MetricBackupCodeRegenerated
	MetricWebAuthnRegistered
	MetricWebAuthnLoginSuccess
	MetricWebAuthnLoginFailure
	MetricWebAuthnCloneRejected
	MetricResetRequested
	MetricResetCompleted
	MetricResetFailed
	MetricResetRateLimited
	MetricLogout
	MetricSessionRevoked
	MetricAnomalousLogin
	MetricMailFailure
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricLoginSuccess:          "praxis_login_success_total",
	MetricLoginFailure:          "praxis_login_failure_total",
	MetricLoginRateLimited:      "praxis_login_rate_limited_total",
	MetricSecondFactorRequired:  "praxis_second_factor_required_total",
	MetricSecondFactorSuccess:   "praxis_second_factor_success_total",
	MetricSecondFactorFailure:   "praxis_second_factor_failure_total",
	MetricChallengeExpired:      "praxis_login_challenge_expired_total",
	MetricRefreshSuccess:        "praxis_refresh_success_total",
	MetricRefreshFailure:        "praxis_refresh_failure_total",
	MetricRefreshReuseDetected:  "praxis_refresh_reuse_detected_total",
	MetricTOTPReplayRejected:    "praxis_totp_replay_rejected_total",
	MetricBackupCodeUsed:        "praxis_backup_code_used_total",
	MetricBackupCodeRegenerated: "praxis_backup_code_regenerated_total",
	MetricWebAuthnRegistered:    "praxis_webauthn_registered_total",
	MetricWebAuthnLoginSuccess:  "praxis_webauthn_login_success_total",
	MetricWebAuthnLoginFailure:  "praxis_webauthn_login_failure_total",
	MetricWebAuthnCloneRejected: "praxis_webauthn_clone_rejected_total",
	MetricResetRequested:        "praxis_reset_requested_total",
	MetricResetCompleted:        "praxis_reset_completed_total",
	MetricResetFailed:           "praxis_reset_failed_total",
	MetricResetRateLimited:      "praxis_reset_rate_limited_total",
	MetricLogout:                "praxis_logout_total",
	MetricSessionRevoked:        "praxis_session_revoked_total",
	MetricAnomalousLogin:        "praxis_login_anomaly_total",
	MetricMailFailure:           "praxis_mail_failure_total",
}

// Name returns the stable export name of the counter.
func (id MetricID) Name() string {
	if id >= metricIDCount {
		return "praxis_unknown"
	}
	return metricNames[id]
}

const cacheLineSize = 64

// paddedCounter keeps hot counters on separate cache lines.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed array of atomic counters. All methods are safe for
// concurrent use; a nil or disabled Metrics is a no-op.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}

	s := MetricsSnapshot{
		Counters: make(map[MetricID]uint64, int(metricIDCount)),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}
