package praxis

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// AuditEvent is one security-relevant occurrence, emitted asynchronously
// to the configured sink.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Audit event types emitted by the engine.
const (
	AuditLogin            = "login"
	AuditLoginChallenge   = "login.challenge"
	AuditSecondFactor     = "login.second_factor"
	AuditRefresh          = "token.refresh"
	AuditRefreshReuse     = "token.reuse_detected"
	AuditLogout           = "session.logout"
	AuditSessionRevoked   = "session.revoked"
	AuditTOTPEnroll       = "totp.enroll"
	AuditTOTPDisable      = "totp.disable"
	AuditBackupCodes      = "backup_codes.generated"
	AuditBackupCodeUsed   = "backup_codes.consumed"
	AuditWebAuthnRegister = "webauthn.register"
	AuditWebAuthnLogin    = "webauthn.login"
	AuditWebAuthnClone    = "webauthn.counter_regression"
	AuditWebAuthnRemoved  = "webauthn.removed"
	AuditResetRequested   = "password_reset.requested"
	AuditResetCompleted   = "password_reset.completed"
	AuditResetFailed      = "password_reset.failed"
	AuditMailFailure      = "mail.delivery_failed"
	AuditAnomalousLogin   = "login.anomaly"
	AuditRateLimited      = "rate_limited"
)

// AuditSink receives events from the dispatcher. Emit must not block
// indefinitely; slow sinks cause drops when DropIfFull is set.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink exposes events on a channel, mainly for tests and for
// callers bridging into their own pipeline.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes events as JSON lines.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
