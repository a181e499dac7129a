package authcore

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Audit action names.
const (
	auditActionLogin              = "login"
	auditActionRegister           = "register"
	auditActionPasswordResetReq   = "password_reset_request"
	auditActionPasswordResetUse   = "password_reset_redeem"
	auditActionEmailVerify        = "email_verify"
	auditActionResendVerification = "resend_verification"
	auditActionRateLimit          = "rate_limit"
)

// Audit reason codes for failed outcomes.
const (
	auditReasonInvalidCredentials = "INVALID_CREDENTIALS"
	auditReasonInvalidToken       = "INVALID_TOKEN"
	auditReasonTokenMismatch      = "TOKEN_MISMATCH"
	auditReasonExpiredToken       = "EXPIRED_TOKEN"
	auditReasonAlreadyVerified    = "ALREADY_VERIFIED"
	auditReasonDuplicateEmail     = "DUPLICATE_EMAIL"
	auditReasonPolicyViolation    = "POLICY_VIOLATION"
	auditReasonRateLimited        = "RATE_LIMITED"
	auditReasonInternal           = "INTERNAL"
)

// AuditEvent is an append-only record of one credential action. It must
// never contain a password, a plaintext token, or a token hash; context
// values are limited to emails and reason codes.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Action    string            `json:"action"`
	ActorID   string            `json:"actor_id,omitempty"`
	Success   bool              `json:"success"`
	Reason    string            `json:"reason,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
}

// AuditSink receives audit events. Delivery is best-effort: the engine
// dispatches asynchronously, and a failing sink never fails a credential
// response.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink delivers events to a buffered channel for in-process
// consumers.
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

// JSONWriterSink writes one JSON object per line to w.
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
