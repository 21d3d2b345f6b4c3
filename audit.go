package medauth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"
)

// AuditEvent is one security-relevant occurrence. Events are emitted
// asynchronously; sinks must tolerate bursts and never block for long.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Role      string            `json:"role,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives emitted audit events.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink writes audit events into a buffered channel.
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

// JSONWriterSink writes one JSON object per line.
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

/*
====================================
EVENT TYPES
====================================
*/

const (
	auditEventRegister           = "register"
	auditEventOTPSent            = "otp_sent"
	auditEventOTPResent          = "otp_resent"
	auditEventEmailVerified      = "email_verified"
	auditEventLogin              = "login"
	auditEventLogout             = "logout"
	auditEventLogoutAll          = "logout_all"
	auditEventBindingMismatch    = "session_binding_mismatch"
	auditEventPasswordResetStart = "password_reset_requested"
	auditEventPasswordResetDone  = "password_reset_completed"
	auditEventRateLimitTriggered = "rate_limit_triggered"
)

// AuditErrorCode is the stable machine code recorded on failed events.
type AuditErrorCode string

const (
	auditErrValidation         AuditErrorCode = "validation"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrOTPNotFound        AuditErrorCode = "otp_not_found"
	auditErrOTPExpired         AuditErrorCode = "otp_expired"
	auditErrOTPMismatch        AuditErrorCode = "otp_mismatch"
	auditErrAttemptsExceeded   AuditErrorCode = "attempts_exceeded"
	auditErrAlreadyVerified    AuditErrorCode = "already_verified"
	auditErrDraftExpired       AuditErrorCode = "registration_expired"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrSessionRevoked     AuditErrorCode = "session_revoked"
	auditErrMailDelivery       AuditErrorCode = "mail_delivery"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrUserExists):
		return auditErrDuplicate
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrAuthenticationFailed):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrOTPNotFound):
		return auditErrOTPNotFound
	case errors.Is(err, ErrOTPExpired):
		return auditErrOTPExpired
	case errors.Is(err, ErrOTPMismatch):
		return auditErrOTPMismatch
	case errors.Is(err, ErrOTPAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrAlreadyVerified):
		return auditErrAlreadyVerified
	case errors.Is(err, ErrRegistrationExpired):
		return auditErrDraftExpired
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrSessionRevoked):
		return auditErrSessionRevoked
	case errors.Is(err, ErrEmailDeliveryFailed):
		return auditErrMailDelivery
	case errors.Is(err, ErrLoginRateLimited), errors.Is(err, ErrOTPRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	role Role,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Role:      string(role),
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", "", nil, func() map[string]string {
		return map[string]string{"scope": scope}
	})
}
