package medauth

import (
	"context"
	"strings"

	internalflows "github.com/medauth/medauth/internal/flows"
)

// ForgotPassword issues a reset code when the email has a verified
// account and reports success either way. Whether the email exists is not
// observable through this call.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return ErrValidation
	}

	return e.flows.ForgotPassword(ctx, email)
}

// ResetPassword consumes the reset code, installs the new password and
// revokes every open session of the account. Old tokens stop validating
// as soon as this returns.
func (e *Engine) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || code == "" {
		return ErrValidation
	}

	return e.flows.ResetPassword(ctx, email, code, newPassword)
}

func (e *Engine) passwordResetFlowDeps() internalflows.PasswordResetDeps {
	return internalflows.PasswordResetDeps{
		PasswordMinLength: e.config.Password.MinLength,
		OTPTTL:            e.config.OTP.TTL,

		ClientIPFromContext: clientIPFromContext,

		CheckOTPRate: func(ctx context.Context, email, ip string) error {
			return e.limiter.CheckOTPIssue(ctx, email, ip)
		},

		GetUserByEmail: func(ctx context.Context, email string) (internalflows.AccountRecord, error) {
			account, err := e.accountByEmailAnyRole(ctx, email)
			if err != nil {
				return internalflows.AccountRecord{}, err
			}
			return accountToFlowRecord(account), nil
		},

		IssueOTP: func(ctx context.Context, email string) (string, error) {
			return e.issueOTP(ctx, email, PurposePasswordReset)
		},
		SendOTP: e.sendOTPFunc(PurposePasswordReset),
		ConsumeOTP: func(ctx context.Context, email, code string) error {
			return e.consumeOTP(ctx, email, code, PurposePasswordReset)
		},

		HashPassword: e.passwordHash.Hash,
		UpdatePasswordHash: func(ctx context.Context, publicID, hash string) error {
			return e.accounts.UpdatePassword(ctx, publicID, hash)
		},
		DeleteAllSessions: e.deleteAllSessions,
		ResetLoginRate: func(ctx context.Context, identifier, ip string) error {
			return e.limiter.ResetLogin(ctx, identifier, ip)
		},

		SleepEnumerationDelay: sleepEnumerationDelay,

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.flowEmitAudit,
		EmitRate:  e.emitRateLimit,

		Metrics: internalflows.PasswordResetMetrics{
			Request:        int(MetricPasswordResetRequest),
			Success:        int(MetricPasswordResetSuccess),
			Failure:        int(MetricPasswordResetFailure),
			OTPRateLimited: int(MetricOTPRateLimited),
			LogoutAll:      int(MetricLogoutAll),
		},
		Events: internalflows.PasswordResetEvents{
			Requested:   auditEventPasswordResetStart,
			Completed:   auditEventPasswordResetDone,
			RateLimited: auditEventRateLimitTriggered,
		},
		Errors: internalflows.PasswordResetErrors{
			EngineNotReady:            ErrEngineNotReady,
			PasswordPolicy:            ErrPasswordPolicy,
			OTPNotFound:               ErrOTPNotFound,
			OTPExpired:                ErrOTPExpired,
			OTPMismatch:               ErrOTPMismatch,
			OTPAttemptsExceeded:       ErrOTPAttemptsExceeded,
			UserNotFound:              ErrUserNotFound,
			OTPRateLimited:            ErrOTPRateLimited,
			EmailDeliveryFailed:       ErrEmailDeliveryFailed,
			SessionInvalidationFailed: ErrSessionInvalidationFailed,
			StoreUnavailable:          ErrStoreUnavailable,
		},
	}
}
