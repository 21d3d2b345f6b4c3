package flows

import (
	"context"
	"errors"
	"time"
)

// PasswordResetMetrics carries metric IDs needed by the reset flows.
type PasswordResetMetrics struct {
	Request        int
	Success        int
	Failure        int
	OTPRateLimited int
	LogoutAll      int
}

// PasswordResetEvents carries audit event names used by the reset flows.
type PasswordResetEvents struct {
	Requested   string
	Completed   string
	RateLimited string
}

// PasswordResetErrors carries host-level sentinel errors used by the
// reset flows.
type PasswordResetErrors struct {
	EngineNotReady            error
	PasswordPolicy            error
	OTPNotFound               error
	OTPExpired                error
	OTPMismatch               error
	OTPAttemptsExceeded       error
	UserNotFound              error
	OTPRateLimited            error
	EmailDeliveryFailed       error
	SessionInvalidationFailed error
	StoreUnavailable          error
}

// PasswordResetDeps captures forgot/reset flow dependencies.
type PasswordResetDeps struct {
	PasswordMinLength int
	OTPTTL            time.Duration

	ClientIPFromContext func(context.Context) string

	CheckOTPRate func(context.Context, string, string) error

	GetUserByEmail func(context.Context, string) (AccountRecord, error)

	IssueOTP   func(context.Context, string) (string, error)
	SendOTP    func(context.Context, string, string, time.Duration) error
	ConsumeOTP func(context.Context, string, string) error

	HashPassword       func(string) (string, error)
	UpdatePasswordHash func(context.Context, string, string) error
	DeleteAllSessions  func(context.Context, string) (int, error)
	ResetLoginRate     func(context.Context, string, string) error

	// SleepEnumerationDelay pads the miss path so response timing does
	// not reveal whether the email has an account.
	SleepEnumerationDelay func()

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, string, error, func() map[string]string)
	EmitRate  func(context.Context, string)

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

func normalizeResetDeps(deps *PasswordResetDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, string, error, func() map[string]string) {}
	}
	if deps.EmitRate == nil {
		deps.EmitRate = func(context.Context, string) {}
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
}

// RunForgotPassword issues a reset code when the email has an account and
// reports success either way. Absence of an account is never observable
// through this flow.
func RunForgotPassword(ctx context.Context, email string, deps PasswordResetDeps) error {
	normalizeResetDeps(&deps)
	if deps.GetUserByEmail == nil || deps.IssueOTP == nil {
		return deps.Errors.EngineNotReady
	}

	ip := deps.ClientIPFromContext(ctx)
	if deps.CheckOTPRate != nil {
		if err := deps.CheckOTPRate(ctx, email, ip); err != nil {
			deps.MetricInc(deps.Metrics.OTPRateLimited)
			deps.EmitRate(ctx, "password_reset")
			return deps.Errors.OTPRateLimited
		}
	}

	deps.MetricInc(deps.Metrics.Request)

	user, err := deps.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, deps.Errors.UserNotFound) {
			if deps.SleepEnumerationDelay != nil {
				deps.SleepEnumerationDelay()
			}
			return nil
		}
		return err
	}

	code, err := deps.IssueOTP(ctx, email)
	if err != nil {
		return err
	}

	if deps.SendOTP != nil {
		if err := deps.SendOTP(ctx, email, code, deps.OTPTTL); err != nil {
			deps.EmitAudit(ctx, deps.Events.Requested, false, user.UserID, user.Role, "", deps.Errors.EmailDeliveryFailed, nil)
			return deps.Errors.EmailDeliveryFailed
		}
	}

	deps.EmitAudit(ctx, deps.Events.Requested, true, user.UserID, user.Role, "", nil, nil)
	return nil
}

// RunResetPassword consumes the reset code, installs the new password and
// revokes every open session. A password change that leaves old sessions
// alive is treated as a failure.
func RunResetPassword(ctx context.Context, email, code, newPassword string, deps PasswordResetDeps) error {
	normalizeResetDeps(&deps)
	if deps.ConsumeOTP == nil ||
		deps.GetUserByEmail == nil ||
		deps.HashPassword == nil ||
		deps.UpdatePasswordHash == nil ||
		deps.DeleteAllSessions == nil {
		return deps.Errors.EngineNotReady
	}

	if len(newPassword) < deps.PasswordMinLength {
		deps.MetricInc(deps.Metrics.Failure)
		return deps.Errors.PasswordPolicy
	}

	if err := deps.ConsumeOTP(ctx, email, code); err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Completed, false, "", "", "", err, func() map[string]string {
			return map[string]string{"email": email}
		})
		return err
	}

	user, err := deps.GetUserByEmail(ctx, email)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		return err
	}

	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		return err
	}
	newPassword = ""

	if err := deps.UpdatePasswordHash(ctx, user.UserID, hash); err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		return err
	}

	removed, err := deps.DeleteAllSessions(ctx, user.UserID)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Completed, false, user.UserID, user.Role, "", deps.Errors.SessionInvalidationFailed, nil)
		return errors.Join(deps.Errors.SessionInvalidationFailed, err)
	}
	if removed > 0 {
		deps.MetricInc(deps.Metrics.LogoutAll)
	}

	if deps.ResetLoginRate != nil {
		ip := deps.ClientIPFromContext(ctx)
		_ = deps.ResetLoginRate(ctx, email, ip)
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Completed, true, user.UserID, user.Role, "", nil, nil)
	return nil
}
