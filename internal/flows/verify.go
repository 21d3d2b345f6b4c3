package flows

import (
	"context"
	"errors"
	"time"
)

// VerifyMetrics carries metric IDs needed by the verification flow.
type VerifyMetrics struct {
	Success           int
	Failure           int
	Expired           int
	AttemptsExceeded  int
	OTPResent         int
	OTPDeliveryFailed int
	OTPRateLimited    int
}

// VerifyEvents carries audit event names used by the verification flow.
type VerifyEvents struct {
	Verified    string
	OTPResent   string
	RateLimited string
}

// VerifyErrors carries host-level sentinel errors used by the
// verification flow.
type VerifyErrors struct {
	EngineNotReady      error
	OTPNotFound         error
	OTPExpired          error
	OTPMismatch         error
	OTPAttemptsExceeded error
	AlreadyVerified     error
	RegistrationExpired error
	UserNotFound        error
	UserExists          error
	OTPRateLimited      error
	EmailDeliveryFailed error
	StoreUnavailable    error
}

// VerifyDeps captures verification flow dependencies.
type VerifyDeps struct {
	OTPTTL time.Duration

	ClientIPFromContext func(context.Context) string

	// ConsumeOTP checks and destroys the verification code. Returns one
	// of the Errors sentinels on failure.
	ConsumeOTP func(context.Context, string, string) error

	// GetDraft returns the live draft or RegistrationExpired / a
	// not-found sentinel.
	GetDraft    func(context.Context, string) (*DraftRecord, error)
	DeleteDraft func(context.Context, *DraftRecord) error

	// AccountExists reports whether a verified account already claims the
	// email in any role.
	AccountExists func(context.Context, string) (bool, error)

	// CreateAccount promotes the draft. A uniqueness collision surfaces
	// as AlreadyVerified: a concurrent racer won the promotion.
	CreateAccount func(context.Context, *DraftRecord) (*AccountRecord, error)

	CheckOTPRate func(context.Context, string, string) error
	IssueOTP     func(context.Context, string) (string, error)
	SendOTP      func(context.Context, string, string, time.Duration) error

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, string, error, func() map[string]string)
	EmitRate  func(context.Context, string)

	Metrics VerifyMetrics
	Events  VerifyEvents
	Errors  VerifyErrors
}

func normalizeVerifyDeps(deps *VerifyDeps) {
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

// RunVerifyEmail consumes the verification code and promotes the pending
// draft into a durable account. Promotion is exclusive: losing a race
// reports AlreadyVerified, and the code is gone either way.
func RunVerifyEmail(ctx context.Context, email, code string, deps VerifyDeps) (*AccountRecord, error) {
	normalizeVerifyDeps(&deps)
	if deps.ConsumeOTP == nil || deps.GetDraft == nil || deps.CreateAccount == nil {
		return nil, deps.Errors.EngineNotReady
	}

	if err := deps.ConsumeOTP(ctx, email, code); err != nil {
		switch {
		case errors.Is(err, deps.Errors.OTPExpired):
			deps.MetricInc(deps.Metrics.Expired)
		case errors.Is(err, deps.Errors.OTPAttemptsExceeded):
			deps.MetricInc(deps.Metrics.AttemptsExceeded)
		default:
			deps.MetricInc(deps.Metrics.Failure)
		}
		deps.EmitAudit(ctx, deps.Events.Verified, false, "", "", "", err, func() map[string]string {
			return map[string]string{"email": email}
		})
		return nil, err
	}

	draft, err := deps.GetDraft(ctx, email)
	if err != nil {
		if errors.Is(err, deps.Errors.RegistrationExpired) {
			deps.MetricInc(deps.Metrics.Expired)
			deps.EmitAudit(ctx, deps.Events.Verified, false, "", "", "", err, func() map[string]string {
				return map[string]string{"email": email}
			})
			return nil, deps.Errors.RegistrationExpired
		}
		if deps.AccountExists != nil {
			exists, existsErr := deps.AccountExists(ctx, email)
			if existsErr == nil && exists {
				deps.MetricInc(deps.Metrics.Failure)
				return nil, deps.Errors.AlreadyVerified
			}
		}
		deps.MetricInc(deps.Metrics.Failure)
		return nil, deps.Errors.UserNotFound
	}

	account, err := deps.CreateAccount(ctx, draft)
	if err != nil {
		if errors.Is(err, deps.Errors.AlreadyVerified) || errors.Is(err, deps.Errors.UserExists) {
			deps.MetricInc(deps.Metrics.Failure)
			deps.EmitAudit(ctx, deps.Events.Verified, false, draft.UserID, draft.Role, "", deps.Errors.AlreadyVerified, nil)
			return nil, deps.Errors.AlreadyVerified
		}
		deps.MetricInc(deps.Metrics.Failure)
		return nil, err
	}

	// Draft cleanup happens after the account is durable. A crash here
	// leaves a stale draft that the TTL reclaims.
	if deps.DeleteDraft != nil {
		_ = deps.DeleteDraft(ctx, draft)
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Verified, true, account.UserID, account.Role, "", nil, nil)

	return account, nil
}

// RunResendOTP reissues the verification code for a live draft. The new
// code replaces the old one; only the latest code verifies.
func RunResendOTP(ctx context.Context, email string, deps VerifyDeps) error {
	normalizeVerifyDeps(&deps)
	if deps.GetDraft == nil || deps.IssueOTP == nil {
		return deps.Errors.EngineNotReady
	}

	ip := deps.ClientIPFromContext(ctx)
	if deps.CheckOTPRate != nil {
		if err := deps.CheckOTPRate(ctx, email, ip); err != nil {
			deps.MetricInc(deps.Metrics.OTPRateLimited)
			deps.EmitRate(ctx, "otp_resend")
			return deps.Errors.OTPRateLimited
		}
	}

	draft, err := deps.GetDraft(ctx, email)
	if err != nil {
		if errors.Is(err, deps.Errors.RegistrationExpired) {
			return deps.Errors.RegistrationExpired
		}
		if deps.AccountExists != nil {
			exists, existsErr := deps.AccountExists(ctx, email)
			if existsErr == nil && exists {
				return deps.Errors.AlreadyVerified
			}
		}
		return deps.Errors.UserNotFound
	}

	code, err := deps.IssueOTP(ctx, email)
	if err != nil {
		return err
	}

	if deps.SendOTP != nil {
		if err := deps.SendOTP(ctx, email, code, deps.OTPTTL); err != nil {
			deps.MetricInc(deps.Metrics.OTPDeliveryFailed)
			deps.EmitAudit(ctx, deps.Events.OTPResent, false, draft.UserID, draft.Role, "", deps.Errors.EmailDeliveryFailed, nil)
			return deps.Errors.EmailDeliveryFailed
		}
	}

	deps.MetricInc(deps.Metrics.OTPResent)
	deps.EmitAudit(ctx, deps.Events.OTPResent, true, draft.UserID, draft.Role, "", nil, nil)
	return nil
}
