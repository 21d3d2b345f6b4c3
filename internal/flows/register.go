package flows

import (
	"context"
	"errors"
	"time"
)

// RegisterRequest is the flow-local registration input. The email and
// username arrive already trimmed and lowercased, and the role variant
// fields already validated against the role.
type RegisterRequest struct {
	Role     string
	Email    string
	Username string
	FullName string
	Mobile   string
	Password string

	IsPregnant     *bool
	Specialization string
}

// RegisterResult reports a parked draft.
type RegisterResult struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
	MailErr   error
}

// RegisterMetrics carries metric IDs needed by the registration flow.
type RegisterMetrics struct {
	Success            int
	Duplicate          int
	Failure            int
	OTPSent            int
	OTPDeliveryFailure int
	OTPRateLimited     int
}

// RegisterEvents carries audit event names used by the registration flow.
type RegisterEvents struct {
	Registered  string
	OTPSent     string
	RateLimited string
}

// RegisterErrors carries host-level sentinel errors used by the
// registration flow.
type RegisterErrors struct {
	EngineNotReady           error
	PasswordPolicy           error
	UserExists               error
	OTPRateLimited           error
	IdentifierSpaceExhausted error
	EmailDeliveryFailed      error
	StoreUnavailable         error
}

// RegisterDeps captures registration flow dependencies.
type RegisterDeps struct {
	PasswordMinLength int
	IDRetries         int
	OTPTTL            time.Duration

	ClientIPFromContext func(context.Context) string
	Now                 func() time.Time

	CheckOTPRate func(context.Context, string, string) error

	// AccountConflicts reports whether a verified account already claims
	// the email or the role-scoped username. Advisory only; the durable
	// store's unique constraints remain the authority at promotion.
	AccountConflicts func(context.Context, string, string, string) (bool, error)

	HashPassword func(string) (string, error)
	NewPublicID  func(string) (string, error)
	PublicIDUsed func(context.Context, string) (bool, error)

	// ReserveDraft parks the draft atomically. Sentinel results are
	// matched by the flow via the Errors set plus ErrPublicIDCollision.
	ReserveDraft      func(context.Context, *DraftRecord) error
	PublicIDCollision error

	IssueOTP func(context.Context, string) (string, error)
	SendOTP  func(context.Context, string, string, time.Duration) error

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, string, error, func() map[string]string)
	EmitRate  func(context.Context, string)

	Metrics RegisterMetrics
	Events  RegisterEvents
	Errors  RegisterErrors
}

// RunRegister executes the registration flow: policy checks, identifier
// generation, atomic draft reservation, OTP issuance and delivery. Mail
// failure does not unwind the draft; the result carries it separately.
func RunRegister(ctx context.Context, req RegisterRequest, deps RegisterDeps) (*RegisterResult, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
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
	if deps.HashPassword == nil ||
		deps.NewPublicID == nil ||
		deps.ReserveDraft == nil ||
		deps.IssueOTP == nil {
		return nil, deps.Errors.EngineNotReady
	}

	if len(req.Password) < deps.PasswordMinLength {
		deps.MetricInc(deps.Metrics.Failure)
		return nil, deps.Errors.PasswordPolicy
	}

	ip := deps.ClientIPFromContext(ctx)

	if deps.CheckOTPRate != nil {
		if err := deps.CheckOTPRate(ctx, req.Email, ip); err != nil {
			deps.MetricInc(deps.Metrics.OTPRateLimited)
			deps.EmitRate(ctx, "register")
			return nil, deps.Errors.OTPRateLimited
		}
	}

	if deps.AccountConflicts != nil {
		taken, err := deps.AccountConflicts(ctx, req.Role, req.Email, req.Username)
		if err != nil {
			return nil, err
		}
		if taken {
			deps.MetricInc(deps.Metrics.Duplicate)
			deps.EmitAudit(ctx, deps.Events.Registered, false, "", req.Role, "", deps.Errors.UserExists, func() map[string]string {
				return map[string]string{"email": req.Email}
			})
			return nil, deps.Errors.UserExists
		}
	}

	hash, err := deps.HashPassword(req.Password)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		return nil, err
	}
	req.Password = ""

	draft := &DraftRecord{
		Role:           req.Role,
		Email:          req.Email,
		Username:       req.Username,
		FullName:       req.FullName,
		Mobile:         req.Mobile,
		PasswordHash:   hash,
		IsPregnant:     req.IsPregnant,
		Specialization: req.Specialization,
		CreatedAt:      deps.Now(),
	}

	reserved := false
	for attempt := 0; attempt < deps.IDRetries; attempt++ {
		id, err := deps.NewPublicID(req.Role)
		if err != nil {
			deps.MetricInc(deps.Metrics.Failure)
			return nil, err
		}

		if deps.PublicIDUsed != nil {
			used, err := deps.PublicIDUsed(ctx, id)
			if err != nil {
				return nil, err
			}
			if used {
				continue
			}
		}

		draft.UserID = id
		err = deps.ReserveDraft(ctx, draft)
		if err == nil {
			reserved = true
			break
		}
		if deps.PublicIDCollision != nil && errors.Is(err, deps.PublicIDCollision) {
			continue
		}
		if errors.Is(err, deps.Errors.UserExists) {
			deps.MetricInc(deps.Metrics.Duplicate)
			deps.EmitAudit(ctx, deps.Events.Registered, false, "", req.Role, "", deps.Errors.UserExists, func() map[string]string {
				return map[string]string{"email": req.Email}
			})
			return nil, deps.Errors.UserExists
		}
		return nil, err
	}
	if !reserved {
		deps.MetricInc(deps.Metrics.Failure)
		return nil, deps.Errors.IdentifierSpaceExhausted
	}

	code, err := deps.IssueOTP(ctx, req.Email)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		return nil, err
	}

	result := &RegisterResult{
		UserID:    draft.UserID,
		Email:     req.Email,
		ExpiresAt: draft.ExpiresAt,
	}

	if deps.SendOTP != nil {
		if err := deps.SendOTP(ctx, req.Email, code, deps.OTPTTL); err != nil {
			deps.MetricInc(deps.Metrics.OTPDeliveryFailure)
			deps.EmitAudit(ctx, deps.Events.OTPSent, false, draft.UserID, req.Role, "", deps.Errors.EmailDeliveryFailed, nil)
			result.MailErr = deps.Errors.EmailDeliveryFailed
		} else {
			deps.MetricInc(deps.Metrics.OTPSent)
			deps.EmitAudit(ctx, deps.Events.OTPSent, true, draft.UserID, req.Role, "", nil, nil)
		}
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Registered, true, draft.UserID, req.Role, "", nil, func() map[string]string {
		return map[string]string{"email": req.Email}
	})

	return result, nil
}
