package medauth

import (
	"context"
	"errors"
	"strings"

	"github.com/medauth/medauth/internal"
	internalflows "github.com/medauth/medauth/internal/flows"
	"github.com/medauth/medauth/internal/stores"
)

// Register parks a registration draft, issues a verification code and
// hands it to the mailer. No durable account exists until VerifyEmail
// succeeds. A non-nil MailError on the result means the draft is live but
// the code was not delivered; the caller can use ResendOTP.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	req, err := normalizeRegisterInput(input)
	if err != nil {
		return nil, err
	}

	res, err := e.flows.Register(ctx, req)
	if err != nil {
		return nil, err
	}

	return &RegisterResult{
		PublicID:  res.UserID,
		Email:     res.Email,
		ExpiresAt: res.ExpiresAt,
		MailError: res.MailErr,
	}, nil
}

func normalizeRegisterInput(input RegisterInput) (internalflows.RegisterRequest, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	username := strings.ToLower(strings.TrimSpace(input.Username))

	if !input.Role.Valid() {
		return internalflows.RegisterRequest{}, ErrValidation
	}
	if email == "" || !strings.Contains(email, "@") {
		return internalflows.RegisterRequest{}, ErrValidation
	}
	if username == "" || strings.Contains(username, "@") {
		return internalflows.RegisterRequest{}, ErrValidation
	}
	if input.Password == "" {
		return internalflows.RegisterRequest{}, ErrValidation
	}

	req := internalflows.RegisterRequest{
		Role:     string(input.Role),
		Email:    email,
		Username: username,
		FullName: strings.TrimSpace(input.FullName),
		Mobile:   strings.TrimSpace(input.Mobile),
		Password: input.Password,
	}

	// Role-specific shape: the profile must match the role tag, and a
	// doctor profile must name a specialization.
	switch input.Role {
	case RolePatient:
		if input.Doctor != nil {
			return internalflows.RegisterRequest{}, ErrValidation
		}
		if input.Patient != nil {
			pregnant := input.Patient.IsPregnant
			req.IsPregnant = &pregnant
		}
	case RoleDoctor:
		if input.Patient != nil {
			return internalflows.RegisterRequest{}, ErrValidation
		}
		if input.Doctor != nil {
			req.Specialization = strings.TrimSpace(input.Doctor.Specialization)
			if req.Specialization == "" {
				return internalflows.RegisterRequest{}, ErrValidation
			}
		}
	}

	return req, nil
}

func (e *Engine) registerFlowDeps() internalflows.RegisterDeps {
	return internalflows.RegisterDeps{
		PasswordMinLength: e.config.Password.MinLength,
		IDRetries:         e.config.Registration.IDRetries,
		OTPTTL:            e.config.OTP.TTL,

		ClientIPFromContext: clientIPFromContext,

		CheckOTPRate: func(ctx context.Context, email, ip string) error {
			return e.limiter.CheckOTPIssue(ctx, email, ip)
		},

		AccountConflicts: e.accountConflicts,

		HashPassword: e.passwordHash.Hash,
		NewPublicID: func(role string) (string, error) {
			return internal.NewPublicID(Role(role).IDPrefix(), publicIDDigits)
		},
		PublicIDUsed: func(ctx context.Context, publicID string) (bool, error) {
			_, err := e.accounts.ByPublicID(ctx, publicID)
			if err == nil {
				return true, nil
			}
			if errors.Is(err, ErrUserNotFound) {
				return false, nil
			}
			return false, errors.Join(ErrStoreUnavailable, err)
		},

		ReserveDraft:      e.reserveDraft,
		PublicIDCollision: stores.ErrDraftPublicIDTaken,

		IssueOTP: func(ctx context.Context, email string) (string, error) {
			return e.issueOTP(ctx, email, PurposeVerification)
		},
		SendOTP: e.sendOTPFunc(PurposeVerification),

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.flowEmitAudit,
		EmitRate:  e.emitRateLimit,

		Metrics: internalflows.RegisterMetrics{
			Success:            int(MetricRegisterSuccess),
			Duplicate:          int(MetricRegisterDuplicate),
			Failure:            int(MetricRegisterFailure),
			OTPSent:            int(MetricOTPSent),
			OTPDeliveryFailure: int(MetricOTPDeliveryFailure),
			OTPRateLimited:     int(MetricOTPRateLimited),
		},
		Events: internalflows.RegisterEvents{
			Registered:  auditEventRegister,
			OTPSent:     auditEventOTPSent,
			RateLimited: auditEventRateLimitTriggered,
		},
		Errors: internalflows.RegisterErrors{
			EngineNotReady:           ErrEngineNotReady,
			PasswordPolicy:           ErrPasswordPolicy,
			UserExists:               ErrUserExists,
			OTPRateLimited:           ErrOTPRateLimited,
			IdentifierSpaceExhausted: ErrIdentifierSpaceExhausted,
			EmailDeliveryFailed:      ErrEmailDeliveryFailed,
			StoreUnavailable:         ErrStoreUnavailable,
		},
	}
}

// accountConflicts is an advisory pre-check against verified accounts.
// The durable store's unique constraints remain the authority at
// promotion.
func (e *Engine) accountConflicts(ctx context.Context, role, email, username string) (bool, error) {
	_, err := e.accounts.ByEmail(ctx, Role(role), email)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return false, errors.Join(ErrStoreUnavailable, err)
	}

	account, err := e.accounts.ByIdentifier(ctx, username)
	if err == nil {
		return string(account.Role) == role && account.Username == username, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return false, errors.Join(ErrStoreUnavailable, err)
	}
	return false, nil
}

// reserveDraft parks the registration atomically and copies the expiry
// the store assigned back into the flow record.
func (e *Engine) reserveDraft(ctx context.Context, draft *internalflows.DraftRecord) error {
	pd := &stores.PendingDraft{
		PublicID:       draft.UserID,
		Role:           draft.Role,
		Email:          draft.Email,
		Username:       draft.Username,
		FullName:       draft.FullName,
		Mobile:         draft.Mobile,
		PasswordHash:   draft.PasswordHash,
		IsPregnant:     draft.IsPregnant,
		Specialization: draft.Specialization,
		CreatedAt:      draft.CreatedAt,
	}
	if err := e.pending.Reserve(ctx, pd); err != nil {
		return mapDraftError(err)
	}
	draft.CreatedAt = pd.CreatedAt
	draft.ExpiresAt = pd.ExpiresAt
	return nil
}
