package medauth

import (
	"context"
	"errors"
	"strings"
	"time"

	internalflows "github.com/medauth/medauth/internal/flows"
	"github.com/medauth/medauth/internal/stores"
)

// VerifyEmail consumes the verification code and promotes the pending
// draft into a durable account. The code is single-use: it is gone after
// this call whether or not promotion succeeds. Losing a promotion race
// reports ErrAlreadyVerified.
func (e *Engine) VerifyEmail(ctx context.Context, email, code string) (*VerifyResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || code == "" {
		return nil, ErrValidation
	}

	record, err := e.flows.VerifyEmail(ctx, email, code)
	if err != nil {
		return nil, err
	}

	return &VerifyResult{Account: flowRecordToAccount(*record)}, nil
}

// ResendOTP reissues the verification code for a live draft. The new code
// replaces the old one.
func (e *Engine) ResendOTP(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ErrValidation
	}

	return e.flows.ResendOTP(ctx, email)
}

func (e *Engine) verifyFlowDeps() internalflows.VerifyDeps {
	return internalflows.VerifyDeps{
		OTPTTL: e.config.OTP.TTL,

		ClientIPFromContext: clientIPFromContext,

		ConsumeOTP: func(ctx context.Context, email, code string) error {
			return e.consumeOTP(ctx, email, code, PurposeVerification)
		},

		GetDraft:    e.getDraft,
		DeleteDraft: e.deleteDraft,

		AccountExists: func(ctx context.Context, email string) (bool, error) {
			_, err := e.accountByEmailAnyRole(ctx, email)
			if err == nil {
				return true, nil
			}
			if errors.Is(err, ErrUserNotFound) {
				return false, nil
			}
			return false, err
		},

		CreateAccount: e.promoteDraft,

		CheckOTPRate: func(ctx context.Context, email, ip string) error {
			return e.limiter.CheckOTPIssue(ctx, email, ip)
		},
		IssueOTP: func(ctx context.Context, email string) (string, error) {
			return e.issueOTP(ctx, email, PurposeVerification)
		},
		SendOTP: e.sendOTPFunc(PurposeVerification),

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.flowEmitAudit,
		EmitRate:  e.emitRateLimit,

		Metrics: internalflows.VerifyMetrics{
			Success:           int(MetricVerifySuccess),
			Failure:           int(MetricVerifyFailure),
			Expired:           int(MetricVerifyExpired),
			AttemptsExceeded:  int(MetricVerifyAttemptsExceeded),
			OTPResent:         int(MetricOTPResent),
			OTPDeliveryFailed: int(MetricOTPDeliveryFailure),
			OTPRateLimited:    int(MetricOTPRateLimited),
		},
		Events: internalflows.VerifyEvents{
			Verified:    auditEventEmailVerified,
			OTPResent:   auditEventOTPResent,
			RateLimited: auditEventRateLimitTriggered,
		},
		Errors: internalflows.VerifyErrors{
			EngineNotReady:      ErrEngineNotReady,
			OTPNotFound:         ErrOTPNotFound,
			OTPExpired:          ErrOTPExpired,
			OTPMismatch:         ErrOTPMismatch,
			OTPAttemptsExceeded: ErrOTPAttemptsExceeded,
			AlreadyVerified:     ErrAlreadyVerified,
			RegistrationExpired: ErrRegistrationExpired,
			UserNotFound:        ErrUserNotFound,
			UserExists:          ErrUserExists,
			OTPRateLimited:      ErrOTPRateLimited,
			EmailDeliveryFailed: ErrEmailDeliveryFailed,
			StoreUnavailable:    ErrStoreUnavailable,
		},
	}
}

func (e *Engine) getDraft(ctx context.Context, email string) (*internalflows.DraftRecord, error) {
	pd, err := e.pending.Get(ctx, email)
	if err != nil {
		return nil, mapDraftError(err)
	}
	return &internalflows.DraftRecord{
		UserID:         pd.PublicID,
		Role:           pd.Role,
		Email:          pd.Email,
		Username:       pd.Username,
		FullName:       pd.FullName,
		Mobile:         pd.Mobile,
		PasswordHash:   pd.PasswordHash,
		IsPregnant:     pd.IsPregnant,
		Specialization: pd.Specialization,
		CreatedAt:      pd.CreatedAt,
		ExpiresAt:      pd.ExpiresAt,
	}, nil
}

func (e *Engine) deleteDraft(ctx context.Context, draft *internalflows.DraftRecord) error {
	return e.pending.Delete(ctx, &stores.PendingDraft{
		PublicID: draft.UserID,
		Role:     draft.Role,
		Email:    draft.Email,
		Username: draft.Username,
	})
}

// promoteDraft inserts the durable account. The store's unique
// constraints are the promotion authority: a collision means a concurrent
// verification already won.
func (e *Engine) promoteDraft(ctx context.Context, draft *internalflows.DraftRecord) (*internalflows.AccountRecord, error) {
	account := draftToAccount(draft, time.Now().UTC())
	if err := e.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrUserExists) || errors.Is(err, ErrAlreadyVerified) {
			return nil, ErrAlreadyVerified
		}
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	record := accountToFlowRecord(account)
	return &record, nil
}
