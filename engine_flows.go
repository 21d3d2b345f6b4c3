package medauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"math/big"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/medauth/medauth/internal"
	internalflows "github.com/medauth/medauth/internal/flows"
	"github.com/medauth/medauth/internal/rate"
	"github.com/medauth/medauth/internal/stores"
)

// publicIDDigits fixes the numeric suffix length of public identifiers.
const publicIDDigits = 8

// Purposes are stored as a single byte inside the OTP record.
const (
	otpPurposeVerification = 1
	otpPurposeReset        = 2
)

func otpPurposeByte(purpose OTPPurpose) int {
	if purpose == PurposePasswordReset {
		return otpPurposeReset
	}
	return otpPurposeVerification
}

func (e *Engine) buildFlows() internalflows.Service {
	return internalflows.New(internalflows.Deps{
		Register:      e.registerFlowDeps(),
		Verify:        e.verifyFlowDeps(),
		Login:         e.loginFlowDeps(),
		Validate:      e.validateFlowDeps(),
		Logout:        e.logoutFlowDeps(),
		PasswordReset: e.passwordResetFlowDeps(),
	})
}

// issueOTP generates a fresh code and persists its hash. Issuing replaces
// any earlier code for the same email and purpose; only the latest one
// verifies.
func (e *Engine) issueOTP(ctx context.Context, email string, purpose OTPPurpose) (string, error) {
	code, err := internal.NewOTP(e.config.OTP.Digits)
	if err != nil {
		return "", err
	}
	if _, err := e.otps.Save(ctx, email, otpPurposeByte(purpose), internal.HashCode(code)); err != nil {
		return "", errors.Join(ErrStoreUnavailable, err)
	}
	return code, nil
}

func (e *Engine) consumeOTP(ctx context.Context, email, code string, purpose OTPPurpose) error {
	_, err := e.otps.Consume(ctx, email, otpPurposeByte(purpose), internal.HashCode(code))
	if err != nil {
		return mapOTPError(err)
	}
	return nil
}

// sendOTPFunc adapts the optional mailer for a fixed purpose. Without a
// mailer the flow reports delivery failure and leaves the code live.
func (e *Engine) sendOTPFunc(purpose OTPPurpose) func(context.Context, string, string, time.Duration) error {
	return func(ctx context.Context, to, code string, ttl time.Duration) error {
		if e.mailer == nil {
			return ErrEmailDeliveryFailed
		}
		return e.mailer.SendOTP(ctx, to, purpose, code, ttl)
	}
}

func mapOTPError(err error) error {
	switch {
	case errors.Is(err, stores.ErrOTPNotFound):
		return ErrOTPNotFound
	case errors.Is(err, stores.ErrOTPExpired):
		return ErrOTPExpired
	case errors.Is(err, stores.ErrOTPCodeMismatch):
		return ErrOTPMismatch
	case errors.Is(err, stores.ErrOTPAttemptsExceeded):
		return ErrOTPAttemptsExceeded
	default:
		return errors.Join(ErrStoreUnavailable, err)
	}
}

func mapDraftError(err error) error {
	switch {
	case errors.Is(err, stores.ErrDraftNotFound):
		return ErrUserNotFound
	case errors.Is(err, stores.ErrDraftExpired):
		return ErrRegistrationExpired
	case errors.Is(err, stores.ErrDraftEmailTaken), errors.Is(err, stores.ErrDraftUsernameTaken):
		return ErrUserExists
	case errors.Is(err, stores.ErrDraftPublicIDTaken):
		return err
	default:
		return errors.Join(ErrStoreUnavailable, err)
	}
}

func mapRateError(err error, limited error) error {
	if errors.Is(err, rate.ErrRateLimited) {
		return limited
	}
	return errors.Join(ErrStoreUnavailable, err)
}

func tokenExpired(err error) bool {
	return errors.Is(err, jwtlib.ErrTokenExpired)
}

// accountByEmailAnyRole checks the email across both role partitions,
// patients first.
func (e *Engine) accountByEmailAnyRole(ctx context.Context, email string) (*Account, error) {
	for _, role := range []Role{RolePatient, RoleDoctor} {
		account, err := e.accounts.ByEmail(ctx, role, email)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, ErrUserNotFound) {
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
	}
	return nil, ErrUserNotFound
}

func accountToFlowRecord(a *Account) internalflows.AccountRecord {
	record := internalflows.AccountRecord{
		UserID:       a.PublicID,
		Role:         string(a.Role),
		Email:        a.Email,
		Username:     a.Username,
		FullName:     a.FullName,
		Mobile:       a.Mobile,
		PasswordHash: a.PasswordHash,
	}
	if a.Patient != nil {
		pregnant := a.Patient.IsPregnant
		record.IsPregnant = &pregnant
	}
	if a.Doctor != nil {
		record.Specialization = a.Doctor.Specialization
	}
	return record
}

func flowRecordToAccount(r internalflows.AccountRecord) *Account {
	account := &Account{
		PublicID:     r.UserID,
		Role:         Role(r.Role),
		Email:        r.Email,
		Username:     r.Username,
		FullName:     r.FullName,
		Mobile:       r.Mobile,
		PasswordHash: r.PasswordHash,
	}
	attachProfile(account, r.IsPregnant, r.Specialization)
	return account
}

func draftToAccount(d *internalflows.DraftRecord, now time.Time) *Account {
	account := &Account{
		PublicID:     d.UserID,
		Role:         Role(d.Role),
		Email:        d.Email,
		Username:     d.Username,
		FullName:     d.FullName,
		Mobile:       d.Mobile,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt,
		VerifiedAt:   now,
	}
	attachProfile(account, d.IsPregnant, d.Specialization)
	return account
}

// attachProfile sets the role variant matching the account's role tag.
func attachProfile(a *Account, isPregnant *bool, specialization string) {
	switch a.Role {
	case RolePatient:
		if isPregnant != nil {
			a.Patient = &PatientProfile{IsPregnant: *isPregnant}
		}
	case RoleDoctor:
		if specialization != "" {
			a.Doctor = &DoctorProfile{Specialization: specialization}
		}
	}
}

func (e *Engine) flowEmitAudit(ctx context.Context, eventType string, success bool, userID, role, sessionID string, err error, metadataBuilder func() map[string]string) {
	e.emitAudit(ctx, eventType, success, userID, Role(role), sessionID, err, metadataBuilder)
}

func hashBindingValue(value string) [32]byte {
	return sha256.Sum256([]byte(value))
}

// sleepEnumerationDelay pads account-miss paths in the reset flow so the
// response time does not reveal whether the email exists.
func sleepEnumerationDelay() {
	jitter, err := rand.Int(rand.Reader, big.NewInt(20))
	if err != nil {
		time.Sleep(30 * time.Millisecond)
		return
	}
	time.Sleep(time.Duration(20+jitter.Int64()) * time.Millisecond)
}
