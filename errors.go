package medauth

import "errors"

// Closed error set. Every exported operation returns either nil or an error
// that matches exactly one of these via errors.Is. Internal causes are
// wrapped so the chain keeps detail for logs without widening the contract.
var (
	// ErrValidation reports malformed or missing input before any state
	// is touched.
	ErrValidation = errors.New("medauth: invalid input")

	// ErrPasswordPolicy reports a password that fails the configured
	// minimum length.
	ErrPasswordPolicy = errors.New("medauth: password does not meet policy")

	// ErrUserExists reports a registration or promotion that collides with
	// an existing account or a live pending draft on email, username or
	// public ID.
	ErrUserExists = errors.New("medauth: user already exists")

	// ErrUserNotFound reports a lookup miss on a durable account.
	ErrUserNotFound = errors.New("medauth: user not found")

	// ErrAuthenticationFailed reports a login attempt with a wrong
	// password or an unknown principal. The two cases are deliberately
	// indistinguishable.
	ErrAuthenticationFailed = errors.New("medauth: authentication failed")

	// ErrOTPNotFound reports a code check with no live OTP record for the
	// (email, purpose) pair.
	ErrOTPNotFound = errors.New("medauth: otp not found")

	// ErrOTPExpired reports a code check against a record past its
	// validity window.
	ErrOTPExpired = errors.New("medauth: otp expired")

	// ErrOTPMismatch reports a wrong code against a live record.
	ErrOTPMismatch = errors.New("medauth: otp mismatch")

	// ErrOTPAttemptsExceeded reports a record burned by too many wrong
	// codes.
	ErrOTPAttemptsExceeded = errors.New("medauth: otp attempts exceeded")

	// ErrAlreadyVerified reports a verification attempt for an email that
	// already has a durable account.
	ErrAlreadyVerified = errors.New("medauth: already verified")

	// ErrRegistrationExpired reports a verification attempt whose pending
	// draft has lapsed.
	ErrRegistrationExpired = errors.New("medauth: registration expired")

	// ErrTokenInvalid reports a token that fails signature, structure or
	// claim checks, or whose session record is gone.
	ErrTokenInvalid = errors.New("medauth: token invalid")

	// ErrTokenExpired reports a structurally valid token past its expiry.
	ErrTokenExpired = errors.New("medauth: token expired")

	// ErrSessionRevoked reports a token whose session was explicitly
	// revoked.
	ErrSessionRevoked = errors.New("medauth: session revoked")

	// ErrEmailDeliveryFailed reports a mailer failure. Flows that park
	// state before sending still succeed; this error is advisory.
	ErrEmailDeliveryFailed = errors.New("medauth: email delivery failed")

	// ErrSessionInvalidationFailed reports a reset flow that changed the
	// password but could not revoke open sessions.
	ErrSessionInvalidationFailed = errors.New("medauth: session invalidation failed")

	// ErrLoginRateLimited reports a throttled login attempt.
	ErrLoginRateLimited = errors.New("medauth: login rate limited")

	// ErrOTPRateLimited reports a throttled OTP issue or resend.
	ErrOTPRateLimited = errors.New("medauth: otp rate limited")

	// ErrIdentifierSpaceExhausted reports repeated public ID collisions
	// beyond the retry budget.
	ErrIdentifierSpaceExhausted = errors.New("medauth: identifier space exhausted")

	// ErrStoreUnavailable wraps Redis or account-store transport failures.
	ErrStoreUnavailable = errors.New("medauth: store unavailable")

	// ErrEngineNotReady reports a call on an Engine whose Build failed or
	// was never run.
	ErrEngineNotReady = errors.New("medauth: engine not ready")
)
