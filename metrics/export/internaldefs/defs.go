package internaldefs

import (
	"github.com/medauth/medauth"
)

// CounterDef binds an engine counter to its exported name and help text.
type CounterDef struct {
	ID   medauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in emission order.
var CounterDefs = []CounterDef{
	{ID: medauth.MetricRegisterSuccess, Name: "medauth_register_success_total", Help: "Registrations parked pending verification."},
	{ID: medauth.MetricRegisterDuplicate, Name: "medauth_register_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: medauth.MetricRegisterFailure, Name: "medauth_register_failure_total", Help: "Registrations failed for other reasons."},
	{ID: medauth.MetricOTPSent, Name: "medauth_otp_sent_total", Help: "One-time codes delivered."},
	{ID: medauth.MetricOTPResent, Name: "medauth_otp_resent_total", Help: "One-time codes reissued on request."},
	{ID: medauth.MetricOTPDeliveryFailure, Name: "medauth_otp_delivery_failure_total", Help: "One-time code delivery failures."},
	{ID: medauth.MetricOTPRateLimited, Name: "medauth_otp_rate_limited_total", Help: "Throttled one-time code issues."},
	{ID: medauth.MetricVerifySuccess, Name: "medauth_verify_success_total", Help: "Successful email verifications."},
	{ID: medauth.MetricVerifyFailure, Name: "medauth_verify_failure_total", Help: "Failed email verifications."},
	{ID: medauth.MetricVerifyExpired, Name: "medauth_verify_expired_total", Help: "Verifications against expired codes or drafts."},
	{ID: medauth.MetricVerifyAttemptsExceeded, Name: "medauth_verify_attempts_exceeded_total", Help: "Verification codes burned by the attempt cap."},
	{ID: medauth.MetricLoginSuccess, Name: "medauth_login_success_total", Help: "Successful login attempts."},
	{ID: medauth.MetricLoginFailure, Name: "medauth_login_failure_total", Help: "Failed login attempts."},
	{ID: medauth.MetricLoginRateLimited, Name: "medauth_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: medauth.MetricValidateSuccess, Name: "medauth_validate_success_total", Help: "Token validations that passed."},
	{ID: medauth.MetricValidateFailure, Name: "medauth_validate_failure_total", Help: "Token validations that failed."},
	{ID: medauth.MetricSessionCreated, Name: "medauth_session_created_total", Help: "Created sessions."},
	{ID: medauth.MetricSessionInvalidated, Name: "medauth_session_invalidated_total", Help: "Invalidated sessions."},
	{ID: medauth.MetricLogout, Name: "medauth_logout_total", Help: "Single-session logout operations."},
	{ID: medauth.MetricLogoutAll, Name: "medauth_logout_all_total", Help: "Logout-all operations."},
	{ID: medauth.MetricPasswordResetRequest, Name: "medauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: medauth.MetricPasswordResetSuccess, Name: "medauth_password_reset_success_total", Help: "Completed password resets."},
	{ID: medauth.MetricPasswordResetFailure, Name: "medauth_password_reset_failure_total", Help: "Failed password resets."},
	{ID: medauth.MetricRateLimitHit, Name: "medauth_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "medauth_audit_dropped_total"

// AuditDroppedHelp documents AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
