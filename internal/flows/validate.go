package flows

import (
	"context"
	"errors"
	"time"

	"github.com/medauth/medauth/jwt"
	"github.com/medauth/medauth/session"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureTokenInvalid
	ValidateFailureTokenExpired
	ValidateFailureSessionRevoked
	ValidateFailureUnavailable
)

// ValidateResult returns either claims/session success payload or classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.AccessClaims
	Session *session.Session
}

// ValidateDeps captures token validation dependencies.
type ValidateDeps struct {
	TouchInterval time.Duration

	ParseAccess func(string) (*jwt.AccessClaims, error)

	// TokenExpired reports whether a parse error means expiry rather than
	// structural invalidity.
	TokenExpired func(error) bool

	Now func() time.Time

	GetSession   func(context.Context, string) (*session.Session, error)
	TouchSession func(context.Context, string, time.Time) error

	// EnforceBinding rejects a session whose stored client binding no
	// longer matches the request; without it a mismatch is only audited.
	EnforceBinding bool

	ClientIP    func(context.Context) string
	UserAgent   func(context.Context) string
	HashBinding func(string) [32]byte

	SessionUnavailable error

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, string, error, func() map[string]string)

	MetricSuccess int
	MetricFailure int

	EventBindingMismatch string
}

// RunValidate checks the token signature and claims, then requires the
// live session record. The session is the revocation authority: a valid
// signature over a dead session is a dead token.
func RunValidate(ctx context.Context, tokenStr string, deps ValidateDeps) ValidateResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}

	claims, err := deps.ParseAccess(tokenStr)
	if err != nil {
		deps.MetricInc(deps.MetricFailure)
		if deps.TokenExpired != nil && deps.TokenExpired(err) {
			return ValidateResult{Failure: ValidateFailureTokenExpired, Err: err}
		}
		return ValidateResult{Failure: ValidateFailureTokenInvalid, Err: err}
	}

	sess, err := deps.GetSession(ctx, claims.SID)
	if err != nil {
		deps.MetricInc(deps.MetricFailure)
		if deps.SessionUnavailable != nil && errors.Is(err, deps.SessionUnavailable) {
			return ValidateResult{Failure: ValidateFailureUnavailable, Err: err}
		}
		return ValidateResult{Failure: ValidateFailureSessionRevoked, Err: err}
	}

	// Claims must agree with the record they point at.
	if sess.UserID != claims.UID || sess.Role != claims.Role {
		deps.MetricInc(deps.MetricFailure)
		return ValidateResult{Failure: ValidateFailureTokenInvalid}
	}

	if deps.HashBinding != nil {
		if field := bindingMismatch(ctx, sess, deps); field != "" {
			if deps.EmitAudit != nil {
				deps.EmitAudit(ctx, deps.EventBindingMismatch, !deps.EnforceBinding,
					sess.UserID, sess.Role, sess.SessionID, nil, func() map[string]string {
						return map[string]string{"binding": field}
					})
			}
			if deps.EnforceBinding {
				deps.MetricInc(deps.MetricFailure)
				return ValidateResult{Failure: ValidateFailureSessionRevoked}
			}
		}
	}

	now := deps.Now()
	if deps.TouchSession != nil && now.Unix()-sess.LastActivity >= int64(deps.TouchInterval/time.Second) {
		// Best effort; a lost touch only skews the activity timestamp.
		_ = deps.TouchSession(ctx, sess.SessionID, now)
		sess.LastActivity = now.Unix()
	}

	deps.MetricInc(deps.MetricSuccess)
	return ValidateResult{Claims: claims, Session: sess}
}

// bindingMismatch names the first stored client binding the request
// contradicts, or "" when everything agrees. A binding only counts when
// both sides carry a value: sessions created without request metadata
// and requests that omit it stay unbound.
func bindingMismatch(ctx context.Context, sess *session.Session, deps ValidateDeps) string {
	var zero [32]byte
	if deps.ClientIP != nil && sess.IPHash != zero {
		if ip := deps.ClientIP(ctx); ip != "" && deps.HashBinding(ip) != sess.IPHash {
			return "ip"
		}
	}
	if deps.UserAgent != nil && sess.UserAgentHash != zero {
		if ua := deps.UserAgent(ctx); ua != "" && deps.HashBinding(ua) != sess.UserAgentHash {
			return "user_agent"
		}
	}
	return ""
}
