package medauth

import (
	"context"
	"errors"
	"time"

	internalflows "github.com/medauth/medauth/internal/flows"
	"github.com/medauth/medauth/session"
)

// ValidateToken checks signature and claims, then requires the live
// session record behind the token. A valid signature over a revoked
// session reports ErrSessionRevoked; the session store is the revocation
// authority.
//
// When the request context carries client metadata (WithClientIP,
// WithUserAgent) it is compared against the binding recorded at login.
// A mismatch is audited, and rejected as ErrSessionRevoked when
// Session.EnforceBinding is set.
func (e *Engine) ValidateToken(ctx context.Context, token string) (*TokenInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if token == "" {
		return nil, ErrTokenInvalid
	}

	start := time.Now()
	res := e.flows.Validate(ctx, token)
	e.metricObserve(MetricValidateLatency, time.Since(start))
	switch res.Failure {
	case internalflows.ValidateFailureNone:
	case internalflows.ValidateFailureTokenExpired:
		return nil, ErrTokenExpired
	case internalflows.ValidateFailureSessionRevoked:
		return nil, ErrSessionRevoked
	case internalflows.ValidateFailureUnavailable:
		return nil, errors.Join(ErrStoreUnavailable, res.Err)
	default:
		return nil, ErrTokenInvalid
	}

	info := &TokenInfo{
		PublicID:  res.Claims.UID,
		Role:      Role(res.Claims.Role),
		SessionID: res.Claims.SID,
	}
	if res.Claims.IssuedAt != nil {
		info.IssuedAt = res.Claims.IssuedAt.Time
	}
	if res.Claims.ExpiresAt != nil {
		info.ExpiresAt = res.Claims.ExpiresAt.Time
	}
	return info, nil
}

// Logout revokes the session behind the token. Logging out an already
// revoked session is not an error.
func (e *Engine) Logout(ctx context.Context, token string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if token == "" {
		return ErrTokenInvalid
	}
	return e.flows.Logout(ctx, token)
}

// LogoutAll revokes every session of the token's user in one atomic step
// and returns how many were revoked. The caller must hold a live session.
func (e *Engine) LogoutAll(ctx context.Context, token string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	if token == "" {
		return 0, ErrTokenInvalid
	}
	return e.flows.LogoutAll(ctx, token)
}

// ActiveSessions returns the session IDs currently live for a public ID.
func (e *Engine) ActiveSessions(ctx context.Context, publicID string) ([]string, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	ids, err := e.sessions.ActiveSessionIDs(ctx, publicID)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return ids, nil
}

func (e *Engine) validateFlowDeps() internalflows.ValidateDeps {
	return internalflows.ValidateDeps{
		TouchInterval: e.config.Session.TouchInterval,

		ParseAccess:  e.jwtManager.ParseAccess,
		TokenExpired: tokenExpired,

		GetSession: e.getSession,
		TouchSession: func(ctx context.Context, sessionID string, at time.Time) error {
			return e.sessions.Touch(ctx, sessionID, at)
		},

		EnforceBinding: e.config.Session.EnforceBinding,
		ClientIP:       clientIPFromContext,
		UserAgent:      userAgentFromContext,
		HashBinding:    hashBindingValue,

		SessionUnavailable: session.ErrRedisUnavailable,

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.flowEmitAudit,

		MetricSuccess: int(MetricValidateSuccess),
		MetricFailure: int(MetricValidateFailure),

		EventBindingMismatch: auditEventBindingMismatch,
	}
}

func (e *Engine) logoutFlowDeps() internalflows.LogoutDeps {
	return internalflows.LogoutDeps{
		ParseAccess:  e.jwtManager.ParseAccess,
		TokenExpired: tokenExpired,

		GetSession: e.getSession,
		DeleteSession: func(ctx context.Context, userID, sessionID string) (bool, error) {
			existed, err := e.sessions.Delete(ctx, userID, sessionID)
			if err != nil {
				return false, errors.Join(ErrStoreUnavailable, err)
			}
			return existed, nil
		},
		DeleteAllSessions: e.deleteAllSessions,

		SessionUnavailable: session.ErrRedisUnavailable,

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.flowEmitAudit,

		Metrics: internalflows.LogoutMetrics{
			Logout:             int(MetricLogout),
			LogoutAll:          int(MetricLogoutAll),
			SessionInvalidated: int(MetricSessionInvalidated),
		},
		Events: internalflows.LogoutEvents{
			Logout:    auditEventLogout,
			LogoutAll: auditEventLogoutAll,
		},
		Errors: internalflows.LogoutErrors{
			EngineNotReady:   ErrEngineNotReady,
			TokenInvalid:     ErrTokenInvalid,
			TokenExpired:     ErrTokenExpired,
			SessionRevoked:   ErrSessionRevoked,
			StoreUnavailable: ErrStoreUnavailable,
		},
	}
}

func (e *Engine) getSession(ctx context.Context, sessionID string) (*session.Session, error) {
	return e.sessions.Get(ctx, sessionID)
}

func (e *Engine) deleteAllSessions(ctx context.Context, userID string) (int, error) {
	removed, err := e.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, errors.Join(ErrStoreUnavailable, err)
	}
	if removed > 0 {
		e.metricInc(MetricSessionInvalidated)
	}
	return removed, nil
}
