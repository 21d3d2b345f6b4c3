package flows

import (
	"context"
	"errors"
	"strconv"

	"github.com/medauth/medauth/jwt"
	"github.com/medauth/medauth/session"
)

// LogoutMetrics carries metric IDs needed by the logout flows.
type LogoutMetrics struct {
	Logout             int
	LogoutAll          int
	SessionInvalidated int
}

// LogoutEvents carries audit event names used by the logout flows.
type LogoutEvents struct {
	Logout    string
	LogoutAll string
}

// LogoutErrors carries host-level sentinel errors used by the logout flows.
type LogoutErrors struct {
	EngineNotReady   error
	TokenInvalid     error
	TokenExpired     error
	SessionRevoked   error
	StoreUnavailable error
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	ParseAccess  func(string) (*jwt.AccessClaims, error)
	TokenExpired func(error) bool

	GetSession        func(context.Context, string) (*session.Session, error)
	DeleteSession     func(context.Context, string, string) (bool, error)
	DeleteAllSessions func(context.Context, string) (int, error)

	SessionUnavailable error

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, string, error, func() map[string]string)

	Metrics LogoutMetrics
	Events  LogoutEvents
	Errors  LogoutErrors
}

func normalizeLogoutDeps(deps *LogoutDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, string, error, func() map[string]string) {}
	}
}

// RunLogout revokes the session behind the token. Revoking an already
// revoked session is not an error; logout is idempotent.
func RunLogout(ctx context.Context, tokenStr string, deps LogoutDeps) error {
	normalizeLogoutDeps(&deps)
	if deps.ParseAccess == nil || deps.DeleteSession == nil {
		return deps.Errors.EngineNotReady
	}

	claims, err := deps.ParseAccess(tokenStr)
	if err != nil {
		if deps.TokenExpired != nil && deps.TokenExpired(err) {
			return errors.Join(deps.Errors.TokenExpired, err)
		}
		return errors.Join(deps.Errors.TokenInvalid, err)
	}

	existed, err := deps.DeleteSession(ctx, claims.UID, claims.SID)
	if err != nil {
		return err
	}
	if existed {
		deps.MetricInc(deps.Metrics.SessionInvalidated)
	}

	deps.MetricInc(deps.Metrics.Logout)
	deps.EmitAudit(ctx, deps.Events.Logout, true, claims.UID, claims.Role, claims.SID, nil, nil)
	return nil
}

// RunLogoutAll revokes every session of the token's user in one atomic
// step and returns how many were revoked. Unlike single logout, the
// caller must hold a live session.
func RunLogoutAll(ctx context.Context, tokenStr string, deps LogoutDeps) (int, error) {
	normalizeLogoutDeps(&deps)
	if deps.ParseAccess == nil || deps.GetSession == nil || deps.DeleteAllSessions == nil {
		return 0, deps.Errors.EngineNotReady
	}

	claims, err := deps.ParseAccess(tokenStr)
	if err != nil {
		if deps.TokenExpired != nil && deps.TokenExpired(err) {
			return 0, errors.Join(deps.Errors.TokenExpired, err)
		}
		return 0, errors.Join(deps.Errors.TokenInvalid, err)
	}

	if _, err := deps.GetSession(ctx, claims.SID); err != nil {
		if deps.SessionUnavailable != nil && errors.Is(err, deps.SessionUnavailable) {
			return 0, err
		}
		return 0, deps.Errors.SessionRevoked
	}

	removed, err := deps.DeleteAllSessions(ctx, claims.UID)
	if err != nil {
		return 0, err
	}

	deps.MetricInc(deps.Metrics.LogoutAll)
	deps.EmitAudit(ctx, deps.Events.LogoutAll, true, claims.UID, claims.Role, claims.SID, nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(removed)}
	})
	return removed, nil
}
