package flows

import (
	"context"
	"time"

	"github.com/medauth/medauth/session"
)

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	Token     string
	SessionID string
	ExpiresAt time.Time
	User      AccountRecord
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	Success        int
	Failure        int
	RateLimited    int
	SessionCreated int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	Login       string
	RateLimited string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	LoginRateLimited   error
	StoreUnavailable   error
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	SessionTTL time.Duration

	ClientIPFromContext  func(context.Context) string
	UserAgentFromContext func(context.Context) string
	Now                  func() time.Time

	CheckLoginRate     func(context.Context, string, string) error
	IncrementLoginRate func(context.Context, string, string) error
	ResetLoginRate     func(context.Context, string, string) error

	// GetUserByIdentifier resolves username, email or public ID. A miss
	// must be indistinguishable from a password mismatch to the caller.
	GetUserByIdentifier func(context.Context, string) (AccountRecord, error)

	VerifyPassword       func(string, string) (bool, error)
	PasswordNeedsUpgrade func(string) (bool, error)
	HashPassword         func(string) (string, error)
	UpdatePasswordHash   func(context.Context, string, string) error

	NewSessionID     func() (string, error)
	HashBindingValue func(string) [32]byte
	SaveSession      func(context.Context, *session.Session) error
	IssueAccessToken func(*session.Session) (string, error)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, string, error, func() map[string]string)
	EmitRate  func(context.Context, string)
	Warn      func(string, ...any)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin executes the login flow and issues a session plus token.
func RunLogin(ctx context.Context, identifier, password string, deps LoginDeps) (*LoginResult, error) {
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
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.UserAgentFromContext == nil {
		deps.UserAgentFromContext = func(context.Context) string { return "" }
	}
	if deps.GetUserByIdentifier == nil ||
		deps.VerifyPassword == nil ||
		deps.NewSessionID == nil ||
		deps.SaveSession == nil ||
		deps.IssueAccessToken == nil {
		return nil, deps.Errors.EngineNotReady
	}

	ip := deps.ClientIPFromContext(ctx)

	if deps.CheckLoginRate != nil {
		if err := deps.CheckLoginRate(ctx, identifier, ip); err != nil {
			deps.MetricInc(deps.Metrics.RateLimited)
			deps.EmitAudit(ctx, deps.Events.RateLimited, false, "", "", "", deps.Errors.LoginRateLimited, func() map[string]string {
				return map[string]string{"identifier": identifier}
			})
			deps.EmitRate(ctx, "login")
			return nil, deps.Errors.LoginRateLimited
		}
	}

	fail := func(user AccountRecord, reason string) (*LoginResult, error) {
		if deps.IncrementLoginRate != nil {
			if err := deps.IncrementLoginRate(ctx, identifier, ip); err != nil {
				deps.MetricInc(deps.Metrics.RateLimited)
				deps.EmitRate(ctx, "login")
				return nil, deps.Errors.LoginRateLimited
			}
		}
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Login, false, user.UserID, user.Role, "", deps.Errors.InvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     reason,
			}
		})
		return nil, deps.Errors.InvalidCredentials
	}

	if password == "" {
		return fail(AccountRecord{}, "empty_password")
	}

	user, err := deps.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		return fail(AccountRecord{}, "user_not_found")
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return fail(user, "password_mismatch")
	}

	if deps.PasswordNeedsUpgrade != nil && deps.HashPassword != nil && deps.UpdatePasswordHash != nil {
		if needsUpgrade, upErr := deps.PasswordNeedsUpgrade(user.PasswordHash); upErr == nil && needsUpgrade {
			if upgradedHash, hashErr := deps.HashPassword(password); hashErr == nil {
				if err := deps.UpdatePasswordHash(ctx, user.UserID, upgradedHash); err != nil {
					deps.Warn("medauth: password hash upgrade update failed")
				}
			} else {
				deps.Warn("medauth: password hash upgrade generation failed")
			}
		}
	}
	password = ""

	sid, err := deps.NewSessionID()
	if err != nil {
		return nil, err
	}

	now := deps.Now()
	expiresAt := now.Add(deps.SessionTTL)
	sess := &session.Session{
		SessionID:    sid,
		UserID:       user.UserID,
		Role:         user.Role,
		CreatedAt:    now.Unix(),
		LastActivity: now.Unix(),
		ExpiresAt:    expiresAt.Unix(),
	}
	if deps.HashBindingValue != nil {
		if ip != "" {
			sess.IPHash = deps.HashBindingValue(ip)
		}
		if ua := deps.UserAgentFromContext(ctx); ua != "" {
			sess.UserAgentHash = deps.HashBindingValue(ua)
		}
	}

	if err := deps.SaveSession(ctx, sess); err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		return nil, err
	}
	deps.MetricInc(deps.Metrics.SessionCreated)

	token, err := deps.IssueAccessToken(sess)
	if err != nil {
		return nil, err
	}

	if deps.ResetLoginRate != nil {
		_ = deps.ResetLoginRate(ctx, identifier, ip)
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Login, true, user.UserID, user.Role, sid, nil, nil)

	return &LoginResult{
		Token:     token,
		SessionID: sid,
		ExpiresAt: expiresAt,
		User:      user,
	}, nil
}
