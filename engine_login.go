package medauth

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/medauth/medauth/internal"
	internalflows "github.com/medauth/medauth/internal/flows"
	"github.com/medauth/medauth/session"
)

// Login verifies credentials against the identifier (username, email or
// public ID), creates a session and returns a signed token. A lookup miss
// and a wrong password are indistinguishable to the caller; both report
// ErrAuthenticationFailed.
func (e *Engine) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	identifier = normalizeLoginIdentifier(identifier)
	if identifier == "" {
		return nil, ErrValidation
	}

	res, err := e.flows.Login(ctx, identifier, password)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Token:     res.Token,
		SessionID: res.SessionID,
		ExpiresAt: res.ExpiresAt,
		Account: flowRecordToAccount(res.User),
	}, nil
}

// normalizeLoginIdentifier folds emails and usernames to lower case while
// preserving the upper-case prefix of public IDs.
func normalizeLoginIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if isPublicID(strings.ToUpper(identifier)) {
		return strings.ToUpper(identifier)
	}
	return strings.ToLower(identifier)
}

func isPublicID(candidate string) bool {
	prefix := ""
	switch {
	case strings.HasPrefix(candidate, RolePatient.IDPrefix()):
		prefix = RolePatient.IDPrefix()
	case strings.HasPrefix(candidate, RoleDoctor.IDPrefix()):
		prefix = RoleDoctor.IDPrefix()
	default:
		return false
	}
	digits := candidate[len(prefix):]
	if len(digits) != publicIDDigits {
		return false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (e *Engine) loginFlowDeps() internalflows.LoginDeps {
	return internalflows.LoginDeps{
		SessionTTL: e.config.Session.TTL,

		ClientIPFromContext:  clientIPFromContext,
		UserAgentFromContext: userAgentFromContext,

		CheckLoginRate: func(ctx context.Context, identifier, ip string) error {
			return e.limiter.CheckLogin(ctx, identifier, ip)
		},
		IncrementLoginRate: func(ctx context.Context, identifier, ip string) error {
			return e.limiter.IncrementLogin(ctx, identifier, ip)
		},
		ResetLoginRate: func(ctx context.Context, identifier, ip string) error {
			return e.limiter.ResetLogin(ctx, identifier, ip)
		},

		GetUserByIdentifier: func(ctx context.Context, identifier string) (internalflows.AccountRecord, error) {
			account, err := e.accounts.ByIdentifier(ctx, identifier)
			if err != nil {
				if errors.Is(err, ErrUserNotFound) {
					return internalflows.AccountRecord{}, ErrUserNotFound
				}
				return internalflows.AccountRecord{}, errors.Join(ErrStoreUnavailable, err)
			}
			return accountToFlowRecord(account), nil
		},

		VerifyPassword:       e.passwordHash.Verify,
		PasswordNeedsUpgrade: e.passwordHash.NeedsUpgrade,
		HashPassword:         e.passwordHash.Hash,
		UpdatePasswordHash: func(ctx context.Context, publicID, hash string) error {
			return e.accounts.UpdatePassword(ctx, publicID, hash)
		},

		NewSessionID: func() (string, error) {
			sid, err := internal.NewSessionID()
			if err != nil {
				return "", err
			}
			return sid.String(), nil
		},
		HashBindingValue: hashBindingValue,
		SaveSession: func(ctx context.Context, sess *session.Session) error {
			if err := e.sessions.Save(ctx, sess); err != nil {
				return errors.Join(ErrStoreUnavailable, err)
			}
			return nil
		},
		IssueAccessToken: func(sess *session.Session) (string, error) {
			return e.jwtManager.CreateAccess(sess.UserID, sess.Role, sess.SessionID)
		},

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.flowEmitAudit,
		EmitRate:  e.emitRateLimit,
		Warn:      func(msg string, _ ...any) { log.Print(msg) },

		Metrics: internalflows.LoginMetrics{
			Success:        int(MetricLoginSuccess),
			Failure:        int(MetricLoginFailure),
			RateLimited:    int(MetricLoginRateLimited),
			SessionCreated: int(MetricSessionCreated),
		},
		Events: internalflows.LoginEvents{
			Login:       auditEventLogin,
			RateLimited: auditEventRateLimitTriggered,
		},
		Errors: internalflows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrAuthenticationFailed,
			LoginRateLimited:   ErrLoginRateLimited,
			StoreUnavailable:   ErrStoreUnavailable,
		},
	}
}
