package medauth

import (
	"context"
	"errors"
	"testing"
)

func TestLoginByEachIdentifier(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	publicID := verifiedPatient(t, env, "john@x.com", "john", "p@ss1234")

	for _, identifier := range []string{"john@x.com", "john", publicID} {
		res, err := env.engine.Login(ctx, identifier, "p@ss1234")
		if err != nil {
			t.Fatalf("Login(%q) failed: %v", identifier, err)
		}
		if res.Token == "" {
			t.Fatalf("Login(%q) returned empty token", identifier)
		}
		if res.Account.PublicID != publicID {
			t.Fatalf("Login(%q) resolved %q, want %q", identifier, res.Account.PublicID, publicID)
		}
	}
}

func TestLoginTokenValidates(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	publicID := verifiedPatient(t, env, "john@x.com", "john", "p@ss1234")

	res, err := env.engine.Login(ctx, "john", "p@ss1234")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	info, err := env.engine.ValidateToken(ctx, res.Token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if info.PublicID != publicID {
		t.Fatalf("PublicID = %q, want %q", info.PublicID, publicID)
	}
	if info.Role != RolePatient {
		t.Fatalf("Role = %q", info.Role)
	}
	if info.SessionID != res.SessionID {
		t.Fatalf("SessionID = %q, want %q", info.SessionID, res.SessionID)
	}
	if info.ExpiresAt.Before(info.IssuedAt) {
		t.Fatalf("ExpiresAt %v before IssuedAt %v", info.ExpiresAt, info.IssuedAt)
	}
}

func TestLoginNormalizesIdentifier(t *testing.T) {
	env := newTestEngine(t)

	verifiedPatient(t, env, "john@x.com", "john", "p@ss1234")

	if _, err := env.engine.Login(context.Background(), "  John@X.COM  ", "p@ss1234"); err != nil {
		t.Fatalf("Login with unnormalized identifier failed: %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEngine(t)

	verifiedPatient(t, env, "john@x.com", "john", "p@ss1234")

	if _, err := env.engine.Login(context.Background(), "john", "not-the-password"); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("got %v, want ErrAuthenticationFailed", err)
	}
}

func TestLoginUnknownIdentifier(t *testing.T) {
	env := newTestEngine(t)

	// Unknown users fail with the same error as wrong passwords.
	if _, err := env.engine.Login(context.Background(), "ghost", "whatever1"); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("got %v, want ErrAuthenticationFailed", err)
	}
}

func TestLoginValidation(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	if _, err := env.engine.Login(ctx, "", "p@ss1234"); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty identifier: got %v, want ErrValidation", err)
	}
	if _, err := env.engine.Login(ctx, "john", ""); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("empty password: got %v, want ErrAuthenticationFailed", err)
	}
}

func TestLoginUnverifiedDraft(t *testing.T) {
	env := newTestEngine(t)

	registerPatient(t, env, "john@x.com", "john", "p@ss1234")

	// Until verification promotes the draft, the credentials do not exist.
	if _, err := env.engine.Login(context.Background(), "john", "p@ss1234"); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("got %v, want ErrAuthenticationFailed", err)
	}
}

func TestLoginRateLimit(t *testing.T) {
	env := newTestEngine(t, func(cfg *Config) {
		cfg.RateLimit.LoginMaxAttempts = 2
	})
	ctx := context.Background()

	verifiedPatient(t, env, "john@x.com", "john", "p@ss1234")

	for i := 0; i < 2; i++ {
		if _, err := env.engine.Login(ctx, "john", "wrong-pass"); !errors.Is(err, ErrAuthenticationFailed) {
			t.Fatalf("attempt %d: got %v, want ErrAuthenticationFailed", i+1, err)
		}
	}

	// The attempt that crosses the budget reports the limit.
	if _, err := env.engine.Login(ctx, "john", "wrong-pass"); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("got %v, want ErrLoginRateLimited", err)
	}

	// Past the budget, even the right password is refused.
	if _, err := env.engine.Login(ctx, "john", "p@ss1234"); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("correct password past budget: got %v, want ErrLoginRateLimited", err)
	}
}

func TestLoginSuccessResetsCounter(t *testing.T) {
	env := newTestEngine(t, func(cfg *Config) {
		cfg.RateLimit.LoginMaxAttempts = 3
	})
	ctx := context.Background()

	verifiedPatient(t, env, "john@x.com", "john", "p@ss1234")

	for i := 0; i < 2; i++ {
		if _, err := env.engine.Login(ctx, "john", "wrong-pass"); !errors.Is(err, ErrAuthenticationFailed) {
			t.Fatalf("attempt %d: got %v", i+1, err)
		}
	}
	if _, err := env.engine.Login(ctx, "john", "p@ss1234"); err != nil {
		t.Fatalf("login within budget failed: %v", err)
	}

	// Success cleared the counter; the budget starts over.
	for i := 0; i < 2; i++ {
		if _, err := env.engine.Login(ctx, "john", "wrong-pass"); !errors.Is(err, ErrAuthenticationFailed) {
			t.Fatalf("post-reset attempt %d: got %v", i+1, err)
		}
	}
}

func TestLoginSessionsAreIndependent(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	publicID := verifiedPatient(t, env, "john@x.com", "john", "p@ss1234")

	first, err := env.engine.Login(ctx, "john", "p@ss1234")
	if err != nil {
		t.Fatalf("first login failed: %v", err)
	}
	second, err := env.engine.Login(ctx, "john", "p@ss1234")
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}
	if first.SessionID == second.SessionID {
		t.Fatal("two logins shared a session ID")
	}

	ids, err := env.engine.ActiveSessions(ctx, publicID)
	if err != nil {
		t.Fatalf("ActiveSessions failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("active sessions = %d, want 2", len(ids))
	}
}
