package medauth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateRejectsGarbage(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := env.engine.ValidateToken(ctx, token); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("ValidateToken(%q): got %v, want ErrTokenInvalid", token, err)
		}
	}
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	verifiedPatient(t, env, "john@x.com", "john", "p@ss1234")
	res, err := env.engine.Login(ctx, "john", "p@ss1234")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	parts := strings.Split(res.Token, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d segments", len(parts))
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	if _, err := env.engine.ValidateToken(ctx, tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("got %v, want ErrTokenInvalid", err)
	}
}

func TestValidateEnforcesSessionBinding(t *testing.T) {
	env := newTestEngine(t, func(cfg *Config) {
		cfg.Session.EnforceBinding = true
	})
	verifiedPatient(t, env, "john@x.com", "john", "p@ss1234")

	loginCtx := WithUserAgent(WithClientIP(context.Background(), "198.51.100.33"), "app/1.0")
	res, err := env.engine.Login(loginCtx, "john", "p@ss1234")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// The client that opened the session keeps validating.
	if _, err := env.engine.ValidateToken(loginCtx, res.Token); err != nil {
		t.Fatalf("same-client validation failed: %v", err)
	}

	// A request without metadata stays unbound.
	if _, err := env.engine.ValidateToken(context.Background(), res.Token); err != nil {
		t.Fatalf("metadata-free validation failed: %v", err)
	}

	otherIP := WithUserAgent(WithClientIP(context.Background(), "203.0.113.7"), "app/1.0")
	if _, err := env.engine.ValidateToken(otherIP, res.Token); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("foreign IP: got %v, want ErrSessionRevoked", err)
	}

	otherUA := WithUserAgent(WithClientIP(context.Background(), "198.51.100.33"), "bot/2.0")
	if _, err := env.engine.ValidateToken(otherUA, res.Token); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("foreign user agent: got %v, want ErrSessionRevoked", err)
	}
}

func TestValidateBindingMismatchAuditedNotRejected(t *testing.T) {
	sink := NewChannelSink(16)
	env := newTestEngineWithSink(t, sink)

	verifiedPatient(t, env, "john@x.com", "john", "p@ss1234")
	loginCtx := WithClientIP(context.Background(), "198.51.100.33")
	res, err := env.engine.Login(loginCtx, "john", "p@ss1234")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// Without enforcement a moved client still validates.
	otherIP := WithClientIP(context.Background(), "203.0.113.7")
	if _, err := env.engine.ValidateToken(otherIP, res.Token); err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sink.Events():
			if ev.EventType != auditEventBindingMismatch {
				continue
			}
			if ev.SessionID != res.SessionID {
				t.Fatalf("event session = %q, want %q", ev.SessionID, res.SessionID)
			}
			if ev.Metadata["binding"] != "ip" {
				t.Fatalf("binding = %q, want ip", ev.Metadata["binding"])
			}
			return
		case <-deadline:
			t.Fatal("no binding mismatch audit event received")
		}
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	verifiedPatient(t, env, "john@x.com", "john", "p@ss1234")
	res, err := env.engine.Login(ctx, "john", "p@ss1234")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := env.engine.Logout(ctx, res.Token); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	// The signature still checks out, but the session behind it is gone.
	if _, err := env.engine.ValidateToken(ctx, res.Token); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("got %v, want ErrSessionRevoked", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	verifiedPatient(t, env, "john@x.com", "john", "p@ss1234")
	res, err := env.engine.Login(ctx, "john", "p@ss1234")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := env.engine.Logout(ctx, res.Token); err != nil {
		t.Fatalf("first Logout failed: %v", err)
	}
	if err := env.engine.Logout(ctx, res.Token); err != nil {
		t.Fatalf("second Logout failed: %v", err)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	publicID := verifiedPatient(t, env, "john@x.com", "john", "p@ss1234")

	var tokens []string
	for i := 0; i < 3; i++ {
		res, err := env.engine.Login(ctx, "john", "p@ss1234")
		if err != nil {
			t.Fatalf("login %d failed: %v", i+1, err)
		}
		tokens = append(tokens, res.Token)
	}

	revoked, err := env.engine.LogoutAll(ctx, tokens[0])
	if err != nil {
		t.Fatalf("LogoutAll failed: %v", err)
	}
	if revoked != 3 {
		t.Fatalf("revoked = %d, want 3", revoked)
	}

	for i, token := range tokens {
		if _, err := env.engine.ValidateToken(ctx, token); !errors.Is(err, ErrSessionRevoked) {
			t.Fatalf("token %d: got %v, want ErrSessionRevoked", i+1, err)
		}
	}

	ids, err := env.engine.ActiveSessions(ctx, publicID)
	if err != nil {
		t.Fatalf("ActiveSessions failed: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("active sessions = %d, want 0", len(ids))
	}
}

func TestActiveSessionsOmitExpired(t *testing.T) {
	env := newTestEngine(t, func(cfg *Config) {
		cfg.Session.TTL = 50 * time.Millisecond
		cfg.Session.TouchInterval = time.Millisecond
	})
	ctx := context.Background()

	publicID := verifiedPatient(t, env, "john@x.com", "john", "p@ss1234")

	stale, err := env.engine.Login(ctx, "john", "p@ss1234")
	if err != nil {
		t.Fatalf("first login failed: %v", err)
	}
	time.Sleep(80 * time.Millisecond)

	fresh, err := env.engine.Login(ctx, "john", "p@ss1234")
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}

	// The stale record may still sit in Redis, but it must not be listed.
	ids, err := env.engine.ActiveSessions(ctx, publicID)
	if err != nil {
		t.Fatalf("ActiveSessions failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != fresh.SessionID {
		t.Fatalf("ids = %v, want [%s]", ids, fresh.SessionID)
	}
	if _, err := env.engine.ValidateToken(ctx, stale.Token); err == nil {
		t.Fatal("expired session still validates")
	}
}

func TestLogoutOnlyRevokesOwnSession(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	verifiedPatient(t, env, "john@x.com", "john", "p@ss1234")

	first, err := env.engine.Login(ctx, "john", "p@ss1234")
	if err != nil {
		t.Fatalf("first login failed: %v", err)
	}
	second, err := env.engine.Login(ctx, "john", "p@ss1234")
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}

	if err := env.engine.Logout(ctx, first.Token); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if _, err := env.engine.ValidateToken(ctx, second.Token); err != nil {
		t.Fatalf("surviving session failed validation: %v", err)
	}
}
