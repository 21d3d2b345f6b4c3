package medauth

import (
	"context"
	"errors"
	"testing"
)

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	verifiedPatient(t, env, "john@x.com", "john", "p@ss1234")

	// An open session from before the reset.
	stale, err := env.engine.Login(ctx, "john", "p@ss1234")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := env.engine.ForgotPassword(ctx, "john@x.com"); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	code := env.mail.lastCode("john@x.com")
	if code == "" {
		t.Fatal("no reset code recorded")
	}

	if err := env.engine.ResetPassword(ctx, "john@x.com", code, "n3w-p@ssword"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	// The reset revoked every open session.
	if _, err := env.engine.ValidateToken(ctx, stale.Token); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("stale token: got %v, want ErrSessionRevoked", err)
	}

	if _, err := env.engine.Login(ctx, "john", "p@ss1234"); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("old password: got %v, want ErrAuthenticationFailed", err)
	}
	if _, err := env.engine.Login(ctx, "john", "n3w-p@ssword"); err != nil {
		t.Fatalf("new password failed: %v", err)
	}
}

func TestForgotPasswordHidesUnknownEmail(t *testing.T) {
	env := newTestEngine(t)

	// Unknown emails succeed silently; no code goes out.
	if err := env.engine.ForgotPassword(context.Background(), "ghost@x.com"); err != nil {
		t.Fatalf("got %v, want nil", err)
	}
	if env.mail.lastCode("ghost@x.com") != "" {
		t.Fatal("code issued for unknown email")
	}
}

func TestForgotPasswordValidation(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	for _, email := range []string{"", "no-at-sign"} {
		if err := env.engine.ForgotPassword(ctx, email); !errors.Is(err, ErrValidation) {
			t.Fatalf("ForgotPassword(%q): got %v, want ErrValidation", email, err)
		}
	}
}

func TestResetPasswordWrongCode(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	verifiedPatient(t, env, "john@x.com", "john", "p@ss1234")
	if err := env.engine.ForgotPassword(ctx, "john@x.com"); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	code := env.mail.lastCode("john@x.com")

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	if err := env.engine.ResetPassword(ctx, "john@x.com", wrong, "n3w-p@ssword"); !errors.Is(err, ErrOTPMismatch) {
		t.Fatalf("got %v, want ErrOTPMismatch", err)
	}

	// The wrong attempt did not change the password.
	if _, err := env.engine.Login(ctx, "john", "p@ss1234"); err != nil {
		t.Fatalf("original password failed: %v", err)
	}
}

func TestResetPasswordPolicy(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	verifiedPatient(t, env, "john@x.com", "john", "p@ss1234")
	if err := env.engine.ForgotPassword(ctx, "john@x.com"); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	code := env.mail.lastCode("john@x.com")

	if err := env.engine.ResetPassword(ctx, "john@x.com", code, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("got %v, want ErrPasswordPolicy", err)
	}

	// The policy check runs before the code is consumed.
	if err := env.engine.ResetPassword(ctx, "john@x.com", code, "n3w-p@ssword"); err != nil {
		t.Fatalf("reset after policy rejection failed: %v", err)
	}
}

func TestResetPasswordWithoutRequest(t *testing.T) {
	env := newTestEngine(t)

	verifiedPatient(t, env, "john@x.com", "john", "p@ss1234")

	if err := env.engine.ResetPassword(context.Background(), "john@x.com", "123456", "n3w-p@ssword"); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("got %v, want ErrOTPNotFound", err)
	}
}

func TestResetPasswordValidation(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	if err := env.engine.ResetPassword(ctx, "", "123456", "n3w-p@ssword"); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty email: got %v, want ErrValidation", err)
	}
	if err := env.engine.ResetPassword(ctx, "john@x.com", "", "n3w-p@ssword"); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty code: got %v, want ErrValidation", err)
	}
}

func TestPasswordResetRateLimited(t *testing.T) {
	env := newTestEngine(t, func(cfg *Config) {
		cfg.RateLimit.OTPMaxIssues = 2
	})
	ctx := context.Background()

	// Registration spends one issue from the same per-email budget.
	verifiedPatient(t, env, "john@x.com", "john", "p@ss1234")

	if err := env.engine.ForgotPassword(ctx, "john@x.com"); err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	if err := env.engine.ForgotPassword(ctx, "john@x.com"); !errors.Is(err, ErrOTPRateLimited) {
		t.Fatalf("second request: got %v, want ErrOTPRateLimited", err)
	}
}
