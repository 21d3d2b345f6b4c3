package medauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/medauth/medauth/internal"
)

func TestVerifyPromotesDraft(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	publicID := registerPatient(t, env, "john@x.com", "john", "p@ss1234")
	code := env.mail.lastCode("john@x.com")

	res, err := env.engine.VerifyEmail(ctx, "john@x.com", code)
	if err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	if res.Account.PublicID != publicID {
		t.Fatalf("promoted ID %q, registered %q", res.Account.PublicID, publicID)
	}
	if res.Account.Role != RolePatient {
		t.Fatalf("role = %q", res.Account.Role)
	}
	if env.store.count() != 1 {
		t.Fatalf("accounts = %d, want 1", env.store.count())
	}

	// The draft is gone: a second verification finds neither code nor draft.
	if _, err := env.engine.VerifyEmail(ctx, "john@x.com", code); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("second verify: got %v, want ErrOTPNotFound", err)
	}
}

func TestVerifyWrongCodeThenCorrect(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	registerPatient(t, env, "john@x.com", "john", "p@ss1234")
	code := env.mail.lastCode("john@x.com")

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	if _, err := env.engine.VerifyEmail(ctx, "john@x.com", wrong); !errors.Is(err, ErrOTPMismatch) {
		t.Fatalf("wrong code: got %v, want ErrOTPMismatch", err)
	}

	// A mismatch burns an attempt but not the code.
	if _, err := env.engine.VerifyEmail(ctx, "john@x.com", code); err != nil {
		t.Fatalf("correct code after mismatch failed: %v", err)
	}
}

func TestVerifyAttemptsExceeded(t *testing.T) {
	env := newTestEngine(t, func(cfg *Config) {
		cfg.OTP.MaxAttempts = 2
	})
	ctx := context.Background()

	registerPatient(t, env, "john@x.com", "john", "p@ss1234")
	code := env.mail.lastCode("john@x.com")

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	if _, err := env.engine.VerifyEmail(ctx, "john@x.com", wrong); !errors.Is(err, ErrOTPMismatch) {
		t.Fatalf("first wrong: got %v", err)
	}
	if _, err := env.engine.VerifyEmail(ctx, "john@x.com", wrong); !errors.Is(err, ErrOTPAttemptsExceeded) {
		t.Fatalf("second wrong: got %v, want ErrOTPAttemptsExceeded", err)
	}

	// The record is burned; even the right code is gone.
	if _, err := env.engine.VerifyEmail(ctx, "john@x.com", code); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("after burn: got %v, want ErrOTPNotFound", err)
	}
}

func TestVerifyExpiredDraftRejectsLiveCode(t *testing.T) {
	env := newTestEngine(t, func(cfg *Config) {
		cfg.Registration.DraftTTL = time.Millisecond
	})
	ctx := context.Background()

	registerPatient(t, env, "john@x.com", "john", "p@ss1234")
	code := env.mail.lastCode("john@x.com")
	time.Sleep(10 * time.Millisecond)

	// The code itself is still valid; the draft behind it is not. The
	// draft window bounds promotion regardless of the code's lifetime.
	if _, err := env.engine.VerifyEmail(ctx, "john@x.com", code); !errors.Is(err, ErrRegistrationExpired) {
		t.Fatalf("got %v, want ErrRegistrationExpired", err)
	}
	if env.store.count() != 0 {
		t.Fatalf("accounts = %d, want 0", env.store.count())
	}
}

func TestVerifyWithoutRegistration(t *testing.T) {
	env := newTestEngine(t)

	if _, err := env.engine.VerifyEmail(context.Background(), "ghost@x.com", "123456"); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("got %v, want ErrOTPNotFound", err)
	}
}

func TestVerifyAlreadyVerified(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	verifiedPatient(t, env, "john@x.com", "john", "p@ss1234")

	// A live code with no draft behind it means someone already promoted.
	code, err := internal.NewOTP(6)
	if err != nil {
		t.Fatalf("NewOTP failed: %v", err)
	}
	if _, err := env.engine.otps.Save(ctx, "john@x.com", otpPurposeVerification, internal.HashCode(code)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := env.engine.VerifyEmail(ctx, "john@x.com", code); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("got %v, want ErrAlreadyVerified", err)
	}
}

func TestVerifyPromotionRace(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	registerPatient(t, env, "john@x.com", "john", "p@ss1234")
	code := env.mail.lastCode("john@x.com")

	// Simulate a racer that already promoted: the store insert collides.
	env.store.failNext = ErrUserExists

	if _, err := env.engine.VerifyEmail(ctx, "john@x.com", code); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("got %v, want ErrAlreadyVerified", err)
	}
}

func TestResendReplacesCode(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	registerPatient(t, env, "john@x.com", "john", "p@ss1234")
	first := env.mail.lastCode("john@x.com")

	if err := env.engine.ResendOTP(ctx, "john@x.com"); err != nil {
		t.Fatalf("ResendOTP failed: %v", err)
	}
	second := env.mail.lastCode("john@x.com")

	if first != second {
		// The old code no longer verifies; only the latest one does.
		if _, err := env.engine.VerifyEmail(ctx, "john@x.com", first); !errors.Is(err, ErrOTPMismatch) {
			t.Fatalf("stale code: got %v, want ErrOTPMismatch", err)
		}
	}
	if _, err := env.engine.VerifyEmail(ctx, "john@x.com", second); err != nil {
		t.Fatalf("latest code failed: %v", err)
	}
}

func TestResendForUnknownEmail(t *testing.T) {
	env := newTestEngine(t)

	if err := env.engine.ResendOTP(context.Background(), "ghost@x.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("got %v, want ErrUserNotFound", err)
	}
}

func TestResendForVerifiedAccount(t *testing.T) {
	env := newTestEngine(t)

	verifiedPatient(t, env, "john@x.com", "john", "p@ss1234")

	if err := env.engine.ResendOTP(context.Background(), "john@x.com"); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("got %v, want ErrAlreadyVerified", err)
	}
}
