package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	if cfg.LoginWindow == 0 {
		cfg.LoginWindow = 15 * time.Minute
	}
	if cfg.OTPWindow == 0 {
		cfg.OTPWindow = 10 * time.Minute
	}
	return New(client, cfg), mr
}

func TestLoginBudget(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(t, Config{MaxLoginAttempts: 3})

	for i := 0; i < 3; i++ {
		if err := limiter.CheckLogin(ctx, "john", "1.2.3.4"); err != nil {
			t.Fatalf("check %d failed: %v", i+1, err)
		}
		if err := limiter.IncrementLogin(ctx, "john", "1.2.3.4"); err != nil {
			t.Fatalf("increment %d failed: %v", i+1, err)
		}
	}

	// The increment that crosses the budget reports the limit.
	if err := limiter.IncrementLogin(ctx, "john", "1.2.3.4"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", err)
	}
	if err := limiter.CheckLogin(ctx, "john", "1.2.3.4"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("check past budget: got %v, want ErrRateLimited", err)
	}
}

func TestLoginResetClearsCounters(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(t, Config{MaxLoginAttempts: 2})

	for i := 0; i < 3; i++ {
		_ = limiter.IncrementLogin(ctx, "john", "1.2.3.4")
	}
	if err := limiter.CheckLogin(ctx, "john", "1.2.3.4"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", err)
	}

	if err := limiter.ResetLogin(ctx, "john", "1.2.3.4"); err != nil {
		t.Fatalf("ResetLogin failed: %v", err)
	}
	if err := limiter.CheckLogin(ctx, "john", "1.2.3.4"); err != nil {
		t.Fatalf("check after reset failed: %v", err)
	}

	attempts, err := limiter.GetLoginAttempts(ctx, "john")
	if err != nil {
		t.Fatalf("GetLoginAttempts failed: %v", err)
	}
	if attempts != 0 {
		t.Fatalf("attempts = %d, want 0", attempts)
	}
}

func TestLoginIPBudgetIsIndependent(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(t, Config{MaxLoginAttempts: 2})

	// Exhaust the budget across different identifiers from one address.
	for i, identifier := range []string{"a", "b"} {
		if err := limiter.IncrementLogin(ctx, identifier, "1.2.3.4"); err != nil {
			t.Fatalf("increment %d failed: %v", i+1, err)
		}
	}
	// The third failure trips the per-address counter even though the
	// identifier itself is fresh.
	if err := limiter.IncrementLogin(ctx, "c", "1.2.3.4"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", err)
	}

	// A fresh identifier from the same address is blocked on the IP counter.
	if err := limiter.CheckLogin(ctx, "d", "1.2.3.4"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", err)
	}
	// The same identifier from elsewhere is fine.
	if err := limiter.CheckLogin(ctx, "d", "5.6.7.8"); err != nil {
		t.Fatalf("check from clean address failed: %v", err)
	}
}

func TestLoginEmptyIPSkipsIPCounter(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(t, Config{MaxLoginAttempts: 1})

	if err := limiter.IncrementLogin(ctx, "john", ""); err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if err := limiter.IncrementLogin(ctx, "john", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", err)
	}
}

func TestOTPIssueBudget(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(t, Config{MaxOTPIssues: 2})

	for i := 0; i < 2; i++ {
		if err := limiter.CheckOTPIssue(ctx, "john@x.com", "1.2.3.4"); err != nil {
			t.Fatalf("issue %d failed: %v", i+1, err)
		}
	}
	if err := limiter.CheckOTPIssue(ctx, "john@x.com", "1.2.3.4"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", err)
	}

	// Other emails keep their own budget.
	if err := limiter.CheckOTPIssue(ctx, "jane@x.com", "9.9.9.9"); err != nil {
		t.Fatalf("unrelated email blocked: %v", err)
	}
}

func TestWindowExpiryRestoresBudget(t *testing.T) {
	ctx := context.Background()
	limiter, mr := newTestLimiter(t, Config{MaxOTPIssues: 1, OTPWindow: time.Minute})

	if err := limiter.CheckOTPIssue(ctx, "john@x.com", ""); err != nil {
		t.Fatalf("first issue failed: %v", err)
	}
	if err := limiter.CheckOTPIssue(ctx, "john@x.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", err)
	}

	mr.FastForward(2 * time.Minute)

	if err := limiter.CheckOTPIssue(ctx, "john@x.com", ""); err != nil {
		t.Fatalf("issue after window failed: %v", err)
	}
}
