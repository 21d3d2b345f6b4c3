package medauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// memoryAccountStore is an AccountStore with the same uniqueness behavior
// the Postgres store enforces through constraints.
type memoryAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*Account

	failNext error
}

func newMemoryAccountStore() *memoryAccountStore {
	return &memoryAccountStore{
		accounts: make(map[string]*Account),
	}
}

func (m *memoryAccountStore) Create(_ context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}

	if _, ok := m.accounts[a.PublicID]; ok {
		return ErrUserExists
	}
	for _, existing := range m.accounts {
		if existing.Role == a.Role && (existing.Email == a.Email || existing.Username == a.Username) {
			return ErrUserExists
		}
	}

	clone := *a
	m.accounts[a.PublicID] = &clone
	return nil
}

func (m *memoryAccountStore) ByEmail(_ context.Context, role Role, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	for _, a := range m.accounts {
		if a.Role == role && a.Email == email {
			clone := *a
			return &clone, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *memoryAccountStore) ByIdentifier(_ context.Context, identifier string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	// Public ID beats email beats username, patients before doctors
	// within a match kind, matching the Postgres store's ordering.
	match := func(a *Account, kind int) bool {
		switch kind {
		case 0:
			return a.PublicID == identifier
		case 1:
			return a.Email == identifier
		default:
			return a.Username == identifier
		}
	}
	for kind := 0; kind < 3; kind++ {
		for _, role := range []Role{RolePatient, RoleDoctor} {
			for _, a := range m.accounts {
				if a.Role == role && match(a, kind) {
					clone := *a
					return &clone, nil
				}
			}
		}
	}
	return nil, ErrUserNotFound
}

func (m *memoryAccountStore) ByPublicID(_ context.Context, publicID string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	a, ok := m.accounts[publicID]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *a
	return &clone, nil
}

func (m *memoryAccountStore) UpdatePassword(_ context.Context, publicID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}

	a, ok := m.accounts[publicID]
	if !ok {
		return ErrUserNotFound
	}
	a.PasswordHash = passwordHash
	return nil
}

func (m *memoryAccountStore) takeFailure() error {
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	return nil
}

func (m *memoryAccountStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts)
}

// recordingMailer captures issued codes instead of delivering them.
type recordingMailer struct {
	mu    sync.Mutex
	codes map[string]string

	failNext bool
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{
		codes: make(map[string]string),
	}
}

func (m *recordingMailer) SendOTP(_ context.Context, to string, _ OTPPurpose, code string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return errors.New("smtp unavailable")
	}
	m.codes[to] = code
	return nil
}

func (m *recordingMailer) lastCode(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

type testEnv struct {
	engine *Engine
	redis  *miniredis.Miniredis
	store  *memoryAccountStore
	mail   *recordingMailer
}

func newTestEngine(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	store := newMemoryAccountStore()
	mail := newRecordingMailer()

	cfg := defaultConfig()
	// Cheap argon2 parameters keep the suite fast.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	for _, fn := range mutate {
		fn(&cfg)
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(store).
		WithMailer(mail).
		WithJWTSecret([]byte("0123456789abcdef0123456789abcdef")).
		WithMetricsEnabled(true).
		Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, redis: mr, store: store, mail: mail}
}

func registerPatient(t *testing.T, env *testEnv, email, username, password string) string {
	t.Helper()

	res, err := env.engine.Register(context.Background(), RegisterInput{
		Role:     RolePatient,
		Email:    email,
		Username: username,
		FullName: "Test Patient",
		Password: password,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if res.MailError != nil {
		t.Fatalf("unexpected mail error: %v", res.MailError)
	}
	return res.PublicID
}

func verifiedPatient(t *testing.T, env *testEnv, email, username, password string) string {
	t.Helper()

	publicID := registerPatient(t, env, email, username, password)
	code := env.mail.lastCode(email)
	if code == "" {
		t.Fatal("no verification code recorded")
	}
	if _, err := env.engine.VerifyEmail(context.Background(), email, code); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	return publicID
}

func TestEngineNotReady(t *testing.T) {
	var e *Engine

	if _, err := e.Register(context.Background(), RegisterInput{}); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("Register on nil engine: got %v, want ErrEngineNotReady", err)
	}
	if _, err := e.ValidateToken(context.Background(), "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("ValidateToken on nil engine: got %v, want ErrEngineNotReady", err)
	}

	zero := &Engine{}
	if _, err := zero.Login(context.Background(), "user", "pass"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("Login on zero engine: got %v, want ErrEngineNotReady", err)
	}
}

func TestBuilderSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)

	b := New().
		WithRedis(rdb).
		WithAccountStore(newMemoryAccountStore()).
		WithJWTSecret([]byte("0123456789abcdef0123456789abcdef"))

	if _, err := b.Build(context.Background()); err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	if _, err := b.Build(context.Background()); err == nil {
		t.Fatal("second Build should fail")
	}
}

func TestBuilderRequiresRedisAndStore(t *testing.T) {
	if _, err := New().Build(context.Background()); err == nil {
		t.Fatal("Build without redis should fail")
	}

	_, rdb := newTestRedis(t)
	if _, err := New().WithRedis(rdb).Build(context.Background()); err == nil {
		t.Fatal("Build without account store should fail")
	}
}
