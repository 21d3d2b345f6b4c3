package medauth

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/medauth/medauth/internal/rate"
	"github.com/medauth/medauth/internal/stores"
	"github.com/medauth/medauth/jwt"
	"github.com/medauth/medauth/password"
	"github.com/medauth/medauth/session"
)

// Builder assembles an Engine. A Builder is single-use; Build fails on the
// second call.
type Builder struct {
	config Config

	redis    *redis.Client
	accounts AccountStore
	mailer   Mailer

	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with the default config.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole config. Call it before the targeted
// With* setters or it overwrites them.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing drafts, codes, sessions and
// rate limits.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the durable account store.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithMailer sets the OTP mailer. Optional; without one every flow that
// sends mail reports ErrEmailDeliveryFailed in its result and the codes
// are only reachable through logs or the store.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithJWTSecret sets the HS256 signing secret.
func (b *Builder) WithJWTSecret(secret []byte) *Builder {
	b.config.JWT.Secret = cloneBytes(secret)
	return b
}

// WithAuditSink enables audit dispatch into the given sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithMetricsEnabled toggles the internal counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles bucketed latency tracking for token
// validation. Counters must also be enabled for samples to be recorded.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithBindingEnforcement makes token validation reject sessions whose
// recorded client IP or user agent no longer matches the request.
// Mismatches are audited whether or not enforcement is on.
func (b *Builder) WithBindingEnforcement(enabled bool) *Builder {
	b.config.Session.EnforceBinding = enabled
	return b
}

// Build validates the config, wires the stores and returns a ready
// Engine. The context bounds the initial Redis ping.
func (b *Builder) Build(ctx context.Context) (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := b.redis.Ping(ctx).Err(); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	jwtManager, err := jwt.NewManager(jwt.Options{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		TTL:      cfg.Session.TTL,
		Leeway:   cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	eng := &Engine{
		config: cfg,

		sessions: session.NewStore(b.redis, cfg.Session.RedisPrefix, cfg.Session.TTL),
		otps: stores.NewOTPStore(b.redis, stores.OTPOptions{
			Prefix:      cfg.OTP.RedisPrefix,
			TTL:         cfg.OTP.TTL,
			ExpiryGrace: cfg.OTP.ExpiryGrace,
			MaxAttempts: cfg.OTP.MaxAttempts,
		}),
		pending: stores.NewPendingStore(b.redis, cfg.Registration.RedisPrefix, cfg.Registration.DraftTTL),
		limiter: rate.New(b.redis, rate.Config{
			Prefix:           cfg.RateLimit.RedisPrefix,
			MaxLoginAttempts: cfg.RateLimit.LoginMaxAttempts,
			LoginWindow:      cfg.RateLimit.LoginWindow,
			MaxOTPIssues:     cfg.RateLimit.OTPMaxIssues,
			OTPWindow:        cfg.RateLimit.OTPWindow,
		}),

		accounts: b.accounts,
		mailer:   b.mailer,

		jwtManager: jwtManager,
	}

	eng.passwordHash, err = password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Audit.Enabled {
		sink := b.auditSink
		if sink == nil {
			sink = NoOpSink{}
		}
		eng.audit = newAuditDispatcher(sink, cfg.Audit.BufferSize, cfg.Audit.DropIfFull)
	}

	if cfg.Metrics.Enabled {
		eng.metrics = newMetrics(cfg.Metrics.EnableLatencyHistograms)
	}

	eng.flows = eng.buildFlows()

	b.built = true
	return eng, nil
}
