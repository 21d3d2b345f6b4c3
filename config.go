package medauth

import (
	"errors"
	"time"
)

// Config holds every tunable of the engine. Instances are configured during
// initialization and treated as immutable afterwards; Build copies the
// config into the Engine.
type Config struct {
	JWT          JWTConfig
	Session      SessionConfig
	Registration RegistrationConfig
	OTP          OTPConfig
	Password     PasswordConfig
	RateLimit    RateLimitConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls token signing. Only HS256 is supported; the token TTL
// mirrors the session TTL so a token never outlives its session.
type JWTConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	Leeway   time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the Redis session ledger.
type SessionConfig struct {
	RedisPrefix string
	TTL         time.Duration

	// TouchInterval throttles last-activity writes. A validation within
	// this window of the previous touch skips the Redis write.
	TouchInterval time.Duration

	// EnforceBinding rejects a token whose session was created from a
	// different client IP or user agent. Mismatches are audited either
	// way; only enforcement revokes the request.
	EnforceBinding bool
}

/*
====================================
REGISTRATION CONFIG
====================================
*/

// RegistrationConfig controls pending drafts.
type RegistrationConfig struct {
	RedisPrefix string
	DraftTTL    time.Duration

	// IDRetries bounds public-identifier regeneration on collision before
	// the engine gives up with ErrIdentifierSpaceExhausted.
	IDRetries int
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls one-time codes for both purposes.
type OTPConfig struct {
	RedisPrefix string
	Digits      int
	TTL         time.Duration
	MaxAttempts int

	// ExpiryGrace keeps an expired record physically present past its
	// logical expiry so checks can report expiry instead of absence.
	ExpiryGrace time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig controls argon2id parameters and the length policy.
type PasswordConfig struct {
	MinLength   int
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig controls the Redis fixed-window throttles.
type RateLimitConfig struct {
	RedisPrefix string

	LoginMaxAttempts int
	LoginWindow      time.Duration

	OTPMaxIssues int
	OTPWindow    time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls the internal counters.
type MetricsConfig struct {
	Enabled bool

	// EnableLatencyHistograms adds bucketed latency tracking for token
	// validation on top of the plain counters.
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULTS
====================================
*/

// DefaultConfig returns the configuration New starts from. Callers can
// adjust it and pass the result to Builder.WithConfig.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Issuer: "medauth",
			Leeway: 30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix:   "medauth:session",
			TTL:           30 * time.Minute,
			TouchInterval: 30 * time.Second,
		},
		Registration: RegistrationConfig{
			RedisPrefix: "medauth:pending",
			DraftTTL:    30 * time.Minute,
			IDRetries:   5,
		},
		OTP: OTPConfig{
			RedisPrefix: "medauth:otp",
			Digits:      6,
			TTL:         10 * time.Minute,
			MaxAttempts: 5,
			ExpiryGrace: 5 * time.Minute,
		},
		Password: PasswordConfig{
			MinLength:   8,
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		RateLimit: RateLimitConfig{
			RedisPrefix:      "medauth:rl",
			LoginMaxAttempts: 10,
			LoginWindow:      15 * time.Minute,
			OTPMaxIssues:     5,
			OTPWindow:        15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configs an Engine cannot safely run with. Build calls
// this after applying builder overrides.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT Secret must be at least 32 bytes")
	}
	if c.JWT.Leeway < 0 {
		return errors.New("JWT Leeway must be >= 0")
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.TouchInterval < 0 {
		return errors.New("Session TouchInterval must be >= 0")
	}
	if c.Session.TouchInterval >= c.Session.TTL {
		return errors.New("Session TouchInterval must be < Session TTL")
	}

	// Registration
	if c.Registration.DraftTTL <= 0 {
		return errors.New("Registration DraftTTL must be > 0")
	}
	if c.Registration.IDRetries < 1 {
		return errors.New("Registration IDRetries must be >= 1")
	}

	// OTP
	if c.OTP.Digits < 6 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be between 6 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.MaxAttempts < 1 || c.OTP.MaxAttempts > 10 {
		return errors.New("OTP MaxAttempts must be between 1 and 10")
	}
	if c.OTP.ExpiryGrace < 0 {
		return errors.New("OTP ExpiryGrace must be >= 0")
	}

	// Password
	if c.Password.MinLength < 8 {
		return errors.New("Password MinLength must be >= 8")
	}
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Rate limits
	if c.RateLimit.LoginMaxAttempts < 1 {
		return errors.New("RateLimit LoginMaxAttempts must be >= 1")
	}
	if c.RateLimit.LoginWindow <= 0 {
		return errors.New("RateLimit LoginWindow must be > 0")
	}
	if c.RateLimit.OTPMaxIssues < 1 {
		return errors.New("RateLimit OTPMaxIssues must be >= 1")
	}
	if c.RateLimit.OTPWindow <= 0 {
		return errors.New("RateLimit OTPWindow must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
