package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Options configures a Manager. Only HS256 is supported; the secret is
// shared between signing and verification.
type Options struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
	Leeway   time.Duration
}

// Manager signs and parses access tokens.
type Manager struct {
	opts Options
}

// AccessClaims is the claim set of every issued token. The session ID
// binds the token to its Redis record; a token is only as alive as that
// record.
type AccessClaims struct {
	UID  string `json:"uid"`
	Role string `json:"role"`
	SID  string `json:"sid"`
	jwt.RegisteredClaims
}

func NewManager(opts Options) (*Manager, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("hs256 requires a secret")
	}
	if opts.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if opts.Leeway < 0 || opts.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	return &Manager{opts: opts}, nil
}

// CreateAccess issues a signed token for the user, role and session.
func (j *Manager) CreateAccess(uid, role, sid string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UID:  uid,
		Role: role,
		SID:  sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			ExpiresAt: jwt.NewNumericDate(now.Add(j.opts.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.opts.Issuer,
		},
	}
	if j.opts.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.opts.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.opts.Secret)
}

// ParseAccess verifies signature, expiry, issuer and audience and returns
// the claims. Session liveness is the caller's problem.
func (j *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
	}
	if j.opts.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.opts.Leeway))
	}
	if j.opts.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.opts.Issuer))
	}
	if j.opts.Audience != "" {
		options = append(options, jwt.WithAudience(j.opts.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		return j.opts.Secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}
