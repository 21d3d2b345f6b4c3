package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// SessionID is a random UUID carried in its compact base64url form.
type SessionID [16]byte

func NewSessionID() (SessionID, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return SessionID{}, err
	}
	return SessionID(id), nil
}

func (s SessionID) Bytes() []byte {
	return s[:]
}

func (s SessionID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(s[:])
}

func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errors.New("invalid session id size")
	}

	copy(sid[:], raw)
	return sid, nil
}

// NewPublicID builds a role-prefixed identifier: the prefix plus a fixed
// run of random decimal digits. Collisions are resolved by the caller
// against its uniqueness authority.
func NewPublicID(prefix string, digits int) (string, error) {
	if digits < 1 {
		return "", errors.New("invalid public id digits")
	}

	suffix, err := randomDigits(digits)
	if err != nil {
		return "", err
	}
	return prefix + suffix, nil
}

// NewOTP produces a code of the given number of decimal digits. Each digit
// draws from crypto/rand independently so the code has no modulo bias.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	otp, err := randomDigits(digits)
	if err != nil {
		return "", err
	}
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

func randomDigits(n int) (string, error) {
	var b strings.Builder
	b.Grow(n)

	max := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

// HashCode is the storage form of a one-time code.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}
