package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	otpRecordVersionV1 = 1
)

var (
	ErrOTPNotFound         = errors.New("otp record not found")
	ErrOTPExpired          = errors.New("otp record expired")
	ErrOTPCodeMismatch     = errors.New("otp code mismatch")
	ErrOTPAttemptsExceeded = errors.New("otp attempts exceeded")
	ErrOTPRedisUnavailable = errors.New("otp redis unavailable")
)

// consumeOTPLua atomically performs GET→validate→DEL/SET on an OTP record.
// KEYS[1] = record key
// ARGV[1] = provided hash (32 bytes)
// ARGV[2] = expected purpose (byte)
// ARGV[3] = max attempts (int string)
// ARGV[4] = current unix timestamp (int string)
//
// Returns:
//
//	record bytes on success
//	error string: "not_found", "expired", "purpose_mismatch", "attempts_exceeded", "code_mismatch"
//
// The record carries its own expiry; the physical Redis TTL runs longer so
// a check inside the grace window reports "expired" instead of "not_found".
var consumeOTPLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local providedHash = ARGV[1]
local expectedPurpose = tonumber(ARGV[2])
local maxAttempts = tonumber(ARGV[3])
local nowUnix = tonumber(ARGV[4])

-- Minimal binary decode: version(1) purpose(1) attempts(2 big-endian) expiresAt(8 big-endian) ...
local version = string.byte(data, 1)
if version ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local purpose = string.byte(data, 2)

local a0 = string.byte(data, 3)
local a1 = string.byte(data, 4)
local attempts = a0 * 256 + a1

local e0,e1,e2,e3,e4,e5,e6,e7 = string.byte(data, 5, 12)
local expiresAt = e0
for _, b in ipairs({e1,e2,e3,e4,e5,e6,e7}) do
  expiresAt = expiresAt * 256 + b
end

if nowUnix > expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

if purpose ~= expectedPurpose then
  return {err='purpose_mismatch'}
end

-- Code hash starts after version(1)+purpose(1)+attempts(2)+expiresAt(8)+emailLen(2)+email(variable)
local emailLen = string.byte(data, 13) * 256 + string.byte(data, 14)
local hashOffset = 15 + emailLen
local storedHash = string.sub(data, hashOffset, hashOffset + 31)

if storedHash ~= providedHash then
  attempts = attempts + 1
  if attempts >= maxAttempts then
    redis.call('DEL', KEYS[1])
    return {err='attempts_exceeded'}
  end
  -- Rewrite attempts bytes in the record
  local newA0 = math.floor(attempts / 256)
  local newA1 = attempts % 256
  local newData = string.sub(data, 1, 2) .. string.char(newA0, newA1) .. string.sub(data, 5)
  local ttlMs = redis.call('PTTL', KEYS[1])
  if ttlMs <= 0 then
    redis.call('DEL', KEYS[1])
    return {err='expired'}
  end
  redis.call('SET', KEYS[1], newData, 'PX', ttlMs)
  return {err='code_mismatch'}
end

redis.call('DEL', KEYS[1])
return data
`)

// OTPRecord is one live one-time code. Exactly one record exists per
// (email, purpose) pair; issuing a new code overwrites the old one.
type OTPRecord struct {
	Email     string
	CodeHash  [32]byte
	ExpiresAt int64
	Attempts  uint16
	Purpose   int
}

// OTPOptions configures an OTPStore.
type OTPOptions struct {
	Prefix      string
	TTL         time.Duration
	ExpiryGrace time.Duration
	MaxAttempts int
}

type OTPStore struct {
	redis redis.UniversalClient
	opts  OTPOptions
}

func NewOTPStore(redisClient redis.UniversalClient, opts OTPOptions) *OTPStore {
	if opts.Prefix == "" {
		opts.Prefix = "otp"
	}
	return &OTPStore{
		redis: redisClient,
		opts:  opts,
	}
}

func (s *OTPStore) key(email string, purpose int) string {
	return fmt.Sprintf("%s:%d:%s", s.opts.Prefix, purpose, email)
}

// Save issues a code for the (email, purpose) pair, replacing any previous
// record. The logical expiry lives inside the record; the key TTL includes
// the grace window.
func (s *OTPStore) Save(ctx context.Context, email string, purpose int, codeHash [32]byte) (*OTPRecord, error) {
	record := &OTPRecord{
		Email:     email,
		CodeHash:  codeHash,
		ExpiresAt: time.Now().Add(s.opts.TTL).Unix(),
		Purpose:   purpose,
	}

	encoded, err := encodeOTPRecord(record)
	if err != nil {
		return nil, err
	}

	if err := s.redis.Set(ctx, s.key(email, purpose), encoded, s.opts.TTL+s.opts.ExpiryGrace).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}

	return record, nil
}

// Consume checks the provided code hash against the stored record and
// deletes the record on success. Wrong codes burn an attempt; the record
// is destroyed once the attempt budget is spent.
func (s *OTPStore) Consume(ctx context.Context, email string, purpose int, providedHash [32]byte) (*OTPRecord, error) {
	key := s.key(email, purpose)
	nowUnix := time.Now().Unix()

	result, err := consumeOTPLua.Run(ctx, s.redis,
		[]string{key},
		string(providedHash[:]),
		purpose,
		s.opts.MaxAttempts,
		nowUnix,
	).Result()

	if err != nil {
		msg := err.Error()
		switch msg {
		case "not_found":
			return nil, ErrOTPNotFound
		case "expired":
			return nil, ErrOTPExpired
		case "purpose_mismatch":
			return nil, ErrOTPNotFound
		case "attempts_exceeded":
			return nil, ErrOTPAttemptsExceeded
		case "code_mismatch":
			return nil, ErrOTPCodeMismatch
		default:
			return nil, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrOTPRedisUnavailable)
	}

	record, decErr := decodeOTPRecord([]byte(data))
	if decErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, decErr)
	}

	// Lua string comparison is not constant-time; compare again here.
	if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
		return nil, ErrOTPCodeMismatch
	}

	return record, nil
}

// Delete removes any live record for the pair. Used when the flow that
// issued the code is cancelled.
func (s *OTPStore) Delete(ctx context.Context, email string, purpose int) error {
	if err := s.redis.Del(ctx, s.key(email, purpose)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return nil
}

func encodeOTPRecord(record *OTPRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(otpRecordVersionV1)
	buf.WriteByte(byte(record.Purpose))

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.Email) > 65535 {
		return nil, errors.New("otp record email too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Email))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Email)
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeOTPRecord(data []byte) (*OTPRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != otpRecordVersionV1 {
		return nil, errors.New("invalid otp record version")
	}

	purpose, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &OTPRecord{
		Purpose: int(purpose),
	}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var emailLen uint16
	if err := binary.Read(reader, binary.BigEndian, &emailLen); err != nil {
		return nil, err
	}

	email := make([]byte, emailLen)
	if _, err := io.ReadFull(reader, email); err != nil {
		return nil, err
	}
	record.Email = string(email)

	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
