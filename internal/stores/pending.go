package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrDraftNotFound         = errors.New("pending draft not found")
	ErrDraftExpired          = errors.New("pending draft expired")
	ErrDraftEmailTaken       = errors.New("pending email reserved")
	ErrDraftUsernameTaken    = errors.New("pending username reserved")
	ErrDraftPublicIDTaken    = errors.New("pending public id reserved")
	ErrDraftRedisUnavailable = errors.New("pending redis unavailable")
)

// reserveDraftLua atomically claims the draft key and the three uniqueness
// reservations. Every EXISTS check happens before any write, so a losing
// racer observes either all keys or none.
// KEYS[1] = draft key
// KEYS[2] = email reservation
// KEYS[3] = role:username reservation
// KEYS[4] = public id reservation
// ARGV[1] = draft JSON
// ARGV[2] = ttl milliseconds
//
// Returns "ok" or an error string naming the colliding reservation.
var reserveDraftLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
  return {err='email_taken'}
end
if redis.call('EXISTS', KEYS[3]) == 1 then
  return {err='username_taken'}
end
if redis.call('EXISTS', KEYS[4]) == 1 then
  return {err='id_taken'}
end

local ttlMs = tonumber(ARGV[2])
redis.call('SET', KEYS[1], ARGV[1], 'PX', ttlMs)
redis.call('SET', KEYS[2], '1', 'PX', ttlMs)
redis.call('SET', KEYS[3], '1', 'PX', ttlMs)
redis.call('SET', KEYS[4], '1', 'PX', ttlMs)
return 'ok'
`)

// PendingDraft is a parked registration. It is JSON-encoded; drafts are
// read by humans during incident debugging far more often than session
// records, and their volume never justifies a binary codec.
type PendingDraft struct {
	PublicID     string `json:"public_id"`
	Role         string `json:"role"`
	Email        string `json:"email"`
	Username     string `json:"username"`
	FullName     string `json:"full_name"`
	Mobile       string `json:"mobile,omitempty"`
	PasswordHash string `json:"password_hash"`

	IsPregnant     *bool  `json:"is_pregnant,omitempty"`
	Specialization string `json:"specialization,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type PendingStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration

	// grace keeps an expired draft physically present so verification can
	// report expiry instead of absence.
	grace time.Duration
}

func NewPendingStore(redisClient redis.UniversalClient, prefix string, ttl time.Duration) *PendingStore {
	if prefix == "" {
		prefix = "pending"
	}
	return &PendingStore{
		redis:  redisClient,
		prefix: prefix,
		ttl:    ttl,
		grace:  5 * time.Minute,
	}
}

func (s *PendingStore) draftKey(email string) string {
	return s.prefix + ":d:" + email
}

func (s *PendingStore) emailKey(email string) string {
	return s.prefix + ":r:e:" + email
}

func (s *PendingStore) usernameKey(role, username string) string {
	return s.prefix + ":r:u:" + role + ":" + username
}

func (s *PendingStore) publicIDKey(publicID string) string {
	return s.prefix + ":r:i:" + publicID
}

// Reserve parks the draft and claims its email, role-scoped username and
// public ID in one atomic step. A collision on email or username means the
// registration loses; a collision on public ID means the caller should
// regenerate the ID and retry.
func (s *PendingStore) Reserve(ctx context.Context, draft *PendingDraft) error {
	draft.ExpiresAt = draft.CreatedAt.Add(s.ttl)

	encoded, err := json.Marshal(draft)
	if err != nil {
		return err
	}

	ttlMs := (s.ttl + s.grace).Milliseconds()

	err = reserveDraftLua.Run(ctx, s.redis,
		[]string{
			s.draftKey(draft.Email),
			s.emailKey(draft.Email),
			s.usernameKey(draft.Role, draft.Username),
			s.publicIDKey(draft.PublicID),
		},
		encoded,
		ttlMs,
	).Err()

	if err != nil {
		switch err.Error() {
		case "email_taken":
			return ErrDraftEmailTaken
		case "username_taken":
			return ErrDraftUsernameTaken
		case "id_taken":
			return ErrDraftPublicIDTaken
		default:
			return fmt.Errorf("%w: %v", ErrDraftRedisUnavailable, err)
		}
	}

	return nil
}

// Get returns the live draft for the email. Expiry is enforced here: a
// draft past its window returns ErrDraftExpired even though the key still
// exists inside the grace window.
func (s *PendingStore) Get(ctx context.Context, email string) (*PendingDraft, error) {
	data, err := s.redis.Get(ctx, s.draftKey(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrDraftNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDraftRedisUnavailable, err)
	}

	var draft PendingDraft
	if err := json.Unmarshal(data, &draft); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDraftRedisUnavailable, err)
	}

	if time.Now().After(draft.ExpiresAt) {
		return nil, ErrDraftExpired
	}

	return &draft, nil
}

// Delete removes the draft and releases its reservations. Idempotent.
func (s *PendingStore) Delete(ctx context.Context, draft *PendingDraft) error {
	err := s.redis.Del(ctx,
		s.draftKey(draft.Email),
		s.emailKey(draft.Email),
		s.usernameKey(draft.Role, draft.Username),
		s.publicIDKey(draft.PublicID),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDraftRedisUnavailable, err)
	}
	return nil
}
