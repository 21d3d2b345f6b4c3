package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport failures against the session backend.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionCorrupt is returned when a stored session blob does not decode.
var ErrSessionCorrupt = errors.New("session corrupt")

const deleteSessionScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
end
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// deleteAllScript revokes every session of one user in a single atomic
// step. SMEMBERS and the DELs run inside one script so a login that lands
// after the snapshot also lands after every revocation.
// KEYS[1] = user index set
// ARGV[1] = session key prefix (keys are prefix .. sessionID)
const deleteAllScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local removed = 0
for _, id in ipairs(ids) do
  removed = removed + redis.call("DEL", ARGV[1] .. id)
end
redis.call("DEL", KEYS[1])
return removed
`

var deleteAllLua = redis.NewScript(deleteAllScript)

// touchSessionScript patches the lastActivity field in place and keeps the
// key TTL. The field sits 16 bytes from the end of the blob (lastActivity
// then expiresAt, 8 bytes each).
// KEYS[1] = session key
// ARGV[1] = 8 bytes, new lastActivity big-endian
const touchSessionScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
local n = #data
if n < 17 then
  return 0
end
local updated = string.sub(data, 1, n - 16) .. ARGV[1] .. string.sub(data, n - 7)
redis.call("SET", KEYS[1], updated, "KEEPTTL")
return 1
`

var touchSessionLua = redis.NewScript(touchSessionScript)

// listActiveScript walks the user index and returns only sessions that
// are still alive. Dead entries found on the way, either missing keys or
// records past their embedded expiry, are pruned from the index. The
// expiry field is the last 8 bytes of the blob, big-endian.
// KEYS[1] = user index set
// ARGV[1] = session key prefix (keys are prefix .. sessionID)
// ARGV[2] = current unix time in seconds
const listActiveScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local now = tonumber(ARGV[2])
local live = {}
for _, id in ipairs(ids) do
  local key = ARGV[1] .. id
  local data = redis.call("GET", key)
  if not data or #data < 8 then
    redis.call("SREM", KEYS[1], id)
    if data then
      redis.call("DEL", key)
    end
  else
    local n = #data
    local exp = 0
    for i = n - 7, n do
      exp = exp * 256 + string.byte(data, i)
    end
    if now > exp then
      redis.call("SREM", KEYS[1], id)
      redis.call("DEL", key)
    else
      live[#live + 1] = id
    end
  end
end
return live
`

var listActiveLua = redis.NewScript(listActiveScript)

// Store is a Redis-backed session ledger. It persists session records,
// maintains a per-user index set, and enforces expiry on read.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace; ttl is the session lifetime.
func NewStore(redis redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "session"
	}
	return &Store{
		redis:  redis,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// Save persists a [Session] and indexes it under its user.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	sessionKey := s.key(sess.SessionID)
	userKey := s.userKey(sess.UserID)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey, data, s.ttl)
		pipe.SAdd(ctx, userKey, sess.SessionID)
		// The index must not outlive its last session by much.
		pipe.Expire(ctx, userKey, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get retrieves a session by ID. Expiry is enforced here: a record past
// its embedded expiry is deleted and reported as missing (redis.Nil).
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, errors.Join(ErrSessionCorrupt, err)
	}
	sess.SessionID = sessionID

	if time.Now().Unix() > sess.ExpiresAt {
		if err := s.deleteSessionAndIndex(ctx, sess.UserID, sessionID); err != nil {
			return nil, err
		}
		return nil, redis.Nil
	}

	return sess, nil
}

// Touch records activity on the session without extending its lifetime.
func (s *Store) Touch(ctx context.Context, sessionID string, at time.Time) error {
	var ts [8]byte
	unix := at.Unix()
	for i := 7; i >= 0; i-- {
		ts[i] = byte(unix)
		unix >>= 8
	}

	err := touchSessionLua.Run(ctx, s.redis, []string{s.key(sessionID)}, string(ts[:])).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Delete revokes one session. Idempotent; reports whether the session
// existed.
func (s *Store) Delete(ctx context.Context, userID, sessionID string) (bool, error) {
	result, err := deleteSessionLua.Run(ctx, s.redis,
		[]string{s.key(sessionID), s.userKey(userID)},
		sessionID,
	).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	existed, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("%w: invalid delete script response", ErrRedisUnavailable)
	}
	return existed == 1, nil
}

// DeleteAllForUser revokes every session of the user in one atomic script
// and returns how many were removed.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	result, err := deleteAllLua.Run(ctx, s.redis,
		[]string{s.userKey(userID)},
		s.prefix+":",
	).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	removed, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: invalid revoke script response", ErrRedisUnavailable)
	}
	return int(removed), nil
}

// ActiveSessionCount returns the number of tracked session IDs for a user.
func (s *Store) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	count, err := s.redis.SCard(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

// ActiveSessionIDs returns the session IDs of a user that are still
// alive. Expiry is enforced the same way Get enforces it, so an ID in
// the result always resolves while the listing holds; dead index
// entries are pruned as a side effect.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID string) ([]string, error) {
	result, err := listActiveLua.Run(ctx, s.redis,
		[]string{s.userKey(userID)},
		s.prefix+":", time.Now().Unix(),
	).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	raw, ok := result.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: invalid list script response", ErrRedisUnavailable)
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		id, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: invalid list script response", ErrRedisUnavailable)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) deleteSessionAndIndex(ctx context.Context, userID, sessionID string) error {
	_, err := deleteSessionLua.Run(ctx, s.redis,
		[]string{s.key(sessionID), s.userKey(userID)},
		sessionID,
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
