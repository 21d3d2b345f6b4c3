package rate

import "errors"

var (
	// ErrRateLimited reports a spent attempt budget.
	ErrRateLimited = errors.New("rate limited")

	// ErrRedisUnavailable wraps transport failures against the limiter backend.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
