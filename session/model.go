package session

// Session is the authoritative record behind every issued token. A token
// whose session record is gone is dead regardless of its signature.
type Session struct {
	SessionID string
	UserID    string
	Role      string

	IPHash        [32]byte
	UserAgentHash [32]byte

	CreatedAt    int64
	LastActivity int64
	ExpiresAt    int64
}
