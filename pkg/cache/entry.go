package cache

import (
	"encoding/json"
	"time"
)

// Entry is a cached, transformed upstream payload.
type Entry struct {
	// Payload is the JSON value handed back to clients
	Payload json.RawMessage `json:"payload"`

	// StoredAt is when the payload was put into the store
	StoredAt time.Time `json:"stored_at"`
}

// IsExpired reports whether the entry is no longer valid at now.
// An entry is valid while now - StoredAt < ttl.
func (e Entry) IsExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.StoredAt) >= ttl
}

// TTL returns the time left until expiration.
// Returns 0 if already expired.
func (e Entry) TTL(now time.Time, ttl time.Duration) time.Duration {
	left := ttl - now.Sub(e.StoredAt)
	if left < 0 {
		return 0
	}
	return left
}
