package cache

import (
	"math"
	"time"
)

// Entry is one cached payload.
type Entry struct {
	Key       string
	Data      any
	CreatedAt time.Time
	TTL       time.Duration
}

// IsExpired reports whether the entry is stale at now.
func (e *Entry) IsExpired(now time.Time) bool {
	return now.Sub(e.CreatedAt) >= e.TTL
}

// Remaining returns the whole seconds left before expiry at now, rounded
// half up. Returns 0 once expired.
func (e *Entry) Remaining(now time.Time) int {
	left := e.TTL - now.Sub(e.CreatedAt)
	if left <= 0 {
		return 0
	}
	return int(math.Floor(left.Seconds() + 0.5))
}
