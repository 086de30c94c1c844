package cache

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"
)

// LiveReporter is implemented by payloads that know whether a draw is
// being conducted.
type LiveReporter interface {
	CelebrationInProgress() bool
}

// TTLPolicy selects the lifetime of new entries.
type TTLPolicy struct {
	Default time.Duration
	Ticket  time.Duration
	Live    time.Duration
}

// DefaultTTLPolicy returns the stock lifetimes.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Default: 1800 * time.Second,
		Ticket:  300 * time.Second,
		Live:    30 * time.Second,
	}
}

// For returns the TTL for data stored under key.
func (p TTLPolicy) For(key string, data any) time.Duration {
	switch {
	case IsResultsKey(key) && reportsLive(data):
		return p.Live
	case IsTicketKey(key):
		return p.Ticket
	default:
		return p.Default
	}
}

func reportsLive(data any) bool {
	switch v := data.(type) {
	case LiveReporter:
		return v.CelebrationInProgress()
	case json.RawMessage:
		return rawLive(v)
	case []byte:
		return rawLive(v)
	default:
		return false
	}
}

func rawLive(raw []byte) bool {
	return gjson.GetBytes(raw, "estadoCelebracionLNAC").Type == gjson.True ||
		gjson.GetBytes(raw, "statusLNACcelebration").Type == gjson.True
}
