package cache

import "strings"

// Resource names used as key prefixes.
const (
	ResourceResults        = "results"
	ResourceRealtime       = "realtime-results"
	ResourceCurrentResults = "current-results"
	ResourceTicket         = "ticket"
)

// Key identifies one cached resource.
type Key struct {
	// Resource is one of the Resource* constants.
	Resource string

	// DrawID scopes the resource to one draw. Empty for global resources.
	DrawID string
}

// String generates the cache key string.
// Format: resource or resource-drawID
//
// Example:
//
//	results-1259409102
func (k Key) String() string {
	if k.DrawID == "" {
		return k.Resource
	}
	return k.Resource + "-" + k.DrawID
}

// DrawResultsKey is the key of the final results of a draw.
func DrawResultsKey(drawID string) Key {
	return Key{Resource: ResourceResults, DrawID: drawID}
}

// RealtimeResultsKey is the key of the live results feed.
func RealtimeResultsKey() Key {
	return Key{Resource: ResourceRealtime}
}

// CurrentResultsKey is the key of the realtime-or-final results of a draw.
func CurrentResultsKey(drawID string) Key {
	return Key{Resource: ResourceCurrentResults, DrawID: drawID}
}

// TicketKey is the key of a ticket lookup of a draw.
func TicketKey(drawID string) Key {
	return Key{Resource: ResourceTicket, DrawID: drawID}
}

// IsResultsKey reports whether key names a results-style resource.
func IsResultsKey(key string) bool {
	switch resourceOf(key) {
	case ResourceResults, ResourceRealtime, ResourceCurrentResults:
		return true
	}
	return false
}

// IsTicketKey reports whether key names a ticket lookup.
func IsTicketKey(key string) bool {
	return strings.HasPrefix(key, ResourceTicket+"-")
}

// resourceOf strips a trailing -drawID from key.
func resourceOf(key string) string {
	i := strings.LastIndexByte(key, '-')
	if i < 0 || i == len(key)-1 {
		return key
	}
	for _, r := range key[i+1:] {
		if r < '0' || r > '9' {
			return key
		}
	}
	return key[:i]
}
