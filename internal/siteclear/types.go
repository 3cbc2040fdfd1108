package siteclear

import (
	"net/http"
	"time"
)

// Backend names one client-retained persistence layer.
type Backend string

const (
	BackendEvents         Backend = "events"
	BackendCookies        Backend = "cookies"
	BackendLocalStorage   Backend = "localStorage"
	BackendSessionStorage Backend = "sessionStorage"
	BackendBrowserCache   Backend = "browserCache"
)

// Backends lists every backend in the order a full clear visits them.
var Backends = []Backend{
	BackendEvents,
	BackendCookies,
	BackendLocalStorage,
	BackendSessionStorage,
	BackendBrowserCache,
}

// ErrorPolicy decides what a failed clear step does to its caller.
type ErrorPolicy int

const (
	// Swallow logs the failure and lets the operation return normally.
	Swallow ErrorPolicy = iota
	// Propagate returns the failure and aborts any composite operation.
	Propagate
)

func (p ErrorPolicy) String() string {
	switch p {
	case Swallow:
		return "swallow"
	case Propagate:
		return "propagate"
	default:
		return "unknown"
	}
}

// policies is the per-backend error policy table. Optional profile features
// may legitimately be absent, so they swallow; the event cache delegate and
// the cookie jar are required collaborators.
var policies = map[Backend]ErrorPolicy{
	BackendEvents:         Propagate,
	BackendCookies:        Propagate,
	BackendLocalStorage:   Swallow,
	BackendSessionStorage: Swallow,
	BackendBrowserCache:   Swallow,
}

// PolicyFor returns the error policy applied to b.
func PolicyFor(b Backend) ErrorPolicy {
	if p, ok := policies[b]; ok {
		return p
	}
	return Swallow
}

// CacheInfo is a point-in-time read of the countable stores.
type CacheInfo struct {
	Cookies        int `json:"cookies"`
	LocalStorage   int `json:"localStorage"`
	SessionStorage int `json:"sessionStorage"`
}

// ClearOptions selects the backends ClearSelective touches. The zero value
// clears nothing.
type ClearOptions struct {
	Events         bool `json:"events,omitempty"`
	Cookies        bool `json:"cookies,omitempty"`
	LocalStorage   bool `json:"localStorage,omitempty"`
	SessionStorage bool `json:"sessionStorage,omitempty"`
	BrowserCache   bool `json:"browserCache,omitempty"`
}

// Selected reports whether b is flagged.
func (o ClearOptions) Selected(b Backend) bool {
	switch b {
	case BackendEvents:
		return o.Events
	case BackendCookies:
		return o.Cookies
	case BackendLocalStorage:
		return o.LocalStorage
	case BackendSessionStorage:
		return o.SessionStorage
	case BackendBrowserCache:
		return o.BrowserCache
	}
	return false
}

// CacheEntry is a stored HTTP response, used by the event cache and by
// named response caches.
type CacheEntry struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt int64 // unix seconds
	Hash32   uint32
}

// Registration is a background worker registered for the profile's origin.
type Registration struct {
	ID           string
	Scope        string
	ScriptURL    string
	RegisteredAt time.Time
}
