package cookie

import (
	"strings"
	"time"
)

// SyncType is the set of channels a sync-marker cookie still has to reach
type SyncType uint8

const (
	SyncServer SyncType = 1 << iota
	SyncClient
	SyncWindow
)

const (
	syncFlagServer = 's'
	syncFlagClient = 'c'
	syncFlagWindow = 'w'
)

// String renders the flag run used as the first field of a sync key
func (t SyncType) String() string {
	var sb strings.Builder
	if t&SyncServer != 0 {
		sb.WriteByte(syncFlagServer)
	}
	if t&SyncClient != 0 {
		sb.WriteByte(syncFlagClient)
	}
	if t&SyncWindow != 0 {
		sb.WriteByte(syncFlagWindow)
	}
	return sb.String()
}

func parseSyncType(s string) (SyncType, bool) {
	if s == "" {
		return 0, false
	}
	var t SyncType
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case syncFlagServer:
			t |= SyncServer
		case syncFlagClient:
			t |= SyncClient
		case syncFlagWindow:
			t |= SyncWindow
		default:
			return 0, false
		}
	}
	return t, true
}

// ParsedCookie is a cookie record travelling through the synchronization
// protocol. It is always passed by value.
type ParsedCookie struct {
	SID          string    `json:"sid"`
	Key          string    `json:"key"`
	Value        string    `json:"value"`
	Domain       string    `json:"domain"`
	Path         string    `json:"path"`
	Expires      time.Time `json:"expires"` // zero for a session cookie
	LastAccessed time.Time `json:"lastAccessed"`
	SyncType     SyncType  `json:"syncType"`
	SyncKey      string    `json:"syncKey"`
}

// IsServerSync reports whether the server still has to pick the cookie up
func (c ParsedCookie) IsServerSync() bool { return c.SyncType&SyncServer != 0 }

// IsClientSync reports whether the cookie originates from a client-side write
func (c ParsedCookie) IsClientSync() bool { return c.SyncType&SyncClient != 0 }

// IsWindowSync reports whether other windows still have to observe the cookie
func (c ParsedCookie) IsWindowSync() bool { return c.SyncType&SyncWindow != 0 }

// Expired reports whether the cookie is no longer valid at now
func (c ParsedCookie) Expired(now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

// SameCookie reports whether a and b address the same cookie, regardless of value
func SameCookie(a, b ParsedCookie) bool {
	return a.SID == b.SID && a.Key == b.Key && a.Domain == b.Domain && a.Path == b.Path
}

// Clone copies a batch so that later flag changes cannot leak into a batch
// that was already handed to another window.
func Clone(cookies []ParsedCookie) []ParsedCookie {
	if cookies == nil {
		return nil
	}
	out := make([]ParsedCookie, len(cookies))
	copy(out, cookies)
	return out
}
