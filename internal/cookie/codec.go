package cookie

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	keyFieldSeparator = "|"
	keyFieldCount     = 7
	infinity          = "Infinity"

	// DeleteExpires is the expiry attached to deletion strings
	DeleteExpires = "Thu, 01 Jan 1970 00:00:01 GMT"
)

// BuildSyncKey returns the marker cookie name for c:
// <flags>|<sid>|<name>|<domain>|<path>|<expires>|<lastAccessed>
// Text fields are query-escaped so the result is a valid cookie name and
// never contains a stray separator.
func BuildSyncKey(c ParsedCookie) string {
	return strings.Join([]string{
		c.SyncType.String(),
		url.QueryEscape(c.SID),
		url.QueryEscape(c.Key),
		url.QueryEscape(c.Domain),
		url.QueryEscape(c.Path),
		formatTime(c.Expires, infinity),
		formatTime(c.LastAccessed, "0"),
	}, keyFieldSeparator)
}

// WithSyncKey returns a copy of c whose SyncKey matches its current fields
func (c ParsedCookie) WithSyncKey() ParsedCookie {
	c.SyncKey = BuildSyncKey(c)
	return c
}

// FormatSyncCookie renders the cookie-header string that writes c as a
// sync-marker cookie carrying its current flags.
func FormatSyncCookie(c ParsedCookie) string {
	return BuildSyncKey(c) + "=" + c.Value + ";path=/"
}

// GenerateDeleteSyncCookieStr renders a cookie-header string that expires the
// marker of c immediately.
func GenerateDeleteSyncCookieStr(c ParsedCookie) string {
	key := c.SyncKey
	if key == "" {
		key = BuildSyncKey(c)
	}
	return key + "=;path=/;expires=" + DeleteExpires
}

// ChangeSyncType returns a copy of c with the enable flags set, the disable
// flags cleared and the sync key rewritten accordingly. c itself is untouched.
func ChangeSyncType(c ParsedCookie, enable, disable SyncType) ParsedCookie {
	c.SyncType = (c.SyncType | enable) &^ disable
	return c.WithSyncKey()
}

// ParseSyncCookie parses one "name=value" pair of a raw cookie header as a
// sync-marker cookie.
func ParseSyncCookie(pair string) (ParsedCookie, bool) {
	name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
	if !ok {
		return ParsedCookie{}, false
	}

	fields := strings.Split(name, keyFieldSeparator)
	if len(fields) != keyFieldCount {
		return ParsedCookie{}, false
	}

	syncType, ok := parseSyncType(fields[0])
	if !ok {
		return ParsedCookie{}, false
	}
	expires, ok := parseTime(fields[5], infinity)
	if !ok {
		return ParsedCookie{}, false
	}
	lastAccessed, ok := parseTime(fields[6], "0")
	if !ok {
		return ParsedCookie{}, false
	}

	text := make([]string, 4)
	for i := range text {
		v, err := url.QueryUnescape(fields[i+1])
		if err != nil {
			return ParsedCookie{}, false
		}
		text[i] = v
	}

	return ParsedCookie{
		SID:          text[0],
		Key:          text[1],
		Domain:       text[2],
		Path:         text[3],
		Expires:      expires,
		LastAccessed: lastAccessed,
		Value:        value,
		SyncType:     syncType,
		SyncKey:      name,
	}, true
}

// ParseSyncCookies extracts every sync-marker cookie of a raw cookie header,
// in header order. Ordinary cookies are skipped.
func ParseSyncCookies(header string) []ParsedCookie {
	var cookies []ParsedCookie
	for _, pair := range strings.Split(header, ";") {
		if c, ok := ParseSyncCookie(pair); ok {
			cookies = append(cookies, c)
		}
	}
	return cookies
}

// ParseClientSyncCookieStr splits the client-sync markers of a raw cookie
// header into the newest marker per cookie and the older ones it supersedes.
func ParseClientSyncCookieStr(header string) (actual, outdated []ParsedCookie) {
	for _, c := range ParseSyncCookies(header) {
		if !c.IsClientSync() {
			continue
		}

		idx := -1
		for i, a := range actual {
			if SameCookie(a, c) {
				idx = i
				break
			}
		}

		switch {
		case idx < 0:
			actual = append(actual, c)
		case c.LastAccessed.After(actual[idx].LastAccessed):
			outdated = append(outdated, actual[idx])
			actual[idx] = c
		default:
			outdated = append(outdated, c)
		}
	}
	return actual, outdated
}

// IsSyncCookieExists reports whether the marker of c, with its current value,
// is present in the raw cookie header.
func IsSyncCookieExists(c ParsedCookie, header string) bool {
	key := c.SyncKey
	if key == "" {
		key = BuildSyncKey(c)
	}
	needle := key + "=" + c.Value

	for _, pair := range strings.Split(header, ";") {
		if strings.TrimSpace(pair) == needle {
			return true
		}
	}
	return false
}

func formatTime(t time.Time, zero string) string {
	if t.IsZero() {
		return zero
	}
	return strconv.FormatInt(t.UnixMilli(), 36)
}

func parseTime(s, zero string) (time.Time, bool) {
	if s == zero {
		return time.Time{}, true
	}
	ms, err := strconv.ParseInt(s, 36, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}
