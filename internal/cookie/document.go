package cookie

import (
	"strings"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Document is the raw cookie header of one proxied document. It behaves like
// document.cookie: reads return "name=value" pairs joined by "; ", writes take
// a single Set-Cookie style string and an expired write deletes the cookie.
//
// Documents served from the same proxy origin share one Document.
type Document struct {
	clock clock.PassiveClock

	mu      sync.RWMutex
	entries []entry
}

type entry struct {
	name    string
	value   string
	expires time.Time
}

// NewDocument creates an empty cookie document. A nil clock uses wall time.
func NewDocument(clk clock.PassiveClock) *Document {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Document{clock: clk}
}

// Cookie returns the current cookie header
func (d *Document) Cookie() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	now := d.clock.Now()
	pairs := make([]string, 0, len(d.entries))
	for _, e := range d.entries {
		if !e.expires.IsZero() && !e.expires.After(now) {
			continue
		}
		pairs = append(pairs, e.name+"="+e.value)
	}
	return strings.Join(pairs, "; ")
}

// SetCookie applies one cookie string. Malformed strings are ignored, as a
// browser would.
func (d *Document) SetCookie(str string) {
	c, err := ParseCookieString(str)
	if err != nil {
		return
	}

	var expires time.Time
	switch {
	case c.MaxAge < 0:
		expires = time.Unix(0, 0)
	case c.MaxAge > 0:
		expires = d.clock.Now().Add(time.Duration(c.MaxAge) * time.Second)
	case !c.Expires.IsZero():
		expires = c.Expires
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	idx := d.indexLocked(c.Name)
	if !expires.IsZero() && !expires.After(d.clock.Now()) {
		if idx >= 0 {
			d.entries = append(d.entries[:idx], d.entries[idx+1:]...)
		}
		return
	}

	e := entry{name: c.Name, value: c.Value, expires: expires}
	if idx >= 0 {
		d.entries[idx] = e
		return
	}
	d.entries = append(d.entries, e)
}

// Len returns the number of stored cookies, expired ones included
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

func (d *Document) indexLocked(name string) int {
	for i, e := range d.entries {
		if e.name == name {
			return i
		}
	}
	return -1
}
