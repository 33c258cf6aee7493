package sandbox

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/GriffinCanCode/crossframe/internal/cookie"
	"github.com/GriffinCanCode/crossframe/internal/frame"
	"github.com/GriffinCanCode/crossframe/internal/messaging"
	"github.com/GriffinCanCode/crossframe/internal/windowsync"
)

var (
	ErrNotAttached   = errors.New("cookie sandbox is not attached to a window")
	ErrInvalidCookie = errors.New("invalid cookie string")
	ErrForeignDomain = errors.New("cookie domain does not match the window")
	ErrScriptFailed  = errors.New("script failed")
)

// CookieSandbox is the cookie component of one window
type CookieSandbox struct {
	sid        string
	clock      clock.PassiveClock
	logger     *zap.Logger
	windowSync *windowsync.Coordinator

	mu  sync.RWMutex
	win *frame.Window
	doc *cookie.Document
	jar []cookie.ParsedCookie
}

// NewCookieSandbox creates the sandbox of a window that talks to the rest
// of the page through channel. sid is the proxy session the cookies belong to.
func NewCookieSandbox(sid string, channel messaging.Channel, cfg windowsync.Config) *CookieSandbox {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &CookieSandbox{
		sid:    sid,
		clock:  cfg.Clock,
		logger: cfg.Logger,
	}
	s.windowSync = windowsync.New(s, channel, cfg)
	return s
}

// Attach binds the sandbox to win and to the raw cookie document of win's
// proxy origin, then publishes it as win's handle.
func (s *CookieSandbox) Attach(win *frame.Window, doc *cookie.Document) {
	s.mu.Lock()
	s.win = win
	s.doc = doc
	s.logger = s.logger.With(zap.Stringer("window", win))
	s.mu.Unlock()

	s.windowSync.Attach(win)
	win.SetHandle(s)
}

// Window returns the attached window
func (s *CookieSandbox) Window() *frame.Window {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.win
}

// Document returns the raw cookie document, nil before Attach
func (s *CookieSandbox) Document() *cookie.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

// WindowSync returns the window's sync coordinator
func (s *CookieSandbox) WindowSync() *windowsync.Coordinator { return s.windowSync }

// Ready reports whether the sandbox is bound to a live window and document
func (s *CookieSandbox) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc != nil && s.win != nil && !s.win.IsDetached()
}

// Cookie renders the script-visible cookie string of the window
func (s *CookieSandbox) Cookie() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock.Now()
	pairs := make([]string, 0, len(s.jar))
	for _, c := range s.jar {
		if c.Expired(now) {
			continue
		}
		pairs = append(pairs, c.Key+"="+c.Value)
	}
	return strings.Join(pairs, "; ")
}

// SetCookie applies a cookie written by a script of the window. The write is
// recorded as a sync marker and propagated to the other windows; the returned
// channel closes once the resulting batch is final.
func (s *CookieSandbox) SetCookie(str string) (<-chan struct{}, error) {
	s.mu.RLock()
	win, doc := s.win, s.doc
	s.mu.RUnlock()

	if win == nil || doc == nil {
		return nil, ErrNotAttached
	}

	pc, err := s.parseClientCookie(str, hostOf(win))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.applyLocked(pc)
	s.mu.Unlock()

	doc.SetCookie(cookie.FormatSyncCookie(pc))
	s.logger.Debug("client cookie set", zap.String("key", pc.Key), zap.String("syncKey", pc.SyncKey))

	return s.windowSync.SyncBetweenWindows([]cookie.ParsedCookie{pc}, nil), nil
}

// SyncWindowCookie applies cookies synchronized from another window. Cookies
// of another session or domain are ignored. Client markers superseded by a
// newer marker of the same cookie are dropped from the document.
func (s *CookieSandbox) SyncWindowCookie(cookies []cookie.ParsedCookie) {
	s.mu.Lock()
	win, doc := s.win, s.doc
	if win == nil {
		s.mu.Unlock()
		return
	}

	host := hostOf(win)
	applied := 0
	for _, pc := range cookies {
		if pc.SID != s.sid || !domainMatch(host, pc.Domain) {
			continue
		}
		s.applyLocked(pc)
		applied++
	}
	s.mu.Unlock()

	if doc != nil {
		_, outdated := cookie.ParseClientSyncCookieStr(doc.Cookie())
		for _, pc := range outdated {
			doc.SetCookie(cookie.GenerateDeleteSyncCookieStr(pc))
		}
	}

	s.logger.Debug("window cookies synchronized",
		zap.Int("received", len(cookies)),
		zap.Int("applied", applied))
}

func (s *CookieSandbox) applyLocked(pc cookie.ParsedCookie) {
	idx := -1
	for i, c := range s.jar {
		if cookie.SameCookie(c, pc) {
			idx = i
			break
		}
	}

	if pc.Expired(s.clock.Now()) {
		if idx >= 0 {
			s.jar = append(s.jar[:idx], s.jar[idx+1:]...)
		}
		return
	}

	if idx >= 0 {
		if pc.LastAccessed.Before(s.jar[idx].LastAccessed) {
			return
		}
		s.jar[idx] = pc
		return
	}
	s.jar = append(s.jar, pc)
}

func (s *CookieSandbox) parseClientCookie(str, host string) (cookie.ParsedCookie, error) {
	c, err := cookie.ParseCookieString(str)
	if err != nil {
		return cookie.ParsedCookie{}, fmt.Errorf("%w: %v", ErrInvalidCookie, err)
	}

	now := s.clock.Now()
	pc := cookie.ParsedCookie{
		SID:          s.sid,
		Key:          c.Name,
		Value:        c.Value,
		Domain:       host,
		Path:         "/",
		LastAccessed: now,
		SyncType:     cookie.SyncClient | cookie.SyncWindow,
	}

	if c.Domain != "" {
		if !domainMatch(host, c.Domain) {
			return cookie.ParsedCookie{}, ErrForeignDomain
		}
		pc.Domain = strings.TrimPrefix(c.Domain, ".")
	}
	if c.Path != "" {
		pc.Path = c.Path
	}

	switch {
	case c.MaxAge < 0:
		pc.Expires = time.UnixMilli(1).UTC()
	case c.MaxAge > 0:
		pc.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
	case !c.Expires.IsZero():
		pc.Expires = c.Expires
	}

	return pc.WithSyncKey(), nil
}

func hostOf(win *frame.Window) string {
	u, err := url.Parse(win.Origin())
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// domainMatch reports whether a cookie for domain is visible on host
func domainMatch(host, domain string) bool {
	domain = strings.TrimPrefix(domain, ".")
	if domain == "" || strings.EqualFold(host, domain) {
		return true
	}
	return strings.HasSuffix(strings.ToLower(host), "."+strings.ToLower(domain))
}
