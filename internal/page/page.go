package page

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/crossframe/internal/cookie"
	"github.com/GriffinCanCode/crossframe/internal/frame"
	"github.com/GriffinCanCode/crossframe/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/crossframe/internal/messaging"
	"github.com/GriffinCanCode/crossframe/internal/sandbox"
	"github.com/GriffinCanCode/crossframe/internal/shared/id"
	"github.com/GriffinCanCode/crossframe/internal/windowsync"
)

var (
	ErrFrameNotFound  = errors.New("frame not found")
	ErrRemoteFrame    = errors.New("frame is served remotely")
	ErrDuplicateFrame = errors.New("duplicate frame name")
)

// Config holds the settings shared by every window of a page
type Config struct {
	Sync    windowsync.Config
	Runtime sandbox.RuntimeConfig
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// Page is a proxied top-level document with all of its frames. Local windows
// get a cookie sandbox and a script runtime; windows of the same origin share
// one raw cookie document, as they share one cookie store in a browser.
type Page struct {
	sid    id.SessionID
	cfg    Config
	logger *zap.Logger
	bus    *messaging.Bus
	top    *frame.Window

	mu     sync.RWMutex
	docs   map[string]*cookie.Document
	locals map[id.WindowID]*local
}

type local struct {
	sandbox *sandbox.CookieSandbox
	runtime *sandbox.Runtime
}

// WindowState is a snapshot of one window
type WindowState struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Origin string `json:"origin"`
	Parent string `json:"parent,omitempty"`
	Remote bool   `json:"remote"`
	Cookie string `json:"cookie"`
}

// New builds the page described by sc
func New(sc Scenario, cfg Config) (*Page, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Sync.Logger == nil {
		cfg.Sync.Logger = cfg.Logger
	}
	if cfg.Sync.Metrics == nil {
		cfg.Sync.Metrics = cfg.Metrics
	}
	if err := sc.resolve(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	sid := id.SessionID(sc.Session)
	if sid == "" {
		sid = id.NewSessionID()
	}

	p := &Page{
		sid:    sid,
		cfg:    cfg,
		logger: cfg.Logger.With(zap.String("session", sid.String())),
		bus:    messaging.NewBus(cfg.Logger.Named("bus"), cfg.Metrics),
		docs:   make(map[string]*cookie.Document),
		locals: make(map[id.WindowID]*local),
	}

	p.top = frame.NewTop(sc.Top.Name, sc.Top.Origin)
	if err := p.install(p.top, sc.Top.Remote); err != nil {
		return nil, err
	}
	for _, child := range sc.Top.Frames {
		if _, err := p.AppendFrame(p.top, child); err != nil {
			return nil, err
		}
	}

	p.logger.Info("page loaded", zap.Int("windows", len(p.Windows())))
	return p, nil
}

// AppendFrame adds spec and its descendants under parent
func (p *Page) AppendFrame(parent *frame.Window, spec FrameSpec) (*frame.Window, error) {
	if parent.IsDetached() {
		return nil, frame.ErrDetached
	}
	if spec.Name == "" {
		return nil, fmt.Errorf("frame without a name")
	}
	if p.top.Find(spec.Name) != nil {
		return nil, fmt.Errorf("%w %q", ErrDuplicateFrame, spec.Name)
	}
	// frames without a src inherit the origin of their parent
	if spec.Origin == "" {
		spec.Origin = parent.Origin()
	}

	win := parent.AppendFrame(spec.Name, spec.Origin)
	if err := p.install(win, spec.Remote); err != nil {
		return nil, err
	}
	for _, child := range spec.Frames {
		if _, err := p.AppendFrame(win, child); err != nil {
			return nil, err
		}
	}
	return win, nil
}

// install creates the sandbox of a local window. Remote windows only get an
// entry on the bus once their bridge connects.
func (p *Page) install(win *frame.Window, remote bool) error {
	if remote {
		p.logger.Debug("remote frame declared", zap.Stringer("window", win))
		return nil
	}

	p.mu.Lock()
	doc, ok := p.docs[win.Origin()]
	if !ok {
		doc = cookie.NewDocument(p.cfg.Sync.Clock)
		p.docs[win.Origin()] = doc
	}
	p.mu.Unlock()

	sb := sandbox.NewCookieSandbox(p.sid.String(), p.bus.Port(win), p.cfg.Sync)
	sb.Attach(win, doc)

	rt, err := sandbox.NewRuntime(sb, p.cfg.Runtime)
	if err != nil {
		return fmt.Errorf("failed to create runtime for %s: %w", win, err)
	}

	p.mu.Lock()
	p.locals[win.ID()] = &local{sandbox: sb, runtime: rt}
	p.mu.Unlock()
	return nil
}

// Remove detaches win and its subtree from the page. Pending sync messages
// addressed to them resolve immediately.
func (p *Page) Remove(win *frame.Window) {
	var removed []id.WindowID
	win.Walk(func(w *frame.Window) bool {
		removed = append(removed, w.ID())
		return true
	})

	win.Remove()

	p.mu.Lock()
	for _, winID := range removed {
		delete(p.locals, winID)
	}
	p.mu.Unlock()

	p.logger.Info("frame removed", zap.Stringer("window", win), zap.Int("windows", len(removed)))
}

// Top returns the top window
func (p *Page) Top() *frame.Window { return p.top }

// Bus returns the messaging bus of the page
func (p *Page) Bus() *messaging.Bus { return p.bus }

// SessionID returns the proxy session of the page
func (p *Page) SessionID() id.SessionID { return p.sid }

// Find resolves a window by name
func (p *Page) Find(name string) (*frame.Window, error) {
	win := p.top.Find(name)
	if win == nil {
		return nil, fmt.Errorf("%w: %s", ErrFrameNotFound, name)
	}
	return win, nil
}

// Sandbox returns the cookie sandbox of a local window
func (p *Page) Sandbox(win *frame.Window) (*sandbox.CookieSandbox, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	l, ok := p.locals[win.ID()]
	if !ok {
		return nil, false
	}
	return l.sandbox, true
}

// Eval runs script in the named local frame
func (p *Page) Eval(ctx context.Context, name, script string) (*sandbox.Result, error) {
	win, err := p.Find(name)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	l, ok := p.locals[win.ID()]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRemoteFrame, name)
	}
	return l.runtime.Execute(ctx, script)
}

// SetCookie writes str through document.cookie of the named frame and waits
// until every window has observed it.
func (p *Page) SetCookie(ctx context.Context, name, str string) error {
	res, err := p.Eval(ctx, name, "document.cookie = "+strconv.Quote(str))
	if err != nil {
		return err
	}
	return res.Wait(ctx)
}

// Windows returns the state of every window, parents before children
func (p *Page) Windows() []WindowState {
	var states []WindowState
	p.top.Walk(func(w *frame.Window) bool {
		st := WindowState{
			ID:     w.ID().String(),
			Name:   w.Name(),
			Origin: w.Origin(),
			Remote: true,
		}
		if parent := w.Parent(); parent != nil {
			st.Parent = parent.Name()
		}
		if sb, ok := p.Sandbox(w); ok {
			st.Remote = false
			st.Cookie = sb.Cookie()
		}
		states = append(states, st)
		return true
	})
	return states
}

// Close tears the page down. Batches still waiting on messages are abandoned.
func (p *Page) Close() {
	p.top.Close()
}
