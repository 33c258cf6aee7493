package windowsync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/GriffinCanCode/crossframe/internal/cookie"
	"github.com/GriffinCanCode/crossframe/internal/frame"
	"github.com/GriffinCanCode/crossframe/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/crossframe/internal/messaging"
)

const (
	DefaultMessageTimeout = 500 * time.Millisecond
	DefaultMaxAttempts    = 5
)

// Batch modes and fan-out routes reported to metrics
const (
	modeFanOut          = "fanout"
	modeDelegateDirect  = "delegate-direct"
	modeDelegateMessage = "delegate-message"
	routeDirect         = "direct"
	routeMessage        = "message"
)

// Store is the local cookie store of one window
type Store interface {
	// SyncWindowCookie applies cookies synchronized from another window
	SyncWindowCookie(cookies []cookie.ParsedCookie)
	// Document is the raw cookie header of the window's document
	Document() *cookie.Document
}

// Handle is what a window exposes to same-origin windows in-process
type Handle interface {
	Store
	WindowSync() *Coordinator
	// Ready reports whether the sandbox is bound to a live cookie document
	Ready() bool
}

// Config tunes a Coordinator. Zero fields fall back to DefaultConfig.
type Config struct {
	MessageTimeout time.Duration
	MaxAttempts    int
	Clock          clock.Clock
	Probe          Probe
	Logger         *zap.Logger
	Metrics        *monitoring.Metrics
}

// DefaultConfig returns the timing of the browser implementation:
// retries after 500ms, 1s, 1.5s, 2s and 2.5s.
func DefaultConfig() Config {
	return Config{
		MessageTimeout: DefaultMessageTimeout,
		MaxAttempts:    DefaultMaxAttempts,
		Clock:          clock.RealClock{},
		Probe:          DefaultProbe,
		Logger:         zap.NewNop(),
	}
}

func (cfg Config) withDefaults() Config {
	def := DefaultConfig()
	if cfg.MessageTimeout <= 0 {
		cfg.MessageTimeout = def.MessageTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}
	if cfg.Probe == nil {
		cfg.Probe = def.Probe
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	return cfg
}

// Coordinator keeps the sync-marker cookies of every window of a page
// consistent. Each window has one; the coordinator of the top window owns
// the message id sequence and the pending request table for the page.
type Coordinator struct {
	store   Store
	channel messaging.Channel
	cfg     Config
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu          sync.Mutex
	win         *frame.Window
	unsubscribe func()
	corr        *correlation
}

// New creates a coordinator for the window owning store and channel
func New(store Store, channel messaging.Channel, cfg Config) *Coordinator {
	cfg = cfg.withDefaults()
	return &Coordinator{
		store:   store,
		channel: channel,
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Attach binds the coordinator to win and starts handling its messages.
// Attaching the top window again keeps in-flight correlation state.
func (c *Coordinator) Attach(win *frame.Window) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.win = win
	c.logger = c.cfg.Logger.With(zap.Stringer("window", win))
	c.unsubscribe = c.channel.Subscribe(c.onMessage)

	if win.IsTop() && c.corr == nil {
		c.corr = &correlation{}
	}
}

// Window returns the attached window
func (c *Coordinator) Window() *frame.Window {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.win
}

func (c *Coordinator) correlation() *correlation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.corr
}

func (c *Coordinator) log() *zap.Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

// SyncBetweenWindows propagates cookies that changed in the attached window
// to every other window of the page. initiator is excluded from the fan-out
// and may be nil. The returned channel is closed once the batch is final:
// every target has acknowledged or been given up on and the redundant
// sync markers are removed. A frame that delegates by message cannot observe
// the outcome, so its channel is closed immediately.
func (c *Coordinator) SyncBetweenWindows(cookies []cookie.ParsedCookie, initiator *frame.Window) <-chan struct{} {
	win := c.Window()
	if win == nil || win.IsDetached() {
		return closedChan()
	}

	cookies = cookie.Clone(cookies)
	if !win.IsTop() {
		return c.delegateToTop(win, cookies)
	}
	return c.fanOut(win, cookies, initiator)
}

func (c *Coordinator) delegateToTop(win *frame.Window, cookies []cookie.ParsedCookie) <-chan struct{} {
	top := win.Top()

	if handle, r := c.cfg.Probe(win, top); r == frame.Reachable {
		c.metrics.RecordSyncBatch(modeDelegateDirect)
		handle.SyncWindowCookie(cookies)
		return handle.WindowSync().SyncBetweenWindows(cookies, win)
	}

	c.metrics.RecordSyncBatch(modeDelegateMessage)
	c.log().Debug("delegating sync to top by message", zap.Stringer("top", top))
	c.channel.Send(messaging.Message{Cmd: messaging.CmdSyncCookieStart, Cookies: cookies}, top)
	return closedChan()
}

func (c *Coordinator) fanOut(top *frame.Window, cookies []cookie.ParsedCookie, initiator *frame.Window) <-chan struct{} {
	started := c.cfg.Clock.Now()
	logger := c.log()
	c.metrics.RecordSyncBatch(modeFanOut)

	g, ctx := errgroup.WithContext(top.Context())
	sends := 0

	for _, target := range windowsForSync(top, initiator) {
		if handle, r := c.cfg.Probe(top, target); r == frame.Reachable {
			c.metrics.RecordSyncTarget(routeDirect)
			handle.SyncWindowCookie(cookies)
			continue
		}

		c.metrics.RecordSyncTarget(routeMessage)
		sends++
		g.Go(func() error {
			return c.sendSyncMessage(ctx, target, cookies)
		})
	}

	finalize := func() {
		c.removeSyncCookie(cookies)
		c.metrics.ObserveBatch(c.cfg.Clock.Since(started))
	}

	if sends == 0 {
		finalize()
		return closedChan()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := g.Wait(); err != nil {
			logger.Debug("sync batch abandoned", zap.Error(err))
			return
		}
		finalize()
	}()
	return done
}

// sendSyncMessage sends a correlated START to target and waits for its DONE.
// The wait after attempt n is n times the message timeout. Exhausting every
// attempt, or the target being removed, resolves the send as completed; only
// the teardown of the sending window reports an error.
func (c *Coordinator) sendSyncMessage(ctx context.Context, target *frame.Window, cookies []cookie.ParsedCookie) error {
	corr := c.correlation()
	if corr == nil {
		return nil
	}

	msgID := corr.ids.Next()
	ack := corr.pending.register(msgID)
	c.metrics.AddPending(1)
	defer func() {
		corr.pending.remove(msgID)
		c.metrics.AddPending(-1)
	}()

	logger := c.log().With(zap.Int("id", msgID), zap.Stringer("target", target))
	msg := messaging.Message{ID: &msgID, Cmd: messaging.CmdSyncCookieStart, Cookies: cookies}

	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			c.metrics.IncRetries()
		}
		c.channel.Send(msg, target)

		timer := c.cfg.Clock.NewTimer(c.cfg.MessageTimeout * time.Duration(attempt))
		select {
		case <-ack:
			timer.Stop()
			c.metrics.RecordSendOutcome(monitoring.OutcomeAck)
			return nil
		case <-target.Detached():
			timer.Stop()
			logger.Debug("sync target removed", zap.Int("attempt", attempt))
			c.metrics.RecordSendOutcome(monitoring.OutcomeRemoved)
			return nil
		case <-ctx.Done():
			timer.Stop()
			c.metrics.RecordSendOutcome(monitoring.OutcomeAbandoned)
			return ctx.Err()
		case <-timer.C():
		}

		if attempt >= c.cfg.MaxAttempts {
			logger.Debug("sync target unresponsive", zap.Int("attempts", attempt))
			c.metrics.RecordSendOutcome(monitoring.OutcomeExhausted)
			return nil
		}
	}
}

func (c *Coordinator) onMessage(msg messaging.Message, source *frame.Window) {
	switch msg.Cmd {
	case messaging.CmdSyncCookieStart:
		c.store.SyncWindowCookie(msg.Cookies)

		win := c.Window()
		if win == nil {
			return
		}
		if !win.IsTop() {
			c.channel.Send(messaging.Message{ID: msg.ID, Cmd: messaging.CmdSyncCookieDone}, source)
			return
		}
		c.SyncBetweenWindows(msg.Cookies, source)

	case messaging.CmdSyncCookieDone:
		corr := c.correlation()
		if msg.ID == nil || corr == nil {
			return
		}
		if !corr.pending.resolve(*msg.ID) {
			c.log().Debug("ignoring unmatched sync done", zap.Int("id", *msg.ID))
		}
	}
}

// removeSyncCookie deletes the markers of a finished batch from the top
// document. A client-sync marker that was still present keeps its client
// flag and loses the window flag instead of disappearing.
func (c *Coordinator) removeSyncCookie(cookies []cookie.ParsedCookie) {
	doc := c.store.Document()
	if doc == nil || len(cookies) == 0 {
		return
	}

	var clientCookieStr string
	for _, pc := range cookies {
		if pc.IsClientSync() {
			clientCookieStr = doc.Cookie()
			break
		}
	}

	for _, pc := range cookies {
		doc.SetCookie(cookie.GenerateDeleteSyncCookieStr(pc))
	}

	for _, pc := range cookies {
		if pc.IsClientSync() && cookie.IsSyncCookieExists(pc, clientCookieStr) {
			doc.SetCookie(cookie.FormatSyncCookie(cookie.ChangeSyncType(pc, 0, cookie.SyncWindow)))
		}
	}
}

// windowsForSync lists every window of top's tree except top and initiator,
// parents before children, children in document order.
func windowsForSync(top, initiator *frame.Window) []*frame.Window {
	var windows []*frame.Window
	top.Walk(func(w *frame.Window) bool {
		if w != initiator && w != top {
			windows = append(windows, w)
		}
		return true
	})
	return windows
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
