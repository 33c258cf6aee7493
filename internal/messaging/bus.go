package messaging

import (
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/crossframe/internal/frame"
	"github.com/GriffinCanCode/crossframe/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/crossframe/internal/shared/id"
)

// Envelope is a message in flight between two windows
type Envelope struct {
	Message Message
	Source  *frame.Window
	Target  *frame.Window
}

// Transport delivers envelopes to a window hosted outside this process
type Transport interface {
	Deliver(env Envelope) error
}

// Filter decides whether an envelope is delivered. Returning false drops it,
// which is how tests emulate message loss.
type Filter func(env Envelope) bool

// Bus routes messages between the windows of one page. Delivery is
// asynchronous and unordered, like postMessage between frames.
type Bus struct {
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu      sync.RWMutex
	ports   map[id.WindowID]*Port
	remotes map[id.WindowID]Transport
	windows map[id.WindowID]*frame.Window
	filter  Filter
}

// NewBus creates an empty bus. A nil logger discards logs.
func NewBus(logger *zap.Logger, metrics *monitoring.Metrics) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		logger:  logger,
		metrics: metrics,
		ports:   make(map[id.WindowID]*Port),
		remotes: make(map[id.WindowID]Transport),
		windows: make(map[id.WindowID]*frame.Window),
	}
}

// Port returns the channel of win, creating it on first use
func (b *Bus) Port(win *frame.Window) *Port {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.ports[win.ID()]; ok {
		return p
	}
	p := &Port{bus: b, win: win, handlers: make(map[int]Handler)}
	b.ports[win.ID()] = p
	b.windows[win.ID()] = win
	return p
}

// AttachRemote routes every message addressed to win through t until the
// returned function is called.
func (b *Bus) AttachRemote(win *frame.Window, t Transport) (detach func()) {
	b.mu.Lock()
	b.remotes[win.ID()] = t
	b.windows[win.ID()] = win
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.remotes[win.ID()] == t {
			delete(b.remotes, win.ID())
		}
	}
}

// IsRemote reports whether win is currently served by a Transport
func (b *Bus) IsRemote(win *frame.Window) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.remotes[win.ID()]
	return ok
}

// Lookup resolves a window known to the bus
func (b *Bus) Lookup(winID id.WindowID) (*frame.Window, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	win, ok := b.windows[winID]
	return win, ok
}

// SetFilter installs a delivery filter; nil delivers everything
func (b *Bus) SetFilter(f Filter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter = f
}

// Inject delivers a message that arrived from outside the process as if
// source had sent it.
func (b *Bus) Inject(msg Message, source, target *frame.Window) {
	b.deliver(Envelope{Message: msg, Source: source, Target: target})
}

func (b *Bus) deliver(env Envelope) {
	cmd := string(env.Message.Cmd)

	b.mu.RLock()
	filter := b.filter
	var (
		port   *Port
		remote Transport
	)
	if env.Target != nil {
		port = b.ports[env.Target.ID()]
		remote = b.remotes[env.Target.ID()]
	}
	b.mu.RUnlock()

	switch {
	case env.Target == nil, env.Target.IsDetached():
		b.drop(env, "target gone")
		return
	case filter != nil && !filter(env):
		b.drop(env, "filtered")
		return
	}

	if remote != nil {
		b.metrics.RecordMessage(cmd, "remote")
		go func() {
			if err := remote.Deliver(env); err != nil {
				b.logger.Debug("remote delivery failed",
					zap.Stringer("target", env.Target),
					zap.Error(err))
			}
		}()
		return
	}

	if port == nil {
		b.drop(env, "no port")
		return
	}

	b.metrics.RecordMessage(cmd, "local")
	go port.dispatch(env.Message, env.Source)
}

func (b *Bus) drop(env Envelope, reason string) {
	b.metrics.RecordMessage(string(env.Message.Cmd), "dropped")
	if ce := b.logger.Check(zap.DebugLevel, "message dropped"); ce != nil {
		fields := []zap.Field{zap.String("reason", reason), zap.String("cmd", string(env.Message.Cmd))}
		if env.Target != nil {
			fields = append(fields, zap.Stringer("target", env.Target))
		}
		ce.Write(fields...)
	}
}

// Port is the Channel of one window on a Bus
type Port struct {
	bus *Bus
	win *frame.Window

	mu       sync.RWMutex
	handlers map[int]Handler
	next     int
}

// Window returns the window owning the port
func (p *Port) Window() *frame.Window { return p.win }

// Send posts a copy of msg to target
func (p *Port) Send(msg Message, target *frame.Window) {
	p.bus.deliver(Envelope{Message: msg.Clone(), Source: p.win, Target: target})
}

// Subscribe registers h for messages addressed to the port's window
func (p *Port) Subscribe(h Handler) (cancel func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.next++
	key := p.next
	p.handlers[key] = h

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.handlers, key)
	}
}

func (p *Port) dispatch(msg Message, source *frame.Window) {
	p.mu.RLock()
	handlers := make([]Handler, 0, len(p.handlers))
	for _, h := range p.handlers {
		handlers = append(handlers, h)
	}
	p.mu.RUnlock()

	for _, h := range handlers {
		h(msg.Clone(), source)
	}
}
