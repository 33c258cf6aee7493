package frame

import (
	"context"
	"errors"
	"sync"

	"github.com/GriffinCanCode/crossframe/internal/shared/id"
)

var (
	ErrAccessDenied = errors.New("cross-origin window access denied")
	ErrDetached     = errors.New("window is detached")
	ErrNoHandle     = errors.New("window has no sandbox handle")
)

// Window is one browsing context of a page: the top window or a frame.
// The tree is live: frames can be appended or removed at any time, so
// callers must re-read Frames instead of keeping a snapshot.
type Window struct {
	id     id.WindowID
	name   string
	origin string

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	parent *Window
	frames []*Window
	handle any

	detached   chan struct{}
	detachOnce sync.Once
}

// NewTop creates the root window of a page
func NewTop(name, origin string) *Window {
	return newWindow(name, origin)
}

func newWindow(name, origin string) *Window {
	ctx, cancel := context.WithCancel(context.Background())
	return &Window{
		id:       id.NewWindowID(),
		name:     name,
		origin:   origin,
		ctx:      ctx,
		cancel:   cancel,
		detached: make(chan struct{}),
	}
}

// AppendFrame creates a child frame at the end of w's frame list
func (w *Window) AppendFrame(name, origin string) *Window {
	child := newWindow(name, origin)

	w.mu.Lock()
	defer w.mu.Unlock()

	child.parent = w
	w.frames = append(w.frames, child)
	return child
}

// ID returns the window identifier
func (w *Window) ID() id.WindowID { return w.id }

// Name returns the frame name given at creation
func (w *Window) Name() string { return w.name }

// Origin returns the origin the window's document was loaded from
func (w *Window) Origin() string { return w.origin }

// Parent returns the parent window, nil for top and for removed frames
func (w *Window) Parent() *Window {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.parent
}

// Top walks up to the root of w's tree
func (w *Window) Top() *Window {
	top := w
	for p := top.Parent(); p != nil; p = top.Parent() {
		top = p
	}
	return top
}

// IsTop reports whether w is the root of its tree
func (w *Window) IsTop() bool {
	return w.Parent() == nil && !w.IsDetached()
}

// Frames returns a snapshot of w's direct child frames in document order
func (w *Window) Frames() []*Window {
	w.mu.RLock()
	defer w.mu.RUnlock()

	frames := make([]*Window, len(w.frames))
	copy(frames, w.frames)
	return frames
}

// Remove detaches w from its parent. w and all of its descendants are
// reported detached and their contexts are cancelled.
func (w *Window) Remove() {
	if parent := w.Parent(); parent != nil {
		parent.mu.Lock()
		for i, f := range parent.frames {
			if f == w {
				parent.frames = append(parent.frames[:i], parent.frames[i+1:]...)
				break
			}
		}
		parent.mu.Unlock()
	}

	w.mu.Lock()
	w.parent = nil
	w.mu.Unlock()

	w.markDetached()
}

func (w *Window) markDetached() {
	w.detachOnce.Do(func() {
		close(w.detached)
		w.cancel()
	})
	for _, f := range w.Frames() {
		f.markDetached()
	}
}

// Detached is closed once the window has been removed from its tree
func (w *Window) Detached() <-chan struct{} {
	return w.detached
}

// IsDetached reports whether the window has been removed
func (w *Window) IsDetached() bool {
	select {
	case <-w.detached:
		return true
	default:
		return false
	}
}

// Context is cancelled when the window goes away. Timers and pending waits
// owned by the window are scoped to it.
func (w *Window) Context() context.Context {
	return w.ctx
}

// Close tears down the window and its subtree without detaching it, as a
// page unload does.
func (w *Window) Close() {
	w.cancel()
	for _, f := range w.Frames() {
		f.Close()
	}
}

// SetHandle installs the in-process sandbox handle of the window
func (w *Window) SetHandle(h any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handle = h
}

// Handle returns the sandbox handle of w as seen from accessor. Access from a
// window of a different origin is denied, as a browser would deny it. A nil
// accessor is trusted.
func (w *Window) Handle(accessor *Window) (any, error) {
	if accessor != nil && accessor.origin != w.origin {
		return nil, ErrAccessDenied
	}
	if w.IsDetached() {
		return nil, ErrDetached
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.handle == nil {
		return nil, ErrNoHandle
	}
	return w.handle, nil
}

// Walk visits w and its descendants depth-first, parents before children and
// children in document order. Returning false from fn stops the walk.
func (w *Window) Walk(fn func(*Window) bool) bool {
	if !fn(w) {
		return false
	}
	for _, f := range w.Frames() {
		if !f.Walk(fn) {
			return false
		}
	}
	return true
}

// Find returns the first window named name in w's subtree
func (w *Window) Find(name string) *Window {
	var found *Window
	w.Walk(func(win *Window) bool {
		if win.name == name {
			found = win
			return false
		}
		return true
	})
	return found
}

// String returns a log-friendly description
func (w *Window) String() string {
	if w.name == "" {
		return w.id.String()
	}
	return w.name + "(" + w.id.String() + ")"
}
