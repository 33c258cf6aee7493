package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/crossframe/internal/frame"
	"github.com/GriffinCanCode/crossframe/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/crossframe/internal/messaging"
	"github.com/GriffinCanCode/crossframe/internal/page"
	"github.com/GriffinCanCode/crossframe/internal/sandbox"
)

// DefaultSyncWait bounds how long a cookie write waits for convergence
const DefaultSyncWait = 15 * time.Second

// Handlers serves the control API of one loaded page
type Handlers struct {
	page     *page.Page
	bridge   *messaging.Bridge
	breakers *resilience.Group
	logger   *zap.Logger
	syncWait time.Duration
}

// NewHandlers creates the control API handlers
func NewHandlers(pg *page.Page, bridge *messaging.Bridge, breakers *resilience.Group, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		page:     pg,
		bridge:   bridge,
		breakers: breakers,
		logger:   logger,
		syncWait: DefaultSyncWait,
	}
}

// WithSyncWait overrides DefaultSyncWait
func (h *Handlers) WithSyncWait(d time.Duration) *Handlers {
	h.syncWait = d
	return h
}

// CookieRequest writes a cookie through document.cookie of a frame
type CookieRequest struct {
	Frame  string `json:"frame" binding:"required"`
	Cookie string `json:"cookie" binding:"required"`
}

// EvalRequest runs a script in a frame
type EvalRequest struct {
	Frame  string `json:"frame" binding:"required"`
	Script string `json:"script" binding:"required"`
	// Wait blocks until the script's cookie writes have converged
	Wait bool `json:"wait"`
}

// AppendFrameRequest inserts a frame subtree under Parent
type AppendFrameRequest struct {
	Parent string         `json:"parent" binding:"required"`
	Frame  page.FrameSpec `json:"frame"`
}

// Root returns service information
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "crossframe",
		"session": h.page.SessionID().String(),
		"top":     h.page.Top().Origin(),
	})
}

// Health returns service health
func (h *Handlers) Health(c *gin.Context) {
	breakers := gin.H{}
	if h.breakers != nil {
		for name, st := range h.breakers.States() {
			breakers[name] = st.String()
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"windows":  len(h.page.Windows()),
		"breakers": breakers,
	})
}

// ListWindows returns every window of the page with its cookie header
func (h *Handlers) ListWindows(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"session": h.page.SessionID().String(),
		"windows": h.page.Windows(),
	})
}

// SetCookie writes a cookie in a frame and waits until every window of the
// page has observed it.
func (h *Handlers) SetCookie(c *gin.Context) {
	var req CookieRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.syncWait)
	defer cancel()

	start := time.Now()
	if err := h.page.SetCookie(ctx, req.Frame, req.Cookie); err != nil {
		h.fail(c, err)
		return
	}

	h.logger.Debug("cookie synchronized",
		zap.String("frame", req.Frame),
		zap.Duration("elapsed", time.Since(start)))
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"windows": h.page.Windows(),
	})
}

// Eval runs a script in a frame
func (h *Handlers) Eval(c *gin.Context) {
	var req EvalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.syncWait)
	defer cancel()

	res, err := h.page.Eval(ctx, req.Frame, req.Script)
	if err != nil {
		h.fail(c, err)
		return
	}
	if req.Wait {
		if err := res.Wait(ctx); err != nil {
			h.fail(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"value":       res.Value,
		"console":     res.Console,
		"duration_ms": res.Duration.Milliseconds(),
		"syncs":       len(res.Syncs),
	})
}

// AppendFrame inserts a frame subtree into the live page
func (h *Handlers) AppendFrame(c *gin.Context) {
	var req AppendFrameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	parent, err := h.page.Find(req.Parent)
	if err != nil {
		h.fail(c, err)
		return
	}
	win, err := h.page.AppendFrame(parent, req.Frame)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": win.ID().String(), "name": win.Name()})
}

// RemoveFrame detaches a frame and its descendants
func (h *Handlers) RemoveFrame(c *gin.Context) {
	win, err := h.page.Find(c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if win.IsTop() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "the top window cannot be removed"})
		return
	}

	h.page.Remove(win)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Socket binds a WebSocket connection to a remote frame
func (h *Handlers) Socket(c *gin.Context) {
	name := c.Query("window")
	win, err := h.page.Find(name)
	if err != nil {
		h.fail(c, err)
		return
	}
	if _, local := h.page.Sandbox(win); local {
		c.JSON(http.StatusConflict, gin.H{"error": "window is served locally: " + name})
		return
	}

	if err := h.bridge.ServeWindow(c.Writer, c.Request, win); err != nil {
		h.logger.Warn("remote window connection failed", zap.String("window", name), zap.Error(err))
	}
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, page.ErrFrameNotFound):
		status = http.StatusNotFound
	case errors.Is(err, page.ErrRemoteFrame), errors.Is(err, frame.ErrDetached):
		status = http.StatusConflict
	case errors.Is(err, page.ErrDuplicateFrame):
		status = http.StatusConflict
	case errors.Is(err, sandbox.ErrScriptFailed):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
