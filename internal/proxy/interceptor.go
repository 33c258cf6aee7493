package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/crossframe/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/crossframe/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/crossframe/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/crossframe/internal/origin"
)

// StatusSameOriginCheckFailed answers an XHR whose response the calling
// script is not allowed to observe. The client sandbox turns it into a
// network error, as a browser would.
const StatusSameOriginCheckFailed = 222

var (
	ErrInvalidDestination = errors.New("invalid destination url")
	ErrBodyTooLarge       = errors.New("upstream body too large")
)

// hop-by-hop headers are never relayed
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Config controls upstream fetching
type Config struct {
	UpstreamTimeout time.Duration
	RetryMax        int
	RetryWaitMin    time.Duration
	RetryWaitMax    time.Duration
	MaxBodyBytes    int64
	Breaker         resilience.Settings
}

// DefaultConfig returns production settings
func DefaultConfig() Config {
	return Config{
		UpstreamTimeout: 30 * time.Second,
		RetryMax:        3,
		RetryWaitMin:    100 * time.Millisecond,
		RetryWaitMax:    2 * time.Second,
		MaxBodyBytes:    10 << 20,
	}
}

// Interceptor relays XHRs issued by proxied pages and applies the
// cross-origin read rules to the captured response.
type Interceptor struct {
	client   *retryablehttp.Client
	breakers *resilience.Group
	cfg      Config
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// New creates an interceptor
func New(cfg Config, logger *zap.Logger, metrics *monitoring.Metrics) *Interceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = cfg.RetryWaitMin
	client.RetryWaitMax = cfg.RetryWaitMax
	client.HTTPClient.Timeout = cfg.UpstreamTimeout
	client.CheckRetry = retryTransportErrors
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = leveledLogger{logger.Named("upstream").Sugar()}
	// the page sees redirects through its own XHR
	client.HTTPClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Interceptor{
		client:   client,
		breakers: resilience.NewGroup(cfg.Breaker),
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// Breakers exposes the per-origin upstream breakers
func (i *Interceptor) Breakers() *resilience.Group { return i.breakers }

// Handle serves /xhr?url=<destination>&origin=<page origin>
func (i *Interceptor) Handle(c *gin.Context) {
	dest, err := parseDestination(c.Query("url"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reqOrigin := c.Query("origin")
	if reqOrigin == "" {
		reqOrigin = c.GetHeader("Origin")
	}
	targetDomain := originOf(dest)

	span := tracing.SpanFromContext(c.Request.Context())
	span.SetTag("xhr.target", targetDomain)

	resp, body, err := i.fetch(c.Request.Context(), c.Request, dest, reqOrigin, targetDomain)
	if err != nil {
		span.SetError(err)
		i.logger.Warn("upstream fetch failed",
			zap.String("url", dest.String()),
			zap.Error(err))
		status := http.StatusBadGateway
		if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	allowed, rule := origin.Decide(origin.Context{
		RequestOrigin:   reqOrigin,
		TargetDomain:    targetDomain,
		RequestMethod:   c.Request.Method,
		RequestHeaders:  c.Request.Header,
		ResponseHeaders: resp.Header,
	})
	i.metrics.RecordOriginDecision(string(rule), allowed)
	span.SetTag("origin.rule", string(rule))

	if !allowed {
		i.logger.Debug("cross-origin response hidden",
			zap.String("url", dest.String()),
			zap.String("origin", reqOrigin),
			zap.String("rule", string(rule)))
		c.Status(StatusSameOriginCheckFailed)
		c.Writer.WriteHeaderNow()
		return
	}

	header := c.Writer.Header()
	for k, vv := range resp.Header {
		for _, v := range vv {
			header.Add(k, v)
		}
	}
	removeHopHeaders(header)
	c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), body)
}

func (i *Interceptor) fetch(ctx context.Context, in *http.Request, dest *url.URL, reqOrigin, targetDomain string) (*http.Response, []byte, error) {
	var reqBody []byte
	if in.Body != nil {
		var err error
		reqBody, err = io.ReadAll(io.LimitReader(in.Body, i.cfg.MaxBodyBytes))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read request body: %w", err)
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, in.Method, dest.String(), bytes.NewReader(reqBody))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header = in.Header.Clone()
	req.Header.Del(origin.MarkerHeader)
	removeHopHeaders(req.Header)
	if reqOrigin != "" && reqOrigin != targetDomain {
		req.Header.Set("Origin", reqOrigin)
	}

	var (
		resp *http.Response
		body []byte
	)
	err = i.breakers.Get(targetDomain).Do(func() error {
		var err error
		resp, err = i.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err = io.ReadAll(io.LimitReader(resp.Body, i.cfg.MaxBodyBytes+1))
		if err != nil {
			return fmt.Errorf("failed to read upstream body: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if int64(len(body)) > i.cfg.MaxBodyBytes {
		return nil, nil, ErrBodyTooLarge
	}
	return resp, body, nil
}

// retryTransportErrors retries only when no response arrived; upstream
// statuses belong to the page.
func retryTransportErrors(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err == nil {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

func parseDestination(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: missing url parameter", ErrInvalidDestination)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDestination, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDestination, raw)
	}
	return u, nil
}

func originOf(u *url.URL) string {
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

func removeHopHeaders(h http.Header) {
	for _, k := range hopHeaders {
		h.Del(k)
	}
}

// leveledLogger routes retryablehttp logs to zap
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
