package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/GriffinCanCode/crossframe/internal/origin"
)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func serve(router *gin.Engine, method, remote, reqOrigin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/test", nil)
	if remote != "" {
		req.RemoteAddr = remote
	}
	if reqOrigin != "" {
		req.Header.Set("Origin", reqOrigin)
	}
	if method == http.MethodOptions {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCORS(t *testing.T) {
	router := setupTestRouter()
	router.Use(CORS(DefaultCORSConfig()))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantACAO   string
	}{
		{
			name:       "simple GET with origin",
			method:     http.MethodGet,
			origin:     "http://localhost:3000",
			wantStatus: http.StatusOK,
			wantACAO:   "*",
		},
		{
			name:       "preflight",
			method:     http.MethodOptions,
			origin:     "http://localhost:3000",
			wantStatus: http.StatusNoContent,
			wantACAO:   "*",
		},
		{
			name:       "no origin header",
			method:     http.MethodGet,
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, tt.method, "", tt.origin)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantACAO, w.Header().Get(origin.ACAO))
			assert.Empty(t, w.Header().Get(origin.ACAC))
		})
	}
}

func TestCORSWildcardDropsCredentials(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowCredentials = true

	router := setupTestRouter()
	router.Use(CORS(cfg))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(router, http.MethodGet, "", "https://runner.example")
	assert.Equal(t, "*", w.Header().Get(origin.ACAO))
	assert.Empty(t, w.Header().Get(origin.ACAC))
}

func TestCORSExplicitOrigins(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://runner.example"}
	cfg.AllowCredentials = true

	router := setupTestRouter()
	router.Use(CORS(cfg))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(router, http.MethodGet, "", "https://runner.example")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://runner.example", w.Header().Get(origin.ACAO))
	assert.Equal(t, "true", w.Header().Get(origin.ACAC))

	w = serve(router, http.MethodGet, "", "https://other.example")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDefaultCORSConfig(t *testing.T) {
	cfg := DefaultCORSConfig()

	assert.Contains(t, cfg.AllowOrigins, "*")
	assert.Contains(t, cfg.AllowMethods, "GET")
	assert.Contains(t, cfg.AllowMethods, "POST")
	assert.Contains(t, cfg.AllowHeaders, origin.MarkerHeader)
	assert.False(t, cfg.AllowCredentials)
	assert.Equal(t, 12*time.Hour, cfg.MaxAge)
}

func newLimitedRouter(cfg RateLimitConfig) (*gin.Engine, *limiterStore) {
	store := newLimiterStore(cfg)
	router := setupTestRouter()
	router.Use(rateLimit(store))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router, store
}

func TestRateLimit(t *testing.T) {
	clk := clocktesting.NewFakePassiveClock(time.Unix(1000, 0))
	router, _ := newLimitedRouter(RateLimitConfig{RequestsPerSecond: 2, Burst: 2, Clock: clk})

	for i := 0; i < 2; i++ {
		w := serve(router, http.MethodGet, "192.168.1.1:1234", "")
		assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodGet, "192.168.1.1:1234", "").Code)

	clk.SetTime(clk.Now().Add(time.Second))
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "192.168.1.1:1234", "").Code)
}

func TestRateLimitDifferentClients(t *testing.T) {
	clk := clocktesting.NewFakePassiveClock(time.Unix(1000, 0))
	router, _ := newLimitedRouter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, Clock: clk})

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "192.168.1.1:1234", "").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "192.168.1.2:1234", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodGet, "192.168.1.1:1234", "").Code)
}

func TestRateLimitEvictsIdleClients(t *testing.T) {
	clk := clocktesting.NewFakePassiveClock(time.Unix(1000, 0))
	router, store := newLimitedRouter(RateLimitConfig{
		RequestsPerSecond: 1,
		Burst:             1,
		IdleTTL:           time.Minute,
		Clock:             clk,
	})

	serve(router, http.MethodGet, "192.168.1.1:1234", "")
	serve(router, http.MethodGet, "192.168.1.2:1234", "")
	assert.Equal(t, 2, store.len())

	clk.SetTime(clk.Now().Add(30 * time.Second))
	serve(router, http.MethodGet, "192.168.1.2:1234", "")

	clk.SetTime(clk.Now().Add(40 * time.Second))
	serve(router, http.MethodGet, "192.168.1.3:1234", "")

	// .1 idle for 70s is gone; .2 seen 40s ago stays
	assert.Equal(t, 2, store.len())
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()

	assert.Equal(t, 100, cfg.RequestsPerSecond)
	assert.Equal(t, 200, cfg.Burst)
	assert.Equal(t, 10*time.Minute, cfg.IdleTTL)
}

func BenchmarkRateLimit(b *testing.B) {
	router := setupTestRouter()
	router.Use(RateLimit(DefaultRateLimitConfig()))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "192.168.1.1:1234"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}
}
