package middleware

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micropaywall/paygate/internal/infrastructure/ratelimit"
	"github.com/micropaywall/paygate/internal/shared/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memoryLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
	keys   []string
}

func (m *memoryLimiter) Allow(_ context.Context, key string, limit ratelimit.Limit) (ratelimit.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	if m.err != nil {
		return ratelimit.Decision{}, m.err
	}
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[key]++
	remaining := int64(limit.Requests - m.counts[key])
	if remaining < 0 {
		remaining = 0
	}
	return ratelimit.Decision{
		Allowed:    m.counts[key] <= limit.Requests,
		Limit:      limit.Requests,
		Remaining:  remaining,
		ResetAfter: 30 * time.Second,
	}, nil
}

func (m *memoryLimiter) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.counts, key)
	return nil
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	engine := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		c.String(http.StatusOK, "ok:"+string(body))
	})
	engine.POST("/target", handlers...)
	engine.GET("/target", handlers...)
	return engine
}

func do(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_BlocksAfterBudget(t *testing.T) {
	limiter := &memoryLimiter{}
	rl := NewRateLimiter(limiter, "verify", ratelimit.PerMinute(2), logger.NewNopLogger())
	engine := newEngine(rl.Limit())

	for i := 0; i < 2; i++ {
		w := do(engine, httptest.NewRequest(http.MethodGet, "/target", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := do(engine, httptest.NewRequest(http.MethodGet, "/target", nil))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, limiter.keys)
	assert.True(t, strings.HasPrefix(limiter.keys[0], "verify:"))
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	limiter := &memoryLimiter{err: stderrors.New("redis: connection refused")}
	rl := NewRateLimiter(limiter, "create", ratelimit.PerMinute(1), logger.NewNopLogger())
	engine := newEngine(rl.Limit())

	for i := 0; i < 3; i++ {
		w := do(engine, httptest.NewRequest(http.MethodGet, "/target", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimiter_NilLimiterPassesThrough(t *testing.T) {
	rl := NewRateLimiter(nil, "create", ratelimit.PerMinute(1), logger.NewNopLogger())
	engine := newEngine(rl.Limit())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(engine, httptest.NewRequest(http.MethodGet, "/target", nil)).Code)
	}
}

func TestWebhookSigner_RequireSignature(t *testing.T) {
	signer := NewWebhookSigner("whsec", logger.NewNopLogger())
	engine := newEngine(signer.RequireSignature())
	body := `{"tx_signature":"sig"}`

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", signer.Sign([]byte(body)), http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong prefix", strings.Replace(signer.Sign([]byte(body)), "sha256=", "sha1=", 1), http.StatusUnauthorized},
		{"not hex", "sha256=zz", http.StatusUnauthorized},
		{"other body", signer.Sign([]byte(`{}`)), http.StatusUnauthorized},
		{"other secret", NewWebhookSigner("other", logger.NewNopLogger()).Sign([]byte(body)), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/target", strings.NewReader(body))
			if tt.header != "" {
				req.Header.Set(WebhookSignatureHeader, tt.header)
			}
			w := do(engine, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "ok:"+body, w.Body.String())
			}
		})
	}
}

func TestWebhookSigner_EmptySecretRejectsEverything(t *testing.T) {
	signer := NewWebhookSigner("", logger.NewNopLogger())
	assert.False(t, signer.Verify([]byte("x"), signer.Sign([]byte("x"))))
}

func TestCORS(t *testing.T) {
	engine := newEngine(CORS([]string{"https://shop.example"}))

	req := httptest.NewRequest(http.MethodGet, "/target", nil)
	req.Header.Set("Origin", "https://shop.example")
	w := do(engine, req)
	assert.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/target", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = do(engine, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	// Preflight for an unregistered method still needs an OPTIONS route.
	engine.OPTIONS("/target", CORS(nil))
	w = do(engine, httptest.NewRequest(http.MethodOptions, "/target", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRecovery(t *testing.T) {
	engine := gin.New()
	engine.Use(Recovery(logger.NewNopLogger()))
	engine.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := do(engine, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal server error occurred")
}
