package http

import (
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"reqforge/internal/infrastructure"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestMiddleware(t *testing.T) *Middleware {
	t.Helper()
	local := infrastructure.NewLocalRateLimiter()
	t.Cleanup(local.Close)
	limiter := infrastructure.NewRateLimiter(nil, local, zap.NewNop())
	return NewMiddleware("test-secret", nil, limiter, "https://app.example.com", zap.NewNop())
}

func performRequest(r *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTrustedOriginMatrix(t *testing.T) {
	m := newTestMiddleware(t)
	r := gin.New()
	r.Use(m.TrustedOrigin())
	handler := func(c *gin.Context) { c.Status(nethttp.StatusOK) }
	r.POST("/x", handler)
	r.GET("/x", handler)

	cases := []struct {
		name     string
		method   string
		origin   string
		expected int
	}{
		{"mutating same origin", nethttp.MethodPost, "https://app.example.com", nethttp.StatusOK},
		{"mutating no origin", nethttp.MethodPost, "", nethttp.StatusOK},
		{"mutating foreign origin", nethttp.MethodPost, "https://evil.example.com", nethttp.StatusForbidden},
		{"read foreign origin", nethttp.MethodGet, "https://evil.example.com", nethttp.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			headers := map[string]string{}
			if tc.origin != "" {
				headers["Origin"] = tc.origin
			}
			w := performRequest(r, tc.method, "/x", headers)
			if w.Code != tc.expected {
				t.Errorf("expected %d, got %d", tc.expected, w.Code)
			}
		})
	}
}

func TestRateLimitByIPSetsRetryAfter(t *testing.T) {
	m := newTestMiddleware(t)
	r := gin.New()
	r.Use(m.RateLimitByIP("test", 1, time.Minute))
	r.GET("/x", func(c *gin.Context) { c.Status(nethttp.StatusOK) })

	headers := map[string]string{"X-Forwarded-For": "1.2.3.4"}
	if w := performRequest(r, nethttp.MethodGet, "/x", headers); w.Code != nethttp.StatusOK {
		t.Fatalf("first request should pass, got %d", w.Code)
	}

	w := performRequest(r, nethttp.MethodGet, "/x", headers)
	if w.Code != nethttp.StatusTooManyRequests {
		t.Fatalf("second request should be limited, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 response must carry Retry-After")
	}
}

func TestRateLimitByIPSeparatesClients(t *testing.T) {
	m := newTestMiddleware(t)
	r := gin.New()
	r.Use(m.RateLimitByIP("test", 1, time.Minute))
	r.GET("/x", func(c *gin.Context) { c.Status(nethttp.StatusOK) })

	performRequest(r, nethttp.MethodGet, "/x", map[string]string{"X-Forwarded-For": "1.1.1.1"})
	w := performRequest(r, nethttp.MethodGet, "/x", map[string]string{"X-Forwarded-For": "2.2.2.2"})
	if w.Code != nethttp.StatusOK {
		t.Errorf("different client should not share the bucket, got %d", w.Code)
	}
}

func TestRateLimitByUserRequiresIdentity(t *testing.T) {
	m := newTestMiddleware(t)
	r := gin.New()
	r.Use(m.RateLimitByUser("test", 5, time.Minute))
	r.GET("/x", func(c *gin.Context) { c.Status(nethttp.StatusOK) })

	w := performRequest(r, nethttp.MethodGet, "/x", nil)
	if w.Code != nethttp.StatusUnauthorized {
		t.Errorf("missing identity should answer 401, got %d", w.Code)
	}
}

func TestAuthRequiredRejectsBadTokens(t *testing.T) {
	m := newTestMiddleware(t)
	r := gin.New()
	r.Use(m.AuthRequired())
	r.GET("/x", func(c *gin.Context) { c.Status(nethttp.StatusOK) })

	if w := performRequest(r, nethttp.MethodGet, "/x", nil); w.Code != nethttp.StatusUnauthorized {
		t.Errorf("missing header should answer 401, got %d", w.Code)
	}
	headers := map[string]string{"Authorization": "Bearer not-a-token"}
	if w := performRequest(r, nethttp.MethodGet, "/x", headers); w.Code != nethttp.StatusUnauthorized {
		t.Errorf("garbage token should answer 401, got %d", w.Code)
	}
}

func TestPlanFilename(t *testing.T) {
	cases := []struct {
		title    string
		expected string
	}{
		{"My Project", "my-project-plan.md"},
		{"  ../../etc/passwd  ", "etc-passwd-plan.md"},
		{"", "plan-plan.md"},
		{"!!!", "plan-plan.md"},
	}
	for _, tc := range cases {
		if got := planFilename(tc.title); got != tc.expected {
			t.Errorf("planFilename(%q) = %q, expected %q", tc.title, got, tc.expected)
		}
	}
}
