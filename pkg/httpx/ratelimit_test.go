package httpx_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/tollgate/pkg/httpx"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func request(remote string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = remote
	return req
}

func TestIPKeyExtractor(t *testing.T) {
	t.Run("remote addr", func(t *testing.T) {
		require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(request("192.168.1.1:12345")))
	})

	t.Run("ignores forwarding headers", func(t *testing.T) {
		req := request("192.168.1.1:12345")
		req.Header.Set("X-Forwarded-For", "203.0.113.1")
		req.Header.Set("X-Real-IP", "203.0.113.2")
		require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(req))
	})
}

func TestTrustedProxyKeyExtractor(t *testing.T) {
	extract, err := httpx.TrustedProxyKeyExtractor([]string{"10.0.0.0/8", "192.168.1.1"})
	require.NoError(t, err)

	t.Run("untrusted peer cannot spoof its address", func(t *testing.T) {
		req := request("198.51.100.7:4000")
		req.Header.Set("X-Forwarded-For", "203.0.113.1")
		req.Header.Set("X-Real-IP", "203.0.113.2")
		require.Equal(t, "198.51.100.7", extract(req))
	})

	t.Run("rightmost untrusted hop behind a trusted proxy", func(t *testing.T) {
		req := request("10.1.2.3:4000")
		req.Header.Set("X-Forwarded-For", "1.1.1.1, 203.0.113.1, 10.0.0.9")
		require.Equal(t, "203.0.113.1", extract(req))
	})

	t.Run("rotating the forged prefix does not change the key", func(t *testing.T) {
		for _, forged := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
			req := request("192.168.1.1:4000")
			req.Header.Set("X-Forwarded-For", forged+", 203.0.113.5")
			require.Equal(t, "203.0.113.5", extract(req))
		}
	})

	t.Run("X-Real-IP from a trusted proxy", func(t *testing.T) {
		req := request("10.1.2.3:4000")
		req.Header.Set("X-Real-IP", "203.0.113.2")
		require.Equal(t, "203.0.113.2", extract(req))
	})

	t.Run("no trusted proxies is the peer address", func(t *testing.T) {
		plain, err := httpx.TrustedProxyKeyExtractor(nil)
		require.NoError(t, err)
		req := request("10.1.2.3:4000")
		req.Header.Set("X-Forwarded-For", "203.0.113.1")
		require.Equal(t, "10.1.2.3", plain(req))
	})

	t.Run("invalid entries", func(t *testing.T) {
		_, err := httpx.TrustedProxyKeyExtractor([]string{"10.0.0.0/33"})
		require.Error(t, err)
		_, err = httpx.TrustedProxyKeyExtractor([]string{"proxy.internal"})
		require.Error(t, err)
	})
}

func TestJSONFieldKeyExtractor(t *testing.T) {
	extract := httpx.JSONFieldKeyExtractor("username")

	t.Run("reads field and restores body", func(t *testing.T) {
		body := `{"username":" Alice ","password":"pw"}`
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

		require.Equal(t, "alice", extract(req))

		rest, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.Equal(t, body, string(rest))
	})

	t.Run("missing or non-string field", func(t *testing.T) {
		require.Empty(t, extract(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"password":"pw"}`))))
		require.Empty(t, extract(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"username":42}`))))
		require.Empty(t, extract(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`not json`))))
	})
}

func TestCompositeKeyExtractor(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"username":"bob"}`))
	req.RemoteAddr = "10.0.0.1:1"

	key := httpx.CompositeKeyExtractor(":", httpx.IPKeyExtractor, httpx.JSONFieldKeyExtractor("username"))(req)
	require.Equal(t, "10.0.0.1:bob", key)

	req = request("10.0.0.1:1")
	key = httpx.CompositeKeyExtractor(":", httpx.IPKeyExtractor, httpx.UserIDKeyExtractor)(req)
	require.Equal(t, "10.0.0.1", key)
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := httpx.RateLimitConfig{RequestsPerWindow: 3, Window: time.Minute, Burst: 3}

	t.Run("blocks once the burst is spent", func(t *testing.T) {
		h := httpx.RateLimitByIP(cfg, httpx.IPKeyExtractor)(okHandler)

		for i := range 3 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, request("192.168.1.1:1"))
			require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		}

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("192.168.1.1:1"))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
		require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
		require.Contains(t, rec.Body.String(), "rate_limit_exceeded")
	})

	t.Run("keys are independent", func(t *testing.T) {
		h := httpx.RateLimitByIP(cfg, httpx.IPKeyExtractor)(okHandler)
		for range 3 {
			h.ServeHTTP(httptest.NewRecorder(), request("192.168.1.1:1"))
		}

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("192.168.1.2:1"))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("empty key passes through", func(t *testing.T) {
		h := httpx.RateLimitMiddleware(httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1},
			func(*http.Request) string { return "" })(okHandler)
		for range 5 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, request("192.168.1.1:1"))
			require.Equal(t, http.StatusOK, rec.Code)
		}
	})
}

func TestDefaultRateLimits(t *testing.T) {
	p := httpx.DefaultRateLimits()
	for _, cfg := range []httpx.RateLimitConfig{p.Strict, p.Moderate, p.Lenient} {
		require.Positive(t, cfg.RequestsPerWindow)
		require.Positive(t, cfg.Burst)
		require.Equal(t, time.Minute, cfg.Window)
	}
}
