package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func get(t *testing.T, h http.Handler, path, caller string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = caller + ":51234"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestLimiterBurstThenThrottle(t *testing.T) {
	l := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 2, CleanupMinutes: 1})
	defer l.Stop()
	h := l.Handler(okHandler())

	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/domains/alice", "203.0.113.7").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/domains/alice", "203.0.113.7").Code)

	rr := get(t, h, "/api/v1/domains/alice", "203.0.113.7")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body.Error.Code)
}

func TestLimiterIsolatesCallers(t *testing.T) {
	l := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 1, CleanupMinutes: 1})
	defer l.Stop()
	h := l.Handler(okHandler())

	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/records/alice", "203.0.113.7").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(t, h, "/api/v1/records/alice", "203.0.113.7").Code)

	// A throttled caller does not starve anyone else.
	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/records/alice", "203.0.113.8").Code)
}

func TestLimiterExemptsHealthEndpoints(t *testing.T) {
	l := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 1, CleanupMinutes: 1})
	defer l.Stop()
	h := l.Handler(okHandler())

	for _, path := range []string{"/health", "/healthz", "/readyz"} {
		for i := 0; i < 10; i++ {
			assert.Equal(t, http.StatusOK, get(t, h, path, "203.0.113.7").Code, path)
		}
	}
}

func TestMiddlewareDisabledPassesThrough(t *testing.T) {
	h := Middleware(Config{Enabled: false, RequestsPerMin: 1, BurstSize: 1})(okHandler())

	for i := 0; i < 50; i++ {
		assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/domains/alice", "203.0.113.7").Code)
	}
}

func TestMiddlewareEnabled(t *testing.T) {
	h := Middleware(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 5, CleanupMinutes: 1})(okHandler())
	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/domains/alice", "203.0.113.7").Code)
}

func TestSweepDropsIdleCallers(t *testing.T) {
	l := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 5, CleanupMinutes: 1})
	defer l.Stop()

	l.allow("203.0.113.7")
	l.allow("203.0.113.8")

	l.mu.Lock()
	l.buckets["203.0.113.7"].lastSeen = time.Now().Add(-2 * time.Minute)
	l.mu.Unlock()

	l.sweep(time.Now())

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.buckets, "203.0.113.7", "idle caller is dropped")
	assert.Contains(t, l.buckets, "203.0.113.8", "active caller survives the sweep")
}

func TestLimiterConcurrentCallers(t *testing.T) {
	l := New(Config{Enabled: true, RequestsPerMin: 6000, BurstSize: 200, CleanupMinutes: 1})
	defer l.Stop()
	h := l.Handler(okHandler())

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				get(t, h, "/api/v1/domains/alice", "203.0.113.7")
			}
		}()
	}
	wg.Wait()
}
