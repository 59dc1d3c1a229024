package realip

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareResolvesCaller(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "direct connection",
			cfg:        Config{},
			remoteAddr: "203.0.113.7:51234",
			want:       "203.0.113.7",
		},
		{
			name:       "forwarded header ignored when trust is off",
			cfg:        Config{},
			remoteAddr: "203.0.113.7:51234",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.1"},
			want:       "203.0.113.7",
		},
		{
			name:       "forwarded header ignored from an untrusted peer",
			cfg:        Config{TrustProxy: true, TrustedProxies: []string{"10.0.0.0/8"}},
			remoteAddr: "203.0.113.7:51234",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.1"},
			want:       "203.0.113.7",
		},
		{
			name:       "single hop through a trusted proxy",
			cfg:        Config{TrustProxy: true, TrustedProxies: []string{"10.0.0.0/8"}},
			remoteAddr: "10.1.2.3:443",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.1"},
			want:       "198.51.100.1",
		},
		{
			name:       "spoofed prefix is skipped past proxy entries only",
			cfg:        Config{TrustProxy: true, TrustedProxies: []string{"10.0.0.0/8"}},
			remoteAddr: "10.1.2.3:443",
			headers:    map[string]string{"X-Forwarded-For": "1.2.3.4, 198.51.100.1, 10.9.9.9"},
			want:       "198.51.100.1",
		},
		{
			name:       "bare proxy address counts as a single-host range",
			cfg:        Config{TrustProxy: true, TrustedProxies: []string{"10.1.2.3"}},
			remoteAddr: "10.1.2.3:443",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.1"},
			want:       "198.51.100.1",
		},
		{
			name:       "x-real-ip fallback when no forwarded chain",
			cfg:        Config{TrustProxy: true, TrustedProxies: []string{"10.0.0.0/8"}},
			remoteAddr: "10.1.2.3:443",
			headers:    map[string]string{"X-Real-IP": "198.51.100.1"},
			want:       "198.51.100.1",
		},
		{
			name:       "entirely internal chain yields the origin hop",
			cfg:        Config{TrustProxy: true, TrustedProxies: []string{"10.0.0.0/8"}},
			remoteAddr: "10.1.2.3:443",
			headers:    map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"},
			want:       "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			handler := Middleware(tt.cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = Caller(r)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/domains/alice", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCallerWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	assert.Equal(t, "203.0.113.7", Caller(req))
}

func TestNewProxySet(t *testing.T) {
	set := newProxySet([]string{"10.0.0.0/8", "192.0.2.1", "2001:db8::1", "not-an-address"})
	require.Len(t, set, 3, "the malformed entry is dropped")

	assert.True(t, set.contains("10.255.0.1"))
	assert.True(t, set.contains("192.0.2.1"))
	assert.False(t, set.contains("192.0.2.2"), "a bare address trusts only itself")
	assert.True(t, set.contains("2001:db8::1"))
	assert.False(t, set.contains("203.0.113.7"))
	assert.False(t, set.contains("garbage"))
}

func TestHostOnly(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"203.0.113.7:51234", "203.0.113.7"},
		{"203.0.113.7", "203.0.113.7"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"2001:db8::1", "2001:db8::1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, hostOnly(tt.addr), tt.addr)
	}
}
