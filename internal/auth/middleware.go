// Package auth validates operator API keys on the admin surface.
package auth

import "net/http"

// Keyset holds the configured API key hashes.
type Keyset struct {
	hashes map[string]struct{}
}

// NewKeyset builds a keyset from SHA-256 key hashes.
func NewKeyset(hashedKeys []string) *Keyset {
	ks := &Keyset{hashes: make(map[string]struct{}, len(hashedKeys))}
	for _, h := range hashedKeys {
		if h != "" {
			ks.hashes[h] = struct{}{}
		}
	}
	return ks
}

// Valid reports whether the presented key matches a configured hash.
func (k *Keyset) Valid(key string) bool {
	_, ok := k.hashes[HashAPIKey(key)]
	return ok
}

// Empty reports whether no keys are configured.
func (k *Keyset) Empty() bool { return len(k.hashes) == 0 }

// Middleware returns an HTTP middleware that validates API keys from the
// X-API-Key header or a Bearer token.
func Middleware(keys *Keyset, writeError func(w http.ResponseWriter, status int, code, message string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				auth := r.Header.Get("Authorization")
				if len(auth) > 7 && auth[:7] == "Bearer " {
					apiKey = auth[7:]
				}
			}

			if apiKey == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key required")
				return
			}

			if !keys.Valid(apiKey) {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
