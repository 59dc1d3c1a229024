// Package logging emits one structured line per API request, correlated by
// the chi request id and keyed to the resolved caller address.
package logging

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/pnslabs/pns-indexer/internal/middleware/realip"
)

// statusRecorder captures what the handler wrote so the access line can
// report status and payload size. The first explicit header wins; a body
// write before any header implies 200.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
	bytes   int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.written {
		return
	}
	sr.status = code
	sr.written = true
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.WriteHeader(http.StatusOK)
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// Unwrap exposes the underlying writer for middleware that flush or hijack.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// Middleware logs every request at Info once the handler finishes, panics
// included, so a request that dies mid-handler still leaves an access line.
func Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				logger.Info("request",
					"request_id", middleware.GetReqID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"status", rec.status,
					"bytes", rec.bytes,
					"duration", time.Since(start).String(),
					"client_ip", realip.Caller(r),
				)
			}()

			next.ServeHTTP(rec, r)
		})
	}
}
