package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/felixge/httpsnoop"

	"messageboard/internal/adapters/http/perf"
)

// DefaultSlowRequestMs is the default threshold for slow request warnings.
const DefaultSlowRequestMs = 200

// Timing returns middleware that writes one access-log line per request and
// records its duration for the perf dashboard.
// Requests to /static/ are excluded.
// Normal requests log at INFO as http_request; requests at or above
// slowRequestMs log at WARN as slow_request. slowRequestMs <= 0 selects
// DefaultSlowRequestMs. collector may be nil.
// The response writer is wrapped with httpsnoop so it keeps Flusher and
// Hijacker, which the live feed socket needs.
func Timing(collector *perf.Collector, slowRequestMs int) func(http.Handler) http.Handler {
	if slowRequestMs <= 0 {
		slowRequestMs = DefaultSlowRequestMs
	}
	threshold := float64(slowRequestMs)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if strings.HasPrefix(path, "/static/") {
				next.ServeHTTP(w, r)
				return
			}

			m := httpsnoop.CaptureMetrics(next, w, r)
			durationMs := float64(m.Duration.Microseconds()) / 1000.0

			attrs := []any{
				"request_id", RequestIDFromContext(r.Context()),
				"method", r.Method,
				"path", path,
				"status", m.Code,
				"bytes", m.Written,
				"duration_ms", durationMs,
			}
			if durationMs >= threshold && !isLiveSocket(r) {
				slog.Warn("slow_request", attrs...)
			} else {
				slog.Info("http_request", attrs...)
			}

			if collector != nil {
				collector.Record(perf.Entry{
					Kind:       perf.KindRequest,
					Path:       r.Method + " " + path,
					StatusCode: m.Code,
					DurationMs: durationMs,
					Timestamp:  time.Now().Add(-m.Duration),
				})
			}
		})
	}
}

// isLiveSocket reports whether r upgraded to a websocket; its duration is the
// lifetime of the connection.
func isLiveSocket(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
