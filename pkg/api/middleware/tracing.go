package middleware

import (
	"net/http"

	"github.com/0xmhha/chainquery/internal/telemetry"
)

// TraceIDHeader carries a caller supplied trace id
const TraceIDHeader = "X-Trace-Id"

// Tracing joins the request context to the caller's trace when the request
// carries a valid X-Trace-Id
func Tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get(TraceIDHeader); id != "" {
			if ctx, ok := telemetry.ContextWithTraceID(r.Context(), id); ok {
				r = r.WithContext(ctx)
			}
		}
		next.ServeHTTP(w, r)
	})
}
