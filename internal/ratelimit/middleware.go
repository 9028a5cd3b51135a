package ratelimit

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/mindmap-platform/mindmap-api/internal/auth"
	"github.com/mindmap-platform/mindmap-api/internal/metrics"
	"github.com/mindmap-platform/mindmap-api/internal/requestinfo"
)

// Middleware answers 429 once the client identified by ClientKey is over
// its limit.  Limiter errors fail open.
func Middleware(l Limiter, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := l.Allow(r.Context(), ClientKey(r))
			if err != nil {
				if log != nil {
					log.Warnw("rate limiter error, allowing request", "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			metrics.RateLimitRejectionsTotal.Inc()
			secs := int(math.Ceil(d.RetryAfter.Seconds()))
			h.Set("Retry-After", strconv.Itoa(max(secs, 1)))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Rate limit exceeded"})
		})
	}
}

// ClientKey identifies the caller: the authenticated subject when present,
// otherwise the connection's peer address.  X-Forwarded-For is ignored
// because any client can set it.
func ClientKey(r *http.Request) string {
	if sub, ok := auth.Subject(r.Context()); ok {
		return "sub:" + sub
	}
	if info := requestinfo.FromContext(r.Context()); info != nil && info.PeerIP != "" {
		return "ip:" + info.PeerIP
	}
	return "ip:" + requestinfo.PeerIP(r)
}
