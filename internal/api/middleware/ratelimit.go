package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/analyzr/internal/api/response"
	"github.com/kiranshivaraju/analyzr/internal/ratelimit"
	"github.com/kiranshivaraju/analyzr/internal/telemetry"
)

// RateLimit applies the sliding-window limiter to every request.
type RateLimit struct {
	limiter *ratelimit.Limiter
	metrics *telemetry.Metrics
}

// NewRateLimit creates a new RateLimit middleware.
func NewRateLimit(l *ratelimit.Limiter, metrics *telemetry.Metrics) *RateLimit {
	return &RateLimit{limiter: l, metrics: metrics}
}

// Limit admits or rejects the request for its caller identity.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := rl.limiter.Check(r.Context(), Identity(r))
		if d.Degraded {
			rl.metrics.RateLimitFailedOpen()
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetUnix(), 10))

		if !d.Allowed {
			rl.metrics.RateLimitRejected()
			w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds()))
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Identity picks the rate-limit bucket for r: the authenticated subject, else
// the first forwarded client address, else the peer address.
func Identity(r *http.Request) string {
	if claims, ok := GetClaims(r); ok && claims.SubjectID != "" {
		return claims.SubjectID
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
