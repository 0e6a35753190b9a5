package ratelimit

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
)

// Middleware applies a per-client-IP sliding window to an HTTP route group.
// It is a transport-layer backstop in front of the per-subject limiting the
// coordinator does itself; the attempt kind keeps route groups from sharing
// windows.
type Middleware struct {
	limiter     *SlidingWindowLimiter
	attemptKind string
}

// NewMiddleware creates a rate limiting middleware for one route group.
func NewMiddleware(limiter *SlidingWindowLimiter, attemptKind string) *Middleware {
	return &Middleware{
		limiter:     limiter,
		attemptKind: attemptKind,
	}
}

// Handler returns the rate limiting middleware handler
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)

		result, err := m.limiter.CheckAndRecord(ip, m.attemptKind)
		if err != nil {
			m.rateLimitExceeded(w, r, err)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", result.AttemptsRemaining))
		next.ServeHTTP(w, r)
	})
}

// rateLimitExceeded handles rate limit exceeded responses
func (m *Middleware) rateLimitExceeded(w http.ResponseWriter, r *http.Request, err error) {
	slog.Warn("Rate limit exceeded",
		"kind", m.attemptKind,
		"ip", getClientIP(r),
		"path", r.URL.Path,
		"method", r.Method,
	)

	retryAfter := 60.0
	var exceeded *ExceededError
	if errors.As(err, &exceeded) {
		retryAfter = math.Ceil(exceeded.RetryAfter.Seconds())
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter))
	w.WriteHeader(http.StatusTooManyRequests)

	fmt.Fprintf(w, `{"error":"rate_limit_exceeded","message":"Too many requests. Please try again later.","retry_after":%.0f}`, retryAfter)
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (set by proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For can contain multiple IPs, take the first one
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	// Check X-Real-IP header (set by some proxies/load balancers)
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is in format "IP:port", we only want the IP
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}

	return addr
}
