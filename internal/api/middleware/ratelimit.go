package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/storycast/storycast/internal/api/response"
	"github.com/storycast/storycast/internal/cache"
)

// limitWindow is the counting window. Counters expire with the window,
// so a throttled caller is never locked out for longer than this.
const limitWindow = time.Minute

const defaultRequestsPerMinute = 60

// RateLimit caps request throughput per API key over a fixed window.
// Every request increments a Redis counter keyed by the caller's key
// prefix; once the counter exceeds the limit, the remainder of the
// window gets 429s.
type RateLimit struct {
	cache cache.Cache
	limit int
}

// NewRateLimit builds the limiter. Non-positive limits fall back to
// defaultRequestsPerMinute.
func NewRateLimit(c cache.Cache, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{cache: c, limit: requestsPerMin}
}

// Limit enforces the per-key quota and reports it through the standard
// X-RateLimit response headers. Requests with no key prefix in context
// pass through untouched, as do requests during a Redis outage: the
// limiter protects capacity, it is not access control.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix, ok := getKeyPrefix(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		count, err := rl.cache.IncrWithExpiry(r.Context(), cache.RateLimitKey(prefix), limitWindow)
		if err != nil {
			// Cache errors fail open.
			next.ServeHTTP(w, r)
			return
		}

		remaining := int64(rl.limit) - count
		if remaining < 0 {
			remaining = 0
		}
		reset := time.Now().Add(limitWindow).Unix()

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))

		if count > int64(rl.limit) {
			h.Set("Retry-After", strconv.Itoa(int(limitWindow.Seconds())))
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
