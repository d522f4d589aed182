package handlers

import (
	"net"
	"net/http"

	"cryptodash/internal/cache"
	"cryptodash/internal/logger"

	"github.com/go-redis/redis_rate/v10"
	"go.uber.org/zap"
)

// RateLimit caps each client IP at the given requests-per-second using a
// Redis-backed GCRA limiter, so the budget holds across API instances.
func RateLimit(perSecond int, next http.Handler) http.Handler {
	limiter := redis_rate.NewLimiter(cache.RedisClient)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}

		res, err := limiter.Allow(r.Context(), "ratelimit:"+host, redis_rate.PerSecond(perSecond))
		if err != nil {
			// A limiter outage should not take the API down with it.
			logger.Log.Warn("Rate limiter unavailable", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		if res.Allowed == 0 {
			logger.Log.Warn("Rate limit exceeded",
				zap.String("client", host),
				zap.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", res.RetryAfter.String())
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
