package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"talento-local/internal/api/response"
	"talento-local/internal/common/errors"
	"talento-local/internal/common/logger"
	"talento-local/internal/common/metrics"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
)

const rateLimitScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if current > tonumber(ARGV[2]) then
  return 0
end
return 1
`

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) bool
}

// RedisLimiter is a fixed-window counter shared by every API replica.
type RedisLimiter struct {
	client redis.Scripter
	script *redis.Script
	logger logger.Logger
}

func NewRedisLimiter(client redis.Scripter, log logger.Logger) *RedisLimiter {
	if client == nil {
		return nil
	}
	return &RedisLimiter{
		client: client,
		script: redis.NewScript(rateLimitScript),
		logger: log,
	}
}

// Allow fails open: a Redis error lets the request through.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	if l == nil || l.client == nil {
		return true
	}
	if key == "" || limit <= 0 || window <= 0 {
		return true
	}
	ttl := window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}
	ctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()

	allowed, err := l.script.Run(ctx, l.client, []string{key}, ttl, limit).Int64()
	if err != nil {
		l.logger.Warn("rate limiter unavailable, allowing request", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return true
	}
	return allowed == 1
}

// ActorKey keys the limit on the authenticated user.
func ActorKey(prefix string) func(*http.Request) string {
	return func(r *http.Request) string {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			return ""
		}
		return prefix + ":" + actor.UserID.String()
	}
}

func RateLimit(limiter Limiter, keyFn func(*http.Request) string, limit int, window time.Duration) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if key == "" || limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			if !limiter.Allow(r.Context(), key, limit, window) {
				metrics.RateLimitRejections.WithLabelValues(routeTemplate(r)).Inc()
				w.Header().Set("Retry-After", retryAfter(window))
				response.Error(w, errors.NewRateLimitedError("too many requests, try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfter(window time.Duration) string {
	secs := int(window.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
