// Package ratelimit throttles API clients with a Redis token bucket so the
// limit holds across API replicas.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mark3748/sla-notifier/internal/metrics"
)

// Limiter is a token bucket per key. Buckets refill one token every
// window/limit.
type Limiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// New returns a Limiter allowing limit requests per window. prefix namespaces
// the Redis keys; it is always placed under "rl:".
func New(rdb *redis.Client, limit int, window time.Duration, prefix string) *Limiter {
	if !strings.HasPrefix(prefix, "rl:") {
		prefix = "rl:" + prefix
	}
	return &Limiter{rdb: rdb, limit: limit, window: window, prefix: prefix, now: time.Now}
}

// Interval is the refill period of one token.
func (l *Limiter) Interval() time.Duration {
	if l.limit <= 0 {
		return 0
	}
	return l.window / time.Duration(l.limit)
}

// Allow takes a token from key's bucket. Without Redis or a positive limit
// every request is allowed.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.rdb == nil || l.limit <= 0 {
		return true, nil
	}
	interval := l.Interval().Milliseconds()
	if interval < 1 {
		interval = 1
	}
	res, err := l.rdb.Eval(ctx, tokenBucket, []string{l.prefix + key}, l.limit, interval, l.now().UnixMilli()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// ByClientIP keys buckets on the caller's address.
func ByClientIP(c *gin.Context) string { return c.ClientIP() }

// Middleware rejects requests over the limit with 429 and counts the
// rejection under route. A Redis failure lets the request through.
func (l *Limiter) Middleware(route string, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := l.Allow(c.Request.Context(), keyFunc(c))
		if err != nil {
			log.Warn().Err(err).Str("route", route).Msg("rate limit check failed")
			c.Next()
			return
		}
		if !ok {
			metrics.RateLimitRejectionsTotal.WithLabelValues(route).Inc()
			c.Header("Retry-After", strconv.Itoa(int(l.Interval().Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limited"})
			return
		}
		c.Next()
	}
}

// tokenBucket keeps remaining tokens and the last refill time in a hash per
// key. ARGV: capacity, refill interval in ms, now in ms.
const tokenBucket = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local data = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(data[1])
local ts = tonumber(data[2])
if tokens == nil then
  tokens = capacity
  ts = now
else
  local add = math.floor((now - ts) / interval)
  if add > 0 then
    tokens = math.min(tokens + add, capacity)
    ts = ts + add * interval
  end
end
local allowed = 0
if tokens > 0 then
  tokens = tokens - 1
  allowed = 1
end
redis.call('HSET', key, 'tokens', tokens, 'ts', ts)
redis.call('PEXPIRE', key, interval * capacity)
return allowed
`
