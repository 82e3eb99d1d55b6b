package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/iliyamo/bean-counter/internal/config"
	"github.com/iliyamo/bean-counter/internal/logging"
)

var limiterScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local refill_tokens = tonumber(ARGV[3])
	local interval_ms = tonumber(ARGV[4])
	local ttl_seconds = tonumber(ARGV[5])

	local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
	local tokens = tonumber(state[1])
	local last_refill = tonumber(state[2])

	if tokens == nil or last_refill == nil then
		tokens = capacity
		last_refill = now_ms
	end

	if interval_ms > 0 and refill_tokens > 0 then
		local elapsed = math.max(0, now_ms - last_refill)
		local intervals = math.floor(elapsed / interval_ms)
		if intervals > 0 then
			tokens = math.min(capacity, tokens + (intervals * refill_tokens))
			last_refill = last_refill + (intervals * interval_ms)
		end
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		local until_next = interval_ms - (now_ms - last_refill)
		if until_next < 0 then until_next = 0 end
		retry_after_ms = until_next
	end

	redis.call('HMSET', key, 'tokens', tokens, 'last_refill_ms', last_refill, 'capacity', capacity)
	redis.call('EXPIRE', key, ttl_seconds)

	return { allowed, tokens, retry_after_ms }
`)

// verdict is one token bucket decision.
type verdict struct {
	allowed   bool
	remaining int64
	retry     time.Duration
}

type bucket interface {
	take(c echo.Context, key string) (verdict, error)
}

// NewTokenBucket limits the credential endpoints per key.  With Redis the
// bucket lives in a Lua script shared by every instance; without it each
// process keeps its own x/time/rate limiters.  A Redis error lets the
// request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	var b bucket
	if rdb != nil {
		b = &redisBucket{cfg: cfg, rdb: rdb}
	} else {
		b = newLocalBucket(cfg)
	}
	log := logging.With("ratelimit")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			v, err := b.take(c, key)
			if err != nil {
				log.Warn().Err(err).Str("key", key).Msg("limiter unavailable")
				return next(c)
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(v.remaining, 10))

			if !v.allowed {
				secs := int(math.Ceil(v.retry.Seconds()))
				if secs < 0 {
					secs = 0
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				if cfg.Debug {
					log.Debug().Str("key", key).Int64("remaining", v.remaining).Dur("retry", v.retry).Msg("blocked")
				}
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"error":       "too_many_requests",
					"message":     "rate limit exceeded",
					"retry_after": secs,
				})
			}

			if cfg.Debug {
				c.Response().Header().Set("X-RateLimit-Key", key)
			}
			return next(c)
		}
	}
}

type redisBucket struct {
	cfg config.RateLimitConfig
	rdb *redis.Client
}

func (b *redisBucket) take(c echo.Context, key string) (verdict, error) {
	args := []interface{}{
		time.Now().UnixMilli(),
		b.cfg.Capacity,
		b.cfg.RefillTokens,
		b.cfg.RefillInterval.Milliseconds(),
		int64(b.cfg.TTL / time.Second),
	}
	vals, err := limiterScript.Run(c.Request().Context(), b.rdb, []string{key}, args...).Result()
	if err != nil {
		return verdict{}, err
	}
	arr, ok := vals.([]interface{})
	if !ok || len(arr) != 3 {
		return verdict{}, fmt.Errorf("unexpected script result %#v", vals)
	}
	return verdict{
		allowed:   asInt64(arr[0]) == 1,
		remaining: asInt64(arr[1]),
		retry:     time.Duration(asInt64(arr[2])) * time.Millisecond,
	}, nil
}

// localBucket keeps one limiter per key and forgets keys idle for
// longer than the configured TTL.
type localBucket struct {
	cfg   config.RateLimitConfig
	limit rate.Limit

	mu      sync.Mutex
	keys    map[string]*localEntry
	lastGC  time.Time
	nowFunc func() time.Time
}

type localEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

func newLocalBucket(cfg config.RateLimitConfig) *localBucket {
	per := cfg.RefillInterval / time.Duration(cfg.RefillTokens)
	return &localBucket{
		cfg:     cfg,
		limit:   rate.Every(per),
		keys:    map[string]*localEntry{},
		nowFunc: time.Now,
	}
}

func (b *localBucket) take(_ echo.Context, key string) (verdict, error) {
	now := b.nowFunc()
	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.lastGC) > b.cfg.TTL {
		for k, e := range b.keys {
			if now.Sub(e.seen) > b.cfg.TTL {
				delete(b.keys, k)
			}
		}
		b.lastGC = now
	}
	e, ok := b.keys[key]
	if !ok {
		e = &localEntry{lim: rate.NewLimiter(b.limit, b.cfg.Capacity)}
		b.keys[key] = e
	}
	e.seen = now

	r := e.lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return verdict{retry: delay}, nil
	}
	return verdict{allowed: true, remaining: int64(e.lim.TokensAt(now))}, nil
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	parts := []string{cfg.Prefix}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	route := c.Request().Method + " " + c.Path()

	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "route":
		parts = append(parts, "route", route)
	case "ip_user":
		parts = append(parts, "ip", ip, "user", userID(c))
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", userID(c), "route", route)
	}
	return strings.Join(parts, ":")
}
