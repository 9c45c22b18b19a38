package middleware

import (
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/rs/zerolog"

    "github.com/autoseers/carseer/internal/config"
)

// takeScript refills the bucket continuously and takes one token.  It runs
// atomically so replicas sharing Redis agree on the count.
//
// KEYS[1] bucket key; ARGV: now_ms, burst, every_ms, idle_ms.
// Returns {allowed, remaining, wait_ms}.
var takeScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local every = tonumber(ARGV[3])
local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1]) or burst
local ts = tonumber(state[2]) or now
tokens = math.min(burst, tokens + math.max(0, now - ts) / every)
local allowed, wait = 0, 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  wait = math.ceil((1 - tokens) * every)
end
redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', now)
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return {allowed, math.floor(tokens), wait}
`)

// Limiter hands out rate limiting middleware backed by Redis.  With no
// client, or when disabled, every middleware passes requests through.
// Redis errors let the request through as well.
type Limiter struct {
    cfg config.RateLimitConfig
    rdb *redis.Client
    log zerolog.Logger
    now func() time.Time
}

func NewLimiter(cfg config.RateLimitConfig, rdb *redis.Client, log zerolog.Logger) *Limiter {
    return &Limiter{cfg: cfg, rdb: rdb, log: log, now: time.Now}
}

// PerIP limits each client address.  Use it where no identity exists yet.
func (l *Limiter) PerIP(class string, b config.Bucket) echo.MiddlewareFunc {
    return l.limit(class, b, func(c echo.Context) string {
        ip := c.RealIP()
        if ip == "" {
            ip = "unknown"
        }
        return "ip:" + ip
    })
}

// PerUser limits each verified subject.  It must run after Auth.
func (l *Limiter) PerUser(class string, b config.Bucket) echo.MiddlewareFunc {
    return l.limit(class, b, func(c echo.Context) string { return "user:" + userID(c) })
}

func (l *Limiter) key(class, who string) string {
    return l.cfg.Prefix + ":" + class + ":" + who
}

func (l *Limiter) limit(class string, b config.Bucket, who func(echo.Context) string) echo.MiddlewareFunc {
    if !l.cfg.Enabled || l.rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := l.key(class, who(c))
            res, err := takeScript.Run(c.Request().Context(), l.rdb, []string{key},
                l.now().UnixMilli(), b.Burst, b.Every.Milliseconds(), b.Idle().Milliseconds()).Int64Slice()
            if err != nil || len(res) != 3 {
                l.log.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
                return next(c)
            }
            allowed, remaining, waitMs := res[0] == 1, res[1], res[2]

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.Itoa(b.Burst))
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
            if l.cfg.Debug {
                h.Set("X-RateLimit-Key", key)
            }
            if allowed {
                return next(c)
            }

            secs := retryAfter(waitMs)
            h.Set("Retry-After", strconv.Itoa(secs))
            if l.cfg.Debug {
                l.log.Debug().Str("key", key).Int64("wait_ms", waitMs).Msg("rate limited")
            }
            return c.JSON(http.StatusTooManyRequests, echo.Map{
                "failure":     "rate limit exceeded",
                "retry_after": secs,
            })
        }
    }
}

// retryAfter rounds a wait up to whole seconds, at least one.
func retryAfter(waitMs int64) int {
    secs := int((waitMs + 999) / 1000)
    if secs < 1 {
        secs = 1
    }
    return secs
}
