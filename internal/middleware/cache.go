package middleware

import (
    "bytes"
    "context"
    "crypto/sha1"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/rs/zerolog"

    "github.com/autoseers/carseer/internal/config"
)

// ResponseCache keeps successful GET responses per user in Redis.  Keys
// carry a per-user generation; Invalidate bumps it, so entries written
// before a change are never served again and simply expire.
type ResponseCache struct {
    cfg config.CacheConfig
    rdb *redis.Client
    log zerolog.Logger
}

// NewResponseCache returns a cache.  A nil rdb or a disabled config yields
// a cache whose middleware passes through and whose Invalidate is a no-op.
func NewResponseCache(cfg config.CacheConfig, rdb *redis.Client, log zerolog.Logger) *ResponseCache {
    return &ResponseCache{cfg: cfg, rdb: rdb, log: log}
}

func (rc *ResponseCache) active() bool { return rc.cfg.Enabled && rc.rdb != nil }

// cachedResponse is the stored form of a response.
type cachedResponse struct {
    Status      int    `json:"status"`
    ContentType string `json:"content_type"`
    Body        []byte `json:"body"`
}

func (rc *ResponseCache) generationKey(user string) string {
    return rc.cfg.Prefix + ":gen:" + user
}

// entryKey hashes the route and query so the key length stays bounded.
func (rc *ResponseCache) entryKey(user string, gen int64, c echo.Context) string {
    sum := sha1.Sum([]byte(c.Path() + "?" + c.Request().URL.RawQuery))
    return fmt.Sprintf("%s:user:%s:%d:%x", rc.cfg.Prefix, user, gen, sum[:])
}

func (rc *ResponseCache) generation(ctx context.Context, user string) (int64, error) {
    gen, err := rc.rdb.Get(ctx, rc.generationKey(user)).Int64()
    if errors.Is(err, redis.Nil) {
        return 0, nil
    }
    return gen, err
}

// Invalidate drops every cached response of user.
func (rc *ResponseCache) Invalidate(ctx context.Context, user string) error {
    if !rc.active() {
        return nil
    }
    return rc.rdb.Incr(ctx, rc.generationKey(user)).Err()
}

// boundedWriter forwards the response and keeps a copy of the body until
// it exceeds limit.
type boundedWriter struct {
    http.ResponseWriter
    status   int
    buf      bytes.Buffer
    limit    int
    overflow bool
}

func (w *boundedWriter) WriteHeader(code int) {
    w.status = code
    w.ResponseWriter.WriteHeader(code)
}

func (w *boundedWriter) Write(b []byte) (int, error) {
    if !w.overflow {
        if w.limit > 0 && w.buf.Len()+len(b) > w.limit {
            w.overflow = true
            w.buf.Reset()
        } else {
            w.buf.Write(b)
        }
    }
    return w.ResponseWriter.Write(b)
}

// Middleware serves hits and stores 200 responses on a miss.  Redis
// failures degrade to an uncached request.
func (rc *ResponseCache) Middleware() echo.MiddlewareFunc {
    if !rc.active() {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if c.Request().Method != http.MethodGet {
                return next(c)
            }
            ctx := c.Request().Context()
            user := userID(c)
            gen, err := rc.generation(ctx, user)
            if err != nil {
                rc.log.Warn().Err(err).Str("user_id", user).Msg("response cache unavailable")
                return next(c)
            }
            key := rc.entryKey(user, gen, c)

            if bs, err := rc.rdb.Get(ctx, key).Bytes(); err == nil {
                var hit cachedResponse
                if json.Unmarshal(bs, &hit) == nil {
                    c.Response().Header().Set("X-Cache", "HIT")
                    return c.Blob(hit.Status, hit.ContentType, hit.Body)
                }
            }

            w := &boundedWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: rc.cfg.MaxBodyBytes}
            c.Response().Writer = w
            c.Response().Header().Set("X-Cache", "MISS")
            if err := next(c); err != nil {
                return err
            }
            if w.status != http.StatusOK || w.overflow {
                return nil
            }

            payload, err := json.Marshal(cachedResponse{
                Status:      w.status,
                ContentType: c.Response().Header().Get(echo.HeaderContentType),
                Body:        w.buf.Bytes(),
            })
            if err == nil {
                err = rc.rdb.Set(context.WithoutCancel(ctx), key, payload, rc.cfg.TTL).Err()
            }
            if err != nil {
                rc.log.Warn().Err(err).Str("key", key).Msg("response cache write failed")
            }
            return nil
        }
    }
}
