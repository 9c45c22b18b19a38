package config

// Redis backs the rate limiter, the response cache and the recall lookup
// cache.  When the server cannot be reached at startup the constructor
// returns nil and callers run without those layers.

import (
    "context"
    "crypto/tls"
    "os"
    "time"

    "github.com/redis/go-redis/v9"
)

// RedisOptions builds client options from the environment:
//   REDIS_HOST and REDIS_PORT, or the REDIS_ADDR shorthand
//   REDIS_PASSWORD, REDIS_DB, REDIS_TLS
func RedisOptions() *redis.Options {
    addr := os.Getenv("REDIS_ADDR")
    if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
        addr = host + ":" + port
    }
    if addr == "" {
        addr = "localhost:6379"
    }
    var tlsConf *tls.Config
    if envBool("REDIS_TLS", false) {
        tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    return &redis.Options{
        Addr:      addr,
        Password:  os.Getenv("REDIS_PASSWORD"),
        DB:        envInt("REDIS_DB", 0),
        TLSConfig: tlsConf,
    }
}

// NewRedisClient connects with RedisOptions and pings the server.  The
// returned client is nil if the ping fails.
func NewRedisClient() *redis.Client {
    client := redis.NewClient(RedisOptions())
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil
    }
    return client
}
