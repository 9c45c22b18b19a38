package config

import "time"

// Bucket is one token bucket: Burst requests at once, then one more every
// Every.
type Bucket struct {
    Burst int
    Every time.Duration
}

// RateLimitConfig configures the Redis rate limiter.  Each route class has
// its own bucket:
//
//  Auth  – register, login and refresh, keyed by client IP.
//  API   – signed-in endpoints, keyed by subject.
//  Model – endpoints that call the generative model, keyed by subject.
type RateLimitConfig struct {
    Enabled bool
    Prefix  string
    Auth    Bucket
    API     Bucket
    Model   Bucket
    Debug   bool
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables.  Each bucket takes
// RATE_LIMIT_<CLASS>_BURST and RATE_LIMIT_<CLASS>_EVERY.
func LoadRateLimitConfig() RateLimitConfig {
    return RateLimitConfig{
        Enabled: envBool("RATE_LIMIT_ENABLED", true),
        Prefix:  envStr("RATE_LIMIT_PREFIX", "rl"),
        Auth:    loadBucket("AUTH", 10, 6*time.Second),
        API:     loadBucket("API", 60, time.Second),
        Model:   loadBucket("MODEL", 5, time.Minute),
        Debug:   envBool("RATE_LIMIT_DEBUG", false),
    }
}

func loadBucket(class string, burst int, every time.Duration) Bucket {
    b := Bucket{
        Burst: envInt("RATE_LIMIT_"+class+"_BURST", burst),
        Every: envDur("RATE_LIMIT_"+class+"_EVERY", every),
    }
    if b.Burst < 1 {
        b.Burst = 1
    }
    if b.Every <= 0 {
        b.Every = every
    }
    return b
}

// Idle is how long an untouched bucket takes to refill completely.  Keys
// are expired after that.
func (b Bucket) Idle() time.Duration {
    return time.Duration(b.Burst+1) * b.Every
}
