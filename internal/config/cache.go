package config

import "time"

// CacheConfig configures the per-user response cache in front of the
// recommendation endpoint.  Caching is off when Enabled is false or no Redis
// client is configured.  Responses larger than MaxBodyBytes are served but
// not stored.
type CacheConfig struct {
    Enabled      bool
    TTL          time.Duration
    Prefix       string
    MaxBodyBytes int
}

// LoadCacheConfig reads CACHE_* variables.
func LoadCacheConfig() CacheConfig {
    cfg := CacheConfig{
        Enabled:      envBool("CACHE_ENABLED", true),
        TTL:          envDur("CACHE_TTL", 12*time.Hour),
        Prefix:       envStr("CACHE_PREFIX", "cache"),
        MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 256<<10),
    }
    if cfg.TTL <= 0 {
        cfg.TTL = 12 * time.Hour
    }
    return cfg
}
