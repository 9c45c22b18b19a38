package config // package config loads application configuration from environment variables

import (
    "fmt"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
    Env            string // application environment (e.g. "dev", "prod")
    Port           string // HTTP port to listen on
    DBUser         string
    DBPass         string // optional
    DBHost         string
    DBPort         string
    DBName         string
    DBMaxOpenConns int
    DBConnMaxLife  time.Duration
    JWTSecret      string // secret used to sign access tokens
    AccessTTLMin   int    // access token time-to-live in minutes
    RefreshTTLDays int    // refresh token time-to-live in days
    BcryptCost     int

    GeminiAPIKey  string // empty disables every AI feature
    GeminiModel   string
    GeminiBaseURL string
    GeminiTimeout time.Duration

    RecallBaseURL         string
    RecallTimeout         time.Duration
    RecallCacheTTL        time.Duration
    RecallAsyncEnrichment bool // publish recall.discovered instead of summarising inline

    RabbitURL string // empty disables the broker
}

// Load reads a .env file when one is present and then builds a Config from
// the environment.  Every missing or malformed required variable is
// reported in the returned error.
func Load() (Config, error) {
    _ = godotenv.Load() // a missing .env is fine; the environment wins anyway

    var l loader
    cfg := Config{
        Env:            l.must("APP_ENV"),
        Port:           l.must("APP_PORT"),
        DBUser:         l.must("DB_USER"),
        DBPass:         os.Getenv("DB_PASS"),
        DBHost:         l.must("DB_HOST"),
        DBPort:         l.must("DB_PORT"),
        DBName:         l.must("DB_NAME"),
        DBMaxOpenConns: envInt("DB_MAX_OPEN_CONNS", 20),
        DBConnMaxLife:  envDur("DB_CONN_MAX_LIFETIME", 5*time.Minute),
        JWTSecret:      l.must("JWT_SECRET"),
        AccessTTLMin:   l.mustInt("ACCESS_TOKEN_TTL_MIN"),
        RefreshTTLDays: l.mustInt("REFRESH_TOKEN_TTL_DAYS"),
        BcryptCost:     l.mustInt("BCRYPT_COST"),

        GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
        GeminiModel:   envStr("GEMINI_MODEL", "gemini-1.5-flash"),
        GeminiBaseURL: envStr("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
        GeminiTimeout: envDur("GEMINI_TIMEOUT", 30*time.Second),

        RecallBaseURL:         envStr("RECALL_BASE_URL", "https://api.nhtsa.gov"),
        RecallTimeout:         envDur("RECALL_TIMEOUT", 10*time.Second),
        RecallCacheTTL:        envDur("RECALL_CACHE_TTL", 6*time.Hour),
        RecallAsyncEnrichment: envBool("RECALL_ASYNC_ENRICHMENT", false),

        RabbitURL: os.Getenv("RABBITMQ_URL"),
    }
    if len(l.problems) > 0 {
        return Config{}, fmt.Errorf("config: %s", strings.Join(l.problems, "; "))
    }
    return cfg, nil
}

// loader collects problems so a misconfigured deployment sees all of them at once.
type loader struct{ problems []string }

// must retrieves the value of a required environment variable.
func (l *loader) must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        l.problems = append(l.problems, "missing required env var: "+key)
    }
    return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func (l *loader) mustInt(key string) int {
    s := l.must(key)
    if s == "" {
        return 0
    }
    n, err := strconv.Atoi(s)
    if err != nil {
        l.problems = append(l.problems, fmt.Sprintf("invalid int for %s: %q", key, s))
    }
    return n
}
