package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPolicyHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint string

	// PlatformDomain is the shared storefront domain; tenants route as {slug}.PlatformDomain.
	PlatformDomain string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis         RedisConfig
	RateLimit     RateLimitConfig
	Authorization AuthorizationConfig
	Verifier      VerifierConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type RateLimitConfig struct {
	Enabled          bool
	CouponApplyRate  float64
	CouponApplyBurst int
}

type AuthorizationConfig struct {
	Enabled bool
}

type VerifierConfig struct {
	Enabled       bool
	RunInterval   time.Duration
	RecheckAfter  time.Duration
	BatchSize     int
	LookupTimeout time.Duration
	TXTPrefix     string
	ResolverAddr  string
	LockTTL       time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:        getenv("APP_SERVICE", "storefront"),
		AppVersion:     getenv("APP_VERSION", "0.1.0"),
		Environment:    getenv("ENVIRONMENT", "development"),
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		NodeID:         getenvInt64("SNOWFLAKE_NODE_ID", 1),
		OTLPEndpoint:   getenv("OTLP_ENDPOINT", "localhost:4317"),
		PlatformDomain: normalizeDomain(getenv("PLATFORM_DOMAIN", "shops.localhost")),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "storefront"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "storefront.db"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},
		RateLimit: RateLimitConfig{
			Enabled:          getenvBool("RATE_LIMIT_ENABLED", true),
			CouponApplyRate:  getenvFloat("COUPON_APPLY_RATE", 5),
			CouponApplyBurst: int(getenvInt64("COUPON_APPLY_BURST", 10)),
		},
		Authorization: AuthorizationConfig{
			Enabled: getenvBool("AUTHORIZATION_ENABLED", true),
		},
		Verifier: VerifierConfig{
			Enabled:       getenvBool("VERIFIER_ENABLED", true),
			RunInterval:   getenvDuration("VERIFIER_INTERVAL", time.Minute),
			RecheckAfter:  getenvDuration("VERIFIER_RECHECK_AFTER", 6*time.Hour),
			BatchSize:     int(getenvInt64("VERIFIER_BATCH_SIZE", 100)),
			LookupTimeout: getenvDuration("VERIFIER_LOOKUP_TIMEOUT", 5*time.Second),
			TXTPrefix:     getenv("VERIFIER_TXT_PREFIX", "_storefront-verify"),
			ResolverAddr:  strings.TrimSpace(getenv("VERIFIER_RESOLVER_ADDR", "")),
			LockTTL:       getenvDuration("VERIFIER_LOCK_TTL", 2*time.Minute),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func normalizeDomain(raw string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), ".")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
