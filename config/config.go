package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config is read once at startup and handed to the services that need it.
type Config struct {
	Port    string
	GinMode string

	Razorpay RazorpayConfig

	DefaultCurrency string
	MaxOrderAmount  decimal.Decimal

	DBDriver           string
	DatabaseURL        string
	DatabaseServiceKey string

	JWTSecret string

	RedisAddr     string
	RedisPassword string
	OrderCacheTTL time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	PersistAttempts int
	PersistBackoff  time.Duration
	PersistTimeout  time.Duration

	ReconcileInterval time.Duration
	ReconcileGrace    time.Duration
	ReconcileBatch    int

	LogLevel  string
	LogFormat string
}

type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
	Timeout       time.Duration
}

// Load reads the configuration from the environment, loading .env first if it exists.
// Missing gateway secrets are not an error here; the services refuse to run
// without them at call time.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from the given lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	p := &parser{getenv: getenv}

	cfg := &Config{
		Port:    p.str("PORT", "8080"),
		GinMode: p.str("GIN_MODE", "debug"),
		Razorpay: RazorpayConfig{
			KeyID:         p.str("RAZORPAY_KEY_ID", ""),
			KeySecret:     p.str("RAZORPAY_KEY_SECRET", ""),
			WebhookSecret: p.str("RAZORPAY_WEBHOOK_SECRET", ""),
			BaseURL:       strings.TrimRight(p.str("RAZORPAY_BASE_URL", "https://api.razorpay.com"), "/"),
			Timeout:       p.duration("GATEWAY_TIMEOUT", 10*time.Second),
		},
		DefaultCurrency:    strings.ToUpper(p.str("DEFAULT_CURRENCY", "INR")),
		MaxOrderAmount:     p.decimal("MAX_ORDER_AMOUNT", decimal.NewFromInt(10000000)),
		DBDriver:           strings.ToLower(p.str("DB_DRIVER", "postgres")),
		DatabaseURL:        p.str("DATABASE_URL", ""),
		DatabaseServiceKey: p.str("DATABASE_SERVICE_KEY", ""),
		JWTSecret:          p.str("JWT_SECRET", ""),
		RedisAddr:          p.str("REDIS_ADDR", ""),
		RedisPassword:      p.str("REDIS_PASSWORD", ""),
		OrderCacheTTL:      p.duration("ORDER_CACHE_TTL", 2*time.Minute),
		RateLimitRPS:       p.float("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     p.int("RATE_LIMIT_BURST", 10),
		PersistAttempts:    p.int("PERSIST_ATTEMPTS", 3),
		PersistBackoff:     p.duration("PERSIST_BACKOFF", 200*time.Millisecond),
		PersistTimeout:     p.duration("PERSIST_TIMEOUT", 10*time.Second),
		ReconcileInterval:  p.duration("RECONCILE_INTERVAL", time.Minute),
		ReconcileGrace:     p.duration("RECONCILE_GRACE", 5*time.Minute),
		ReconcileBatch:     p.int("RECONCILE_BATCH", 50),
		LogLevel:           p.str("LOG_LEVEL", "info"),
		LogFormat:          p.str("LOG_FORMAT", "text"),
	}
	if p.err != nil {
		return nil, p.err
	}

	switch cfg.DBDriver {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("DB_DRIVER %q is not supported", cfg.DBDriver)
	}
	if cfg.PersistAttempts < 1 {
		return nil, fmt.Errorf("PERSIST_ATTEMPTS must be at least 1")
	}
	if cfg.MaxOrderAmount.IsNegative() {
		return nil, fmt.Errorf("MAX_ORDER_AMOUNT must not be negative")
	}
	return cfg, nil
}

// MissingSecrets lists required secrets that are not set, for the startup warning.
func (c *Config) MissingSecrets() []string {
	var missing []string
	if c.Razorpay.KeyID == "" {
		missing = append(missing, "RAZORPAY_KEY_ID")
	}
	if c.Razorpay.KeySecret == "" {
		missing = append(missing, "RAZORPAY_KEY_SECRET")
	}
	if c.Razorpay.WebhookSecret == "" {
		missing = append(missing, "RAZORPAY_WEBHOOK_SECRET")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	return missing
}

// DSN returns the datastore connection string with the service credential
// substituted as the password when one is configured.
func (c *Config) DSN() (string, error) {
	if c.DatabaseServiceKey == "" || c.DBDriver == "sqlite" {
		return c.DatabaseURL, nil
	}
	u, err := url.Parse(c.DatabaseURL)
	if err != nil || u.Scheme == "" {
		return "", fmt.Errorf("DATABASE_URL must be a URL when DATABASE_SERVICE_KEY is set")
	}
	user := "postgres"
	if u.User != nil && u.User.Username() != "" {
		user = u.User.Username()
	}
	u.User = url.UserPassword(user, c.DatabaseServiceKey)
	return u.String(), nil
}

type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d
}

func (p *parser) int(key string, def int) int {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: invalid number %q", key, v)
	}
	return f
}

func (p *parser) decimal(key string, def decimal.Decimal) decimal.Decimal {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: invalid amount %q", key, v)
	}
	return d
}
