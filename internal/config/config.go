// AngelaMos | 2026
// config.go

package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App       AppConfig       `koanf:"app"`
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Store     StoreConfig     `koanf:"store"`
	JWT       JWTConfig       `koanf:"jwt"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Quota     QuotaConfig     `koanf:"quota"`
	Lifecycle LifecycleConfig `koanf:"lifecycle"`
	Outbox    OutboxConfig    `koanf:"outbox"`
	SMTP      SMTPConfig      `koanf:"smtp"`
	Stripe    StripeConfig    `koanf:"stripe"`
	CORS      CORSConfig      `koanf:"cors"`
	Log       LogConfig       `koanf:"log"`
	Otel      OtelConfig      `koanf:"otel"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Actions   ActionsConfig   `koanf:"actions"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
}

type RedisConfig struct {
	URL          string `koanf:"url"`
	PoolSize     int    `koanf:"pool_size"`
	MinIdleConns int    `koanf:"min_idle_conns"`
}

// StoreConfig bounds every call into the record store.
type StoreConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

type JWTConfig struct {
	PrivateKeyPath    string        `koanf:"private_key_path"`
	PublicKeyPath     string        `koanf:"public_key_path"`
	AccessTokenExpire time.Duration `koanf:"access_token_expire"`
	Issuer            string        `koanf:"issuer"`
	Audience          string        `koanf:"audience"`
}

type RateLimitConfig struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
	Burst    int           `koanf:"burst"`
}

type QuotaConfig struct {
	AnonymousBudget   int      `koanf:"anonymous_budget"`
	FingerprintSecret string   `koanf:"fingerprint_secret"`
	AdminAllowlist    []string `koanf:"admin_allowlist"`
}

type LifecycleConfig struct {
	InactivityAfter time.Duration `koanf:"inactivity_after"`
	DeletionGrace   time.Duration `koanf:"deletion_grace"`
}

type OutboxConfig struct {
	Enabled      bool          `koanf:"enabled"`
	PollInterval time.Duration `koanf:"poll_interval"`
	BatchSize    int           `koanf:"batch_size"`
	Workers      int           `koanf:"workers"`
	MaxAttempts  int           `koanf:"max_attempts"`
}

type SMTPConfig struct {
	Host       string        `koanf:"host"`
	Port       int           `koanf:"port"`
	Username   string        `koanf:"username"`
	Password   string        `koanf:"password"`
	From       string        `koanf:"from"`
	FromName   string        `koanf:"from_name"`
	UseSSL     bool          `koanf:"use_ssl"`
	AppName    string        `koanf:"app_name"`
	AppBaseURL string        `koanf:"app_base_url"`
	Timeout    time.Duration `koanf:"timeout"`
}

type StripeConfig struct {
	SecretKey     string            `koanf:"secret_key"`
	WebhookSecret string            `koanf:"webhook_secret"`
	FrontendURL   string            `koanf:"frontend_url"`
	PriceIDs      map[string]string `koanf:"price_ids"`
}

type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type OtelConfig struct {
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Enabled     bool    `koanf:"enabled"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// ActionsConfig points the gated proxy at the backend that performs billable
// actions. Empty disables the proxy.
type ActionsConfig struct {
	UpstreamURL string `koanf:"upstream_url"`
}

var (
	loadOnce sync.Once
	loaded   *Config
	loadErr  error
)

// Load reads the configuration once per process. Later calls return the
// first result, error included, whatever path they pass.
func Load(configPath string) (*Config, error) {
	loadOnce.Do(func() {
		loaded, loadErr = load(configPath)
	})
	return loaded, loadErr
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	c := &Config{}
	if err := k.Unmarshal("", c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	c.Quota.AdminAllowlist = normalizeAllowlist(c.Quota.AdminAllowlist)

	if err := validate(c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":        "legalquota",
		"app.version":     "1.0.0",
		"app.environment": "development",

		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "15s",

		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  "1h",
		"database.conn_max_idle_time": "30m",

		"redis.pool_size":      10,
		"redis.min_idle_conns": 5,

		"store.timeout": "3s",

		"jwt.access_token_expire": "15m",
		"jwt.issuer":              "legalquota",
		"jwt.audience":            "legalquota-api",
		"jwt.private_key_path":    "keys/private.pem",
		"jwt.public_key_path":     "keys/public.pem",

		"rate_limit.requests": 100,
		"rate_limit.window":   "1m",
		"rate_limit.burst":    20,

		"quota.anonymous_budget": 3,

		"lifecycle.inactivity_after": "4320h",
		"lifecycle.deletion_grace":   "168h",

		"outbox.enabled":       true,
		"outbox.poll_interval": "5s",
		"outbox.batch_size":    50,
		"outbox.workers":       4,
		"outbox.max_attempts":  8,

		"smtp.port":     587,
		"smtp.app_name": "legalquota",
		"smtp.timeout":  "10s",

		"cors.allowed_origins": []string{"http://localhost:3000"},
		"cors.allowed_methods": []string{
			"GET",
			"POST",
			"PUT",
			"PATCH",
			"DELETE",
			"OPTIONS",
		},
		"cors.allowed_headers": []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
			"X-Client-Fingerprint",
			"Idempotency-Key",
		},
		"cors.allow_credentials": true,
		"cors.max_age":           300,

		"log.level":  "info",
		"log.format": "json",

		"otel.enabled":      false,
		"otel.insecure":     true,
		"otel.sample_rate":  0.1,
		"otel.service_name": "legalquota",

		"metrics.enabled": true,
		"metrics.path":    "/metrics",
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

var envKeyMap = map[string]string{
	"DATABASE_URL":                "database.url",
	"REDIS_URL":                   "redis.url",
	"STORE_TIMEOUT":               "store.timeout",
	"ENVIRONMENT":                 "app.environment",
	"HOST":                        "server.host",
	"PORT":                        "server.port",
	"LOG_LEVEL":                   "log.level",
	"LOG_FORMAT":                  "log.format",
	"JWT_PRIVATE_KEY_PATH":        "jwt.private_key_path",
	"JWT_PUBLIC_KEY_PATH":         "jwt.public_key_path",
	"JWT_ACCESS_TOKEN_EXPIRE":     "jwt.access_token_expire",
	"JWT_ISSUER":                  "jwt.issuer",
	"JWT_AUDIENCE":                "jwt.audience",
	"RATE_LIMIT_REQUESTS":         "rate_limit.requests",
	"RATE_LIMIT_WINDOW":           "rate_limit.window",
	"RATE_LIMIT_BURST":            "rate_limit.burst",
	"ANONYMOUS_BUDGET":            "quota.anonymous_budget",
	"FINGERPRINT_SECRET":          "quota.fingerprint_secret",
	"INACTIVITY_AFTER":            "lifecycle.inactivity_after",
	"DELETION_GRACE":              "lifecycle.deletion_grace",
	"OUTBOX_ENABLED":              "outbox.enabled",
	"OUTBOX_POLL_INTERVAL":        "outbox.poll_interval",
	"SMTP_HOST":                   "smtp.host",
	"SMTP_PORT":                   "smtp.port",
	"SMTP_USERNAME":               "smtp.username",
	"SMTP_PASSWORD":               "smtp.password",
	"SMTP_FROM":                   "smtp.from",
	"SMTP_FROM_NAME":              "smtp.from_name",
	"SMTP_USE_SSL":                "smtp.use_ssl",
	"APP_BASE_URL":                "smtp.app_base_url",
	"STRIPE_SECRET_KEY":           "stripe.secret_key",
	"STRIPE_WEBHOOK_SECRET":       "stripe.webhook_secret",
	"STRIPE_FRONTEND_URL":         "stripe.frontend_url",
	"STRIPE_PRICE_BASIS":          "stripe.price_ids.basis",
	"STRIPE_PRICE_PROFESSIONAL":   "stripe.price_ids.professional",
	"STRIPE_PRICE_LAWYER":         "stripe.price_ids.lawyer",
	"OTEL_ENDPOINT":               "otel.endpoint",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "otel.endpoint",
	"OTEL_SERVICE_NAME":           "otel.service_name",
	"OTEL_ENABLED":                "otel.enabled",
	"OTEL_INSECURE":               "otel.insecure",
	"OTEL_SAMPLE_RATE":            "otel.sample_rate",
	"METRICS_ENABLED":             "metrics.enabled",
	"ACTIONS_UPSTREAM_URL":        "actions.upstream_url",
}

func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

func normalizeAllowlist(in []string) []string {
	out := make([]string, 0, len(in))
	for _, id := range in {
		id = strings.ToLower(strings.TrimSpace(id))
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

// validate reports every problem at once so a broken deployment is fixed
// in one pass.
func validate(c *Config) error {
	prod := c.IsProduction()

	rules := []struct {
		broken bool
		msg    string
	}{
		{c.Database.URL == "", "DATABASE_URL is required"},
		{c.Redis.URL == "", "REDIS_URL is required"},
		{c.JWT.PublicKeyPath == "", "JWT_PUBLIC_KEY_PATH is required"},
		{
			c.CORS.AllowCredentials && slices.Contains(c.CORS.AllowedOrigins, "*"),
			"CORS wildcard '*' cannot be used with AllowCredentials",
		},
		{prod && c.Otel.Enabled && c.Otel.Insecure, "OTEL_INSECURE must be false in production"},
		{prod && c.Quota.FingerprintSecret == "", "FINGERPRINT_SECRET is required in production"},
		{c.Server.ReadTimeout <= 0, "server.read_timeout must be positive"},
		{c.Server.WriteTimeout <= 0, "server.write_timeout must be positive"},
		{c.Store.Timeout <= 0, "store.timeout must be positive"},
		{c.Quota.AnonymousBudget < 0, "quota.anonymous_budget must not be negative"},
		{
			c.Lifecycle.InactivityAfter <= 0 || c.Lifecycle.DeletionGrace <= 0,
			"lifecycle durations must be positive",
		},
		{
			c.Outbox.Workers < 1 || c.Outbox.BatchSize < 1,
			"outbox.workers and outbox.batch_size must be at least 1",
		},
	}

	var errs []error
	for _, rule := range rules {
		if rule.broken {
			errs = append(errs, errors.New(rule.msg))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SMTPEnabled reports whether outbound email is configured at all.
func (s *SMTPConfig) SMTPEnabled() bool {
	return s.Host != "" && s.From != ""
}
