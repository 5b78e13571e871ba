package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	PublicBaseURL  string        `yaml:"public_base_url"` // used to build gateway notify URLs
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// VerifyRateLimit caps POST /api/payments/verify calls per user per minute.
	VerifyRateLimit int `yaml:"verify_rate_limit"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // catalog cache entries
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type OrangeMoneyConfig struct {
	BaseURL      string `yaml:"base_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	MerchantKey  string `yaml:"merchant_key"`
}

type SamaMoneyConfig struct {
	BaseURL    string `yaml:"base_url"`
	MerchantID string `yaml:"merchant_id"`
	PublicKey  string `yaml:"public_key"`
	SecretKey  string `yaml:"secret_key"`
}

type CinetPayConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	SiteID    string `yaml:"site_id"`
	SecretKey string `yaml:"secret_key"` // HMAC key for x-token notifications
}

type PaymentConfig struct {
	Currency      string            `yaml:"currency"`
	ReturnURL     string            `yaml:"return_url"`
	HTTPTimeout   time.Duration     `yaml:"http_timeout"`
	VerifyLockTTL time.Duration     `yaml:"verify_lock_ttl"`
	EnableNoop    bool              `yaml:"enable_noop"` // dev only
	OrangeMoney   OrangeMoneyConfig `yaml:"orange_money"`
	SamaMoney     SamaMoneyConfig   `yaml:"sama_money"`
	CinetPay      CinetPayConfig    `yaml:"cinetpay"`
}

type SubscriptionConfig struct {
	// PendingTTL cancels pending subscriptions without a completed payment after
	// this long. Zero disables the reaper.
	PendingTTL time.Duration `yaml:"pending_ttl"`
}

type SchedulerConfig struct {
	ReconcileCron      string        `yaml:"reconcile_cron"`
	ReconcileOlderThan time.Duration `yaml:"reconcile_older_than"`
	ReconcileBatch     int           `yaml:"reconcile_batch"`
	CardExpiryCron     string        `yaml:"card_expiry_cron"`
	StalePendingCron   string        `yaml:"stale_pending_cron"`
	Workers            int           `yaml:"workers"`
}

type SecurityConfig struct {
	CardSigningKey string `yaml:"card_signing_key"`
}

type EventsConfig struct {
	AMQPURL  string `yaml:"amqp_url"` // empty disables publishing
	Exchange string `yaml:"exchange"`
}

type Config struct {
	Server        ServerConfig       `yaml:"server"`
	Log           LogConfig          `yaml:"log"`
	Database      DatabaseConfig     `yaml:"database"`
	Redis         RedisConfig        `yaml:"redis"`
	Auth          AuthConfig         `yaml:"auth"`
	Payment       PaymentConfig      `yaml:"payment"`
	Subscriptions SubscriptionConfig `yaml:"subscriptions"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Security      SecurityConfig     `yaml:"security"`
	Events        EventsConfig       `yaml:"events"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, overlays a .env file next to the
// working directory when present and applies environment overrides for secrets.
func LoadConfig(path string, dev bool) (*Config, error) {
	// A missing .env is normal in production.
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	str("DATABASE_URL", &cfg.Database.URL)
	str("REDIS_URL", &cfg.Redis.URL)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	str("JWT_SECRET", &cfg.Auth.JWTSecret)
	str("CARD_SIGNING_KEY", &cfg.Security.CardSigningKey)
	str("AMQP_URL", &cfg.Events.AMQPURL)
	str("ORANGE_MONEY_CLIENT_ID", &cfg.Payment.OrangeMoney.ClientID)
	str("ORANGE_MONEY_CLIENT_SECRET", &cfg.Payment.OrangeMoney.ClientSecret)
	str("ORANGE_MONEY_MERCHANT_KEY", &cfg.Payment.OrangeMoney.MerchantKey)
	str("SAMA_MONEY_MERCHANT_ID", &cfg.Payment.SamaMoney.MerchantID)
	str("SAMA_MONEY_PUBLIC_KEY", &cfg.Payment.SamaMoney.PublicKey)
	str("SAMA_MONEY_SECRET_KEY", &cfg.Payment.SamaMoney.SecretKey)
	str("CINETPAY_API_KEY", &cfg.Payment.CinetPay.APIKey)
	str("CINETPAY_SITE_ID", &cfg.Payment.CinetPay.SiteID)
	str("CINETPAY_SECRET_KEY", &cfg.Payment.CinetPay.SecretKey)
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
	if cfg.Server.VerifyRateLimit <= 0 {
		cfg.Server.VerifyRateLimit = 30
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "elverra"
	}
	if cfg.Payment.Currency == "" {
		cfg.Payment.Currency = "XOF"
	}
	if cfg.Payment.HTTPTimeout <= 0 {
		cfg.Payment.HTTPTimeout = 30 * time.Second
	}
	if cfg.Payment.VerifyLockTTL <= 0 {
		cfg.Payment.VerifyLockTTL = 30 * time.Second
	}
	if cfg.Payment.OrangeMoney.BaseURL == "" {
		cfg.Payment.OrangeMoney.BaseURL = "https://api.orange.com"
	}
	if cfg.Payment.SamaMoney.BaseURL == "" {
		cfg.Payment.SamaMoney.BaseURL = "https://smarchand.sama.money/V1"
	}
	if cfg.Payment.CinetPay.BaseURL == "" {
		cfg.Payment.CinetPay.BaseURL = "https://api-checkout.cinetpay.com/v2"
	}
	if cfg.Scheduler.ReconcileCron == "" {
		cfg.Scheduler.ReconcileCron = "@every 2m"
	}
	if cfg.Scheduler.ReconcileOlderThan <= 0 {
		cfg.Scheduler.ReconcileOlderThan = 2 * time.Minute
	}
	if cfg.Scheduler.ReconcileBatch <= 0 {
		cfg.Scheduler.ReconcileBatch = 100
	}
	if cfg.Scheduler.CardExpiryCron == "" {
		cfg.Scheduler.CardExpiryCron = "@hourly"
	}
	if cfg.Scheduler.StalePendingCron == "" {
		cfg.Scheduler.StalePendingCron = "@every 15m"
	}
	if cfg.Scheduler.Workers <= 0 {
		cfg.Scheduler.Workers = 4
	}
	if cfg.Events.Exchange == "" {
		cfg.Events.Exchange = "membership_events"
	}
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return errors.New("auth.jwt_secret must be at least 32 bytes")
	}
	if len(c.Security.CardSigningKey) < 32 {
		return errors.New("security.card_signing_key must be at least 32 bytes")
	}
	if c.Subscriptions.PendingTTL < 0 {
		return errors.New("subscriptions.pending_ttl must not be negative")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
