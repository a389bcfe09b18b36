package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"reqforge/internal/entities"
)

// Config holds all process configuration. It is resolved once at startup;
// nothing re-reads the environment afterwards.
type Config struct {
	AppEnv   string `mapstructure:"APP_ENV" validate:"required,oneof=development staging production test"`
	HTTPAddr string `mapstructure:"HTTP_ADDR" validate:"required,hostname_port"`
	AppURL   string `mapstructure:"APP_URL" validate:"omitempty,url"`

	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"required,oneof=debug info warn error"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"required,oneof=json console"`

	DatabaseURL string `mapstructure:"DATABASE_URL" validate:"required"`

	JWTSecret string `mapstructure:"JWT_SECRET" validate:"required"`

	OpenAIAPIKey string `mapstructure:"OPENAI_API_KEY" validate:"required"`
	OpenAIModel  string `mapstructure:"OPENAI_MODEL" validate:"required"`

	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	StripePriceBasic    string `mapstructure:"STRIPE_PRICE_BASIC"`
	StripePricePro      string `mapstructure:"STRIPE_PRICE_PRO"`
	StripePriceTeam     string `mapstructure:"STRIPE_PRICE_TEAM"`

	// Optional shared rate-limit counter. Both empty is a valid state and
	// means the in-process fallback limiter serves alone.
	RedisRestURL   string `mapstructure:"REDIS_REST_URL" validate:"omitempty,url"`
	RedisRestToken string `mapstructure:"REDIS_REST_TOKEN"`

	SubscriptionBypass     string `mapstructure:"SUBSCRIPTION_BYPASS"`
	SubscriptionBypassTier string `mapstructure:"SUBSCRIPTION_BYPASS_TIER"`

	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT" validate:"required"`

	// EntitlementBypassTier is resolved from the SUBSCRIPTION_BYPASS flags at
	// load time. Empty means no bypass. Never set in production.
	EntitlementBypassTier entities.SubscriptionTier `mapstructure:"-"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

var configKeys = []string{
	"APP_ENV",
	"HTTP_ADDR",
	"APP_URL",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"DATABASE_URL",
	"JWT_SECRET",
	"OPENAI_API_KEY",
	"OPENAI_MODEL",
	"STRIPE_SECRET_KEY",
	"STRIPE_WEBHOOK_SECRET",
	"STRIPE_PRICE_BASIC",
	"STRIPE_PRICE_PRO",
	"STRIPE_PRICE_TEAM",
	"REDIS_REST_URL",
	"REDIS_REST_TOKEN",
	"SUBSCRIPTION_BYPASS",
	"SUBSCRIPTION_BYPASS_TIER",
	"SHUTDOWN_TIMEOUT",
}

// Load reads .env files if present, binds environment variables, applies
// defaults, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", "0.0.0.0:8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")

	for _, key := range configKeys {
		_ = v.BindEnv(key)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}

	if s := v.GetString("SHUTDOWN_TIMEOUT"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
		}
		c.ShutdownTimeout = d
	}

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c.EntitlementBypassTier = resolveBypassTier(c.AppEnv, c.SubscriptionBypass, c.SubscriptionBypassTier)

	return &c, nil
}

// MustLoad loads configuration or exits the process on failure.
func MustLoad() *Config {
	c, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return c
}

func (c *Config) Production() bool {
	return c.AppEnv == "production"
}

// RemoteCounterConfigured reports whether the shared rate-limit counter has
// both a URL and a token. Absence is a valid state, not an error.
func (c *Config) RemoteCounterConfigured() bool {
	return c.RedisRestURL != "" && c.RedisRestToken != ""
}

// BaseURL returns the externally visible app URL used in checkout redirects
// and origin checks.
func (c *Config) BaseURL() string {
	if c.AppURL != "" {
		return c.AppURL
	}
	return "http://localhost:8080"
}

func resolveBypassTier(appEnv, flag, rawTier string) entities.SubscriptionTier {
	if appEnv == "production" {
		return ""
	}
	switch strings.ToLower(strings.TrimSpace(flag)) {
	case "1", "true", "yes", "on":
	default:
		return ""
	}
	if tier, ok := entities.ParseSubscriptionTier(strings.ToUpper(strings.TrimSpace(rawTier))); ok {
		return tier
	}
	return entities.TierBasic
}
