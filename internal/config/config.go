package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DiscordToken   string
	DiscordGuildID string
	AdminUserIDs   []string

	LogLevel   string
	ServerAddr string

	StoreBackend  string
	DataDir       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PostgresDSN   string

	PaymentProvider string
	PaymentAmount   string
	PaymentCurrency string
	ReturnURL       string
	CancelURL       string

	PayPalClientID      string
	PayPalClientSecret  string
	PayPalMode          string
	PayPalWebhookID     string
	PayPalSkipVerify    bool
	StripeSecretKey     string
	StripeWebhookSecret string
	ProviderRatePerSec  float64
	WebhookRatePerSec   float64

	PremiumRoleID string
	SponsorRoleID string
	DemoQuota     int

	PollInterval    time.Duration
	PollMaxChecks   int
	PollMaxNotFound int

	FeatureAPIKey     string
	FeatureChatURL    string
	FeatureSpeakURL   string
	FeatureImagineURL string
	FeatureLipsyncURL string
	FeatureTimeout    time.Duration

	TelegramAlertToken  string
	TelegramAlertChatID int64
}

var ErrMissingDiscordToken = errors.New("DISCORD_TOKEN is not set")

// Load reads config.env and .env when present, then the process environment.
// Values already in the environment win.
func Load() Config {
	for _, f := range []string{"config.env", ".env"} {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}

	return Config{
		DiscordToken:   env("DISCORD_TOKEN", ""),
		DiscordGuildID: env("DISCORD_GUILD_ID", ""),
		AdminUserIDs:   envList("ADMIN_USER_IDS"),

		LogLevel:   env("LOG_LEVEL", "info"),
		ServerAddr: env("SERVER_ADDR", ":3000"),

		StoreBackend:  strings.ToLower(env("STORE_BACKEND", "json")),
		DataDir:       env("DATA_DIR", "data"),
		RedisAddr:     env("REDIS_HOST", "localhost") + ":" + env("REDIS_PORT", "6379"),
		RedisPassword: env("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),
		PostgresDSN:   env("POSTGRES_DSN", ""),

		PaymentProvider: strings.ToLower(env("PAYMENT_PROVIDER", "paypal")),
		PaymentAmount:   env("PAYMENT_AMOUNT", "25.00"),
		PaymentCurrency: strings.ToUpper(env("PAYMENT_CURRENCY", "USD")),
		ReturnURL:       env("PAYMENT_RETURN_URL", "https://discord.com/channels/@me"),
		CancelURL:       env("PAYMENT_CANCEL_URL", "https://discord.com/channels/@me"),

		PayPalClientID:      env("PAYPAL_CLIENT_ID", ""),
		PayPalClientSecret:  env("PAYPAL_CLIENT_SECRET", ""),
		PayPalMode:          strings.ToLower(env("PAYPAL_MODE", "sandbox")),
		PayPalWebhookID:     env("PAYPAL_WEBHOOK_ID", ""),
		PayPalSkipVerify:    envBool("PAYPAL_WEBHOOK_SKIP_VERIFY", false),
		StripeSecretKey:     env("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: env("STRIPE_WEBHOOK_SECRET", ""),
		ProviderRatePerSec:  envFloat("PROVIDER_RATE_PER_SEC", 5),
		WebhookRatePerSec:   envFloat("WEBHOOK_RATE_PER_SEC", 20),

		PremiumRoleID: env("PREMIUM_ROLE_ID", ""),
		SponsorRoleID: env("SPONSOR_ROLE_ID", ""),
		DemoQuota:     envInt("DEMO_QUOTA", 3),

		PollInterval:    envDuration("POLL_INTERVAL", 60*time.Second),
		PollMaxChecks:   envInt("POLL_MAX_CHECKS", 1440),
		PollMaxNotFound: envInt("POLL_MAX_NOT_FOUND", 10),

		FeatureAPIKey:     env("FEATURE_API_KEY", ""),
		FeatureChatURL:    env("FEATURE_CHAT_URL", ""),
		FeatureSpeakURL:   env("FEATURE_SPEAK_URL", ""),
		FeatureImagineURL: env("FEATURE_IMAGINE_URL", ""),
		FeatureLipsyncURL: env("FEATURE_LIPSYNC_URL", ""),
		FeatureTimeout:    envDuration("FEATURE_TIMEOUT", 2*time.Minute),

		TelegramAlertToken:  env("TELEGRAM_ALERT_TOKEN", ""),
		TelegramAlertChatID: envInt64("TELEGRAM_ALERT_CHAT_ID", 0),
	}
}

// Validate reports settings without which the bot cannot start.
// Provider credentials are checked where they are used.
func (c Config) Validate() error {
	if c.DiscordToken == "" {
		return ErrMissingDiscordToken
	}
	return nil
}

func (c Config) PayPalConfigured() bool {
	return c.PayPalClientID != "" && c.PayPalClientSecret != ""
}

func (c Config) IsAdmin(userID string) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

func envList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
