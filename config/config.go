package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fenilmodi00/nepal-ipo-radar/shared"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Provider strategies selectable through MARKET_PROVIDER
const (
	ProviderAuto       = "auto"
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
	ProviderNone       = "none"
)

// openRouterKeyPrefix marks an OpenRouter credential when the provider is auto-detected
const openRouterKeyPrefix = "sk-or-"

type Config struct {
	ServerPort  string
	DatabaseURL string

	MarketProvider   string
	APIKey           string
	OpenRouterAPIKey string
	GeminiAPIKey     string

	SMTPUser            string
	SMTPPassword        string
	AlertRecipientEmail string

	Settings *shared.UnifiedConfiguration
}

// ProviderCredentials is the strategy and key chosen once at startup
type ProviderCredentials struct {
	Strategy string
	APIKey   string
}

// ResolveProvider picks the market data strategy from MARKET_PROVIDER and the key shape.
// It returns ProviderNone when no usable credential is configured.
func (c *Config) ResolveProvider() ProviderCredentials {
	switch strings.ToLower(strings.TrimSpace(c.MarketProvider)) {
	case ProviderOpenRouter:
		key := firstNonEmpty(c.OpenRouterAPIKey, c.APIKey)
		if key == "" {
			return ProviderCredentials{Strategy: ProviderNone}
		}
		return ProviderCredentials{Strategy: ProviderOpenRouter, APIKey: key}
	case ProviderGemini:
		key := firstNonEmpty(c.GeminiAPIKey, c.APIKey)
		if key == "" {
			return ProviderCredentials{Strategy: ProviderNone}
		}
		return ProviderCredentials{Strategy: ProviderGemini, APIKey: key}
	}

	if c.OpenRouterAPIKey != "" {
		return ProviderCredentials{Strategy: ProviderOpenRouter, APIKey: c.OpenRouterAPIKey}
	}
	if c.GeminiAPIKey != "" {
		return ProviderCredentials{Strategy: ProviderGemini, APIKey: c.GeminiAPIKey}
	}
	if c.APIKey == "" {
		return ProviderCredentials{Strategy: ProviderNone}
	}
	if strings.HasPrefix(c.APIKey, openRouterKeyPrefix) {
		return ProviderCredentials{Strategy: ProviderOpenRouter, APIKey: c.APIKey}
	}
	return ProviderCredentials{Strategy: ProviderGemini, APIKey: c.APIKey}
}

// EmailConfigured reports whether SMTP credentials and a recipient are present
func (c *Config) EmailConfigured() bool {
	return c.SMTPUser != "" && c.SMTPPassword != "" && c.AlertRecipientEmail != ""
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	settings := shared.NewDefaultUnifiedConfiguration()
	settings.Provider.OpenRouterBaseURL = getEnv("OPENROUTER_BASE_URL", settings.Provider.OpenRouterBaseURL)
	settings.Provider.OpenRouterModel = getEnv("OPENROUTER_MODEL", settings.Provider.OpenRouterModel)
	settings.Provider.GeminiModel = getEnv("GEMINI_MODEL", settings.Provider.GeminiModel)
	settings.Provider.SiteURL = getEnv("SITE_URL", settings.Provider.SiteURL)
	settings.Provider.MaxRetryAttempts = getEnvInt("PROVIDER_MAX_RETRIES", settings.Provider.MaxRetryAttempts)
	settings.Scan.Timeout = getEnvDuration("SCAN_TIMEOUT", settings.Scan.Timeout)
	settings.Scan.Interval = getEnvDuration("SCAN_INTERVAL", settings.Scan.Interval)
	settings.Cache.DefaultTTL = getEnvDuration("CACHE_TTL", settings.Cache.DefaultTTL)
	settings.Email.SMTPHost = getEnv("SMTP_HOST", settings.Email.SMTPHost)
	settings.Email.SMTPPort = getEnvInt("SMTP_PORT", settings.Email.SMTPPort)
	settings.Email.NotifySubscribers = getEnvBool("NOTIFY_SUBSCRIBERS", settings.Email.NotifySubscribers)
	settings.Logging.Level = getEnv("LOG_LEVEL", settings.Logging.Level)
	settings.Logging.Format = getEnv("LOG_FORMAT", settings.Logging.Format)
	settings.ValidateAndApplyDefaults()

	return &Config{
		ServerPort:          getEnv("SERVER_PORT", "8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		MarketProvider:      getEnv("MARKET_PROVIDER", ProviderAuto),
		APIKey:              getEnv("API_KEY", ""),
		OpenRouterAPIKey:    getEnv("OPENROUTER_API_KEY", ""),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		SMTPUser:            firstNonEmpty(getEnv("GMAIL_USER", ""), getEnv("SMTP_USER", "")),
		SMTPPassword:        firstNonEmpty(getEnv("GMAIL_APP_PASSWORD", ""), getEnv("SMTP_PASSWORD", "")),
		AlertRecipientEmail: getEnv("ALERT_RECIPIENT_EMAIL", ""),
		Settings:            settings,
	}
}

// ConfigureLogging applies level and format settings to the global logrus logger
func ConfigureLogging(settings shared.LoggingConfig) {
	level, err := logrus.ParseLevel(settings.Level)
	if err != nil {
		logrus.Warnf("Invalid LOG_LEVEL value: %s, using info", settings.Level)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(settings.Format, "text") {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %d", key, raw, fallback)
		return fallback
	}
	return value
}

func getEnvBool(key string, fallback bool) bool {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %t", key, raw, fallback)
		return fallback
	}
	return value
}

// getEnvDuration accepts Go durations ("90s", "15m") or a bare number of seconds
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %s", key, raw, fallback)
		return fallback
	}
	return value
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
