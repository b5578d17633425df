package shared

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
)

// UnifiedConfiguration holds all non-secret tuning parameters for the application
type UnifiedConfiguration struct {
	Provider ProviderConfig `json:"provider"`
	Database DatabaseConfig `json:"database"`
	Scan     ScanConfig     `json:"scan"`
	Cache    CacheConfig    `json:"cache"`
	Email    EmailConfig    `json:"email"`
	Logging  LoggingConfig  `json:"logging"`
}

// ProviderConfig holds market data provider HTTP configuration
type ProviderConfig struct {
	OpenRouterBaseURL  string        `json:"openrouter_base_url"`
	OpenRouterModel    string        `json:"openrouter_model"`
	GeminiModel        string        `json:"gemini_model"`
	SiteURL            string        `json:"site_url"`
	HTTPRequestTimeout time.Duration `json:"http_timeout"`
	RequestRateLimit   time.Duration `json:"rate_limit"`
	MaxRetryAttempts   int           `json:"max_retries"`
	Temperature        float32       `json:"temperature"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	PingTimeout     time.Duration `json:"ping_timeout"`
	MaxRetries      int           `json:"max_retries"`
}

// ScanConfig bounds and schedules reconciliation scans
type ScanConfig struct {
	Timeout  time.Duration `json:"timeout"`
	Interval time.Duration `json:"interval"` // zero disables periodic scans
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	DefaultTTL time.Duration `json:"default_ttl"`
	MaxSize    int           `json:"max_size"`
}

// EmailConfig holds SMTP transport settings; credentials live in config.Config
type EmailConfig struct {
	SMTPHost          string        `json:"smtp_host"`
	SMTPPort          int           `json:"smtp_port"`
	SenderName        string        `json:"sender_name"`
	NotifySubscribers bool          `json:"notify_subscribers"`
	SendTimeout       time.Duration `json:"send_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level       string `json:"level"`
	Format      string `json:"format"`
	ServiceName string `json:"service_name"`
}

// NewDefaultUnifiedConfiguration returns production-ready default configuration
func NewDefaultUnifiedConfiguration() *UnifiedConfiguration {
	return &UnifiedConfiguration{
		Provider: ProviderConfig{
			OpenRouterBaseURL:  "https://openrouter.ai/api/v1",
			OpenRouterModel:    "perplexity/llama-3.1-sonar-large-128k-online",
			GeminiModel:        "gemini-3-flash-preview",
			SiteURL:            "https://nepal-ipo-radar.vercel.app",
			HTTPRequestTimeout: 60 * time.Second,
			RequestRateLimit:   2 * time.Second,
			MaxRetryAttempts:   2,
			Temperature:        0.1,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			PingTimeout:     5 * time.Second,
			MaxRetries:      3,
		},
		Scan: ScanConfig{
			Timeout:  90 * time.Second,
			Interval: 0,
		},
		Cache: CacheConfig{
			DefaultTTL: 5 * time.Minute,
			MaxSize:    100,
		},
		Email: EmailConfig{
			SMTPHost:          "smtp.gmail.com",
			SMTPPort:          587,
			SenderName:        "Nepal IPO Radar",
			NotifySubscribers: true,
			SendTimeout:       30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "nepal-ipo-radar",
		},
	}
}

// ValidateAndApplyDefaults validates configuration and applies defaults for invalid values
func (c *UnifiedConfiguration) ValidateAndApplyDefaults() {
	logger := logrus.WithField("component", "UnifiedConfiguration")
	defaults := NewDefaultUnifiedConfiguration()

	if c.Provider.OpenRouterBaseURL == "" {
		c.Provider.OpenRouterBaseURL = defaults.Provider.OpenRouterBaseURL
		logger.Debug("Applied default Provider.OpenRouterBaseURL")
	}
	if c.Provider.OpenRouterModel == "" {
		c.Provider.OpenRouterModel = defaults.Provider.OpenRouterModel
		logger.Debug("Applied default Provider.OpenRouterModel")
	}
	if c.Provider.GeminiModel == "" {
		c.Provider.GeminiModel = defaults.Provider.GeminiModel
		logger.Debug("Applied default Provider.GeminiModel")
	}
	if c.Provider.HTTPRequestTimeout <= 0 {
		c.Provider.HTTPRequestTimeout = defaults.Provider.HTTPRequestTimeout
		logger.Debug("Applied default Provider.HTTPRequestTimeout")
	}
	if c.Provider.RequestRateLimit < 0 {
		c.Provider.RequestRateLimit = defaults.Provider.RequestRateLimit
		logger.Debug("Applied default Provider.RequestRateLimit")
	}
	if c.Provider.MaxRetryAttempts < 0 {
		c.Provider.MaxRetryAttempts = defaults.Provider.MaxRetryAttempts
		logger.Debug("Applied default Provider.MaxRetryAttempts")
	}

	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = defaults.Database.MaxOpenConns
		logger.Debug("Applied default Database.MaxOpenConns")
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = defaults.Database.MaxIdleConns
		logger.Debug("Applied default Database.MaxIdleConns")
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = defaults.Database.ConnMaxLifetime
		logger.Debug("Applied default Database.ConnMaxLifetime")
	}
	if c.Database.PingTimeout <= 0 {
		c.Database.PingTimeout = defaults.Database.PingTimeout
		logger.Debug("Applied default Database.PingTimeout")
	}

	if c.Scan.Timeout <= 0 {
		c.Scan.Timeout = defaults.Scan.Timeout
		logger.Debug("Applied default Scan.Timeout")
	}
	if c.Scan.Interval < 0 {
		c.Scan.Interval = 0
		logger.Debug("Disabled negative Scan.Interval")
	}

	if c.Cache.DefaultTTL <= 0 {
		c.Cache.DefaultTTL = defaults.Cache.DefaultTTL
		logger.Debug("Applied default Cache.DefaultTTL")
	}
	if c.Cache.MaxSize <= 0 {
		c.Cache.MaxSize = defaults.Cache.MaxSize
		logger.Debug("Applied default Cache.MaxSize")
	}

	if c.Email.SMTPHost == "" {
		c.Email.SMTPHost = defaults.Email.SMTPHost
		logger.Debug("Applied default Email.SMTPHost")
	}
	if c.Email.SMTPPort <= 0 {
		c.Email.SMTPPort = defaults.Email.SMTPPort
		logger.Debug("Applied default Email.SMTPPort")
	}
	if c.Email.SenderName == "" {
		c.Email.SenderName = defaults.Email.SenderName
	}
	if c.Email.SendTimeout <= 0 {
		c.Email.SendTimeout = defaults.Email.SendTimeout
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
		logger.Debug("Applied default Logging.Level")
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
		logger.Debug("Applied default Logging.Format")
	}
	if c.Logging.ServiceName == "" {
		c.Logging.ServiceName = defaults.Logging.ServiceName
	}
}

// ToJSON serializes the configuration to JSON
func (c *UnifiedConfiguration) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
