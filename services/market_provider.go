package services

import (
	"context"
	"time"

	"github.com/fenilmodi00/nepal-ipo-radar/config"
	"github.com/fenilmodi00/nepal-ipo-radar/models"
	"github.com/fenilmodi00/nepal-ipo-radar/shared"
	"github.com/sirupsen/logrus"
)

const missingKeySummary = "API key missing."

// MarketDataProvider fetches a point-in-time snapshot of the Nepali IPO market
type MarketDataProvider interface {
	FetchSnapshot(ctx context.Context) (*models.MarketSnapshot, error)
	Name() string
}

// NewMarketDataProvider selects the provider strategy once, from configuration and key shape.
// HTTP clients come from factory so the caller can release them on shutdown.
func NewMarketDataProvider(ctx context.Context, cfg *config.Config, factory *shared.HTTPClientFactory) (MarketDataProvider, error) {
	credentials := cfg.ResolveProvider()
	logger := logrus.WithFields(logrus.Fields{
		"component": "MarketDataProvider",
		"strategy":  credentials.Strategy,
	})

	switch credentials.Strategy {
	case config.ProviderOpenRouter:
		logger.WithField("model", cfg.Settings.Provider.OpenRouterModel).Info("Using OpenRouter chat-completion provider")
		return NewOpenRouterProvider(credentials.APIKey, cfg.Settings.Provider, factory), nil
	case config.ProviderGemini:
		logger.WithField("model", cfg.Settings.Provider.GeminiModel).Info("Using Gemini structured-output provider")
		return NewGeminiProvider(ctx, credentials.APIKey, cfg.Settings.Provider, factory)
	default:
		logger.Warn("No market data API key configured; scans will return empty snapshots")
		return NewUnconfiguredProvider(), nil
	}
}

// UnconfiguredProvider stands in when no credential is set.
// It returns an empty snapshot instead of failing, so the rest of the app keeps working.
type UnconfiguredProvider struct {
	now func() time.Time
}

// NewUnconfiguredProvider creates the no-credential provider
func NewUnconfiguredProvider() *UnconfiguredProvider {
	return &UnconfiguredProvider{now: time.Now}
}

func (p *UnconfiguredProvider) Name() string {
	return config.ProviderNone
}

// FetchSnapshot returns an empty snapshot explaining the missing key
func (p *UnconfiguredProvider) FetchSnapshot(ctx context.Context) (*models.MarketSnapshot, error) {
	return &models.MarketSnapshot{
		Records:    []models.IPORecord{},
		Summary:    missingKeySummary,
		CapturedAt: p.now(),
		Source:     p.Name(),
	}, nil
}
