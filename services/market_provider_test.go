package services

import (
	"context"
	"testing"
	"time"

	"github.com/fenilmodi00/nepal-ipo-radar/config"
	"github.com/fenilmodi00/nepal-ipo-radar/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMarketDataProviderSelectsStrategy(t *testing.T) {
	factory := shared.NewHTTPClientFactory(time.Second)
	defer factory.CleanupAllClients()

	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{"no key", config.Config{}, config.ProviderNone},
		{"openrouter key shape", config.Config{APIKey: "sk-or-v1-abc"}, config.ProviderOpenRouter},
		{"gemini key shape", config.Config{APIKey: "AIzaSyTest"}, config.ProviderGemini},
		{"forced provider without key", config.Config{MarketProvider: "openrouter", GeminiAPIKey: "AIzaSyTest"}, config.ProviderNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.Settings = shared.NewDefaultUnifiedConfiguration()

			provider, err := NewMarketDataProvider(context.Background(), &cfg, factory)
			require.NoError(t, err)
			assert.Equal(t, tt.want, provider.Name())
		})
	}
}

func TestUnconfiguredProviderReturnsEmptySnapshot(t *testing.T) {
	snapshot, err := NewUnconfiguredProvider().FetchSnapshot(context.Background())
	require.NoError(t, err)

	assert.NotNil(t, snapshot.Records)
	assert.Empty(t, snapshot.Records)
	assert.Equal(t, missingKeySummary, snapshot.Summary)
	assert.Equal(t, config.ProviderNone, snapshot.Source)
}
