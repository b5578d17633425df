package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fenilmodi00/nepal-ipo-radar/config"
	"github.com/fenilmodi00/nepal-ipo-radar/models"
	"github.com/fenilmodi00/nepal-ipo-radar/shared"
	"github.com/sirupsen/logrus"
)

const (
	openRouterDefaultSummary = "Market data retrieved via OpenRouter."
	openRouterAppTitle       = "Nepal IPO Radar"
	maxCompletionBytes       = 4 * 1024 * 1024
)

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterRequest struct {
	Model       string              `json:"model"`
	Messages    []openRouterMessage `json:"messages"`
	Temperature float32             `json:"temperature"`
}

type openRouterResponse struct {
	Choices []struct {
		Message openRouterMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// OpenRouterProvider asks an online chat-completion model for the market snapshot.
// The model answers in free text, so the JSON is recovered from markdown fences.
type OpenRouterProvider struct {
	apiKey      string
	settings    shared.ProviderConfig
	httpClient  *http.Client
	rateLimiter *shared.HTTPRequestRateLimiter
	parser      *SnapshotParser
	logger      *logrus.Entry
	now         func() time.Time
}

// NewOpenRouterProvider creates an OpenRouter-backed provider
func NewOpenRouterProvider(apiKey string, settings shared.ProviderConfig, factory *shared.HTTPClientFactory) *OpenRouterProvider {
	return &OpenRouterProvider{
		apiKey:      apiKey,
		settings:    settings,
		httpClient:  factory.CreateOptimizedHTTPClient(settings.HTTPRequestTimeout),
		rateLimiter: shared.NewHTTPRequestRateLimiter(settings.RequestRateLimit),
		parser:      NewSnapshotParser(),
		logger:      logrus.WithField("component", "OpenRouterProvider"),
		now:         time.Now,
	}
}

func (p *OpenRouterProvider) Name() string {
	return config.ProviderOpenRouter
}

// FetchSnapshot runs one chat completion and parses the answer
func (p *OpenRouterProvider) FetchSnapshot(ctx context.Context) (*models.MarketSnapshot, error) {
	startTime := time.Now()

	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, shared.NewProviderError("RATE_LIMITED", "market data request cancelled while rate limited", p.Name(), err)
	}

	body, err := json.Marshal(openRouterRequest{
		Model: p.settings.OpenRouterModel,
		Messages: []openRouterMessage{
			{Role: "system", Content: systemInstruction},
			{Role: "user", Content: buildMarketPrompt(p.now()) + "\n" + marketResponseShape},
		},
		Temperature: p.settings.Temperature,
	})
	if err != nil {
		return nil, shared.NewProviderError("REQUEST_BUILD_FAILED", "failed to encode chat completion request", p.Name(), err)
	}

	endpoint := strings.TrimSuffix(p.settings.OpenRouterBaseURL, "/") + "/chat/completions"
	newRequest := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		shared.SetJSONRequestHeaders(req, p.apiKey)
		req.Header.Set("HTTP-Referer", p.settings.SiteURL)
		req.Header.Set("X-Title", openRouterAppTitle)
		return req, nil
	}

	resp, err := shared.ExecuteHTTPRequestWithRetry(ctx, p.httpClient, newRequest, p.settings.MaxRetryAttempts)
	if err != nil {
		return nil, shared.NewProviderError(upstreamErrorCode(err), "OpenRouter request failed", p.Name(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxCompletionBytes))
	if err != nil {
		return nil, shared.NewProviderError("READ_FAILED", "failed to read OpenRouter response", p.Name(), err)
	}

	var completion openRouterResponse
	if err := json.Unmarshal(raw, &completion); err != nil {
		return nil, shared.NewProviderError("MALFORMED_RESPONSE", "OpenRouter response is not valid JSON", p.Name(), err)
	}
	if completion.Error != nil {
		return nil, shared.NewProviderError("UPSTREAM_ERROR", "OpenRouter returned an error", p.Name(), errors.New(completion.Error.Message))
	}
	if len(completion.Choices) == 0 || strings.TrimSpace(completion.Choices[0].Message.Content) == "" {
		return nil, shared.NewProviderError("EMPTY_RESPONSE", "OpenRouter returned no completion", p.Name(), nil)
	}

	snapshot, err := p.parser.Parse(completion.Choices[0].Message.Content, p.Name(), openRouterDefaultSummary, p.now())
	if err != nil {
		return nil, shared.NewProviderError("MALFORMED_PAYLOAD", "OpenRouter completion did not contain a market snapshot", p.Name(), err)
	}

	p.logger.WithFields(logrus.Fields{
		"candidates": len(snapshot.Records),
		"rejected":   snapshot.Rejected,
		"requests":   p.rateLimiter.GetRequestCount(),
		"duration":   time.Since(startTime),
	}).Info("Fetched market snapshot")

	return snapshot, nil
}

// upstreamErrorCode classifies transport failures for the provider error code
func upstreamErrorCode(err error) string {
	var statusErr *shared.HTTPStatusError
	if errors.As(err, &statusErr) {
		return "HTTP_STATUS"
	}
	return "UNREACHABLE"
}
