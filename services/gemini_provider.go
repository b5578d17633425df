package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fenilmodi00/nepal-ipo-radar/config"
	"github.com/fenilmodi00/nepal-ipo-radar/models"
	"github.com/fenilmodi00/nepal-ipo-radar/shared"
	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

const geminiDefaultSummary = "No summary available."

// contentGenerator is the slice of the genai client the provider uses
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiProvider asks Gemini, grounded with Google Search, for a schema-constrained snapshot
type GeminiProvider struct {
	generator   contentGenerator
	settings    shared.ProviderConfig
	rateLimiter *shared.HTTPRequestRateLimiter
	parser      *SnapshotParser
	logger      *logrus.Entry
	now         func() time.Time
}

// NewGeminiProvider creates a Gemini-backed provider
func NewGeminiProvider(ctx context.Context, apiKey string, settings shared.ProviderConfig, factory *shared.HTTPClientFactory) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: factory.CreateOptimizedHTTPClient(settings.HTTPRequestTimeout),
	})
	if err != nil {
		return nil, shared.NewServiceError(shared.ErrorCategoryConfiguration, "CLIENT_INIT_FAILED",
			"failed to create Gemini client", config.ProviderGemini, "init", false, err)
	}
	return newGeminiProviderWithGenerator(client.Models, settings), nil
}

func newGeminiProviderWithGenerator(generator contentGenerator, settings shared.ProviderConfig) *GeminiProvider {
	return &GeminiProvider{
		generator:   generator,
		settings:    settings,
		rateLimiter: shared.NewHTTPRequestRateLimiter(settings.RequestRateLimit),
		parser:      NewSnapshotParser(),
		logger:      logrus.WithField("component", "GeminiProvider"),
		now:         time.Now,
	}
}

func (p *GeminiProvider) Name() string {
	return config.ProviderGemini
}

// FetchSnapshot runs one grounded generation and parses the structured answer
func (p *GeminiProvider) FetchSnapshot(ctx context.Context) (*models.MarketSnapshot, error) {
	startTime := time.Now()

	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, shared.NewProviderError("RATE_LIMITED", "market data request cancelled while rate limited", p.Name(), err)
	}

	generationConfig := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		Tools:             []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    marketSnapshotSchema(),
		Temperature:       genai.Ptr(p.settings.Temperature),
	}

	resp, err := p.generateWithRetry(ctx, genai.Text(buildMarketPrompt(p.now())), generationConfig)
	if err != nil {
		return nil, shared.NewProviderError(geminiErrorCode(err), "Gemini request failed", p.Name(), err)
	}

	text := ""
	if resp != nil {
		text = resp.Text()
	}
	if strings.TrimSpace(text) == "" {
		return nil, shared.NewProviderError("EMPTY_RESPONSE", "no data returned from Gemini", p.Name(), nil)
	}

	snapshot, err := p.parser.Parse(text, p.Name(), geminiDefaultSummary, p.now())
	if err != nil {
		return nil, shared.NewProviderError("MALFORMED_PAYLOAD", "Gemini response did not contain a market snapshot", p.Name(), err)
	}

	p.logger.WithFields(logrus.Fields{
		"candidates": len(snapshot.Records),
		"rejected":   snapshot.Rejected,
		"requests":   p.rateLimiter.GetRequestCount(),
		"duration":   time.Since(startTime),
	}).Info("Fetched market snapshot")

	return snapshot, nil
}

// generateWithRetry retries rate-limited and server-side failures with exponential backoff
func (p *GeminiProvider) generateWithRetry(ctx context.Context, contents []*genai.Content, generationConfig *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= p.settings.MaxRetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			p.logger.WithFields(logrus.Fields{
				"attempt":          attempt + 1,
				"backoff_duration": backoff,
				"error":            lastErr,
			}).Debug("Retrying Gemini request after backoff")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := p.generator.GenerateContent(ctx, p.settings.GeminiModel, contents, generationConfig)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil || !isRetryableGeminiError(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

func isRetryableGeminiError(err error) bool {
	if code, ok := geminiStatusCode(err); ok {
		return code == http.StatusTooManyRequests || code >= 500
	}
	return shared.IsRetryableError(err)
}

func geminiErrorCode(err error) string {
	if _, ok := geminiStatusCode(err); ok {
		return "HTTP_STATUS"
	}
	return "UNREACHABLE"
}

// geminiStatusCode extracts the HTTP status of an API error, returned by value or pointer
func geminiStatusCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}

// marketSnapshotSchema mirrors the wire document the parser expects
func marketSnapshotSchema() *genai.Schema {
	text := func(description string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: description}
	}
	number := func(description string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeNumber, Description: description}
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"newsSummary": text("One-sentence summary of Nepali primary market news"),
			"ipos": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"companyName":        text(""),
						"sector":             text(""),
						"shareType":          text("e.g. Foreign Employment, General Public, Project Affected Locals, Mutual Fund"),
						"units":              number("Total units offered"),
						"price":              number("Price per unit in NPR"),
						"openingDate":        text(""),
						"closingDate":        text(""),
						"status":             {Type: genai.TypeString, Enum: []string{"OPEN", "COMING_SOON", "CLOSED", "LISTED"}},
						"description":        text(""),
						"minUnits":           number(""),
						"maxUnits":           number(""),
						"rating":             text("Credit rating, e.g. ICRA NP BB"),
						"projectDescription": text(""),
						"risks":              text(""),
						"sourceUrl":          text(""),
					},
					Required: []string{"companyName", "shareType", "units", "price", "status"},
				},
			},
		},
		Required: []string{"ipos"},
	}
}
