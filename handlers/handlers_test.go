package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fenilmodi00/nepal-ipo-radar/database"
	"github.com/fenilmodi00/nepal-ipo-radar/models"
	"github.com/fenilmodi00/nepal-ipo-radar/services"
	"github.com/fenilmodi00/nepal-ipo-radar/shared"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Count   int             `json:"count"`
	Source  string          `json:"source"`
	Stale   bool            `json:"stale"`
}

type fakeCoordinator struct {
	outcome   models.ScanOutcome
	latest    *models.ScanOutcome
	runningID string
	started   bool
	scans     int
}

func (f *fakeCoordinator) Scan(ctx context.Context) models.ScanOutcome {
	f.scans++
	return f.outcome
}

func (f *fakeCoordinator) StartAsync() (string, bool) {
	return f.runningID, f.started
}

func (f *fakeCoordinator) Latest() (models.ScanOutcome, bool) {
	if f.latest == nil {
		return models.ScanOutcome{}, false
	}
	return *f.latest, true
}

func (f *fakeCoordinator) InProgress() (string, bool) {
	return f.runningID, f.runningID != ""
}

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error {
	return shared.NewStoreError("UNREACHABLE", "database unreachable", "ping", errors.New("connection refused"))
}

type testServer struct {
	app         *fiber.App
	store       *database.MemoryRecordStore
	cache       *services.CacheService
	coordinator *fakeCoordinator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := database.NewMemoryRecordStore()
	cache := services.NewCacheService(time.Minute, 10)
	records := services.NewRecordService(store, cache)
	coordinator := &fakeCoordinator{}

	ipoHandler := NewIPOHandler(records)
	scanHandler := NewScanHandler(coordinator)
	subscriberHandler := NewSubscriberHandler(services.NewSubscriberService(store))
	performanceHandler := NewPerformanceHandler(nil, store, cache, map[string]*shared.ServiceMetrics{
		"record_service": records.Metrics(),
	})

	app := fiber.New()
	app.Get("/health", performanceHandler.Health)
	api := app.Group("/api/v1")
	api.Get("/ipos", ipoHandler.GetIPOs)
	api.Get("/ipos/:id", ipoHandler.GetIPOByID)
	api.Post("/scan", scanHandler.TriggerScan)
	api.Get("/scan/latest", scanHandler.GetLatestScan)
	api.Post("/subscribers", subscriberHandler.Subscribe)
	api.Get("/metrics", performanceHandler.GetPerformanceMetrics)
	api.Delete("/cache", performanceHandler.ClearCache)

	return &testServer{app: app, store: store, cache: cache, coordinator: coordinator}
}

func (s *testServer) do(t *testing.T, method, target, body string) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (s *testServer) seed(t *testing.T, records ...models.IPORecord) {
	t.Helper()
	for _, record := range records {
		require.NoError(t, s.store.Upsert(context.Background(), record))
	}
}

func handlerRecord(company string, status models.IPOStatus) models.IPORecord {
	return models.IPORecord{
		CompanyName: company,
		ShareType:   models.DefaultShareType,
		Units:       100000,
		Price:       100,
		Status:      status,
	}
}

func TestGetIPOs(t *testing.T) {
	server := newTestServer(t)
	server.seed(t, handlerRecord("Alpha Hydropower", models.StatusOpen), handlerRecord("Beta Bank", models.StatusListed))

	status, env := server.do(t, http.MethodGet, "/api/v1/ipos", "")
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)
	assert.Equal(t, 2, env.Count)
	assert.Equal(t, services.SourceStore, env.Source)
	assert.False(t, env.Stale)

	status, env = server.do(t, http.MethodGet, "/api/v1/ipos?status=open", "")
	assert.Equal(t, http.StatusOK, status)
	var records []models.IPORecord
	require.NoError(t, json.Unmarshal(env.Data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "Alpha Hydropower", records[0].CompanyName)
	assert.Equal(t, services.SourceCache, env.Source)
}

func TestGetIPOsRejectsUnknownStatus(t *testing.T) {
	server := newTestServer(t)

	status, env := server.do(t, http.MethodGet, "/api/v1/ipos?status=withdrawn", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Error)
}

func TestGetIPOByID(t *testing.T) {
	server := newTestServer(t)
	server.seed(t, handlerRecord("Alpha Hydropower", models.StatusOpen))
	stored, err := server.store.ListAll(context.Background())
	require.NoError(t, err)

	status, env := server.do(t, http.MethodGet, "/api/v1/ipos/"+stored[0].ID.String(), "")
	assert.Equal(t, http.StatusOK, status)
	var record models.IPORecord
	require.NoError(t, json.Unmarshal(env.Data, &record))
	assert.Equal(t, stored[0].ID, record.ID)

	status, _ = server.do(t, http.MethodGet, "/api/v1/ipos/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = server.do(t, http.MethodGet, "/api/v1/ipos/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestTriggerScanAsync(t *testing.T) {
	server := newTestServer(t)
	server.coordinator.runningID = "scan-1"
	server.coordinator.started = true

	status, env := server.do(t, http.MethodPost, "/api/v1/scan", "")
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "Scan started", env.Message)

	var data struct {
		ScanID  string `json:"scan_id"`
		Started bool   `json:"started"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "scan-1", data.ScanID)
	assert.True(t, data.Started)

	server.coordinator.started = false
	status, env = server.do(t, http.MethodPost, "/api/v1/scan", "")
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "Scan already in progress", env.Message)
	assert.Zero(t, server.coordinator.scans)
}

func TestTriggerScanWait(t *testing.T) {
	server := newTestServer(t)
	server.coordinator.outcome = models.ScanOutcome{
		ScanID:    "scan-2",
		Summary:   "Busy week",
		ScanError: "[provider:TIMEOUT] market data scan exceeded its deadline",
		Stale:     true,
	}

	status, env := server.do(t, http.MethodPost, "/api/v1/scan?wait=true", "")
	assert.Equal(t, http.StatusOK, status)
	assert.False(t, env.Success)

	var outcome models.ScanOutcome
	require.NoError(t, json.Unmarshal(env.Data, &outcome))
	assert.Equal(t, "scan-2", outcome.ScanID)
	assert.True(t, outcome.Stale)
	assert.Equal(t, 1, server.coordinator.scans)
}

func TestGetLatestScan(t *testing.T) {
	server := newTestServer(t)

	status, env := server.do(t, http.MethodGet, "/api/v1/scan/latest", "")
	assert.Equal(t, http.StatusOK, status)
	var empty map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(env.Data, &empty))
	assert.Equal(t, "null", string(empty["outcome"]))
	assert.Equal(t, "false", string(empty["in_progress"]))

	server.coordinator.latest = &models.ScanOutcome{ScanID: "scan-3", HasNew: true}
	server.coordinator.runningID = "scan-4"

	_, env = server.do(t, http.MethodGet, "/api/v1/scan/latest", "")
	var data struct {
		InProgress    bool               `json:"in_progress"`
		RunningScanID string             `json:"running_scan_id"`
		Outcome       models.ScanOutcome `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.True(t, data.InProgress)
	assert.Equal(t, "scan-4", data.RunningScanID)
	assert.Equal(t, "scan-3", data.Outcome.ScanID)
}

func TestSubscribe(t *testing.T) {
	server := newTestServer(t)

	status, env := server.do(t, http.MethodPost, "/api/v1/subscribers", `{"email":" Ram@Example.com "}`)
	assert.Equal(t, http.StatusCreated, status)
	assert.True(t, env.Success)
	var subscriber models.Subscriber
	require.NoError(t, json.Unmarshal(env.Data, &subscriber))
	assert.Equal(t, "ram@example.com", subscriber.Email)

	status, env = server.do(t, http.MethodPost, "/api/v1/subscribers", `{"email":"ram@example.com"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.False(t, env.Success)

	status, env = server.do(t, http.MethodPost, "/api/v1/subscribers", `{"email":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Please provide a valid email address.", env.Error)

	status, env = server.do(t, http.MethodPost, "/api/v1/subscribers", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid request body", env.Error)

	subscribers, err := server.store.ListSubscribers(context.Background())
	require.NoError(t, err)
	assert.Len(t, subscribers, 1)
}

func TestHealth(t *testing.T) {
	server := newTestServer(t)

	resp, err := server.app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["store"])
}

func TestHealthDegradedWhenStoreUnreachable(t *testing.T) {
	handler := NewPerformanceHandler(nil, failingPinger{}, nil, nil)
	app := fiber.New()
	app.Get("/health", handler.Health)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "degraded", body["status"])
	assert.Contains(t, body["store"], "UNREACHABLE")
}

func TestMetricsAndClearCache(t *testing.T) {
	server := newTestServer(t)
	server.seed(t, handlerRecord("Alpha Hydropower", models.StatusOpen))
	server.do(t, http.MethodGet, "/api/v1/ipos", "")
	require.Equal(t, 1, server.cache.Size())

	status, env := server.do(t, http.MethodGet, "/api/v1/metrics", "")
	assert.Equal(t, http.StatusOK, status)
	var data map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Contains(t, data, "services")
	assert.Contains(t, data, "cache_stats")
	assert.Contains(t, data, "store_ping_ms")
	assert.NotContains(t, data, "database_stats")

	status, env = server.do(t, http.MethodDelete, "/api/v1/cache", "")
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)
	assert.Zero(t, server.cache.Size())
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{shared.NewServiceError(shared.ErrorCategoryValidation, "EMAIL_INVALID", "bad", "svc", "op", false, nil), http.StatusBadRequest},
		{shared.NewDuplicateError("exists", "insert_subscriber", nil), http.StatusConflict},
		{shared.NewStoreError("QUERY_FAILED", "down", "list_all", nil), http.StatusServiceUnavailable},
		{shared.NewProviderError("HTTP_STATUS", "upstream", "openrouter", nil), http.StatusBadGateway},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorStatus(tt.err), tt.err.Error())
	}
}
