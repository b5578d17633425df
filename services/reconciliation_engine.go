package services

import (
	"context"
	"time"

	"github.com/fenilmodi00/nepal-ipo-radar/models"
	"github.com/fenilmodi00/nepal-ipo-radar/shared"
	"github.com/sirupsen/logrus"
)

const (
	finalReadTimeout = 10 * time.Second
	maxSampleErrors  = 3
)

type scanIDKey struct{}

// WithScanID tags ctx with the id of the scan it belongs to
func WithScanID(ctx context.Context, scanID string) context.Context {
	return context.WithValue(ctx, scanIDKey{}, scanID)
}

// ScanIDFromContext returns the scan id set by WithScanID, or ""
func ScanIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(scanIDKey{}).(string)
	return id
}

// ReconciliationEngine merges a provider snapshot into the record store.
// It never calls the notifier; callers decide on alerts from the result.
type ReconciliationEngine struct {
	provider        MarketDataProvider
	store           RecordStore
	auditLogger     *RecordAuditLogger
	metrics         *shared.ServiceMetrics
	providerMetrics *shared.ServiceMetrics
	logger          *logrus.Entry
}

// NewReconciliationEngine creates an engine over a provider and a store
func NewReconciliationEngine(provider MarketDataProvider, store RecordStore) *ReconciliationEngine {
	return &ReconciliationEngine{
		provider:        provider,
		store:           store,
		auditLogger:     NewRecordAuditLogger(),
		metrics:         shared.NewServiceMetrics("reconciliation_engine"),
		providerMetrics: shared.NewServiceMetrics("market_data_provider"),
		logger:          logrus.WithField("component", "ReconciliationEngine"),
	}
}

// Metrics returns scan-level metrics
func (e *ReconciliationEngine) Metrics() *shared.ServiceMetrics {
	return e.metrics
}

// ProviderName names the market data source
func (e *ReconciliationEngine) ProviderName() string {
	return e.provider.Name()
}

// ProviderMetrics returns snapshot fetch metrics
func (e *ReconciliationEngine) ProviderMetrics() *shared.ServiceMetrics {
	return e.providerMetrics
}

// RunScan fetches one snapshot, upserts every candidate and returns the store's merged view.
//
// A provider failure aborts the scan before any read or write. A failed existence check
// or upsert is logged, counted and skipped. HasNew is set for any key absent before this
// batch, even if its upsert failed; NewRecords holds only the persisted ones, with
// repeated keys collapsed to the last occurrence.
// If the final re-read fails, the pre-scan view is returned with Stale set,
// together with a store error.
func (e *ReconciliationEngine) RunScan(ctx context.Context) (*models.ScanResult, error) {
	startTime := time.Now()
	scanID := ScanIDFromContext(ctx)
	logger := e.logger.WithField("scan_id", scanID)

	fetchStart := time.Now()
	snapshot, err := e.provider.FetchSnapshot(ctx)
	e.providerMetrics.RecordRequest(err == nil && snapshot != nil, time.Since(fetchStart))
	if err == nil && snapshot == nil {
		err = shared.NewProviderError("EMPTY_RESPONSE", "market data provider returned no snapshot", e.provider.Name(), nil)
	}
	if err != nil {
		if !shared.IsProviderError(err) {
			err = shared.NewProviderError("FETCH_FAILED", "market data provider failed", e.provider.Name(), err)
		}
		e.metrics.RecordRequest(false, time.Since(startTime))
		logger.WithError(err).Error("Market data fetch failed; store left untouched")
		return nil, err
	}
	e.providerMetrics.AddToCustomCounter("rejected_candidates", int64(snapshot.Rejected))

	previous, err := e.store.ListAll(ctx)
	if err != nil {
		logger.WithError(err).Warn("Failed to load pre-scan records; continuing without a fallback view")
		previous = []models.IPORecord{}
	}
	previousByKey := make(map[models.RecordKey]models.IPORecord, len(previous))
	for _, record := range previous {
		previousByKey[record.Key()] = record
	}

	result := &models.ScanResult{
		Summary:    snapshot.Summary,
		Candidates: len(snapshot.Records),
		CapturedAt: snapshot.CapturedAt,
		NewRecords: []models.IPORecord{},
	}

	existedBefore := make(map[models.RecordKey]bool, len(snapshot.Records))
	newIndex := make(map[models.RecordKey]int)
	var sampleErrors []error

	for i, candidate := range snapshot.Records {
		if ctx.Err() != nil {
			remaining := len(snapshot.Records) - i
			result.WriteFailures += remaining
			sampleErrors = appendSample(sampleErrors, ctx.Err())
			logger.WithFields(logrus.Fields{
				"remaining": remaining,
				"error":     ctx.Err(),
			}).Warn("Scan deadline reached during writes; skipping remaining candidates")
			break
		}

		key := candidate.Key()
		recordLogger := logger.WithFields(logrus.Fields{
			"company_name": candidate.CompanyName,
			"share_type":   candidate.ShareType,
		})

		present, seen := existedBefore[key]
		if !seen {
			exists, err := e.store.Exists(ctx, key)
			if err != nil {
				result.WriteFailures++
				sampleErrors = appendSample(sampleErrors, err)
				recordLogger.WithError(err).Warn("Existence check failed; skipping record")
				continue
			}
			existedBefore[key] = exists
			present = exists
		}
		if !present {
			result.HasNew = true
		}

		if err := e.store.Upsert(ctx, candidate); err != nil {
			result.WriteFailures++
			sampleErrors = appendSample(sampleErrors, err)
			recordLogger.WithError(err).Warn("Upsert failed; skipping record")
			if present {
				e.auditLogger.LogRecordUpdate(scanID, nil, candidate, err)
			} else {
				e.auditLogger.LogRecordCreation(scanID, candidate, err)
			}
			continue
		}

		if present {
			var before *models.IPORecord
			if prior, ok := previousByKey[key]; ok {
				before = &prior
			}
			e.auditLogger.LogRecordUpdate(scanID, before, candidate, nil)
			continue
		}

		if idx, ok := newIndex[key]; ok {
			result.NewRecords[idx] = candidate
		} else {
			newIndex[key] = len(result.NewRecords)
			result.NewRecords = append(result.NewRecords, candidate)
		}
		e.auditLogger.LogRecordCreation(scanID, candidate, nil)
	}

	successCount := result.Candidates - result.WriteFailures
	e.auditLogger.LogBatchOperation(scanID, result.Candidates, successCount, result.WriteFailures, errorStrings(sampleErrors))
	if result.WriteFailures > 0 {
		logger.Warn(shared.BuildBatchProcessingErrorSummary(successCount, result.WriteFailures, sampleErrors))
	}

	// Re-read even if the scan deadline expired mid-batch, so the view reflects what was persisted
	readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalReadTimeout)
	defer cancel()

	merged, err := e.store.ListAll(readCtx)
	if err != nil {
		result.Records = previous
		result.Stale = true
		e.recordOutcome(result, false, startTime)
		logger.WithError(err).Error("Failed to re-read records after scan; returning pre-scan view")
		if !shared.IsStoreError(err) {
			err = shared.NewStoreError("QUERY_FAILED", "failed to re-read records after scan", "list_all", err)
		}
		return result, err
	}
	result.Records = merged

	// Report new records as stored, with their ids
	mergedByKey := make(map[models.RecordKey]models.IPORecord, len(merged))
	for _, record := range merged {
		mergedByKey[record.Key()] = record
	}
	for i, record := range result.NewRecords {
		if stored, ok := mergedByKey[record.Key()]; ok {
			result.NewRecords[i] = stored
		}
	}

	e.recordOutcome(result, true, startTime)
	logger.WithFields(logrus.Fields{
		"candidates":     result.Candidates,
		"rejected":       snapshot.Rejected,
		"new_records":    len(result.NewRecords),
		"write_failures": result.WriteFailures,
		"total_records":  len(result.Records),
		"duration":       time.Since(startTime),
	}).Info("Reconciliation scan completed")

	return result, nil
}

func (e *ReconciliationEngine) recordOutcome(result *models.ScanResult, success bool, startTime time.Time) {
	e.metrics.RecordRequest(success, time.Since(startTime))
	e.metrics.AddToCustomCounter("candidates", int64(result.Candidates))
	e.metrics.AddToCustomCounter("new_records", int64(len(result.NewRecords)))
	e.metrics.AddToCustomCounter("write_failures", int64(result.WriteFailures))
	e.metrics.SetCustomMetric("last_scan_records", len(result.Records))
}

// AlertableRecords filters records down to those worth an alert (OPEN or COMING_SOON)
func AlertableRecords(records []models.IPORecord) []models.IPORecord {
	alertable := make([]models.IPORecord, 0, len(records))
	for _, record := range records {
		if record.Status.IsAlertable() {
			alertable = append(alertable, record)
		}
	}
	return alertable
}

func appendSample(samples []error, err error) []error {
	if len(samples) >= maxSampleErrors {
		return samples
	}
	return append(samples, err)
}

func errorStrings(errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}
