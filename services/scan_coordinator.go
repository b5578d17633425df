package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fenilmodi00/nepal-ipo-radar/models"
	"github.com/fenilmodi00/nepal-ipo-radar/shared"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const defaultNotifyTimeout = 45 * time.Second

// scanRunner is the reconciliation step the coordinator drives
type scanRunner interface {
	RunScan(ctx context.Context) (*models.ScanResult, error)
	ProviderName() string
}

// ScanCoordinator runs scans on behalf of the HTTP surface and the jobs.
// At most one scan is in flight; concurrent triggers join it and share its outcome.
type ScanCoordinator struct {
	engine        scanRunner
	dispatcher    NotificationDispatcher
	records       *RecordService
	timeout       time.Duration
	notifyTimeout time.Duration

	group   singleflight.Group
	mutex   sync.RWMutex
	current string
	latest  *models.ScanOutcome

	metrics *shared.ServiceMetrics
	logger  *logrus.Entry
	now     func() time.Time
}

// NewScanCoordinator creates a coordinator; timeout bounds each scan
func NewScanCoordinator(engine scanRunner, dispatcher NotificationDispatcher, records *RecordService, timeout time.Duration) *ScanCoordinator {
	return &ScanCoordinator{
		engine:        engine,
		dispatcher:    dispatcher,
		records:       records,
		timeout:       timeout,
		notifyTimeout: defaultNotifyTimeout,
		metrics:       shared.NewServiceMetrics("scan_coordinator"),
		logger:        logrus.WithField("component", "ScanCoordinator"),
		now:           time.Now,
	}
}

// Metrics returns scan and notification counters
func (c *ScanCoordinator) Metrics() *shared.ServiceMetrics {
	return c.metrics
}

// Scan runs a scan, or joins the one in flight, and waits for its outcome.
// The scan itself is detached from ctx cancellation and bounded by the configured timeout.
func (c *ScanCoordinator) Scan(ctx context.Context) models.ScanOutcome {
	ch, _, _ := c.begin(ctx)
	result := <-ch
	return result.Val.(models.ScanOutcome)
}

// StartAsync starts a background scan. If one is already running its id is
// returned with started set to false.
func (c *ScanCoordinator) StartAsync() (string, bool) {
	_, scanID, started := c.begin(context.Background())
	return scanID, started
}

// Latest returns the most recent finished outcome
func (c *ScanCoordinator) Latest() (models.ScanOutcome, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.latest == nil {
		return models.ScanOutcome{}, false
	}
	return *c.latest, true
}

// InProgress reports whether a scan is running, and its id
func (c *ScanCoordinator) InProgress() (string, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.current, c.current != ""
}

// begin joins the in-flight scan or starts a new one. Each scan has its own
// flight key, so a late trigger can never pick up a finished scan's result.
func (c *ScanCoordinator) begin(ctx context.Context) (<-chan singleflight.Result, string, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.current != "" {
		c.metrics.IncrementCustomCounter("joined_scans")
		scanID := c.current
		// the key is in flight, so this function never runs
		return c.group.DoChan(scanID, func() (interface{}, error) {
			return models.ScanOutcome{ScanID: scanID}, nil
		}), scanID, false
	}

	scanID := uuid.NewString()
	c.current = scanID
	scanCtx := context.WithoutCancel(ctx)
	return c.group.DoChan(scanID, func() (interface{}, error) {
		return c.run(scanCtx, scanID), nil
	}), scanID, true
}

func (c *ScanCoordinator) run(ctx context.Context, scanID string) (outcome models.ScanOutcome) {
	startTime := c.now()
	logger := c.logger.WithField("scan_id", scanID)
	logger.Info("Scan started")

	outcome = models.ScanOutcome{
		ScanID:     scanID,
		StartedAt:  startTime,
		NewRecords: []models.IPORecord{},
	}

	defer func() {
		if r := recover(); r != nil {
			outcome.ScanError = fmt.Sprintf("scan panicked: %v", r)
			outcome.Records = c.records.LastKnown()
			outcome.Stale = true
			logger.WithField("panic", r).Error("Scan panicked")
		}
		c.finish(&outcome, startTime)
	}()

	scanCtx, cancel := context.WithTimeout(WithScanID(ctx, scanID), c.timeout)
	defer cancel()

	result, err := c.engine.RunScan(scanCtx)
	if result == nil {
		err = c.classifyScanError(scanCtx, err)
		outcome.Records = c.records.LastKnown()
		outcome.Stale = true
		outcome.ScanError = err.Error()
		logger.WithError(err).Error("Scan failed; keeping the previous records")
		return outcome
	}

	outcome.Records = result.Records
	outcome.Summary = result.Summary
	outcome.HasNew = result.HasNew
	outcome.NewRecords = result.NewRecords
	outcome.WriteFailures = result.WriteFailures
	outcome.Stale = result.Stale
	if result.Stale && len(result.Records) == 0 {
		outcome.Records = c.records.LastKnown()
	}

	if err != nil {
		outcome.ScanError = err.Error()
		c.records.Invalidate()
		logger.WithError(err).Warn("Scan finished with a stale view")
	} else {
		c.records.Refresh(result.Records)
	}

	if result.HasNew {
		c.notify(ctx, scanID, result.NewRecords, &outcome)
	}
	return outcome
}

// classifyScanError maps an expired scan deadline to a provider timeout
func (c *ScanCoordinator) classifyScanError(scanCtx context.Context, err error) error {
	if errors.Is(scanCtx.Err(), context.DeadlineExceeded) {
		var serviceErr *shared.ServiceError
		if errors.As(err, &serviceErr) && serviceErr.Code == "TIMEOUT" {
			return err
		}
		cause := err
		if cause == nil {
			cause = scanCtx.Err()
		}
		return shared.NewProviderError("TIMEOUT",
			fmt.Sprintf("scan exceeded %s", c.timeout), c.engine.ProviderName(), cause)
	}
	if err == nil {
		return shared.NewProviderError("EMPTY_RESPONSE", "scan produced no result", c.engine.ProviderName(), nil)
	}
	return err
}

// notify sends one alert for the new OPEN/COMING_SOON records, if any
func (c *ScanCoordinator) notify(ctx context.Context, scanID string, newRecords []models.IPORecord, outcome *models.ScanOutcome) {
	batch := AlertableRecords(newRecords)
	logger := c.logger.WithFields(logrus.Fields{
		"scan_id":    scanID,
		"dispatcher": c.dispatcher.Name(),
	})
	if len(batch) == 0 {
		logger.WithField("new_records", len(newRecords)).Info("New records are not alertable; skipping notification")
		return
	}

	notifyCtx, cancel := context.WithTimeout(ctx, c.notifyTimeout)
	defer cancel()

	if err := c.dispatcher.Notify(notifyCtx, batch); err != nil {
		c.metrics.IncrementCustomCounter("notifications_failed")
		outcome.NotificationError = err.Error()
		logger.WithError(err).Warn("Alert could not be delivered; scan result kept")
		return
	}

	c.metrics.IncrementCustomCounter("notifications_sent")
	outcome.Notified = len(batch)
	logger.WithField("records", len(batch)).Info("Alert delivered")
}

func (c *ScanCoordinator) finish(outcome *models.ScanOutcome, startTime time.Time) {
	finishedAt := c.now()
	outcome.FinishedAt = &finishedAt
	if outcome.Records == nil {
		outcome.Records = []models.IPORecord{}
	}

	c.metrics.RecordRequest(outcome.Succeeded(), finishedAt.Sub(startTime))
	c.metrics.SetCustomMetric("last_scan_id", outcome.ScanID)

	c.mutex.Lock()
	stored := *outcome
	c.latest = &stored
	c.current = ""
	c.mutex.Unlock()

	c.logger.WithFields(logrus.Fields{
		"scan_id":        outcome.ScanID,
		"succeeded":      outcome.Succeeded(),
		"has_new":        outcome.HasNew,
		"notified":       outcome.Notified,
		"write_failures": outcome.WriteFailures,
		"duration":       finishedAt.Sub(startTime),
	}).Info("Scan finished")
}
