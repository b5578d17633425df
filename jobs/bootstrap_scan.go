package jobs

import (
	"context"
	"time"

	"github.com/fenilmodi00/nepal-ipo-radar/models"
	"github.com/sirupsen/logrus"
)

const bootstrapReadTimeout = 15 * time.Second

// recordLister reports what the store already holds
type recordLister interface {
	ListAll(ctx context.Context) ([]models.IPORecord, error)
}

// scanner runs one serialized scan and waits for it
type scanner interface {
	Scan(ctx context.Context) models.ScanOutcome
}

// BootstrapScanJob fills an empty store with one scan at startup
type BootstrapScanJob struct {
	Store   recordLister
	Scanner scanner
}

func NewBootstrapScanJob(store recordLister, scanner scanner) *BootstrapScanJob {
	return &BootstrapScanJob{Store: store, Scanner: scanner}
}

// Run scans only when the store is empty. It reports whether a scan ran.
// A store read failure skips the bootstrap; the next trigger will scan.
func (j *BootstrapScanJob) Run(ctx context.Context) bool {
	logger := logrus.WithField("component", "BootstrapScanJob")

	readCtx, cancel := context.WithTimeout(ctx, bootstrapReadTimeout)
	records, err := j.Store.ListAll(readCtx)
	cancel()
	if err != nil {
		logger.WithError(err).Warn("Could not read the store; skipping bootstrap scan")
		return false
	}
	if len(records) > 0 {
		logger.WithField("records", len(records)).Info("Store already populated; skipping bootstrap scan")
		return false
	}

	logger.Info("Store is empty; running bootstrap scan")
	outcome := j.Scanner.Scan(ctx)
	fields := logrus.Fields{
		"scan_id": outcome.ScanID,
		"records": len(outcome.Records),
		"has_new": outcome.HasNew,
	}
	if !outcome.Succeeded() {
		logger.WithFields(fields).WithField("error", outcome.ScanError).Warn("Bootstrap scan failed")
		return true
	}
	logger.WithFields(fields).Info("Bootstrap scan completed")
	return true
}
