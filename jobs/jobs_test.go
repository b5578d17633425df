package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fenilmodi00/nepal-ipo-radar/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type stubLister struct {
	records []models.IPORecord
	err     error
}

func (l *stubLister) ListAll(ctx context.Context) ([]models.IPORecord, error) {
	return l.records, l.err
}

type countingScanner struct {
	scans   int32
	outcome models.ScanOutcome
}

func (s *countingScanner) Scan(ctx context.Context) models.ScanOutcome {
	atomic.AddInt32(&s.scans, 1)
	return s.outcome
}

func (s *countingScanner) count() int {
	return int(atomic.LoadInt32(&s.scans))
}

type stubPurger struct {
	removed int
	calls   int
}

func (p *stubPurger) PurgeExpired() int {
	p.calls++
	return p.removed
}

func TestBootstrapScansEmptyStore(t *testing.T) {
	scanner := &countingScanner{outcome: models.ScanOutcome{ScanID: "bootstrap", HasNew: true}}
	job := NewBootstrapScanJob(&stubLister{records: []models.IPORecord{}}, scanner)

	assert.True(t, job.Run(context.Background()))
	assert.Equal(t, 1, scanner.count())
}

func TestBootstrapSkipsPopulatedStore(t *testing.T) {
	scanner := &countingScanner{}
	job := NewBootstrapScanJob(&stubLister{records: []models.IPORecord{{CompanyName: "Alpha"}}}, scanner)

	assert.False(t, job.Run(context.Background()))
	assert.Zero(t, scanner.count())
}

func TestBootstrapSkipsWhenStoreUnreadable(t *testing.T) {
	scanner := &countingScanner{}
	job := NewBootstrapScanJob(&stubLister{err: errors.New("connection refused")}, scanner)

	assert.False(t, job.Run(context.Background()))
	assert.Zero(t, scanner.count())
}

func TestBootstrapReportsFailedScanAsRun(t *testing.T) {
	scanner := &countingScanner{outcome: models.ScanOutcome{ScanError: "[provider:TIMEOUT] deadline"}}
	job := NewBootstrapScanJob(&stubLister{}, scanner)

	assert.True(t, job.Run(context.Background()))
}

func TestPeriodicScanDisabled(t *testing.T) {
	scanner := &countingScanner{}
	job := NewPeriodicScanJob(scanner, 0)

	assert.False(t, job.Start())
	job.Stop()
	assert.Zero(t, scanner.count())
}

func TestPeriodicScanTicksUntilStopped(t *testing.T) {
	defer goleak.VerifyNone(t)

	scanner := &countingScanner{}
	job := NewPeriodicScanJob(scanner, 10*time.Millisecond)

	require.True(t, job.Start())
	require.True(t, job.Start(), "a second start is a no-op")
	require.Eventually(t, func() bool { return scanner.count() >= 2 }, time.Second, 5*time.Millisecond)

	job.Stop()
	stopped := scanner.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, scanner.count())

	job.Stop()
}

func TestCacheCleanupJob(t *testing.T) {
	purger := &stubPurger{removed: 3}

	assert.Equal(t, 3, NewCacheCleanupJob(purger).Run())
	assert.Equal(t, 1, purger.calls)
}
