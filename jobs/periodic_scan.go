package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PeriodicScanJob rescans on a fixed interval. It shares the coordinator with
// user-triggered scans, so ticks that land during a scan join it.
type PeriodicScanJob struct {
	Scanner  scanner
	Interval time.Duration

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	started  bool
	mutex    sync.Mutex
}

func NewPeriodicScanJob(scanner scanner, interval time.Duration) *PeriodicScanJob {
	return &PeriodicScanJob{
		Scanner:  scanner,
		Interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the ticker loop. A non-positive interval disables the job.
func (j *PeriodicScanJob) Start() bool {
	logger := logrus.WithField("component", "PeriodicScanJob")
	if j.Interval <= 0 {
		logger.Info("Periodic scans disabled (SCAN_INTERVAL not set)")
		return false
	}

	j.mutex.Lock()
	defer j.mutex.Unlock()
	if j.started {
		return true
	}
	j.started = true

	logger.WithField("interval", j.Interval).Info("Starting periodic scan job")
	go j.loop(logger)
	return true
}

func (j *PeriodicScanJob) loop(logger *logrus.Entry) {
	defer close(j.done)

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stop:
			return
		case <-ticker.C:
			outcome := j.Scanner.Scan(context.Background())
			logger.WithFields(logrus.Fields{
				"scan_id":   outcome.ScanID,
				"succeeded": outcome.Succeeded(),
				"has_new":   outcome.HasNew,
			}).Info("Periodic scan finished")
		}
	}
}

// Stop ends the loop and waits for a running tick to finish
func (j *PeriodicScanJob) Stop() {
	j.stopOnce.Do(func() { close(j.stop) })

	j.mutex.Lock()
	started := j.started
	j.mutex.Unlock()
	if started {
		<-j.done
	}
}
