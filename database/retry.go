package database

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fenilmodi00/nepal-ipo-radar/shared"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// RetryConfig holds retry configuration for database operations
type RetryConfig struct {
	MaxRetries         int
	BaseDelay          time.Duration
	MaxDelay           time.Duration
	BackoffFactor      float64
	SlowQueryThreshold time.Duration
}

// DefaultRetryConfig returns the retry policy used by the Postgres store
func DefaultRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:         maxRetries,
		BaseDelay:          100 * time.Millisecond,
		MaxDelay:           2 * time.Second,
		BackoffFactor:      2.0,
		SlowQueryThreshold: 500 * time.Millisecond,
	}
}

// QueryExecutor runs database operations with exponential backoff on transient failures
type QueryExecutor struct {
	retryConfig RetryConfig
}

// NewQueryExecutor creates a new executor
func NewQueryExecutor(config RetryConfig) *QueryExecutor {
	return &QueryExecutor{retryConfig: config}
}

// ExecuteWithRetry executes a database operation with exponential backoff retry
func (e *QueryExecutor) ExecuteWithRetry(ctx context.Context, operationName string, operation func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= e.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(e.retryConfig.BaseDelay) *
				math.Pow(e.retryConfig.BackoffFactor, float64(attempt-1)))

			if delay > e.retryConfig.MaxDelay {
				delay = e.retryConfig.MaxDelay
			}

			logrus.WithFields(logrus.Fields{
				"component": "QueryExecutor",
				"operation": operationName,
				"attempt":   attempt,
				"delay":     delay,
				"error":     lastErr,
			}).Warn("Retrying database operation")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		startTime := time.Now()
		err := operation(ctx)
		duration := time.Since(startTime)

		if duration > e.retryConfig.SlowQueryThreshold {
			logrus.WithFields(logrus.Fields{
				"component": "QueryExecutor",
				"operation": operationName,
				"duration":  duration,
				"attempt":   attempt,
			}).Warn("Slow database query detected")
		}

		if err == nil {
			if attempt > 0 {
				logrus.WithFields(logrus.Fields{
					"component": "QueryExecutor",
					"operation": operationName,
					"attempt":   attempt,
					"duration":  duration,
				}).Info("Database operation succeeded after retry")
			}
			return nil
		}

		lastErr = err

		if !isRetryableDatabaseError(err) || ctx.Err() != nil {
			return err
		}
	}

	return fmt.Errorf("database operation %s failed after %d retries: %w", operationName, e.retryConfig.MaxRetries, lastErr)
}

// isRetryableDatabaseError treats connection exceptions (08xxx) and transaction
// rollbacks (40xxx: serialization failure, deadlock) as transient.
// Integrity violations (23xxx) are never retried.
func isRetryableDatabaseError(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "40", "53", "57":
			return true
		default:
			return false
		}
	}

	return shared.IsRetryableError(err)
}

// isUniqueViolation reports whether err is a Postgres unique_violation (23505)
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
