package handlers

import (
	"context"
	"database/sql"
	"time"

	"github.com/fenilmodi00/nepal-ipo-radar/shared"
	"github.com/gofiber/fiber/v2"
)

type storePinger interface {
	Ping(ctx context.Context) error
}

type cacheInspector interface {
	Stats() map[string]interface{}
	Clear()
}

type PerformanceHandler struct {
	DB      *sql.DB // nil when running on the in-memory store
	Store   storePinger
	Cache   cacheInspector
	Metrics map[string]*shared.ServiceMetrics
}

func NewPerformanceHandler(db *sql.DB, store storePinger, cache cacheInspector, metrics map[string]*shared.ServiceMetrics) *PerformanceHandler {
	return &PerformanceHandler{
		DB:      db,
		Store:   store,
		Cache:   cache,
		Metrics: metrics,
	}
}

// Health reports liveness and store reachability
func (h *PerformanceHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()

	status := "ok"
	storeStatus := "ok"
	if err := h.Store.Ping(ctx); err != nil {
		status = "degraded"
		storeStatus = err.Error()
	}

	return c.JSON(fiber.Map{
		"status":    status,
		"store":     storeStatus,
		"timestamp": time.Now().Unix(),
	})
}

// GetPerformanceMetrics returns service metrics, cache stats and pool stats
func (h *PerformanceHandler) GetPerformanceMetrics(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	metrics := make(map[string]interface{})

	services := make(map[string]shared.MetricsSnapshot, len(h.Metrics))
	for name, m := range h.Metrics {
		services[name] = m.GetSnapshot()
	}
	metrics["services"] = services

	if h.Cache != nil {
		metrics["cache_stats"] = h.Cache.Stats()
	}

	start := time.Now()
	if err := h.Store.Ping(ctx); err != nil {
		metrics["store_ping_error"] = err.Error()
	} else {
		metrics["store_ping_ms"] = time.Since(start).Milliseconds()
	}

	if h.DB != nil {
		dbStats := h.DB.Stats()
		metrics["database_stats"] = map[string]interface{}{
			"open_connections":     dbStats.OpenConnections,
			"in_use":               dbStats.InUse,
			"idle":                 dbStats.Idle,
			"wait_count":           dbStats.WaitCount,
			"wait_duration_ms":     dbStats.WaitDuration.Milliseconds(),
			"max_idle_closed":      dbStats.MaxIdleClosed,
			"max_idle_time_closed": dbStats.MaxIdleTimeClosed,
			"max_lifetime_closed":  dbStats.MaxLifetimeClosed,
		}

		indexStats, err := h.getIndexUsageStats(ctx)
		if err != nil {
			metrics["index_stats_error"] = err.Error()
		} else {
			metrics["index_stats"] = indexStats
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    metrics,
	})
}

// ClearCache clears the record read cache
func (h *PerformanceHandler) ClearCache(c *fiber.Ctx) error {
	if h.Cache == nil {
		return c.JSON(fiber.Map{
			"success": false,
			"message": "Cache service not available",
		})
	}

	h.Cache.Clear()
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Cache cleared successfully",
	})
}

// getIndexUsageStats retrieves index usage for the record tables
func (h *PerformanceHandler) getIndexUsageStats(ctx context.Context) ([]map[string]interface{}, error) {
	query := `
		SELECT
			schemaname,
			relname as table_name,
			indexrelname as index_name,
			idx_scan as scans,
			idx_tup_read as tuples_read,
			idx_tup_fetch as tuples_fetched
		FROM pg_stat_user_indexes
		WHERE relname IN ('ipos', 'subscribers')
		ORDER BY relname, idx_scan DESC
	`

	rows, err := h.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []map[string]interface{}{}
	for rows.Next() {
		var schema, table, index string
		var scans, tuplesRead, tuplesFetched int64

		if err := rows.Scan(&schema, &table, &index, &scans, &tuplesRead, &tuplesFetched); err != nil {
			return nil, err
		}

		stats = append(stats, map[string]interface{}{
			"schema":         schema,
			"table":          table,
			"index":          index,
			"scans":          scans,
			"tuples_read":    tuplesRead,
			"tuples_fetched": tuplesFetched,
		})
	}

	return stats, rows.Err()
}
