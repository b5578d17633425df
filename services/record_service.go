package services

import (
	"context"
	"strings"
	"sync"

	"github.com/fenilmodi00/nepal-ipo-radar/models"
	"github.com/fenilmodi00/nepal-ipo-radar/shared"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const allRecordsCacheKey = "records:all"

// ListFilter narrows the merged list by status
type ListFilter string

const (
	FilterAll        ListFilter = "all"
	FilterOpen       ListFilter = "open"
	FilterComingSoon ListFilter = "coming_soon"
	FilterClosed     ListFilter = "closed"
	FilterListed     ListFilter = "listed"
)

// ParseListFilter accepts a query value; empty means all
func ParseListFilter(raw string) (ListFilter, bool) {
	switch filter := ListFilter(strings.ToLower(strings.TrimSpace(raw))); filter {
	case "":
		return FilterAll, true
	case FilterAll, FilterOpen, FilterComingSoon, FilterClosed, FilterListed:
		return filter, true
	default:
		return "", false
	}
}

func (f ListFilter) matches(record models.IPORecord) bool {
	switch f {
	case FilterOpen:
		return record.Status == models.StatusOpen
	case FilterComingSoon:
		return record.Status == models.StatusComingSoon
	case FilterClosed:
		return record.Status == models.StatusClosed
	case FilterListed:
		return record.Status == models.StatusListed
	default:
		return true
	}
}

// Data sources reported with a listing
const (
	SourceCache     = "cache"
	SourceStore     = "store"
	SourceLastKnown = "last_known"
)

// RecordListing is one read of the merged view
type RecordListing struct {
	Records []models.IPORecord `json:"records"`
	Source  string             `json:"source"`
	Stale   bool               `json:"stale"`
}

// RecordService serves the merged record view to readers.
// Reads go cache, then store, then the last view known to be good.
type RecordService struct {
	store     RecordStore
	cache     *CacheService
	metrics   *shared.ServiceMetrics
	mutex     sync.RWMutex
	lastKnown []models.IPORecord
	logger    *logrus.Entry
}

// NewRecordService creates a read service over store and cache
func NewRecordService(store RecordStore, cache *CacheService) *RecordService {
	return &RecordService{
		store:     store,
		cache:     cache,
		metrics:   shared.NewServiceMetrics("record_service"),
		lastKnown: []models.IPORecord{},
		logger:    logrus.WithField("component", "RecordService"),
	}
}

// Metrics returns read-path metrics
func (s *RecordService) Metrics() *shared.ServiceMetrics {
	return s.metrics
}

// List returns the merged view filtered by status. It never fails: on a store
// error it degrades to the last-known view, which is empty before the first load.
func (s *RecordService) List(ctx context.Context, filter ListFilter) RecordListing {
	records, source, stale := s.loadAll(ctx)

	filtered := make([]models.IPORecord, 0, len(records))
	for _, record := range records {
		if filter.matches(record) {
			filtered = append(filtered, record)
		}
	}
	return RecordListing{Records: filtered, Source: source, Stale: stale}
}

func (s *RecordService) loadAll(ctx context.Context) ([]models.IPORecord, string, bool) {
	if cached, ok := s.cache.Get(allRecordsCacheKey); ok {
		s.metrics.IncrementCustomCounter("cache_hits")
		return cached.([]models.IPORecord), SourceCache, false
	}

	records, err := s.store.ListAll(ctx)
	if err != nil {
		s.metrics.IncrementCustomCounter("degraded_reads")
		s.logger.WithError(err).Warn("Store read failed; serving last-known records")
		return s.LastKnown(), SourceLastKnown, true
	}

	s.remember(records)
	return records, SourceStore, false
}

// Get returns one record by id, or nil when absent
func (s *RecordService) Get(ctx context.Context, id uuid.UUID) (*models.IPORecord, error) {
	record, err := s.store.GetByID(ctx, id)
	if err == nil {
		return record, nil
	}

	s.logger.WithError(err).Warn("Store lookup failed; searching last-known records")
	for _, known := range s.LastKnown() {
		if known.ID == id {
			found := known
			return &found, nil
		}
	}
	return nil, err
}

// Refresh replaces the cached and last-known view after a successful scan
func (s *RecordService) Refresh(records []models.IPORecord) {
	s.remember(records)
}

// Invalidate drops the cached view so the next read goes to the store
func (s *RecordService) Invalidate() {
	s.cache.Delete(allRecordsCacheKey)
}

// LastKnown returns a copy of the last view read from the store
func (s *RecordService) LastKnown() []models.IPORecord {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	records := make([]models.IPORecord, len(s.lastKnown))
	copy(records, s.lastKnown)
	return records
}

func (s *RecordService) remember(records []models.IPORecord) {
	snapshot := make([]models.IPORecord, len(records))
	copy(snapshot, records)

	s.mutex.Lock()
	s.lastKnown = snapshot
	s.mutex.Unlock()

	s.cache.Set(allRecordsCacheKey, snapshot)
}
