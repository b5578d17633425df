package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fenilmodi00/nepal-ipo-radar/models"
	"github.com/fenilmodi00/nepal-ipo-radar/shared"
	"github.com/google/uuid"
)

// MemoryRecordStore keeps records in process memory.
// It backs local runs without DATABASE_URL and the service tests.
type MemoryRecordStore struct {
	mutex       sync.RWMutex
	records     map[models.RecordKey]*memoryEntry
	subscribers []models.Subscriber
	emails      map[string]struct{}
	sequence    int64
	now         func() time.Time
}

type memoryEntry struct {
	record   models.IPORecord
	sequence int64
}

// NewMemoryRecordStore creates an empty store
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		records: make(map[models.RecordKey]*memoryEntry),
		emails:  make(map[string]struct{}),
		now:     time.Now,
	}
}

// ListAll returns every stored record, newest first
func (s *MemoryRecordStore) ListAll(ctx context.Context) ([]models.IPORecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.NewStoreError("QUERY_FAILED", "failed to list IPO records", "list_all", err)
	}

	s.mutex.RLock()
	entries := make([]*memoryEntry, 0, len(s.records))
	for _, entry := range s.records {
		entries = append(entries, entry)
	}
	s.mutex.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].record.CreatedAt.Equal(entries[j].record.CreatedAt) {
			return entries[i].record.CreatedAt.After(entries[j].record.CreatedAt)
		}
		return entries[i].sequence > entries[j].sequence
	})

	records := make([]models.IPORecord, 0, len(entries))
	for _, entry := range entries {
		records = append(records, entry.record)
	}
	return records, nil
}

// Exists reports whether a record with the given natural key is stored
func (s *MemoryRecordStore) Exists(ctx context.Context, key models.RecordKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, shared.NewStoreError("QUERY_FAILED", "failed to check record existence", "exists", err)
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	_, ok := s.records[key]
	return ok, nil
}

// Upsert inserts the record or overwrites the stored one with the same natural key
func (s *MemoryRecordStore) Upsert(ctx context.Context, record models.IPORecord) error {
	if err := ctx.Err(); err != nil {
		return shared.NewStoreError("WRITE_FAILED", "failed to upsert IPO record", "upsert", err)
	}

	key := record.Key()
	record.CompanyName = strings.TrimSpace(record.CompanyName)
	if strings.TrimSpace(record.ShareType) == "" {
		record.ShareType = models.DefaultShareType
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	if existing, ok := s.records[key]; ok {
		record.ID = existing.record.ID
		record.CreatedAt = existing.record.CreatedAt
		record.UpdatedAt = now
		existing.record = record
		return nil
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.CreatedAt = now
	record.UpdatedAt = now
	s.sequence++
	s.records[key] = &memoryEntry{record: record, sequence: s.sequence}
	return nil
}

// GetByID returns one record, or nil when no record has that id
func (s *MemoryRecordStore) GetByID(ctx context.Context, id uuid.UUID) (*models.IPORecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.NewStoreError("QUERY_FAILED", "failed to load IPO record", "get_by_id", err)
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	for _, entry := range s.records {
		if entry.record.ID == id {
			record := entry.record
			return &record, nil
		}
	}
	return nil, nil
}

// InsertSubscriber stores a new alert recipient
func (s *MemoryRecordStore) InsertSubscriber(ctx context.Context, email string) (*models.Subscriber, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.NewStoreError("WRITE_FAILED", "failed to insert subscriber", "insert_subscriber", err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.emails[email]; exists {
		return nil, shared.NewDuplicateError(duplicateSubscriberMessage, "insert_subscriber", nil)
	}

	subscriber := models.Subscriber{
		ID:        int64(len(s.subscribers) + 1),
		Email:     email,
		CreatedAt: s.now(),
	}
	s.emails[email] = struct{}{}
	s.subscribers = append(s.subscribers, subscriber)
	return &subscriber, nil
}

// ListSubscribers returns every subscriber in sign-up order
func (s *MemoryRecordStore) ListSubscribers(ctx context.Context) ([]models.Subscriber, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.NewStoreError("QUERY_FAILED", "failed to list subscribers", "list_subscribers", err)
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	subscribers := make([]models.Subscriber, len(s.subscribers))
	copy(subscribers, s.subscribers)
	return subscribers, nil
}

// Ping always succeeds
func (s *MemoryRecordStore) Ping(ctx context.Context) error {
	return ctx.Err()
}
