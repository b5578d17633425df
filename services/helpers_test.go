package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fenilmodi00/nepal-ipo-radar/database"
	"github.com/fenilmodi00/nepal-ipo-radar/models"
	"github.com/fenilmodi00/nepal-ipo-radar/shared"
	"github.com/google/uuid"
)

var (
	seedCompanies  = []string{"Alpha Hydropower", "Beta Bank", "Gamma Life Insurance", "Delta Power"}
	seedShareTypes = []string{"General Public", "Foreign Employment", ""}
	seedStatuses   = []models.IPOStatus{models.StatusOpen, models.StatusComingSoon, models.StatusClosed, models.StatusListed}
)

func newTestRecord(company, shareType string, status models.IPOStatus) models.IPORecord {
	return models.IPORecord{
		CompanyName: company,
		ShareType:   shareType,
		Sector:      "Hydropower",
		Units:       1000000,
		Price:       100,
		OpeningDate: "2026-10-01",
		ClosingDate: "2026-10-05",
		Status:      status,
		Description: "Test offering",
	}
}

// recordFromSeed maps 0..47 onto 12 keys with varying status and price
func recordFromSeed(seed int) models.IPORecord {
	record := newTestRecord(
		seedCompanies[seed%len(seedCompanies)],
		seedShareTypes[(seed/len(seedCompanies))%len(seedShareTypes)],
		seedStatuses[(seed/12)%len(seedStatuses)],
	)
	record.Price = float64(100 + seed)
	return record
}

func recordsFromSeeds(seeds []int) []models.IPORecord {
	records := make([]models.IPORecord, len(seeds))
	for i, seed := range seeds {
		records[i] = recordFromSeed(seed)
	}
	return records
}

func snapshotOf(records ...models.IPORecord) *models.MarketSnapshot {
	if records == nil {
		records = []models.IPORecord{}
	}
	return &models.MarketSnapshot{
		Records:    records,
		Summary:    "Test market summary",
		CapturedAt: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
		Source:     "fake",
	}
}

// fakeProvider returns a fixed snapshot or error. When release is set,
// FetchSnapshot blocks on it (or ctx) after signalling entered.
type fakeProvider struct {
	mutex    sync.Mutex
	snapshot *models.MarketSnapshot
	err      error
	calls    int
	entered  chan struct{}
	release  chan struct{}
}

func (p *fakeProvider) Name() string {
	return "fake"
}

func (p *fakeProvider) FetchSnapshot(ctx context.Context) (*models.MarketSnapshot, error) {
	p.mutex.Lock()
	p.calls++
	snapshot, err, entered, release := p.snapshot, p.err, p.entered, p.release
	p.mutex.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return snapshot, err
}

func (p *fakeProvider) callCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.calls
}

var errInjected = errors.New("injected store failure")

// flakyStore wraps the in-memory store with injectable failures
type flakyStore struct {
	*database.MemoryRecordStore

	mutex         sync.Mutex
	failUpsertFor map[string]bool
	failExistsFor map[string]bool
	failListAll   func(call int) bool
	listAllCalls  int
	failGetByID   bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{
		MemoryRecordStore: database.NewMemoryRecordStore(),
		failUpsertFor:     map[string]bool{},
		failExistsFor:     map[string]bool{},
	}
}

func (s *flakyStore) ListAll(ctx context.Context) ([]models.IPORecord, error) {
	s.mutex.Lock()
	s.listAllCalls++
	fail := s.failListAll != nil && s.failListAll(s.listAllCalls)
	s.mutex.Unlock()

	if fail {
		return nil, shared.NewStoreError("QUERY_FAILED", "failed to list IPO records", "list_all", errInjected)
	}
	return s.MemoryRecordStore.ListAll(ctx)
}

func (s *flakyStore) Exists(ctx context.Context, key models.RecordKey) (bool, error) {
	if s.failExistsFor[key.Company] {
		return false, shared.NewStoreError("QUERY_FAILED", "failed to check IPO record", "exists", errInjected)
	}
	return s.MemoryRecordStore.Exists(ctx, key)
}

func (s *flakyStore) Upsert(ctx context.Context, record models.IPORecord) error {
	if s.failUpsertFor[record.Key().Company] {
		return shared.NewStoreError("WRITE_FAILED", "failed to upsert IPO record", "upsert", errInjected)
	}
	return s.MemoryRecordStore.Upsert(ctx, record)
}

func (s *flakyStore) GetByID(ctx context.Context, id uuid.UUID) (*models.IPORecord, error) {
	if s.failGetByID {
		return nil, shared.NewStoreError("QUERY_FAILED", "failed to load IPO record", "get_by_id", errInjected)
	}
	return s.MemoryRecordStore.GetByID(ctx, id)
}

// recordingDispatcher remembers every batch it was asked to send
type recordingDispatcher struct {
	mutex   sync.Mutex
	batches [][]models.IPORecord
	err     error
}

func (d *recordingDispatcher) Name() string {
	return "recording"
}

func (d *recordingDispatcher) Notify(ctx context.Context, records []models.IPORecord) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	batch := make([]models.IPORecord, len(records))
	copy(batch, records)
	d.batches = append(d.batches, batch)
	return d.err
}

func (d *recordingDispatcher) calls() [][]models.IPORecord {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.batches
}

func keySet(records []models.IPORecord) map[models.RecordKey]bool {
	keys := make(map[models.RecordKey]bool, len(records))
	for _, record := range records {
		keys[record.Key()] = true
	}
	return keys
}
