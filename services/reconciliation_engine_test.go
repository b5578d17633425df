package services

import (
	"context"
	"errors"
	"testing"

	"github.com/fenilmodi00/nepal-ipo-radar/models"
	"github.com/fenilmodi00/nepal-ipo-radar/shared"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ignoreUpdatedAt = cmpopts.IgnoreFields(models.IPORecord{}, "UpdatedAt")

func TestRunScanInsertsIntoEmptyStore(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	provider := &fakeProvider{snapshot: snapshotOf(newTestRecord("Alpha Hydropower", "General Public", models.StatusOpen))}
	engine := NewReconciliationEngine(provider, store)

	result, err := engine.RunScan(ctx)
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	assert.True(t, result.HasNew)
	require.Len(t, result.NewRecords, 1)
	assert.NotEqual(t, uuid.Nil, result.NewRecords[0].ID, "new records are reported as stored")
	assert.Equal(t, "Test market summary", result.Summary)
	assert.Equal(t, 1, result.Candidates)
	assert.Zero(t, result.WriteFailures)
	assert.False(t, result.Stale)
	assert.Equal(t, int64(1), engine.Metrics().GetCustomCounter("new_records"))
}

func TestRunScanRepeatedSnapshotIsNotNew(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	record := newTestRecord("Alpha Hydropower", "General Public", models.StatusOpen)
	require.NoError(t, store.Upsert(ctx, record))
	before, err := store.ListAll(ctx)
	require.NoError(t, err)

	engine := NewReconciliationEngine(&fakeProvider{snapshot: snapshotOf(record)}, store)
	result, err := engine.RunScan(ctx)
	require.NoError(t, err)

	assert.False(t, result.HasNew)
	assert.Empty(t, result.NewRecords)
	if diff := cmp.Diff(before, result.Records, ignoreUpdatedAt); diff != "" {
		t.Errorf("merged list changed (-before +after):\n%s", diff)
	}
}

func TestRunScanDistinctShareTypeIsNew(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	require.NoError(t, store.Upsert(ctx, newTestRecord("Alpha", "General Public", models.StatusOpen)))

	engine := NewReconciliationEngine(&fakeProvider{
		snapshot: snapshotOf(newTestRecord("Alpha", "Foreign Employment", models.StatusOpen)),
	}, store)
	result, err := engine.RunScan(ctx)
	require.NoError(t, err)

	assert.True(t, result.HasNew)
	require.Len(t, result.NewRecords, 1)
	assert.Equal(t, "Foreign Employment", result.NewRecords[0].ShareType)
	assert.Len(t, result.Records, 2)
}

func TestRunScanProviderFailureLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	require.NoError(t, store.Upsert(ctx, newTestRecord("Alpha", "General Public", models.StatusOpen)))
	before, err := store.ListAll(ctx)
	require.NoError(t, err)

	engine := NewReconciliationEngine(&fakeProvider{err: errors.New("connection refused")}, store)
	result, err := engine.RunScan(ctx)

	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, shared.IsProviderError(err))

	var serviceErr *shared.ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, "FETCH_FAILED", serviceErr.Code)

	after, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(before, after))
}

func TestRunScanKeepsProviderErrorCode(t *testing.T) {
	providerErr := shared.NewProviderError("MALFORMED_PAYLOAD", "bad payload", "fake", nil)
	engine := NewReconciliationEngine(&fakeProvider{err: providerErr}, newFlakyStore())

	_, err := engine.RunScan(context.Background())
	assert.Same(t, providerErr, err)
}

func TestRunScanNilSnapshotIsProviderError(t *testing.T) {
	engine := NewReconciliationEngine(&fakeProvider{}, newFlakyStore())

	_, err := engine.RunScan(context.Background())
	require.Error(t, err)
	assert.True(t, shared.IsProviderError(err))
}

func TestRunScanSkipsFailedWrites(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	store.failUpsertFor["beta bank"] = true
	store.failExistsFor["gamma life insurance"] = true

	engine := NewReconciliationEngine(&fakeProvider{snapshot: snapshotOf(
		newTestRecord("Alpha Hydropower", "", models.StatusOpen),
		newTestRecord("Beta Bank", "", models.StatusOpen),
		newTestRecord("Gamma Life Insurance", "", models.StatusOpen),
	)}, store)

	result, err := engine.RunScan(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, result.WriteFailures)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "Alpha Hydropower", result.Records[0].CompanyName)
	require.Len(t, result.NewRecords, 1)
	assert.True(t, result.HasNew)
	assert.Equal(t, int64(2), engine.Metrics().GetCustomCounter("write_failures"))
}

func TestRunScanNewKeyWithFailedUpsertStillCountsAsNew(t *testing.T) {
	store := newFlakyStore()
	store.failUpsertFor["beta bank"] = true

	engine := NewReconciliationEngine(&fakeProvider{snapshot: snapshotOf(
		newTestRecord("Beta Bank", "", models.StatusOpen),
	)}, store)

	result, err := engine.RunScan(context.Background())
	require.NoError(t, err)

	assert.True(t, result.HasNew)
	assert.Empty(t, result.NewRecords)
	assert.Equal(t, 1, result.WriteFailures)
	assert.Empty(t, result.Records)
}

func TestRunScanProviderFailureSkipsStoreReads(t *testing.T) {
	store := newFlakyStore()
	providerErr := shared.NewProviderError("UNREACHABLE", "down", "fake", nil)
	engine := NewReconciliationEngine(&fakeProvider{err: providerErr}, store)

	_, err := engine.RunScan(context.Background())
	require.Error(t, err)
	assert.Zero(t, store.listAllCalls)
}

func TestRunScanFinalReadFailureReturnsPreScanView(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	require.NoError(t, store.Upsert(ctx, newTestRecord("Alpha", "General Public", models.StatusOpen)))
	before, err := store.MemoryRecordStore.ListAll(ctx)
	require.NoError(t, err)

	// call 1 is the pre-scan read, call 2 the final re-read
	store.failListAll = func(call int) bool { return call == 2 }

	engine := NewReconciliationEngine(&fakeProvider{
		snapshot: snapshotOf(newTestRecord("Beta", "General Public", models.StatusComingSoon)),
	}, store)
	result, err := engine.RunScan(ctx)

	require.Error(t, err)
	assert.True(t, shared.IsStoreError(err))
	require.NotNil(t, result)
	assert.True(t, result.Stale)
	assert.True(t, result.HasNew, "the write was committed even though the re-read failed")
	assert.Empty(t, cmp.Diff(before, result.Records))
}

func TestRunScanDuplicateKeyInBatchKeepsLastOccurrence(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()

	first := newTestRecord("Alpha Hydropower", "General Public", models.StatusComingSoon)
	first.Price = 100
	second := newTestRecord("ALPHA  hydropower", "general public", models.StatusOpen)
	second.Price = 110

	engine := NewReconciliationEngine(&fakeProvider{snapshot: snapshotOf(first, second)}, store)
	result, err := engine.RunScan(ctx)
	require.NoError(t, err)

	require.Len(t, result.NewRecords, 1)
	assert.Equal(t, 110.0, result.NewRecords[0].Price)
	assert.Equal(t, models.StatusOpen, result.NewRecords[0].Status)
	require.Len(t, result.Records, 1)
	assert.Equal(t, 110.0, result.Records[0].Price)
}

func TestRunScanEmptySnapshot(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	require.NoError(t, store.Upsert(ctx, newTestRecord("Alpha", "", models.StatusListed)))

	engine := NewReconciliationEngine(NewUnconfiguredProvider(), store)
	result, err := engine.RunScan(ctx)
	require.NoError(t, err)

	assert.False(t, result.HasNew)
	assert.Len(t, result.Records, 1)
	assert.Equal(t, missingKeySummary, result.Summary)
}

func TestRunScanPreScanReadFailureIsNotFatal(t *testing.T) {
	store := newFlakyStore()
	store.failListAll = func(call int) bool { return call == 1 }

	engine := NewReconciliationEngine(&fakeProvider{
		snapshot: snapshotOf(newTestRecord("Alpha", "", models.StatusOpen)),
	}, store)
	result, err := engine.RunScan(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Records, 1)
}

func TestAlertableRecords(t *testing.T) {
	records := []models.IPORecord{
		newTestRecord("A", "", models.StatusOpen),
		newTestRecord("B", "", models.StatusComingSoon),
		newTestRecord("C", "", models.StatusClosed),
		newTestRecord("D", "", models.StatusListed),
	}

	alertable := AlertableRecords(records)
	require.Len(t, alertable, 2)
	assert.Equal(t, "A", alertable[0].CompanyName)
	assert.Equal(t, "B", alertable[1].CompanyName)
	assert.Empty(t, AlertableRecords(nil))
}

func TestReconciliationProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 60
	properties := gopter.NewProperties(parameters)

	seeds := gen.SliceOf(gen.IntRange(0, 47))

	properties.Property("rescanning the same snapshot changes nothing but updated_at", prop.ForAll(
		func(incoming []int) bool {
			ctx := context.Background()
			engine := NewReconciliationEngine(&fakeProvider{snapshot: snapshotOf(recordsFromSeeds(incoming)...)}, newFlakyStore())

			first, err := engine.RunScan(ctx)
			if err != nil {
				return false
			}
			second, err := engine.RunScan(ctx)
			if err != nil {
				return false
			}
			return !second.HasNew && cmp.Equal(first.Records, second.Records, ignoreUpdatedAt)
		},
		seeds,
	))

	properties.Property("has_new iff some incoming key was absent before the scan", prop.ForAll(
		func(existing, incoming []int) bool {
			ctx := context.Background()
			store := newFlakyStore()
			for _, record := range recordsFromSeeds(existing) {
				if err := store.Upsert(ctx, record); err != nil {
					return false
				}
			}
			before := keySet(recordsFromSeeds(existing))

			expected := false
			for _, record := range recordsFromSeeds(incoming) {
				if !before[record.Key()] {
					expected = true
				}
			}

			result, err := NewReconciliationEngine(&fakeProvider{snapshot: snapshotOf(recordsFromSeeds(incoming)...)}, store).RunScan(ctx)
			return err == nil && result.HasNew == expected
		},
		seeds, seeds,
	))

	properties.Property("no key is ever removed, even when the provider fails", prop.ForAll(
		func(existing, incoming []int, providerFails bool) bool {
			ctx := context.Background()
			store := newFlakyStore()
			for _, record := range recordsFromSeeds(existing) {
				if err := store.Upsert(ctx, record); err != nil {
					return false
				}
			}

			provider := &fakeProvider{snapshot: snapshotOf(recordsFromSeeds(incoming)...)}
			if providerFails {
				provider.err = errors.New("upstream down")
			}
			_, _ = NewReconciliationEngine(provider, store).RunScan(ctx)

			after, err := store.ListAll(ctx)
			if err != nil {
				return false
			}
			afterKeys := keySet(after)
			for key := range keySet(recordsFromSeeds(existing)) {
				if !afterKeys[key] {
					return false
				}
			}
			return true
		},
		seeds, seeds, gen.Bool(),
	))

	properties.Property("a key repeated in one batch is new at most once and keeps the last values", prop.ForAll(
		func(incoming []int) bool {
			ctx := context.Background()
			records := recordsFromSeeds(incoming)
			last := make(map[models.RecordKey]models.IPORecord)
			for _, record := range records {
				last[record.Key()] = record
			}

			result, err := NewReconciliationEngine(&fakeProvider{snapshot: snapshotOf(records...)}, newFlakyStore()).RunScan(ctx)
			if err != nil || len(result.NewRecords) != len(last) {
				return false
			}
			for _, stored := range result.Records {
				want := last[stored.Key()]
				if stored.Price != want.Price || stored.Status != want.Status {
					return false
				}
			}
			return true
		},
		seeds,
	))

	properties.TestingRun(t)
}
