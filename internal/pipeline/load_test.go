package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var loadTestTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestLoader_LoadRaw(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	loader := NewLoader(store, &fakeIDGen{}, &fakeClock{now: loadTestTime}, zap.NewNop())

	batch := []RawRecord{
		{ProductID: "B000000001", Title: "One", Success: true, ScrapedAt: loadTestTime},
		{ProductID: "B000000002", Success: false, Error: "timeout", ScrapedAt: loadTestTime},
	}

	inserted, failures := loader.LoadRaw(context.Background(), batch)
	require.Equal(t, 2, inserted)
	require.Empty(t, failures)
	require.Len(t, store.rawRows, 2)

	// Every row gets its own fresh scrape ID.
	require.NotEqual(t, store.rawRows[0].ScrapeID, store.rawRows[1].ScrapeID)

	// Unsuccessful attempts are part of the audit trail.
	require.False(t, store.rawRows[1].Success)
	require.Equal(t, "timeout", store.rawRows[1].ErrorMessage)
	require.Equal(t, loadTestTime, store.rawRows[0].LoadedAt)
}

func TestLoader_LoadRaw_FailureContinuesBatch(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.failRawFor["B000000001"] = true
	loader := NewLoader(store, &fakeIDGen{}, &fakeClock{now: loadTestTime}, zap.NewNop())

	inserted, failures := loader.LoadRaw(context.Background(), []RawRecord{
		{ProductID: "B000000001", Success: true},
		{ProductID: "B000000002", Success: true},
	})
	require.Equal(t, 1, inserted)
	require.Len(t, failures, 1)
	require.Equal(t, "B000000001", failures[0].ProductID)
	require.Equal(t, FailureStorageWrite, failures[0].Kind)
	require.Equal(t, StageLoading, failures[0].Stage)
}

func TestLoader_LoadRaw_IDGenerationFailure(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	loader := NewLoader(store, &fakeIDGen{err: errors.New("entropy exhausted")}, &fakeClock{now: loadTestTime}, zap.NewNop())

	inserted, failures := loader.LoadRaw(context.Background(), []RawRecord{{ProductID: "B000000001"}})
	require.Zero(t, inserted)
	require.Len(t, failures, 1)
	require.Empty(t, store.rawRows)
}

func TestLoader_LoadClean(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	loader := NewLoader(store, &fakeIDGen{}, &fakeClock{now: loadTestTime}, zap.NewNop())

	priced := pricedRecord("B000000001", 499)
	unpriced := pricedRecord("B000000002", 0)
	unpriced.Price = nil
	unpriced.Availability = AvailabilityOutOfStock
	dup := pricedRecord("B000000001", 450)

	loaded, failures := loader.LoadClean(context.Background(), []GateResult{
		{Record: priced, Decision: GateAccept},
		{Record: unpriced, Decision: GateAccept},
		{Record: dup, Decision: GateFlagDuplicate},
	})
	require.Equal(t, 2, loaded)
	require.Empty(t, failures)

	// Duplicates never reach the snapshot.
	require.Len(t, store.products, 2)

	// Only the priced record produces a history fact.
	require.Len(t, store.observations, 1)
	require.Equal(t, "B000000001", store.observations[0].ProductID)
	require.Equal(t, 499.0, store.observations[0].Price)
}

func TestLoader_LoadClean_SpikeStillLoads(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	loader := NewLoader(store, &fakeIDGen{}, &fakeClock{now: loadTestTime}, zap.NewNop())

	rec := pricedRecord("B000000001", 400)
	loaded, failures := loader.LoadClean(context.Background(), []GateResult{
		{Record: rec, Decision: GateFlagSpike, Spike: &SpikeAlert{ProductID: rec.ProductID}},
	})
	require.Equal(t, 1, loaded)
	require.Empty(t, failures)
	require.Len(t, store.observations, 1)
}

func TestLoader_LoadClean_WriteFailureContinues(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.failUpsertFor["B000000001"] = true
	loader := NewLoader(store, &fakeIDGen{}, &fakeClock{now: loadTestTime}, zap.NewNop())

	loaded, failures := loader.LoadClean(context.Background(), []GateResult{
		{Record: pricedRecord("B000000001", 100), Decision: GateAccept},
		{Record: pricedRecord("B000000002", 200), Decision: GateAccept},
	})
	require.Equal(t, 1, loaded)
	require.Len(t, failures, 1)
	require.Equal(t, "B000000001", failures[0].ProductID)
	require.Equal(t, FailureStorageWrite, failures[0].Kind)
}

func TestLoader_LoadClean_StaleSnapshotStillCounts(t *testing.T) {
	t.Parallel()

	// An upsert skipped by the freshness guard is not a failure; the
	// history append still happens so retried batches stay additive.
	store := newFakeStore()
	store.staleFor["B000000001"] = true
	loader := NewLoader(store, &fakeIDGen{}, &fakeClock{now: loadTestTime}, zap.NewNop())

	loaded, failures := loader.LoadClean(context.Background(), []GateResult{
		{Record: pricedRecord("B000000001", 100), Decision: GateAccept},
	})
	require.Equal(t, 1, loaded)
	require.Empty(t, failures)
	require.Len(t, store.observations, 1)
}
