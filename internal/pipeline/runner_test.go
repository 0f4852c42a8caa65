package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRunner(source Source, store *fakeStore, notifier Notifier) *Runner {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewRunner(
		"test_pipeline",
		source,
		NewValidator(DefaultValidatorConfig()),
		NewQualityGate(0.5),
		NewLoader(store, &fakeIDGen{}, clock, zap.NewNop()),
		store,
		notifier,
		&fakeIDGen{},
		clock,
		zap.NewNop(),
	)
}

func rawBatch() []RawRecord {
	ts := time.Date(2025, 6, 1, 11, 55, 0, 0, time.UTC)
	return []RawRecord{
		{ProductID: "B000000001", Title: "Echo Dot", PriceText: "₹4,499.00", Availability: "In Stock", Success: true, ScrapedAt: ts},
		{ProductID: "B000000002", Title: "Fire Stick", PriceText: "₹2,999.00", Availability: "In Stock", Success: true, ScrapedAt: ts},
	}
}

func TestRunner_SuccessfulRun(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	notifier := &fakeNotifier{}
	runner := newTestRunner(&fakeSource{batch: rawBatch()}, store, notifier)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StageDone, report.FinalStage)
	require.Equal(t, 2, report.Extracted)
	require.Equal(t, 2, report.Transformed)
	require.Equal(t, 2, report.Validated)
	require.Equal(t, 2, report.QualityOK)
	require.Equal(t, 2, report.Loaded)
	require.True(t, report.Succeeded())
	require.Empty(t, report.Failures)

	require.Len(t, store.rawRows, 2)
	require.Len(t, store.products, 2)
	require.Len(t, store.observations, 2)

	// State advanced and the summary went out.
	require.Len(t, store.states, 1)
	require.Equal(t, "test_pipeline", store.states[0].PipelineName)
	require.Equal(t, 2, store.states[0].RecordsLoaded)
	require.Len(t, notifier.summaries, 1)
}

func TestRunner_EmptyExtractionAborts(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	runner := newTestRunner(&fakeSource{batch: nil}, store, &fakeNotifier{})

	report, err := runner.Run(context.Background())
	require.ErrorIs(t, err, ErrExtractionEmpty)
	require.Equal(t, StageAborted, report.FinalStage)
	require.False(t, report.Succeeded())

	// Nothing may be written on an aborted run.
	require.Empty(t, store.rawRows)
	require.Empty(t, store.products)
	require.Empty(t, store.observations)
	require.Empty(t, store.states)
}

func TestRunner_ExtractionErrorAborts(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	runner := newTestRunner(&fakeSource{err: errors.New("scraper offline")}, store, &fakeNotifier{})

	report, err := runner.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, StageAborted, report.FinalStage)
	require.Empty(t, store.rawRows)
}

func TestRunner_RecordFailuresDoNotAbort(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 6, 1, 11, 55, 0, 0, time.UTC)
	batch := append(rawBatch(),
		// Fetch failed upstream.
		RawRecord{ProductID: "B000000003", Success: false, Error: "bot detection triggered", ScrapedAt: ts},
		// Unparseable price while in stock.
		RawRecord{ProductID: "B000000004", Title: "Mystery", PriceText: "N/A", Availability: "In Stock", Success: true, ScrapedAt: ts},
		// Fails validation on the identifier.
		RawRecord{ProductID: "BAD", Title: "Shorty", PriceText: "100", Availability: "In Stock", Success: true, ScrapedAt: ts},
	)

	store := newFakeStore()
	runner := newTestRunner(&fakeSource{batch: batch}, store, &fakeNotifier{})

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, report.Extracted)
	require.Equal(t, 3, report.Transformed)
	require.Equal(t, 2, report.Validated)
	require.Equal(t, 2, report.Loaded)

	// Raw audit keeps every attempt, including the failed fetch.
	require.Len(t, store.rawRows, 5)

	require.Len(t, report.Failures, 3)
	kinds := map[FailureKind]int{}
	for _, f := range report.Failures {
		kinds[f.Kind]++
	}
	require.Equal(t, 2, kinds[FailureParse])
	require.Equal(t, 1, kinds[FailureValidation])
}

func TestRunner_DuplicateExcludedSpikeLoaded(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 6, 1, 11, 55, 0, 0, time.UTC)
	batch := []RawRecord{
		{ProductID: "B000000001", Title: "Echo Dot", PriceText: "400", Availability: "In Stock", Success: true, ScrapedAt: ts},
		{ProductID: "B000000001", Title: "Echo Dot", PriceText: "410", Availability: "In Stock", Success: true, ScrapedAt: ts},
	}

	store := newFakeStore()
	store.lastPrices["B000000001"] = 1000
	notifier := &fakeNotifier{}
	runner := newTestRunner(&fakeSource{batch: batch}, store, notifier)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	// First occurrence loads despite the spike; the duplicate does not.
	require.Equal(t, 1, report.Loaded)
	require.Len(t, store.products, 1)
	require.Equal(t, 400.0, *store.products[0].CurrentPrice)

	require.Len(t, report.Spikes, 1)
	require.Len(t, notifier.spikes, 1)
	require.InDelta(t, -60.0, notifier.spikes[0].ChangePct, 0.001)

	// The spike appears in failures as an annotation only.
	var spikeFailure, dupFailure bool
	for _, f := range report.Failures {
		switch f.Kind {
		case FailurePriceSpike:
			spikeFailure = true
			require.True(t, f.Kind.Annotation())
		case FailureDuplicate:
			dupFailure = true
		}
	}
	require.True(t, spikeFailure)
	require.True(t, dupFailure)
}

func TestRunner_LastPriceLookupFailureDisablesSpikes(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.lastPricesErr = errors.New("connection reset")
	notifier := &fakeNotifier{}
	runner := newTestRunner(&fakeSource{batch: rawBatch()}, store, notifier)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Loaded)
	require.Empty(t, report.Spikes)
}

func TestRunner_StateNotAdvancedWhenNothingLoads(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.failUpsertFor["B000000001"] = true
	store.failUpsertFor["B000000002"] = true
	runner := newTestRunner(&fakeSource{batch: rawBatch()}, store, &fakeNotifier{})

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StageDone, report.FinalStage)
	require.Zero(t, report.Loaded)
	require.False(t, report.Succeeded())

	// Staleness checks must see through all-failure runs.
	require.Empty(t, store.states)
}

func TestRunner_NotifierFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	runner := newTestRunner(&fakeSource{batch: rawBatch()}, store, &fakeNotifier{err: errors.New("topic gone")})

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Succeeded())
}
