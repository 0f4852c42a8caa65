package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pricetracker/internal/metrics"
	"pricetracker/internal/storage"
)

// LoaderStore is the slice of the storage surface the loader writes to.
type LoaderStore interface {
	InsertRawScrape(ctx context.Context, row storage.RawScrape) error
	UpsertProduct(ctx context.Context, row storage.Product) (bool, error)
	AppendPriceObservation(ctx context.Context, obs storage.PriceObservation) error
}

// IDGenerator mints unique identifiers for raw scrape rows.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Loader performs the three independent write operations of a run. Each
// record's writes are individually atomic; a failure on one record is
// logged and reported but never aborts the batch or rolls back prior
// writes.
type Loader struct {
	store  LoaderStore
	ids    IDGenerator
	clock  Clock
	logger *zap.Logger
}

// NewLoader constructs a Loader.
func NewLoader(store LoaderStore, ids IDGenerator, clock Clock, logger *zap.Logger) *Loader {
	return &Loader{store: store, ids: ids, clock: clock, logger: logger}
}

// LoadRaw writes every raw record to the audit table regardless of
// validation outcome, each under a freshly generated scrape ID. Returns the
// insert count and per-record failures.
func (l *Loader) LoadRaw(ctx context.Context, batch []RawRecord) (int, []RecordFailure) {
	var failures []RecordFailure
	inserted := 0
	for _, raw := range batch {
		if err := l.loadOneRaw(ctx, raw); err != nil {
			l.logger.Error("raw write failed",
				zap.String("product_id", raw.ProductID),
				zap.Error(err))
			metrics.ObserveStorageWriteError()
			failures = append(failures, RecordFailure{
				ProductID: raw.ProductID,
				Stage:     StageLoading,
				Kind:      FailureStorageWrite,
				Reason:    err.Error(),
			})
			continue
		}
		inserted++
	}
	return inserted, failures
}

func (l *Loader) loadOneRaw(ctx context.Context, raw RawRecord) error {
	scrapeID, err := l.ids.NewID()
	if err != nil {
		return fmt.Errorf("generate scrape id: %w", err)
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return l.store.InsertRawScrape(ctx, storage.RawScrape{
		ScrapeID:     scrapeID,
		ProductID:    raw.ProductID,
		Payload:      payload,
		Success:      raw.Success,
		ErrorMessage: raw.Error,
		ScrapedAt:    raw.ScrapedAt,
		LoadedAt:     l.clock.Now(),
	})
}

// LoadClean upserts the snapshot and appends history for every gate-accepted
// record. Unpriced records update the snapshot but produce no history fact.
// Returns the count of records fully loaded and the per-record failures.
func (l *Loader) LoadClean(ctx context.Context, results []GateResult) (int, []RecordFailure) {
	var failures []RecordFailure
	loaded := 0
	for _, res := range results {
		if !res.Accepted() {
			continue
		}
		if err := l.loadOneClean(ctx, res.Record); err != nil {
			l.logger.Error("clean write failed",
				zap.String("product_id", res.Record.ProductID),
				zap.Error(err))
			metrics.ObserveStorageWriteError()
			failures = append(failures, RecordFailure{
				ProductID: res.Record.ProductID,
				Stage:     StageLoading,
				Kind:      FailureStorageWrite,
				Reason:    err.Error(),
			})
			continue
		}
		loaded++
	}
	return loaded, failures
}

func (l *Loader) loadOneClean(ctx context.Context, rec Record) error {
	applied, err := l.store.UpsertProduct(ctx, storage.Product{
		ProductID:    rec.ProductID,
		Title:        rec.Title,
		CurrentPrice: rec.Price,
		Currency:     rec.Currency,
		Availability: string(rec.Availability),
		Rating:       rec.Rating,
		Seller:       rec.Seller,
		URL:          rec.URL,
		LastSeenAt:   rec.ScrapedAt,
		IsActive:     true,
	})
	if err != nil {
		return err
	}
	if !applied {
		l.logger.Debug("snapshot update skipped for stale observation",
			zap.String("product_id", rec.ProductID),
			zap.Time("scraped_at", rec.ScrapedAt))
	}
	if !rec.Priced() {
		return nil
	}
	return l.store.AppendPriceObservation(ctx, storage.PriceObservation{
		ProductID:    rec.ProductID,
		Price:        *rec.Price,
		Availability: string(rec.Availability),
		ScrapedAt:    rec.ScrapedAt,
	})
}
