// Package storage defines the persistence boundary for the price tracker:
// the domain row types and the Store interface the rest of the application
// programs against. The concrete Postgres implementation lives in the
// postgres subpackage.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by read operations when no row matches.
var ErrNotFound = errors.New("not found")

// RawScrape is one append-only audit row: the scraped payload as observed,
// successful or not. Rows are write-once and never conflict; every insert
// carries a freshly generated ScrapeID.
type RawScrape struct {
	ScrapeID     string
	ProductID    string
	Payload      []byte
	Success      bool
	ErrorMessage string
	ScrapedAt    time.Time
	LoadedAt     time.Time
}

// Product is the current snapshot row: exactly one per product ID.
// CurrentPrice is nil for unpriced (out-of-stock) products.
type Product struct {
	ProductID    string    `json:"product_id"`
	Title        string    `json:"title"`
	CurrentPrice *float64  `json:"current_price"`
	Currency     string    `json:"currency"`
	Availability string    `json:"availability"`
	Rating       *float64  `json:"rating"`
	Seller       string    `json:"seller,omitempty"`
	URL          string    `json:"url,omitempty"`
	LastSeenAt   time.Time `json:"last_seen_at"`
	IsActive     bool      `json:"is_active"`
}

// PriceObservation is one append-only history fact. Observations are never
// updated or deleted; retries may produce duplicate-looking rows and the
// history layer keeps them all.
type PriceObservation struct {
	ProductID    string    `json:"product_id"`
	Price        float64   `json:"price"`
	Availability string    `json:"availability"`
	ScrapedAt    time.Time `json:"scraped_at"`
}

// DailySummary is one derived aggregate row per (day, product). It is
// recomputable from price_history at any time and never authoritative.
type DailySummary struct {
	Day       time.Time `json:"day"`
	ProductID string    `json:"product_id"`
	MinPrice  float64   `json:"min_price"`
	MaxPrice  float64   `json:"max_price"`
	AvgPrice  float64   `json:"avg_price"`
	Samples   int       `json:"samples"`
	InStock   bool      `json:"in_stock"`
}

// PipelineState tracks the last successful run per named pipeline. Used for
// staleness detection only, never for locking.
type PipelineState struct {
	PipelineName  string    `json:"pipeline_name"`
	LastRunAt     time.Time `json:"last_run_at"`
	LastRunID     string    `json:"last_run_id"`
	RecordsLoaded int       `json:"records_loaded"`
}

// Store is the full persistence surface. The pipeline and the query API
// each consume narrower interfaces; this is what a backend must implement.
type Store interface {
	// InsertRawScrape appends one audit row. Never overwrites.
	InsertRawScrape(ctx context.Context, row RawScrape) error

	// UpsertProduct inserts or updates the snapshot row for row.ProductID.
	// The update is skipped (applied == false) when the incoming LastSeenAt
	// is older than the stored one, guarding against out-of-order batches.
	UpsertProduct(ctx context.Context, row Product) (applied bool, err error)

	// AppendPriceObservation inserts one history fact.
	AppendPriceObservation(ctx context.Context, obs PriceObservation) error

	// LastPrices returns the stored snapshot price for each of the given
	// product IDs that has one. Missing or unpriced products are absent
	// from the result.
	LastPrices(ctx context.Context, productIDs []string) (map[string]float64, error)

	// UpsertPipelineState records a successful run for the named pipeline.
	UpsertPipelineState(ctx context.Context, state PipelineState) error

	// GetPipelineState reads the tracking row for a named pipeline.
	GetPipelineState(ctx context.Context, name string) (PipelineState, error)

	// RebuildDailySummary recomputes daily_price_summary from price_history
	// for days on or after since. Returns the number of summary rows written.
	RebuildDailySummary(ctx context.Context, since time.Time) (int64, error)

	// Read surface for the dashboard API.
	GetProduct(ctx context.Context, productID string) (Product, error)
	ActiveProducts(ctx context.Context, limit int) ([]Product, error)
	LowestPrices(ctx context.Context, limit int) ([]Product, error)
	SearchProducts(ctx context.Context, term string, limit int) ([]Product, error)
	ProductHistory(ctx context.Context, productID string, days int) ([]PriceObservation, error)
	DailySummaries(ctx context.Context, days int) ([]DailySummary, error)

	// Close releases the underlying connection resources.
	Close()
}
