// Package postgres implements the storage.Store interface on PostgreSQL
// using pgx.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"pricetracker/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it,
// so tests run against an expectation-backed pool.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Store persists and reads all price tracker tables.
type Store struct {
	pool pool
}

// New connects a Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates all tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// InsertRawScrape appends one audit row. The caller supplies a fresh
// ScrapeID per call, so inserts never conflict.
func (s *Store) InsertRawScrape(ctx context.Context, row storage.RawScrape) error {
	if row.ScrapeID == "" {
		return fmt.Errorf("scrape id is required")
	}
	query := `
INSERT INTO raw_scrapes (scrape_id, product_id, payload, success, error_message, scraped_at, loaded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.pool.Exec(ctx, query,
		row.ScrapeID,
		row.ProductID,
		row.Payload,
		row.Success,
		nullIfEmpty(row.ErrorMessage),
		row.ScrapedAt,
		row.LoadedAt,
	)
	if err != nil {
		return fmt.Errorf("insert raw scrape: %w", err)
	}
	return nil
}

// UpsertProduct inserts or updates the snapshot row. The conflict update is
// guarded so an incoming observation older than the stored last_seen_at
// leaves the row untouched (applied == false).
func (s *Store) UpsertProduct(ctx context.Context, row storage.Product) (bool, error) {
	query := `
INSERT INTO products (product_id, title, current_price, currency, availability, rating, seller, url, last_seen_at, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE)
ON CONFLICT (product_id) DO UPDATE SET
	title = EXCLUDED.title,
	current_price = EXCLUDED.current_price,
	currency = EXCLUDED.currency,
	availability = EXCLUDED.availability,
	rating = EXCLUDED.rating,
	seller = EXCLUDED.seller,
	url = EXCLUDED.url,
	last_seen_at = EXCLUDED.last_seen_at,
	is_active = TRUE
WHERE products.last_seen_at <= EXCLUDED.last_seen_at`
	tag, err := s.pool.Exec(ctx, query,
		row.ProductID,
		row.Title,
		row.CurrentPrice,
		row.Currency,
		row.Availability,
		row.Rating,
		nullIfEmpty(row.Seller),
		row.URL,
		row.LastSeenAt,
	)
	if err != nil {
		return false, fmt.Errorf("upsert product %s: %w", row.ProductID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// AppendPriceObservation inserts one history fact. Insert-only: retried
// batches produce additional rows rather than conflicts.
func (s *Store) AppendPriceObservation(ctx context.Context, obs storage.PriceObservation) error {
	query := `
INSERT INTO price_history (product_id, price, availability, scraped_at)
VALUES ($1, $2, $3, $4)`
	_, err := s.pool.Exec(ctx, query, obs.ProductID, obs.Price, obs.Availability, obs.ScrapedAt)
	if err != nil {
		return fmt.Errorf("append price observation %s: %w", obs.ProductID, err)
	}
	return nil
}

// LastPrices returns the stored snapshot price per product ID, omitting
// products that are unknown or currently unpriced.
func (s *Store) LastPrices(ctx context.Context, productIDs []string) (map[string]float64, error) {
	prices := make(map[string]float64, len(productIDs))
	if len(productIDs) == 0 {
		return prices, nil
	}
	query := `
SELECT product_id, current_price
FROM products
WHERE product_id = ANY($1) AND current_price IS NOT NULL`
	rows, err := s.pool.Query(ctx, query, productIDs)
	if err != nil {
		return nil, fmt.Errorf("query last prices: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var price float64
		if err := rows.Scan(&id, &price); err != nil {
			return nil, fmt.Errorf("scan last price row: %w", err)
		}
		prices[id] = price
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate last prices: %w", err)
	}
	return prices, nil
}

// UpsertPipelineState records the latest successful run for a pipeline.
func (s *Store) UpsertPipelineState(ctx context.Context, state storage.PipelineState) error {
	query := `
INSERT INTO pipeline_state (pipeline_name, last_run_at, last_run_id, records_loaded)
VALUES ($1, $2, $3, $4)
ON CONFLICT (pipeline_name) DO UPDATE SET
	last_run_at = EXCLUDED.last_run_at,
	last_run_id = EXCLUDED.last_run_id,
	records_loaded = EXCLUDED.records_loaded`
	_, err := s.pool.Exec(ctx, query,
		state.PipelineName, state.LastRunAt, state.LastRunID, state.RecordsLoaded)
	if err != nil {
		return fmt.Errorf("upsert pipeline state %s: %w", state.PipelineName, err)
	}
	return nil
}

// GetPipelineState reads the tracking row for a named pipeline.
func (s *Store) GetPipelineState(ctx context.Context, name string) (storage.PipelineState, error) {
	query := `
SELECT pipeline_name, last_run_at, last_run_id, records_loaded
FROM pipeline_state
WHERE pipeline_name = $1`
	var state storage.PipelineState
	err := s.pool.QueryRow(ctx, query, name).Scan(
		&state.PipelineName, &state.LastRunAt, &state.LastRunID, &state.RecordsLoaded)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.PipelineState{}, storage.ErrNotFound
		}
		return storage.PipelineState{}, fmt.Errorf("get pipeline state %s: %w", name, err)
	}
	return state, nil
}

// RebuildDailySummary recomputes the derived aggregate from price_history.
// Query-time aggregation also handles the duplicate observations the
// history layer deliberately keeps.
func (s *Store) RebuildDailySummary(ctx context.Context, since time.Time) (int64, error) {
	query := `
INSERT INTO daily_price_summary (day, product_id, min_price, max_price, avg_price, samples, in_stock)
SELECT
	date_trunc('day', scraped_at)::date AS day,
	product_id,
	MIN(price),
	MAX(price),
	AVG(price),
	COUNT(*),
	BOOL_OR(availability = 'in_stock')
FROM price_history
WHERE scraped_at >= $1
GROUP BY 1, 2
ON CONFLICT (day, product_id) DO UPDATE SET
	min_price = EXCLUDED.min_price,
	max_price = EXCLUDED.max_price,
	avg_price = EXCLUDED.avg_price,
	samples = EXCLUDED.samples,
	in_stock = EXCLUDED.in_stock`
	tag, err := s.pool.Exec(ctx, query, since)
	if err != nil {
		return 0, fmt.Errorf("rebuild daily summary: %w", err)
	}
	return tag.RowsAffected(), nil
}

const productColumns = `product_id, title, current_price, currency, availability, rating, seller, url, last_seen_at, is_active`

// GetProduct reads one snapshot row.
func (s *Store) GetProduct(ctx context.Context, productID string) (storage.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE product_id = $1`
	row, err := scanProduct(s.pool.QueryRow(ctx, query, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.Product{}, storage.ErrNotFound
		}
		return storage.Product{}, fmt.Errorf("get product %s: %w", productID, err)
	}
	return row, nil
}

// ActiveProducts lists active snapshot rows, most recently seen first.
func (s *Store) ActiveProducts(ctx context.Context, limit int) ([]storage.Product, error) {
	query := `
SELECT ` + productColumns + `
FROM products
WHERE is_active = TRUE
ORDER BY last_seen_at DESC
LIMIT $1`
	return s.queryProducts(ctx, query, limit)
}

// LowestPrices lists the cheapest active priced products.
func (s *Store) LowestPrices(ctx context.Context, limit int) ([]storage.Product, error) {
	query := `
SELECT ` + productColumns + `
FROM products
WHERE is_active = TRUE AND current_price IS NOT NULL
ORDER BY current_price ASC
LIMIT $1`
	return s.queryProducts(ctx, query, limit)
}

// SearchProducts matches active products by title, case-insensitively.
func (s *Store) SearchProducts(ctx context.Context, term string, limit int) ([]storage.Product, error) {
	query := `
SELECT ` + productColumns + `
FROM products
WHERE is_active = TRUE AND title ILIKE '%' || $1 || '%'
ORDER BY last_seen_at DESC
LIMIT $2`
	return s.queryProducts(ctx, query, term, limit)
}

// ProductHistory returns price observations for a product over the last
// `days` days, oldest first.
func (s *Store) ProductHistory(ctx context.Context, productID string, days int) ([]storage.PriceObservation, error) {
	query := `
SELECT product_id, price, availability, scraped_at
FROM price_history
WHERE product_id = $1 AND scraped_at >= NOW() - $2 * INTERVAL '1 day'
ORDER BY scraped_at ASC`
	rows, err := s.pool.Query(ctx, query, productID, days)
	if err != nil {
		return nil, fmt.Errorf("query product history: %w", err)
	}
	defer rows.Close()
	var obs []storage.PriceObservation
	for rows.Next() {
		var o storage.PriceObservation
		if err := rows.Scan(&o.ProductID, &o.Price, &o.Availability, &o.ScrapedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		obs = append(obs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product history: %w", err)
	}
	return obs, nil
}

// DailySummaries returns the derived aggregate rows for the last `days`
// days, oldest first.
func (s *Store) DailySummaries(ctx context.Context, days int) ([]storage.DailySummary, error) {
	query := `
SELECT day, product_id, min_price, max_price, avg_price, samples, in_stock
FROM daily_price_summary
WHERE day >= CURRENT_DATE - $1 * INTERVAL '1 day'
ORDER BY day ASC, product_id ASC`
	rows, err := s.pool.Query(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("query daily summaries: %w", err)
	}
	defer rows.Close()
	var summaries []storage.DailySummary
	for rows.Next() {
		var d storage.DailySummary
		if err := rows.Scan(&d.Day, &d.ProductID, &d.MinPrice, &d.MaxPrice, &d.AvgPrice, &d.Samples, &d.InStock); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		summaries = append(summaries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily summaries: %w", err)
	}
	return summaries, nil
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]storage.Product, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()
	var products []storage.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

func scanProduct(row pgx.Row) (storage.Product, error) {
	var p storage.Product
	var seller *string
	err := row.Scan(
		&p.ProductID,
		&p.Title,
		&p.CurrentPrice,
		&p.Currency,
		&p.Availability,
		&p.Rating,
		&seller,
		&p.URL,
		&p.LastSeenAt,
		&p.IsActive,
	)
	if err != nil {
		return storage.Product{}, err
	}
	if seller != nil {
		p.Seller = *seller
	}
	return p, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
