// Package extract implements the ingestion boundary: sources that deliver
// the raw batch for a pipeline run, either from a scraper output file or by
// fetching product pages live.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"pricetracker/internal/pipeline"
)

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// filePayload is the loosely-shaped record as scrapers write it to disk.
// Field names vary between scraper versions ("product_id" vs "asin",
// numeric vs text price); the conversion into pipeline.RawRecord happens
// exactly once, here.
type filePayload struct {
	ProductID    string   `json:"product_id"`
	ASIN         string   `json:"asin"`
	Title        string   `json:"title"`
	Price        any      `json:"price"`
	PriceText    string   `json:"price_text"`
	Availability string   `json:"availability"`
	Rating       *float64 `json:"rating"`
	Seller       string   `json:"seller"`
	Currency     string   `json:"currency"`
	URL          string   `json:"url"`
	Success      *bool    `json:"success"`
	Error        string   `json:"error"`
	Timestamp    string   `json:"timestamp"`
}

// FileSource reads a scraper output JSON file. A missing or unparseable
// file yields an empty batch (which aborts the run upstream) rather than an
// error, mirroring how a skipped scheduled scrape should behave.
type FileSource struct {
	path   string
	clock  Clock
	logger *zap.Logger
}

// NewFileSource builds a FileSource.
func NewFileSource(path string, clock Clock, logger *zap.Logger) *FileSource {
	return &FileSource{path: path, clock: clock, logger: logger}
}

// Extract reads and converts the file contents into raw records.
func (s *FileSource) Extract(_ context.Context) ([]pipeline.RawRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("source file not found, returning empty batch", zap.String("path", s.path))
			return nil, nil
		}
		return nil, fmt.Errorf("read source file %s: %w", s.path, err)
	}

	var payloads []filePayload
	if err := json.Unmarshal(data, &payloads); err != nil {
		s.logger.Error("source file is not valid JSON, returning empty batch",
			zap.String("path", s.path), zap.Error(err))
		return nil, nil
	}

	now := s.clock.Now()
	records := make([]pipeline.RawRecord, 0, len(payloads))
	for _, p := range payloads {
		records = append(records, p.toRawRecord(now))
	}
	s.logger.Info("extracted records from file",
		zap.String("path", s.path), zap.Int("records", len(records)))
	return records, nil
}

func (p filePayload) toRawRecord(now time.Time) pipeline.RawRecord {
	productID := p.ProductID
	if productID == "" {
		productID = p.ASIN
	}

	priceText := p.PriceText
	switch v := p.Price.(type) {
	case string:
		priceText = v
	case float64:
		priceText = strconv.FormatFloat(v, 'f', -1, 64)
	}

	success := true
	if p.Success != nil {
		success = *p.Success
	}

	scrapedAt := now
	if p.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, p.Timestamp); err == nil {
			scrapedAt = ts
		}
	}

	return pipeline.RawRecord{
		ProductID:    productID,
		Title:        p.Title,
		PriceText:    priceText,
		Availability: p.Availability,
		Rating:       p.Rating,
		Seller:       p.Seller,
		Currency:     p.Currency,
		URL:          p.URL,
		Success:      success,
		Error:        p.Error,
		ScrapedAt:    scrapedAt,
	}
}
