package extract

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pricetracker/internal/pipeline"
)

// Fetcher retrieves one product page and returns its raw fields.
type Fetcher interface {
	FetchProduct(ctx context.Context, asin string) (pipeline.RawRecord, error)
}

// LiveSource fetches the requested ASINs directly instead of reading a
// file. A per-ASIN fetch failure becomes an unsuccessful raw record (so the
// audit trail keeps the attempt), never a run failure.
type LiveSource struct {
	asins   []string
	fetcher Fetcher
	delay   time.Duration
	clock   Clock
	logger  *zap.Logger
}

// NewLiveSource builds a LiveSource over the given ASIN list.
func NewLiveSource(asins []string, fetcher Fetcher, delay time.Duration, clock Clock, logger *zap.Logger) *LiveSource {
	return &LiveSource{asins: asins, fetcher: fetcher, delay: delay, clock: clock, logger: logger}
}

// Extract fetches every ASIN sequentially with a politeness delay between
// requests. Honors context cancellation between fetches.
func (s *LiveSource) Extract(ctx context.Context) ([]pipeline.RawRecord, error) {
	records := make([]pipeline.RawRecord, 0, len(s.asins))
	for i, asin := range s.asins {
		if i > 0 && s.delay > 0 {
			select {
			case <-ctx.Done():
				return records, ctx.Err()
			case <-time.After(s.delay):
			}
		}

		rec, err := s.fetcher.FetchProduct(ctx, asin)
		if err != nil {
			s.logger.Warn("product fetch failed",
				zap.String("asin", asin), zap.Error(err))
			records = append(records, pipeline.RawRecord{
				ProductID: asin,
				Success:   false,
				Error:     err.Error(),
				ScrapedAt: s.clock.Now(),
			})
			continue
		}
		records = append(records, rec)
	}
	s.logger.Info("live extraction complete",
		zap.Int("requested", len(s.asins)), zap.Int("records", len(records)))
	return records, nil
}
