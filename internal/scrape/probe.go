package scrape

import (
	"context"
	"errors"
)

// ProbeResult reports whether an ASIN resolves to a live product page.
type ProbeResult struct {
	ASIN  string
	Valid bool
	// Unclear marks probes that could not be decided (bot check, network
	// error); Valid is meaningless when set.
	Unclear bool
	Note    string
}

// CheckASIN probes one ASIN. Useful before adding identifiers to the
// scraper's product list.
func (c *Client) CheckASIN(ctx context.Context, asin string) ProbeResult {
	_, err := c.fetchOnce(ctx, asin)
	switch {
	case err == nil:
		return ProbeResult{ASIN: asin, Valid: true, Note: "valid product found"}
	case errors.Is(err, ErrProductNotFound):
		return ProbeResult{ASIN: asin, Valid: false, Note: "product not found"}
	case errors.Is(err, ErrBotDetected):
		return ProbeResult{ASIN: asin, Unclear: true, Note: "bot detection triggered"}
	default:
		return ProbeResult{ASIN: asin, Unclear: true, Note: err.Error()}
	}
}
