package scrape

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"pricetracker/internal/blob"
	"pricetracker/internal/metrics"
	"pricetracker/internal/pipeline"
)

// Fetch errors surfaced to the ingestion boundary.
var (
	// ErrBotDetected means the marketplace served a robot-check page
	// instead of the product listing.
	ErrBotDetected = errors.New("bot detection triggered")

	// ErrProductNotFound means the ASIN resolves to a missing-product page.
	ErrProductNotFound = errors.New("product not found")
)

// Config controls the product page fetcher.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	ArchivePages   bool
	ArchivePrefix  string
	RenderFallback bool
}

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Renderer fetches a product page through a headless browser. Used as a
// fallback when the plain HTTP path hits bot detection.
type Renderer interface {
	RenderProduct(ctx context.Context, asin string) (pipeline.RawRecord, error)
}

// Client fetches Amazon product pages over plain HTTP via Colly, with
// rotating browser headers and an optional rendered fallback.
type Client struct {
	cfg           Config
	headers       *HeaderRotator
	retry         *retryPolicy
	renderer      Renderer
	archive       blob.Provider
	clock         Clock
	logger        *zap.Logger
	baseCollector *colly.Collector
}

// NewClient builds a Client. renderer and archive may be nil.
func NewClient(cfg Config, renderer Renderer, archive blob.Provider, clock Clock, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.amazon.in"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if archive == nil {
		archive = &blob.NoOpProvider{}
	}
	c := colly.NewCollector(colly.AllowURLRevisit())
	c.SetRequestTimeout(cfg.Timeout)
	return &Client{
		cfg:           cfg,
		headers:       NewHeaderRotator(),
		retry:         newRetryPolicy(cfg.MaxRetries + 1),
		renderer:      renderer,
		archive:       archive,
		clock:         clock,
		logger:        logger,
		baseCollector: c,
	}
}

// productPage accumulates the fields the collector callbacks extract.
type productPage struct {
	title        string
	priceText    string
	availability string
	ratingText   string
	seller       string
	body         []byte
	statusCode   int
}

// FetchProduct retrieves one product listing and returns its raw fields.
// Retries with backoff on transient failures; on persistent bot detection
// it escalates to the rendered fallback when one is configured.
func (c *Client) FetchProduct(ctx context.Context, asin string) (pipeline.RawRecord, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		rec, err := c.fetchOnce(ctx, asin)
		if err == nil {
			metrics.ObserveFetch("ok")
			return rec, nil
		}
		lastErr = err
		if errors.Is(err, ErrBotDetected) {
			metrics.ObserveFetch("bot_check")
		} else {
			metrics.ObserveFetch("error")
		}
		if !c.retry.shouldRetry(err, attempt) {
			break
		}
		c.logger.Debug("retrying product fetch",
			zap.String("asin", asin), zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return pipeline.RawRecord{}, ctx.Err()
		case <-time.After(c.retry.backoff(attempt)):
		}
	}

	if errors.Is(lastErr, ErrBotDetected) && c.cfg.RenderFallback && c.renderer != nil {
		c.logger.Info("escalating to rendered fetch", zap.String("asin", asin))
		return c.renderer.RenderProduct(ctx, asin)
	}
	return pipeline.RawRecord{}, lastErr
}

func (c *Client) fetchOnce(ctx context.Context, asin string) (pipeline.RawRecord, error) {
	url := c.productURL(asin)
	page := &productPage{}
	var fetchErr error

	collector := c.baseCollector.Clone()
	collector.SetRequestTimeout(c.cfg.Timeout)

	headers := c.headers.Next()
	collector.OnRequest(func(r *colly.Request) {
		for key, values := range headers {
			for _, v := range values {
				r.Headers.Set(key, v)
			}
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		page.statusCode = r.StatusCode
		page.body = r.Body
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			page.statusCode = r.StatusCode
		}
		fetchErr = err
	})
	collector.OnHTML("#productTitle", func(e *colly.HTMLElement) {
		page.title = strings.TrimSpace(e.Text)
	})
	collector.OnHTML(".a-price .a-offscreen", func(e *colly.HTMLElement) {
		if page.priceText == "" {
			page.priceText = strings.TrimSpace(e.Text)
		}
	})
	collector.OnHTML("#availability", func(e *colly.HTMLElement) {
		page.availability = strings.TrimSpace(e.Text)
	})
	collector.OnHTML("span.a-icon-alt", func(e *colly.HTMLElement) {
		if page.ratingText == "" {
			page.ratingText = strings.TrimSpace(e.Text)
		}
	})
	collector.OnHTML("#sellerProfileTriggerId", func(e *colly.HTMLElement) {
		page.seller = strings.TrimSpace(e.Text)
	})

	if err := collector.Visit(url); err != nil {
		return pipeline.RawRecord{}, fmt.Errorf("visit %s: %w", url, err)
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return pipeline.RawRecord{}, err
	}
	if fetchErr != nil {
		// Colly reports non-2xx statuses as errors; a 404 is a definitive
		// verdict, not a transport failure.
		if page.statusCode == 404 {
			return pipeline.RawRecord{}, ErrProductNotFound
		}
		return pipeline.RawRecord{}, fmt.Errorf("fetch %s: %w", url, fetchErr)
	}
	if err := classifyPage(page); err != nil {
		return pipeline.RawRecord{}, err
	}

	c.archivePage(ctx, asin, page.body)

	return pipeline.RawRecord{
		ProductID:    asin,
		Title:        page.title,
		PriceText:    page.priceText,
		Availability: page.availability,
		Rating:       parseRating(page.ratingText),
		Seller:       page.seller,
		URL:          url,
		Success:      true,
		ScrapedAt:    c.clock.Now(),
	}, nil
}

func (c *Client) productURL(asin string) string {
	return c.cfg.BaseURL + "/dp/" + asin
}

func (c *Client) archivePage(ctx context.Context, asin string, body []byte) {
	if !c.cfg.ArchivePages || len(body) == 0 {
		return
	}
	key := fmt.Sprintf("%s/%s/%s.html",
		strings.Trim(c.cfg.ArchivePrefix, "/"), asin, c.clock.Now().Format("20060102T150405Z"))
	if err := c.archive.Save(ctx, key, body); err != nil {
		c.logger.Warn("page archive failed", zap.String("asin", asin), zap.Error(err))
	}
}

// classifyPage decides whether the fetched body is a real listing, a bot
// check, or a missing product.
func classifyPage(page *productPage) error {
	lower := strings.ToLower(string(page.body))
	switch {
	case strings.Contains(lower, "robot check"), strings.Contains(lower, "captcha"):
		return ErrBotDetected
	case page.statusCode == 404,
		strings.Contains(lower, "page you are looking for cannot be found"):
		return ErrProductNotFound
	case page.title == "":
		return fmt.Errorf("no product title on page (status %d)", page.statusCode)
	}
	return nil
}

// parseRating extracts the leading number from text like
// "4.3 out of 5 stars".
func parseRating(text string) *float64 {
	if text == "" {
		return nil
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil
	}
	return &v
}
