package scrape

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"pricetracker/internal/pipeline"
)

// ChromedpRenderer fetches product pages through a headless browser. The
// rendered path is slow and is only used when the plain HTTP path keeps
// hitting bot detection.
type ChromedpRenderer struct {
	baseURL string
	timeout time.Duration
	headers *HeaderRotator
	clock   Clock
	logger  *zap.Logger
}

// NewChromedpRenderer builds a renderer.
func NewChromedpRenderer(baseURL string, timeout time.Duration, clock Clock, logger *zap.Logger) *ChromedpRenderer {
	if baseURL == "" {
		baseURL = "https://www.amazon.in"
	}
	if timeout == 0 {
		timeout = 25 * time.Second
	}
	return &ChromedpRenderer{
		baseURL: baseURL,
		timeout: timeout,
		headers: NewHeaderRotator(),
		clock:   clock,
		logger:  logger,
	}
}

// RenderProduct navigates to the listing in a headless Chrome instance and
// extracts the same raw fields as the HTTP path.
func (r *ChromedpRenderer) RenderProduct(ctx context.Context, asin string) (pipeline.RawRecord, error) {
	url := r.baseURL + "/dp/" + asin

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()
	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, r.timeout)
	defer cancelTimeout()

	headers := r.headers.Next()
	extraHeaders := network.Headers{}
	for key := range headers {
		extraHeaders[key] = headers.Get(key)
	}

	var title, priceText, availability, ratingText, seller, bodyText string
	err := chromedp.Run(taskCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(extraHeaders),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(`(document.querySelector('#productTitle')||{textContent:''}).textContent`, &title),
		chromedp.Evaluate(`(document.querySelector('.a-price .a-offscreen')||{textContent:''}).textContent`, &priceText),
		chromedp.Evaluate(`(document.querySelector('#availability')||{textContent:''}).textContent`, &availability),
		chromedp.Evaluate(`(document.querySelector('span.a-icon-alt')||{textContent:''}).textContent`, &ratingText),
		chromedp.Evaluate(`(document.querySelector('#sellerProfileTriggerId')||{textContent:''}).textContent`, &seller),
		chromedp.Evaluate(`document.body.innerText.slice(0, 2000)`, &bodyText),
	)
	if err != nil {
		return pipeline.RawRecord{}, fmt.Errorf("render %s: %w", url, err)
	}

	lower := strings.ToLower(bodyText)
	if strings.Contains(lower, "robot check") || strings.Contains(lower, "captcha") {
		return pipeline.RawRecord{}, ErrBotDetected
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return pipeline.RawRecord{}, fmt.Errorf("render %s: no product title", url)
	}

	r.logger.Debug("rendered product page", zap.String("asin", asin))
	return pipeline.RawRecord{
		ProductID:    asin,
		Title:        title,
		PriceText:    strings.TrimSpace(priceText),
		Availability: strings.TrimSpace(availability),
		Rating:       parseRating(strings.TrimSpace(ratingText)),
		Seller:       strings.TrimSpace(seller),
		URL:          url,
		Success:      true,
		ScrapedAt:    r.clock.Now(),
	}, nil
}
