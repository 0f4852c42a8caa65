package pipeline

import (
	"strconv"
	"strings"
)

const (
	maxTitleRunes  = 500
	maxSellerRunes = 100

	defaultCurrency = "INR"
)

// ParsePrice extracts a numeric price from currency-formatted text such as
// "₹1,299.00" or "$99.99". Everything except digits and the decimal point is
// stripped before parsing. Returns a *ParseError when no numeric token
// remains or the residue is not a valid number.
func ParsePrice(text string) (float64, error) {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if clean == "" {
		return 0, &ParseError{Field: "price", Reason: "no numeric token in " + strconv.Quote(text)}
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, &ParseError{Field: "price", Reason: "malformed numeric token " + strconv.Quote(clean)}
	}
	return v, nil
}

// ParseAvailability folds free-text stock phrases into the canonical
// vocabulary. Out-of-stock keywords win over in-stock ones so phrases like
// "Currently unavailable - usually in stock" resolve conservatively.
func ParseAvailability(text string) Availability {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "out of stock"), strings.Contains(lower, "unavailable"):
		return AvailabilityOutOfStock
	case strings.Contains(lower, "in stock"):
		return AvailabilityInStock
	default:
		return AvailabilityUnknown
	}
}

// Transform normalizes one raw scraped record into the strict Record shape.
// It is a pure mapping: no I/O, no hidden state. A missing or unparseable
// price is tolerated only when the availability text indicates the product
// is out of stock; otherwise the record fails with a *ParseError.
func Transform(raw RawRecord) (Record, error) {
	productID := strings.ToUpper(strings.TrimSpace(raw.ProductID))
	if productID == "" {
		return Record{}, &ParseError{Field: "product_id", Reason: "missing"}
	}

	availability := ParseAvailability(raw.Availability)

	var price *float64
	if strings.TrimSpace(raw.PriceText) != "" {
		v, err := ParsePrice(raw.PriceText)
		if err != nil {
			if availability != AvailabilityOutOfStock {
				return Record{}, err
			}
		} else {
			price = &v
		}
	} else if availability != AvailabilityOutOfStock {
		return Record{}, &ParseError{Field: "price", Reason: "missing"}
	}

	// Out-of-stock listings show stale or placeholder prices; drop them so
	// the snapshot never reports a price nobody can pay.
	if availability == AvailabilityOutOfStock {
		price = nil
	}

	currency := raw.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	url := raw.URL
	if url == "" {
		url = "https://www.amazon.in/dp/" + productID
	}

	return Record{
		ProductID:    productID,
		Title:        truncate(strings.TrimSpace(raw.Title), maxTitleRunes),
		Price:        price,
		Currency:     currency,
		Availability: availability,
		Rating:       raw.Rating,
		Seller:       truncate(strings.TrimSpace(raw.Seller), maxSellerRunes),
		URL:          url,
		ScrapedAt:    raw.ScrapedAt,
	}, nil
}

// truncate caps s at limit runes, marking the cut with an ellipsis.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
