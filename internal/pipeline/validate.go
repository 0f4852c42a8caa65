package pipeline

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// asinPattern matches ASIN-like identifiers: exactly ten uppercase
// alphanumeric characters.
var asinPattern = regexp.MustCompile(`^[A-Z0-9]{10}$`)

// Rule names reported in validation verdicts.
const (
	RuleASINShape      = "asin_shape"
	RulePricePositive  = "price_positive"
	RulePriceCeiling   = "price_ceiling"
	RuleTitleMinLength = "title_min_length"
	RuleRatingRange    = "rating_range"
)

// ValidatorConfig holds the tunable validation bounds.
type ValidatorConfig struct {
	PriceCeiling   float64
	TitleMinLength int
}

// DefaultValidatorConfig mirrors the bounds the scraper targets: Indian
// marketplace prices under ten million INR, titles of at least three runes.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		PriceCeiling:   10_000_000,
		TitleMinLength: 3,
	}
}

// Validator checks one normalized record against independent field rules.
// Deterministic: same record, same verdict, no hidden state.
type Validator struct {
	cfg ValidatorConfig
}

// NewValidator builds a Validator, falling back to defaults for zero values.
func NewValidator(cfg ValidatorConfig) *Validator {
	def := DefaultValidatorConfig()
	if cfg.PriceCeiling <= 0 {
		cfg.PriceCeiling = def.PriceCeiling
	}
	if cfg.TitleMinLength <= 0 {
		cfg.TitleMinLength = def.TitleMinLength
	}
	return &Validator{cfg: cfg}
}

// Verdict is the outcome of validating one record. Violations lists every
// failed rule, not just the first.
type Verdict struct {
	OK         bool
	Violations []string
}

// Reason renders the violation list for failure reporting.
func (v Verdict) Reason() string {
	return strings.Join(v.Violations, ", ")
}

// Validate evaluates every rule against the record. Rules are independent;
// all of them run so the verdict carries the complete violation list.
func (v *Validator) Validate(rec Record) Verdict {
	var violations []string

	if !asinPattern.MatchString(rec.ProductID) {
		violations = append(violations, fmt.Sprintf("%s: %q", RuleASINShape, rec.ProductID))
	}
	if rec.Priced() {
		if *rec.Price <= 0 {
			violations = append(violations, fmt.Sprintf("%s: %g", RulePricePositive, *rec.Price))
		}
		if *rec.Price >= v.cfg.PriceCeiling {
			violations = append(violations, fmt.Sprintf("%s: %g >= %g", RulePriceCeiling, *rec.Price, v.cfg.PriceCeiling))
		}
	}
	if utf8.RuneCountInString(rec.Title) < v.cfg.TitleMinLength {
		violations = append(violations, fmt.Sprintf("%s: %d < %d", RuleTitleMinLength, utf8.RuneCountInString(rec.Title), v.cfg.TitleMinLength))
	}
	if rec.Rating != nil && (*rec.Rating < 0 || *rec.Rating > 5) {
		violations = append(violations, fmt.Sprintf("%s: %g", RuleRatingRange, *rec.Rating))
	}

	return Verdict{OK: len(violations) == 0, Violations: violations}
}
