// Package pipeline implements the ETL core: transform, validate, quality
// gate, load and the run orchestration around them.
package pipeline

import (
	"time"
)

// Availability is the canonical stock status vocabulary.
type Availability string

// Canonical availability values. Free-text scraper output is folded into one
// of these by the transformer.
const (
	AvailabilityInStock    Availability = "in_stock"
	AvailabilityOutOfStock Availability = "out_of_stock"
	AvailabilityUnknown    Availability = "unknown"
)

// RawRecord is one scraped product observation exactly as the ingestion
// boundary handed it over. Fields are loosely typed; nothing here has been
// parsed or validated.
type RawRecord struct {
	ProductID    string    `json:"product_id"`
	Title        string    `json:"title"`
	PriceText    string    `json:"price"`
	Availability string    `json:"availability"`
	Rating       *float64  `json:"rating,omitempty"`
	Seller       string    `json:"seller,omitempty"`
	Currency     string    `json:"currency,omitempty"`
	URL          string    `json:"url,omitempty"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	ScrapedAt    time.Time `json:"scraped_at"`
}

// Record is the strict, normalized shape produced by the transformer.
// Price is nil for unpriced (out-of-stock) observations.
type Record struct {
	ProductID    string
	Title        string
	Price        *float64
	Currency     string
	Availability Availability
	Rating       *float64
	Seller       string
	URL          string
	ScrapedAt    time.Time
}

// Priced reports whether the record carries a numeric price.
func (r Record) Priced() bool {
	return r.Price != nil
}

// Stage identifies a position in the pipeline state machine.
type Stage string

// Pipeline stages in execution order, plus the two terminal states.
const (
	StageIdle          Stage = "idle"
	StageExtracting    Stage = "extracting"
	StageTransforming  Stage = "transforming"
	StageValidating    Stage = "validating"
	StageQualityGating Stage = "quality_gating"
	StageLoading       Stage = "loading"
	StageDone          Stage = "done"
	StageAborted       Stage = "aborted"
)

// GateDecision is the quality gate's verdict for one record.
type GateDecision string

// Gate verdicts. Price spikes are accepted but annotated; duplicates are
// excluded from the clean path.
const (
	GateAccept        GateDecision = "accept"
	GateFlagDuplicate GateDecision = "flag_duplicate"
	GateFlagSpike     GateDecision = "flag_price_spike"
)

// SpikeAlert describes a price change that exceeded the configured
// threshold. Alerts are advisory; the record still loads.
type SpikeAlert struct {
	ProductID string    `json:"product_id"`
	OldPrice  float64   `json:"old_price"`
	NewPrice  float64   `json:"new_price"`
	ChangePct float64   `json:"change_pct"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// RunReport aggregates the outcome of a single pipeline run. Every record
// that fell out of the clean path appears in Failures with a typed reason.
type RunReport struct {
	RunID       string          `json:"run_id"`
	Pipeline    string          `json:"pipeline"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	FinalStage  Stage           `json:"final_stage"`
	Extracted   int             `json:"extracted"`
	Transformed int             `json:"transformed"`
	Validated   int             `json:"validated"`
	QualityOK   int             `json:"quality_ok"`
	Loaded      int             `json:"loaded"`
	Failures    []RecordFailure `json:"failures,omitempty"`
	Spikes      []SpikeAlert    `json:"spikes,omitempty"`
}

// Succeeded reports whether at least one record made it through loading.
func (r RunReport) Succeeded() bool {
	return r.Loaded > 0
}

// Duration returns the wall-clock time the run took.
func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
