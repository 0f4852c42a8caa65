package pipeline

import (
	"math"
)

// DefaultSpikeThreshold flags relative price changes above 50% versus the
// last stored price.
const DefaultSpikeThreshold = 0.5

// GateResult is the quality gate's verdict for one batch record.
type GateResult struct {
	Record   Record
	Decision GateDecision
	Spike    *SpikeAlert
}

// Accepted reports whether the record may continue to loading. Spikes are
// accepted; only duplicates are held back.
func (g GateResult) Accepted() bool {
	return g.Decision != GateFlagDuplicate
}

// QualityGate applies batch-level checks to validated records. It reads
// persisted snapshot prices but never mutates storage.
type QualityGate struct {
	spikeThreshold float64
}

// NewQualityGate builds a gate; threshold <= 0 selects the default.
func NewQualityGate(spikeThreshold float64) *QualityGate {
	if spikeThreshold <= 0 {
		spikeThreshold = DefaultSpikeThreshold
	}
	return &QualityGate{spikeThreshold: spikeThreshold}
}

// Check evaluates the batch in order. lastPrices maps product ID to the
// most recently stored snapshot price; products absent from the map (or the
// store) can never spike.
//
// Ordering contract: when a product ID occurs more than once, the first
// occurrence in batch order is accepted and every later one is flagged as a
// duplicate. Results preserve batch order.
func (q *QualityGate) Check(batch []Record, lastPrices map[string]float64) []GateResult {
	results := make([]GateResult, 0, len(batch))
	seen := make(map[string]bool, len(batch))

	for _, rec := range batch {
		if seen[rec.ProductID] {
			results = append(results, GateResult{Record: rec, Decision: GateFlagDuplicate})
			continue
		}
		seen[rec.ProductID] = true

		if alert := q.spike(rec, lastPrices); alert != nil {
			results = append(results, GateResult{Record: rec, Decision: GateFlagSpike, Spike: alert})
			continue
		}
		results = append(results, GateResult{Record: rec, Decision: GateAccept})
	}
	return results
}

func (q *QualityGate) spike(rec Record, lastPrices map[string]float64) *SpikeAlert {
	if !rec.Priced() {
		return nil
	}
	old, ok := lastPrices[rec.ProductID]
	if !ok || old <= 0 {
		return nil
	}
	change := (*rec.Price - old) / old
	if math.Abs(change) <= q.spikeThreshold {
		return nil
	}
	return &SpikeAlert{
		ProductID: rec.ProductID,
		OldPrice:  old,
		NewPrice:  *rec.Price,
		ChangePct: change * 100,
		ScrapedAt: rec.ScrapedAt,
	}
}
