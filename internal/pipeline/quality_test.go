package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func pricedRecord(id string, price float64) Record {
	return Record{
		ProductID:    id,
		Title:        "Product " + id,
		Price:        &price,
		Currency:     "INR",
		Availability: AvailabilityInStock,
		ScrapedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestQualityGate_AcceptsCleanBatch(t *testing.T) {
	t.Parallel()

	gate := NewQualityGate(DefaultSpikeThreshold)
	batch := []Record{
		pricedRecord("B000000001", 100),
		pricedRecord("B000000002", 200),
	}

	results := gate.Check(batch, map[string]float64{"B000000001": 110})
	require.Len(t, results, 2)
	for _, res := range results {
		require.Equal(t, GateAccept, res.Decision)
		require.True(t, res.Accepted())
		require.Nil(t, res.Spike)
	}
}

func TestQualityGate_FirstOccurrenceWins(t *testing.T) {
	t.Parallel()

	gate := NewQualityGate(DefaultSpikeThreshold)
	batch := []Record{
		pricedRecord("B000000001", 100),
		pricedRecord("B000000002", 200),
		pricedRecord("B000000001", 150),
		pricedRecord("B000000001", 175),
	}

	results := gate.Check(batch, nil)
	require.Len(t, results, 4)
	require.Equal(t, GateAccept, results[0].Decision)
	require.Equal(t, GateAccept, results[1].Decision)
	require.Equal(t, GateFlagDuplicate, results[2].Decision)
	require.Equal(t, GateFlagDuplicate, results[3].Decision)
	require.False(t, results[2].Accepted())

	// The accepted observation is the first one, price 100.
	require.Equal(t, 100.0, *results[0].Record.Price)
}

func TestQualityGate_SpikeFlaggedButAccepted(t *testing.T) {
	t.Parallel()

	gate := NewQualityGate(0.5)
	batch := []Record{pricedRecord("B000000001", 400)}

	results := gate.Check(batch, map[string]float64{"B000000001": 1000})
	require.Len(t, results, 1)
	res := results[0]
	require.Equal(t, GateFlagSpike, res.Decision)
	require.True(t, res.Accepted())
	require.NotNil(t, res.Spike)
	require.Equal(t, 1000.0, res.Spike.OldPrice)
	require.Equal(t, 400.0, res.Spike.NewPrice)
	require.InDelta(t, -60.0, res.Spike.ChangePct, 0.001)
}

func TestQualityGate_SpikeThresholdBoundary(t *testing.T) {
	t.Parallel()

	gate := NewQualityGate(0.5)
	last := map[string]float64{"B000000001": 1000}

	// Exactly at the threshold is not a spike.
	results := gate.Check([]Record{pricedRecord("B000000001", 1500)}, last)
	require.Equal(t, GateAccept, results[0].Decision)

	// Just over is.
	results = gate.Check([]Record{pricedRecord("B000000001", 1501)}, last)
	require.Equal(t, GateFlagSpike, results[0].Decision)
}

func TestQualityGate_NoSpikeWithoutHistory(t *testing.T) {
	t.Parallel()

	gate := NewQualityGate(0.5)

	// No stored price for the product.
	results := gate.Check([]Record{pricedRecord("B000000001", 5000)}, map[string]float64{})
	require.Equal(t, GateAccept, results[0].Decision)

	// Unpriced records can never spike.
	rec := pricedRecord("B000000002", 0)
	rec.Price = nil
	results = gate.Check([]Record{rec}, map[string]float64{"B000000002": 100})
	require.Equal(t, GateAccept, results[0].Decision)
}

func TestNewQualityGate_DefaultThreshold(t *testing.T) {
	t.Parallel()

	gate := NewQualityGate(0)
	require.Equal(t, DefaultSpikeThreshold, gate.spikeThreshold)
}
