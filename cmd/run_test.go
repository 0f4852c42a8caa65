package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricetracker/internal/pipeline"
)

func TestSplitProducts(t *testing.T) {
	t.Parallel()

	assert.Nil(t, splitProducts(""))
	assert.Nil(t, splitProducts("  "))
	assert.Equal(t, []string{"B000000001"}, splitProducts("B000000001"))
	assert.Equal(t,
		[]string{"B000000001", "B000000002"},
		splitProducts(" B000000001 , B000000002 ,"))
}

func TestPrintSummary(t *testing.T) {
	t.Parallel()

	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	report := pipeline.RunReport{
		RunID:       "run-1",
		Pipeline:    "amazon_price_tracker",
		StartedAt:   started,
		FinishedAt:  started.Add(3 * time.Second),
		FinalStage:  pipeline.StageDone,
		Extracted:   5,
		Transformed: 4,
		Validated:   4,
		QualityOK:   3,
		Loaded:      3,
		Failures: []pipeline.RecordFailure{
			{ProductID: "B000000009", Stage: pipeline.StageValidating, Kind: pipeline.FailureValidation, Reason: "asin_shape"},
		},
	}

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	printSummary(cmd, report)

	out := buf.String()
	require.Contains(t, out, "PIPELINE SUMMARY")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "Extracted:   5")
	assert.Contains(t, out, "Loaded:      3")
	assert.Contains(t, out, "Runtime:     3.0s")
	assert.Contains(t, out, "B000000009")
}
