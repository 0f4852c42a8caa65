package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pricetracker/internal/metrics"
	"pricetracker/internal/storage"
)

// Source delivers the raw batch for one run. Implementations live at the
// ingestion boundary (file reader, live scraper).
type Source interface {
	Extract(ctx context.Context) ([]RawRecord, error)
}

// RunnerStore is the slice of the storage surface the orchestrator itself
// touches: reading snapshot prices for the quality gate and recording run
// state. All other writes go through the Loader.
type RunnerStore interface {
	LastPrices(ctx context.Context, productIDs []string) (map[string]float64, error)
	UpsertPipelineState(ctx context.Context, state storage.PipelineState) error
}

// Notifier publishes advisory events after a run. Publish failures are
// logged, never fatal.
type Notifier interface {
	PublishSpike(ctx context.Context, alert SpikeAlert) error
	PublishRunSummary(ctx context.Context, report RunReport) error
}

// Runner sequences one ETL run: extract, raw load, transform, validate,
// quality gate, clean load. Execution is synchronous and deterministic; a
// record-level failure removes that record from later stages only, and the
// sole run-fatal condition is an empty extracted batch.
type Runner struct {
	pipelineName string
	source       Source
	validator    *Validator
	gate         *QualityGate
	loader       *Loader
	store        RunnerStore
	notifier     Notifier
	ids          IDGenerator
	clock        Clock
	logger       *zap.Logger
}

// NewRunner wires a Runner from its collaborators.
func NewRunner(
	pipelineName string,
	source Source,
	validator *Validator,
	gate *QualityGate,
	loader *Loader,
	store RunnerStore,
	notifier Notifier,
	ids IDGenerator,
	clock Clock,
	logger *zap.Logger,
) *Runner {
	return &Runner{
		pipelineName: pipelineName,
		source:       source,
		validator:    validator,
		gate:         gate,
		loader:       loader,
		store:        store,
		notifier:     notifier,
		ids:          ids,
		clock:        clock,
		logger:       logger,
	}
}

// Run executes one full pipeline pass and returns the run report. The
// report is populated even on abort so callers always see what happened.
// The returned error is non-nil only for the run-fatal empty-extraction
// condition or an extraction error.
func (r *Runner) Run(ctx context.Context) (RunReport, error) {
	runID, err := r.ids.NewID()
	if err != nil {
		return RunReport{}, fmt.Errorf("generate run id: %w", err)
	}
	report := RunReport{
		RunID:     runID,
		Pipeline:  r.pipelineName,
		StartedAt: r.clock.Now(),
	}
	log := r.logger.With(zap.String("run_id", runID), zap.String("pipeline", r.pipelineName))

	// Extracting. An empty batch is the hard stop: no downstream stage
	// runs and nothing is written.
	log.Info("extracting")
	rawBatch, err := r.source.Extract(ctx)
	if err != nil {
		report.FinalStage = StageAborted
		report.FinishedAt = r.clock.Now()
		metrics.ObserveRun(string(StageAborted), report.Duration())
		return report, fmt.Errorf("extract: %w", err)
	}
	report.Extracted = len(rawBatch)
	metrics.AddRecords("extracted", len(rawBatch))
	if len(rawBatch) == 0 {
		log.Error("no records extracted, aborting run")
		report.FinalStage = StageAborted
		report.FinishedAt = r.clock.Now()
		metrics.ObserveRun(string(StageAborted), report.Duration())
		return report, ErrExtractionEmpty
	}
	log.Info("extracted batch", zap.Int("records", len(rawBatch)))

	// Raw audit load happens before anything can drop a record, so the
	// audit trail retains evidence of every attempt.
	rawInserted, rawFailures := r.loader.LoadRaw(ctx, rawBatch)
	report.Failures = append(report.Failures, rawFailures...)
	log.Info("raw records written", zap.Int("inserted", rawInserted), zap.Int("failed", len(rawFailures)))

	// Transforming.
	records := r.transformStage(rawBatch, &report, log)
	metrics.AddRecords("transformed", len(records))

	// Validating.
	valid := r.validateStage(records, &report, log)
	metrics.AddRecords("validated", len(valid))

	// QualityGating.
	gated := r.qualityStage(ctx, valid, &report, log)
	metrics.AddRecords("quality_passed", report.QualityOK)

	// Loading.
	loaded, loadFailures := r.loader.LoadClean(ctx, gated)
	report.Loaded = loaded
	report.Failures = append(report.Failures, loadFailures...)
	metrics.AddRecords("loaded", loaded)
	log.Info("clean records loaded", zap.Int("loaded", loaded), zap.Int("failed", len(loadFailures)))

	report.FinalStage = StageDone
	report.FinishedAt = r.clock.Now()
	metrics.ObserveRun(string(StageDone), report.Duration())

	// The run timestamp only advances when something actually landed, so
	// staleness checks see through all-failure runs.
	if report.Succeeded() {
		if err := r.store.UpsertPipelineState(ctx, storage.PipelineState{
			PipelineName:  r.pipelineName,
			LastRunAt:     report.FinishedAt,
			LastRunID:     runID,
			RecordsLoaded: loaded,
		}); err != nil {
			log.Error("pipeline state update failed", zap.Error(err))
		}
	}

	r.notify(ctx, report, log)
	return report, nil
}

func (r *Runner) transformStage(rawBatch []RawRecord, report *RunReport, log *zap.Logger) []Record {
	records := make([]Record, 0, len(rawBatch))
	for _, raw := range rawBatch {
		if !raw.Success {
			report.Failures = append(report.Failures, RecordFailure{
				ProductID: raw.ProductID,
				Stage:     StageTransforming,
				Kind:      FailureParse,
				Reason:    "fetch unsuccessful: " + raw.Error,
			})
			continue
		}
		rec, err := Transform(raw)
		if err != nil {
			log.Warn("transform failed",
				zap.String("product_id", raw.ProductID),
				zap.Error(err))
			report.Failures = append(report.Failures, RecordFailure{
				ProductID: raw.ProductID,
				Stage:     StageTransforming,
				Kind:      FailureParse,
				Reason:    err.Error(),
			})
			continue
		}
		records = append(records, rec)
	}
	report.Transformed = len(records)
	return records
}

func (r *Runner) validateStage(records []Record, report *RunReport, log *zap.Logger) []Record {
	valid := make([]Record, 0, len(records))
	for _, rec := range records {
		verdict := r.validator.Validate(rec)
		if !verdict.OK {
			log.Warn("validation failed",
				zap.String("product_id", rec.ProductID),
				zap.Strings("violations", verdict.Violations))
			report.Failures = append(report.Failures, RecordFailure{
				ProductID: rec.ProductID,
				Stage:     StageValidating,
				Kind:      FailureValidation,
				Reason:    verdict.Reason(),
			})
			continue
		}
		valid = append(valid, rec)
	}
	report.Validated = len(valid)
	return valid
}

func (r *Runner) qualityStage(ctx context.Context, valid []Record, report *RunReport, log *zap.Logger) []GateResult {
	ids := make([]string, 0, len(valid))
	for _, rec := range valid {
		ids = append(ids, rec.ProductID)
	}
	lastPrices, err := r.store.LastPrices(ctx, ids)
	if err != nil {
		// The gate degrades gracefully: without stored prices no spike
		// can be detected, but duplicates are still caught.
		log.Error("last price lookup failed, spike detection disabled for this run", zap.Error(err))
		lastPrices = map[string]float64{}
	}

	gated := r.gate.Check(valid, lastPrices)
	for _, res := range gated {
		switch res.Decision {
		case GateFlagDuplicate:
			report.Failures = append(report.Failures, RecordFailure{
				ProductID: res.Record.ProductID,
				Stage:     StageQualityGating,
				Kind:      FailureDuplicate,
				Reason:    "product id repeated in batch, first occurrence wins",
			})
		case GateFlagSpike:
			report.QualityOK++
			report.Spikes = append(report.Spikes, *res.Spike)
			report.Failures = append(report.Failures, RecordFailure{
				ProductID: res.Record.ProductID,
				Stage:     StageQualityGating,
				Kind:      FailurePriceSpike,
				Reason: fmt.Sprintf("price changed %.1f%% (%.2f -> %.2f), accepted with flag",
					res.Spike.ChangePct, res.Spike.OldPrice, res.Spike.NewPrice),
			})
		default:
			report.QualityOK++
		}
	}
	return gated
}

func (r *Runner) notify(ctx context.Context, report RunReport, log *zap.Logger) {
	if r.notifier == nil {
		return
	}
	for _, spike := range report.Spikes {
		if err := r.notifier.PublishSpike(ctx, spike); err != nil {
			log.Warn("spike alert publish failed",
				zap.String("product_id", spike.ProductID),
				zap.Error(err))
		}
	}
	if err := r.notifier.PublishRunSummary(ctx, report); err != nil {
		log.Warn("run summary publish failed", zap.Error(err))
	}
}
