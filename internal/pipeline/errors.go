package pipeline

import (
	"errors"
	"fmt"
)

// ErrExtractionEmpty is the only run-fatal condition: an empty extracted
// batch aborts the run before anything is written.
var ErrExtractionEmpty = errors.New("extraction produced no records")

// FailureKind classifies why a record left the clean path (or, for
// annotations, why it was flagged while staying in it).
type FailureKind string

// Record-level failure kinds.
const (
	FailureParse        FailureKind = "parse_error"
	FailureValidation   FailureKind = "validation_failure"
	FailureDuplicate    FailureKind = "duplicate_in_batch"
	FailurePriceSpike   FailureKind = "price_spike"
	FailureStorageWrite FailureKind = "storage_write_failure"
)

// Annotation reports whether this kind marks the record without removing it
// from the clean path. Price spikes load normally; they are flagged for
// downstream alerting only.
func (k FailureKind) Annotation() bool {
	return k == FailurePriceSpike
}

// RecordFailure attributes a per-record outcome to a stage and reason so no
// record is ever dropped silently.
type RecordFailure struct {
	ProductID string      `json:"product_id"`
	Stage     Stage       `json:"stage"`
	Kind      FailureKind `json:"kind"`
	Reason    string      `json:"reason"`
}

func (f RecordFailure) String() string {
	return fmt.Sprintf("%s [%s/%s]: %s", f.ProductID, f.Stage, f.Kind, f.Reason)
}

// ParseError marks a raw record that could not be normalized.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.Field, e.Reason)
}
