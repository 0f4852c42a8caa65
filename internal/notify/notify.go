// Package notify publishes advisory pipeline events (price-spike alerts,
// run summaries) to downstream consumers. The interface abstraction allows
// GCP Pub/Sub in production and in-memory or no-op publishers elsewhere.
package notify

import (
	"context"

	"pricetracker/internal/pipeline"
)

// Event names attached to published messages.
const (
	EventPriceSpike = "price_spike"
	EventRunSummary = "run_summary"
)

// Publisher sends one JSON-encoded event. Implementations must be safe for
// sequential reuse within a run.
type Publisher interface {
	// Publish sends the payload under the given event name and returns the
	// backend message ID.
	Publish(ctx context.Context, event string, payload any) (string, error)

	// Close cleans up client connections and resources.
	Close() error
}

// NoOpPublisher discards all events.
type NoOpPublisher struct{}

// Publish for NoOpPublisher does nothing and returns a dummy ID.
func (n *NoOpPublisher) Publish(_ context.Context, _ string, _ any) (string, error) {
	return "noop-message-id", nil
}

// Close for NoOpPublisher does nothing and returns nil.
func (n *NoOpPublisher) Close() error { return nil }

// Notifier adapts a Publisher to the pipeline's notification hooks.
type Notifier struct {
	publisher Publisher
}

// NewNotifier wraps a publisher.
func NewNotifier(p Publisher) *Notifier {
	return &Notifier{publisher: p}
}

// PublishSpike sends one price-spike alert.
func (n *Notifier) PublishSpike(ctx context.Context, alert pipeline.SpikeAlert) error {
	_, err := n.publisher.Publish(ctx, EventPriceSpike, alert)
	return err
}

// PublishRunSummary sends the end-of-run report.
func (n *Notifier) PublishRunSummary(ctx context.Context, report pipeline.RunReport) error {
	_, err := n.publisher.Publish(ctx, EventRunSummary, report)
	return err
}
