package pipeline

import (
	"context"
	"fmt"
	"time"

	"pricetracker/internal/storage"
)

// fakeStore implements LoaderStore and RunnerStore, recording every write
// and failing on demand per product ID.
type fakeStore struct {
	rawRows      []storage.RawScrape
	products     []storage.Product
	observations []storage.PriceObservation
	states       []storage.PipelineState

	lastPrices    map[string]float64
	lastPricesErr error
	failRawFor    map[string]bool
	failUpsertFor map[string]bool
	failAppendFor map[string]bool
	staleFor      map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		lastPrices:    map[string]float64{},
		failRawFor:    map[string]bool{},
		failUpsertFor: map[string]bool{},
		failAppendFor: map[string]bool{},
		staleFor:      map[string]bool{},
	}
}

func (s *fakeStore) InsertRawScrape(_ context.Context, row storage.RawScrape) error {
	if s.failRawFor[row.ProductID] {
		return fmt.Errorf("raw insert refused for %s", row.ProductID)
	}
	s.rawRows = append(s.rawRows, row)
	return nil
}

func (s *fakeStore) UpsertProduct(_ context.Context, row storage.Product) (bool, error) {
	if s.failUpsertFor[row.ProductID] {
		return false, fmt.Errorf("upsert refused for %s", row.ProductID)
	}
	s.products = append(s.products, row)
	return !s.staleFor[row.ProductID], nil
}

func (s *fakeStore) AppendPriceObservation(_ context.Context, obs storage.PriceObservation) error {
	if s.failAppendFor[obs.ProductID] {
		return fmt.Errorf("append refused for %s", obs.ProductID)
	}
	s.observations = append(s.observations, obs)
	return nil
}

func (s *fakeStore) LastPrices(_ context.Context, _ []string) (map[string]float64, error) {
	if s.lastPricesErr != nil {
		return nil, s.lastPricesErr
	}
	return s.lastPrices, nil
}

func (s *fakeStore) UpsertPipelineState(_ context.Context, state storage.PipelineState) error {
	s.states = append(s.states, state)
	return nil
}

// fakeIDGen mints sequential IDs.
type fakeIDGen struct {
	n   int
	err error
}

func (g *fakeIDGen) NewID() (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.n++
	return fmt.Sprintf("id-%04d", g.n), nil
}

// fakeClock returns a fixed instant.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// fakeSource returns a canned batch.
type fakeSource struct {
	batch []RawRecord
	err   error
}

func (s *fakeSource) Extract(_ context.Context) ([]RawRecord, error) {
	return s.batch, s.err
}

// fakeNotifier records published events.
type fakeNotifier struct {
	spikes    []SpikeAlert
	summaries []RunReport
	err       error
}

func (n *fakeNotifier) PublishSpike(_ context.Context, alert SpikeAlert) error {
	if n.err != nil {
		return n.err
	}
	n.spikes = append(n.spikes, alert)
	return nil
}

func (n *fakeNotifier) PublishRunSummary(_ context.Context, report RunReport) error {
	if n.err != nil {
		return n.err
	}
	n.summaries = append(n.summaries, report)
	return nil
}
