package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pricetracker/internal/api"
	"pricetracker/internal/storage"
)

type fakeReader struct {
	products  map[string]storage.Product
	history   []storage.PriceObservation
	summaries []storage.DailySummary
	state     storage.PipelineState
	stateErr  error
	failAll   bool
}

var errReaderDown = errors.New("reader down")

func (r *fakeReader) GetProduct(_ context.Context, productID string) (storage.Product, error) {
	if r.failAll {
		return storage.Product{}, errReaderDown
	}
	p, ok := r.products[productID]
	if !ok {
		return storage.Product{}, storage.ErrNotFound
	}
	return p, nil
}

func (r *fakeReader) ActiveProducts(_ context.Context, limit int) ([]storage.Product, error) {
	if r.failAll {
		return nil, errReaderDown
	}
	var out []storage.Product
	for _, p := range r.products {
		if len(out) == limit {
			break
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *fakeReader) LowestPrices(ctx context.Context, limit int) ([]storage.Product, error) {
	return r.ActiveProducts(ctx, limit)
}

func (r *fakeReader) SearchProducts(ctx context.Context, _ string, limit int) ([]storage.Product, error) {
	return r.ActiveProducts(ctx, limit)
}

func (r *fakeReader) ProductHistory(_ context.Context, _ string, _ int) ([]storage.PriceObservation, error) {
	if r.failAll {
		return nil, errReaderDown
	}
	return r.history, nil
}

func (r *fakeReader) DailySummaries(_ context.Context, _ int) ([]storage.DailySummary, error) {
	if r.failAll {
		return nil, errReaderDown
	}
	return r.summaries, nil
}

func (r *fakeReader) GetPipelineState(_ context.Context, _ string) (storage.PipelineState, error) {
	if r.stateErr != nil {
		return storage.PipelineState{}, r.stateErr
	}
	return r.state, nil
}

func testProduct() storage.Product {
	price := 4499.00
	return storage.Product{
		ProductID:    "B08N5WRWNW",
		Title:        "Echo Dot",
		CurrentPrice: &price,
		Currency:     "INR",
		Availability: "in_stock",
		LastSeenAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		IsActive:     true,
	}
}

func newTestServer(reader *fakeReader) *httptest.Server {
	s := api.NewServer(reader, "amazon_price_tracker", zap.NewNop())
	return httptest.NewServer(s.Handler())
}

func getJSON(t *testing.T, url string, into any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if into != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
	}
	return resp.StatusCode
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeReader{})
	defer server.Close()

	var body map[string]string
	status := getJSON(t, server.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestServer_GetProduct(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{products: map[string]storage.Product{"B08N5WRWNW": testProduct()}}
	server := newTestServer(reader)
	defer server.Close()

	var product storage.Product
	status := getJSON(t, server.URL+"/api/products/B08N5WRWNW", &product)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Echo Dot", product.Title)
	require.NotNil(t, product.CurrentPrice)
	assert.Equal(t, 4499.00, *product.CurrentPrice)

	status = getJSON(t, server.URL+"/api/products/B000000404", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_ListProducts(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{products: map[string]storage.Product{"B08N5WRWNW": testProduct()}}
	server := newTestServer(reader)
	defer server.Close()

	var body struct {
		Products []storage.Product `json:"products"`
	}
	status := getJSON(t, server.URL+"/api/products", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, body.Products, 1)

	// A bad limit is rejected, not defaulted.
	status = getJSON(t, server.URL+"/api/products?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	status = getJSON(t, server.URL+"/api/products?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServer_EmptyListsAreArrays(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeReader{})
	defer server.Close()

	var body map[string]json.RawMessage
	status := getJSON(t, server.URL+"/api/products", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body["products"]))
}

func TestServer_ProductHistory(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{history: []storage.PriceObservation{
		{ProductID: "B08N5WRWNW", Price: 4499, Availability: "in_stock", ScrapedAt: time.Now().UTC()},
	}}
	server := newTestServer(reader)
	defer server.Close()

	var body struct {
		ProductID string                     `json:"product_id"`
		Days      int                        `json:"days"`
		History   []storage.PriceObservation `json:"history"`
	}
	status := getJSON(t, server.URL+"/api/products/B08N5WRWNW/history?days=7", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "B08N5WRWNW", body.ProductID)
	assert.Equal(t, 7, body.Days)
	assert.Len(t, body.History, 1)
}

func TestServer_Search(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{products: map[string]storage.Product{"B08N5WRWNW": testProduct()}}
	server := newTestServer(reader)
	defer server.Close()

	status := getJSON(t, server.URL+"/api/search?q=echo", nil)
	assert.Equal(t, http.StatusOK, status)

	// q is mandatory.
	status = getJSON(t, server.URL+"/api/search", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServer_PipelineState(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{state: storage.PipelineState{
		PipelineName:  "amazon_price_tracker",
		LastRunAt:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		LastRunID:     "run-1",
		RecordsLoaded: 12,
	}}
	server := newTestServer(reader)
	defer server.Close()

	var state storage.PipelineState
	status := getJSON(t, server.URL+"/api/pipeline", &state)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "run-1", state.LastRunID)
	assert.Equal(t, 12, state.RecordsLoaded)
}

func TestServer_PipelineStateNeverRan(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeReader{stateErr: storage.ErrNotFound})
	defer server.Close()

	status := getJSON(t, server.URL+"/api/pipeline", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_ReaderFailureIs500(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeReader{failAll: true})
	defer server.Close()

	var body map[string]string
	status := getJSON(t, server.URL+"/api/products", &body)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "query failed", body["error"])
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeReader{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
