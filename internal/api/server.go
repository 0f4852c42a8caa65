// Package api exposes the read-only dashboard query surface over the
// price tracker's tables. The pipeline never runs through this server;
// between runs the snapshot and history tables are always in a consistent,
// queryable state.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"pricetracker/internal/metrics"
	"pricetracker/internal/storage"
)

const (
	defaultProductLimit = 50
	maxProductLimit     = 500
	defaultHistoryDays  = 30
	maxHistoryDays      = 365
	queryTimeout        = 5 * time.Second
)

// Reader is the slice of the storage surface the dashboard reads.
type Reader interface {
	GetProduct(ctx context.Context, productID string) (storage.Product, error)
	ActiveProducts(ctx context.Context, limit int) ([]storage.Product, error)
	LowestPrices(ctx context.Context, limit int) ([]storage.Product, error)
	SearchProducts(ctx context.Context, term string, limit int) ([]storage.Product, error)
	ProductHistory(ctx context.Context, productID string, days int) ([]storage.PriceObservation, error)
	DailySummaries(ctx context.Context, days int) ([]storage.DailySummary, error)
	GetPipelineState(ctx context.Context, name string) (storage.PipelineState, error)
}

// Server wires HTTP handlers to the store reader.
type Server struct {
	router       chi.Router
	reader       Reader
	pipelineName string
	logger       *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(reader Reader, pipelineName string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{reader: reader, pipelineName: pipelineName, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", s.listProducts)
		r.Get("/products/lowest", s.lowestPrices)
		r.Get("/products/{asin}", s.getProduct)
		r.Get("/products/{asin}/history", s.productHistory)
		r.Get("/search", s.searchProducts)
		r.Get("/summary/daily", s.dailySummaries)
		r.Get("/pipeline", s.pipelineState)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listProducts handles GET /api/products?limit=.
func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	limit, err := parseLimit(r, defaultProductLimit, maxProductLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	products, err := s.reader.ActiveProducts(ctx, limit)
	if err != nil {
		s.logger.Error("list products failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": emptyIfNil(products)})
}

// lowestPrices handles GET /api/products/lowest?limit=.
func (s *Server) lowestPrices(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	limit, err := parseLimit(r, 20, maxProductLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	products, err := s.reader.LowestPrices(ctx, limit)
	if err != nil {
		s.logger.Error("lowest prices failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": emptyIfNil(products)})
}

// getProduct handles GET /api/products/{asin}.
func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	asin := chi.URLParam(r, "asin")
	product, err := s.reader.GetProduct(ctx, asin)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		s.logger.Error("get product failed", zap.String("asin", asin), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// productHistory handles GET /api/products/{asin}/history?days=.
func (s *Server) productHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	asin := chi.URLParam(r, "asin")
	days, err := parseDays(r, defaultHistoryDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	history, err := s.reader.ProductHistory(ctx, asin, days)
	if err != nil {
		s.logger.Error("product history failed", zap.String("asin", asin), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"product_id": asin,
		"days":       days,
		"history":    emptyIfNilObs(history),
	})
}

// searchProducts handles GET /api/search?q=&limit=.
func (s *Server) searchProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	term := r.URL.Query().Get("q")
	if term == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	limit, err := parseLimit(r, defaultProductLimit, maxProductLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	products, err := s.reader.SearchProducts(ctx, term, limit)
	if err != nil {
		s.logger.Error("search failed", zap.String("term", term), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": emptyIfNil(products)})
}

// dailySummaries handles GET /api/summary/daily?days=.
func (s *Server) dailySummaries(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	days, err := parseDays(r, 7)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	summaries, err := s.reader.DailySummaries(ctx, days)
	if err != nil {
		s.logger.Error("daily summaries failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if summaries == nil {
		summaries = []storage.DailySummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days, "summaries": summaries})
}

// pipelineState handles GET /api/pipeline, reporting run freshness.
func (s *Server) pipelineState(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	state, err := s.reader.GetPipelineState(ctx, s.pipelineName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "pipeline has never completed a run")
			return
		}
		s.logger.Error("pipeline state failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func parseLimit(r *http.Request, def, max int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if limit > max {
		limit = max
	}
	return limit, nil
}

func parseDays(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return def, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days <= 0 {
		return 0, fmt.Errorf("days must be a positive integer")
	}
	if days > maxHistoryDays {
		days = maxHistoryDays
	}
	return days, nil
}

func emptyIfNil(products []storage.Product) []storage.Product {
	if products == nil {
		return []storage.Product{}
	}
	return products
}

func emptyIfNilObs(obs []storage.PriceObservation) []storage.PriceObservation {
	if obs == nil {
		return []storage.PriceObservation{}
	}
	return obs
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
