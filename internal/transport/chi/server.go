package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecshop/internal/domain"
	domproduct "github.com/kailas-cloud/vecshop/internal/domain/product"
	"github.com/kailas-cloud/vecshop/internal/domain/search/match"
	"github.com/kailas-cloud/vecshop/internal/logger"
	healthuc "github.com/kailas-cloud/vecshop/internal/usecase/health"
)

// Defaults applied by NewServer.
const (
	DefaultTopN           = 10
	DefaultMaxUploadBytes = 10 << 20
)

// multipartMemory is the part of an upload kept in memory; the rest spills to disk.
const multipartMemory = 1 << 20

// Searcher runs product similarity searches.
type Searcher interface {
	SearchByText(ctx context.Context, text string, topN int) ([]match.Match, error)
	SearchByImage(ctx context.Context, data []byte, contentType string, topN int) ([]match.Match, error)
}

// ImageSource loads a catalog product image by id. A missing image is an
// error wrapping os.ErrNotExist.
type ImageSource interface {
	Image(ctx context.Context, id string) (data []byte, contentType string, err error)
}

// HealthChecker reports dependency health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Config tunes request handling. Images is optional; without it the product
// image route answers 404.
type Config struct {
	DefaultTopN    int
	MaxUploadBytes int64
	Images         ImageSource
}

// Server holds the HTTP API handlers.
type Server struct {
	search         Searcher
	health         HealthChecker
	images         ImageSource
	defaultTopN    int
	maxUploadBytes int64
	errorHandlers  []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(search Searcher, health HealthChecker, cfg Config) *Server {
	s := &Server{
		search:         search,
		health:         health,
		images:         cfg.Images,
		defaultTopN:    cfg.DefaultTopN,
		maxUploadBytes: cfg.MaxUploadBytes,
	}
	if s.defaultTopN <= 0 {
		s.defaultTopN = DefaultTopN
	}
	if s.maxUploadBytes <= 0 {
		s.maxUploadBytes = DefaultMaxUploadBytes
	}
	// Order matters: dimension mismatch is checked before the embedding parent.
	s.errorHandlers = []errorHandler{
		detailHandler(domain.ErrInvalidArgument, http.StatusBadRequest, ErrorResponseCodeInvalidArgument),
		detailHandler(domain.ErrEmptyInput, http.StatusBadRequest, ErrorResponseCodeEmptyInput),
		detailHandler(domain.ErrEmbeddingDimensionMismatch,
			http.StatusBadGateway, ErrorResponseCodeEmbeddingDimensionMismatch),
		sentinelHandler(domain.ErrEmbeddingFailed, http.StatusBadGateway, ErrorResponseCodeEmbeddingFailed),
		sentinelHandler(domain.ErrSearchBackendFailed,
			http.StatusServiceUnavailable, ErrorResponseCodeSearchBackendFailed),
	}
	return s
}

// Routes mounts the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Post("/api/v1/search", s.Search)
	r.Get("/api/v1/search", s.SearchByQuery)
	r.Post("/api/v1/image-search", s.ImageSearch)
	r.Get("/api/v1/products/{id}/image", s.ProductImage)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// Search handles POST /api/v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	matches, err := s.search.SearchByText(r.Context(), req.Query, s.topN(req.TopN))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse(matches))
}

// SearchByQuery handles GET /api/v1/search?query=...&topN=...
func (s *Server) SearchByQuery(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if _, ok := query["query"]; !ok {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, "query parameter \"query\" is required")
		return
	}
	var text string
	if err := runtime.BindQueryParameter("form", true, true, "query", query, &text); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, "invalid query: "+err.Error())
		return
	}
	topN, ok := bindTopN(w, query)
	if !ok {
		return
	}

	matches, err := s.search.SearchByText(r.Context(), text, s.topN(topN))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse(matches))
}

// ImageSearch handles POST /api/v1/image-search. The image is the multipart
// part "file"; topN comes from the query string or a form field.
func (s *Server) ImageSearch(w http.ResponseWriter, r *http.Request) {
	topN, ok := bindTopN(w, r.URL.Query())
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrorResponseCodePayloadTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	if topN == nil {
		if topN, ok = bindTopN(w, url.Values(r.MultipartForm.Value)); !ok {
			return
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeInvalidArgument, "multipart part \"file\" is required")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, "read upload: "+err.Error())
		return
	}

	ctx := domain.WithUploadFilename(r.Context(), header.Filename)
	matches, err := s.search.SearchByImage(ctx, data, header.Header.Get("Content-Type"), s.topN(topN))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse(matches))
}

// ProductImage handles GET /api/v1/products/{id}/image with the catalog image
// the product was embedded from.
func (s *Server) ProductImage(w http.ResponseWriter, r *http.Request) {
	if s.images == nil {
		writeError(w, http.StatusNotFound, ErrorResponseCodeNotFound, "product images are not configured")
		return
	}
	id := chi.URLParam(r, "id")
	if err := domproduct.CheckID(id); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeInvalidArgument, err.Error())
		return
	}

	data, contentType, err := s.images.Image(r.Context(), id)
	if errors.Is(err, os.ErrNotExist) {
		writeError(w, http.StatusNotFound, ErrorResponseCodeNotFound, "no image for product "+id)
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).Error("load product image", zap.String("product_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, ErrorResponseCodeInternalError, "internal error")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HealthCheck handles GET /health. Degraded still answers 200 so the store
// stays in rotation while the embedding provider recovers.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	var products map[string]int
	if len(report.Products) > 0 {
		products = make(map[string]int, len(report.Products))
		for m, n := range report.Products {
			products[string(m)] = n
		}
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:   string(report.Status),
		Checks:   checks,
		Products: products,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// bindTopN reads the optional topN parameter. On failure it has already
// answered 400 and returns false.
func bindTopN(w http.ResponseWriter, values url.Values) (*int, bool) {
	var topN *int
	if err := runtime.BindQueryParameter("form", true, false, "topN", values, &topN); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, "invalid topN: "+err.Error())
		return nil, false
	}
	return topN, true
}

func (s *Server) topN(requested *int) int {
	if requested == nil {
		return s.defaultTopN
	}
	return *requested
}

func searchResponse(matches []match.Match) SearchResponse {
	items := make([]Product, len(matches))
	for i := range matches {
		m := &matches[i]
		items[i] = Product{
			ID:                 m.ProductID(),
			ProductDisplayName: m.DisplayName(),
			MasterCategory:     m.Category(),
			SubCategory:        m.SubCategory(),
			BaseColour:         m.Colour(),
			Similarity:         m.Similarity(),
		}
	}
	return SearchResponse{Results: items}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorResponseCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// sentinelHandler matches a sentinel and answers with its text only, hiding provider internals.
func sentinelHandler(sentinel error, status int, code ErrorResponseCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

// detailHandler matches a sentinel whose full message is safe to return.
func detailHandler(sentinel error, status int, code ErrorResponseCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		msg := sentinel.Error()
		var dim *domain.DimensionMismatchError
		switch {
		case errors.As(err, &dim):
			msg = dim.Error()
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrEmptyInput):
			msg = err.Error()
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	for _, h := range s.errorHandlers {
		if h(w, err) {
			log.Warn("search request failed", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorResponseCodeInternalError, "internal error")
}
