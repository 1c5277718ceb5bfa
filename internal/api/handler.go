// Package api implements the hosted donorscope REST API.
// It provides stateless scoring endpoints plus ingest and read endpoints
// backed by Postgres and blob storage.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/donorscope/donorscope/internal/ingestion"
	"github.com/donorscope/donorscope/internal/research"
	"github.com/donorscope/donorscope/internal/store"
	"github.com/donorscope/donorscope/pkg/donor"
	"github.com/donorscope/donorscope/pkg/scoring"
)

// Store is the read side of the persistence layer. *store.Service satisfies it.
type Store interface {
	GetOrganization(ctx context.Context, orgID string) (*store.Organization, error)
	ListDonors(ctx context.Context, orgID string, limit, offset int) ([]store.Donor, error)
	ListDonorsByTag(ctx context.Context, orgID string, tag scoring.Tag) ([]store.SegmentMember, error)
	GetDonor(ctx context.Context, donorID string) (*store.Donor, error)
	LatestProfile(ctx context.Context, donorID string) (*scoring.Profile, error)
	GetBatch(ctx context.Context, id string) (*store.Batch, error)
}

// Pipeline runs ingestion. *ingestion.Service satisfies it.
type Pipeline interface {
	IngestBatch(ctx context.Context, req ingestion.BatchRequest) (*ingestion.BatchResult, error)
	Rescore(ctx context.Context, orgID, donorID string, now time.Time) (*scoring.Profile, error)
	LoadReport(ctx context.Context, batchID string) (*scoring.Report, error)
}

// Handler is the top-level API handler for the hosted donorscope service.
type Handler struct {
	store      Store
	pipeline   Pipeline
	engine     *scoring.Engine
	summarizer research.Summarizer
	reports    *ReportCache
	logger     zerolog.Logger
	now        func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(st Store, pipeline Pipeline, engine *scoring.Engine, summarizer research.Summarizer, reports *ReportCache, logger zerolog.Logger) *Handler {
	if reports == nil {
		reports = NewReportCacheFromEnv()
	}
	return &Handler{
		store:      st,
		pipeline:   pipeline,
		engine:     engine,
		summarizer: summarizer,
		reports:    reports,
		logger:     logger,
		now:        time.Now,
	}
}

// RegisterRoutes registers all API routes on the given ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Write endpoints
	mux.HandleFunc("POST /api/v1/ingest", h.handleIngest)
	mux.HandleFunc("POST /api/donors/{donorID}/rescore", h.handleRescore)

	// Stateless scoring
	mux.HandleFunc("POST /api/v1/score", h.handleScore)
	mux.HandleFunc("POST /api/v1/lookalikes", h.handleLookalikes)

	// Read endpoints
	mux.HandleFunc("GET /api/orgs/{orgID}/donors", h.handleListDonors)
	mux.HandleFunc("GET /api/orgs/{orgID}/segments/{tag}", h.handleSegment)
	mux.HandleFunc("GET /api/donors/{donorID}", h.handleGetDonor)
	mux.HandleFunc("GET /api/donors/{donorID}/profile", h.handleGetProfile)
	mux.HandleFunc("GET /api/donors/{donorID}/summary", h.handleSummary)
	mux.HandleFunc("GET /api/batches/{batchID}", h.handleGetBatch)
	mux.HandleFunc("GET /api/batches/{batchID}/report", h.handleGetReport)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var fe *donor.FieldError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingestion.ErrInvalidBatch), errors.As(err, &fe):
		return http.StatusBadRequest
	case errors.Is(err, ingestion.ErrReportNotReady):
		return http.StatusConflict
	case errors.Is(err, research.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, research.ErrTransport), errors.Is(err, research.ErrStatus),
		errors.Is(err, research.ErrMalformed), errors.Is(err, research.ErrValidation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

// asOf parses an optional YYYY-MM-DD reference date, defaulting to now.
func (h *Handler) asOf(s string) (time.Time, error) {
	if s == "" {
		return h.now(), nil
	}
	d, err := donor.ParseDate(s)
	if err != nil {
		return time.Time{}, err
	}
	return d.Time(), nil
}
