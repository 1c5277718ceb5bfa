package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/donorscope/donorscope/internal/metrics"
	"github.com/donorscope/donorscope/internal/store"
	"github.com/donorscope/donorscope/pkg/donor"
	"github.com/donorscope/donorscope/pkg/scoring"
)

var (
	// ErrInvalidBatch is returned when one or more records fail boundary validation.
	ErrInvalidBatch = errors.New("invalid donor batch")
	// ErrReportNotReady is returned for batches that have not completed.
	ErrReportNotReady = errors.New("report not ready")
)

// Repository is the persistence the pipeline needs. *store.Service satisfies it.
type Repository interface {
	EnsureOrganization(ctx context.Context, slug string) (*store.Organization, error)
	UpsertDonor(ctx context.Context, orgID string, rec donor.Record) (*store.Donor, error)
	GetDonor(ctx context.Context, donorID string) (*store.Donor, error)
	InsertProfile(ctx context.Context, donorID string, batchID *string, p *scoring.Profile) (string, error)
	CreateBatch(ctx context.Context, orgID, idempotencyKey string, asOf donor.Date, donorCount int) (*store.Batch, error)
	UpdateBatchStatus(ctx context.Context, id, status string, errMsg *string) error
	CompleteBatch(ctx context.Context, id, storageRef, reportRef string) error
	GetBatch(ctx context.Context, id string) (*store.Batch, error)
}

// Scorer abstracts the scoring engine so the pipeline can be tested in isolation.
type Scorer interface {
	Score(rec donor.Record, now time.Time) (*scoring.Profile, error)
	ScoreAll(ctx context.Context, recs []donor.Record, now time.Time) ([]scoring.Profile, error)
}

// BatchRequest describes one donor batch to ingest.
type BatchRequest struct {
	Org     string // organization slug
	AsOf    time.Time
	Records []donor.Record
	// Raw is the payload as received. When empty the records are re-encoded.
	Raw            []byte
	IdempotencyKey string
}

// BatchResult is the outcome of IngestBatch.
type BatchResult struct {
	BatchID    string          `json:"batch_id"`
	OrgID      string          `json:"org_id"`
	Status     string          `json:"status"`
	DonorCount int             `json:"donor_count"`
	Duplicate  bool            `json:"duplicate"`
	Report     *scoring.Report `json:"report"`
}

// Service orchestrates the ingestion pipeline.
type Service struct {
	repo    Repository
	storage StorageClient
	scorer  Scorer
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewService creates a new ingestion Service. m may be nil.
func NewService(repo Repository, storage StorageClient, scorer Scorer, logger zerolog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		repo:    repo,
		storage: storage,
		scorer:  scorer,
		logger:  logger.With().Str("component", "ingestion").Logger(),
		metrics: m,
	}
}

// IdempotencyKey derives the default batch key from the organization and payload.
func IdempotencyKey(org string, raw []byte) string {
	h := sha256.New()
	h.Write([]byte(org))
	h.Write([]byte{0})
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil))
}

// IngestBatch runs the full pipeline for one batch. A batch whose key already
// completed is not reprocessed; its stored report is returned instead.
func (s *Service) IngestBatch(ctx context.Context, req BatchRequest) (res *BatchResult, err error) {
	if req.Org == "" {
		return nil, fmt.Errorf("%w: organization is required", ErrInvalidBatch)
	}
	if req.AsOf.IsZero() {
		req.AsOf = time.Now()
	}
	raw := req.Raw
	if len(raw) == 0 {
		if raw, err = json.Marshal(req.Records); err != nil {
			return nil, fmt.Errorf("marshal batch: %w", err)
		}
	}
	key := req.IdempotencyKey
	if key == "" {
		key = IdempotencyKey(req.Org, raw)
	}

	// 1. Organization and batch record
	org, err := s.repo.EnsureOrganization(ctx, req.Org)
	if err != nil {
		return nil, err
	}
	batch, err := s.repo.CreateBatch(ctx, org.ID, key, donor.DateOf(req.AsOf), len(req.Records))
	if err != nil {
		return nil, err
	}
	if batch.OrgID != org.ID {
		return nil, fmt.Errorf("%w: idempotency key %q belongs to another organization", ErrInvalidBatch, key)
	}
	log := s.logger.With().Str("batch_id", batch.ID).Str("org", org.Slug).Logger()

	if batch.Status == store.StatusCompleted {
		report, err := s.LoadReport(ctx, batch.ID)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("batch already completed, returning stored report")
		return &BatchResult{
			BatchID:    batch.ID,
			OrgID:      org.ID,
			Status:     batch.Status,
			DonorCount: batch.DonorCount,
			Duplicate:  true,
			Report:     report,
		}, nil
	}

	if err := s.repo.UpdateBatchStatus(ctx, batch.ID, store.StatusRunning, nil); err != nil {
		return nil, fmt.Errorf("update status to running: %w", err)
	}

	// On failure, mark the batch as failed
	defer func() {
		if err == nil {
			s.metrics.BatchFinished(store.StatusCompleted)
			return
		}
		s.metrics.BatchFinished(store.StatusFailed)
		msg := err.Error()
		if updateErr := s.repo.UpdateBatchStatus(context.WithoutCancel(ctx), batch.ID, store.StatusFailed, &msg); updateErr != nil {
			log.Error().Err(updateErr).Msg("failed to update batch status")
		}
		log.Warn().Err(err).Msg("batch failed")
	}()

	// 2. Raw payload
	if err = s.storage.PutBatch(ctx, org.ID, batch.ID, raw); err != nil {
		return nil, fmt.Errorf("put batch blob: %w", err)
	}

	// 3. Boundary validation
	if err = validateBatch(req.Records, req.AsOf); err != nil {
		return nil, err
	}

	// 4. Donors
	donorIDs := make([]string, len(req.Records))
	for i, rec := range req.Records {
		d, upsertErr := s.repo.UpsertDonor(ctx, org.ID, rec)
		if upsertErr != nil {
			err = upsertErr
			return nil, err
		}
		donorIDs[i] = d.ID
	}

	// 5. Score
	start := time.Now()
	profiles, err := s.scorer.ScoreAll(ctx, req.Records, req.AsOf)
	if err != nil {
		return nil, fmt.Errorf("score batch: %w", err)
	}
	s.metrics.ObserveScoring(len(profiles), time.Since(start))

	// 6. Profiles
	for i := range profiles {
		if _, err = s.repo.InsertProfile(ctx, donorIDs[i], &batch.ID, &profiles[i]); err != nil {
			return nil, err
		}
	}

	// 7. Report
	report := scoring.BuildReport(profiles, donor.DateOf(req.AsOf))
	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	if err = s.storage.PutReport(ctx, org.ID, batch.ID, data); err != nil {
		return nil, fmt.Errorf("put report blob: %w", err)
	}

	err = s.repo.CompleteBatch(ctx, batch.ID,
		BlobRef(org.ID, KindBatches, batch.ID),
		BlobRef(org.ID, KindReports, batch.ID),
	)
	if err != nil {
		return nil, err
	}

	log.Info().Int("donors", len(profiles)).Dur("scoring", time.Since(start)).Msg("batch completed")
	return &BatchResult{
		BatchID:    batch.ID,
		OrgID:      org.ID,
		Status:     store.StatusCompleted,
		DonorCount: len(profiles),
		Report:     report,
	}, nil
}

// validateBatch checks every record and rejects duplicate ids. All problems
// are reported together.
func validateBatch(recs []donor.Record, now time.Time) error {
	var errs []error
	seen := make(map[string]int, len(recs))
	for i, rec := range recs {
		if err := rec.Validate(now); err != nil {
			errs = append(errs, fmt.Errorf("record %d (%q): %w", i, rec.ID, err))
		}
		if rec.ID == "" {
			continue
		}
		if first, dup := seen[rec.ID]; dup {
			errs = append(errs, fmt.Errorf("record %d: duplicate id %q (first at %d)", i, rec.ID, first))
			continue
		}
		seen[rec.ID] = i
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidBatch, errors.Join(errs...))
}

// Rescore recomputes and stores the profile of a stored donor. When orgID is
// set, donors of other organizations are reported as not found.
func (s *Service) Rescore(ctx context.Context, orgID, donorID string, now time.Time) (*scoring.Profile, error) {
	d, err := s.repo.GetDonor(ctx, donorID)
	if err != nil {
		return nil, err
	}
	if orgID != "" && d.OrgID != orgID {
		return nil, fmt.Errorf("donor %s in org %s: %w", donorID, orgID, store.ErrNotFound)
	}

	start := time.Now()
	p, err := s.scorer.Score(d.Record, now)
	if err != nil {
		return nil, fmt.Errorf("rescore donor %s: %w", donorID, err)
	}
	s.metrics.ObserveScoring(1, time.Since(start))

	if _, err := s.repo.InsertProfile(ctx, d.ID, nil, p); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadReport returns the stored report of a completed batch.
func (s *Service) LoadReport(ctx context.Context, batchID string) (*scoring.Report, error) {
	b, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b.Status != store.StatusCompleted {
		return nil, fmt.Errorf("batch %s is %s: %w", batchID, b.Status, ErrReportNotReady)
	}

	data, err := s.storage.GetReport(ctx, b.OrgID, b.ID)
	if err != nil {
		return nil, fmt.Errorf("load report %s: %w", batchID, err)
	}
	var report scoring.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", batchID, err)
	}
	return &report, nil
}
