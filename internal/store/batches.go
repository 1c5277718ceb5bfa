package store

import (
	"context"
	"fmt"
	"time"

	"github.com/donorscope/donorscope/pkg/donor"
)

const batchColumns = `id, org_id, idempotency_key, status, as_of, donor_count,
	storage_ref, report_ref, error_message, created_at, updated_at`

func scanBatch(row rowScanner) (*Batch, error) {
	b := &Batch{}
	var asOf time.Time
	if err := row.Scan(&b.ID, &b.OrgID, &b.IdempotencyKey, &b.Status, &asOf, &b.DonorCount,
		&b.StorageRef, &b.ReportRef, &b.ErrorMessage, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.AsOf = donor.DateOf(asOf)
	return b, nil
}

// CreateBatch creates a batch record, or returns the existing one when the
// organization used the idempotency key before. Keys are scoped per organization.
func (s *Service) CreateBatch(ctx context.Context, orgID, idempotencyKey string, asOf donor.Date, donorCount int) (*Batch, error) {
	b, err := scanBatch(s.db.QueryRowContext(ctx,
		`INSERT INTO batches (org_id, idempotency_key, as_of, donor_count)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (org_id, idempotency_key) DO UPDATE SET updated_at = now()
		 RETURNING `+batchColumns,
		orgID, idempotencyKey, asOf.Time(), donorCount,
	))
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}
	return b, nil
}

// UpdateBatchStatus updates the status and optional error message.
func (s *Service) UpdateBatchStatus(ctx context.Context, id, status string, errMsg *string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE batches SET status = $1, error_message = $2, updated_at = now() WHERE id = $3`,
		status, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("update batch status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update batch %s: %w", id, ErrNotFound)
	}
	return nil
}

// CompleteBatch marks a batch COMPLETED and records where its blobs live.
func (s *Service) CompleteBatch(ctx context.Context, id, storageRef, reportRef string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE batches
		 SET status = $1, storage_ref = $2, report_ref = $3, error_message = NULL, updated_at = now()
		 WHERE id = $4`,
		StatusCompleted, storageRef, reportRef, id,
	)
	if err != nil {
		return fmt.Errorf("complete batch %s: %w", id, err)
	}
	return nil
}

// GetBatch retrieves a batch by id.
func (s *Service) GetBatch(ctx context.Context, id string) (*Batch, error) {
	if !validID(id) {
		return nil, fmt.Errorf("get batch %s: %w", id, ErrNotFound)
	}
	b, err := scanBatch(s.db.QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM batches WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("get batch %s: %w", id, notFound(err))
	}
	return b, nil
}
