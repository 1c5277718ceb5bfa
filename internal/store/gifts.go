package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/donorscope/donorscope/pkg/donor"
)

// RecordGift stores a gift and folds it into the donor's record in one
// transaction. A gift whose external ref was already recorded is a no-op;
// created is false in that case and the current donor is returned.
func (s *Service) RecordGift(ctx context.Context, g Gift) (d *Donor, created bool, err error) {
	if g.Amount.IsNegative() {
		return nil, false, fmt.Errorf("record gift %s: amount must not be negative", g.ExternalRef)
	}
	if !validID(g.DonorID) {
		return nil, false, fmt.Errorf("lock donor %s: %w", g.DonorID, ErrNotFound)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin gift transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	d, err = scanDonor(tx.QueryRowContext(ctx,
		`SELECT `+donorColumns+` FROM donors WHERE id = $1 FOR UPDATE`,
		g.DonorID,
	))
	if err != nil {
		return nil, false, fmt.Errorf("lock donor %s: %w", g.DonorID, notFound(err))
	}

	var giftID string
	err = tx.QueryRowContext(ctx,
		`INSERT INTO gifts (donor_id, external_ref, amount, received_on, source)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (external_ref) DO NOTHING
		 RETURNING id`,
		g.DonorID, g.ExternalRef, g.Amount, g.ReceivedOn.Time(), g.Source,
	).Scan(&giftID)
	if errors.Is(err, sql.ErrNoRows) {
		// already recorded
		if err = tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit duplicate gift: %w", err)
		}
		return d, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert gift %s: %w", g.ExternalRef, err)
	}

	updated := d.Record.ApplyGift(g.Amount, g.ReceivedOn)
	raw, err := json.Marshal(updated)
	if err != nil {
		return nil, false, fmt.Errorf("marshal donor %s: %w", d.ID, err)
	}

	err = tx.QueryRowContext(ctx,
		`UPDATE donors SET record = $1, updated_at = now() WHERE id = $2 RETURNING updated_at`,
		raw, d.ID,
	).Scan(&d.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("update donor %s: %w", d.ID, err)
	}
	d.Record = updated

	if err = tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit gift: %w", err)
	}
	return d, true, nil
}

// ListGifts returns a donor's gifts, newest first.
func (s *Service) ListGifts(ctx context.Context, donorID string) ([]Gift, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, donor_id, external_ref, amount, received_on, source
		 FROM gifts WHERE donor_id = $1 ORDER BY received_on DESC, created_at DESC`,
		donorID,
	)
	if err != nil {
		return nil, fmt.Errorf("list gifts: %w", err)
	}
	defer rows.Close()

	gifts := []Gift{}
	for rows.Next() {
		var (
			g  Gift
			on sql.NullTime
		)
		if err := rows.Scan(&g.ID, &g.DonorID, &g.ExternalRef, &g.Amount, &on, &g.Source); err != nil {
			return nil, fmt.Errorf("scan gift: %w", err)
		}
		if on.Valid {
			g.ReceivedOn = donor.DateOf(on.Time)
		}
		gifts = append(gifts, g)
	}
	return gifts, rows.Err()
}
