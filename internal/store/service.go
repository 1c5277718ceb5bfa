// Package store persists organizations, donors, computed profiles, gifts and
// ingestion batches in Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/donorscope/donorscope/pkg/donor"
	"github.com/donorscope/donorscope/pkg/scoring"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = fmt.Errorf("not found: %w", sql.ErrNoRows)

// Batch lifecycle statuses.
const (
	StatusQueued    = "QUEUED"
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Service provides donor persistence backed by Postgres.
type Service struct {
	db *sql.DB
}

// Organization is a fundraising organization owning a set of donors.
type Organization struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Donor is a stored donor record.
type Donor struct {
	ID         string       `json:"id"`
	OrgID      string       `json:"org_id"`
	ExternalID string       `json:"external_id"`
	Name       string       `json:"name"`
	Record     donor.Record `json:"record"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// SegmentMember is a donor together with its latest profile.
type SegmentMember struct {
	Donor   Donor           `json:"donor"`
	Profile scoring.Profile `json:"profile"`
}

// Gift is a single received gift.
type Gift struct {
	ID          string          `json:"id"`
	DonorID     string          `json:"donor_id"`
	ExternalRef string          `json:"external_ref"`
	Amount      decimal.Decimal `json:"amount"`
	ReceivedOn  donor.Date      `json:"received_on"`
	Source      string          `json:"source"`
}

// Batch tracks one ingestion run.
type Batch struct {
	ID             string     `json:"id"`
	OrgID          string     `json:"org_id"`
	IdempotencyKey string     `json:"idempotency_key"`
	Status         string     `json:"status"`
	AsOf           donor.Date `json:"as_of"`
	DonorCount     int        `json:"donor_count"`
	StorageRef     *string    `json:"storage_ref,omitempty"`
	ReportRef      *string    `json:"report_ref,omitempty"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewService creates a new store Service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Ping verifies the database connection.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// validID reports whether id can name a row. Ids are UUIDs; anything else
// would fail the cast in Postgres instead of matching nothing.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// EnsureOrganization gets or creates an organization by slug.
func (s *Service) EnsureOrganization(ctx context.Context, slug string) (*Organization, error) {
	o := &Organization{}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO organizations (slug, display_name)
		 VALUES ($1, $1)
		 ON CONFLICT (slug) DO UPDATE SET slug = EXCLUDED.slug
		 RETURNING id, slug, display_name, created_at`,
		slug,
	).Scan(&o.ID, &o.Slug, &o.DisplayName, &o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("ensure organization %s: %w", slug, err)
	}
	return o, nil
}

// GetOrganization looks up an organization by id.
func (s *Service) GetOrganization(ctx context.Context, orgID string) (*Organization, error) {
	if !validID(orgID) {
		return nil, fmt.Errorf("get organization %s: %w", orgID, ErrNotFound)
	}
	o := &Organization{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, slug, display_name, created_at FROM organizations WHERE id = $1`,
		orgID,
	).Scan(&o.ID, &o.Slug, &o.DisplayName, &o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get organization %s: %w", orgID, notFound(err))
	}
	return o, nil
}

const donorColumns = `id, org_id, external_id, name, record, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDonor(row rowScanner) (*Donor, error) {
	d := &Donor{}
	var raw []byte
	if err := row.Scan(&d.ID, &d.OrgID, &d.ExternalID, &d.Name, &raw, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &d.Record); err != nil {
		return nil, fmt.Errorf("decode donor record %s: %w", d.ID, err)
	}
	return d, nil
}

// UpsertDonor creates or replaces a donor record keyed by the record's id
// within an organization.
func (s *Service) UpsertDonor(ctx context.Context, orgID string, rec donor.Record) (*Donor, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal donor %s: %w", rec.ID, err)
	}

	d, err := scanDonor(s.db.QueryRowContext(ctx,
		`INSERT INTO donors (org_id, external_id, name, record)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (org_id, external_id) DO UPDATE
		   SET name = EXCLUDED.name, record = EXCLUDED.record, updated_at = now()
		 RETURNING `+donorColumns,
		orgID, rec.ID, rec.Name, raw,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert donor %s: %w", rec.ID, err)
	}
	return d, nil
}

// GetDonor retrieves a donor by id.
func (s *Service) GetDonor(ctx context.Context, donorID string) (*Donor, error) {
	if !validID(donorID) {
		return nil, fmt.Errorf("get donor %s: %w", donorID, ErrNotFound)
	}
	d, err := scanDonor(s.db.QueryRowContext(ctx,
		`SELECT `+donorColumns+` FROM donors WHERE id = $1`,
		donorID,
	))
	if err != nil {
		return nil, fmt.Errorf("get donor %s: %w", donorID, notFound(err))
	}
	return d, nil
}

// ListDonors returns an organization's donors ordered by external id.
func (s *Service) ListDonors(ctx context.Context, orgID string, limit, offset int) ([]Donor, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+donorColumns+` FROM donors WHERE org_id = $1
		 ORDER BY external_id LIMIT $2 OFFSET $3`,
		orgID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list donors: %w", err)
	}
	defer rows.Close()

	donors := []Donor{}
	for rows.Next() {
		d, err := scanDonor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan donor: %w", err)
		}
		donors = append(donors, *d)
	}
	return donors, rows.Err()
}

// ListDonorsByTag returns the donors whose latest profile carries tag.
func (s *Service) ListDonorsByTag(ctx context.Context, orgID string, tag scoring.Tag) ([]SegmentMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.id, d.org_id, d.external_id, d.name, d.record, d.created_at, d.updated_at, lp.profile
		 FROM donors d
		 JOIN LATERAL (
		   SELECT profile, tags FROM profiles
		   WHERE donor_id = d.id ORDER BY created_at DESC LIMIT 1
		 ) lp ON true
		 WHERE d.org_id = $1 AND lp.tags @> $2
		 ORDER BY d.external_id`,
		orgID, pq.Array([]string{string(tag)}),
	)
	if err != nil {
		return nil, fmt.Errorf("list donors by tag %s: %w", tag, err)
	}
	defer rows.Close()

	members := []SegmentMember{}
	for rows.Next() {
		var (
			m          SegmentMember
			rawRecord  []byte
			rawProfile []byte
		)
		if err := rows.Scan(&m.Donor.ID, &m.Donor.OrgID, &m.Donor.ExternalID, &m.Donor.Name,
			&rawRecord, &m.Donor.CreatedAt, &m.Donor.UpdatedAt, &rawProfile); err != nil {
			return nil, fmt.Errorf("scan segment member: %w", err)
		}
		if err := json.Unmarshal(rawRecord, &m.Donor.Record); err != nil {
			return nil, fmt.Errorf("decode donor record %s: %w", m.Donor.ID, err)
		}
		if err := json.Unmarshal(rawProfile, &m.Profile); err != nil {
			return nil, fmt.Errorf("decode profile for %s: %w", m.Donor.ID, err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// InsertProfile stores a computed profile for a donor.
func (s *Service) InsertProfile(ctx context.Context, donorID string, batchID *string, p *scoring.Profile) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal profile: %w", err)
	}

	var id string
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO profiles (donor_id, batch_id, as_of, performance, ask_amount, readiness, severity, tags, profile)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		donorID, batchID, p.AsOf.Time(), string(p.Performance.Kind), p.Ask.Amount,
		string(p.Readiness), string(p.Capacity.Severity), pq.Array(p.Tags.Strings()), raw,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert profile for donor %s: %w", donorID, err)
	}
	return id, nil
}

// LatestProfile returns the most recently computed profile of a donor.
func (s *Service) LatestProfile(ctx context.Context, donorID string) (*scoring.Profile, error) {
	if !validID(donorID) {
		return nil, fmt.Errorf("latest profile for donor %s: %w", donorID, ErrNotFound)
	}
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT profile FROM profiles WHERE donor_id = $1 ORDER BY created_at DESC LIMIT 1`,
		donorID,
	).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("latest profile for donor %s: %w", donorID, notFound(err))
	}

	p := &scoring.Profile{}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode profile for donor %s: %w", donorID, err)
	}
	return p, nil
}
