// Package ingestion runs the donor batch pipeline: raw batch storage,
// boundary validation, persistence, parallel scoring and report storage.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrBlobNotFound is returned by StorageClient implementations when a blob does not exist.
var ErrBlobNotFound = errors.New("blob not found")

// Blob kinds.
const (
	KindBatches = "batches"
	KindReports = "reports"
)

// StorageClient abstracts blob storage for raw donor batches and scoring reports.
type StorageClient interface {
	PutBatch(ctx context.Context, orgID, batchID string, data []byte) error
	GetBatch(ctx context.Context, orgID, batchID string) ([]byte, error)
	PutReport(ctx context.Context, orgID, batchID string, data []byte) error
	GetReport(ctx context.Context, orgID, batchID string) ([]byte, error)
}

// BlobRef is the storage-relative key of a blob. All backends share this layout.
func BlobRef(orgID, kind, id string) string {
	return orgID + "/" + kind + "/" + id + ".json"
}

// LocalStorage implements StorageClient using the local filesystem.
// Useful for development and testing.
type LocalStorage struct {
	BaseDir string
}

// NewLocalStorage creates a LocalStorage rooted at the given directory.
func NewLocalStorage(baseDir string) *LocalStorage {
	return &LocalStorage{BaseDir: baseDir}
}

func (s *LocalStorage) path(orgID, kind, id string) string {
	return filepath.Join(s.BaseDir, filepath.FromSlash(BlobRef(orgID, kind, id)))
}

func (s *LocalStorage) put(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *LocalStorage) get(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, ErrBlobNotFound)
	}
	return data, err
}

// PutBatch stores a raw donor batch.
func (s *LocalStorage) PutBatch(ctx context.Context, orgID, batchID string, data []byte) error {
	return s.put(s.path(orgID, KindBatches, batchID), data)
}

// GetBatch retrieves a raw donor batch.
func (s *LocalStorage) GetBatch(ctx context.Context, orgID, batchID string) ([]byte, error) {
	return s.get(s.path(orgID, KindBatches, batchID))
}

// PutReport stores a scoring report.
func (s *LocalStorage) PutReport(ctx context.Context, orgID, batchID string, data []byte) error {
	return s.put(s.path(orgID, KindReports, batchID), data)
}

// GetReport retrieves a scoring report.
func (s *LocalStorage) GetReport(ctx context.Context, orgID, batchID string) ([]byte, error) {
	return s.get(s.path(orgID, KindReports, batchID))
}
