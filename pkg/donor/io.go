package donor

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// SaveRecords writes records to disk as an indented JSON array.
func SaveRecords(path string, records []Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for donors: %w", err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling donors: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing donors: %w", err)
	}

	return nil
}

// LoadRecords reads a JSON array of records from disk.
func LoadRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading donors: %w", err)
	}
	defer f.Close()

	return DecodeRecords(f)
}

// DecodeRecords reads a JSON array of records. A single JSON object is accepted
// as a one-record batch.
func DecodeRecords(r io.Reader) ([]Record, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding donors: %w", err)
	}

	trimmed := firstNonSpace(raw)
	switch trimmed {
	case '[':
		var records []Record
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("unmarshaling donors: %w", err)
		}
		return records, nil
	case '{':
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("unmarshaling donor: %w", err)
		}
		return []Record{rec}, nil
	default:
		return nil, fmt.Errorf("decoding donors: expected a JSON array or object")
	}
}

func firstNonSpace(b []byte) byte {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return c
	}
	return 0
}
