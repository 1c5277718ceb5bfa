// Package research produces narrative donor research summaries, either from an
// AI research provider or from the donor's own scoring profile.
package research

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/donorscope/donorscope/pkg/donor"
)

// Providers.
const (
	ProviderPerplexity = "perplexity"
	ProviderTemplate   = "template"
)

// Error kinds. Concrete errors returned by summarizers match exactly one kind
// under errors.Is.
var (
	ErrTransport     = errors.New("research transport failure")
	ErrStatus        = errors.New("research provider error status")
	ErrMalformed     = errors.New("malformed research response")
	ErrValidation    = errors.New("invalid research response")
	ErrNotConfigured = errors.New("research provider not configured")
)

// StatusError is a non-2xx provider response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("research provider returned status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool { return target == ErrStatus }

// Retryable reports whether the request may succeed if repeated.
func (e *StatusError) Retryable() bool {
	return e.Code == 429 || e.Code >= 500
}

// ValidationError is a well-formed response that violates the summary contract.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("research response field %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Summary is a narrative research summary of one donor.
type Summary struct {
	DonorID     string    `json:"donor_id"`
	Text        string    `json:"text"`
	KeyFacts    []string  `json:"key_facts"`
	Sources     []string  `json:"sources"`
	Confidence  float64   `json:"confidence"` // 0-1
	Provider    string    `json:"provider"`
	GeneratedAt time.Time `json:"generated_at"`
}

func (s *Summary) clone() *Summary {
	cp := *s
	cp.KeyFacts = slices.Clone(s.KeyFacts)
	cp.Sources = slices.Clone(s.Sources)
	return &cp
}

// Summarizer generates a research summary for a donor.
type Summarizer interface {
	GenerateSummary(ctx context.Context, rec donor.Record) (*Summary, error)
}

// Unconfigured is the summarizer used when the selected provider lacks
// credentials. Every call fails with ErrNotConfigured.
type Unconfigured struct {
	Provider string
}

func (u Unconfigured) GenerateSummary(ctx context.Context, rec donor.Record) (*Summary, error) {
	return nil, fmt.Errorf("%s: %w", u.Provider, ErrNotConfigured)
}

// Outcome names the error kind of err for metrics labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrStatus):
		return "status"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "error"
	}
}
