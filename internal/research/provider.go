package research

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/donorscope/donorscope/internal/metrics"
	"github.com/donorscope/donorscope/pkg/config"
	"github.com/donorscope/donorscope/pkg/donor"
	"github.com/donorscope/donorscope/pkg/scoring"
)

// New builds the summarizer selected by cfg.Provider, wrapped in a cache when
// cfg.CacheSize > 0. A Perplexity provider without an API key yields an
// Unconfigured summarizer rather than a template fallback.
func New(cfg config.ResearchConfig, engine *scoring.Engine, httpClient *http.Client) (Summarizer, error) {
	var s Summarizer
	switch cfg.Provider {
	case ProviderPerplexity, "":
		client, err := NewPerplexityClient(PerplexityOptions{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    time.Duration(cfg.Timeout) * time.Second,
			MaxRetries: cfg.MaxRetries,
			HTTPClient: httpClient,
		})
		if err != nil {
			s = Unconfigured{Provider: ProviderPerplexity}
			break
		}
		s = client
	case ProviderTemplate:
		s = NewTemplateSummarizer(engine, nil)
	default:
		return nil, fmt.Errorf("unknown research provider %q", cfg.Provider)
	}

	if cfg.CacheSize > 0 {
		s = NewCachedSummarizer(s, cfg.CacheSize)
	}
	return s, nil
}

// Instrumented records the outcome and latency of every call on m.
type Instrumented struct {
	Next     Summarizer
	Provider string
	Metrics  *metrics.Metrics
}

func (i Instrumented) GenerateSummary(ctx context.Context, rec donor.Record) (*Summary, error) {
	start := time.Now()
	s, err := i.Next.GenerateSummary(ctx, rec)
	i.Metrics.ResearchFinished(i.Provider, Outcome(err), time.Since(start))
	return s, err
}
