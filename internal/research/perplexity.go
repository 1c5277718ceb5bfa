package research

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"

	"github.com/donorscope/donorscope/pkg/donor"
)

const (
	defaultPerplexityBaseURL = "https://api.perplexity.ai"
	defaultPerplexityModel   = "sonar"
	defaultAttemptTimeout    = 30 * time.Second
	maxErrorBody             = 512
)

// PerplexityOptions configures a PerplexityClient.
type PerplexityOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration // per attempt
	MaxRetries int
	HTTPClient *http.Client
	// RetryInterval is the first backoff interval. Defaults to 500ms.
	RetryInterval time.Duration
}

// PerplexityClient summarizes donors with the Perplexity chat completions API.
type PerplexityClient struct {
	apiKey        string
	baseURL       string
	model         string
	timeout       time.Duration
	maxRetries    int
	retryInterval time.Duration
	client        *http.Client
	now           func() time.Time
}

// NewPerplexityClient returns a client. A missing API key is ErrNotConfigured.
func NewPerplexityClient(opts PerplexityOptions) (*PerplexityClient, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("perplexity api key is required: %w", ErrNotConfigured)
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultPerplexityBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultPerplexityModel
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}
	retryInterval := opts.RetryInterval
	if retryInterval <= 0 {
		retryInterval = 500 * time.Millisecond
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &PerplexityClient{
		apiKey:        apiKey,
		baseURL:       baseURL,
		model:         model,
		timeout:       timeout,
		maxRetries:    max(opts.MaxRetries, 0),
		retryInterval: retryInterval,
		client:        client,
		now:           time.Now,
	}, nil
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type jsonSchema struct {
	Schema map[string]any `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

// modelPayload is the JSON document the model is asked to produce.
type modelPayload struct {
	Summary    string   `json:"summary"`
	KeyFacts   []string `json:"key_facts"`
	Sources    []string `json:"sources"`
	Confidence *float64 `json:"confidence"`
}

var summarySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"summary":    map[string]any{"type": "string"},
		"key_facts":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"sources":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"confidence": map[string]any{"type": "number"},
	},
	"required": []string{"summary"},
}

const systemPrompt = "You are a prospect research assistant for a nonprofit fundraising team. " +
	"Respond only with a JSON object with the keys summary, key_facts, sources and confidence (0 to 1)."

func buildPrompt(rec donor.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research the donor %q", rec.Name)
	if rec.Location != "" {
		fmt.Fprintf(&b, " based in %s", rec.Location)
	}
	b.WriteString(". Summarize public philanthropic activity, professional background and giving capacity signals.\n")
	fmt.Fprintf(&b, "Known to us: lifetime giving $%s across %d gifts", rec.EffectiveTotal().StringFixed(2), rec.GiftCount)
	if rec.LastGiftDate != nil {
		fmt.Fprintf(&b, ", last gift on %s", rec.LastGiftDate)
	}
	fmt.Fprintf(&b, ", status %s.", rec.Status)
	return b.String()
}

// GenerateSummary calls the provider, retrying transport failures, 429 and 5xx
// responses with exponential backoff.
func (c *PerplexityClient) GenerateSummary(ctx context.Context, rec donor.Record) (*Summary, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Temperature: 0.2,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(rec)},
		},
		ResponseFormat: &responseFormat{Type: "json_schema", JSONSchema: &jsonSchema{Schema: summarySchema}},
	})
	if err != nil {
		return nil, fmt.Errorf("encode research request: %w", err)
	}

	var resp *chatResponse
	op := func() error {
		r, err := c.attempt(ctx, body)
		if err == nil {
			resp = r
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return backoff.Permanent(err)
		}
		if errors.Is(err, ErrMalformed) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if Outcome(err) == "error" {
			// context cancelled between attempts
			err = fmt.Errorf("%w: %w", ErrTransport, err)
		}
		return nil, err
	}

	return c.parse(rec.ID, resp)
}

func (c *PerplexityClient) attempt(ctx context.Context, body []byte) (*chatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build research request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncateBody(strings.TrimSpace(string(data)), maxErrorBody)}
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return &out, nil
}

func (c *PerplexityClient) parse(donorID string, resp *chatResponse) (*Summary, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrMalformed)
	}
	text := extractJSON(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, fmt.Errorf("%w: empty content", ErrMalformed)
	}

	var payload modelPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if strings.TrimSpace(payload.Summary) == "" {
		return nil, &ValidationError{Field: "summary", Reason: "is required"}
	}
	confidence := citationConfidence(len(resp.Citations))
	if payload.Confidence != nil {
		if *payload.Confidence < 0 || *payload.Confidence > 1 {
			return nil, &ValidationError{Field: "confidence", Reason: fmt.Sprintf("%g is outside [0,1]", *payload.Confidence)}
		}
		confidence = *payload.Confidence
	}

	return &Summary{
		DonorID:     donorID,
		Text:        strings.TrimSpace(payload.Summary),
		KeyFacts:    nonNil(payload.KeyFacts),
		Sources:     mergeSources(payload.Sources, resp.Citations),
		Confidence:  confidence,
		Provider:    ProviderPerplexity,
		GeneratedAt: c.now().UTC(),
	}, nil
}

// truncateBody cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncateBody(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// citationConfidence is used when the model omits a confidence: 0.4 with no
// citations, plus 0.1 per citation, capped at 0.9.
func citationConfidence(citations int) float64 {
	return min(0.4+0.1*float64(citations), 0.9)
}

// extractJSON strips an optional Markdown code fence and surrounding prose.
func extractJSON(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return ""
	}
	return text[start : end+1]
}

func mergeSources(a, b []string) []string {
	out := []string{}
	seen := make(map[string]bool, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
