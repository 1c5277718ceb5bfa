package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donorscope/donorscope/pkg/donor"
)

func testRecord() donor.Record {
	last := donor.NewDate(2026, 2, 1)
	return donor.Record{
		ID:                  "D-1",
		Name:                "Avery Chen",
		TotalLifetimeGiving: decimal.NewFromInt(1500),
		GiftCount:           10,
		LastGiftDate:        &last,
		EngagementScore:     85,
		Status:              donor.StatusActive,
		Location:            "Denver, CO",
	}
}

func completion(content string, citations ...string) string {
	resp := map[string]any{
		"choices":   []any{map[string]any{"message": map[string]any{"content": content}}},
		"citations": citations,
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func newTestClient(t *testing.T, url string, retries int) *PerplexityClient {
	t.Helper()
	c, err := NewPerplexityClient(PerplexityOptions{
		APIKey:        "test-key",
		BaseURL:       url,
		Timeout:       time.Second,
		MaxRetries:    retries,
		RetryInterval: time.Millisecond,
	})
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	return c
}

func TestPerplexityClientSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sonar", req.Model)
		if assert.Len(t, req.Messages, 2) {
			assert.Contains(t, req.Messages[1].Content, "Avery Chen")
			assert.Contains(t, req.Messages[1].Content, "Denver, CO")
		}

		fmt.Fprint(w, completion("```json\n{\"summary\":\"Board member of a local arts trust.\",\"key_facts\":[\"Arts patron\"],\"sources\":[\"https://a.example\"],\"confidence\":0.8}\n```",
			"https://a.example", "https://b.example"))
	}))
	defer srv.Close()

	s, err := newTestClient(t, srv.URL, 0).GenerateSummary(context.Background(), testRecord())
	require.NoError(t, err)

	assert.Equal(t, "D-1", s.DonorID)
	assert.Equal(t, "Board member of a local arts trust.", s.Text)
	assert.Equal(t, []string{"Arts patron"}, s.KeyFacts)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, s.Sources)
	assert.Equal(t, 0.8, s.Confidence)
	assert.Equal(t, ProviderPerplexity, s.Provider)
}

func TestPerplexityClientDerivedConfidence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completion(`{"summary":"Retired physician."}`, "https://a.example", "https://b.example"))
	}))
	defer srv.Close()

	s, err := newTestClient(t, srv.URL, 0).GenerateSummary(context.Background(), testRecord())
	require.NoError(t, err)
	assert.InDelta(t, 0.6, s.Confidence, 1e-9)
	assert.Equal(t, []string{}, s.KeyFacts)
}

func TestPerplexityClientRetries(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
		wantKind  error
	}{
		{"rate limited", http.StatusTooManyRequests, 3, ErrStatus},
		{"server error", http.StatusBadGateway, 3, ErrStatus},
		{"client error is permanent", http.StatusUnauthorized, 1, ErrStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv.URL, 2).GenerateSummary(context.Background(), testRecord())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantKind)
			assert.Equal(t, tt.wantCalls, calls.Load())

			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.status, se.Code)
		})
	}
}

func TestPerplexityClientRecoversAfterRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, completion(`{"summary":"ok","confidence":0.5}`))
	}))
	defer srv.Close()

	s, err := newTestClient(t, srv.URL, 2).GenerateSummary(context.Background(), testRecord())
	require.NoError(t, err)
	assert.Equal(t, "ok", s.Text)
	assert.Equal(t, int32(2), calls.Load())
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestPerplexityClientTransportError(t *testing.T) {
	var calls int
	c, err := NewPerplexityClient(PerplexityOptions{
		APIKey:        "k",
		MaxRetries:    1,
		RetryInterval: time.Millisecond,
		HTTPClient: &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			calls++
			return nil, errors.New("connection refused")
		})},
	})
	require.NoError(t, err)

	_, err = c.GenerateSummary(context.Background(), testRecord())
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, 2, calls)
}

func TestPerplexityClientBadPayloads(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKind error
	}{
		{"not json", "<html>", ErrMalformed},
		{"no choices", `{"choices":[]}`, ErrMalformed},
		{"prose content", completion("I could not find anything."), ErrMalformed},
		{"missing summary", completion(`{"key_facts":["x"]}`), ErrValidation},
		{"confidence out of range", completion(`{"summary":"x","confidence":1.5}`), ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				_, _ = io.Copy(io.Discard, r.Body)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			s, err := newTestClient(t, srv.URL, 2).GenerateSummary(context.Background(), testRecord())
			assert.Nil(t, s)
			assert.ErrorIs(t, err, tt.wantKind)
			assert.Equal(t, int32(1), calls.Load(), "bad payloads are not retried")
		})
	}
}

func TestNewPerplexityClientRequiresKey(t *testing.T) {
	_, err := NewPerplexityClient(PerplexityOptions{APIKey: "  "})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"Here you go: {\"a\":1} hope it helps", `{"a":1}`},
		{"no json", ""},
	}
	for _, tt := range tests {
		if got := extractJSON(tt.in); got != tt.want {
			t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncateBody(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc"},
		{"ab\u00e9", 3, "ab"},
		{"a\u20acb", 2, "a"},
		{"a\u20acb", 4, "a\u20ac"},
	}
	for _, tt := range tests {
		got := truncateBody(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("truncateBody(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncateBody(%q, %d) produced invalid UTF-8", tt.in, tt.n)
		}
	}
}

func TestPerplexityClientErrorBodyKeepsUTF8(t *testing.T) {
	body := strings.Repeat("a", maxErrorBody-1) + "\u00e9\u00e9"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, 0).GenerateSummary(context.Background(), testRecord())
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.True(t, utf8.ValidString(se.Body))
	assert.Len(t, se.Body, maxErrorBody-1)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "status", Outcome(&StatusError{Code: 500}))
	assert.Equal(t, "validation", Outcome(fmt.Errorf("wrap: %w", &ValidationError{Field: "summary"})))
	assert.Equal(t, "transport", Outcome(fmt.Errorf("%w: x", ErrTransport)))
	assert.Equal(t, "error", Outcome(errors.New("other")))

	_, err := Unconfigured{Provider: ProviderPerplexity}.GenerateSummary(context.Background(), testRecord())
	assert.Equal(t, "not_configured", Outcome(err))
}
