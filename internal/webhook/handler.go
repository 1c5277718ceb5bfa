package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/donorscope/donorscope/internal/metrics"
	"github.com/donorscope/donorscope/internal/store"
	"github.com/donorscope/donorscope/pkg/donor"
)

// GiftRecorder stores a gift and folds it into the donor record.
// *store.Service satisfies it.
type GiftRecorder interface {
	RecordGift(ctx context.Context, g store.Gift) (*store.Donor, bool, error)
}

// Handler processes incoming gift webhook events.
type Handler struct {
	webhookSecret []byte
	gifts         GiftRecorder
	logger        zerolog.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
}

type giftResponse struct {
	Status    string `json:"status"`
	DonorID   string `json:"donor_id"`
	GiftCount int    `json:"gift_count"`
}

// NewHandler creates a new webhook Handler. m may be nil.
func NewHandler(webhookSecret []byte, gifts GiftRecorder, logger zerolog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		webhookSecret: webhookSecret,
		gifts:         gifts,
		logger:        logger.With().Str("component", "webhook").Logger(),
		metrics:       m,
		now:           time.Now,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) reject(w http.ResponseWriter, status int, msg string) {
	h.metrics.GiftReceived("rejected")
	writeJSON(w, status, map[string]string{"error": msg})
}

// ServeHTTP handles incoming webhook requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.reject(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if err := VerifySignature(body, r.Header.Get(SignatureHeader), h.webhookSecret); err != nil {
		h.logger.Warn().Err(err).Msg("webhook signature verification failed")
		h.reject(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	eventType := r.Header.Get(EventHeader)
	if eventType == "" {
		h.reject(w, http.StatusBadRequest, "missing "+EventHeader+" header")
		return
	}

	event, err := ParseEvent(eventType, body)
	if err != nil {
		h.logger.Warn().Err(err).Str("event", eventType).Msg("webhook parse error")
		h.reject(w, http.StatusBadRequest, err.Error())
		return
	}

	switch e := event.(type) {
	case *PingEvent:
		writeJSON(w, http.StatusOK, map[string]string{"status": "pong"})
	case *GiftEvent:
		h.handleGift(w, r, e)
	}
}

func (h *Handler) handleGift(w http.ResponseWriter, r *http.Request, e *GiftEvent) {
	if err := e.Validate(donor.DateOf(h.now())); err != nil {
		h.reject(w, http.StatusBadRequest, err.Error())
		return
	}

	d, created, err := h.gifts.RecordGift(r.Context(), store.Gift{
		DonorID:     e.DonorID,
		ExternalRef: e.ExternalRef,
		Amount:      e.Amount,
		ReceivedOn:  e.ReceivedOn,
		Source:      e.Source,
	})
	if errors.Is(err, store.ErrNotFound) {
		h.reject(w, http.StatusNotFound, "unknown donor "+e.DonorID)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("external_ref", e.ExternalRef).Msg("record gift")
		h.metrics.GiftReceived("error")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	log := h.logger.With().Str("donor_id", d.ID).Str("external_ref", e.ExternalRef).Logger()
	if !created {
		log.Info().Msg("duplicate gift ignored")
		h.metrics.GiftReceived("duplicate")
		writeJSON(w, http.StatusOK, giftResponse{Status: "duplicate", DonorID: d.ID, GiftCount: d.Record.GiftCount})
		return
	}

	log.Info().Str("amount", e.Amount.String()).Msg("gift recorded")
	h.metrics.GiftReceived("recorded")
	writeJSON(w, http.StatusCreated, giftResponse{Status: "recorded", DonorID: d.ID, GiftCount: d.Record.GiftCount})
}
