package api

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/donorscope/donorscope/internal/ingestion"
	"github.com/donorscope/donorscope/pkg/donor"
	"github.com/donorscope/donorscope/pkg/scoring"
)

const maxBodyBytes = 64 << 20

// ingestRequest is the JSON body for POST /api/v1/ingest.
type ingestRequest struct {
	Org            string          `json:"org"`
	AsOf           string          `json:"as_of"` // YYYY-MM-DD; defaults to today
	IdempotencyKey string          `json:"idempotency_key"`
	Donors         json.RawMessage `json:"donors"`
}

type scoreRequest struct {
	AsOf  string        `json:"as_of"`
	Donor *donor.Record `json:"donor"`
}

type lookalikeRequest struct {
	AsOf   string         `json:"as_of"`
	Target *donor.Record  `json:"target"`
	Pool   []donor.Record `json:"pool"`
	K      int            `json:"k"`
}

type lookalikeResponse struct {
	TargetID   string              `json:"target_id"`
	Lookalikes []scoring.Lookalike `json:"lookalikes"`
}

// requestBody returns the request body, transparently decompressing gzip.
func requestBody(r *http.Request) (io.ReadCloser, error) {
	if r.Header.Get("Content-Encoding") != "gzip" {
		return r.Body, nil
	}
	gz, err := gzip.NewReader(r.Body)
	if err != nil {
		return nil, fmt.Errorf("invalid gzip body: %w", err)
	}
	return gz, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := requestBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Org == "" || len(req.Donors) == 0 {
		writeError(w, http.StatusBadRequest, "org and donors are required")
		return
	}

	asOf, err := h.asOf(req.AsOf)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var records []donor.Record
	if err := json.Unmarshal(req.Donors, &records); err != nil {
		writeError(w, http.StatusBadRequest, "donors must be an array of donor records: "+err.Error())
		return
	}

	res, err := h.pipeline.IngestBatch(r.Context(), ingestion.BatchRequest{
		Org:            req.Org,
		AsOf:           asOf,
		Records:        records,
		Raw:            req.Donors,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.reports.Put(res.BatchID, res.Report)
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

// handleScore scores a single record without persisting it.
func (h *Handler) handleScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Donor == nil {
		writeError(w, http.StatusBadRequest, "donor is required")
		return
	}
	asOf, err := h.asOf(req.AsOf)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.engine.Score(*req.Donor, asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleLookalikes ranks a pool of records by similarity to a target.
func (h *Handler) handleLookalikes(w http.ResponseWriter, r *http.Request) {
	var req lookalikeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Target == nil {
		writeError(w, http.StatusBadRequest, "target is required")
		return
	}
	asOf, err := h.asOf(req.AsOf)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	matches, err := h.engine.Lookalikes(*req.Target, req.Pool, asOf, req.K)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lookalikeResponse{TargetID: req.Target.ID, Lookalikes: matches})
}
