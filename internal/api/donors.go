package api

import (
	"net/http"
	"strconv"

	"github.com/donorscope/donorscope/pkg/scoring"
)

type segmentResponse struct {
	OrgID   string          `json:"org_id"`
	Tag     scoring.Tag     `json:"tag"`
	Count   int             `json:"count"`
	Members []segmentMember `json:"members"`
}

type segmentMember struct {
	DonorID    string                    `json:"donor_id"`
	ExternalID string                    `json:"external_id"`
	Name       string                    `json:"name"`
	Ask        scoring.AskRecommendation `json:"ask"`
	Readiness  scoring.ReadinessWindow   `json:"readiness"`
	Tags       scoring.TagSet            `json:"tags"`
}

func queryInt(r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (h *Handler) handleListDonors(w http.ResponseWriter, r *http.Request) {
	orgID := r.PathValue("orgID")
	limit, ok := queryInt(r, "limit", 100)
	if !ok || limit > 1000 {
		writeError(w, http.StatusBadRequest, "limit must be an integer between 0 and 1000")
		return
	}
	offset, ok := queryInt(r, "offset", 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	if _, err := h.store.GetOrganization(r.Context(), orgID); err != nil {
		h.fail(w, r, err)
		return
	}
	donors, err := h.store.ListDonors(r.Context(), orgID, limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, donors)
}

func (h *Handler) handleSegment(w http.ResponseWriter, r *http.Request) {
	orgID := r.PathValue("orgID")
	tag, ok := scoring.ParseTag(r.PathValue("tag"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown segment: "+r.PathValue("tag"))
		return
	}

	if _, err := h.store.GetOrganization(r.Context(), orgID); err != nil {
		h.fail(w, r, err)
		return
	}
	members, err := h.store.ListDonorsByTag(r.Context(), orgID, tag)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := segmentResponse{OrgID: orgID, Tag: tag, Count: len(members), Members: []segmentMember{}}
	for _, m := range members {
		resp.Members = append(resp.Members, segmentMember{
			DonorID:    m.Donor.ID,
			ExternalID: m.Donor.ExternalID,
			Name:       m.Donor.Name,
			Ask:        m.Profile.Ask,
			Readiness:  m.Profile.Readiness,
			Tags:       m.Profile.Tags,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetDonor(w http.ResponseWriter, r *http.Request) {
	d, err := h.store.GetDonor(r.Context(), r.PathValue("donorID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.LatestProfile(r.Context(), r.PathValue("donorID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleRescore recomputes a donor's profile as of ?as_of= (default today).
func (h *Handler) handleRescore(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r.URL.Query().Get("as_of"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.pipeline.Rescore(r.Context(), "", r.PathValue("donorID"), asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	d, err := h.store.GetDonor(r.Context(), r.PathValue("donorID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := h.summarizer.GenerateSummary(r.Context(), d.Record)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
