package api

import "net/http"

func (h *Handler) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	b, err := h.store.GetBatch(r.Context(), r.PathValue("batchID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("batchID")
	if report := h.reports.Get(batchID); report != nil {
		writeJSON(w, http.StatusOK, report)
		return
	}

	report, err := h.pipeline.LoadReport(r.Context(), batchID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.reports.Put(batchID, report)
	writeJSON(w, http.StatusOK, report)
}
