package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"bollette/internal/core"
)

func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	var req billRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, r, err)
		return
	}

	bill, err := s.bills.CreateBill(r.Context(), ownerID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/bills/"+bill.ID)
	writeJSON(w, http.StatusCreated, bill)
}

func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	page, err := s.bills.ListBills(r.Context(), ownerID(r), parsePageParams(r.URL.Query()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	bill, err := s.bills.GetBill(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func (s *Server) handleUpdateBill(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		writeError(w, r, err)
		return
	}

	bill, err := s.bills.UpdateBill(r.Context(), ownerID(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	if err := s.bills.DeleteBill(r.Context(), ownerID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, err := parseOffset(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	days, err := parseDueSoonDays(q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	summary, err := s.bills.GetSummary(r.Context(), ownerID(r), offset, days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleTotal(w http.ResponseWriter, r *http.Request) {
	offset, err := parseOffset(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	total, err := s.bills.GetTotalAmount(r.Context(), ownerID(r), offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totalBody{Amount: total})
}

func (s *Server) handleBucket(w http.ResponseWriter, r *http.Request) {
	bucket, err := core.ParseBucket(chi.URLParam(r, "bucket"))
	if err != nil {
		writeError(w, r, core.NewValidationError("bucket", err))
		return
	}
	q := r.URL.Query()
	offset, err := parseOffset(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	days, err := parseDueSoonDays(q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := s.bills.GetBucket(r.Context(), bucket, ownerID(r), parsePageParams(q), offset, days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	offset, err := parseOffset(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	occurrences, err := s.bills.Occurrences(r.Context(), ownerID(r), chi.URLParam(r, "id"), offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, occurrences)
}
