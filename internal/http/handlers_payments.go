package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"bollette/internal/core"
)

// handleRecordPayment marks an occurrence as paid without a ledger entry.
func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	payment, err := s.bills.RecordPayment(r.Context(), ownerID(r), chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

// handlePayBill records the payment and its ledger transaction atomically.
func (s *Server) handlePayBill(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.bills.CreateTransactionFromBill(r.Context(), ownerID(r), chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseDateRange(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	payments, err := s.bills.ListPayments(r.Context(), ownerID(r), chi.URLParam(r, "id"), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	category, err := s.bills.CreateCategory(r.Context(), ownerID(r), core.Category{
		Name:  sanitizeInput(req.Name),
		Emoji: req.Emoji,
		Kind:  req.Kind,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}
