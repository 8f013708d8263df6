package http

import (
	"net/http"

	"spese-analytics/internal/log"
)

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		s.respondError(w, r, log.OpCreate, "", err)
		return
	}

	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, log.OpCreate, userID, err)
		return
	}
	e, err := req.toExpense(userID)
	if err != nil {
		s.respondError(w, r, log.OpCreate, userID, err)
		return
	}

	created, err := s.deps.Expenses.CreateExpense(r.Context(), e)
	if err != nil {
		s.respondError(w, r, log.OpCreate, userID, err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Expense created",
		log.FieldUserID, userID,
		log.FieldExpenseID, created.ID,
		"category", created.Category,
		"amount_cents", created.Amount.Cents)
	writeJSON(w, http.StatusCreated, newExpenseResponse(created))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		s.respondError(w, r, log.OpUpdate, "", err)
		return
	}
	id, err := expenseIDFromPath(r)
	if err != nil {
		s.respondError(w, r, log.OpUpdate, userID, err)
		return
	}

	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, log.OpUpdate, userID, err)
		return
	}
	e, err := req.toExpense(userID)
	if err != nil {
		s.respondError(w, r, log.OpUpdate, userID, err)
		return
	}
	e.ID = id

	if err := s.deps.Expenses.UpdateExpense(r.Context(), e); err != nil {
		s.respondError(w, r, log.OpUpdate, userID, err)
		return
	}
	writeJSON(w, http.StatusOK, newExpenseResponse(e))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		s.respondError(w, r, log.OpDelete, "", err)
		return
	}
	id, err := expenseIDFromPath(r)
	if err != nil {
		s.respondError(w, r, log.OpDelete, userID, err)
		return
	}

	if err := s.deps.Expenses.DeleteExpense(r.Context(), userID, id); err != nil {
		s.respondError(w, r, log.OpDelete, userID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
