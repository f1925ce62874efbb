package handlers

import (
	"net/http"

	"github.com/enxi-erp/reconcile-backend/internal/api/dto"
	"github.com/enxi-erp/reconcile-backend/internal/infrastructure/storage"
)

// ReconciliationsHandler serves the finalized reconciliation history.
type ReconciliationsHandler struct {
	Base
	repo storage.Repository
}

// NewReconciliationsHandler creates a new reconciliations handler.
func NewReconciliationsHandler(repo storage.Repository) *ReconciliationsHandler {
	return &ReconciliationsHandler{repo: repo}
}

// List handles GET /api/reconciliations - returns finalized
// reconciliations, newest first.
func (h *ReconciliationsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := ParseIntParam(r, "limit", 50)

	records, err := h.repo.ListReconciliations(r.Context(), limit)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := struct {
		Reconciliations []storage.Reconciliation `json:"reconciliations"`
		Count           int                      `json:"count"`
	}{
		Reconciliations: records,
		Count:           len(records),
	}

	h.WriteJSON(w, http.StatusOK, response)
}
