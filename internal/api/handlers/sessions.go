package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/enxi-erp/reconcile-backend/internal/api/dto"
	"github.com/enxi-erp/reconcile-backend/internal/application/service"
	"github.com/enxi-erp/reconcile-backend/internal/application/session"
	"github.com/enxi-erp/reconcile-backend/internal/domain/ledger"
	"github.com/enxi-erp/reconcile-backend/internal/domain/matcher"
	"github.com/enxi-erp/reconcile-backend/internal/domain/registry"
)

const dateLayout = "2006-01-02"

// SessionsHandler handles reconciliation session HTTP requests.
type SessionsHandler struct {
	Base
	svc          *service.Service
	defaultRules matcher.Rules
}

// NewSessionsHandler creates a new sessions handler. defaultRules are
// applied when an auto-match request omits overrides.
func NewSessionsHandler(svc *service.Service, defaultRules matcher.Rules) *SessionsHandler {
	return &SessionsHandler{svc: svc, defaultRules: defaultRules}
}

// Create handles POST /api/sessions - opens and loads a new session.
func (h *SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateSessionRequest
	if err := DecodeJSON(r, &req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid JSON body"))
		return
	}

	start, err := time.Parse(dateLayout, req.PeriodStart)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("period_start must be YYYY-MM-DD"))
		return
	}
	end, err := time.Parse(dateLayout, req.PeriodEnd)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("period_end must be YYYY-MM-DD"))
		return
	}
	opening, err := decimal.NewFromString(req.OpeningBalance)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("opening_balance must be a decimal string"))
		return
	}
	closing, err := decimal.NewFromString(req.ClosingBalance)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("closing_balance must be a decimal string"))
		return
	}

	handle, err := h.svc.Create(r.Context(), service.CreateRequest{
		PeriodStart:    start,
		PeriodEnd:      end,
		BankAccountID:  req.BankAccountID,
		OpeningBalance: opening,
		ClosingBalance: closing,
	})
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, toSessionResponse(handle))
}

// List handles GET /api/sessions.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	handles := h.svc.List()

	response := dto.SessionListResponse{
		Sessions: make([]dto.SessionResponse, 0, len(handles)),
	}
	for _, handle := range handles {
		response.Sessions = append(response.Sessions, toSessionResponse(handle))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// Get handles GET /api/sessions/{id}.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.WriteJSON(w, http.StatusOK, toSessionResponse(handle))
}

// AutoMatch handles POST /api/sessions/{id}/automatch.
func (h *SessionsHandler) AutoMatch(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.lookup(w, r)
	if !ok {
		return
	}

	rules := h.defaultRules
	if r.ContentLength != 0 {
		var req dto.AutoMatchRequest
		if err := DecodeJSON(r, &req); err != nil {
			h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid JSON body"))
			return
		}
		if req.DateToleranceDays != nil {
			rules.DateToleranceDays = *req.DateToleranceDays
		}
		if req.AmountTolerance != nil {
			tol, err := decimal.NewFromString(*req.AmountTolerance)
			if err != nil {
				h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("amount_tolerance must be a decimal string"))
				return
			}
			rules.AmountTolerance = tol
		}
		if req.UseReference != nil {
			rules.UseReference = *req.UseReference
		}
		if req.UseAmount != nil {
			rules.UseAmount = *req.UseAmount
		}
	}

	proposed, err := handle.Session.RequestAutoMatch(r.Context(), rules)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	response := dto.AutoMatchResponse{
		Proposed: toMatchResponses(proposed),
		Summary:  toSummaryResponse(handle.Session.Summary()),
	}
	h.WriteJSON(w, http.StatusOK, response)
}

// AddMatch handles POST /api/sessions/{id}/matches.
func (h *SessionsHandler) AddMatch(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req dto.ManualMatchRequest
	if err := DecodeJSON(r, &req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid JSON body"))
		return
	}
	if req.BankTransactionID == "" || req.PaymentID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("bank_transaction_id and payment_id are required"))
		return
	}

	match, err := handle.Session.AddManualMatch(req.BankTransactionID, req.PaymentID)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, toMatchResponse(match))
}

// RemoveMatch handles DELETE /api/sessions/{id}/matches.
func (h *SessionsHandler) RemoveMatch(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req dto.RemoveMatchRequest
	if err := DecodeJSON(r, &req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid JSON body"))
		return
	}
	if req.BankTransactionID == "" || req.PaymentID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("bank_transaction_id and payment_id are required"))
		return
	}

	err := handle.Session.RemoveMatch(ledger.Match{
		BankTransactionID: req.BankTransactionID,
		PaymentID:         req.PaymentID,
	})
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, toSummaryResponse(handle.Session.Summary()))
}

// Finalize handles POST /api/sessions/{id}/finalize.
func (h *SessionsHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if err := handle.Session.Finalize(r.Context()); err != nil {
		h.writeSessionError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, toSessionResponse(handle))
}

// Transactions handles GET /api/sessions/{id}/transactions.
func (h *SessionsHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.lookup(w, r)
	if !ok {
		return
	}

	txs := handle.Session.Transactions()
	response := make([]dto.TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		response = append(response, dto.TransactionResponse{
			ID:               tx.ID,
			Date:             tx.Date.Format(dateLayout),
			Description:      tx.Description,
			Reference:        tx.Reference,
			Amount:           tx.Amount.String(),
			Kind:             string(tx.Kind),
			Matched:          tx.Matched,
			MatchedPaymentID: tx.MatchedPaymentID,
		})
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// Payments handles GET /api/sessions/{id}/payments.
func (h *SessionsHandler) Payments(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.lookup(w, r)
	if !ok {
		return
	}

	payments := handle.Session.Payments()
	response := make([]dto.PaymentResponse, 0, len(payments))
	for _, p := range payments {
		response = append(response, dto.PaymentResponse{
			ID:               p.ID,
			PaymentNumber:    p.PaymentNumber,
			PaymentDate:      p.PaymentDate.Format(dateLayout),
			Amount:           p.Amount.String(),
			Reference:        p.Reference,
			PaymentMethod:    p.PaymentMethod,
			CounterpartyName: p.CounterpartyName,
			Reconciled:       p.Reconciled,
		})
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// lookup resolves the session from the URL, writing the error response
// itself when the session cannot be found.
func (h *SessionsHandler) lookup(w http.ResponseWriter, r *http.Request) (*service.Handle, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("session ID is required"))
		return nil, false
	}

	handle, err := h.svc.Get(id)
	if err != nil {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("session"))
		return nil, false
	}
	return handle, true
}

// writeSessionError maps domain errors onto HTTP status codes.
func (h *SessionsHandler) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionBusy):
		h.WriteError(w, http.StatusConflict, dto.NewAPIError(dto.ErrCodeSessionBusy, "an operation is already in progress"))
	case errors.Is(err, matcher.ErrInvalidRule):
		h.WriteError(w, http.StatusUnprocessableEntity, dto.ValidationError(err.Error()))
	case errors.Is(err, registry.ErrAlreadyMatched), errors.Is(err, registry.ErrConflict):
		h.WriteError(w, http.StatusConflict, dto.NewAPIError(dto.ErrCodeConflict, err.Error()))
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, service.ErrSessionNotFound):
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("entity"))
	case errors.Is(err, session.ErrImbalance):
		h.WriteError(w, http.StatusUnprocessableEntity, dto.NewAPIError(dto.ErrCodeImbalance, "period does not balance; resolve the difference before finalizing"))
	case errors.Is(err, session.ErrNoMatches):
		h.WriteError(w, http.StatusUnprocessableEntity, dto.ValidationError("no matches to finalize"))
	case errors.Is(err, session.ErrAlreadyFinalized):
		h.WriteError(w, http.StatusConflict, dto.NewAPIError(dto.ErrCodeAlreadyFinalized, "session is already finalized"))
	case errors.Is(err, session.ErrInvalidState):
		h.WriteError(w, http.StatusConflict, dto.NewAPIError(dto.ErrCodeConflict, err.Error()))
	case errors.Is(err, session.ErrLoad), errors.Is(err, session.ErrPersistence):
		h.WriteError(w, http.StatusBadGateway, dto.NewAPIError(dto.ErrCodeUpstream, err.Error()))
	case errors.Is(err, service.ErrSessionExists):
		h.WriteError(w, http.StatusConflict, dto.NewAPIError(dto.ErrCodeConflict, err.Error()))
	case errors.Is(err, service.ErrInvalidPeriod):
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError(err.Error()))
	default:
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
	}
}

func toSessionResponse(handle *service.Handle) dto.SessionResponse {
	cfg := handle.Session.Config()
	return dto.SessionResponse{
		ID:             handle.ID,
		State:          string(handle.Session.State()),
		PeriodStart:    cfg.PeriodStart.Format(dateLayout),
		PeriodEnd:      cfg.PeriodEnd.Format(dateLayout),
		BankAccountID:  cfg.BankAccountID,
		OpeningBalance: cfg.OpeningBalance.String(),
		ClosingBalance: cfg.ClosingBalance.String(),
		CreatedAt:      handle.CreatedAt.UTC().Format(time.RFC3339),
		Summary:        toSummaryResponse(handle.Session.Summary()),
		Matches:        toMatchResponses(handle.Session.Matches()),
	}
}

func toSummaryResponse(s session.Summary) dto.SummaryResponse {
	resp := dto.SummaryResponse{
		TotalCredits:             s.Balance.TotalCredits.String(),
		TotalDebits:              s.Balance.TotalDebits.String(),
		CalculatedBalance:        s.Balance.CalculatedBalance.String(),
		BalanceDifference:        s.Balance.BalanceDifference.String(),
		IsBalanced:               s.Balance.IsBalanced,
		MatchCount:               s.MatchCount,
		UnmatchedCreditCount:     s.UnmatchedCreditCount,
		UnreconciledPaymentCount: s.UnreconciledPaymentCount,
	}
	for _, d := range s.DuplicateSuspects {
		resp.DuplicateSuspects = append(resp.DuplicateSuspects, dto.DuplicateSuspectResponse{
			TransactionID:      d.TransactionID,
			OtherTransactionID: d.OtherTransactionID,
			Similarity:         d.Similarity,
		})
	}
	return resp
}

func toMatchResponse(m ledger.Match) dto.MatchResponse {
	return dto.MatchResponse{
		BankTransactionID: m.BankTransactionID,
		PaymentID:         m.PaymentID,
		Confidence:        m.Confidence,
		MatchType:         string(m.Type),
	}
}

func toMatchResponses(matches []ledger.Match) []dto.MatchResponse {
	out := make([]dto.MatchResponse, 0, len(matches))
	for _, m := range matches {
		out = append(out, toMatchResponse(m))
	}
	return out
}
