package api_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enxi-erp/reconcile-backend/internal/api"
	"github.com/enxi-erp/reconcile-backend/internal/api/dto"
	"github.com/enxi-erp/reconcile-backend/internal/application/service"
	"github.com/enxi-erp/reconcile-backend/internal/application/session"
	"github.com/enxi-erp/reconcile-backend/internal/domain/ledger"
	"github.com/enxi-erp/reconcile-backend/internal/domain/matcher"
	"github.com/enxi-erp/reconcile-backend/internal/infrastructure/storage"
)

func newTestServer(t *testing.T) (*api.Server, *storage.MockStore) {
	t.Helper()

	repo := storage.NewMockStore()
	seedMockPeriod(repo)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	matching := session.LocalMatcher{Engine: matcher.NewEngine(matcher.DefaultWeights())}
	sessions := service.New(repo, matching, repo, logger)

	server := api.NewServer(api.DefaultConfig(), repo, sessions, logger)
	return server, repo
}

// seedMockPeriod fills the mock with a June 2025 period that balances
// against opening 1000 and closing 1600.
func seedMockPeriod(repo *storage.MockStore) {
	day := func(d int) time.Time {
		return time.Date(2025, time.June, d, 0, 0, 0, 0, time.UTC)
	}
	repo.Txs = []*ledger.BankTransaction{
		{ID: "tx1", Date: day(5), Description: "TRANSFER ACME", Reference: "INV-1001", Amount: decimal.NewFromInt(500), Kind: ledger.Credit},
		{ID: "tx2", Date: day(10), Description: "TRANSFER GLOBEX", Reference: "INV-1002", Amount: decimal.NewFromInt(300), Kind: ledger.Credit},
		{ID: "tx3", Date: day(15), Description: "BANK FEES", Amount: decimal.NewFromInt(200), Kind: ledger.Debit},
	}
	repo.Payments = []*ledger.SystemPayment{
		{ID: "p1", PaymentNumber: "PAY-001", PaymentDate: day(5), Amount: decimal.NewFromInt(500), Reference: "INV-1001"},
		{ID: "p2", PaymentNumber: "PAY-002", PaymentDate: day(10), Amount: decimal.NewFromInt(300), Reference: "INV-1002"},
	}
}

func createSession(t *testing.T, server *api.Server, closing string) dto.SessionResponse {
	t.Helper()

	body := dto.CreateSessionRequest{
		PeriodStart:    "2025-06-01",
		PeriodEnd:      "2025-06-30",
		OpeningBalance: "1000",
		ClosingBalance: closing,
	}
	rec := doJSON(t, server, http.MethodPost, "/api/sessions", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp dto.SessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func doJSON(t *testing.T, server *api.Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func TestServer_HealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var response dto.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "ok", response.Status)
	assert.NotEmpty(t, response.Timestamp)
}

func TestServer_CreateSession(t *testing.T) {
	t.Run("creates and loads a balanced session", func(t *testing.T) {
		server, repo := newTestServer(t)

		resp := createSession(t, server, "1600")

		assert.NotEmpty(t, resp.ID)
		assert.Equal(t, "ready", resp.State)
		assert.True(t, resp.Summary.IsBalanced)
		assert.Equal(t, 0, resp.Summary.MatchCount)
		assert.Equal(t, 2, resp.Summary.UnmatchedCreditCount)
		assert.True(t, repo.LoadCalled)
	})

	t.Run("rejects invalid JSON", func(t *testing.T) {
		server, _ := newTestServer(t)

		req := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewBufferString("{not json"))
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed dates", func(t *testing.T) {
		server, _ := newTestServer(t)

		rec := doJSON(t, server, http.MethodPost, "/api/sessions", dto.CreateSessionRequest{
			PeriodStart:    "June 1st",
			PeriodEnd:      "2025-06-30",
			OpeningBalance: "1000",
			ClosingBalance: "1600",
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects inverted period", func(t *testing.T) {
		server, _ := newTestServer(t)

		rec := doJSON(t, server, http.MethodPost, "/api/sessions", dto.CreateSessionRequest{
			PeriodStart:    "2025-06-30",
			PeriodEnd:      "2025-06-01",
			OpeningBalance: "1000",
			ClosingBalance: "1600",
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects overlapping open session", func(t *testing.T) {
		server, _ := newTestServer(t)
		createSession(t, server, "1600")

		rec := doJSON(t, server, http.MethodPost, "/api/sessions", dto.CreateSessionRequest{
			PeriodStart:    "2025-06-15",
			PeriodEnd:      "2025-07-15",
			OpeningBalance: "1000",
			ClosingBalance: "1600",
		})

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("returns 502 when the store fails to load", func(t *testing.T) {
		server, repo := newTestServer(t)
		repo.LoadErr = errors.New("db locked")

		rec := doJSON(t, server, http.MethodPost, "/api/sessions", dto.CreateSessionRequest{
			PeriodStart:    "2025-06-01",
			PeriodEnd:      "2025-06-30",
			OpeningBalance: "1000",
			ClosingBalance: "1600",
		})

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestServer_GetSession(t *testing.T) {
	server, _ := newTestServer(t)
	created := createSession(t, server, "1600")

	t.Run("returns the session", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodGet, "/api/sessions/"+created.ID, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp dto.SessionResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, created.ID, resp.ID)
		assert.Equal(t, "2025-06-01", resp.PeriodStart)
	})

	t.Run("404 for unknown session", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodGet, "/api/sessions/nope", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("lists sessions", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodGet, "/api/sessions", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp dto.SessionListResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Len(t, resp.Sessions, 1)
	})
}

func TestServer_AutoMatch(t *testing.T) {
	t.Run("matches the seeded period", func(t *testing.T) {
		server, _ := newTestServer(t)
		created := createSession(t, server, "1600")

		rec := doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/automatch", nil)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp dto.AutoMatchResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Len(t, resp.Proposed, 2)
		assert.Equal(t, 2, resp.Summary.MatchCount)
		assert.Equal(t, 0, resp.Summary.UnmatchedCreditCount)
		for _, m := range resp.Proposed {
			assert.Equal(t, string(ledger.MatchExact), m.MatchType)
			assert.Equal(t, 100, m.Confidence)
		}
	})

	t.Run("accepts rule overrides", func(t *testing.T) {
		server, _ := newTestServer(t)
		created := createSession(t, server, "1600")

		zero := 0
		off := false
		rec := doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/automatch", dto.AutoMatchRequest{
			DateToleranceDays: &zero,
			UseReference:      &off,
		})

		require.Equal(t, http.StatusOK, rec.Code)
		var resp dto.AutoMatchResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Len(t, resp.Proposed, 2)
	})

	t.Run("422 for invalid rules", func(t *testing.T) {
		server, _ := newTestServer(t)
		created := createSession(t, server, "1600")

		neg := -1
		rec := doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/automatch", dto.AutoMatchRequest{
			DateToleranceDays: &neg,
		})

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var apiErr dto.APIError
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&apiErr))
		assert.Equal(t, dto.ErrCodeValidation, apiErr.Code)
	})
}

func TestServer_ManualMatches(t *testing.T) {
	t.Run("adds and removes a manual match", func(t *testing.T) {
		server, _ := newTestServer(t)
		created := createSession(t, server, "1600")

		rec := doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/matches", dto.ManualMatchRequest{
			BankTransactionID: "tx1",
			PaymentID:         "p2",
		})

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var match dto.MatchResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&match))
		assert.Equal(t, string(ledger.MatchManual), match.MatchType)
		assert.Equal(t, 100, match.Confidence)

		rec = doJSON(t, server, http.MethodDelete, "/api/sessions/"+created.ID+"/matches", dto.RemoveMatchRequest{
			BankTransactionID: "tx1",
			PaymentID:         "p2",
		})

		require.Equal(t, http.StatusOK, rec.Code)
		var summary dto.SummaryResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
		assert.Equal(t, 0, summary.MatchCount)
	})

	t.Run("409 when the transaction is already matched", func(t *testing.T) {
		server, _ := newTestServer(t)
		created := createSession(t, server, "1600")

		rec := doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/matches", dto.ManualMatchRequest{
			BankTransactionID: "tx1", PaymentID: "p1",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/matches", dto.ManualMatchRequest{
			BankTransactionID: "tx1", PaymentID: "p2",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("404 for unknown entity", func(t *testing.T) {
		server, _ := newTestServer(t)
		created := createSession(t, server, "1600")

		rec := doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/matches", dto.ManualMatchRequest{
			BankTransactionID: "missing", PaymentID: "p1",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("400 when ids are missing", func(t *testing.T) {
		server, _ := newTestServer(t)
		created := createSession(t, server, "1600")

		rec := doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/matches", dto.ManualMatchRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_Finalize(t *testing.T) {
	t.Run("finalizes a matched balanced session", func(t *testing.T) {
		server, repo := newTestServer(t)
		created := createSession(t, server, "1600")

		rec := doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/automatch", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/finalize", nil)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp dto.SessionResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "complete", resp.State)
		assert.True(t, repo.CommitCalled)
		require.Len(t, repo.Commits, 1)
		assert.Len(t, repo.Commits[0].Matches, 2)

		// The finalized run shows up in history.
		rec = doJSON(t, server, http.MethodGet, "/api/reconciliations", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var history struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&history))
		assert.Equal(t, 1, history.Count)
	})

	t.Run("422 when the period does not balance", func(t *testing.T) {
		server, repo := newTestServer(t)
		created := createSession(t, server, "1700")

		rec := doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/automatch", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/finalize", nil)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		var apiErr dto.APIError
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&apiErr))
		assert.Equal(t, dto.ErrCodeImbalance, apiErr.Code)
		assert.False(t, repo.CommitCalled)
	})

	t.Run("422 without any matches", func(t *testing.T) {
		server, _ := newTestServer(t)
		created := createSession(t, server, "1600")

		rec := doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/finalize", nil)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("409 when finalized twice", func(t *testing.T) {
		server, _ := newTestServer(t)
		created := createSession(t, server, "1600")

		rec := doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/automatch", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		rec = doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/finalize", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/finalize", nil)

		assert.Equal(t, http.StatusConflict, rec.Code)
		var apiErr dto.APIError
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&apiErr))
		assert.Equal(t, dto.ErrCodeAlreadyFinalized, apiErr.Code)
	})

	t.Run("502 when the commit fails", func(t *testing.T) {
		server, repo := newTestServer(t)
		created := createSession(t, server, "1600")

		rec := doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/automatch", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		repo.CommitErr = errors.New("disk full")
		rec = doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/finalize", nil)

		assert.Equal(t, http.StatusBadGateway, rec.Code)

		// Matches survive so the client can retry.
		repo.CommitErr = nil
		rec = doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/finalize", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestServer_SessionCollections(t *testing.T) {
	server, _ := newTestServer(t)
	created := createSession(t, server, "1600")

	rec := doJSON(t, server, http.MethodPost, "/api/sessions/"+created.ID+"/matches", dto.ManualMatchRequest{
		BankTransactionID: "tx1", PaymentID: "p1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("transactions reflect match flags", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodGet, "/api/sessions/"+created.ID+"/transactions", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var txs []dto.TransactionResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&txs))
		require.Len(t, txs, 3)

		byID := make(map[string]dto.TransactionResponse, len(txs))
		for _, tx := range txs {
			byID[tx.ID] = tx
		}
		assert.True(t, byID["tx1"].Matched)
		assert.Equal(t, "p1", byID["tx1"].MatchedPaymentID)
		assert.False(t, byID["tx2"].Matched)
		assert.Equal(t, string(ledger.Debit), byID["tx3"].Kind)
	})

	t.Run("payments reflect reconciled flags", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodGet, "/api/sessions/"+created.ID+"/payments", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var payments []dto.PaymentResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&payments))
		require.Len(t, payments, 2)

		byID := make(map[string]dto.PaymentResponse, len(payments))
		for _, p := range payments {
			byID[p.ID] = p
		}
		assert.True(t, byID["p1"].Reconciled)
		assert.False(t, byID["p2"].Reconciled)
	})
}
