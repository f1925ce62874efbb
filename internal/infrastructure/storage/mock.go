package storage

import (
	"context"
	"time"

	"github.com/enxi-erp/reconcile-backend/internal/application/session"
	"github.com/enxi-erp/reconcile-backend/internal/domain/ledger"
)

// MockStore is an in-memory implementation of Repository for testing.
// It stores all data in slices and maps, making tests fast and isolated.
type MockStore struct {
	Txs             []*ledger.BankTransaction
	TxAccounts      map[string]string // transaction ID -> bank account ID
	Payments        []*ledger.SystemPayment
	Reconciliations []Reconciliation
	Commits         []session.CommitRequest

	// Hooks for test assertions
	LoadCalled   bool
	CommitCalled bool

	// Error injection for testing error paths
	LoadErr   error
	CommitErr error
}

// Compile-time check that MockStore implements Repository.
var _ Repository = (*MockStore)(nil)

// NewMockStore creates a new mock store for testing.
func NewMockStore() *MockStore {
	return &MockStore{TxAccounts: make(map[string]string)}
}

func (m *MockStore) Load(ctx context.Context, start, end time.Time, bankAccountID string) ([]*ledger.BankTransaction, []*ledger.SystemPayment, error) {
	m.LoadCalled = true
	if m.LoadErr != nil {
		return nil, nil, m.LoadErr
	}

	var txs []*ledger.BankTransaction
	for _, t := range m.Txs {
		if t.Date.Before(start) || t.Date.After(end) {
			continue
		}
		if bankAccountID != "" && m.TxAccounts[t.ID] != bankAccountID {
			continue
		}
		cp := *t
		txs = append(txs, &cp)
	}

	var payments []*ledger.SystemPayment
	for _, p := range m.Payments {
		if p.PaymentDate.Before(start) || p.PaymentDate.After(end) {
			continue
		}
		cp := *p
		payments = append(payments, &cp)
	}
	return txs, payments, nil
}

func (m *MockStore) Commit(ctx context.Context, req session.CommitRequest) error {
	m.CommitCalled = true
	if m.CommitErr != nil {
		return m.CommitErr
	}
	m.Commits = append(m.Commits, req)
	m.Reconciliations = append(m.Reconciliations, Reconciliation{
		ID:             int64(len(m.Reconciliations) + 1),
		BankAccountID:  req.BankAccountID,
		PeriodStart:    req.PeriodStart,
		PeriodEnd:      req.PeriodEnd,
		OpeningBalance: req.OpeningBalance.String(),
		ClosingBalance: req.ClosingBalance.String(),
		MatchCount:     len(req.Matches),
		FinalizedAt:    time.Now().UTC(),
	})

	flagged := make(map[string]string, len(req.Matches))
	reconciled := make(map[string]bool, len(req.Matches))
	for _, match := range req.Matches {
		flagged[match.BankTransactionID] = match.PaymentID
		reconciled[match.PaymentID] = true
	}
	for _, t := range m.Txs {
		if pid, ok := flagged[t.ID]; ok {
			t.Matched = true
			t.MatchedPaymentID = pid
		}
	}
	for _, p := range m.Payments {
		if reconciled[p.ID] {
			p.Reconciled = true
		}
	}
	return nil
}

func (m *MockStore) SaveBankTransactions(ctx context.Context, txs []*ledger.BankTransaction, bankAccountID string) error {
	for _, t := range txs {
		m.Txs = append(m.Txs, t)
		m.TxAccounts[t.ID] = bankAccountID
	}
	return nil
}

func (m *MockStore) SaveSystemPayments(ctx context.Context, payments []*ledger.SystemPayment) error {
	m.Payments = append(m.Payments, payments...)
	return nil
}

func (m *MockStore) ListReconciliations(ctx context.Context, limit int) ([]Reconciliation, error) {
	if limit <= 0 || limit > len(m.Reconciliations) {
		limit = len(m.Reconciliations)
	}
	// Newest first, like the SQLite implementation.
	out := make([]Reconciliation, 0, limit)
	for i := len(m.Reconciliations) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.Reconciliations[i])
	}
	return out, nil
}

func (m *MockStore) Close() error { return nil }
