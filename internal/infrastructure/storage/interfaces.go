package storage

import (
	"context"
	"time"

	"github.com/enxi-erp/reconcile-backend/internal/application/session"
	"github.com/enxi-erp/reconcile-backend/internal/domain/ledger"
)

// Repository defines the complete storage interface. It bundles the two
// collaborator contracts consumed by reconciliation sessions (Loader,
// Persister) with the feed-management operations used by ingestion and
// the CLI. The interface allows swapping implementations and makes
// testing with the in-memory mock straightforward.
type Repository interface {
	session.Loader
	session.Persister

	// SaveBankTransactions upserts feed rows for a bank account.
	SaveBankTransactions(ctx context.Context, txs []*ledger.BankTransaction, bankAccountID string) error

	// SaveSystemPayments upserts internally recorded payments.
	SaveSystemPayments(ctx context.Context, payments []*ledger.SystemPayment) error

	// ListReconciliations returns finalized reconciliations, newest first.
	ListReconciliations(ctx context.Context, limit int) ([]Reconciliation, error)

	Close() error
}

// Reconciliation is a finalized reconciliation record.
type Reconciliation struct {
	ID             int64     `json:"id"`
	BankAccountID  string    `json:"bank_account_id,omitempty"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
	OpeningBalance string    `json:"opening_balance"`
	ClosingBalance string    `json:"closing_balance"`
	MatchCount     int       `json:"match_count"`
	FinalizedAt    time.Time `json:"finalized_at"`
}
