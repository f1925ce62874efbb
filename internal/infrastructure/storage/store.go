// Package storage provides SQLite-backed persistence for the
// reconciliation backend: the transaction/payment feed a session loads,
// and the finalized reconciliations a session commits.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/enxi-erp/reconcile-backend/internal/application/session"
	"github.com/enxi-erp/reconcile-backend/internal/domain/ledger"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const dateLayout = "2006-01-02"

// Store provides SQLite database access.
type Store struct {
	db *sql.DB
}

// Compile-time check that Store implements Repository.
var _ Repository = (*Store)(nil)

// NewStore opens the SQLite database and runs pending migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign key constraints (SQLite-specific)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) runMigrations() error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	return nil
}

// Load fetches the period's bank transactions and system payments.
// Transactions carry their persisted matched flags so movements settled by
// an earlier reconciliation are not re-proposed.
func (s *Store) Load(ctx context.Context, start, end time.Time, bankAccountID string) ([]*ledger.BankTransaction, []*ledger.SystemPayment, error) {
	txQuery := `
	SELECT id, txn_date, description, reference, amount, kind, matched, COALESCE(matched_payment_id, '')
	FROM bank_transactions
	WHERE txn_date >= ? AND txn_date <= ?`
	args := []any{start.Format(dateLayout), end.Format(dateLayout)}
	if bankAccountID != "" {
		txQuery += ` AND bank_account_id = ?`
		args = append(args, bankAccountID)
	}
	txQuery += ` ORDER BY txn_date, id`

	rows, err := s.db.QueryContext(ctx, txQuery, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("loading bank transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txs []*ledger.BankTransaction
	for rows.Next() {
		var (
			tx              ledger.BankTransaction
			date, amount    string
			matched         int
		)
		if err := rows.Scan(&tx.ID, &date, &tx.Description, &tx.Reference, &amount, &tx.Kind, &matched, &tx.MatchedPaymentID); err != nil {
			return nil, nil, fmt.Errorf("scanning bank transaction: %w", err)
		}
		if tx.Date, err = time.Parse(dateLayout, date); err != nil {
			return nil, nil, fmt.Errorf("bank transaction %s has bad date %q: %w", tx.ID, date, err)
		}
		if tx.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, nil, fmt.Errorf("bank transaction %s has bad amount %q: %w", tx.ID, amount, err)
		}
		tx.Matched = matched != 0
		txs = append(txs, &tx)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	payments, err := s.loadPayments(ctx, start, end)
	if err != nil {
		return nil, nil, err
	}
	return txs, payments, nil
}

func (s *Store) loadPayments(ctx context.Context, start, end time.Time) ([]*ledger.SystemPayment, error) {
	query := `
	SELECT id, payment_number, payment_date, amount, reference, payment_method, counterparty_name, reconciled
	FROM system_payments
	WHERE payment_date >= ? AND payment_date <= ?
	ORDER BY payment_date, id`

	rows, err := s.db.QueryContext(ctx, query, start.Format(dateLayout), end.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("loading system payments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var payments []*ledger.SystemPayment
	for rows.Next() {
		var (
			p            ledger.SystemPayment
			date, amount string
			reconciled   int
		)
		if err := rows.Scan(&p.ID, &p.PaymentNumber, &date, &amount, &p.Reference, &p.PaymentMethod, &p.CounterpartyName, &reconciled); err != nil {
			return nil, fmt.Errorf("scanning system payment: %w", err)
		}
		if p.PaymentDate, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("payment %s has bad date %q: %w", p.ID, date, err)
		}
		if p.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("payment %s has bad amount %q: %w", p.ID, amount, err)
		}
		p.Reconciled = reconciled != 0
		payments = append(payments, &p)
	}
	return payments, rows.Err()
}

// Commit stores a finalized reconciliation in a single SQL transaction:
// the reconciliation row, its matches, and the permanent matched and
// reconciled flags on both sides. Any failure rolls everything back.
func (s *Store) Commit(ctx context.Context, req session.CommitRequest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
	INSERT INTO reconciliations (bank_account_id, period_start, period_end, opening_balance, closing_balance, match_count)
	VALUES (?, ?, ?, ?, ?, ?)`,
		req.BankAccountID,
		req.PeriodStart.Format(dateLayout),
		req.PeriodEnd.Format(dateLayout),
		req.OpeningBalance.String(),
		req.ClosingBalance.String(),
		len(req.Matches),
	)
	if err != nil {
		return fmt.Errorf("inserting reconciliation: %w", err)
	}
	recID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, m := range req.Matches {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO reconciliation_matches (reconciliation_id, bank_transaction_id, payment_id, confidence, match_type)
		VALUES (?, ?, ?, ?, ?)`,
			recID, m.BankTransactionID, m.PaymentID, m.Confidence, string(m.Type),
		); err != nil {
			return fmt.Errorf("inserting match %s/%s: %w", m.BankTransactionID, m.PaymentID, err)
		}
		if _, err := tx.ExecContext(ctx, `
		UPDATE bank_transactions SET matched = 1, matched_payment_id = ? WHERE id = ?`,
			m.PaymentID, m.BankTransactionID,
		); err != nil {
			return fmt.Errorf("flagging transaction %s: %w", m.BankTransactionID, err)
		}
		if _, err := tx.ExecContext(ctx, `
		UPDATE system_payments SET reconciled = 1 WHERE id = ?`, m.PaymentID,
		); err != nil {
			return fmt.Errorf("flagging payment %s: %w", m.PaymentID, err)
		}
	}

	return tx.Commit()
}

// SaveBankTransactions upserts feed rows for a bank account.
func (s *Store) SaveBankTransactions(ctx context.Context, txs []*ledger.BankTransaction, bankAccountID string) error {
	for _, t := range txs {
		_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO bank_transactions
		(id, bank_account_id, txn_date, description, reference, amount, kind, matched, matched_payment_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID,
			bankAccountID,
			t.Date.Format(dateLayout),
			t.Description,
			t.Reference,
			t.Amount.String(),
			string(t.Kind),
			boolToInt(t.Matched),
			nullIfEmpty(t.MatchedPaymentID),
		)
		if err != nil {
			return fmt.Errorf("saving bank transaction %s: %w", t.ID, err)
		}
	}
	return nil
}

// SaveSystemPayments upserts internally recorded payments.
func (s *Store) SaveSystemPayments(ctx context.Context, payments []*ledger.SystemPayment) error {
	for _, p := range payments {
		_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO system_payments
		(id, payment_number, payment_date, amount, reference, payment_method, counterparty_name, reconciled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID,
			p.PaymentNumber,
			p.PaymentDate.Format(dateLayout),
			p.Amount.String(),
			p.Reference,
			p.PaymentMethod,
			p.CounterpartyName,
			boolToInt(p.Reconciled),
		)
		if err != nil {
			return fmt.Errorf("saving payment %s: %w", p.ID, err)
		}
	}
	return nil
}

// ListReconciliations returns finalized reconciliations, newest first.
func (s *Store) ListReconciliations(ctx context.Context, limit int) ([]Reconciliation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, bank_account_id, period_start, period_end, opening_balance, closing_balance, match_count, finalized_at
	FROM reconciliations
	ORDER BY id DESC
	LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing reconciliations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Reconciliation
	for rows.Next() {
		var rec Reconciliation
		var start, end, finalized string
		if err := rows.Scan(&rec.ID, &rec.BankAccountID, &start, &end, &rec.OpeningBalance, &rec.ClosingBalance, &rec.MatchCount, &finalized); err != nil {
			return nil, fmt.Errorf("scanning reconciliation: %w", err)
		}
		if rec.PeriodStart, err = time.Parse(dateLayout, start); err != nil {
			return nil, err
		}
		if rec.PeriodEnd, err = time.Parse(dateLayout, end); err != nil {
			return nil, err
		}
		rec.FinalizedAt, _ = time.Parse("2006-01-02 15:04:05", finalized)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
