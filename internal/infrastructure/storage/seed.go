package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/enxi-erp/reconcile-backend/internal/domain/ledger"
)

// SeedDemoData loads a small balanced June 2025 dataset for the "main"
// bank account: opening balance 1000.00, closing balance 1600.00. Used by
// the CLI to exercise a full reconciliation run locally.
func SeedDemoData(ctx context.Context, repo Repository) error {
	d := func(day int) time.Time {
		return time.Date(2025, 6, day, 0, 0, 0, 0, time.UTC)
	}
	amt := func(s string) decimal.Decimal {
		v, _ := decimal.NewFromString(s)
		return v
	}

	txs := []*ledger.BankTransaction{
		{ID: "bt-001", Date: d(3), Description: "SEPA CREDIT ACME CORP", Reference: "INV-1001", Amount: amt("500.00"), Kind: ledger.Credit},
		{ID: "bt-002", Date: d(9), Description: "SEPA CREDIT NORTHWIND LTD", Reference: "INV-1002", Amount: amt("300.00"), Kind: ledger.Credit},
		{ID: "bt-003", Date: d(14), Description: "CARD SETTLEMENT BATCH 17", Reference: "", Amount: amt("150.25"), Kind: ledger.Credit},
		{ID: "bt-004", Date: d(20), Description: "BANK FEES JUNE", Reference: "", Amount: amt("200.00"), Kind: ledger.Debit},
		{ID: "bt-005", Date: d(26), Description: "SEPA CREDIT GLOBEX", Reference: "PAY 1005", Amount: amt("149.75"), Kind: ledger.Credit},
	}
	if err := repo.SaveBankTransactions(ctx, txs, "main"); err != nil {
		return err
	}

	payments := []*ledger.SystemPayment{
		{ID: "pay-001", PaymentNumber: "P-2025-001", PaymentDate: d(2), Amount: amt("500.00"), Reference: "INV-1001", PaymentMethod: "bank_transfer", CounterpartyName: "Acme Corp"},
		{ID: "pay-002", PaymentNumber: "P-2025-002", PaymentDate: d(9), Amount: amt("300.00"), Reference: "INV-1002", PaymentMethod: "bank_transfer", CounterpartyName: "Northwind Ltd"},
		{ID: "pay-003", PaymentNumber: "P-2025-003", PaymentDate: d(13), Amount: amt("150.25"), Reference: "", PaymentMethod: "card", CounterpartyName: "POS Batch"},
		{ID: "pay-004", PaymentNumber: "P-2025-004", PaymentDate: d(25), Amount: amt("149.75"), Reference: "PAY-1005", PaymentMethod: "bank_transfer", CounterpartyName: "Globex"},
	}
	return repo.SaveSystemPayments(ctx, payments)
}
