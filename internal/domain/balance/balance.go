// Package balance verifies that the loaded bank movements reconcile the
// account's opening and closing balances. The computation is pure and is
// independent of which transactions are matched: it checks the bank
// account, not the match coverage.
package balance

import (
	"github.com/shopspring/decimal"

	"github.com/enxi-erp/reconcile-backend/internal/domain/ledger"
)

// Epsilon is the currency-minor-unit tolerance under which a balance
// difference counts as balanced.
var Epsilon = decimal.NewFromFloat(0.01)

// Summary is the result of a balance verification.
type Summary struct {
	TotalCredits      decimal.Decimal
	TotalDebits       decimal.Decimal
	CalculatedBalance decimal.Decimal
	BalanceDifference decimal.Decimal
	IsBalanced        bool
}

// Compute evaluates the balance equation
//
//	calculated = opening − totalDebits + totalCredits
//
// and reports whether calculated is within Epsilon of the closing balance.
func Compute(opening, closing decimal.Decimal, txs []*ledger.BankTransaction) Summary {
	credits := decimal.Zero
	debits := decimal.Zero
	for _, tx := range txs {
		switch tx.Kind {
		case ledger.Credit:
			credits = credits.Add(tx.Amount)
		case ledger.Debit:
			debits = debits.Add(tx.Amount)
		}
	}

	calculated := opening.Sub(debits).Add(credits)
	difference := closing.Sub(calculated)

	return Summary{
		TotalCredits:      credits,
		TotalDebits:       debits,
		CalculatedBalance: calculated,
		BalanceDifference: difference,
		IsBalanced:        difference.Abs().LessThan(Epsilon),
	}
}
