// Package matcher proposes matches between bank transactions and system
// payments using configurable tolerance rules.
//
// The engine builds a candidate graph of every (transaction, payment) pair
// inside the amount and date tolerances, scores each pair, and greedily
// assigns pairs in descending score order so that each side is consumed at
// most once. The assignment is a deterministic approximation of
// maximum-weight bipartite matching, not a global optimum: same inputs and
// same rules always produce the same ordered match list.
//
// Example usage:
//
//	engine := matcher.NewEngine(matcher.DefaultWeights())
//	matches, err := engine.AutoMatch(transactions, payments, matcher.DefaultRules())
package matcher

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/enxi-erp/reconcile-backend/internal/domain/ledger"
)

// Engine scores and assigns reconciliation matches.
type Engine struct {
	weights Weights
}

// NewEngine creates an engine with the given scoring weights.
func NewEngine(weights Weights) *Engine {
	return &Engine{weights: weights}
}

// candidate is a scored (transaction, payment) pair awaiting assignment.
type candidate struct {
	tx      *ledger.BankTransaction
	payment *ledger.SystemPayment
	score   int
}

// AutoMatch proposes matches for the given transactions and payments.
//
// Only CREDIT transactions that are not yet matched and payments that are
// not yet reconciled are eligible. Empty inputs are not an error; they
// yield an empty match set. Invalid rules fail before any scoring runs.
func (e *Engine) AutoMatch(
	txs []*ledger.BankTransaction,
	payments []*ledger.SystemPayment,
	rules Rules,
) ([]ledger.Match, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}

	// 1. Build the candidate pair set within tolerances.
	var candidates []candidate
	for _, tx := range txs {
		if tx.Kind != ledger.Credit || tx.Matched {
			continue
		}
		for _, p := range payments {
			if p.Reconciled {
				continue
			}
			amountDiff := tx.Amount.Sub(p.Amount).Abs()
			if amountDiff.GreaterThan(rules.AmountTolerance) {
				continue
			}
			if daysApart(tx.Date, p.PaymentDate) > float64(rules.DateToleranceDays) {
				continue
			}

			score := e.score(tx, p, amountDiff, rules)
			if score <= 0 {
				continue
			}
			candidates = append(candidates, candidate{tx: tx, payment: p, score: score})
		}
	}

	// 2. Sort by descending score; tie-break by ascending bank date, then
	// payment ID, then transaction ID. The last key is not part of the
	// published contract but closes the total order when two transactions
	// share a date and compete for the same payment.
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.tx.Date.Equal(b.tx.Date) {
			return a.tx.Date.Before(b.tx.Date)
		}
		if a.payment.ID != b.payment.ID {
			return a.payment.ID < b.payment.ID
		}
		return a.tx.ID < b.tx.ID
	})

	// 3. Greedy assignment: accept a pair only if neither side is consumed.
	usedTx := make(map[string]bool)
	usedPayment := make(map[string]bool)
	matches := make([]ledger.Match, 0, len(candidates))
	for _, c := range candidates {
		if usedTx[c.tx.ID] || usedPayment[c.payment.ID] {
			continue
		}
		usedTx[c.tx.ID] = true
		usedPayment[c.payment.ID] = true

		matchType := ledger.MatchPartial
		if c.score >= 100 {
			matchType = ledger.MatchExact
		}
		matches = append(matches, ledger.Match{
			BankTransactionID: c.tx.ID,
			PaymentID:         c.payment.ID,
			Confidence:        c.score,
			Type:              matchType,
		})
	}

	return matches, nil
}

// score computes the 0-100 confidence for a candidate already known to be
// inside both tolerances.
func (e *Engine) score(
	tx *ledger.BankTransaction,
	p *ledger.SystemPayment,
	amountDiff decimal.Decimal,
	rules Rules,
) int {
	score := 0

	if rules.UseAmount {
		// Full points at an exact amount, linearly decreasing to zero at
		// the tolerance boundary. A zero tolerance means only exact
		// amounts reached this point.
		if rules.AmountTolerance.IsZero() || amountDiff.IsZero() {
			score += e.weights.Amount
		} else {
			ratio := amountDiff.InexactFloat64() / rules.AmountTolerance.InexactFloat64()
			score += int(math.Round(float64(e.weights.Amount) * (1 - ratio)))
		}
	}

	if rules.UseReference {
		score += e.referenceScore(tx.Reference, p.Reference)
	}

	if score > 100 {
		score = 100
	}
	return score
}

// referenceScore grades textual reference similarity: normalized exact
// match earns full reference points, substring containment half, else none.
func (e *Engine) referenceScore(a, b string) int {
	na, nb := normalizeReference(a), normalizeReference(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return e.weights.Reference
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return e.weights.Reference / 2
	}
	return 0
}

// normalizeReference upper-cases and collapses internal whitespace so
// bank-mangled references still compare equal.
func normalizeReference(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}

func daysApart(a, b time.Time) float64 {
	return math.Abs(a.Sub(b).Hours() / 24)
}
