package matcher

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/enxi-erp/reconcile-backend/internal/domain/ledger"
)

// DuplicatePair flags two bank transactions that look like the same
// movement reported twice by the bank feed.
type DuplicatePair struct {
	TransactionID      string
	OtherTransactionID string
	Similarity         float64
}

// duplicate detection thresholds
const (
	duplicateMaxDaysApart  = 1
	duplicateMinSimilarity = 0.6
)

// DuplicateSuspects scans the credit side of a bank feed for pairs with the
// same amount, dates at most a day apart, and near-identical descriptions.
// Suspects are advisory only: they are surfaced in the session summary for
// the user to review, never acted on automatically.
func DuplicateSuspects(txs []*ledger.BankTransaction) []DuplicatePair {
	var pairs []DuplicatePair
	for i := 0; i < len(txs); i++ {
		for j := i + 1; j < len(txs); j++ {
			a, b := txs[i], txs[j]
			if a.Kind != ledger.Credit || b.Kind != ledger.Credit {
				continue
			}
			if !a.Amount.Equal(b.Amount) {
				continue
			}
			if daysApart(a.Date, b.Date) > duplicateMaxDaysApart {
				continue
			}
			sim := descriptionSimilarity(a.Description, b.Description)
			if sim < duplicateMinSimilarity {
				continue
			}
			pairs = append(pairs, DuplicatePair{
				TransactionID:      a.ID,
				OtherTransactionID: b.ID,
				Similarity:         sim,
			})
		}
	}
	return pairs
}

// descriptionSimilarity returns 1 for identical descriptions, falling toward
// 0 as the Levenshtein distance approaches the longer string's length.
func descriptionSimilarity(a, b string) float64 {
	na, nb := strings.ToUpper(strings.TrimSpace(a)), strings.ToUpper(strings.TrimSpace(b))
	if na == "" && nb == "" {
		return 0
	}
	maxLen := len(na)
	if len(nb) > maxLen {
		maxLen = len(nb)
	}
	dist := levenshtein.ComputeDistance(na, nb)
	return 1 - float64(dist)/float64(maxLen)
}
