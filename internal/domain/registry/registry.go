// Package registry holds the authoritative set of active matches for a
// reconciliation session and enforces the one-to-one match invariant.
//
// Uniqueness is enforced structurally: the registry keeps id-to-id indices
// for both sides instead of scanning the match list on every mutation.
// All derived entity state (Matched, MatchedPaymentID, Reconciled) is
// flipped here and only here; every operation is all-or-nothing.
package registry

import (
	"errors"
	"fmt"

	"github.com/enxi-erp/reconcile-backend/internal/domain/ledger"
)

var (
	// ErrConflict is returned when a proposed match set violates the
	// one-to-one invariant or references a debit transaction.
	ErrConflict = errors.New("conflicting match set")
	// ErrAlreadyMatched is returned when either side of a manual match is
	// already consumed by an active match.
	ErrAlreadyMatched = errors.New("entity already matched")
	// ErrNotFound is returned when a referenced transaction, payment, or
	// match does not exist.
	ErrNotFound = errors.New("not found")
)

// Registry owns the active matches for one session.
type Registry struct {
	txs      map[string]*ledger.BankTransaction
	payments map[string]*ledger.SystemPayment

	// Insertion-ordered match list plus both-side indices into it.
	matches   []ledger.Match
	byTx      map[string]int
	byPayment map[string]int
}

// New creates a registry over the session's loaded entities. The registry
// takes ownership of the derived match state on the given pointers.
func New(txs []*ledger.BankTransaction, payments []*ledger.SystemPayment) *Registry {
	r := &Registry{
		txs:      make(map[string]*ledger.BankTransaction, len(txs)),
		payments: make(map[string]*ledger.SystemPayment, len(payments)),
	}
	for _, tx := range txs {
		r.txs[tx.ID] = tx
	}
	for _, p := range payments {
		r.payments[p.ID] = p
	}
	r.reset()
	return r
}

func (r *Registry) reset() {
	r.matches = r.matches[:0]
	r.byTx = make(map[string]int)
	r.byPayment = make(map[string]int)
}

// ApplyMatches atomically replaces the registry content with a whole
// proposed set. If the incoming set violates the one-to-one invariant,
// references unknown entities, or pairs a debit transaction, the registry
// is left untouched and ErrConflict or ErrNotFound is returned.
func (r *Registry) ApplyMatches(matches []ledger.Match) error {
	seenTx := make(map[string]bool, len(matches))
	seenPayment := make(map[string]bool, len(matches))
	for _, m := range matches {
		tx, ok := r.txs[m.BankTransactionID]
		if !ok {
			return fmt.Errorf("%w: bank transaction %s", ErrNotFound, m.BankTransactionID)
		}
		if _, ok := r.payments[m.PaymentID]; !ok {
			return fmt.Errorf("%w: payment %s", ErrNotFound, m.PaymentID)
		}
		if tx.Kind != ledger.Credit {
			return fmt.Errorf("%w: transaction %s is a debit", ErrConflict, m.BankTransactionID)
		}
		if seenTx[m.BankTransactionID] {
			return fmt.Errorf("%w: transaction %s appears twice", ErrConflict, m.BankTransactionID)
		}
		if seenPayment[m.PaymentID] {
			return fmt.Errorf("%w: payment %s appears twice", ErrConflict, m.PaymentID)
		}
		seenTx[m.BankTransactionID] = true
		seenPayment[m.PaymentID] = true
	}

	// Validated: clear previous state, then apply the new set.
	for i := range r.matches {
		r.unsetFlags(r.matches[i])
	}
	r.reset()
	for _, m := range matches {
		r.append(m)
	}
	return nil
}

// AddManualMatch creates a user-confirmed match between a bank transaction
// and a payment. Manual matches always carry confidence 100.
func (r *Registry) AddManualMatch(bankTransactionID, paymentID string) (ledger.Match, error) {
	tx, ok := r.txs[bankTransactionID]
	if !ok {
		return ledger.Match{}, fmt.Errorf("%w: bank transaction %s", ErrNotFound, bankTransactionID)
	}
	p, ok := r.payments[paymentID]
	if !ok {
		return ledger.Match{}, fmt.Errorf("%w: payment %s", ErrNotFound, paymentID)
	}
	if tx.Kind != ledger.Credit {
		return ledger.Match{}, fmt.Errorf("%w: transaction %s is a debit", ErrConflict, bankTransactionID)
	}
	if _, taken := r.byTx[bankTransactionID]; taken || tx.Matched {
		return ledger.Match{}, fmt.Errorf("%w: bank transaction %s", ErrAlreadyMatched, bankTransactionID)
	}
	if _, taken := r.byPayment[paymentID]; taken || p.Reconciled {
		return ledger.Match{}, fmt.Errorf("%w: payment %s", ErrAlreadyMatched, paymentID)
	}

	m := ledger.Match{
		BankTransactionID: bankTransactionID,
		PaymentID:         paymentID,
		Confidence:        100,
		Type:              ledger.MatchManual,
	}
	r.append(m)
	return m, nil
}

// RemoveMatch deletes an active match and restores both referenced
// entities to unmatched/unreconciled.
func (r *Registry) RemoveMatch(m ledger.Match) error {
	idx, ok := r.byTx[m.BankTransactionID]
	if !ok || r.matches[idx].PaymentID != m.PaymentID {
		return fmt.Errorf("%w: no active match %s/%s", ErrNotFound, m.BankTransactionID, m.PaymentID)
	}

	r.unsetFlags(r.matches[idx])
	r.matches = append(r.matches[:idx], r.matches[idx+1:]...)

	// Reindex the tail shifted by the deletion.
	delete(r.byTx, m.BankTransactionID)
	delete(r.byPayment, m.PaymentID)
	for i := idx; i < len(r.matches); i++ {
		r.byTx[r.matches[i].BankTransactionID] = i
		r.byPayment[r.matches[i].PaymentID] = i
	}
	return nil
}

// append records a match already known to be valid.
func (r *Registry) append(m ledger.Match) {
	r.matches = append(r.matches, m)
	idx := len(r.matches) - 1
	r.byTx[m.BankTransactionID] = idx
	r.byPayment[m.PaymentID] = idx

	tx := r.txs[m.BankTransactionID]
	tx.Matched = true
	tx.MatchedPaymentID = m.PaymentID
	r.payments[m.PaymentID].Reconciled = true
}

func (r *Registry) unsetFlags(m ledger.Match) {
	tx := r.txs[m.BankTransactionID]
	tx.Matched = false
	tx.MatchedPaymentID = ""
	r.payments[m.PaymentID].Reconciled = false
}

// Matches returns the active matches in insertion order.
func (r *Registry) Matches() []ledger.Match {
	out := make([]ledger.Match, len(r.matches))
	copy(out, r.matches)
	return out
}

// Len returns the number of active matches.
func (r *Registry) Len() int {
	return len(r.matches)
}

// UnmatchedCreditCount counts CREDIT transactions without an active match.
func (r *Registry) UnmatchedCreditCount() int {
	n := 0
	for _, tx := range r.txs {
		if tx.Kind == ledger.Credit && !tx.Matched {
			n++
		}
	}
	return n
}

// UnreconciledPaymentCount counts payments without an active match.
func (r *Registry) UnreconciledPaymentCount() int {
	n := 0
	for _, p := range r.payments {
		if !p.Reconciled {
			n++
		}
	}
	return n
}
