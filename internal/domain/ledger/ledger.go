// Package ledger defines the core data model shared by the reconciliation
// engine: bank-reported transactions, internally recorded payments, and the
// matches pairing them.
//
// Entities carry derived match state (Matched, Reconciled) but never mutate
// it themselves — the registry package owns all flag transitions so the
// one-to-one match invariant is enforced in a single place.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind distinguishes the direction of a bank movement.
type TransactionKind string

const (
	Debit  TransactionKind = "DEBIT"
	Credit TransactionKind = "CREDIT"
)

// MatchType classifies how a match was produced.
type MatchType string

const (
	// MatchExact is an auto-match with a perfect confidence score.
	MatchExact MatchType = "EXACT"
	// MatchPartial is an auto-match below perfect confidence.
	MatchPartial MatchType = "PARTIAL"
	// MatchManual is a user-confirmed pairing; always confidence 100.
	MatchManual MatchType = "MANUAL"
)

// BankTransaction is an externally reported bank movement.
// Amount is always positive; Kind carries the direction.
type BankTransaction struct {
	ID          string
	Date        time.Time
	Description string
	Reference   string // optional
	Amount      decimal.Decimal
	Kind        TransactionKind

	// Derived match state, owned by registry.Registry.
	Matched          bool
	MatchedPaymentID string
}

// SystemPayment is an internally recorded payment awaiting reconciliation.
type SystemPayment struct {
	ID               string
	PaymentNumber    string
	PaymentDate      time.Time
	Amount           decimal.Decimal
	Reference        string // optional
	PaymentMethod    string
	CounterpartyName string

	// Derived match state, owned by registry.Registry.
	Reconciled bool
}

// Match pairs a CREDIT bank transaction with a system payment.
//
// Invariants (enforced by registry.Registry):
//  1. each bank transaction and each payment appears in at most one active match
//  2. Confidence is in [0,100]; MANUAL matches always carry 100
//  3. only CREDIT transactions are ever matched
type Match struct {
	BankTransactionID string
	PaymentID         string
	Confidence        int
	Type              MatchType
}
