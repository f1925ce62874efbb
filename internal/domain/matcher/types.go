package matcher

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidRule is returned when a Rules value fails validation.
// The wrapping error names the offending field.
var ErrInvalidRule = errors.New("invalid matching rule")

// Rules configures candidate generation and scoring for auto-matching.
type Rules struct {
	// DateToleranceDays is the maximum allowed distance, in days, between
	// the bank transaction date and the payment date.
	DateToleranceDays int
	// AmountTolerance is the maximum allowed absolute difference between
	// the bank amount and the payment amount.
	AmountTolerance decimal.Decimal
	// UseReference enables reference-similarity scoring.
	UseReference bool
	// UseAmount enables amount-closeness scoring.
	UseAmount bool
}

// DefaultRules returns the tolerances used when the caller supplies none.
func DefaultRules() Rules {
	return Rules{
		DateToleranceDays: 3,
		AmountTolerance:   decimal.NewFromFloat(0.01),
		UseReference:      true,
		UseAmount:         true,
	}
}

// Validate rejects malformed rules before any scoring runs.
func (r Rules) Validate() error {
	if r.DateToleranceDays < 0 {
		return fmt.Errorf("%w: dateToleranceDays must not be negative, got %d", ErrInvalidRule, r.DateToleranceDays)
	}
	if r.AmountTolerance.IsNegative() {
		return fmt.Errorf("%w: amountTolerance must not be negative, got %s", ErrInvalidRule, r.AmountTolerance)
	}
	return nil
}

// Weights controls how the confidence score is split between amount
// closeness and reference similarity. The two parts should sum to 100 so
// that a perfect candidate scores exactly 100 and classifies as EXACT.
type Weights struct {
	Amount    int
	Reference int
}

// DefaultWeights returns the standard 60/40 split.
func DefaultWeights() Weights {
	return Weights{Amount: 60, Reference: 40}
}
