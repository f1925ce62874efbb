// Package session orchestrates one bank reconciliation run: load the
// period's data, propose matches, let the user adjust them, verify the
// balance, and finalize.
//
// A session is designed for a single interactive editor. Mutating
// operations are serialized; while a collaborator call (load, scoring,
// commit) is outstanding the session is busy and every other mutating
// call fails with ErrSessionBusy so a match set is never applied against
// a registry that has since changed.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/enxi-erp/reconcile-backend/internal/domain/balance"
	"github.com/enxi-erp/reconcile-backend/internal/domain/ledger"
	"github.com/enxi-erp/reconcile-backend/internal/domain/matcher"
	"github.com/enxi-erp/reconcile-backend/internal/domain/registry"
)

// State is the session's position in its lifecycle.
type State string

const (
	StateLoading    State = "loading"
	StateReady      State = "ready"
	StateMatching   State = "matching"
	StateFinalizing State = "finalizing"
	StateComplete   State = "complete"
	StateErrored    State = "errored"
)

var (
	// ErrSessionBusy is returned when a mutating operation arrives while a
	// collaborator call is outstanding.
	ErrSessionBusy = errors.New("session busy")
	// ErrInvalidState is returned when an operation is not legal in the
	// session's current state.
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrImbalance blocks finalization while the balance equation does not
	// hold; the user must find or adjust the missing movements.
	ErrImbalance = errors.New("bank account is not balanced")
	// ErrNoMatches blocks finalization of a session without any active match.
	ErrNoMatches = errors.New("no active matches to finalize")
	// ErrAlreadyFinalized is returned by a second finalize on a completed
	// session; nothing is re-persisted.
	ErrAlreadyFinalized = errors.New("session already finalized")
	// ErrLoad wraps collaborator failures while fetching period data.
	ErrLoad = errors.New("load failed")
	// ErrPersistence wraps commit failures after validation passed; the
	// match set stays intact so the user can retry.
	ErrPersistence = errors.New("persistence failed")
)

// Loader fetches the period's bank transactions and system payments.
type Loader interface {
	Load(ctx context.Context, start, end time.Time, bankAccountID string) ([]*ledger.BankTransaction, []*ledger.SystemPayment, error)
}

// MatchingService scores candidate matches. It may be the local engine or
// a remote equivalent; the contract is identical either way.
type MatchingService interface {
	Score(ctx context.Context, txs []*ledger.BankTransaction, payments []*ledger.SystemPayment, rules matcher.Rules) ([]ledger.Match, error)
}

// CommitRequest carries everything a Persister needs to store a completed
// reconciliation.
type CommitRequest struct {
	Matches        []ledger.Match
	PeriodStart    time.Time
	PeriodEnd      time.Time
	BankAccountID  string
	OpeningBalance decimal.Decimal
	ClosingBalance decimal.Decimal
}

// Persister commits a finalized reconciliation.
type Persister interface {
	Commit(ctx context.Context, req CommitRequest) error
}

// Config scopes a session to one period and account.
type Config struct {
	PeriodStart    time.Time
	PeriodEnd      time.Time
	BankAccountID  string // optional
	OpeningBalance decimal.Decimal
	ClosingBalance decimal.Decimal
}

// Summary is the read-only view surfaced to the UI after every mutation.
type Summary struct {
	State                    State
	Balance                  balance.Summary
	MatchCount               int
	UnmatchedCreditCount     int
	UnreconciledPaymentCount int
	DuplicateSuspects        []matcher.DuplicatePair
}

// Session drives one reconciliation run.
type Session struct {
	cfg       Config
	loader    Loader
	matching  MatchingService
	persister Persister
	logger    *slog.Logger

	mu       sync.Mutex
	busy     bool
	state    State
	txs      []*ledger.BankTransaction
	payments []*ledger.SystemPayment
	reg      *registry.Registry
	suspects []matcher.DuplicatePair
}

// New creates a session in the loading state.
func New(cfg Config, loader Loader, matching MatchingService, persister Persister, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:       cfg,
		loader:    loader,
		matching:  matching,
		persister: persister,
		logger:    logger,
		state:     StateLoading,
	}
}

// Load fetches the period's transactions and payments. Allowed from the
// loading state and, as a restart, from the errored state. On collaborator
// failure the session moves to errored and the caller must reload.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrSessionBusy
	}
	if s.state != StateLoading && s.state != StateErrored {
		s.mu.Unlock()
		return fmt.Errorf("%w: load from %s", ErrInvalidState, s.state)
	}
	s.busy = true
	s.mu.Unlock()

	txs, payments, err := s.loader.Load(ctx, s.cfg.PeriodStart, s.cfg.PeriodEnd, s.cfg.BankAccountID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if err != nil {
		s.state = StateErrored
		s.logger.Error("period load failed", "error", err)
		return fmt.Errorf("%w: %v", ErrLoad, err)
	}

	s.txs = txs
	s.payments = payments
	s.reg = registry.New(txs, payments)
	s.suspects = matcher.DuplicateSuspects(txs)
	s.state = StateReady

	s.logger.Info("period loaded",
		"transactions", len(txs),
		"payments", len(payments),
		"duplicate_suspects", len(s.suspects),
	)
	return nil
}

// RequestAutoMatch runs the matching service over the currently unmatched
// entities and applies the proposals on top of the existing match set. On
// failure the session stays ready with its prior matches untouched.
func (s *Session) RequestAutoMatch(ctx context.Context, rules matcher.Rules) ([]ledger.Match, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrSessionBusy
	}
	if s.state != StateReady {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: auto-match from %s", ErrInvalidState, s.state)
	}
	s.busy = true
	s.state = StateMatching
	txs := s.txs
	payments := s.payments
	existing := s.reg.Matches()
	s.mu.Unlock()

	proposed, err := s.matching.Score(ctx, txs, payments, rules)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	s.state = StateReady
	if err != nil {
		return nil, err
	}

	// The scoring service only proposes pairs over unconsumed entities, so
	// the union with the existing set is conflict-free by construction.
	// ApplyMatches still verifies the invariants before mutating anything.
	combined := make([]ledger.Match, 0, len(existing)+len(proposed))
	combined = append(combined, existing...)
	combined = append(combined, proposed...)
	if err := s.reg.ApplyMatches(combined); err != nil {
		return nil, err
	}

	s.logger.Info("auto-match applied", "proposed", len(proposed), "active", s.reg.Len())
	return proposed, nil
}

// AddManualMatch records a user-confirmed pairing.
func (s *Session) AddManualMatch(bankTransactionID, paymentID string) (ledger.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ledger.Match{}, ErrSessionBusy
	}
	if s.state != StateReady {
		return ledger.Match{}, fmt.Errorf("%w: manual match from %s", ErrInvalidState, s.state)
	}
	return s.reg.AddManualMatch(bankTransactionID, paymentID)
}

// RemoveMatch undoes an active match.
func (s *Session) RemoveMatch(m ledger.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrSessionBusy
	}
	if s.state != StateReady {
		return fmt.Errorf("%w: unmatch from %s", ErrInvalidState, s.state)
	}
	return s.reg.RemoveMatch(m)
}

// Finalize validates the gates and commits the reconciliation. The gates
// are checked before any persistence call: an imbalanced account or an
// empty match set rejects immediately. A completed session cannot be
// finalized twice.
func (s *Session) Finalize(ctx context.Context) error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrSessionBusy
	}
	if s.state == StateComplete {
		s.mu.Unlock()
		return ErrAlreadyFinalized
	}
	if s.state != StateReady {
		s.mu.Unlock()
		return fmt.Errorf("%w: finalize from %s", ErrInvalidState, s.state)
	}

	bal := balance.Compute(s.cfg.OpeningBalance, s.cfg.ClosingBalance, s.txs)
	if !bal.IsBalanced {
		s.mu.Unlock()
		return fmt.Errorf("%w: difference %s", ErrImbalance, bal.BalanceDifference)
	}
	if s.reg.Len() == 0 {
		s.mu.Unlock()
		return ErrNoMatches
	}

	req := CommitRequest{
		Matches:        s.reg.Matches(),
		PeriodStart:    s.cfg.PeriodStart,
		PeriodEnd:      s.cfg.PeriodEnd,
		BankAccountID:  s.cfg.BankAccountID,
		OpeningBalance: s.cfg.OpeningBalance,
		ClosingBalance: s.cfg.ClosingBalance,
	}
	s.busy = true
	s.state = StateFinalizing
	s.mu.Unlock()

	err := s.persister.Commit(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if err != nil {
		// Matches stay intact so the user can retry without redoing work.
		s.state = StateReady
		s.logger.Error("reconciliation commit failed", "error", err)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.state = StateComplete
	s.logger.Info("reconciliation finalized",
		"matches", len(req.Matches),
		"period_start", req.PeriodStart.Format("2006-01-02"),
		"period_end", req.PeriodEnd.Format("2006-01-02"),
	)
	return nil
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Config returns the period scope the session was opened with.
func (s *Session) Config() Config {
	return s.cfg
}

// Summary recomputes the balance verification and match coverage.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{
		State:             s.state,
		Balance:           balance.Compute(s.cfg.OpeningBalance, s.cfg.ClosingBalance, s.txs),
		DuplicateSuspects: s.suspects,
	}
	if s.reg != nil {
		sum.MatchCount = s.reg.Len()
		sum.UnmatchedCreditCount = s.reg.UnmatchedCreditCount()
		sum.UnreconciledPaymentCount = s.reg.UnreconciledPaymentCount()
	}
	return sum
}

// Matches returns the active matches in insertion order.
func (s *Session) Matches() []ledger.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reg == nil {
		return nil
	}
	return s.reg.Matches()
}

// Transactions returns value copies of the loaded bank transactions; the
// registry remains the only writer of match state.
func (s *Session) Transactions() []ledger.BankTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.BankTransaction, 0, len(s.txs))
	for _, tx := range s.txs {
		out = append(out, *tx)
	}
	return out
}

// Payments returns value copies of the loaded system payments.
func (s *Session) Payments() []ledger.SystemPayment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.SystemPayment, 0, len(s.payments))
	for _, p := range s.payments {
		out = append(out, *p)
	}
	return out
}
