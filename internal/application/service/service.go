// Package service manages the reconciliation sessions exposed through the
// API: one open session per bank account and period, looked up by ID.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/enxi-erp/reconcile-backend/internal/application/session"
)

var (
	// ErrSessionNotFound is returned for unknown session IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned when an open session already covers the
	// requested account and period.
	ErrSessionExists = errors.New("an open session already exists for this account and period")
	// ErrInvalidPeriod is returned for a period whose end precedes its start.
	ErrInvalidPeriod = errors.New("period end must not precede period start")
)

// CreateRequest scopes a new reconciliation session.
type CreateRequest struct {
	PeriodStart    time.Time
	PeriodEnd      time.Time
	BankAccountID  string
	OpeningBalance decimal.Decimal
	ClosingBalance decimal.Decimal
}

// Handle pairs a session with its service-level identity.
type Handle struct {
	ID        string
	CreatedAt time.Time
	Session   *session.Session
}

// Service creates and tracks reconciliation sessions.
type Service struct {
	loader    session.Loader
	matching  session.MatchingService
	persister session.Persister
	logger    *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Handle
}

// New creates a session service wired to the given collaborators.
func New(loader session.Loader, matching session.MatchingService, persister session.Persister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		loader:    loader,
		matching:  matching,
		persister: persister,
		logger:    logger,
		sessions:  make(map[string]*Handle),
	}
}

// Create opens a session for the period and performs the initial load.
// If the load fails the session is not registered; the caller retries the
// create once the loader recovers.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Handle, error) {
	if req.PeriodEnd.Before(req.PeriodStart) {
		return nil, ErrInvalidPeriod
	}

	s.mu.Lock()
	for _, h := range s.sessions {
		if s.overlaps(h, req) && h.Session.State() != session.StateComplete {
			s.mu.Unlock()
			return nil, ErrSessionExists
		}
	}
	handle := &Handle{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Session: session.New(session.Config{
			PeriodStart:    req.PeriodStart,
			PeriodEnd:      req.PeriodEnd,
			BankAccountID:  req.BankAccountID,
			OpeningBalance: req.OpeningBalance,
			ClosingBalance: req.ClosingBalance,
		}, s.loader, s.matching, s.persister, s.logger),
	}
	s.sessions[handle.ID] = handle
	s.mu.Unlock()

	if err := handle.Session.Load(ctx); err != nil {
		s.mu.Lock()
		delete(s.sessions, handle.ID)
		s.mu.Unlock()
		return nil, err
	}

	s.logger.Info("session created",
		"session_id", handle.ID,
		"bank_account_id", req.BankAccountID,
		"period_start", req.PeriodStart.Format("2006-01-02"),
		"period_end", req.PeriodEnd.Format("2006-01-02"),
	)
	return handle, nil
}

// overlaps reports whether an existing handle covers the same account with
// an intersecting period.
func (s *Service) overlaps(h *Handle, req CreateRequest) bool {
	cfg := h.Session.Config()
	if cfg.BankAccountID != req.BankAccountID {
		return false
	}
	return !req.PeriodEnd.Before(cfg.PeriodStart) && !cfg.PeriodEnd.Before(req.PeriodStart)
}

// Get looks up a session by ID.
func (s *Service) Get(id string) (*Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return h, nil
}

// List returns all tracked sessions.
func (s *Service) List() []*Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Handle, 0, len(s.sessions))
	for _, h := range s.sessions {
		out = append(out, h)
	}
	return out
}

// Close discards a session, resetting the period for a fresh run.
func (s *Service) Close(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(s.sessions, id)
	return nil
}
