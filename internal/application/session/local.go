package session

import (
	"context"

	"github.com/enxi-erp/reconcile-backend/internal/domain/ledger"
	"github.com/enxi-erp/reconcile-backend/internal/domain/matcher"
)

// LocalMatcher adapts the in-process matching engine to the
// MatchingService contract used by sessions.
type LocalMatcher struct {
	Engine *matcher.Engine
}

// Score runs the local engine. The engine is synchronous; the context is
// accepted for contract parity with remote scoring services.
func (l LocalMatcher) Score(
	_ context.Context,
	txs []*ledger.BankTransaction,
	payments []*ledger.SystemPayment,
	rules matcher.Rules,
) ([]ledger.Match, error) {
	return l.Engine.AutoMatch(txs, payments, rules)
}
