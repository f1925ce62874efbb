package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enxi-erp/reconcile-backend/internal/application/session"
	"github.com/enxi-erp/reconcile-backend/internal/domain/ledger"
	"github.com/enxi-erp/reconcile-backend/internal/domain/matcher"
)

type fakeLoader struct {
	err error
}

func (l *fakeLoader) Load(ctx context.Context, start, end time.Time, bankAccountID string) ([]*ledger.BankTransaction, []*ledger.SystemPayment, error) {
	if l.err != nil {
		return nil, nil, l.err
	}
	return []*ledger.BankTransaction{
			{ID: "tx1", Date: start, Amount: decimal.NewFromInt(100), Kind: ledger.Credit},
		}, []*ledger.SystemPayment{
			{ID: "p1", PaymentDate: start, Amount: decimal.NewFromInt(100)},
		}, nil
}

type fakePersister struct{}

func (fakePersister) Commit(ctx context.Context, req session.CommitRequest) error { return nil }

func newService(loader session.Loader) *Service {
	engine := matcher.NewEngine(matcher.DefaultWeights())
	return New(loader, session.LocalMatcher{Engine: engine}, fakePersister{}, nil)
}

func createReq(account string) CreateRequest {
	return CreateRequest{
		PeriodStart:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		BankAccountID:  account,
		OpeningBalance: decimal.NewFromInt(0),
		ClosingBalance: decimal.NewFromInt(100),
	}
}

func TestCreate_LoadsAndRegisters(t *testing.T) {
	svc := newService(&fakeLoader{})

	h, err := svc.Create(context.Background(), createReq("acc-1"))

	require.NoError(t, err)
	assert.NotEmpty(t, h.ID)
	assert.Equal(t, session.StateReady, h.Session.State())

	got, err := svc.Get(h.ID)
	require.NoError(t, err)
	assert.Same(t, h, got)
}

func TestCreate_RejectsOverlappingOpenSession(t *testing.T) {
	svc := newService(&fakeLoader{})
	_, err := svc.Create(context.Background(), createReq("acc-1"))
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), createReq("acc-1"))
	assert.ErrorIs(t, err, ErrSessionExists)

	// A different account is independent.
	_, err = svc.Create(context.Background(), createReq("acc-2"))
	assert.NoError(t, err)
}

func TestCreate_InvalidPeriod(t *testing.T) {
	svc := newService(&fakeLoader{})
	req := createReq("acc-1")
	req.PeriodEnd = req.PeriodStart.AddDate(0, 0, -1)

	_, err := svc.Create(context.Background(), req)

	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestCreate_LoaderFailureNotRegistered(t *testing.T) {
	loader := &fakeLoader{err: errors.New("db down")}
	svc := newService(loader)

	_, err := svc.Create(context.Background(), createReq("acc-1"))
	assert.ErrorIs(t, err, session.ErrLoad)
	assert.Empty(t, svc.List())

	// Retry succeeds once the loader recovers.
	loader.err = nil
	_, err = svc.Create(context.Background(), createReq("acc-1"))
	assert.NoError(t, err)
}

func TestClose_RemovesSession(t *testing.T) {
	svc := newService(&fakeLoader{})
	h, err := svc.Create(context.Background(), createReq("acc-1"))
	require.NoError(t, err)

	require.NoError(t, svc.Close(h.ID))

	_, err = svc.Get(h.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// The period is free again after a close.
	_, err = svc.Create(context.Background(), createReq("acc-1"))
	assert.NoError(t, err)
}

func TestClose_UnknownID(t *testing.T) {
	svc := newService(&fakeLoader{})
	assert.ErrorIs(t, svc.Close("nope"), ErrSessionNotFound)
}
