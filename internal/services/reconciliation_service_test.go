package services_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolfin/internal/amqp"
	"schoolfin/internal/core"
	"schoolfin/internal/ingest"
	"schoolfin/internal/reconcile"
	"schoolfin/internal/services"
	"schoolfin/internal/services/mocks"
	"schoolfin/internal/storage"
)

const statementCSV = "id,date,amount,description\n" +
	"b1,2024-01-10,45.00,Lesson Ada\n" +
	"b2,2024-01-10,60.00,Lesson Bob\n" +
	"b3,2024-01-15,90.00,Package\n" +
	"b4,not-a-date,10.00,Broken\n"

func seedPayments(t *testing.T, repo services.Store) {
	t.Helper()
	_, err := repo.UpsertRecords(context.Background(), "school-1", core.RecordSet{Payments: []core.Payment{
		{ID: "p1", StudentID: "ada", Amount: "45.00", Date: "2024-01-10", Status: core.StatusCompleted},
		{ID: "p2", StudentID: "bob", Amount: "60.00", Date: "2024-01-11", Status: core.StatusCompleted},
		{ID: "p3", StudentID: "cy", Amount: "60.00", Date: "2024-01-11", Status: core.StatusCompleted},
		{ID: "p4", StudentID: "dee", Amount: "90.00", Date: "2024-02-20", Status: core.StatusCompleted},
	}})
	require.NoError(t, err)
}

type eventLog struct {
	mu    sync.Mutex
	types []string
	last  *amqp.MatchEvent
}

func (l *eventLog) record(_ context.Context, ev *amqp.MatchEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.types = append(l.types, ev.Type)
	l.last = ev
	return nil
}

func stateOf(t *testing.T, v services.View, bankTxnID string) reconcile.MatchCandidate {
	t.Helper()
	for _, c := range v.Candidates {
		if c.BankTxnID == bankTxnID {
			return c
		}
	}
	t.Fatalf("no candidate for %s", bankTxnID)
	return reconcile.MatchCandidate{}
}

func TestReconciliationService_Workflow(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	repo := storage.NewMemoryRepository()
	seedPayments(t, repo)

	events := &eventLog{}
	pub := mocks.NewMockEventPublisher(ctrl)
	pub.EXPECT().PublishMatchEvent(gomock.Any(), gomock.Any()).DoAndReturn(events.record).AnyTimes()

	svc := services.NewReconciliationService(repo, pub, reconcile.DefaultConfig())

	imported, err := svc.ImportStatement(ctx, "school-1", []byte(statementCSV), ingest.FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, 3, imported.Parsed)
	assert.Equal(t, 3, imported.Inserted)
	require.Len(t, imported.Skipped, 1)
	assert.Equal(t, 5, imported.Skipped[0].Line)

	// Re-importing the same file adds nothing and announces nothing.
	again, err := svc.ImportStatement(ctx, "school-1", []byte(statementCSV), ingest.FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Inserted)

	view, err := svc.View(ctx, "school-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), view.Version)
	assert.Equal(t, 3, view.Counts[reconcile.Unmatched])

	view, err = svc.Propose(ctx, "school-1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.Version)
	assert.Equal(t, reconcile.AutoMatched, stateOf(t, view, "b1").State)
	assert.Equal(t, "p1", stateOf(t, view, "b1").PaymentID)
	assert.Equal(t, reconcile.Conflicting, stateOf(t, view, "b2").State)
	assert.ElementsMatch(t, []string{"p2", "p3"}, stateOf(t, view, "b2").Alternatives)
	assert.Equal(t, reconcile.Unmatched, stateOf(t, view, "b3").State)
	assert.Len(t, view.UnmatchedPayments, 3)

	linked, err := svc.Link(ctx, "school-1", "b2", "p3")
	require.NoError(t, err)
	assert.Equal(t, reconcile.ManuallyMatched, linked.State)
	assert.Equal(t, "p3", linked.PaymentID)

	_, err = svc.Link(ctx, "school-1", "b3", "p3")
	assert.ErrorIs(t, err, reconcile.ErrConflict)
	_, err = svc.Link(ctx, "school-1", "b3", "nope")
	assert.ErrorIs(t, err, reconcile.ErrUnknownPayment)

	unlinked, err := svc.Unlink(ctx, "school-1", "b1")
	require.NoError(t, err)
	assert.Equal(t, reconcile.ManuallyUnmatched, unlinked.State)
	assert.Equal(t, "p1", events.last.PaymentID)

	// Manual decisions survive a new proposal; a wider tolerance reaches p4.
	wide := 40
	view, err = svc.Propose(ctx, "school-1", &wide)
	require.NoError(t, err)
	assert.Equal(t, int64(4), view.Version)
	assert.Equal(t, reconcile.ManuallyUnmatched, stateOf(t, view, "b1").State)
	assert.Equal(t, reconcile.ManuallyMatched, stateOf(t, view, "b2").State)
	b3 := stateOf(t, view, "b3")
	assert.Equal(t, reconcile.AutoMatched, b3.State)
	assert.Equal(t, "p4", b3.PaymentID)
	assert.Equal(t, 36, b3.DaysApart)

	stored, err := repo.LoadMatches(ctx, "school-1")
	require.NoError(t, err)
	assert.Equal(t, view.Candidates, stored.Candidates)

	assert.Equal(t, []string{
		amqp.EventStatementImported,
		amqp.EventMatchesProposed,
		amqp.EventManualLink,
		amqp.EventManualUnlink,
		amqp.EventMatchesProposed,
	}, events.types)
}

func TestReconciliationService_SerializesPerSchool(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	seedPayments(t, repo)
	svc := services.NewReconciliationService(repo, nil, reconcile.DefaultConfig())
	_, err := svc.ImportStatement(ctx, "school-1", []byte(statementCSV), ingest.FormatCSV)
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Propose(ctx, "school-1", nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	view, err := svc.View(ctx, "school-1")
	require.NoError(t, err)
	assert.Equal(t, int64(n), view.Version)
}

func TestReconciliationService_VersionConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	bank := []reconcile.BankTransaction{{ID: "b1", Date: core.NewDate(2024, 1, 10), Amount: core.MustParseMoney("45")}}

	store.EXPECT().ListBankTransactions(gomock.Any(), "school-1").Return(bank, nil)
	store.EXPECT().LoadRecords(gomock.Any(), "school-1", core.KindPayment).Return(core.RecordSet{Payments: []core.Payment{
		{ID: "p1", StudentID: "ada", Amount: "45", Date: "2024-01-10", Status: core.StatusCompleted},
	}}, nil)
	store.EXPECT().LoadMatches(gomock.Any(), "school-1").Return(storage.MatchSnapshot{Version: 3}, nil)
	store.EXPECT().SaveMatches(gomock.Any(), "school-1", int64(3), gomock.Any()).
		Return(int64(0), fmt.Errorf("%w: stored 4", storage.ErrVersionConflict))

	svc := services.NewReconciliationService(store, nil, reconcile.DefaultConfig())
	_, err := svc.Link(context.Background(), "school-1", "b1", "p1")
	assert.ErrorIs(t, err, storage.ErrVersionConflict)
}

func TestReconciliationService_ErrorsBeforeSaving(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	svc := services.NewReconciliationService(store, nil, reconcile.DefaultConfig())

	_, err := svc.ImportStatement(context.Background(), "school-1", []byte("memo\nx\n"), ingest.FormatCSV)
	assert.ErrorIs(t, err, ingest.ErrMissingColumn)

	_, err = svc.ImportStatement(context.Background(), "school-1", []byte("{}"), ingest.Format("xml"))
	assert.ErrorIs(t, err, ingest.ErrUnknownFormat)

	_, err = svc.Propose(context.Background(), "", nil)
	assert.ErrorIs(t, err, core.ErrMissingSchool)

	store.EXPECT().ListBankTransactions(gomock.Any(), "school-1").Return(nil, nil)
	store.EXPECT().LoadRecords(gomock.Any(), "school-1", core.KindPayment).Return(core.RecordSet{}, nil)
	store.EXPECT().LoadMatches(gomock.Any(), "school-1").Return(storage.MatchSnapshot{}, nil)
	_, err = svc.Unlink(context.Background(), "school-1", "ghost")
	assert.ErrorIs(t, err, reconcile.ErrUnknownTransaction)
}
