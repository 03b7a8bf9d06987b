package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolfin/internal/core"
	"schoolfin/internal/reconcile"
)

type repository interface {
	UpsertRecords(ctx context.Context, schoolID string, set core.RecordSet) (int, error)
	LoadRecords(ctx context.Context, schoolID string, kind core.RecordKind) (core.RecordSet, error)
	SaveBankTransactions(ctx context.Context, schoolID string, txns []reconcile.BankTransaction) (int, error)
	ListBankTransactions(ctx context.Context, schoolID string) ([]reconcile.BankTransaction, error)
	LoadMatches(ctx context.Context, schoolID string) (MatchSnapshot, error)
	SaveMatches(ctx context.Context, schoolID string, expected int64, candidates []reconcile.MatchCandidate) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ repository = (*SQLRepository)(nil)
	_ repository = (*MemoryRepository)(nil)
)

// forEachRepository runs the test against every implementation.
func forEachRepository(t *testing.T, fn func(t *testing.T, repo repository)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryRepository())
	})
	t.Run("sqlite", func(t *testing.T) {
		repo, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "test.db"))
		require.NoError(t, err)
		t.Cleanup(func() { repo.Close() })
		fn(t, repo)
	})
}

func mustDate(t *testing.T, s string) core.Date {
	t.Helper()
	d, err := core.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestRecords_UpsertAndLoad(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo repository) {
		ctx := context.Background()
		require.NoError(t, repo.Ping(ctx))

		n, err := repo.UpsertRecords(ctx, "school-1", core.RecordSet{
			Payments: []core.Payment{
				{ID: "p2", StudentID: "s1", Amount: "60", Date: "2024-01-11", Status: core.StatusPending},
				{ID: "p1", StudentID: "s1", Amount: "45", Date: "2024-01-10", Status: core.StatusCompleted},
			},
			Expenses: []core.Expense{{ID: "e1", Category: "Fuel", Amount: "20", Date: "2024-01-05"}},
		})
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		// Same id replaces the stored record.
		_, err = repo.UpsertRecords(ctx, "school-1", core.RecordSet{
			Payments: []core.Payment{{ID: "p2", StudentID: "s1", Amount: "65", Date: "2024-01-11", Status: core.StatusCompleted}},
		})
		require.NoError(t, err)

		set, err := repo.LoadRecords(ctx, "school-1", core.KindPayment)
		require.NoError(t, err)
		require.Len(t, set.Payments, 2)
		assert.Equal(t, "p1", set.Payments[0].ID)
		assert.Equal(t, "65", set.Payments[1].Amount)
		assert.Equal(t, core.StatusCompleted, set.Payments[1].Status)
		assert.Empty(t, set.Expenses)

		set, err = repo.LoadRecords(ctx, "school-1", core.KindExpense)
		require.NoError(t, err)
		require.Len(t, set.Expenses, 1)
		assert.Equal(t, "Fuel", set.Expenses[0].Category)

		set, err = repo.LoadRecords(ctx, "school-2", core.KindPayment)
		require.NoError(t, err)
		assert.Zero(t, set.Len(), "schools must not see each other's records")
	})
}

func TestBankTransactions_KeepOrderAndSkipKnownIDs(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo repository) {
		ctx := context.Background()
		first := []reconcile.BankTransaction{
			{ID: "t2", Date: mustDate(t, "2024-01-11"), Amount: core.MustParseMoney("60"), Description: "Bob"},
			{ID: "t1", Date: mustDate(t, "2024-01-10"), Amount: core.MustParseMoney("45.50"), Reference: "R1"},
		}
		n, err := repo.SaveBankTransactions(ctx, "school-1", first)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = repo.SaveBankTransactions(ctx, "school-1", []reconcile.BankTransaction{
			{ID: "t1", Date: mustDate(t, "2024-02-01"), Amount: core.MustParseMoney("1")},
			{ID: "t3", Date: mustDate(t, "2024-01-12"), Amount: core.MustParseMoney("-12.30")},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := repo.ListBankTransactions(ctx, "school-1")
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"t2", "t1", "t3"}, []string{got[0].ID, got[1].ID, got[2].ID})
		assert.Equal(t, "2024-01-10", got[1].Date.String(), "known id must keep its first version")
		assert.True(t, got[1].Amount.Equal(core.MustParseMoney("45.50")))
		assert.Equal(t, "R1", got[1].Reference)
		assert.Equal(t, "Bob", got[0].Description)
		assert.Equal(t, "-12.30", got[2].Amount.Fixed())

		got, err = repo.ListBankTransactions(ctx, "school-2")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestMatches_OptimisticVersion(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo repository) {
		ctx := context.Background()

		snap, err := repo.LoadMatches(ctx, "school-1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), snap.Version)
		assert.Empty(t, snap.Candidates)

		candidates := []reconcile.MatchCandidate{
			{BankTxnID: "t2", PaymentID: "p1", Confidence: 0.75, DaysApart: 1, State: reconcile.AutoMatched},
			{BankTxnID: "t1", State: reconcile.Conflicting, Confidence: 0.5, DaysApart: 2, Alternatives: []string{"p2", "p3"}},
			{BankTxnID: "t3", State: reconcile.Unmatched},
		}
		v, err := repo.SaveMatches(ctx, "school-1", 0, candidates)
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)

		snap, err = repo.LoadMatches(ctx, "school-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), snap.Version)
		assert.Equal(t, candidates, snap.Candidates)

		// A writer holding the old version loses.
		_, err = repo.SaveMatches(ctx, "school-1", 0, nil)
		assert.ErrorIs(t, err, ErrVersionConflict)

		v, err = repo.SaveMatches(ctx, "school-1", 1, candidates[:1])
		require.NoError(t, err)
		assert.Equal(t, int64(2), v)

		snap, err = repo.LoadMatches(ctx, "school-1")
		require.NoError(t, err)
		assert.Len(t, snap.Candidates, 1)

		_, err = repo.SaveMatches(ctx, "school-1", 1, nil)
		assert.ErrorIs(t, err, ErrVersionConflict)
	})
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{dialect: Postgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &SQLRepository{dialect: SQLite}
	assert.Equal(t, "SELECT ?", lite.rebind("SELECT ?"))
}
