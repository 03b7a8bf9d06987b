package reconcile

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolfin/internal/core"
)

func bank(id, date, amount string) BankTransaction {
	d, err := core.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return BankTransaction{ID: id, Date: d, Amount: core.MustParseMoney(amount)}
}

func payment(id, date, amount string) PaymentRecord {
	d, err := core.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return PaymentRecord{ID: id, Date: d, Amount: core.MustParseMoney(amount), Status: core.StatusCompleted}
}

func tolerance(days int) Config {
	cfg := DefaultConfig()
	cfg.DateToleranceDays = days
	return cfg
}

func TestPropose_MatchesClosestWithinTolerance(t *testing.T) {
	got := Propose(
		[]BankTransaction{bank("b1", "2024-01-10", "45")},
		[]PaymentRecord{payment("p1", "2024-01-11", "45"), payment("p2", "2024-01-20", "45")},
		tolerance(3),
	)
	require.Len(t, got, 1)
	assert.Equal(t, AutoMatched, got[0].State)
	assert.Equal(t, "p1", got[0].PaymentID)
	assert.Equal(t, 1, got[0].DaysApart)
	assert.InDelta(t, 0.75, got[0].Confidence, 1e-9)
}

func TestPropose_TiedCandidatesConflict(t *testing.T) {
	got := Propose(
		[]BankTransaction{bank("b1", "2024-01-10", "45")},
		[]PaymentRecord{payment("p1", "2024-01-09", "45"), payment("p2", "2024-01-11", "45")},
		tolerance(3),
	)
	require.Len(t, got, 1)
	assert.Equal(t, Conflicting, got[0].State)
	assert.Empty(t, got[0].PaymentID)
	assert.ElementsMatch(t, []string{"p1", "p2"}, got[0].Alternatives)
}

func TestPropose_ConflictMargin(t *testing.T) {
	bankTxns := []BankTransaction{bank("b1", "2024-01-10", "45")}
	payments := []PaymentRecord{payment("p1", "2024-01-10", "45"), payment("p2", "2024-01-11", "45")}

	// With tolerance 3 the scores are 1.0 and 0.75: well apart.
	got := Propose(bankTxns, payments, tolerance(3))
	assert.Equal(t, AutoMatched, got[0].State)
	assert.Equal(t, "p1", got[0].PaymentID)

	// A wide margin turns the same pair into a conflict.
	cfg := tolerance(3)
	cfg.ConflictMargin = 0.3
	got = Propose(bankTxns, payments, cfg)
	assert.Equal(t, Conflicting, got[0].State)
}

func TestPropose_ToleranceBoundary(t *testing.T) {
	for _, tol := range []int{0, 1, 3, 7} {
		t.Run(fmt.Sprintf("tolerance_%d", tol), func(t *testing.T) {
			b := bank("b1", "2024-01-10", "45")

			atLimit := payment("p1", b.Date.AddDays(tol).String(), "45")
			got := Propose([]BankTransaction{b}, []PaymentRecord{atLimit}, tolerance(tol))
			assert.Equal(t, AutoMatched, got[0].State, "payment exactly at tolerance should match")
			assert.Greater(t, got[0].Confidence, 0.0)

			beyond := payment("p2", b.Date.AddDays(tol+1).String(), "45")
			got = Propose([]BankTransaction{b}, []PaymentRecord{beyond}, tolerance(tol))
			assert.Equal(t, Unmatched, got[0].State, "payment past tolerance must not match")
		})
	}
}

func TestPropose_ExactAmountOnly(t *testing.T) {
	got := Propose(
		[]BankTransaction{bank("b1", "2024-01-10", "45.00")},
		[]PaymentRecord{payment("p1", "2024-01-10", "45.01"), payment("p2", "2024-01-10", "44.99")},
		tolerance(3),
	)
	assert.Equal(t, Unmatched, got[0].State)

	got = Propose(
		[]BankTransaction{bank("b1", "2024-01-10", "45.00")},
		[]PaymentRecord{payment("p1", "2024-01-10", "45")},
		tolerance(3),
	)
	assert.Equal(t, AutoMatched, got[0].State)
}

func TestPropose_SkipsFailedAndRefunded(t *testing.T) {
	failed := payment("p1", "2024-01-10", "45")
	failed.Status = core.StatusFailed
	refunded := payment("p2", "2024-01-10", "45")
	refunded.Status = core.StatusRefunded
	pending := payment("p3", "2024-01-12", "45")
	pending.Status = core.StatusPending

	got := Propose([]BankTransaction{bank("b1", "2024-01-10", "45")}, []PaymentRecord{failed, refunded, pending}, tolerance(3))
	assert.Equal(t, AutoMatched, got[0].State)
	assert.Equal(t, "p3", got[0].PaymentID)
}

func TestPropose_GreedyOrder(t *testing.T) {
	// b2 is a same-day match for p1 and wins it; b1 falls back to p2.
	got := Propose(
		[]BankTransaction{bank("b1", "2024-01-10", "45"), bank("b2", "2024-01-12", "45")},
		[]PaymentRecord{payment("p1", "2024-01-12", "45"), payment("p2", "2024-01-08", "45")},
		tolerance(3),
	)
	require.Len(t, got, 2)
	assert.Equal(t, "b1", got[0].BankTxnID)
	assert.Equal(t, "p2", got[0].PaymentID)
	assert.Equal(t, AutoMatched, got[0].State)
	assert.Equal(t, "p1", got[1].PaymentID)
	assert.Equal(t, 0, got[1].DaysApart)
}

func TestPropose_TieBreakByBankID(t *testing.T) {
	// Two bank lines compete for one payment at equal distance.
	got := Propose(
		[]BankTransaction{bank("b2", "2024-01-11", "45"), bank("b1", "2024-01-09", "45")},
		[]PaymentRecord{payment("p1", "2024-01-10", "45")},
		tolerance(3),
	)
	assert.Equal(t, "b2", got[0].BankTxnID)
	assert.Equal(t, Unmatched, got[0].State)
	assert.Equal(t, "b1", got[1].BankTxnID)
	assert.Equal(t, AutoMatched, got[1].State)
}

func TestPropose_NegativeToleranceActsAsZero(t *testing.T) {
	got := Propose(
		[]BankTransaction{bank("b1", "2024-01-10", "45")},
		[]PaymentRecord{payment("p1", "2024-01-10", "45"), payment("p2", "2024-01-11", "45")},
		tolerance(-5),
	)
	assert.Equal(t, AutoMatched, got[0].State)
	assert.Equal(t, "p1", got[0].PaymentID)
	assert.Equal(t, 1.0, got[0].Confidence)
}

func TestPropose_EmptyInputs(t *testing.T) {
	assert.Empty(t, Propose(nil, nil, DefaultConfig()))

	got := Propose([]BankTransaction{bank("b1", "2024-01-10", "45")}, nil, DefaultConfig())
	require.Len(t, got, 1)
	assert.Equal(t, Unmatched, got[0].State)
}

// Random statements must never assign a payment twice, must respect the
// tolerance and must be independent of call count.
func TestPropose_Invariants(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	amounts := []string{"45", "60", "90.50", "120"}

	for round := 0; round < 100; round++ {
		var bankTxns []BankTransaction
		var payments []PaymentRecord
		nBank, nPay := 1+rnd.Intn(15), rnd.Intn(15)
		for i := 0; i < nBank; i++ {
			day := 1 + rnd.Intn(28)
			bankTxns = append(bankTxns, bank(fmt.Sprintf("b%02d", i), fmt.Sprintf("2024-01-%02d", day), amounts[rnd.Intn(len(amounts))]))
		}
		for i := 0; i < nPay; i++ {
			day := 1 + rnd.Intn(28)
			payments = append(payments, payment(fmt.Sprintf("p%02d", i), fmt.Sprintf("2024-01-%02d", day), amounts[rnd.Intn(len(amounts))]))
		}
		cfg := tolerance(rnd.Intn(5))

		got := Propose(bankTxns, payments, cfg)
		require.Len(t, got, len(bankTxns))
		assert.Equal(t, got, Propose(bankTxns, payments, cfg), "round %d: not deterministic", round)

		byID := map[string]PaymentRecord{}
		for _, p := range payments {
			byID[p.ID] = p
		}
		seen := map[string]bool{}
		for i, c := range got {
			assert.Equal(t, bankTxns[i].ID, c.BankTxnID)
			if c.State != AutoMatched {
				assert.Empty(t, c.PaymentID)
				continue
			}
			assert.False(t, seen[c.PaymentID], "round %d: payment %s assigned twice", round, c.PaymentID)
			seen[c.PaymentID] = true
			p := byID[c.PaymentID]
			assert.True(t, p.Amount.Equal(bankTxns[i].Amount))
			assert.LessOrEqual(t, core.DaysBetween(p.Date, bankTxns[i].Date), cfg.DateToleranceDays)
		}
	}
}

func TestUnmatchedPayments(t *testing.T) {
	payments := []PaymentRecord{payment("p1", "2024-01-10", "45"), payment("p2", "2024-01-10", "60")}
	candidates := Propose([]BankTransaction{bank("b1", "2024-01-10", "45")}, payments, DefaultConfig())
	left := UnmatchedPayments(candidates, payments)
	require.Len(t, left, 1)
	assert.Equal(t, "p2", left[0].ID)
}

func TestPaymentRecords(t *testing.T) {
	got := PaymentRecords([]core.Payment{
		{ID: "p1", StudentID: "s1", Amount: "45,00", Date: "2024-01-10", Status: core.StatusCompleted},
		{ID: "p2", StudentID: "s1", Amount: "oops", Date: "2024-01-10", Status: core.StatusCompleted},
		{ID: "p3", StudentID: "s1", Amount: "45", Date: "", Status: core.StatusCompleted},
		{ID: "p4", StudentID: "s1", Amount: "45", Date: "2024-01-10", Status: "lost"},
	})
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ID)
	assert.Equal(t, "45", got[0].Amount.String())
}
