// Package reconcile proposes one-to-one matches between bank statement
// lines and recorded payments and tracks manual overrides.
package reconcile

import (
	"sort"

	"schoolfin/internal/core"
)

// MatchState is the reconciliation status of one bank transaction.
type MatchState string

const (
	Unmatched         MatchState = "unmatched"
	AutoMatched       MatchState = "autoMatched"
	ManuallyMatched   MatchState = "manuallyMatched"
	ManuallyUnmatched MatchState = "manuallyUnmatched"
	Conflicting       MatchState = "conflicting"
)

// IsMatched reports whether the state claims a payment.
func (s MatchState) IsMatched() bool { return s == AutoMatched || s == ManuallyMatched }

// IsManual reports whether the state was set by a person.
func (s MatchState) IsManual() bool { return s == ManuallyMatched || s == ManuallyUnmatched }

func (s MatchState) Valid() bool {
	switch s {
	case Unmatched, AutoMatched, ManuallyMatched, ManuallyUnmatched, Conflicting:
		return true
	}
	return false
}

type BankTransaction struct {
	ID          string     `json:"id"`
	Date        core.Date  `json:"date"`
	Amount      core.Money `json:"amount"`
	Description string     `json:"description,omitempty"`
	Reference   string     `json:"reference,omitempty"`
}

type PaymentRecord struct {
	ID          string             `json:"id"`
	Date        core.Date          `json:"date"`
	Amount      core.Money         `json:"amount"`
	StudentID   string             `json:"student_id,omitempty"`
	Description string             `json:"description,omitempty"`
	Status      core.PaymentStatus `json:"status"`
}

// MatchCandidate is the outcome for one bank transaction. PaymentID is set
// only for matched states; Alternatives lists the tied payments of a
// conflicting transaction.
type MatchCandidate struct {
	BankTxnID    string     `json:"bank_txn_id"`
	PaymentID    string     `json:"payment_id,omitempty"`
	Confidence   float64    `json:"confidence"`
	DaysApart    int        `json:"days_apart"`
	State        MatchState `json:"state"`
	Alternatives []string   `json:"alternatives,omitempty"`
}

// Config tunes the matcher.
type Config struct {
	// DateToleranceDays is the largest accepted gap between bank and
	// payment dates. Negative values are treated as zero.
	DateToleranceDays int
	// ConflictMargin is the confidence gap under which the two best
	// candidates of a transaction are considered tied.
	ConflictMargin float64
}

func DefaultConfig() Config {
	return Config{DateToleranceDays: 3, ConflictMargin: 0.05}
}

func (c Config) normalized() Config {
	if c.DateToleranceDays < 0 {
		c.DateToleranceDays = 0
	}
	if c.ConflictMargin < 0 {
		c.ConflictMargin = 0
	}
	return c
}

// Confidence scores a candidate: 1 on the same day, falling linearly and
// staying above zero up to the tolerance.
func Confidence(days, tolerance int) float64 {
	return 1 - float64(days)/float64(tolerance+1)
}

const epsilon = 1e-9

type pair struct {
	bank, payment int
	days          int
	confidence    float64
}

// Propose matches bank transactions to payments with equal amounts and
// dates within tolerance. Pairs are taken greedily by confidence, then by
// fewer days apart, then by bank transaction id. A transaction whose two
// best free candidates are within the conflict margin is marked
// conflicting and claims nothing. The result holds one candidate per bank
// transaction in input order.
func Propose(bankTxns []BankTransaction, payments []PaymentRecord, cfg Config) []MatchCandidate {
	cfg = cfg.normalized()

	var pairs []pair
	for bi, b := range bankTxns {
		if b.Date.IsZero() {
			continue
		}
		for pi, p := range payments {
			if !Eligible(p) || !b.Amount.Equal(p.Amount) {
				continue
			}
			days := core.DaysBetween(b.Date, p.Date)
			if days > cfg.DateToleranceDays {
				continue
			}
			pairs = append(pairs, pair{bank: bi, payment: pi, days: days, confidence: Confidence(days, cfg.DateToleranceDays)})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.confidence != b.confidence {
			return a.confidence > b.confidence
		}
		if a.days != b.days {
			return a.days < b.days
		}
		if bankTxns[a.bank].ID != bankTxns[b.bank].ID {
			return bankTxns[a.bank].ID < bankTxns[b.bank].ID
		}
		return payments[a.payment].ID < payments[b.payment].ID
	})

	byBank := make(map[int][]int)
	for i, p := range pairs {
		byBank[p.bank] = append(byBank[p.bank], i)
	}

	out := make([]MatchCandidate, len(bankTxns))
	for i, b := range bankTxns {
		out[i] = MatchCandidate{BankTxnID: b.ID, State: Unmatched}
	}
	decided := make([]bool, len(bankTxns))
	taken := make([]bool, len(payments))

	for _, top := range pairs {
		if decided[top.bank] || taken[top.payment] {
			continue
		}
		decided[top.bank] = true

		var tied []string
		for _, j := range byBank[top.bank] {
			rival := pairs[j]
			if rival.payment == top.payment || taken[rival.payment] {
				continue
			}
			if top.confidence-rival.confidence <= cfg.ConflictMargin+epsilon {
				tied = append(tied, payments[rival.payment].ID)
			}
		}
		if len(tied) > 0 {
			out[top.bank] = MatchCandidate{
				BankTxnID:    bankTxns[top.bank].ID,
				Confidence:   top.confidence,
				DaysApart:    top.days,
				State:        Conflicting,
				Alternatives: append([]string{payments[top.payment].ID}, tied...),
			}
			continue
		}

		taken[top.payment] = true
		out[top.bank] = MatchCandidate{
			BankTxnID:  bankTxns[top.bank].ID,
			PaymentID:  payments[top.payment].ID,
			Confidence: top.confidence,
			DaysApart:  top.days,
			State:      AutoMatched,
		}
	}
	return out
}

// Eligible reports whether a payment may be matched automatically.
// Failed and refunded payments never are, nor are payments without a date.
func Eligible(p PaymentRecord) bool {
	if p.Date.IsZero() {
		return false
	}
	return p.Status != core.StatusFailed && p.Status != core.StatusRefunded
}

// UnmatchedPayments returns payments no candidate claims, in input order.
func UnmatchedPayments(candidates []MatchCandidate, payments []PaymentRecord) []PaymentRecord {
	claimed := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if c.State.IsMatched() {
			claimed[c.PaymentID] = true
		}
	}
	var out []PaymentRecord
	for _, p := range payments {
		if !claimed[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

// PaymentRecords adapts stored payments for matching. Payments whose
// amount, date or status does not parse are left out.
func PaymentRecords(ps []core.Payment) []PaymentRecord {
	out := make([]PaymentRecord, 0, len(ps))
	for _, p := range ps {
		amount, err := core.ParseMoney(p.Amount)
		if err != nil {
			continue
		}
		date, err := core.ParseDate(p.Date)
		if err != nil {
			continue
		}
		status, err := core.ParsePaymentStatus(string(p.Status))
		if err != nil {
			continue
		}
		out = append(out, PaymentRecord{
			ID:          p.ID,
			Date:        date,
			Amount:      amount,
			StudentID:   p.StudentID,
			Description: p.Description,
			Status:      status,
		})
	}
	return out
}
