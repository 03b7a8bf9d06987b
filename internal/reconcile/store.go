package reconcile

import (
	"errors"
	"fmt"
	"sort"

	"schoolfin/internal/core"
)

var (
	ErrConflict           = errors.New("bank transaction or payment is already matched")
	ErrUnknownTransaction = errors.New("unknown bank transaction")
	ErrUnknownPayment     = errors.New("unknown payment")
)

// Store holds the match state of every bank transaction of one school.
// It is not safe for concurrent use; callers serialize access.
type Store struct {
	order    []string
	entries  map[string]MatchCandidate
	bank     map[string]BankTransaction
	payments map[string]PaymentRecord
	// owner maps a claimed payment id to the bank transaction holding it.
	owner map[string]string
}

// NewStore seeds the store with bank transactions, payments and existing
// candidates (fresh from Propose or loaded from storage). Transactions
// without a candidate start unmatched. A payment claimed twice stays with
// the first claimant; later claimants are reset to unmatched.
func NewStore(bankTxns []BankTransaction, payments []PaymentRecord, candidates []MatchCandidate) *Store {
	s := &Store{
		entries:  make(map[string]MatchCandidate, len(bankTxns)),
		bank:     make(map[string]BankTransaction, len(bankTxns)),
		payments: make(map[string]PaymentRecord, len(payments)),
		owner:    make(map[string]string),
	}
	for _, p := range payments {
		s.payments[p.ID] = p
	}
	for _, b := range bankTxns {
		if _, dup := s.bank[b.ID]; dup {
			continue
		}
		s.bank[b.ID] = b
		s.order = append(s.order, b.ID)
		s.entries[b.ID] = MatchCandidate{BankTxnID: b.ID, State: Unmatched}
	}
	for _, c := range candidates {
		if _, ok := s.bank[c.BankTxnID]; !ok {
			continue
		}
		if c.State.IsMatched() {
			_, known := s.payments[c.PaymentID]
			_, claimed := s.owner[c.PaymentID]
			if !known || claimed {
				c = MatchCandidate{BankTxnID: c.BankTxnID, State: Unmatched}
			} else {
				s.owner[c.PaymentID] = c.BankTxnID
			}
		}
		if !c.State.Valid() {
			c.State = Unmatched
		}
		s.entries[c.BankTxnID] = c
	}
	return s
}

// ManualLink pins a bank transaction to a payment regardless of amount or
// date. It fails with ErrConflict when either side is already matched.
func (s *Store) ManualLink(bankTxnID, paymentID string) error {
	entry, ok := s.entries[bankTxnID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, bankTxnID)
	}
	p, ok := s.payments[paymentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPayment, paymentID)
	}
	if entry.State.IsMatched() {
		return fmt.Errorf("%w: bank transaction %s holds payment %s", ErrConflict, bankTxnID, entry.PaymentID)
	}
	if holder, claimed := s.OwnerOf(paymentID); claimed {
		return fmt.Errorf("%w: payment %s is held by bank transaction %s", ErrConflict, paymentID, holder)
	}

	days := 0
	if b := s.bank[bankTxnID]; !b.Date.IsZero() && !p.Date.IsZero() {
		days = core.DaysBetween(b.Date, p.Date)
	}
	s.entries[bankTxnID] = MatchCandidate{
		BankTxnID:  bankTxnID,
		PaymentID:  paymentID,
		Confidence: 1,
		DaysApart:  days,
		State:      ManuallyMatched,
	}
	s.owner[paymentID] = bankTxnID
	return nil
}

// ManualUnlink releases a matched or conflicting transaction and keeps it
// out of future automatic proposals. Unlinking an unmatched transaction is
// a no-op.
func (s *Store) ManualUnlink(bankTxnID string) error {
	entry, ok := s.entries[bankTxnID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, bankTxnID)
	}
	switch entry.State {
	case Unmatched, ManuallyUnmatched:
		return nil
	}
	if entry.State.IsMatched() {
		delete(s.owner, entry.PaymentID)
	}
	s.entries[bankTxnID] = MatchCandidate{BankTxnID: bankTxnID, State: ManuallyUnmatched}
	return nil
}

// Refresh re-runs Propose over every transaction and payment not pinned by
// a manual decision. Manual links and unlinks survive unchanged; bank
// transactions no longer present are dropped.
func (s *Store) Refresh(bankTxns []BankTransaction, payments []PaymentRecord, cfg Config) {
	pinned := make(map[string]MatchCandidate)
	held := make(map[string]bool)
	for id, e := range s.entries {
		if e.State.IsManual() {
			pinned[id] = e
			if e.State == ManuallyMatched {
				held[e.PaymentID] = true
			}
		}
	}

	var freeBank []BankTransaction
	for _, b := range bankTxns {
		if _, ok := pinned[b.ID]; !ok {
			freeBank = append(freeBank, b)
		}
	}
	var freePayments []PaymentRecord
	for _, p := range payments {
		if !held[p.ID] {
			freePayments = append(freePayments, p)
		}
	}

	proposed := Propose(freeBank, freePayments, cfg)
	candidates := make([]MatchCandidate, 0, len(pinned)+len(proposed))
	for _, c := range pinned {
		candidates = append(candidates, c)
	}
	candidates = append(candidates, proposed...)

	*s = *NewStore(bankTxns, payments, candidates)
}

// Get returns the candidate of one bank transaction.
func (s *Store) Get(bankTxnID string) (MatchCandidate, bool) {
	c, ok := s.entries[bankTxnID]
	return c, ok
}

// Candidates returns every entry in bank transaction order.
func (s *Store) Candidates() []MatchCandidate {
	out := make([]MatchCandidate, 0, len(s.order))
	for _, id := range s.order {
		c := s.entries[id]
		c.Alternatives = append([]string(nil), c.Alternatives...)
		out = append(out, c)
	}
	return out
}

// Payments returns the known payments ordered by id.
func (s *Store) Payments() []PaymentRecord {
	out := make([]PaymentRecord, 0, len(s.payments))
	for _, p := range s.payments {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OwnerOf returns the bank transaction holding a payment.
func (s *Store) OwnerOf(paymentID string) (string, bool) {
	id, ok := s.owner[paymentID]
	return id, ok
}

// Counts tallies entries per state.
type Counts map[MatchState]int

func (s *Store) Counts() Counts {
	out := Counts{}
	for _, e := range s.entries {
		out[e.State]++
	}
	return out
}
