package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"schoolfin/internal/amqp"
	"schoolfin/internal/core"
	"schoolfin/internal/ingest"
	"schoolfin/internal/reconcile"
)

// ReconciliationService persists bank statements and match states. Calls
// for the same school are serialized; storage versions catch writers in
// other processes.
type ReconciliationService struct {
	store  Store
	events EventPublisher
	cfg    reconcile.Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewReconciliationService(store Store, events EventPublisher, cfg reconcile.Config) *ReconciliationService {
	return &ReconciliationService{
		store:  store,
		events: events,
		cfg:    cfg,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Config returns the matcher settings used when a call does not override them.
func (s *ReconciliationService) Config() reconcile.Config { return s.cfg }

// ImportResult reports one statement upload.
type ImportResult struct {
	Parsed   int                  `json:"parsed"`
	Inserted int                  `json:"inserted"`
	Skipped  []ingest.SkippedLine `json:"skipped"`
	Digest   string               `json:"digest"`
}

// View is the reconciliation of one school.
type View struct {
	Version           int64                      `json:"version"`
	Candidates        []reconcile.MatchCandidate `json:"candidates"`
	Counts            reconcile.Counts           `json:"counts"`
	UnmatchedPayments []reconcile.PaymentRecord  `json:"unmatched_payments"`
}

// ImportStatement parses a bank statement and stores its lines. Lines
// already imported are ignored; new lines start unmatched.
func (s *ReconciliationService) ImportStatement(ctx context.Context, schoolID string, data []byte, format ingest.Format) (ImportResult, error) {
	if strings.TrimSpace(schoolID) == "" {
		return ImportResult{}, core.ErrMissingSchool
	}
	parsed, err := ingest.Parse(data, format, ingest.Options{Namespace: schoolID})
	if err != nil {
		return ImportResult{}, fmt.Errorf("parse statement: %w", err)
	}

	unlock := s.lock(schoolID)
	defer unlock()

	inserted, err := s.store.SaveBankTransactions(ctx, schoolID, parsed.Transactions)
	if err != nil {
		return ImportResult{}, fmt.Errorf("save bank transactions: %w", err)
	}

	res := ImportResult{
		Parsed:   len(parsed.Transactions),
		Inserted: inserted,
		Skipped:  parsed.Skipped,
		Digest:   parsed.Digest,
	}
	slog.InfoContext(ctx, "Bank statement imported",
		"component", "ingest",
		"school_id", schoolID,
		"parsed", res.Parsed,
		"inserted", res.Inserted,
		"skipped", len(res.Skipped),
		"digest", res.Digest)

	if inserted > 0 {
		ev := amqp.NewMatchEvent(schoolID, amqp.EventStatementImported, 0)
		ev.Counts = map[string]int{"inserted": inserted, "skipped": len(res.Skipped)}
		s.publish(ctx, ev)
	}
	return res, nil
}

// View returns the stored reconciliation without re-running the matcher.
func (s *ReconciliationService) View(ctx context.Context, schoolID string) (View, error) {
	if strings.TrimSpace(schoolID) == "" {
		return View{}, core.ErrMissingSchool
	}
	unlock := s.lock(schoolID)
	defer unlock()

	st, version, err := s.load(ctx, schoolID)
	if err != nil {
		return View{}, err
	}
	return viewOf(st, version), nil
}

// Propose re-runs the matcher over everything not pinned by a manual
// decision and persists the result. A non-nil toleranceDays overrides the
// configured date tolerance for this run.
func (s *ReconciliationService) Propose(ctx context.Context, schoolID string, toleranceDays *int) (View, error) {
	if strings.TrimSpace(schoolID) == "" {
		return View{}, core.ErrMissingSchool
	}
	cfg := s.cfg
	if toleranceDays != nil {
		cfg.DateToleranceDays = *toleranceDays
	}

	unlock := s.lock(schoolID)
	defer unlock()

	st, version, bank, payments, err := s.loadAll(ctx, schoolID)
	if err != nil {
		return View{}, err
	}
	st.Refresh(bank, payments, cfg)

	version, err = s.store.SaveMatches(ctx, schoolID, version, st.Candidates())
	if err != nil {
		return View{}, fmt.Errorf("save matches: %w", err)
	}

	view := viewOf(st, version)
	slog.InfoContext(ctx, "Matches proposed",
		"component", "reconcile",
		"school_id", schoolID,
		"tolerance_days", cfg.DateToleranceDays,
		"version", version,
		"auto_matched", view.Counts[reconcile.AutoMatched],
		"conflicting", view.Counts[reconcile.Conflicting],
		"unmatched", view.Counts[reconcile.Unmatched])

	ev := amqp.NewMatchEvent(schoolID, amqp.EventMatchesProposed, version)
	ev.Counts = countsByName(view.Counts)
	s.publish(ctx, ev)
	return view, nil
}

// Link pins a bank transaction to a payment.
func (s *ReconciliationService) Link(ctx context.Context, schoolID, bankTxnID, paymentID string) (reconcile.MatchCandidate, error) {
	return s.mutate(ctx, schoolID, bankTxnID, amqp.EventManualLink, func(st *reconcile.Store) (string, error) {
		return paymentID, st.ManualLink(bankTxnID, paymentID)
	})
}

// Unlink releases a bank transaction and keeps it out of future proposals.
func (s *ReconciliationService) Unlink(ctx context.Context, schoolID, bankTxnID string) (reconcile.MatchCandidate, error) {
	return s.mutate(ctx, schoolID, bankTxnID, amqp.EventManualUnlink, func(st *reconcile.Store) (string, error) {
		prev, _ := st.Get(bankTxnID)
		return prev.PaymentID, st.ManualUnlink(bankTxnID)
	})
}

func (s *ReconciliationService) mutate(ctx context.Context, schoolID, bankTxnID, eventType string, apply func(*reconcile.Store) (string, error)) (reconcile.MatchCandidate, error) {
	if strings.TrimSpace(schoolID) == "" {
		return reconcile.MatchCandidate{}, core.ErrMissingSchool
	}
	unlock := s.lock(schoolID)
	defer unlock()

	st, version, err := s.load(ctx, schoolID)
	if err != nil {
		return reconcile.MatchCandidate{}, err
	}
	paymentID, err := apply(st)
	if err != nil {
		return reconcile.MatchCandidate{}, err
	}
	version, err = s.store.SaveMatches(ctx, schoolID, version, st.Candidates())
	if err != nil {
		return reconcile.MatchCandidate{}, fmt.Errorf("save matches: %w", err)
	}

	c, _ := st.Get(bankTxnID)
	slog.InfoContext(ctx, "Manual reconciliation change",
		"component", "reconcile",
		"school_id", schoolID,
		"event", eventType,
		"bank_txn_id", bankTxnID,
		"payment_id", paymentID,
		"state", c.State,
		"version", version)

	ev := amqp.NewMatchEvent(schoolID, eventType, version)
	ev.BankTxnID, ev.PaymentID = bankTxnID, paymentID
	s.publish(ctx, ev)
	return c, nil
}

func (s *ReconciliationService) load(ctx context.Context, schoolID string) (*reconcile.Store, int64, error) {
	st, version, _, _, err := s.loadAll(ctx, schoolID)
	return st, version, err
}

// loadAll reads bank lines, payments and saved states concurrently.
func (s *ReconciliationService) loadAll(ctx context.Context, schoolID string) (*reconcile.Store, int64, []reconcile.BankTransaction, []reconcile.PaymentRecord, error) {
	var (
		bank     []reconcile.BankTransaction
		payments []reconcile.PaymentRecord
		snapshot struct {
			version    int64
			candidates []reconcile.MatchCandidate
		}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if bank, err = s.store.ListBankTransactions(gctx, schoolID); err != nil {
			return fmt.Errorf("list bank transactions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		set, err := s.store.LoadRecords(gctx, schoolID, core.KindPayment)
		if err != nil {
			return fmt.Errorf("load payments: %w", err)
		}
		payments = reconcile.PaymentRecords(set.Payments)
		return nil
	})
	g.Go(func() error {
		snap, err := s.store.LoadMatches(gctx, schoolID)
		if err != nil {
			return fmt.Errorf("load matches: %w", err)
		}
		snapshot.version, snapshot.candidates = snap.Version, snap.Candidates
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, nil, nil, err
	}
	return reconcile.NewStore(bank, payments, snapshot.candidates), snapshot.version, bank, payments, nil
}

func (s *ReconciliationService) lock(schoolID string) func() {
	s.mu.Lock()
	l, ok := s.locks[schoolID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[schoolID] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (s *ReconciliationService) publish(ctx context.Context, ev *amqp.MatchEvent) {
	if s.events == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping match event", "type", ev.Type)
		return
	}
	if err := s.events.PublishMatchEvent(ctx, ev); err != nil {
		// The state is already saved; the event is best effort.
		slog.ErrorContext(ctx, "Failed to publish match event",
			"school_id", ev.SchoolID,
			"type", ev.Type,
			"error", err)
	}
}

func viewOf(st *reconcile.Store, version int64) View {
	candidates := st.Candidates()
	unmatched := reconcile.UnmatchedPayments(candidates, st.Payments())
	if unmatched == nil {
		unmatched = []reconcile.PaymentRecord{}
	}
	return View{
		Version:           version,
		Candidates:        candidates,
		Counts:            st.Counts(),
		UnmatchedPayments: unmatched,
	}
}

func countsByName(c reconcile.Counts) map[string]int {
	out := make(map[string]int, len(c))
	for state, n := range c {
		out[string(state)] = n
	}
	return out
}
