package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"schoolfin/internal/core"
	"schoolfin/internal/reconcile"
)

// MemoryRepository keeps everything in process memory. It backs the memory
// data backend and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]map[core.RecordKind]map[string][]byte
	bank    map[string][]reconcile.BankTransaction
	matches map[string]MatchSnapshot
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]map[core.RecordKind]map[string][]byte),
		bank:    make(map[string][]reconcile.BankTransaction),
		matches: make(map[string]MatchSnapshot),
	}
}

func (m *MemoryRepository) Ping(context.Context) error { return nil }

func (m *MemoryRepository) Close() error { return nil }

func (m *MemoryRepository) UpsertRecords(_ context.Context, schoolID string, set core.RecordSet) (int, error) {
	rows, err := flatten(set)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	byKind, ok := m.records[schoolID]
	if !ok {
		byKind = make(map[core.RecordKind]map[string][]byte)
		m.records[schoolID] = byKind
	}
	for _, rec := range rows {
		if byKind[rec.kind] == nil {
			byKind[rec.kind] = make(map[string][]byte)
		}
		byKind[rec.kind][rec.id] = rec.payload
	}
	return len(rows), nil
}

func (m *MemoryRepository) LoadRecords(_ context.Context, schoolID string, kind core.RecordKind) (core.RecordSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var set core.RecordSet
	stored := m.records[schoolID][kind]
	ids := make([]string, 0, len(stored))
	for id := range stored {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := appendRecord(&set, kind, stored[id]); err != nil {
			return set, err
		}
	}
	return set, nil
}

func (m *MemoryRepository) SaveBankTransactions(_ context.Context, schoolID string, txns []reconcile.BankTransaction) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.bank[schoolID]
	known := make(map[string]bool, len(existing))
	for _, t := range existing {
		known[t.ID] = true
	}
	inserted := 0
	for _, t := range txns {
		if known[t.ID] {
			continue
		}
		known[t.ID] = true
		existing = append(existing, t)
		inserted++
	}
	m.bank[schoolID] = existing
	return inserted, nil
}

func (m *MemoryRepository) ListBankTransactions(_ context.Context, schoolID string) ([]reconcile.BankTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]reconcile.BankTransaction(nil), m.bank[schoolID]...), nil
}

func (m *MemoryRepository) LoadMatches(_ context.Context, schoolID string) (MatchSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := m.matches[schoolID]
	return MatchSnapshot{Version: snap.Version, Candidates: cloneCandidates(snap.Candidates)}, nil
}

func (m *MemoryRepository) SaveMatches(_ context.Context, schoolID string, expected int64, candidates []reconcile.MatchCandidate) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.matches[schoolID].Version
	if current != expected {
		return 0, fmt.Errorf("%w: school %s expected version %d, stored %d", ErrVersionConflict, schoolID, expected, current)
	}
	m.matches[schoolID] = MatchSnapshot{Version: current + 1, Candidates: cloneCandidates(candidates)}
	return current + 1, nil
}

func cloneCandidates(in []reconcile.MatchCandidate) []reconcile.MatchCandidate {
	if in == nil {
		return nil
	}
	out := make([]reconcile.MatchCandidate, len(in))
	for i, c := range in {
		c.Alternatives = append([]string(nil), c.Alternatives...)
		out[i] = c
	}
	return out
}
