package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Store keeps written tables in memory. It stands in for a spreadsheet when
// none is configured and in tests.
type Store struct {
	mu     sync.Mutex
	tables map[string][][]string
	writes int
}

func New() *Store {
	return &Store{tables: make(map[string][][]string)}
}

// WriteTable replaces the tab content and returns a synthetic reference.
func (s *Store) WriteTable(_ context.Context, tab string, rows [][]string) (string, error) {
	if tab == "" {
		return "", errors.New("empty tab name")
	}
	cp := make([][]string, len(rows))
	for i, r := range rows {
		cp[i] = append([]string(nil), r...)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[tab] = cp
	s.writes++
	return fmt.Sprintf("mem:%s!%d", tab, s.writes), nil
}

// Table returns a copy of a written tab.
func (s *Store) Table(tab string) ([][]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[tab]
	if !ok {
		return nil, false
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out, true
}

// Tabs lists written tab names in order.
func (s *Store) Tabs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tables))
	for k := range s.tables {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
