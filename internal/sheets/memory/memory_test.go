package memory

import (
	"context"
	"testing"
)

func TestStoreWriteAndRead(t *testing.T) {
	s := New()
	rows := [][]string{{"category", "total"}, {"Fuel", "150.00"}}

	ref, err := s.WriteTable(context.Background(), "s1 expenses", rows)
	if err != nil || ref != "mem:s1 expenses!1" {
		t.Fatalf("unexpected write: ref=%q err=%v", ref, err)
	}

	// Mutating the input must not leak into the store.
	rows[1][0] = "changed"
	got, ok := s.Table("s1 expenses")
	if !ok || got[1][0] != "Fuel" {
		t.Fatalf("unexpected table: %v", got)
	}

	if _, err := s.WriteTable(context.Background(), "s1 expenses", [][]string{{"only"}}); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Table("s1 expenses")
	if len(got) != 1 {
		t.Fatalf("write should replace the tab, got %v", got)
	}
	if tabs := s.Tabs(); len(tabs) != 1 {
		t.Fatalf("unexpected tabs: %v", tabs)
	}
}

func TestStoreRejectsEmptyTab(t *testing.T) {
	if _, err := New().WriteTable(context.Background(), "", nil); err == nil {
		t.Fatal("expected error for empty tab name")
	}
	if _, ok := New().Table("missing"); ok {
		t.Fatal("missing tab should not be found")
	}
}
