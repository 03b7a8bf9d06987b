package core

import (
	"errors"
	"testing"
)

func TestPaymentRecords(t *testing.T) {
	payments := []Payment{
		{ID: "p1", StudentID: "s1", StudentName: "Ada", Amount: "45,00", Date: "2024-01-10", Status: StatusCompleted},
		{ID: "p2", StudentID: "s2", Amount: "n/a", Date: "2024-01-10", Status: StatusCompleted},
		{ID: "p3", StudentID: "s3", Amount: "10", Date: "someday", Status: StatusPending},
		{ID: "p4", StudentID: "s4", Amount: "10", Date: "2024-01-11", Status: "weird"},
		{ID: "p5", StudentID: "", Amount: "5", Date: "2024-01-12", Status: "paid"},
	}
	recs := PaymentRecords(payments, DimStudent)
	if len(recs) != len(payments) {
		t.Fatalf("expected %d records, got %d", len(payments), len(recs))
	}

	if recs[0].Malformed || recs[0].DimensionKey != "Ada" || !recs[0].Amount.Equal(MustParseMoney("45")) {
		t.Errorf("unexpected first record: %+v", recs[0])
	}
	for _, i := range []int{1, 2, 3} {
		if !recs[i].Malformed {
			t.Errorf("record %s should be malformed", recs[i].ID)
		}
	}
	if recs[4].Status != StatusCompleted || recs[4].DimensionKey != UnassignedKey {
		t.Errorf("unexpected last record: %+v", recs[4])
	}
}

func TestExpenseRecordsDimensions(t *testing.T) {
	expenses := []Expense{
		{ID: "e1", Category: "Fuel", Vendor: "Shell", Amount: "100", Date: "2024-01-05"},
		{ID: "e2", Category: "", Vendor: "Allianz", Amount: "200", Date: "2024-01-06", Status: StatusPending},
	}
	byCat := ExpenseRecords(expenses, DimCategory)
	if byCat[0].DimensionKey != "Fuel" || byCat[1].DimensionKey != UnassignedKey {
		t.Errorf("unexpected category keys: %q %q", byCat[0].DimensionKey, byCat[1].DimensionKey)
	}
	if byCat[0].Status != StatusCompleted || byCat[1].Status != StatusPending {
		t.Errorf("unexpected statuses: %s %s", byCat[0].Status, byCat[1].Status)
	}
	byVendor := ExpenseRecords(expenses, DimVendor)
	if byVendor[1].DimensionKey != "Allianz" {
		t.Errorf("unexpected vendor key %q", byVendor[1].DimensionKey)
	}
}

func TestInvoiceAndBookingStatusMapping(t *testing.T) {
	inv := InvoiceRecords([]Invoice{
		{ID: "i1", StudentID: "s1", Amount: "100", IssueDate: "2024-01-01", Status: "paid"},
		{ID: "i2", StudentID: "s1", Amount: "100", IssueDate: "2024-01-01", Status: "overdue"},
		{ID: "i3", StudentID: "s1", Amount: "100", IssueDate: "2024-01-01", Status: "cancelled"},
	}, DimStudent)
	want := []PaymentStatus{StatusCompleted, StatusPending, StatusFailed}
	for i, rec := range inv {
		if rec.Status != want[i] {
			t.Errorf("invoice %s status = %s, want %s", rec.ID, rec.Status, want[i])
		}
	}

	bk := BookingRecords([]Booking{
		{ID: "b1", InstructorName: "Marco", Price: "40", Date: "2024-01-01", Status: "completed"},
		{ID: "b2", InstructorID: "ins-2", Price: "40", Date: "2024-01-01", Status: "no_show"},
	}, DimInstructor)
	if bk[0].Status != StatusCompleted || bk[0].DimensionKey != "Marco" {
		t.Errorf("unexpected booking %+v", bk[0])
	}
	if bk[1].Status != StatusFailed || bk[1].DimensionKey != "ins-2" {
		t.Errorf("unexpected booking %+v", bk[1])
	}
}

func TestRecordSetValidate(t *testing.T) {
	ok := RecordSet{
		Payments: []Payment{{ID: "p1", StudentID: "s1", Status: StatusCompleted}},
		Expenses: []Expense{{ID: "p1"}},
	}
	if err := ok.Validate(); err != nil {
		t.Fatalf("same id across kinds should be allowed: %v", err)
	}

	dup := RecordSet{Expenses: []Expense{{ID: "e1"}, {ID: "e1"}}}
	err := dup.Validate()
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	var recErr *RecordError
	if !errors.As(err, &recErr) || recErr.Kind != KindExpense || recErr.ID != "e1" {
		t.Fatalf("expected RecordError naming expense e1, got %v", err)
	}

	bad := RecordSet{Payments: []Payment{{ID: "p1", StudentID: "s1", Status: "lost"}}}
	if !errors.Is(bad.Validate(), ErrInvalidStatus) {
		t.Fatal("expected ErrInvalidStatus")
	}
}

func TestParseRecordKind(t *testing.T) {
	for in, want := range map[string]RecordKind{
		"payments": KindPayment,
		"Expense":  KindExpense,
		"invoices": KindInvoice,
		"booking":  KindBooking,
	} {
		got, err := ParseRecordKind(in)
		if err != nil || got != want {
			t.Errorf("ParseRecordKind(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseRecordKind("refunds"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}
