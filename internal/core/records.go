package core

import "strings"

// Dimension selects which attribute of a source record becomes the
// grouping key of its FinancialRecord.
type Dimension string

const (
	DimNone       Dimension = ""
	DimCategory   Dimension = "category"
	DimVendor     Dimension = "vendor"
	DimStudent    Dimension = "student"
	DimInstructor Dimension = "instructor"
	DimMethod     Dimension = "method"
	DimLessonType Dimension = "lesson_type"
)

// FinancialRecord is the normalized input of every aggregation.
// Malformed is set when the source amount or date did not parse.
type FinancialRecord struct {
	ID           string
	Kind         RecordKind
	Amount       Money
	OccurredAt   Date
	DimensionKey string
	Status       PaymentStatus
	Malformed    bool
}

// RecordSet carries raw records of every kind for one school.
type RecordSet struct {
	Payments []Payment `json:"payments,omitempty"`
	Expenses []Expense `json:"expenses,omitempty"`
	Invoices []Invoice `json:"invoices,omitempty"`
	Bookings []Booking `json:"bookings,omitempty"`
}

// Len returns the number of records across all kinds.
func (s RecordSet) Len() int {
	return len(s.Payments) + len(s.Expenses) + len(s.Invoices) + len(s.Bookings)
}

// Merge appends other's records to s.
func (s RecordSet) Merge(other RecordSet) RecordSet {
	s.Payments = append(s.Payments, other.Payments...)
	s.Expenses = append(s.Expenses, other.Expenses...)
	s.Invoices = append(s.Invoices, other.Invoices...)
	s.Bookings = append(s.Bookings, other.Bookings...)
	return s
}

// Validate checks every record and rejects duplicate ids within a kind.
func (s RecordSet) Validate() error {
	seen := make(map[string]struct{}, s.Len())
	check := func(kind RecordKind, id string, err error) error {
		if err != nil {
			return recordError(kind, id, err)
		}
		key := string(kind) + "/" + id
		if _, dup := seen[key]; dup {
			return recordError(kind, id, ErrDuplicateID)
		}
		seen[key] = struct{}{}
		return nil
	}
	for _, p := range s.Payments {
		if err := check(KindPayment, p.ID, p.Validate()); err != nil {
			return err
		}
	}
	for _, e := range s.Expenses {
		if err := check(KindExpense, e.ID, e.Validate()); err != nil {
			return err
		}
	}
	for _, i := range s.Invoices {
		if err := check(KindInvoice, i.ID, i.Validate()); err != nil {
			return err
		}
	}
	for _, b := range s.Bookings {
		if err := check(KindBooking, b.ID, b.Validate()); err != nil {
			return err
		}
	}
	return nil
}

// RecordError names the offending record.
type RecordError struct {
	Kind RecordKind
	ID   string
	Err  error
}

func (e *RecordError) Error() string {
	return string(e.Kind) + " " + e.ID + ": " + e.Err.Error()
}

func (e *RecordError) Unwrap() error { return e.Err }

func recordError(kind RecordKind, id string, err error) error {
	return &RecordError{Kind: kind, ID: id, Err: err}
}

// Records adapts every kind in the set, using dims to pick each kind's
// grouping dimension. Kinds missing from dims use DimNone.
func (s RecordSet) Records(dims map[RecordKind]Dimension) []FinancialRecord {
	out := make([]FinancialRecord, 0, s.Len())
	out = append(out, PaymentRecords(s.Payments, dims[KindPayment])...)
	out = append(out, ExpenseRecords(s.Expenses, dims[KindExpense])...)
	out = append(out, InvoiceRecords(s.Invoices, dims[KindInvoice])...)
	out = append(out, BookingRecords(s.Bookings, dims[KindBooking])...)
	return out
}

func PaymentRecords(ps []Payment, dim Dimension) []FinancialRecord {
	out := make([]FinancialRecord, 0, len(ps))
	for _, p := range ps {
		status, err := ParsePaymentStatus(string(p.Status))
		rec := newRecord(p.ID, KindPayment, p.Amount, p.Date)
		rec.Status = status
		rec.Malformed = rec.Malformed || err != nil
		switch dim {
		case DimStudent:
			rec.DimensionKey = firstNonEmpty(p.StudentName, p.StudentID)
		case DimMethod:
			rec.DimensionKey = firstNonEmpty(p.Method)
		}
		out = append(out, rec)
	}
	return out
}

func ExpenseRecords(es []Expense, dim Dimension) []FinancialRecord {
	out := make([]FinancialRecord, 0, len(es))
	for _, e := range es {
		rec := newRecord(e.ID, KindExpense, e.Amount, e.Date)
		rec.Status = StatusCompleted
		if e.Status != "" {
			status, err := ParsePaymentStatus(string(e.Status))
			rec.Status = status
			rec.Malformed = rec.Malformed || err != nil
		}
		switch dim {
		case DimCategory:
			rec.DimensionKey = firstNonEmpty(e.Category)
		case DimVendor:
			rec.DimensionKey = firstNonEmpty(e.Vendor)
		}
		out = append(out, rec)
	}
	return out
}

// InvoiceRecords dates invoices by issue date. Paid invoices count as
// completed, cancelled ones as failed and everything else as pending.
func InvoiceRecords(is []Invoice, dim Dimension) []FinancialRecord {
	out := make([]FinancialRecord, 0, len(is))
	for _, i := range is {
		rec := newRecord(i.ID, KindInvoice, i.Amount, i.IssueDate)
		switch strings.ToLower(strings.TrimSpace(i.Status)) {
		case "paid":
			rec.Status = StatusCompleted
		case "cancelled", "canceled", "void":
			rec.Status = StatusFailed
		default:
			rec.Status = StatusPending
		}
		if dim == DimStudent {
			rec.DimensionKey = firstNonEmpty(i.StudentName, i.StudentID)
		}
		out = append(out, rec)
	}
	return out
}

// BookingRecords values each lesson at its price.
func BookingRecords(bs []Booking, dim Dimension) []FinancialRecord {
	out := make([]FinancialRecord, 0, len(bs))
	for _, b := range bs {
		rec := newRecord(b.ID, KindBooking, b.Price, b.Date)
		switch strings.ToLower(strings.TrimSpace(b.Status)) {
		case "completed":
			rec.Status = StatusCompleted
		case "cancelled", "canceled", "no_show":
			rec.Status = StatusFailed
		default:
			rec.Status = StatusPending
		}
		switch dim {
		case DimStudent:
			rec.DimensionKey = firstNonEmpty(b.StudentName, b.StudentID)
		case DimInstructor:
			rec.DimensionKey = firstNonEmpty(b.InstructorName, b.InstructorID)
		case DimLessonType:
			rec.DimensionKey = firstNonEmpty(b.LessonType)
		}
		out = append(out, rec)
	}
	return out
}

func newRecord(id string, kind RecordKind, amount, date string) FinancialRecord {
	rec := FinancialRecord{ID: id, Kind: kind}
	m, amtErr := ParseMoney(amount)
	d, dateErr := ParseDate(date)
	rec.Amount = m
	rec.OccurredAt = d
	rec.Malformed = amtErr != nil || dateErr != nil
	return rec
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return UnassignedKey
}
