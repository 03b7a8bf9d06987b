package core

import (
	"errors"
	"strings"
)

const (
	KindPayment RecordKind = "payment"
	KindExpense RecordKind = "expense"
	KindInvoice RecordKind = "invoice"
	KindBooking RecordKind = "booking"
)

const (
	StatusPending   PaymentStatus = "pending"
	StatusCompleted PaymentStatus = "completed"
	StatusFailed    PaymentStatus = "failed"
	StatusRefunded  PaymentStatus = "refunded"
)

// UnassignedKey groups records whose dimension attribute is empty.
const UnassignedKey = "Unassigned"

type (
	RecordKind    string
	PaymentStatus string

	// Payment is a student payment as stored by the entity service.
	// Amount and Date stay raw until adapted.
	Payment struct {
		ID          string        `json:"id"`
		StudentID   string        `json:"student_id"`
		StudentName string        `json:"student_name,omitempty"`
		Method      string        `json:"method,omitempty"`
		Description string        `json:"description,omitempty"`
		Amount      string        `json:"amount"`
		Date        string        `json:"date"`
		Status      PaymentStatus `json:"status"`
	}

	Expense struct {
		ID          string `json:"id"`
		Category    string `json:"category"`
		Vendor      string `json:"vendor,omitempty"`
		Description string `json:"description,omitempty"`
		Amount      string `json:"amount"`
		Date        string `json:"date"`
		// Status is optional; empty means the expense was paid.
		Status PaymentStatus `json:"status,omitempty"`
	}

	Invoice struct {
		ID          string `json:"id"`
		Number      string `json:"number,omitempty"`
		StudentID   string `json:"student_id"`
		StudentName string `json:"student_name,omitempty"`
		Amount      string `json:"amount"`
		IssueDate   string `json:"issue_date"`
		DueDate     string `json:"due_date,omitempty"`
		// Status is one of draft, sent, paid, overdue, cancelled.
		Status string `json:"status"`
	}

	Booking struct {
		ID             string `json:"id"`
		StudentID      string `json:"student_id"`
		StudentName    string `json:"student_name,omitempty"`
		InstructorID   string `json:"instructor_id,omitempty"`
		InstructorName string `json:"instructor_name,omitempty"`
		LessonType     string `json:"lesson_type,omitempty"`
		Price          string `json:"price"`
		Date           string `json:"date"`
		// Status is one of scheduled, confirmed, completed, cancelled, no_show.
		Status string `json:"status"`
	}
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidDate    = errors.New("invalid date")
	ErrInvalidRange   = errors.New("invalid date range: start is after end")
	ErrMissingSchool  = errors.New("missing school id")
	ErrUnknownKind    = errors.New("unknown record kind")
	ErrEmptyID        = errors.New("empty record id")
	ErrDuplicateID    = errors.New("duplicate record id")
	ErrInvalidStatus  = errors.New("invalid status")
	ErrEmptyStudentID = errors.New("empty student id")
)

// Kinds lists every record kind in a stable order.
func Kinds() []RecordKind {
	return []RecordKind{KindPayment, KindExpense, KindInvoice, KindBooking}
}

// ParseRecordKind accepts singular and plural forms ("payments").
func ParseRecordKind(s string) (RecordKind, error) {
	k := RecordKind(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s"))
	switch k {
	case KindPayment, KindExpense, KindInvoice, KindBooking:
		return k, nil
	default:
		return "", ErrUnknownKind
	}
}

// ParsePaymentStatus normalizes a status label. Unknown labels are rejected.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	st := PaymentStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusCompleted, StatusFailed, StatusRefunded:
		return st, nil
	case "paid", "succeeded", "success":
		return StatusCompleted, nil
	default:
		return "", ErrInvalidStatus
	}
}

func (p Payment) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(p.StudentID) == "" {
		return ErrEmptyStudentID
	}
	if _, err := ParsePaymentStatus(string(p.Status)); err != nil {
		return err
	}
	return nil
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return ErrEmptyID
	}
	if e.Status != "" {
		if _, err := ParsePaymentStatus(string(e.Status)); err != nil {
			return err
		}
	}
	return nil
}

func (i Invoice) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return ErrEmptyID
	}
	return nil
}

func (b Booking) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return ErrEmptyID
	}
	return nil
}
