package core

import (
	"strconv"
	"strings"
	"time"
)

const isoDate = "2006-01-02"

// Date is a calendar date at midnight UTC.
type Date struct {
	time.Time
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

var dateLayouts = []string{
	isoDate,
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"2006/01/02",
	"02.01.2006",
	"02-01-2006",
}

// ParseDate accepts ISO dates, timestamps and the day-first layouts found
// in European bank exports.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrInvalidDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, ErrInvalidDate
}

// String returns the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(isoDate)
}

// AddDays returns the date n days later (or earlier when n < 0).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// Before reports whether d is strictly before o.
func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }

// After reports whether d is strictly after o.
func (d Date) After(o Date) bool { return d.Time.After(o.Time) }

// Equal reports whether both dates are the same day.
func (d Date) Equal(o Date) bool { return d.Time.Equal(o.Time) }

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(d.String())), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		*d = Date{}
		return nil
	}
	unq, err := strconv.Unquote(s)
	if err != nil {
		return ErrInvalidDate
	}
	v, err := ParseDate(unq)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// DaysBetween returns the absolute number of calendar days between a and b.
func DaysBetween(a, b Date) int {
	n := int(b.Time.Sub(a.Time) / (24 * time.Hour))
	if n < 0 {
		return -n
	}
	return n
}

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// NewDateRange builds a range without validating it.
func NewDateRange(start, end Date) DateRange {
	return DateRange{Start: start, End: end}
}

// Validate returns ErrInvalidRange when Start is after End or either bound
// is missing.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return ErrInvalidRange
	}
	if r.Start.After(r.End) {
		return ErrInvalidRange
	}
	return nil
}

// Contains reports whether d falls inside the range, bounds included.
func (r DateRange) Contains(d Date) bool {
	if d.IsZero() {
		return false
	}
	return !d.Before(r.Start) && !d.After(r.End)
}

func (r DateRange) String() string {
	return r.Start.String() + ".." + r.End.String()
}

// LastNDays is the n-day window ending on today.
func LastNDays(today Date, n int) DateRange {
	if n < 1 {
		n = 1
	}
	return DateRange{Start: today.AddDays(-(n - 1)), End: today}
}

// MonthToDate runs from the first of today's month to today.
func MonthToDate(today Date) DateRange {
	return DateRange{Start: NewDate(today.Year(), int(today.Month()), 1), End: today}
}

// YearToDate runs from January 1st of today's year to today.
func YearToDate(today Date) DateRange {
	return DateRange{Start: NewDate(today.Year(), 1, 1), End: today}
}
