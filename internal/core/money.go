// Package core provides money parsing and handling utilities.
//
// This file contains the exact-decimal Money type and the parsing and
// formatting helpers used by every report and by statement import.
package core

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an exact decimal amount. Arithmetic never goes through float64.
type Money struct {
	d decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{}

// NewMoney wraps a decimal value.
func NewMoney(d decimal.Decimal) Money { return Money{d: d} }

// ParseMoney parses an amount as delivered by the entity store or a bank
// statement.
//
// It accepts dot (12.34) and comma (12,34) decimal separators, thousands
// grouping (1.234,56 or 1,234.56), a leading sign, accounting parentheses
// and common currency markers. Returns ErrInvalidAmount when nothing
// numeric remains.
//
// Examples:
//
//	ParseMoney("12,34")     -> 12.34
//	ParseMoney("€ 1.234,56") -> 1234.56
//	ParseMoney("(45.00)")   -> -45
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	s = stripCurrency(s)
	switch {
	case strings.HasPrefix(s, "-"):
		neg = !neg
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	s = stripCurrency(s)
	if s == "" {
		return Zero, ErrInvalidAmount
	}

	s = normalizeSeparators(s)
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return Zero, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, ErrInvalidAmount
	}
	if neg {
		d = d.Neg()
	}
	return Money{d: d}, nil
}

// MustParseMoney is ParseMoney for literals known to be valid.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic("core: invalid money literal " + strconv.Quote(s))
	}
	return m
}

func stripCurrency(s string) string {
	for _, marker := range []string{"€", "$", "£", "EUR", "USD", "GBP", "\u00a0"} {
		s = strings.ReplaceAll(s, marker, "")
	}
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "'", "")
	return strings.TrimSpace(s)
}

// normalizeSeparators rewrites grouping and decimal separators so that only
// a single dot remains as the decimal point.
func normalizeSeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		// Whichever comes last is the decimal separator.
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(s, ",", ".", 1)
	case lastDot >= 0 && strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}

func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }

func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }

func (m Money) Neg() Money { return Money{d: m.d.Neg()} }

func (m Money) Abs() Money { return Money{d: m.d.Abs()} }

// Equal reports exact value equality; 45 equals 45.00.
func (m Money) Equal(o Money) bool { return m.d.Equal(o.d) }

// Cmp returns -1, 0 or +1.
func (m Money) Cmp(o Money) int { return m.d.Cmp(o.d) }

func (m Money) IsZero() bool { return m.d.IsZero() }

func (m Money) Sign() int { return m.d.Sign() }

// Decimal exposes the underlying value for ratio computations.
func (m Money) Decimal() decimal.Decimal { return m.d }

// String returns the canonical representation without trailing zeros.
func (m Money) String() string { return m.d.String() }

// Fixed renders the amount with exactly two decimals and a dot separator,
// the form used in exports.
func (m Money) Fixed() string { return m.d.StringFixed(2) }

// Percent returns part/whole*100 rounded to two places, or zero when whole
// is zero.
func Percent(part, whole Money) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.d.Mul(decimal.NewFromInt(100)).Div(whole.d).Round(2)
}

// MarshalJSON encodes the amount as a quoted decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(m.d.StringFixed(2))), nil
}

// UnmarshalJSON accepts quoted strings and bare numbers.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*m = Zero
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	v, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// FormatMoney formats an amount for display (e.g., "€1234,56").
func FormatMoney(m Money, currency string) string {
	symbol := currencySymbol(currency)
	s := strings.Replace(m.Abs().Fixed(), ".", ",", 1)
	if m.Sign() < 0 {
		return "-" + symbol + s
	}
	return symbol + s
}

func currencySymbol(code string) string {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "", "EUR":
		return "€"
	case "USD":
		return "$"
	case "GBP":
		return "£"
	default:
		return strings.ToUpper(code) + " "
	}
}
