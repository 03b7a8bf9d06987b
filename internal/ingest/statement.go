// Package ingest turns uploaded bank statements into bank transactions.
package ingest

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"schoolfin/internal/core"
	"schoolfin/internal/reconcile"
)

var (
	ErrEmptyStatement = errors.New("statement has no header")
	ErrMissingColumn  = errors.New("statement is missing a required column")
	ErrUnknownFormat  = errors.New("unsupported statement format")
	ErrMalformed      = errors.New("malformed statement")
)

// Format names an accepted statement encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// FormatFromContentType maps a request content type to a format. Anything
// that is not JSON is read as CSV.
func FormatFromContentType(ct string) Format {
	if strings.Contains(strings.ToLower(ct), "json") {
		return FormatJSON
	}
	return FormatCSV
}

type Options struct {
	// Comma forces the field delimiter. Zero sniffs it from the header.
	Comma rune
	// Namespace scopes generated ids, normally the school id, so the same
	// line uploaded twice gets the same id.
	Namespace string
}

// SkippedLine records a statement line that could not be read.
type SkippedLine struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

type Result struct {
	Transactions []reconcile.BankTransaction `json:"transactions"`
	Skipped      []SkippedLine               `json:"skipped,omitempty"`
	// Digest is the sha256 of the raw upload.
	Digest string `json:"digest"`
}

// Parse dispatches on format.
func Parse(data []byte, format Format, opts Options) (Result, error) {
	switch format {
	case FormatCSV, "":
		return ParseCSV(data, opts)
	case FormatJSON:
		return ParseJSON(data, opts)
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

var headerAliases = map[string]string{
	"id":             "id",
	"transaction_id": "id",
	"txn_id":         "id",
	"date":           "date",
	"booking_date":   "date",
	"booked_on":      "date",
	"value_date":     "date",
	"data":           "date",
	"data_valuta":    "date",
	"amount":         "amount",
	"importo":        "amount",
	"debit":          "debit",
	"dare":           "debit",
	"credit":         "credit",
	"avere":          "credit",
	"description":    "description",
	"details":        "description",
	"memo":           "description",
	"descrizione":    "description",
	"causale":        "description",
	"reference":      "reference",
	"ref":            "reference",
	"external_ref":   "reference",
	"riferimento":    "reference",
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	h = strings.NewReplacer(" ", "_", "-", "_", ".", "").Replace(h)
	return headerAliases[h]
}

func sniffComma(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestCount := ',', 0
	for _, c := range []rune{';', ',', '\t', '|'} {
		if n := bytes.Count(line, []byte(string(c))); n > bestCount {
			best, bestCount = c, n
		}
	}
	return best
}

// ParseCSV reads a statement with a header row. A date column is required
// together with either an amount column or debit and credit columns, where
// debits become negative amounts. Rows that do not parse are skipped and
// reported with their line number.
func ParseCSV(data []byte, opts Options) (Result, error) {
	res := Result{Digest: digest(data)}

	comma := opts.Comma
	if comma == 0 {
		comma = sniffComma(data)
	}
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return res, ErrEmptyStatement
	}
	if err != nil {
		return res, fmt.Errorf("%w: read header: %w", ErrMalformed, err)
	}

	cols := make(map[string]int)
	for i, h := range header {
		if name := normalizeHeader(h); name != "" {
			if _, dup := cols[name]; !dup {
				cols[name] = i
			}
		}
	}
	if _, ok := cols["date"]; !ok {
		return res, fmt.Errorf("%w: date", ErrMissingColumn)
	}
	_, hasAmount := cols["amount"]
	_, hasDebit := cols["debit"]
	_, hasCredit := cols["credit"]
	if !hasAmount && !(hasDebit || hasCredit) {
		return res, fmt.Errorf("%w: amount", ErrMissingColumn)
	}

	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	seen := make(map[string]int)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				res.Skipped = append(res.Skipped, SkippedLine{Line: perr.Line, Reason: perr.Err.Error()})
				continue
			}
			return res, fmt.Errorf("%w: read statement: %w", ErrMalformed, err)
		}
		if blank(row) {
			continue
		}
		line, _ := reader.FieldPos(0)

		date, err := core.ParseDate(field(row, "date"))
		if err != nil || date.IsZero() {
			res.Skipped = append(res.Skipped, SkippedLine{Line: line, Reason: "invalid date"})
			continue
		}
		amount, err := rowAmount(field(row, "amount"), field(row, "debit"), field(row, "credit"), hasAmount)
		if err != nil {
			res.Skipped = append(res.Skipped, SkippedLine{Line: line, Reason: err.Error()})
			continue
		}

		txn := reconcile.BankTransaction{
			ID:          field(row, "id"),
			Date:        date,
			Amount:      amount,
			Description: collapseSpace(field(row, "description")),
			Reference:   field(row, "reference"),
		}
		if txn.ID == "" {
			txn.ID = stableID(opts.Namespace, txn, seen)
		}
		res.Transactions = append(res.Transactions, txn)
	}
	return res, nil
}

func rowAmount(amount, debit, credit string, hasAmount bool) (core.Money, error) {
	if hasAmount && amount != "" {
		return core.ParseMoney(amount)
	}
	total := core.Zero
	if credit != "" {
		c, err := core.ParseMoney(credit)
		if err != nil {
			return core.Zero, err
		}
		total = total.Add(c.Abs())
	}
	if debit != "" {
		d, err := core.ParseMoney(debit)
		if err != nil {
			return core.Zero, err
		}
		total = total.Sub(d.Abs())
	}
	if debit == "" && credit == "" {
		return core.Zero, fmt.Errorf("%w: empty", core.ErrInvalidAmount)
	}
	return total, nil
}

type jsonStatement struct {
	Transactions []jsonLine `json:"transactions"`
}

type jsonLine struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	Amount      json.RawMessage `json:"amount"`
	Description string          `json:"description"`
	Reference   string          `json:"reference"`
}

// ParseJSON reads either {"transactions": [...]} or a bare array of lines.
// Line numbers in skipped entries are 1-based array positions.
func ParseJSON(data []byte, opts Options) (Result, error) {
	res := Result{Digest: digest(data)}

	var lines []jsonLine
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return res, ErrEmptyStatement
	}
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &lines); err != nil {
			return res, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
	} else {
		var doc jsonStatement
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return res, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		lines = doc.Transactions
	}

	seen := make(map[string]int)
	for i, l := range lines {
		date, err := core.ParseDate(l.Date)
		if err != nil || date.IsZero() {
			res.Skipped = append(res.Skipped, SkippedLine{Line: i + 1, Reason: "invalid date"})
			continue
		}
		var amount core.Money
		if len(l.Amount) == 0 || amount.UnmarshalJSON(l.Amount) != nil {
			res.Skipped = append(res.Skipped, SkippedLine{Line: i + 1, Reason: "invalid amount"})
			continue
		}
		txn := reconcile.BankTransaction{
			ID:          strings.TrimSpace(l.ID),
			Date:        date,
			Amount:      amount,
			Description: collapseSpace(l.Description),
			Reference:   strings.TrimSpace(l.Reference),
		}
		if txn.ID == "" {
			txn.ID = stableID(opts.Namespace, txn, seen)
		}
		res.Transactions = append(res.Transactions, txn)
	}
	return res, nil
}

// collapseSpace trims a description and folds inner whitespace runs,
// tabs and line breaks included, into single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// stableID derives a name-based UUID from the line content. Identical lines
// in one upload are told apart by their occurrence count.
func stableID(namespace string, t reconcile.BankTransaction, seen map[string]int) string {
	key := strings.Join([]string{namespace, t.Date.String(), t.Amount.Fixed(), t.Description, t.Reference}, "|")
	n := seen[key]
	seen[key] = n + 1
	if n > 0 {
		key = fmt.Sprintf("%s|%d", key, n)
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func blank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
