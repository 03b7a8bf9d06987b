// Package export renders report tables as CSV text and spreadsheet rows.
package export

import (
	"strings"
	"unicode"
)

// ContentType is the MIME type of every CSV download.
const ContentType = "text/csv;charset=utf-8"

// ToCSV encodes rows in column order. The header line is always present.
// Fields containing a comma, a double quote, CR or LF are quoted with inner
// quotes doubled; a key missing from a row renders as an empty field.
// Lines end with "\n".
func ToCSV(rows []map[string]string, columns []string) string {
	var b strings.Builder
	writeLine(&b, columns)
	line := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			line[i] = row[col]
		}
		writeLine(&b, line)
	}
	return b.String()
}

func writeLine(b *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(escapeField(f))
	}
	b.WriteByte('\n')
}

func escapeField(f string) string {
	if !strings.ContainsAny(f, ",\"\r\n") {
		return f
	}
	return `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
}

// Filename builds "<product>_<report-name>.csv" from slugified parts.
func Filename(product, reportName string) string {
	return slug(product, "export") + "_" + slug(reportName, "report") + ".csv"
}

func slug(s, fallback string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return fallback
	}
	return out
}
