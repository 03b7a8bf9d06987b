package export

import (
	"fmt"
	"strconv"

	"schoolfin/internal/report"
)

// Table is a report flattened to rows keyed by column name.
type Table struct {
	Columns []string
	Rows    []map[string]string
}

// CSV encodes the table.
func (t Table) CSV() string { return ToCSV(t.Rows, t.Columns) }

// Matrix returns the header followed by every row as positional values,
// the shape spreadsheet APIs expect.
func (t Table) Matrix() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, append([]string(nil), t.Columns...))
	for _, row := range t.Rows {
		line := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			line[i] = row[col]
		}
		out = append(out, line)
	}
	return out
}

// TableFor flattens any report. Amounts are pre-formatted with two decimals
// and a dot separator so the output does not depend on locale.
func TableFor(res report.Result) (Table, error) {
	switch r := res.(type) {
	case report.Breakdown:
		return SummaryTable(r.Summary, keyColumn(r.Kind)), nil
	case report.ProfitAndLoss:
		return ProfitLossTable(r), nil
	case report.CashFlow:
		return CashFlowTable(r), nil
	case report.BalanceOverview:
		return BalanceTable(r), nil
	case report.StudentPerformance:
		return StudentPerformanceTable(r), nil
	default:
		return Table{}, fmt.Errorf("%w: no table layout for %T", report.ErrUnknownReport, res)
	}
}

func keyColumn(k report.Kind) string {
	switch k {
	case report.KindExpensesByCategory:
		return "category"
	case report.KindVendorExpenses:
		return "vendor"
	case report.KindRevenue:
		return "period"
	case report.KindInstructorRevenue:
		return "instructor"
	case report.KindLessonTypes:
		return "lesson_type"
	default:
		return "key"
	}
}

// SummaryTable lists every group followed by a total line.
func SummaryTable(s report.Summary, keyHeader string) Table {
	t := Table{Columns: []string{keyHeader, "total", "count", "percent_of_total"}}
	for _, g := range s.Groups {
		t.Rows = append(t.Rows, map[string]string{
			keyHeader:          g.Key,
			"total":            g.Total.Fixed(),
			"count":            strconv.Itoa(g.Count),
			"percent_of_total": g.PercentOfTotal.StringFixed(2),
		})
	}
	t.Rows = append(t.Rows, map[string]string{
		keyHeader:          "Total",
		"total":            s.GrandTotal.Fixed(),
		"count":            strconv.Itoa(s.Count),
		"percent_of_total": percentTotal(s),
	})
	return t
}

func percentTotal(s report.Summary) string {
	if s.GrandTotal.IsZero() {
		return "0.00"
	}
	return "100.00"
}

func ProfitLossTable(pl report.ProfitAndLoss) Table {
	t := Table{Columns: []string{"section", "item", "amount"}}
	add := func(section, item, amount string) {
		t.Rows = append(t.Rows, map[string]string{"section": section, "item": item, "amount": amount})
	}
	for _, g := range pl.RevenueBy.Groups {
		add("revenue", g.Key, g.Total.Fixed())
	}
	add("revenue", "Total revenue", pl.Revenue.Fixed())
	for _, g := range pl.ExpensesBy.Groups {
		add("expenses", g.Key, g.Total.Fixed())
	}
	add("expenses", "Total expenses", pl.Expenses.Fixed())
	add("result", "Net profit", pl.NetProfit.Fixed())
	add("result", "Margin %", pl.MarginPercent.StringFixed(2))
	return t
}

func CashFlowTable(cf report.CashFlow) Table {
	t := Table{Columns: []string{"period", "inflow", "outflow", "net", "cumulative"}}
	for _, p := range cf.Periods {
		t.Rows = append(t.Rows, map[string]string{
			"period":     p.Period,
			"inflow":     p.Inflow.Fixed(),
			"outflow":    p.Outflow.Fixed(),
			"net":        p.Net.Fixed(),
			"cumulative": p.Cumulative.Fixed(),
		})
	}
	t.Rows = append(t.Rows, map[string]string{
		"period":  "Total",
		"inflow":  cf.TotalInflow.Fixed(),
		"outflow": cf.TotalOutflow.Fixed(),
		"net":     cf.Net.Fixed(),
	})
	return t
}

func BalanceTable(b report.BalanceOverview) Table {
	t := Table{Columns: []string{"item", "amount"}}
	for _, kv := range []struct {
		item   string
		amount string
	}{
		{"Collected", b.Collected.Fixed()},
		{"Refunded", b.Refunded.Fixed()},
		{"Receivables", b.Receivables.Fixed()},
		{"Scheduled lessons", b.Scheduled.Fixed()},
		{"Expenses", b.Expenses.Fixed()},
		{"Payables", b.Payables.Fixed()},
		{"Equity", b.Equity.Fixed()},
	} {
		t.Rows = append(t.Rows, map[string]string{"item": kv.item, "amount": kv.amount})
	}
	return t
}

// StudentPerformanceTable joins revenue and attended lessons per student.
func StudentPerformanceTable(sp report.StudentPerformance) Table {
	t := Table{Columns: []string{"student", "paid", "payments", "lessons", "lesson_value"}}
	seen := make(map[string]bool)
	row := func(student string) map[string]string {
		r := map[string]string{"student": student, "paid": "0.00", "payments": "0", "lessons": "0", "lesson_value": "0.00"}
		if g, ok := sp.Revenue.Lookup(student); ok {
			r["paid"], r["payments"] = g.Total.Fixed(), strconv.Itoa(g.Count)
		}
		if g, ok := sp.Lessons.Lookup(student); ok {
			r["lessons"], r["lesson_value"] = strconv.Itoa(g.Count), g.Total.Fixed()
		}
		return r
	}
	for _, groups := range [][]report.Group{sp.Revenue.Groups, sp.Lessons.Groups} {
		for _, g := range groups {
			if seen[g.Key] {
				continue
			}
			seen[g.Key] = true
			t.Rows = append(t.Rows, row(g.Key))
		}
	}
	return t
}
