package report

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"schoolfin/internal/core"
)

// Kind names a report.
type Kind string

const (
	KindProfitLoss         Kind = "profit-loss"
	KindCashFlow           Kind = "cash-flow"
	KindBalance            Kind = "balance"
	KindExpensesByCategory Kind = "expenses-category"
	KindVendorExpenses     Kind = "vendor-expenses"
	KindStudentPerformance Kind = "student-performance"
	KindRevenue            Kind = "revenue"
	KindInstructorRevenue  Kind = "instructor-revenue"
	KindLessonTypes        Kind = "lesson-types"
)

var ErrUnknownReport = errors.New("unknown report")

// Kinds lists every report in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindProfitLoss, KindCashFlow, KindBalance, KindExpensesByCategory,
		KindVendorExpenses, KindStudentPerformance, KindRevenue,
		KindInstructorRevenue, KindLessonTypes,
	}
}

func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownReport, s)
}

// Needs returns the record kinds a report reads and the dimension each
// one must be adapted with.
func (k Kind) Needs() map[core.RecordKind]core.Dimension {
	switch k {
	case KindProfitLoss:
		return map[core.RecordKind]core.Dimension{core.KindPayment: core.DimMethod, core.KindExpense: core.DimCategory}
	case KindCashFlow, KindRevenue:
		return map[core.RecordKind]core.Dimension{core.KindPayment: core.DimNone, core.KindExpense: core.DimNone}
	case KindBalance:
		return map[core.RecordKind]core.Dimension{
			core.KindPayment: core.DimNone, core.KindExpense: core.DimNone,
			core.KindInvoice: core.DimNone, core.KindBooking: core.DimNone,
		}
	case KindExpensesByCategory:
		return map[core.RecordKind]core.Dimension{core.KindExpense: core.DimCategory}
	case KindVendorExpenses:
		return map[core.RecordKind]core.Dimension{core.KindExpense: core.DimVendor}
	case KindStudentPerformance:
		return map[core.RecordKind]core.Dimension{core.KindPayment: core.DimStudent, core.KindBooking: core.DimStudent}
	case KindInstructorRevenue:
		return map[core.RecordKind]core.Dimension{core.KindBooking: core.DimInstructor}
	case KindLessonTypes:
		return map[core.RecordKind]core.Dimension{core.KindBooking: core.DimLessonType}
	default:
		return nil
	}
}

// Query bounds a report.
type Query struct {
	Kind        Kind           `json:"kind"`
	Range       core.DateRange `json:"range"`
	Granularity Granularity    `json:"granularity,omitempty"`
}

// CacheKey identifies the query within one school.
func (q Query) CacheKey() string {
	return string(q.Kind) + "|" + q.Range.String() + "|" + string(q.Granularity)
}

// Result is any assembled report.
type Result interface {
	ReportKind() Kind
}

// Breakdown is a single grouped summary.
type Breakdown struct {
	Kind Kind `json:"kind"`
	Summary
}

func (b Breakdown) ReportKind() Kind { return b.Kind }

type ProfitAndLoss struct {
	Range         core.DateRange  `json:"range"`
	Revenue       core.Money      `json:"revenue"`
	Expenses      core.Money      `json:"expenses"`
	NetProfit     core.Money      `json:"net_profit"`
	MarginPercent decimal.Decimal `json:"margin_percent"`
	RevenueBy     Summary         `json:"revenue_by_method"`
	ExpensesBy    Summary         `json:"expenses_by_category"`
}

func (ProfitAndLoss) ReportKind() Kind { return KindProfitLoss }

type CashFlowPeriod struct {
	Period     string     `json:"period"`
	Inflow     core.Money `json:"inflow"`
	Outflow    core.Money `json:"outflow"`
	Net        core.Money `json:"net"`
	Cumulative core.Money `json:"cumulative"`
}

type CashFlow struct {
	Range        core.DateRange   `json:"range"`
	Granularity  Granularity      `json:"granularity"`
	Periods      []CashFlowPeriod `json:"periods"`
	TotalInflow  core.Money       `json:"total_inflow"`
	TotalOutflow core.Money       `json:"total_outflow"`
	Net          core.Money       `json:"net"`
}

func (CashFlow) ReportKind() Kind { return KindCashFlow }

type BalanceOverview struct {
	Range core.DateRange `json:"range"`
	// Collected is cash received net of refunds. A refunded payment was
	// received once and paid back once, so it nets to zero.
	Collected core.Money `json:"collected"`
	Refunded  core.Money `json:"refunded"`
	// Receivables are invoices issued in range and not yet paid.
	Receivables core.Money `json:"receivables"`
	// Scheduled is the value of lessons booked but not yet held.
	Scheduled core.Money `json:"scheduled"`
	Expenses  core.Money `json:"expenses"`
	Payables  core.Money `json:"payables"`
	Equity    core.Money `json:"equity"`
}

func (BalanceOverview) ReportKind() Kind { return KindBalance }

type StudentPerformance struct {
	Range   core.DateRange `json:"range"`
	Revenue Summary        `json:"revenue"`
	Lessons Summary        `json:"lessons"`
}

func (StudentPerformance) ReportKind() Kind { return KindStudentPerformance }

// Build assembles the report named by q from records adapted with
// q.Kind.Needs().
func Build(records []core.FinancialRecord, q Query) (Result, error) {
	switch q.Kind {
	case KindProfitLoss:
		return BuildProfitAndLoss(records, q.Range)
	case KindCashFlow:
		return BuildCashFlow(records, q.Range, q.Granularity)
	case KindBalance:
		return BuildBalance(records, q.Range)
	case KindExpensesByCategory, KindVendorExpenses:
		s, err := Expenses(records, q.Range)
		return Breakdown{Kind: q.Kind, Summary: s}, err
	case KindStudentPerformance:
		return BuildStudentPerformance(records, q.Range)
	case KindRevenue:
		s, err := Aggregate(records, q.Range, ByPeriod(q.Granularity), revenue)
		return Breakdown{Kind: q.Kind, Summary: s}, err
	case KindInstructorRevenue, KindLessonTypes:
		s, err := Aggregate(records, q.Range, ByDimension, lessonsHeld)
		return Breakdown{Kind: q.Kind, Summary: s}, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownReport, q.Kind)
	}
}

var (
	revenue       = All(OfKind(core.KindPayment), CompletedOnly)
	received      = All(OfKind(core.KindPayment), WithStatus(core.StatusCompleted, core.StatusRefunded))
	refunds       = All(OfKind(core.KindPayment), WithStatus(core.StatusRefunded))
	paidExpenses  = All(OfKind(core.KindExpense), CompletedOnly)
	spentExpenses = All(OfKind(core.KindExpense), CompletedOrPending)
	lessonsHeld   = All(OfKind(core.KindBooking), CompletedOnly)
)

// Expenses groups non-failed expenses by their adapted dimension.
func Expenses(records []core.FinancialRecord, rng core.DateRange) (Summary, error) {
	return Aggregate(records, rng, ByDimension, spentExpenses)
}

// BuildProfitAndLoss sets completed payments against paid expenses.
// Pending expenses show up as payables on the balance instead.
func BuildProfitAndLoss(records []core.FinancialRecord, rng core.DateRange) (ProfitAndLoss, error) {
	rev, err := Aggregate(records, rng, ByDimension, revenue)
	if err != nil {
		return ProfitAndLoss{}, err
	}
	exp, err := Aggregate(records, rng, ByDimension, paidExpenses)
	if err != nil {
		return ProfitAndLoss{}, err
	}
	net := rev.GrandTotal.Sub(exp.GrandTotal)
	return ProfitAndLoss{
		Range:         rng,
		Revenue:       rev.GrandTotal,
		Expenses:      exp.GrandTotal,
		NetProfit:     net,
		MarginPercent: core.Percent(net, rev.GrandTotal),
		RevenueBy:     rev,
		ExpensesBy:    exp,
	}, nil
}

// BuildCashFlow buckets received payments, refunded ones included, as
// inflow and paid expenses plus refunds as outflow. Only periods with
// activity are listed, in chronological order.
func BuildCashFlow(records []core.FinancialRecord, rng core.DateRange, g Granularity) (CashFlow, error) {
	if g == "" {
		g = Monthly
	}
	in, err := Aggregate(records, rng, ByPeriod(g), received)
	if err != nil {
		return CashFlow{}, err
	}
	out, err := Aggregate(records, rng, ByPeriod(g), func(r core.FinancialRecord) bool {
		return paidExpenses(r) || refunds(r)
	})
	if err != nil {
		return CashFlow{}, err
	}

	byPeriod := make(map[string]*CashFlowPeriod)
	get := func(key string) *CashFlowPeriod {
		p, ok := byPeriod[key]
		if !ok {
			p = &CashFlowPeriod{Period: key}
			byPeriod[key] = p
		}
		return p
	}
	for _, grp := range in.Groups {
		get(grp.Key).Inflow = grp.Total
	}
	for _, grp := range out.Groups {
		get(grp.Key).Outflow = grp.Total
	}

	cf := CashFlow{Range: rng, Granularity: g, Periods: make([]CashFlowPeriod, 0, len(byPeriod))}
	for _, p := range byPeriod {
		cf.Periods = append(cf.Periods, *p)
	}
	sort.Slice(cf.Periods, func(i, j int) bool { return cf.Periods[i].Period < cf.Periods[j].Period })

	running := core.Zero
	for i := range cf.Periods {
		p := &cf.Periods[i]
		p.Net = p.Inflow.Sub(p.Outflow)
		running = running.Add(p.Net)
		p.Cumulative = running
	}
	cf.TotalInflow = in.GrandTotal
	cf.TotalOutflow = out.GrandTotal
	cf.Net = in.GrandTotal.Sub(out.GrandTotal)
	return cf, nil
}

func BuildBalance(records []core.FinancialRecord, rng core.DateRange) (BalanceOverview, error) {
	totals := make(map[string]core.Money)
	filters := map[string]IncludeFunc{
		"received":    received,
		"refunded":    refunds,
		"receivables": All(OfKind(core.KindInvoice), WithStatus(core.StatusPending)),
		"scheduled":   All(OfKind(core.KindBooking), WithStatus(core.StatusPending)),
		"expenses":    paidExpenses,
		"payables":    All(OfKind(core.KindExpense), WithStatus(core.StatusPending)),
	}
	for name, f := range filters {
		s, err := Aggregate(records, rng, ByKind, f)
		if err != nil {
			return BalanceOverview{}, err
		}
		totals[name] = s.GrandTotal
	}
	collected := totals["received"].Sub(totals["refunded"])
	return BalanceOverview{
		Range:       rng,
		Collected:   collected,
		Refunded:    totals["refunded"],
		Receivables: totals["receivables"],
		Scheduled:   totals["scheduled"],
		Expenses:    totals["expenses"],
		Payables:    totals["payables"],
		Equity:      collected.Sub(totals["expenses"]),
	}, nil
}

// BuildStudentPerformance ranks students by completed payments and by
// the value of lessons they attended.
func BuildStudentPerformance(records []core.FinancialRecord, rng core.DateRange) (StudentPerformance, error) {
	rev, err := Aggregate(records, rng, ByDimension, revenue)
	if err != nil {
		return StudentPerformance{}, err
	}
	lessons, err := Aggregate(records, rng, ByDimension, lessonsHeld)
	if err != nil {
		return StudentPerformance{}, err
	}
	return StudentPerformance{Range: rng, Revenue: rev, Lessons: lessons}, nil
}
