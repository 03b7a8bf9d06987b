// Package report turns normalized financial records into period-bounded
// summaries. Every report in the package is assembled from Aggregate.
package report

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"schoolfin/internal/core"
)

type (
	// GroupFunc maps a record to its group key.
	GroupFunc func(core.FinancialRecord) string

	// IncludeFunc decides whether a well-formed, in-range record counts.
	IncludeFunc func(core.FinancialRecord) bool

	Group struct {
		Key            string          `json:"key"`
		Total          core.Money      `json:"total"`
		Count          int             `json:"count"`
		PercentOfTotal decimal.Decimal `json:"percent_of_total"`
	}

	Summary struct {
		Range      core.DateRange `json:"range"`
		Groups     []Group        `json:"groups"`
		GrandTotal core.Money     `json:"grand_total"`
		Count      int            `json:"count"`
		// Skipped counts records dropped because their amount or date did
		// not parse.
		Skipped int `json:"skipped"`
	}
)

// Aggregate filters records to rng and include, groups them with groupBy
// and sums each group exactly. Groups are ordered by total descending,
// then key ascending. A nil groupBy groups by DimensionKey and a nil
// include accepts every status.
func Aggregate(records []core.FinancialRecord, rng core.DateRange, groupBy GroupFunc, include IncludeFunc) (Summary, error) {
	if err := rng.Validate(); err != nil {
		return Summary{}, fmt.Errorf("aggregate %s: %w", rng, err)
	}
	if groupBy == nil {
		groupBy = ByDimension
	}
	if include == nil {
		include = AnyStatus
	}

	sum := Summary{Range: rng, Groups: []Group{}}
	index := make(map[string]int)
	for _, rec := range records {
		if rec.Malformed || rec.OccurredAt.IsZero() {
			sum.Skipped++
			continue
		}
		if !rng.Contains(rec.OccurredAt) || !include(rec) {
			continue
		}
		key := groupBy(rec)
		i, ok := index[key]
		if !ok {
			i = len(sum.Groups)
			index[key] = i
			sum.Groups = append(sum.Groups, Group{Key: key})
		}
		sum.Groups[i].Total = sum.Groups[i].Total.Add(rec.Amount)
		sum.Groups[i].Count++
		sum.GrandTotal = sum.GrandTotal.Add(rec.Amount)
		sum.Count++
	}

	for i := range sum.Groups {
		sum.Groups[i].PercentOfTotal = core.Percent(sum.Groups[i].Total, sum.GrandTotal)
	}
	sort.SliceStable(sum.Groups, func(i, j int) bool {
		if c := sum.Groups[i].Total.Cmp(sum.Groups[j].Total); c != 0 {
			return c > 0
		}
		return sum.Groups[i].Key < sum.Groups[j].Key
	})
	return sum, nil
}

// Lookup returns the group with the given key.
func (s Summary) Lookup(key string) (Group, bool) {
	for _, g := range s.Groups {
		if g.Key == key {
			return g, true
		}
	}
	return Group{}, false
}

// ByDimension groups by the key chosen when the record was adapted.
func ByDimension(r core.FinancialRecord) string { return r.DimensionKey }

// ByKind groups by record kind.
func ByKind(r core.FinancialRecord) string { return string(r.Kind) }

// ByStatus groups by status.
func ByStatus(r core.FinancialRecord) string { return string(r.Status) }

// Granularity is the width of a reporting period.
type Granularity string

const (
	Daily     Granularity = "day"
	Monthly   Granularity = "month"
	Quarterly Granularity = "quarter"
	Yearly    Granularity = "year"
)

// ParseGranularity defaults to Monthly for an empty value.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(s); g {
	case "":
		return Monthly, nil
	case Daily, Monthly, Quarterly, Yearly:
		return g, nil
	default:
		return "", fmt.Errorf("unknown granularity %q", s)
	}
}

// PeriodKey labels the period containing d. Labels sort chronologically.
func (g Granularity) PeriodKey(d core.Date) string {
	switch g {
	case Daily:
		return d.String()
	case Quarterly:
		return strconv.Itoa(d.Year()) + "-Q" + strconv.Itoa((int(d.Month())-1)/3+1)
	case Yearly:
		return strconv.Itoa(d.Year())
	default:
		return d.Format("2006-01")
	}
}

// ByPeriod groups records into periods of width g.
func ByPeriod(g Granularity) GroupFunc {
	return func(r core.FinancialRecord) string { return g.PeriodKey(r.OccurredAt) }
}

// AnyStatus includes every record.
func AnyStatus(core.FinancialRecord) bool { return true }

// CompletedOnly includes settled records.
func CompletedOnly(r core.FinancialRecord) bool { return r.Status == core.StatusCompleted }

// CompletedOrPending excludes failed and refunded records.
func CompletedOrPending(r core.FinancialRecord) bool {
	return r.Status == core.StatusCompleted || r.Status == core.StatusPending
}

// WithStatus includes records in any of the given statuses.
func WithStatus(statuses ...core.PaymentStatus) IncludeFunc {
	return func(r core.FinancialRecord) bool {
		for _, s := range statuses {
			if r.Status == s {
				return true
			}
		}
		return false
	}
}

// OfKind includes records of any of the given kinds.
func OfKind(kinds ...core.RecordKind) IncludeFunc {
	return func(r core.FinancialRecord) bool {
		for _, k := range kinds {
			if r.Kind == k {
				return true
			}
		}
		return false
	}
}

// All is the conjunction of filters.
func All(filters ...IncludeFunc) IncludeFunc {
	return func(r core.FinancialRecord) bool {
		for _, f := range filters {
			if !f(r) {
				return false
			}
		}
		return true
	}
}
