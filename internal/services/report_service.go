package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"schoolfin/internal/amqp"
	"schoolfin/internal/cache"
	"schoolfin/internal/core"
	"schoolfin/internal/export"
	"schoolfin/internal/report"
)

// DefaultWindowDays is the report range used when a request names no dates.
const DefaultWindowDays = 30

var (
	ErrInvalidQuery      = errors.New("invalid report query")
	ErrExportUnavailable = errors.New("spreadsheet export is not configured")
)

// ParseQuery builds a report query from request strings. Missing bounds
// default to the DefaultWindowDays window ending today; a single bound is
// completed from the same window.
func ParseQuery(kind, from, to, granularity string, today core.Date) (report.Query, error) {
	k, err := report.ParseKind(strings.TrimSpace(kind))
	if err != nil {
		return report.Query{}, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	g, err := report.ParseGranularity(strings.TrimSpace(granularity))
	if err != nil {
		return report.Query{}, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}

	rng := core.LastNDays(today, DefaultWindowDays)
	if strings.TrimSpace(from) != "" {
		if rng.Start, err = core.ParseDate(from); err != nil {
			return report.Query{}, fmt.Errorf("%w: from: %w", ErrInvalidQuery, err)
		}
	}
	if strings.TrimSpace(to) != "" {
		if rng.End, err = core.ParseDate(to); err != nil {
			return report.Query{}, fmt.Errorf("%w: to: %w", ErrInvalidQuery, err)
		}
	}
	if err := rng.Validate(); err != nil {
		return report.Query{}, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	return report.Query{Kind: k, Range: rng, Granularity: g}, nil
}

// ReportService loads school records, assembles reports and caches the
// results per school.
type ReportService struct {
	store   Store
	cache   cache.Cache[report.Result]
	exports ExportPublisher
	product string
}

// NewReportService accepts a nil cache (no caching) and a nil exports
// publisher (spreadsheet export disabled).
func NewReportService(store Store, c cache.Cache[report.Result], exports ExportPublisher, product string) *ReportService {
	return &ReportService{
		store:   store,
		cache:   c,
		exports: exports,
		product: product,
	}
}

// Product is the name used in export filenames.
func (s *ReportService) Product() string { return s.product }

// SaveRecords validates and upserts records, then drops the school's
// cached reports.
func (s *ReportService) SaveRecords(ctx context.Context, schoolID string, set core.RecordSet) (int, error) {
	if strings.TrimSpace(schoolID) == "" {
		return 0, core.ErrMissingSchool
	}
	if err := set.Validate(); err != nil {
		return 0, err
	}
	n, err := s.store.UpsertRecords(ctx, schoolID, set)
	if err != nil {
		return 0, fmt.Errorf("save records: %w", err)
	}
	dropped := s.invalidate(schoolID)

	slog.InfoContext(ctx, "Saved school records",
		"component", "report",
		"school_id", schoolID,
		"records", n,
		"cache_dropped", dropped)
	return n, nil
}

// Report returns the report for q and whether it came from the cache.
func (s *ReportService) Report(ctx context.Context, schoolID string, q report.Query) (report.Result, bool, error) {
	if strings.TrimSpace(schoolID) == "" {
		return nil, false, core.ErrMissingSchool
	}
	if err := q.Range.Validate(); err != nil {
		return nil, false, err
	}

	key := cacheKey(schoolID, q)
	if s.cache != nil {
		if res, ok := s.cache.Get(key); ok {
			return res, true, nil
		}
	}

	records, err := s.loadRecords(ctx, schoolID, q.Kind.Needs())
	if err != nil {
		return nil, false, err
	}
	res, err := report.Build(records, q)
	if err != nil {
		return nil, false, fmt.Errorf("build %s: %w", q.Kind, err)
	}

	if s.cache != nil {
		s.cache.Set(key, res)
	}
	slog.DebugContext(ctx, "Report built",
		"component", "report",
		"school_id", schoolID,
		"report", q.Kind,
		"range", q.Range.String(),
		"records", len(records))
	return res, false, nil
}

// Table renders the report for q as export rows.
func (s *ReportService) Table(ctx context.Context, schoolID string, q report.Query) (export.Table, error) {
	res, _, err := s.Report(ctx, schoolID, q)
	if err != nil {
		return export.Table{}, err
	}
	return export.TableFor(res)
}

// ExportCSV returns the download filename and CSV body for q.
func (s *ReportService) ExportCSV(ctx context.Context, schoolID string, q report.Query) (string, string, error) {
	table, err := s.Table(ctx, schoolID, q)
	if err != nil {
		return "", "", err
	}
	return export.Filename(s.product, string(q.Kind)), table.CSV(), nil
}

// RequestSheetsExport queues a spreadsheet export of q for the worker.
func (s *ReportService) RequestSheetsExport(ctx context.Context, schoolID string, q report.Query) (*amqp.ExportRequest, error) {
	if s.exports == nil {
		return nil, ErrExportUnavailable
	}
	if strings.TrimSpace(schoolID) == "" {
		return nil, core.ErrMissingSchool
	}
	req := amqp.NewExportRequest(schoolID, s.product, string(q.Kind),
		q.Range.Start.String(), q.Range.End.String(), string(q.Granularity))
	if err := s.exports.PublishExportRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("queue export: %w", err)
	}
	return req, nil
}

// loadRecords reads every needed kind concurrently and adapts them with
// the report's dimensions.
func (s *ReportService) loadRecords(ctx context.Context, schoolID string, needs map[core.RecordKind]core.Dimension) ([]core.FinancialRecord, error) {
	var kinds []core.RecordKind
	for _, k := range core.Kinds() {
		if _, ok := needs[k]; ok {
			kinds = append(kinds, k)
		}
	}

	sets := make([]core.RecordSet, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, k := range kinds {
		g.Go(func() error {
			set, err := s.store.LoadRecords(gctx, schoolID, k)
			if err != nil {
				return fmt.Errorf("load %s records: %w", k, err)
			}
			sets[i] = set
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged core.RecordSet
	for _, set := range sets {
		merged = merged.Merge(set)
	}
	return merged.Records(needs), nil
}

func (s *ReportService) invalidate(schoolID string) int {
	if s.cache == nil {
		return 0
	}
	return s.cache.DeletePrefix(schoolID + "|")
}

func cacheKey(schoolID string, q report.Query) string {
	return schoolID + "|" + q.CacheKey()
}
