package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"schoolfin/internal/amqp"
	"schoolfin/internal/core"
	"schoolfin/internal/export"
	"schoolfin/internal/report"
	"schoolfin/internal/services"
	"schoolfin/internal/sheets"
)

// ReportSource renders a report as export rows.
type ReportSource interface {
	Table(ctx context.Context, schoolID string, q report.Query) (export.Table, error)
}

// ExportWorker turns queued export requests into spreadsheet tabs.
type ExportWorker struct {
	reports ReportSource
	sheets  sheets.TableWriter
	now     func() time.Time
}

func NewExportWorker(reports ReportSource, writer sheets.TableWriter) *ExportWorker {
	return &ExportWorker{
		reports: reports,
		sheets:  writer,
		now:     time.Now,
	}
}

// HandleExportRequest renders the requested report and replaces the
// content of its tab. Requests that can never succeed are logged and
// acknowledged; other failures are returned so the job is retried.
func (w *ExportWorker) HandleExportRequest(ctx context.Context, req *amqp.ExportRequest) error {
	slog.InfoContext(ctx, "Processing export request",
		"job_id", req.JobID,
		"school_id", req.SchoolID,
		"report", req.Report)

	q, err := services.ParseQuery(req.Report, req.From, req.To, req.Granularity, core.DateOf(w.now()))
	if err != nil {
		slog.ErrorContext(ctx, "Dropping export request with invalid query",
			"job_id", req.JobID,
			"error", err)
		return nil
	}

	table, err := w.reports.Table(ctx, req.SchoolID, q)
	if err != nil {
		if errors.Is(err, core.ErrMissingSchool) || errors.Is(err, report.ErrUnknownReport) {
			slog.ErrorContext(ctx, "Dropping export request", "job_id", req.JobID, "error", err)
			return nil
		}
		return fmt.Errorf("render %s: %w", q.Kind, err)
	}

	tab := TabName(req.SchoolID, q)
	ref, err := w.sheets.WriteTable(ctx, tab, table.Matrix())
	if err != nil {
		return fmt.Errorf("write %s to spreadsheet: %w", tab, err)
	}

	slog.InfoContext(ctx, "Export written",
		"job_id", req.JobID,
		"school_id", req.SchoolID,
		"tab", tab,
		"rows", len(table.Rows),
		"sheets_ref", ref)
	return nil
}

// TabName names the spreadsheet tab of one export.
func TabName(schoolID string, q report.Query) string {
	return fmt.Sprintf("%s %s %s", schoolID, q.Kind, q.Range)
}
