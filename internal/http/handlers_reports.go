package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"schoolfin/internal/core"
	"schoolfin/internal/report"
)

// ReportResponse wraps a report with the query that produced it.
type ReportResponse struct {
	SchoolID    string             `json:"school_id"`
	Report      report.Kind        `json:"report"`
	Range       core.DateRange     `json:"range"`
	Granularity report.Granularity `json:"granularity"`
	Cached      bool               `json:"cached"`
	Data        report.Result      `json:"data"`
}

// ExportJobResponse acknowledges a queued spreadsheet export.
type ExportJobResponse struct {
	JobID  string      `json:"job_id"`
	Status string      `json:"status"`
	Report report.Kind `json:"report"`
	Range  string      `json:"range"`
}

// RecordsResponse reports a bulk upsert.
type RecordsResponse struct {
	Kind     core.RecordKind `json:"kind"`
	Received int             `json:"received"`
	Upserted int             `json:"upserted"`
}

func (s *Server) handleUpsertRecords(w http.ResponseWriter, r *http.Request) {
	school, err := schoolID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	kind, err := core.ParseRecordKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	set, err := decodeRecords(r, kind)
	if err != nil {
		writeError(w, r, err)
		return
	}

	n, err := s.reports.SaveRecords(r.Context(), school, set)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RecordsResponse{Kind: kind, Received: set.Len(), Upserted: n})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	school, err := schoolID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := parseReportQuery(r, today(s.now))
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, cached, err := s.reports.Report(r.Context(), school, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.logger.LogReportServed(r.Context(), school, string(q.Kind), q.Range.String(), cached)

	writeJSON(w, http.StatusOK, ReportResponse{
		SchoolID:    school,
		Report:      q.Kind,
		Range:       q.Range,
		Granularity: q.Granularity,
		Cached:      cached,
		Data:        res,
	})
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	school, err := schoolID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := parseReportQuery(r, today(s.now))
	if err != nil {
		writeError(w, r, err)
		return
	}

	filename, body, err := s.reports.ExportCSV(r.Context(), school, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCSV(w, filename, body)
}

func (s *Server) handleSheetsExport(w http.ResponseWriter, r *http.Request) {
	school, err := schoolID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := parseReportQuery(r, today(s.now))
	if err != nil {
		writeError(w, r, err)
		return
	}

	job, err := s.reports.RequestSheetsExport(r.Context(), school, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ExportJobResponse{
		JobID:  job.JobID,
		Status: "queued",
		Report: q.Kind,
		Range:  q.Range.String(),
	})
}
