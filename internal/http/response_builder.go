package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"schoolfin/internal/amqp"
	"schoolfin/internal/core"
	"schoolfin/internal/export"
	"schoolfin/internal/ingest"
	applog "schoolfin/internal/log"
	"schoolfin/internal/middleware/trace"
	"schoolfin/internal/reconcile"
	"schoolfin/internal/report"
	"schoolfin/internal/services"
	"schoolfin/internal/storage"
)

var (
	// errBadRequest marks request-shape problems found by the handlers.
	errBadRequest = errors.New("bad request")
	errNoRoute    = errors.New("not found")
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
}

type errorClass struct {
	status int
	kind   string
	match  []error
}

// Checked in order: not-found sentinels are also wrapped by
// services.ErrInvalidQuery, so they come first.
var errorClasses = []errorClass{
	{http.StatusNotFound, applog.ErrorTypeNotFound, []error{
		errNoRoute, storage.ErrNotFound, report.ErrUnknownReport, core.ErrUnknownKind,
		reconcile.ErrUnknownTransaction, reconcile.ErrUnknownPayment,
	}},
	{http.StatusConflict, applog.ErrorTypeConflict, []error{
		reconcile.ErrConflict, storage.ErrVersionConflict,
	}},
	{http.StatusBadRequest, applog.ErrorTypeValidation, []error{
		errBadRequest, services.ErrInvalidQuery,
		core.ErrInvalidAmount, core.ErrInvalidDate, core.ErrInvalidRange,
		core.ErrMissingSchool, core.ErrEmptyID, core.ErrDuplicateID,
		core.ErrInvalidStatus, core.ErrEmptyStudentID,
		ingest.ErrEmptyStatement, ingest.ErrMissingColumn, ingest.ErrUnknownFormat, ingest.ErrMalformed,
	}},
	{http.StatusServiceUnavailable, applog.ErrorTypeUnavailable, []error{
		services.ErrExportUnavailable, amqp.ErrCircuitOpen,
	}},
	{http.StatusGatewayTimeout, applog.ErrorTypeTimeout, []error{
		context.DeadlineExceeded,
	}},
}

// classify maps an error to its HTTP status and error type.
func classify(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge, applog.ErrorTypeValidation
	}
	for _, c := range errorClasses {
		for _, target := range c.match {
			if errors.Is(err, target) {
				return c.status, c.kind
			}
		}
	}
	return http.StatusInternalServerError, applog.ErrorTypeInternal
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "component", applog.ComponentHTTP, "error", err)
	}
}

// writeError logs err and answers with its mapped status. Internal errors
// are not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	msg := err.Error()
	if status >= 500 && status != http.StatusServiceUnavailable {
		logger.ErrorContext(ctx, "Request failed",
			applog.FieldPath, r.URL.Path,
			applog.FieldError, err,
			"error_type", kind)
		msg = http.StatusText(status)
	} else {
		logger.WarnContext(ctx, "Request rejected",
			applog.FieldPath, r.URL.Path,
			applog.FieldStatusCode, status,
			applog.FieldError, err)
	}

	writeJSON(w, status, ErrorResponse{
		Error:     msg,
		Type:      kind,
		RequestID: trace.GetRequestID(ctx),
	})
}

// writeRateLimited is the limiter's onLimit callback.
func writeRateLimited(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
		Error:     "rate limit exceeded, retry after " + w.Header().Get("Retry-After") + "s",
		Type:      applog.ErrorTypeRateLimited,
		RequestID: trace.GetRequestID(r.Context()),
	})
}

func writeCSV(w http.ResponseWriter, filename, body string) {
	h := w.Header()
	h.Set("Content-Type", export.ContentType)
	h.Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
