package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"schoolfin/internal/core"
	"schoolfin/internal/ingest"
	"schoolfin/internal/report"
	"schoolfin/internal/services"
)

// maxUploadFallback caps statement uploads when the server is built
// without a limit.
const maxUploadFallback int64 = 10 << 20

// schoolID reads the {schoolID} path segment.
func schoolID(r *http.Request) (string, error) {
	id := sanitizeInput(chi.URLParam(r, "schoolID"))
	if id == "" {
		return "", core.ErrMissingSchool
	}
	return id, nil
}

// parseReportQuery reads ?from=&to=&granularity= for the {report} segment.
// group is accepted as an alias of granularity; period names a preset
// window (mtd, ytd) used when no explicit bounds are given.
func parseReportQuery(r *http.Request, today core.Date) (report.Query, error) {
	q := r.URL.Query()
	from, to := strings.TrimSpace(q.Get("from")), strings.TrimSpace(q.Get("to"))

	if from == "" && to == "" {
		switch p := strings.ToLower(strings.TrimSpace(q.Get("period"))); p {
		case "":
		case "mtd", "month-to-date":
			rng := core.MonthToDate(today)
			from, to = rng.Start.String(), rng.End.String()
		case "ytd", "year-to-date":
			rng := core.YearToDate(today)
			from, to = rng.Start.String(), rng.End.String()
		default:
			return report.Query{}, fmt.Errorf("%w: unknown period %q", services.ErrInvalidQuery, p)
		}
	}

	granularity := q.Get("granularity")
	if strings.TrimSpace(granularity) == "" {
		granularity = q.Get("group")
	}
	return services.ParseQuery(chi.URLParam(r, "report"), from, to, strings.ToLower(granularity), today)
}

// parseTolerance reads ?tolerance= as a day count. Absent means nil.
func parseTolerance(r *http.Request) (*int, error) {
	v := strings.TrimSpace(r.URL.Query().Get("tolerance"))
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("%w: tolerance must be a whole number of days", errBadRequest)
	}
	return &n, nil
}

// decodeJSON strictly decodes a single JSON value from the body.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON body", errBadRequest)
	}
	return nil
}

// decodeRecords reads a JSON array of kind into a record set.
func decodeRecords(r *http.Request, kind core.RecordKind) (core.RecordSet, error) {
	var set core.RecordSet
	var err error
	switch kind {
	case core.KindPayment:
		err = decodeJSON(r, &set.Payments)
	case core.KindExpense:
		err = decodeJSON(r, &set.Expenses)
	case core.KindInvoice:
		err = decodeJSON(r, &set.Invoices)
	case core.KindBooking:
		err = decodeJSON(r, &set.Bookings)
	default:
		err = core.ErrUnknownKind
	}
	return set, err
}

// readStatement returns the uploaded statement and its format. Multipart
// uploads use the "file" field; any other body is the statement itself.
// ?format= overrides detection from the content type or file name.
func readStatement(r *http.Request) ([]byte, ingest.Format, error) {
	ct := r.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(ct)

	var (
		data     []byte
		filename string
		err      error
	)
	if mediaType == "multipart/form-data" {
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(ferr, &tooLarge) {
				return nil, "", ferr
			}
			return nil, "", fmt.Errorf("%w: file field is required: %w", errBadRequest, ferr)
		}
		defer file.Close()
		filename = header.Filename
		ct = header.Header.Get("Content-Type")
		data, err = io.ReadAll(file)
	} else {
		data, err = io.ReadAll(r.Body)
	}
	if err != nil {
		return nil, "", err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, "", fmt.Errorf("%w: empty statement", errBadRequest)
	}

	format := ingest.Format(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))))
	if format == "" {
		switch strings.ToLower(path.Ext(filename)) {
		case ".json":
			format = ingest.FormatJSON
		case ".csv", ".txt":
			format = ingest.FormatCSV
		default:
			format = ingest.FormatFromContentType(ct)
		}
	}
	return data, format, nil
}
