package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Match event types.
const (
	EventStatementImported = "statement_imported"
	EventMatchesProposed   = "matches_proposed"
	EventManualLink        = "manual_link"
	EventManualUnlink      = "manual_unlink"
)

// MatchEvent announces a change to the reconciliation of one school.
type MatchEvent struct {
	EventID   string         `json:"event_id"`
	SchoolID  string         `json:"school_id"`
	Type      string         `json:"type"`
	BankTxnID string         `json:"bank_txn_id,omitempty"`
	PaymentID string         `json:"payment_id,omitempty"`
	Version   int64          `json:"version"`
	Counts    map[string]int `json:"counts,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func NewMatchEvent(schoolID, eventType string, version int64) *MatchEvent {
	return &MatchEvent{
		EventID:   uuid.NewString(),
		SchoolID:  schoolID,
		Type:      eventType,
		Version:   version,
		Timestamp: time.Now(),
	}
}

func (m *MatchEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func MatchEventFromJSON(data []byte) (*MatchEvent, error) {
	var msg MatchEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ExportRequest asks the worker to render a report and push it to a
// spreadsheet. Dates are YYYY-MM-DD.
type ExportRequest struct {
	JobID       string    `json:"job_id"`
	SchoolID    string    `json:"school_id"`
	Product     string    `json:"product,omitempty"`
	Report      string    `json:"report"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Granularity string    `json:"granularity,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

var ErrInvalidExportRequest = errors.New("invalid export request")

func NewExportRequest(schoolID, product, report, from, to, granularity string) *ExportRequest {
	return &ExportRequest{
		JobID:       uuid.NewString(),
		SchoolID:    schoolID,
		Product:     product,
		Report:      report,
		From:        from,
		To:          to,
		Granularity: granularity,
		Timestamp:   time.Now(),
	}
}

// Validate checks the fields the worker cannot default.
func (r *ExportRequest) Validate() error {
	switch {
	case r.SchoolID == "":
		return errors.Join(ErrInvalidExportRequest, errors.New("school_id is required"))
	case r.Report == "":
		return errors.Join(ErrInvalidExportRequest, errors.New("report is required"))
	case r.From == "" || r.To == "":
		return errors.Join(ErrInvalidExportRequest, errors.New("from and to are required"))
	}
	return nil
}

func (r *ExportRequest) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

func ExportRequestFromJSON(data []byte) (*ExportRequest, error) {
	var msg ExportRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
