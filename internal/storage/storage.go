// Package storage persists school records, imported bank lines and
// reconciliation states.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"schoolfin/internal/core"
	"schoolfin/internal/reconcile"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("match states were changed concurrently")
)

// MatchSnapshot is the persisted reconciliation of one school. Version is
// zero until the first save and grows by one on every save.
type MatchSnapshot struct {
	Version    int64
	Candidates []reconcile.MatchCandidate
}

type storedRecord struct {
	kind    core.RecordKind
	id      string
	payload []byte
}

// flatten encodes every record of the set as one JSON payload per row.
func flatten(set core.RecordSet) ([]storedRecord, error) {
	out := make([]storedRecord, 0, set.Len())
	add := func(kind core.RecordKind, id string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", kind, id, err)
		}
		out = append(out, storedRecord{kind: kind, id: id, payload: b})
		return nil
	}
	for _, p := range set.Payments {
		if err := add(core.KindPayment, p.ID, p); err != nil {
			return nil, err
		}
	}
	for _, e := range set.Expenses {
		if err := add(core.KindExpense, e.ID, e); err != nil {
			return nil, err
		}
	}
	for _, i := range set.Invoices {
		if err := add(core.KindInvoice, i.ID, i); err != nil {
			return nil, err
		}
	}
	for _, b := range set.Bookings {
		if err := add(core.KindBooking, b.ID, b); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// appendRecord decodes one payload into the matching slice of set.
func appendRecord(set *core.RecordSet, kind core.RecordKind, payload []byte) error {
	var err error
	switch kind {
	case core.KindPayment:
		var p core.Payment
		if err = json.Unmarshal(payload, &p); err == nil {
			set.Payments = append(set.Payments, p)
		}
	case core.KindExpense:
		var e core.Expense
		if err = json.Unmarshal(payload, &e); err == nil {
			set.Expenses = append(set.Expenses, e)
		}
	case core.KindInvoice:
		var i core.Invoice
		if err = json.Unmarshal(payload, &i); err == nil {
			set.Invoices = append(set.Invoices, i)
		}
	case core.KindBooking:
		var b core.Booking
		if err = json.Unmarshal(payload, &b); err == nil {
			set.Bookings = append(set.Bookings, b)
		}
	default:
		return fmt.Errorf("%w: %s", core.ErrUnknownKind, kind)
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", kind, err)
	}
	return nil
}
