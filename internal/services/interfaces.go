package services

import (
	"context"

	"schoolfin/internal/amqp"
	"schoolfin/internal/core"
	"schoolfin/internal/reconcile"
	"schoolfin/internal/storage"
)

// Store is the persistence the services depend on. Both the SQL and the
// in-memory repositories satisfy it.
//
//go:generate mockgen -destination=mocks/mock_interfaces.go -package=mocks -source=interfaces.go
type Store interface {
	UpsertRecords(ctx context.Context, schoolID string, set core.RecordSet) (int, error)
	LoadRecords(ctx context.Context, schoolID string, kind core.RecordKind) (core.RecordSet, error)
	SaveBankTransactions(ctx context.Context, schoolID string, txns []reconcile.BankTransaction) (int, error)
	ListBankTransactions(ctx context.Context, schoolID string) ([]reconcile.BankTransaction, error)
	LoadMatches(ctx context.Context, schoolID string) (storage.MatchSnapshot, error)
	SaveMatches(ctx context.Context, schoolID string, expected int64, candidates []reconcile.MatchCandidate) (int64, error)
}

// EventPublisher announces reconciliation changes.
type EventPublisher interface {
	PublishMatchEvent(ctx context.Context, ev *amqp.MatchEvent) error
}

// ExportPublisher queues spreadsheet export jobs.
type ExportPublisher interface {
	PublishExportRequest(ctx context.Context, req *amqp.ExportRequest) error
}

var (
	_ Store           = (*storage.SQLRepository)(nil)
	_ Store           = (*storage.MemoryRepository)(nil)
	_ EventPublisher  = (*amqp.Client)(nil)
	_ ExportPublisher = (*amqp.Client)(nil)
)
