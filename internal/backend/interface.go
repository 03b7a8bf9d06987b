package backend

import (
	"context"

	"schoolfin/internal/amqp"
	"schoolfin/internal/services"
)

// Backend is the persistence layer the services run on.
type Backend interface {
	services.Store
	Ping(ctx context.Context) error
	Close() error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the opened store, the optional AMQP client and
// the cleanup that releases both.
type BackendResult struct {
	Backend Backend
	// Broker is nil when AMQP is disabled or unreachable at startup.
	Broker  *amqp.Client
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string
	DatabaseURL  string

	// An empty AMQPURL leaves Broker nil.
	AMQPURL         string
	AMQPExchange    string
	AMQPEventsQueue string
	AMQPExportQueue string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}
