package sheets

import "context"

// Ports for outbound adapters.
type (
	// TableWriter replaces the content of a named tab with rows, the first
	// row being the header. It returns a reference to the written range.
	TableWriter interface {
		WriteTable(ctx context.Context, tab string, rows [][]string) (ref string, err error)
	}
)
