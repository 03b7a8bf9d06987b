package http

import (
	"strings"
	"time"

	"schoolfin/internal/core"
)

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
}

// today is the calendar date of the server clock in its own location.
func today(now func() time.Time) core.Date {
	return core.DateOf(now())
}
