package log

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Component: ComponentReconcile, Handler: slog.NewTextHandler(&buf, nil)})

	l.InfoContext(context.Background(), "matched", FieldSchoolID, "s1")

	out := buf.String()
	assert.Contains(t, out, "component=reconcile")
	assert.Contains(t, out, "school_id=s1")
}

func TestMiddlewareStoresLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Component: ComponentHTTP, Handler: slog.NewTextHandler(&buf, nil)})

	var got *Logger
	h := Middleware(l)(ComponentMiddleware(ComponentReport)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotNil(t, got)
	assert.Equal(t, ComponentReport, got.Component())
}

func TestFromContextDefault(t *testing.T) {
	assert.Equal(t, "unknown", FromContext(context.Background()).Component())
}

func TestLogReportServed(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Component: ComponentHTTP, Handler: slog.NewTextHandler(&buf, nil)})

	NewStructuredLogger(l).LogReportServed(context.Background(), "s1", "cash-flow", "2024-01-01..2024-01-31", true)

	out := buf.String()
	assert.Contains(t, out, "report=cash-flow")
	assert.Contains(t, out, "cached=true")
}

func TestComponentNotRepeated(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Component: ComponentHTTP, Handler: slog.NewTextHandler(&buf, nil)}).
		WithComponent(ComponentReconcile)

	l.Info("linked")
	l.Info("explicit", FieldComponent, ComponentWorker)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, 1, strings.Count(lines[0], "component="))
	assert.Contains(t, lines[0], "component=reconcile")
	assert.Equal(t, 1, strings.Count(lines[1], "component="))
	assert.Contains(t, lines[1], "component=worker")
}
