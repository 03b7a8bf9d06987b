// Package http exposes reports, exports and bank reconciliation over a
// JSON API mounted under /api/v1/schools/{schoolID}.
package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	applog "schoolfin/internal/log"
	"schoolfin/internal/middleware/ratelimit"
	"schoolfin/internal/middleware/security"
	"schoolfin/internal/middleware/trace"
	"schoolfin/internal/services"
)

// Deps wires the server to the application. Reports and Reconciliation
// are required; everything else has a default.
type Deps struct {
	Reports        *services.ReportService
	Reconciliation *services.ReconciliationService
	Logger         *applog.Logger

	// Now is the clock used for default report ranges.
	Now func() time.Time
	// Ready reports whether backing services are reachable.
	Ready func(context.Context) error

	RateLimit      ratelimit.Config
	RequestTimeout time.Duration
	MaxUploadBytes int64
	TrustedProxies []string
}

type Server struct {
	http.Server

	reports   *services.ReportService
	recon     *services.ReconciliationService
	logger    *applog.StructuredLogger
	now       func() time.Time
	ready     func(context.Context) error
	maxUpload int64

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. Call Shutdown to release the rate limiter.
func NewServer(addr string, deps Deps) (*Server, error) {
	if deps.Reports == nil || deps.Reconciliation == nil {
		return nil, fmt.Errorf("http server needs report and reconciliation services")
	}
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	detector := security.NewDetector()
	for _, cidr := range deps.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}

	s := &Server{
		reports:   deps.Reports,
		recon:     deps.Reconciliation,
		logger:    applog.NewStructuredLogger(logger),
		now:       deps.Now,
		ready:     deps.Ready,
		maxUpload: deps.MaxUploadBytes,
		limiter:   ratelimit.NewLimiter(deps.RateLimit),
		detector:  detector,
		tracer:    trace.NewMiddleware(detector.ExtractClientIP, logger),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.maxUpload <= 0 {
		s.maxUpload = maxUploadFallback
	}
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = 7 * time.Second
	}

	r := chi.NewRouter()
	r.Use(applog.Middleware(logger))
	r.Use(s.tracer.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(detector.Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api/v1/schools/{schoolID}", func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		r.Use(s.limiter.Middleware(detector.ExtractClientIP, ratelimit.MutatingOnly, writeRateLimited))

		r.Group(func(r chi.Router) {
			r.Use(applog.ComponentMiddleware(applog.ComponentReport))
			r.Put("/records/{kind}", s.handleUpsertRecords)
			r.Get("/reports/{report}", s.handleReport)
			r.Get("/reports/{report}/export", s.handleExportCSV)
			r.Post("/reports/{report}/sheets", s.handleSheetsExport)
		})

		r.Group(func(r chi.Router) {
			r.Use(applog.ComponentMiddleware(applog.ComponentReconcile))
			r.Post("/bank-statements", s.handleImportStatement)
			r.Get("/reconciliation", s.handleReconciliation)
			r.Post("/reconciliation/propose", s.handlePropose)
			r.Put("/reconciliation/{bankTxnID}/link", s.handleLink)
			r.Delete("/reconciliation/{bankTxnID}/link", s.handleUnlink)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, fmt.Errorf("%w: no route for %s", errNoRoute, r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
			Error:     r.Method + " is not allowed on " + r.URL.Path,
			Type:      applog.ErrorTypeValidation,
			RequestID: trace.GetRequestID(r.Context()),
		})
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      timeout + 5*time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s, nil
}

// Shutdown gracefully shuts down the server and the limiter's cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			applog.FromContext(ctx).WarnContext(ctx, "Readiness check failed",
				applog.FieldComponent, applog.ComponentHTTP,
				applog.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
