package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"schoolfin/internal/cache"
	"schoolfin/internal/cli"
	apphttp "schoolfin/internal/http"
	applog "schoolfin/internal/log"
	"schoolfin/internal/middleware/ratelimit"
	"schoolfin/internal/reconcile"
	"schoolfin/internal/report"
	"schoolfin/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentApp)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	be := cli.OpenBackend(bootCtx, logger.Logger, cfg)
	bootCancel()

	// Typed nils must not reach the services' nil checks.
	var (
		events  services.EventPublisher
		exports services.ExportPublisher
	)
	if be.Broker != nil {
		events, exports = be.Broker, be.Broker
	} else if cfg.ExportsEnabled() {
		logger.Warn("AMQP unreachable at startup, match events and spreadsheet exports disabled")
	}

	var reportCache cache.Cache[report.Result]
	cacheManager := cache.NewManager()
	if cfg.ReportCacheSize > 0 {
		lru := cache.NewLRUCache[report.Result](cfg.ReportCacheSize, cfg.ReportCacheTTL)
		cacheManager.Register(lru)
		cacheManager.StartCleanup(cfg.ReportCacheTTL)
		reportCache = lru
	}

	matcher := reconcile.DefaultConfig()
	matcher.DateToleranceDays = cfg.MatchDateToleranceDays
	matcher.ConflictMargin = cfg.MatchConflictMargin

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Reports:        services.NewReportService(be.Backend, reportCache, exports, cfg.ProductName),
		Reconciliation: services.NewReconciliationService(be.Backend, events, matcher),
		Logger:         logger.WithComponent(applog.ComponentHTTP),
		Now:            time.Now,
		Ready:          be.Backend.Ping,
		RateLimit: ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitPerMinute,
			CleanupInterval:   5 * time.Minute,
		},
		RequestTimeout: cfg.RequestTimeout,
		MaxUploadBytes: cfg.MaxUploadBytes,
		TrustedProxies: cfg.TrustedProxies,
	})
	if err != nil {
		logger.Error("Failed to build HTTP server", "error", err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger.Logger, cfg.ShutdownTimeout, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cacheManager.Stop()
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Starting schoolfin server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp_enabled", be.Broker != nil,
		"report_cache", cfg.ReportCacheSize)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	<-done
	logger.Info("Server stopped gracefully")
}
