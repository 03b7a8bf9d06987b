package main

import (
	"context"
	"errors"
	"os"
	"time"

	"schoolfin/internal/cli"
	applog "schoolfin/internal/log"
	"schoolfin/internal/services"
	"schoolfin/internal/sheets"
	gsheet "schoolfin/internal/sheets/google"
	"schoolfin/internal/sheets/memory"
	"schoolfin/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentWorker)

	logger.Info("Starting schoolfin-worker")

	if !cfg.ExportsEnabled() {
		logger.Error("AMQP_URL is required by the export worker")
		os.Exit(1)
	}

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	be := cli.OpenBackend(bootCtx, logger.Logger, cfg)
	if be.Broker == nil {
		bootCancel()
		logger.Error("Failed to connect to AMQP broker")
		_ = be.Cleanup()
		os.Exit(1)
	}

	var writer sheets.TableWriter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(context.Background(), gsheet.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			bootCancel()
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			_ = be.Cleanup()
			os.Exit(1)
		}
		writer = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		writer = memory.New()
		logger.Warn("GOOGLE_SPREADSHEET_ID not set, exports are kept in memory only")
	}
	bootCancel()

	// The worker renders fresh tables; caching and queueing stay off.
	reports := services.NewReportService(be.Backend, nil, nil, cfg.ProductName)
	exportWorker := worker.NewExportWorker(reports, writer)

	ctx, done := cli.GracefulShutdown(logger.Logger, cfg.ShutdownTimeout, nil)

	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- be.Broker.ConsumeExportRequests(ctx, exportWorker.HandleExportRequest)
	}()

	exitCode := 0
	err := <-consumeErr
	if ctx.Err() != nil {
		logger.Info("Shutting down worker...")
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
		}
		<-done
	} else {
		logger.Error("Message consumption stopped", "error", err)
		exitCode = 1
	}

	if err := be.Cleanup(); err != nil {
		logger.Error("Backend cleanup error", "error", err)
	}
	logger.Info("Worker shutdown complete")
	os.Exit(exitCode)
}
