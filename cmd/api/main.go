package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"planstore/internal/archive"
	"planstore/internal/backup"
	"planstore/internal/bridge"
	"planstore/internal/config"
	"planstore/internal/datastore"
	handlers "planstore/internal/http/handler"
	"planstore/internal/http/middleware"
	"planstore/internal/logging"
	"planstore/internal/otel"
	"planstore/internal/service"
	"planstore/internal/storage"
)

func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	logger := logging.New(os.Stdout, cfg.Location)
	slog.SetDefault(logger)

	mode := "PRODUCTION"
	if cfg.IsLocalRuntime() {
		mode = "LOCAL DEVELOPMENT"
	}
	logger.Info("runtime_detected", "hostname", cfg.Hostname, "mode", mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, logger)
	if err != nil {
		logger.Error("tracing_init_failed", "error", err.Error())
		os.Exit(1)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	dataDir := cfg.Storage.DataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		logger.Error("data_dir_unavailable", "path", dataDir, "error", err.Error())
		os.Exit(1)
	}

	docs := datastore.NewDocumentStore(cfg.Storage.DataFile)
	files := datastore.NewDeviceFiles(dataDir, datastore.NewRandomNames())

	deps := service.Deps{
		Documents:  docs,
		Registries: datastore.NewRegistries(cfg.Storage.AreasFile(), cfg.Storage.FloorsFile(), cfg.Storage.DevicesFile()),
		Files:      files,
		Exporter:   archive.NewExporter(docs.Path(), files, cfg.Storage.TempDir),
		Importer:   archive.NewImporter(docs, files, cfg.Storage.TempDir, cfg.Storage.MaxImportExpandedBytes),
		Bridge:     bridge.NewClient(cfg.Bridge.NodeBin, cfg.Bridge.Script, cfg.Bridge.Timeout),
		Logger:     logger,
	}

	// Remote backups are optional; the planner works fully offline without them.
	if cfg.MinIO.Enabled() {
		objStore, err := storage.NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			logger.Error("object_storage_init_failed", "endpoint", cfg.MinIO.Endpoint, "error", err.Error())
			os.Exit(1)
		}
		deps.Backups = backup.NewUploader(objStore, cfg.Backup.Prefix, cfg.Backup.URLExpiry)
	}

	svc := service.NewPlannerService(service.Config{
		DataDir:        dataDir,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		MaxImportBytes: cfg.Storage.MaxImportBytes,
		Hostname:       cfg.Hostname,
		LocalRuntime:   cfg.IsLocalRuntime(),
	}, deps)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMiddleware, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		logger.Error("metrics_init_failed", "error", err.Error())
		os.Exit(1)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          handlers.ErrorHandler(),
		BodyLimit:             int(max(cfg.Storage.MaxImportBytes, cfg.Storage.MaxUploadBytes)),
		DisableStartupMessage: true,
	})

	app.Use(otelfiber.Middleware())
	app.Use(middleware.RequestID())
	app.Use(middleware.AccessLog(logger))
	app.Use(promMiddleware.Handler())

	handlers.RegisterRoutes(app, svc, handlers.RouteOptions{
		DataDir:      dataDir,
		WebRoot:      cfg.WebRoot,
		LocalRuntime: cfg.IsLocalRuntime(),
		Gatherer:     reg,
	})

	go func() {
		<-ctx.Done()
		logger.Info("shutting_down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.ShutdownWithContext(sctx)
	}()

	logger.Info("listening", "addr", cfg.Addr(), "data_file", cfg.Storage.DataFile)
	if err := app.Listen(cfg.Addr()); err != nil {
		logger.Error("server_failed", "error", err.Error())
		os.Exit(1)
	}
}
