package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"planstore/internal/datastore"
	"planstore/internal/http/middleware"
	"planstore/internal/service"
)

// RouteOptions carries the process facts the routes depend on.
type RouteOptions struct {
	DataDir      string
	WebRoot      string
	LocalRuntime bool
	// Gatherer backs /metrics; nil leaves the endpoint unregistered.
	Gatherer prometheus.Gatherer
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Handlers only translate HTTP to service calls.
func RegisterRoutes(app *fiber.App, svc service.PlannerService, opts RouteOptions) {
	app.Get("/health", HealthCheck(opts.DataDir))
	app.Get("/healthz", LivenessProbe())
	if opts.Gatherer != nil {
		app.Get(middleware.MetricsPath, adaptor.HTTPHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api")
	api.Options("/*", Preflight())

	api.Get("/storage", GetStorage(svc))
	api.Put("/storage", PutStorage(svc))
	api.Get("/runtime", GetRuntime(svc))

	api.Get("/ha/areas", GetRegistry(svc, datastore.RegistryAreas))
	api.Get("/ha/floors", GetRegistry(svc, datastore.RegistryFloors))
	api.Get("/ha/devices", GetRegistry(svc, datastore.RegistryDevices))
	api.Put("/ha/device-name", UpdateDeviceName(svc))
	api.Put("/ha/device-area", UpdateDeviceArea(svc))

	api.Get("/export", ExportArchive(svc))
	api.Post("/import", ImportArchive(svc))
	api.Post("/backup", BackupArchive(svc))

	api.Post("/device-files/upload", UploadDeviceFile(svc))
	api.Get("/device-files/content", GetDeviceFileContent(svc))
	api.Put("/device-files/rename", RenameDeviceFile(svc))
	api.Delete("/device-files", DeleteDeviceFile(svc))

	debug := api.Group("/debug", middleware.LocalOnly(opts.LocalRuntime))
	debug.Get("/files", ListDataFiles(svc))
	debug.Get("/file", GetDataFile(svc))

	if opts.WebRoot != "" {
		app.Static("/", opts.WebRoot, fiber.Static{Index: "index.html"})
	}
}
