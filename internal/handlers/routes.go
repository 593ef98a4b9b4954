package handlers

import "github.com/gofiber/fiber/v2"

// RegisterRoutes mounts the read-only API and the sync history page
func RegisterRoutes(app *fiber.App, bills BillReader, snapshots SnapshotReader, metrics MetricsCalculator) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.Redirect("/sync")
	})
	app.Get("/sync", SyncHistoryHandler(snapshots))

	api := app.Group("/api")

	// Bill routes
	api.Get("/bills", BillsHandler(bills))
	api.Get("/bills/:id", BillDetailHandler(bills))

	// Congress and sync status
	api.Get("/congress/latest", LatestCongressHandler(bills))
	api.Get("/sync/latest", LatestSyncHandler(snapshots))
	api.Get("/stats", StatsHandler(metrics))
}
