package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// apiCORSConfig is the CORS setup shared by the report API endpoints; the
// dashboards call them cross-origin.
var apiCORSConfig = cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,PUT,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization",
}

// Register mounts every route on the app.
func Register(app *fiber.App, stats *StatsHandler, endpoints *EndpointDocHandler) {
	app.Get("/healthz", HealthIndexAction)

	v1 := app.Group("/v1", cors.New(apiCORSConfig))
	v1.Post("/stats/:tid/:type/query", stats.StartQueryAction)
	v1.Post("/stats/:tid/:type/result", stats.QueryResultAction)
	v1.Get("/stats/:tid/files/:file/urls", stats.GraphURLsAction)
	v1.Get("/containers/:tid/endpoint_doc", endpoints.ShowAction)
	v1.Put("/containers/:tid/endpoint_doc", endpoints.UpdateAction)
}
