package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthIndexAction handles the health check endpoint
func HealthIndexAction(ctx *fiber.Ctx) error {
	return ctx.JSON(HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
	})
}
