package httpx

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"visitor-beacon-api/internal/httpx/kit"
)

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler reports liveness plus the state of each configured dependency.
//
//	@Summary		Health check
//	@Description	Liveness and dependency status
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	map[string]interface{}	"healthy"
//	@Failure		503	{object}	map[string]interface{}	"a dependency is down"
//	@Router			/health [get]
func HealthHandler(checks ...HealthCheck) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if len(checks) == 0 {
			return kit.OK(c, fiber.Map{"status": "ok"})
		}
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		status := "ok"
		deps := make(fiber.Map, len(checks))
		for _, hc := range checks {
			if err := hc.Check(ctx); err != nil {
				httpxLogger.Warn("health check failed", zap.String("dependency", hc.Name), zap.Error(err))
				deps[hc.Name] = err.Error()
				status = "degraded"
				continue
			}
			deps[hc.Name] = "ok"
		}
		if status != "ok" {
			c.Status(fiber.StatusServiceUnavailable)
			return c.JSON(fiber.Map{"code": "E_UNAVAILABLE", "message": status, "data": fiber.Map{"status": status, "dependencies": deps}, "request_id": kit.RequestID(c)})
		}
		return kit.OK(c, fiber.Map{"status": status, "dependencies": deps})
	}
}
