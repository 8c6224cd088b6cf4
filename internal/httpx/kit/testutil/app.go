package testutil

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"visitor-beacon-api/internal/httpx/kit"
)

// NewApp creates a Fiber app with the shared config and request ids, then
// applies the given mount functions to register selective routes. Useful
// for tests.
func NewApp(mounts ...func(*fiber.App)) *fiber.App {
	app := fiber.New(kit.Config())
	app.Use(requestid.New())
	for _, m := range mounts {
		if m != nil {
			m(app)
		}
	}
	return app
}
