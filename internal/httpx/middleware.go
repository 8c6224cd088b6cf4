package httpx

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"visitor-beacon-api/internal/httpx/kit"
	"visitor-beacon-api/internal/logx"
	"visitor-beacon-api/internal/metrics"
	"visitor-beacon-api/pkg"
)

var httpxLogger = logx.GetScope("httpx")

// RegisterCommonMiddlewares registers recovery, request ids, CORS, timing
// headers, request metrics and a structured access log.
func RegisterCommonMiddlewares(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	// beacons are sent cross-origin from every page of the site
	app.Use(cors.New())

	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			// render now so the logged status matches what the client sees
			if herr := app.ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		latency := time.Since(start)
		status := c.Response().StatusCode()

		c.Set("X-Response-Time", pkg.FormatLatency(latency))
		c.Set("Server-Timing", fmt.Sprintf("app;dur=%.2f", float64(latency.Microseconds())/1000))
		metrics.HTTPRequestDuration.
			WithLabelValues(c.Method(), c.Route().Path, strconv.Itoa(status)).
			Observe(latency.Seconds())

		httpxLogger.Info("access",
			zap.String("method", c.Method()),
			zap.String("path", c.OriginalURL()),
			zap.Int("status", status),
			zap.Int64("latency_ms", latency.Milliseconds()),
			zap.String("ip", kit.ClientIP(c)),
			zap.String("ua", c.Get(fiber.HeaderUserAgent)),
			zap.String("request_id", kit.RequestID(c)),
		)
		return nil
	})
}
