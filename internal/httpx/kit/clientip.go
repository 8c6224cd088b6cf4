package kit

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// UnknownIP is reported when no client address header is present.
const UnknownIP = "unknown"

// ClientIP returns the first X-Forwarded-For hop, else X-Real-IP, else
// "unknown". The result is a copy and stays valid after the handler returns.
func ClientIP(c *fiber.Ctx) string {
	if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return utils.CopyString(ip)
		}
	}
	if ip := strings.TrimSpace(c.Get("X-Real-IP")); ip != "" {
		return utils.CopyString(ip)
	}
	return UnknownIP
}
