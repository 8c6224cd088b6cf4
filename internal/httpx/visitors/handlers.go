// Package visitors serves the beacon ingestion and online-count endpoints.
package visitors

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"visitor-beacon-api/internal/httpx/kit"
	"visitor-beacon-api/internal/logx"
	"visitor-beacon-api/internal/visitor"
)

var visitorsLogger = logx.GetScope("httpx.visitors")

// Service is the part of visitor.Service the handlers need.
type Service interface {
	Ingest(ctx context.Context, b visitor.Beacon) (visitor.Result, error)
	Online(ctx context.Context) (visitor.Online, error)
}

// IngestRequest is the beacon body sent by the site's pages.
type IngestRequest struct {
	VisitorID   string `json:"visitorId"`
	CurrentPage string `json:"currentPage"`
	Referrer    string `json:"referrer"`
	Type        string `json:"type" enums:"pageview,heartbeat"`
}

// IngestVisitor is the visitor summary echoed back to the page.
type IngestVisitor struct {
	ID         string `json:"id"`
	City       string `json:"city"`
	Country    string `json:"country"`
	DeviceType string `json:"deviceType"`
}

type IngestResponse struct {
	Success bool           `json:"success"`
	Ignored bool           `json:"ignored,omitempty"`
	Visitor *IngestVisitor `json:"visitor,omitempty"`
}

type OnlineResponse struct {
	Online    int64  `json:"online"`
	Desktop   int64  `json:"desktop"`
	Mobile    int64  `json:"mobile"`
	Tablet    int64  `json:"tablet"`
	Timestamp string `json:"timestamp"`
}

// IngestHandler records a pageview or heartbeat beacon.
//
//	@Summary		Record a visitor beacon
//	@Description	Upserts the visitor's session state. Crawlers are acknowledged and ignored.
//	@Tags			visitors
//	@Accept			json
//	@Produce		json
//	@Param			body	body		IngestRequest	true	"Beacon"
//	@Success		200		{object}	IngestResponse
//	@Failure		400		{object}	kit.APIError
//	@Failure		429		{object}	kit.APIError
//	@Failure		500		{object}	kit.APIError
//	@Router			/visitors [post]
func IngestHandler(svc Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body IngestRequest
		if err := c.BodyParser(&body); err != nil {
			return kit.BadRequest("invalid request body", nil)
		}
		res, err := svc.Ingest(c.Context(), visitor.Beacon{
			VisitorID:   body.VisitorID,
			CurrentPage: body.CurrentPage,
			Referrer:    body.Referrer,
			Type:        body.Type,
			IP:          kit.ClientIP(c),
			UserAgent:   c.Get(fiber.HeaderUserAgent),
		})
		switch {
		case errors.Is(err, visitor.ErrMissingVisitorID), errors.Is(err, visitor.ErrInvalidEventType):
			return kit.BadRequest(err.Error(), nil)
		case err != nil:
			return kit.InternalError("failed to record visitor", nil)
		}
		if res.Ignored {
			return c.JSON(IngestResponse{Success: true, Ignored: true})
		}
		v := res.Visitor
		return c.JSON(IngestResponse{
			Success: true,
			Visitor: &IngestVisitor{ID: v.ID, City: v.City, Country: v.Country, DeviceType: v.DeviceType},
		})
	}
}

// OnlineHandler counts visitors seen within the online window. Storage
// failures degrade to a zero count rather than an error status.
//
//	@Summary		Online visitors
//	@Description	Visitors seen within the online window, by device type
//	@Tags			visitors
//	@Produce		json
//	@Success		200	{object}	OnlineResponse
//	@Router			/visitors/online [get]
func OnlineHandler(svc Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		out, err := svc.Online(c.Context())
		if err != nil {
			visitorsLogger.Error("online count failed", zap.Error(err))
			return c.JSON(fiber.Map{"online": 0, "error": "failed to count online visitors"})
		}
		return c.JSON(OnlineResponse{
			Online:    out.Online,
			Desktop:   out.Desktop,
			Mobile:    out.Mobile,
			Tablet:    out.Tablet,
			Timestamp: out.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}
}
