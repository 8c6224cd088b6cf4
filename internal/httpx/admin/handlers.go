// Package admin serves the JWT-protected visitor lookup endpoints.
package admin

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"visitor-beacon-api/internal/esx"
	"visitor-beacon-api/internal/httpx/kit"
	"visitor-beacon-api/internal/logx"
	"visitor-beacon-api/internal/visitor"
)

var adminLogger = logx.GetScope("httpx.admin")

// Searcher queries indexed visitor snapshots.
type Searcher interface {
	Search(ctx context.Context, query string, from, size int) (esx.SearchResult, error)
}

// VisitorGetter reads the authoritative visitor row.
type VisitorGetter interface {
	Get(ctx context.Context, id string) (*visitor.Visitor, error)
}

// SearchVisitorsHandler searches visitor snapshots, newest first.
//
//	@Summary		Search visitors
//	@Description	Full-text search over the latest visitor snapshots. Raw IPs are not indexed.
//	@Tags			admin
//	@Produce		json
//	@Security		BearerAuth
//	@Param			q		query		string	false	"Search text"
//	@Param			limit	query		int		false	"Page size (1-100)"	default(20)
//	@Param			offset	query		int		false	"Offset"			default(0)
//	@Success		200		{object}	map[string]interface{}
//	@Failure		400		{object}	kit.APIError
//	@Failure		401		{object}	kit.APIError
//	@Failure		403		{object}	kit.APIError
//	@Failure		500		{object}	kit.APIError
//	@Router			/admin/visitors/search [get]
func SearchVisitorsHandler(s Searcher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		pg, err := kit.ParsePaging(c)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
		defer cancel()
		res, err := s.Search(ctx, c.Query("q"), pg.Offset, pg.Limit)
		if err != nil {
			adminLogger.Error("visitor search failed", zap.Error(err))
			return kit.InternalError("visitor search failed", nil)
		}
		return kit.List(c, res.Hits, pg.Meta(len(res.Hits), res.Total))
	}
}

// GetVisitorHandler returns the stored state of one visitor.
//
//	@Summary		Get visitor
//	@Tags			admin
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Visitor id"
//	@Success		200	{object}	visitor.Visitor
//	@Failure		401	{object}	kit.APIError
//	@Failure		403	{object}	kit.APIError
//	@Failure		404	{object}	kit.APIError
//	@Router			/admin/visitors/{id} [get]
func GetVisitorHandler(store VisitorGetter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
		defer cancel()
		v, err := store.Get(ctx, c.Params("id"))
		switch {
		case errors.Is(err, visitor.ErrNotFound):
			return kit.NotFound("visitor not found")
		case err != nil:
			return kit.InternalError("load visitor failed", nil)
		}
		return kit.OK(c, v)
	}
}
