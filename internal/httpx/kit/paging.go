package kit

import (
	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
)

const maxOffset = 10000

// PagingParams contains offset pagination parameters from HTTP request
type PagingParams struct {
	Limit  int
	Offset int
}

// ParsePaging reads limit (clamped to 1..100, default 20) and offset.
// Offsets beyond the search engine's result window are rejected.
func ParsePaging(c *fiber.Ctx) (PagingParams, error) {
	p := PagingParams{
		Limit:  lo.Clamp(c.QueryInt("limit", 20), 1, 100),
		Offset: c.QueryInt("offset", 0),
	}
	if p.Offset < 0 || p.Offset+p.Limit > maxOffset {
		return p, BadRequest("invalid offset", c.Query("offset"))
	}
	return p, nil
}

// Meta builds PageMeta for a page of count items out of total.
func (p PagingParams) Meta(count, total int) PageMeta {
	m := PageMeta{Limit: p.Limit, Offset: p.Offset, Count: count, Total: lo.ToPtr(total)}
	if next := p.Offset + count; next < total {
		m.HasMore = true
		m.NextOffset = lo.ToPtr(next)
	}
	return m
}
