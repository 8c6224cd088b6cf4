package visitor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"visitor-beacon-api/internal/classify"
)

const table = "visitors"

// Column order shared by the insert and the read-back.
var columns = []string{
	"visitor_id", "ip", "user_agent", "device_type", "browser", "os",
	"city", "country", "current_page",
	"referrer", "referrer_source", "referrer_domain",
	"utm_source", "utm_medium", "utm_campaign", "utm_content", "utm_term",
	"page_views", "bounced",
	"first_seen_ms", "session_start_ms", "last_seen_ms",
	"session_duration", "is_online",
}

// Overwritten on every event.
var volatileColumns = []string{
	"ip", "user_agent", "device_type", "browser", "os",
	"city", "country", "current_page", "is_online",
}

// Set by the first event that carries a value, kept afterwards.
var firstTouchColumns = []string{
	"referrer", "referrer_source", "referrer_domain",
	"utm_source", "utm_medium", "utm_campaign", "utm_content", "utm_term",
}

// last_seen never moves backwards, so a late beacon with an older clock
// cannot break session_start <= last_seen.
const latestSeen = "CASE WHEN excluded.last_seen_ms > visitors.last_seen_ms THEN excluded.last_seen_ms ELSE visitors.last_seen_ms END"

// Store persists visitor state through an ent SQL driver. It works on both
// PostgreSQL and SQLite.
type Store struct {
	drv *entsql.Driver
	now func() time.Time
}

func NewStore(drv *entsql.Driver) *Store {
	return &Store{drv: drv, now: time.Now}
}

// Record applies ev as a single INSERT ... ON CONFLICT DO UPDATE. Every
// derived field is computed by the database against the row as it is at
// write time, so concurrent events for one visitor never lose an increment.
// The stored state after the write is returned.
func (s *Store) Record(ctx context.Context, ev Event) (*Visitor, error) {
	if ev.VisitorID == "" {
		return nil, ErrMissingVisitorID
	}
	query, args := s.upsertQuery(ev, s.now())

	tx, err := s.drv.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin visitor tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("upsert visitor: %w", err)
	}
	v, err := s.get(ctx, tx, ev.VisitorID)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit visitor tx: %w", err)
	}
	return v, nil
}

func (s *Store) upsertQuery(ev Event, now time.Time) (string, []any) {
	ms := now.UnixMilli()
	inc := ev.Type.increment()
	return entsql.Dialect(s.drv.Dialect()).
		Insert(table).
		Columns(columns...).
		Values(
			ev.VisitorID, ev.IP, ev.UserAgent, ev.Agent.DeviceType, ev.Agent.Browser, ev.Agent.OS,
			ev.Location.City, ev.Location.CountryCode, ev.CurrentPage,
			nullable(ev.Referrer), nullable(ev.Source.Source), nullable(ev.Source.Domain),
			nullable(ev.UTM.Source), nullable(ev.UTM.Medium), nullable(ev.UTM.Campaign),
			nullable(ev.UTM.Content), nullable(ev.UTM.Term),
			inc, inc <= 1,
			ms, ms, ms,
			int64(0), true,
		).
		OnConflict(
			entsql.ConflictColumns("visitor_id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				for _, c := range volatileColumns {
					u.SetExcluded(c)
				}
				for _, c := range firstTouchColumns {
					u.Set(c, entsql.Expr(fmt.Sprintf("COALESCE(visitors.%s, excluded.%s)", c, c)))
				}
				// excluded.page_views holds this event's increment
				u.Set("page_views", entsql.Expr("visitors.page_views + excluded.page_views"))
				u.Set("bounced", entsql.Expr("(visitors.page_views + excluded.page_views) <= 1"))
				u.Set("last_seen_ms", entsql.Expr(latestSeen))
				u.Set("session_duration", entsql.Expr("(("+latestSeen+") - visitors.session_start_ms) / 1000"))
			}),
		).
		Query()
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Get returns the stored state of one visitor.
func (s *Store) Get(ctx context.Context, id string) (*Visitor, error) {
	return s.get(ctx, s.drv.DB(), id)
}

func (s *Store) get(ctx context.Context, q rowQuerier, id string) (*Visitor, error) {
	query, args := entsql.Dialect(s.drv.Dialect()).
		Select(columns...).
		From(entsql.Table(table)).
		Where(entsql.EQ("visitor_id", id)).
		Query()

	var (
		v                                 Visitor
		referrer, refSource, refDomain    sql.NullString
		utmSrc, utmMed, utmCamp, utmCont  sql.NullString
		utmTerm                           sql.NullString
		firstSeen, sessionStart, lastSeen int64
	)
	err := q.QueryRowContext(ctx, query, args...).Scan(
		&v.ID, &v.IP, &v.UserAgent, &v.DeviceType, &v.Browser, &v.OS,
		&v.City, &v.Country, &v.CurrentPage,
		&referrer, &refSource, &refDomain,
		&utmSrc, &utmMed, &utmCamp, &utmCont, &utmTerm,
		&v.PageViews, &v.Bounced,
		&firstSeen, &sessionStart, &lastSeen,
		&v.SessionDuration, &v.IsOnline,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load visitor: %w", err)
	}
	v.Referrer, v.ReferrerSource, v.ReferrerDomain = referrer.String, refSource.String, refDomain.String
	v.UTMSource, v.UTMMedium, v.UTMCampaign = utmSrc.String, utmMed.String, utmCamp.String
	v.UTMContent, v.UTMTerm = utmCont.String, utmTerm.String
	v.FirstSeen = time.UnixMilli(firstSeen).UTC()
	v.SessionStart = time.UnixMilli(sessionStart).UTC()
	v.LastSeen = time.UnixMilli(lastSeen).UTC()
	return &v, nil
}

// Online counts visitors whose last beacon falls within window, grouped by
// device type. It is recomputed from stored rows on every call.
func (s *Store) Online(ctx context.Context, window time.Duration) (Online, error) {
	now := s.now()
	out := Online{Timestamp: now.UTC()}

	query, args := entsql.Dialect(s.drv.Dialect()).
		Select("device_type", entsql.As(entsql.Count("*"), "n")).
		From(entsql.Table(table)).
		Where(entsql.GTE("last_seen_ms", now.Add(-window).UnixMilli())).
		GroupBy("device_type").
		Query()

	rows, err := s.drv.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return out, fmt.Errorf("query online visitors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			device string
			n      int64
		)
		if err := rows.Scan(&device, &n); err != nil {
			return Online{Timestamp: out.Timestamp}, fmt.Errorf("scan online visitors: %w", err)
		}
		out.Online += n
		switch device {
		case classify.DeviceDesktop:
			out.Desktop = n
		case classify.DeviceMobile:
			out.Mobile = n
		case classify.DeviceTablet:
			out.Tablet = n
		}
	}
	if err := rows.Err(); err != nil {
		return Online{Timestamp: out.Timestamp}, fmt.Errorf("iterate online visitors: %w", err)
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
