package visitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"visitor-beacon-api/internal/classify"
	"visitor-beacon-api/internal/db/dbtest"
	"visitor-beacon-api/internal/geo"
)

const uaDesktop = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestStore(t *testing.T) (*Store, *clock) {
	t.Helper()
	c := &clock{t: time.UnixMilli(1_760_000_000_000)}
	st := NewStore(dbtest.New(t))
	st.now = c.now
	return st, c
}

func newEvent(id string, typ EventType, referrer, page string) Event {
	return Event{
		VisitorID:   id,
		Type:        typ,
		IP:          "8.8.8.8",
		UserAgent:   uaDesktop,
		CurrentPage: page,
		Referrer:    referrer,
		Agent:       classify.ParseUserAgent(uaDesktop),
		Source:      classify.ClassifySource(referrer, page),
		UTM:         classify.ExtractUTM(page),
		Location:    geo.Location{City: "Berlin", Country: "Germany", CountryCode: "DE"},
	}
}

func mustRecord(t *testing.T, st *Store, ev Event) *Visitor {
	t.Helper()
	v, err := st.Record(context.Background(), ev)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	return v
}

func TestRecord_FirstPageview(t *testing.T) {
	st, c := newTestStore(t)
	v := mustRecord(t, st, newEvent("v1", EventPageview, "", "https://site.ge/"))

	if v.PageViews != 1 || !v.Bounced {
		t.Fatalf("pageViews=%d bounced=%v", v.PageViews, v.Bounced)
	}
	if !v.FirstSeen.Equal(c.t) || !v.SessionStart.Equal(v.FirstSeen) || !v.LastSeen.Equal(v.FirstSeen) {
		t.Fatalf("timestamps differ: %s %s %s", v.FirstSeen, v.SessionStart, v.LastSeen)
	}
	if v.SessionDuration != 0 || !v.IsOnline {
		t.Fatalf("duration=%d online=%v", v.SessionDuration, v.IsOnline)
	}
	if v.Country != "DE" || v.City != "Berlin" || v.DeviceType != classify.DeviceDesktop {
		t.Fatalf("unexpected enrichment %+v", v)
	}
	if v.ReferrerSource != classify.SourceDirect || v.ReferrerDomain != "" {
		t.Fatalf("source=%q domain=%q", v.ReferrerSource, v.ReferrerDomain)
	}
}

func TestRecord_SecondPageviewClearsBounce(t *testing.T) {
	st, c := newTestStore(t)
	first := mustRecord(t, st, newEvent("v1", EventPageview, "", "https://site.ge/"))

	c.t = c.t.Add(90 * time.Second)
	next := newEvent("v1", EventPageview, "", "https://site.ge/blog")
	next.Location = geo.Location{City: "Tbilisi", Country: "Georgia", CountryCode: "GE"}
	v := mustRecord(t, st, next)

	if v.PageViews != 2 || v.Bounced {
		t.Fatalf("pageViews=%d bounced=%v", v.PageViews, v.Bounced)
	}
	if v.SessionDuration != 90 {
		t.Fatalf("duration=%d", v.SessionDuration)
	}
	if !v.FirstSeen.Equal(first.FirstSeen) || !v.SessionStart.Equal(first.SessionStart) {
		t.Fatalf("first-seen fields must not move")
	}
	if !v.LastSeen.Equal(c.t) {
		t.Fatalf("lastSeen=%s want %s", v.LastSeen, c.t)
	}
	if v.CurrentPage != "https://site.ge/blog" || v.Country != "GE" || v.City != "Tbilisi" {
		t.Fatalf("volatile fields not overwritten: %+v", v)
	}
}

func TestRecord_HeartbeatKeepsCounters(t *testing.T) {
	st, c := newTestStore(t)
	mustRecord(t, st, newEvent("v1", EventPageview, "", "https://site.ge/"))

	for i := 0; i < 3; i++ {
		c.t = c.t.Add(30 * time.Second)
		v := mustRecord(t, st, newEvent("v1", EventHeartbeat, "", "https://site.ge/"))
		if v.PageViews != 1 || !v.Bounced {
			t.Fatalf("heartbeat %d changed counters: %d %v", i, v.PageViews, v.Bounced)
		}
		if !v.LastSeen.Equal(c.t) {
			t.Fatalf("heartbeat should refresh lastSeen")
		}
	}

	// a heartbeat for an unseen visitor creates it with no pageviews
	v := mustRecord(t, st, newEvent("v2", EventHeartbeat, "", "https://site.ge/"))
	if v.PageViews != 0 || !v.Bounced {
		t.Fatalf("fresh heartbeat: %d %v", v.PageViews, v.Bounced)
	}
}

func TestRecord_FirstTouchAttribution(t *testing.T) {
	st, _ := newTestStore(t)
	mustRecord(t, st, newEvent("v1", EventPageview, "https://facebook.com/x", "https://site.ge/?utm_source=fb&utm_campaign=spring"))
	v := mustRecord(t, st, newEvent("v1", EventPageview, "https://google.com/y", "https://site.ge/?utm_source=google&utm_medium=organic&utm_campaign=other"))

	if v.ReferrerSource != classify.SourceSocial || v.ReferrerDomain != "facebook.com" {
		t.Fatalf("attribution overwritten: %q %q", v.ReferrerSource, v.ReferrerDomain)
	}
	if v.Referrer != "https://facebook.com/x" {
		t.Fatalf("referrer=%q", v.Referrer)
	}
	if v.UTMSource != "fb" || v.UTMCampaign != "spring" {
		t.Fatalf("utm overwritten: %+v", v)
	}
	// medium was absent on the first event, so the first value seen sticks
	if v.UTMMedium != "organic" {
		t.Fatalf("utm_medium=%q", v.UTMMedium)
	}
}

func TestRecord_PaidFromUTM(t *testing.T) {
	st, _ := newTestStore(t)
	v := mustRecord(t, st, newEvent("v1", EventPageview, "https://facebook.com/x", "https://site.ge/?utm_medium=cpc"))
	if v.ReferrerSource != classify.SourcePaid || v.ReferrerDomain != "" {
		t.Fatalf("source=%q domain=%q", v.ReferrerSource, v.ReferrerDomain)
	}
}

func TestRecord_LastSeenNeverMovesBack(t *testing.T) {
	st, c := newTestStore(t)
	mustRecord(t, st, newEvent("v1", EventPageview, "", ""))
	latest := c.t

	c.t = c.t.Add(-10 * time.Second)
	v := mustRecord(t, st, newEvent("v1", EventHeartbeat, "", ""))
	if !v.LastSeen.Equal(latest) || v.SessionStart.After(v.LastSeen) {
		t.Fatalf("lastSeen=%s sessionStart=%s", v.LastSeen, v.SessionStart)
	}
}

func TestRecord_MissingVisitorID(t *testing.T) {
	st, _ := newTestStore(t)
	if _, err := st.Record(context.Background(), newEvent("", EventPageview, "", "")); !errors.Is(err, ErrMissingVisitorID) {
		t.Fatalf("err=%v", err)
	}
	if _, err := st.Get(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
}

// SQLite runs on one connection here, so these writes are serialized. The
// postgres integration test in internal/db covers truly parallel upserts.
func TestRecord_ConcurrentPageviews(t *testing.T) {
	st, _ := newTestStore(t)
	const n = 25

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := st.Record(context.Background(), newEvent("tabs", EventPageview, "", "")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent record: %v", err)
	}

	v, err := st.Get(context.Background(), "tabs")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v.PageViews != n || v.Bounced {
		t.Fatalf("pageViews=%d bounced=%v", v.PageViews, v.Bounced)
	}
}

func TestUpsertQuery_IncrementsInOneStatement(t *testing.T) {
	st, c := newTestStore(t)
	query, _ := st.upsertQuery(newEvent("tabs", EventPageview, "", ""), c.t)

	for _, want := range []string{
		"ON CONFLICT",
		"visitors.page_views + excluded.page_views",
		"(visitors.page_views + excluded.page_views) <= 1",
	} {
		if !strings.Contains(query, want) {
			t.Fatalf("query missing %q:\n%s", want, query)
		}
	}
	// no read-modify-write: the counter is never selected before the write
	if strings.Contains(strings.ToUpper(query), "SELECT") {
		t.Fatalf("upsert must be a single statement:\n%s", query)
	}
}

func TestOnline_WindowAndBreakdown(t *testing.T) {
	st, c := newTestStore(t)
	now := c.t

	seen := []struct {
		id  string
		ago time.Duration
		ua  string
	}{
		{"a", time.Minute, uaDesktop},
		{"b", 6 * time.Minute, uaDesktop},
		{"c", 4 * time.Minute, "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) Mobile Safari"},
	}
	for _, s := range seen {
		c.t = now.Add(-s.ago)
		ev := newEvent(s.id, EventPageview, "", "")
		ev.Agent = classify.ParseUserAgent(s.ua)
		mustRecord(t, st, ev)
	}

	c.t = now
	got, err := st.Online(context.Background(), 5*time.Minute)
	if err != nil {
		t.Fatalf("online: %v", err)
	}
	if got.Online != 2 || got.Desktop != 1 || got.Mobile != 1 || got.Tablet != 0 {
		t.Fatalf("unexpected online %+v", got)
	}
	if !got.Timestamp.Equal(now) {
		t.Fatalf("timestamp=%s", got.Timestamp)
	}
}

func TestOnline_Empty(t *testing.T) {
	st, _ := newTestStore(t)
	got, err := st.Online(context.Background(), 5*time.Minute)
	if err != nil {
		t.Fatalf("online: %v", err)
	}
	if got.Online != 0 {
		t.Fatalf("%+v", got)
	}
}

