package visitors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"visitor-beacon-api/internal/db/dbtest"
	"visitor-beacon-api/internal/geo"
	"visitor-beacon-api/internal/httpx/kit/testutil"
	"visitor-beacon-api/internal/visitor"
)

const (
	chromeMac  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	iphoneUA   = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148 Safari/604.1"
	googlebot  = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
	pageviewJS = `{"visitorId":"v1","currentPage":"https://example.com/blog","referrer":"https://www.facebook.com/"}`
)

type recordingGeo struct {
	mu  sync.Mutex
	ips []string
}

func (g *recordingGeo) Resolve(_ context.Context, ip string) geo.Location {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ips = append(g.ips, ip)
	return geo.Location{City: "Berlin", Country: "Germany", CountryCode: "DE"}
}

type fixture struct {
	app   *fiber.App
	geo   *recordingGeo
	store *visitor.Store
	close func()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	drv := dbtest.New(t)
	store := visitor.NewStore(drv)
	g := &recordingGeo{}
	svc := visitor.NewService(store, g, visitor.Options{})
	app := testutil.NewApp(func(app *fiber.App) {
		app.Post("/visitors", IngestHandler(svc))
		app.Get("/visitors/online", OnlineHandler(svc))
	})
	return &fixture{app: app, geo: g, store: store, close: func() { _ = drv.Close() }}
}

func (f *fixture) post(t *testing.T, body, ua string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/visitors", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", ua)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return f.do(t, req)
}

func (f *fixture) do(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	res, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var out map[string]any
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return res, out
}

func TestIngest_RecordsVisitor(t *testing.T) {
	f := newFixture(t)
	res, body := f.post(t, pageviewJS, chromeMac, map[string]string{
		"X-Forwarded-For": "203.0.113.9, 10.0.0.1",
		"X-Real-IP":       "198.51.100.7",
	})
	if res.StatusCode != http.StatusOK || body["success"] != true {
		t.Fatalf("status=%d body=%v", res.StatusCode, body)
	}
	v, _ := body["visitor"].(map[string]any)
	if v["id"] != "v1" || v["city"] != "Berlin" || v["country"] != "DE" || v["deviceType"] != "desktop" {
		t.Fatalf("visitor=%v", v)
	}
	if _, ok := body["ignored"]; ok {
		t.Fatalf("ignored must be absent: %v", body)
	}
	if len(f.geo.ips) != 1 || f.geo.ips[0] != "203.0.113.9" {
		t.Fatalf("resolved ips=%v", f.geo.ips)
	}

	stored, err := f.store.Get(context.Background(), "v1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.ReferrerSource != "social" || stored.ReferrerDomain != "facebook.com" || stored.PageViews != 1 || !stored.Bounced {
		t.Fatalf("stored=%+v", stored)
	}
}

func TestIngest_ClientIPFallbacks(t *testing.T) {
	f := newFixture(t)
	f.post(t, pageviewJS, chromeMac, map[string]string{"X-Real-IP": "198.51.100.7"})
	f.post(t, pageviewJS, chromeMac, nil)
	if len(f.geo.ips) != 2 || f.geo.ips[0] != "198.51.100.7" || f.geo.ips[1] != "unknown" {
		t.Fatalf("resolved ips=%v", f.geo.ips)
	}
}

func TestIngest_BotIgnored(t *testing.T) {
	f := newFixture(t)
	res, body := f.post(t, pageviewJS, googlebot, nil)
	if res.StatusCode != http.StatusOK || body["success"] != true || body["ignored"] != true {
		t.Fatalf("status=%d body=%v", res.StatusCode, body)
	}
	if _, ok := body["visitor"]; ok {
		t.Fatalf("bot response must not carry a visitor: %v", body)
	}
	if _, err := f.store.Get(context.Background(), "v1"); err == nil {
		t.Fatalf("bot beacon created a record")
	}
}

func TestIngest_BadRequests(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		body string
	}{
		{"missing id", `{"currentPage":"https://example.com/"}`},
		{"blank id", `{"visitorId":"  "}`},
		{"unknown type", `{"visitorId":"v1","type":"click"}`},
		{"malformed", `{"visitorId":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, body := f.post(t, tc.body, chromeMac, nil)
			if res.StatusCode != http.StatusBadRequest {
				t.Fatalf("status=%d body=%v", res.StatusCode, body)
			}
			if msg, _ := body["error"].(string); msg == "" {
				t.Fatalf("missing error message: %v", body)
			}
		})
	}
	if len(f.geo.ips) != 0 {
		t.Fatalf("invalid beacons must not be enriched")
	}
}

func TestIngest_StorageFailure(t *testing.T) {
	f := newFixture(t)
	f.close()
	res, body := f.post(t, pageviewJS, chromeMac, nil)
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status=%d body=%v", res.StatusCode, body)
	}
	if msg, _ := body["error"].(string); msg == "" {
		t.Fatalf("missing error message: %v", body)
	}
}

func TestOnline(t *testing.T) {
	f := newFixture(t)
	f.post(t, `{"visitorId":"a","currentPage":"https://example.com/"}`, chromeMac, nil)
	f.post(t, `{"visitorId":"b","currentPage":"https://example.com/"}`, iphoneUA, nil)
	f.post(t, `{"visitorId":"b","type":"heartbeat"}`, iphoneUA, nil)

	res, body := f.do(t, httptest.NewRequest(http.MethodGet, "/visitors/online", nil))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", res.StatusCode)
	}
	if body["online"] != float64(2) || body["desktop"] != float64(1) || body["mobile"] != float64(1) || body["tablet"] != float64(0) {
		t.Fatalf("body=%v", body)
	}
	if ts, _ := body["timestamp"].(string); !strings.HasSuffix(ts, "Z") {
		t.Fatalf("timestamp=%v", body["timestamp"])
	}
}

func TestOnline_StorageFailureDegrades(t *testing.T) {
	f := newFixture(t)
	f.close()
	res, body := f.do(t, httptest.NewRequest(http.MethodGet, "/visitors/online", nil))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", res.StatusCode)
	}
	if body["online"] != float64(0) || body["error"] == nil {
		t.Fatalf("body=%v", body)
	}
}
