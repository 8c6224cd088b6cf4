package geo

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

func TestCache_TTLAndEviction(t *testing.T) {
	c := NewCache(2, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	a := Location{City: "A", Country: "X", CountryCode: "AA"}
	c.Set("1.1.1.1", a)
	if got, ok := c.Get("1.1.1.1"); !ok || got != a {
		t.Fatalf("expected hit, got %+v %v", got, ok)
	}

	now = now.Add(time.Minute)
	if _, ok := c.Get("1.1.1.1"); ok {
		t.Fatalf("entry should expire at ttl")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should be dropped on read, len=%d", c.Len())
	}

	c.Set("a", a)
	c.Set("b", a)
	c.Get("a") // a is now most recent
	c.Set("c", a)
	if _, ok := c.Get("b"); ok {
		t.Fatalf("least recently used entry should be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("recently used entry evicted")
	}
	if c.Len() != 2 {
		t.Fatalf("len=%d", c.Len())
	}
}

func TestIsLocal(t *testing.T) {
	for _, ip := range []string{"", "unknown", "127.0.0.1", "::1", "10.1.2.3", "192.168.0.10", "172.16.4.4"} {
		if !IsLocal(ip) {
			t.Errorf("%q should be local", ip)
		}
	}
	for _, ip := range []string{"8.8.8.8", "2a00:1450::1", "garbage"} {
		if IsLocal(ip) {
			t.Errorf("%q should not be local", ip)
		}
	}
}

type upstream struct {
	srv   *httptest.Server
	calls atomic.Int32
}

func newUpstream(t *testing.T, h http.HandlerFunc) *upstream {
	t.Helper()
	u := &upstream{}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("fields") != "status,country,countryCode,city" {
		http.Error(w, "bad fields", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"success","country":"Germany","countryCode":"DE","city":"Berlin"}`))
}

func TestResolve_PrivateIPNeverCallsUpstream(t *testing.T) {
	up := newUpstream(t, okHandler)
	r := NewResolver(Options{BaseURL: up.srv.URL})

	for i := 0; i < 20; i++ {
		loc := r.Resolve(context.Background(), "127.0.0.1")
		if loc.Country != "Georgia" || loc.CountryCode != "GE" {
			t.Fatalf("unexpected placeholder %+v", loc)
		}
		if !lo.Contains(LocalCities, loc.City) {
			t.Fatalf("city %q not from candidate list", loc.City)
		}
	}
	if n := up.calls.Load(); n != 0 {
		t.Fatalf("expected zero upstream calls, got %d", n)
	}
}

func TestResolve_CachesSuccess(t *testing.T) {
	up := newUpstream(t, okHandler)
	r := NewResolver(Options{BaseURL: up.srv.URL})

	want := Location{City: "Berlin", Country: "Germany", CountryCode: "DE"}
	for i := 0; i < 3; i++ {
		if got := r.Resolve(context.Background(), "8.8.8.8"); got != want {
			t.Fatalf("got %+v", got)
		}
	}
	if n := up.calls.Load(); n != 1 {
		t.Fatalf("expected one upstream call, got %d", n)
	}
}

func TestResolve_FailuresDegradeToUnknown(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status 500": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"fail status": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"status":"fail","message":"reserved range"}`))
		},
		"malformed": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"status":`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			up := newUpstream(t, h)
			r := NewResolver(Options{BaseURL: up.srv.URL})
			if got := r.Resolve(context.Background(), "8.8.4.4"); got != Unknown {
				t.Fatalf("got %+v", got)
			}
			// failures are not cached
			r.Resolve(context.Background(), "8.8.4.4")
			if n := up.calls.Load(); n != 2 {
				t.Fatalf("calls=%d", n)
			}
		})
	}
}

func TestResolve_TimeoutBoundsTheCall(t *testing.T) {
	release := make(chan struct{})
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	r := NewResolver(Options{BaseURL: up.srv.URL, Timeout: 50 * time.Millisecond})
	start := time.Now()
	if got := r.Resolve(context.Background(), "1.2.3.4"); got != Unknown {
		t.Fatalf("got %+v", got)
	}
	if el := time.Since(start); el > 2*time.Second {
		t.Fatalf("lookup not bounded by timeout: %s", el)
	}
}

func TestResolve_RedisTierSharedAcrossResolvers(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	up := newUpstream(t, okHandler)
	first := NewResolver(Options{BaseURL: up.srv.URL, Redis: rdb, CacheTTL: time.Hour})
	first.Resolve(context.Background(), "9.9.9.9")

	if !mr.Exists("geo:9.9.9.9") {
		t.Fatalf("expected redis key to be written")
	}
	if ttl := mr.TTL("geo:9.9.9.9"); ttl != time.Hour {
		t.Fatalf("ttl=%s", ttl)
	}

	second := NewResolver(Options{BaseURL: up.srv.URL, Redis: rdb})
	got := second.Resolve(context.Background(), "9.9.9.9")
	if got.City != "Berlin" {
		t.Fatalf("got %+v", got)
	}
	if n := up.calls.Load(); n != 1 {
		t.Fatalf("second resolver should hit redis, upstream calls=%d", n)
	}
}

// silentRedis accepts connections and never answers.
func silentRedis(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	var conns []net.Conn
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, c)
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		<-done
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return ln.Addr().String()
}

func TestResolve_TimeoutCoversRedisTier(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:                  silentRedis(t),
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ContextTimeoutEnabled: true,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	release := make(chan struct{})
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	r := NewResolver(Options{BaseURL: up.srv.URL, Redis: rdb, Timeout: 200 * time.Millisecond})
	start := time.Now()
	if got := r.Resolve(context.Background(), "5.6.7.8"); got != Unknown {
		t.Fatalf("got %+v", got)
	}
	if el := time.Since(start); el > time.Second {
		t.Fatalf("redis and upstream together exceeded the lookup bound: %s", el)
	}
}
