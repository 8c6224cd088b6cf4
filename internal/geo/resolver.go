// Package geo resolves client IPs to an approximate city and country.
// Resolution never fails: private addresses get a local placeholder and any
// upstream problem yields the Unknown location.
package geo

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"visitor-beacon-api/internal/logx"
	"visitor-beacon-api/internal/metrics"
)

var geoLogger = logx.GetScope("geo")

// Location is the resolved position of an IP.
type Location struct {
	City        string `json:"city"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
}

// Unknown is returned whenever a public IP cannot be resolved.
var Unknown = Location{City: "Unknown", Country: "Unknown", CountryCode: "XX"}

// LocalCities are the candidates for private and loopback addresses, so local
// traffic still carries plausible geo data.
var LocalCities = []string{"Tbilisi", "Batumi", "Kutaisi", "Rustavi", "Zugdidi", "Gori", "Poti", "Telavi"}

const (
	localCountry     = "Georgia"
	localCountryCode = "GE"
	redisKeyPrefix   = "geo:"
	breakerName      = "geo-lookup"
)

var errRejected = errors.New("geo: lookup rejected by upstream")

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	CacheTTL   time.Duration
	CacheSize  int
	HTTPClient *http.Client
	// Redis is an optional second cache tier shared between instances.
	Redis redis.Cmdable
}

type Resolver struct {
	baseURL string
	timeout atomic.Int64
	client  *http.Client
	cache   *Cache
	rdb     redis.Cmdable
	cb      *gobreaker.CircuitBreaker[Location]
	pick    func(n int) int
}

func NewResolver(opts Options) *Resolver {
	r := &Resolver{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  opts.HTTPClient,
		cache:   NewCache(opts.CacheSize, opts.CacheTTL),
		rdb:     opts.Redis,
		pick:    rand.IntN,
	}
	if r.client == nil {
		r.client = &http.Client{}
	}
	r.SetTimeout(opts.Timeout)

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	r.cb = gobreaker.NewCircuitBreaker[Location](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		// A "fail" status for a single IP says nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errRejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			geoLogger.Warn("circuit breaker state change",
				zap.String("from", from.String()), zap.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(metrics.BreakerStateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
	return r
}

// SetTimeout changes the upstream lookup bound. Safe for concurrent use.
func (r *Resolver) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = 3 * time.Second
	}
	r.timeout.Store(int64(d))
}

func (r *Resolver) Timeout() time.Duration {
	return time.Duration(r.timeout.Load())
}

// Resolve maps ip to a Location. It checks, in order: the private-address
// placeholder, the in-process cache, the Redis tier, then the upstream
// service. The Redis round trips and the upstream call share one deadline
// of the configured timeout.
func (r *Resolver) Resolve(ctx context.Context, ip string) Location {
	if IsLocal(ip) {
		metrics.GeoLookups.WithLabelValues("private").Inc()
		return Location{
			City:        LocalCities[r.pick(len(LocalCities))],
			Country:     localCountry,
			CountryCode: localCountryCode,
		}
	}

	if loc, ok := r.cache.Get(ip); ok {
		metrics.GeoLookups.WithLabelValues("cache").Inc()
		return loc
	}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout())
	defer cancel()

	if loc, ok := r.fromRedis(ctx, ip); ok {
		metrics.GeoLookups.WithLabelValues("redis").Inc()
		r.remember(ip, loc)
		return loc
	}

	loc, err := r.cb.Execute(func() (Location, error) {
		return r.lookup(ctx, ip)
	})
	if err != nil {
		metrics.GeoLookups.WithLabelValues("failure").Inc()
		geoLogger.Debug("geo lookup failed", zap.String("ip", ip), zap.Error(err))
		return Unknown
	}
	metrics.GeoLookups.WithLabelValues("remote").Inc()
	r.remember(ip, loc)
	r.toRedis(ctx, ip, loc)
	return loc
}

type lookupResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
	City        string `json:"city"`
}

func (r *Resolver) lookup(ctx context.Context, ip string) (Location, error) {
	endpoint := fmt.Sprintf("%s/%s?fields=status,country,countryCode,city", r.baseURL, url.PathEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return Location{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Location{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("geo upstream returned %d", resp.StatusCode)
	}
	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Location{}, fmt.Errorf("decode geo response: %w", err)
	}
	if body.Status != "success" {
		return Location{}, fmt.Errorf("%w: %s %s", errRejected, body.Status, body.Message)
	}
	return Location{City: body.City, Country: body.Country, CountryCode: body.CountryCode}, nil
}

func (r *Resolver) remember(ip string, loc Location) {
	r.cache.Set(ip, loc)
	metrics.GeoCacheEntries.Set(float64(r.cache.Len()))
}

func (r *Resolver) fromRedis(ctx context.Context, ip string) (Location, bool) {
	if r.rdb == nil {
		return Location{}, false
	}
	raw, err := r.rdb.Get(ctx, redisKeyPrefix+ip).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			geoLogger.Debug("geo redis get failed", zap.Error(err))
		}
		return Location{}, false
	}
	var loc Location
	if err := json.Unmarshal(raw, &loc); err != nil {
		return Location{}, false
	}
	return loc, true
}

func (r *Resolver) toRedis(ctx context.Context, ip string, loc Location) {
	if r.rdb == nil {
		return
	}
	raw, err := json.Marshal(loc)
	if err != nil {
		return
	}
	if err := r.rdb.Set(ctx, redisKeyPrefix+ip, raw, r.cache.TTL()).Err(); err != nil {
		geoLogger.Debug("geo redis set failed", zap.Error(err))
	}
}

// IsLocal reports whether ip is absent, the "unknown" marker, or a loopback
// or private address.
func IsLocal(ip string) bool {
	if ip == "" || ip == "unknown" || ip == "::1" {
		return true
	}
	if strings.HasPrefix(ip, "127.") || strings.HasPrefix(ip, "192.168.") || strings.HasPrefix(ip, "10.") {
		return true
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return addr.IsLoopback() || addr.IsPrivate()
}
