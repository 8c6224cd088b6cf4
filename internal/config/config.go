package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/samber/lo"

	"visitor-beacon-api/internal/logx"
)

var configLogger = logx.GetScope("config")

// Config holds the application configuration
type Config struct {
	AppEnv string
	Server struct {
		Addr string
	}
	Log struct {
		Level  string // debug, info, warn, error
		Format string // text, json
	}
	DB struct {
		Driver string // postgres | sqlite
	}
	PG struct {
		URL          string
		MaxOpenConns int
		MaxIdleConns int
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	MQ struct {
		URL      string // RabbitMQ URL
		Exchange string
	}
	ES struct {
		Addrs    string // comma separated
		Username string
		Password string
		Index    string
	}
	Geo struct {
		BaseURL   string
		Timeout   time.Duration
		CacheTTL  time.Duration
		CacheSize int
	}
	Visitors struct {
		OnlineWindow time.Duration
		WriteTimeout time.Duration
	}
	RateLimit struct {
		WindowSec int
		Max       int
	}
	JWT struct {
		HSSecret string
		Issuer   string
	}
	Apollo struct {
		Enable    bool
		AppID     string
		Cluster   string
		Namespace string
		Addrs     string
		AccessKey string
	}
}

// Load loads config from env, and if enabled, overrides with Apollo values.
// Returns config, the hot-reload store, optional apollo closer, and error.
func Load() (*Config, *Store, func(), error) {
	cfg := FromEnv()
	store := NewStore(cfg)
	store.AddValidator(Validate)

	if cfg.Apollo.Enable {
		closer, err := overrideFromApollo(cfg, store)
		if err != nil {
			configLogger.Sugar().Errorf("apollo override failed: %v", err)
			return cfg, store, closer, err
		}
		return store.Get(), store, closer, nil
	}

	return cfg, store, nil, nil
}

// FromEnv builds a Config from environment variables and defaults only.
func FromEnv() *Config {
	cfg := &Config{}

	cfg.AppEnv = getEnv("APP_ENV", "dev")
	cfg.Server.Addr = getEnv("SERVER_ADDR", ":8080")
	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "text")

	cfg.DB.Driver = getEnv("DB_DRIVER", "postgres")
	cfg.PG.URL = getEnv("POSTGRES_URL", "")
	cfg.PG.MaxOpenConns = getInt("PG_MAX_OPEN", 10)
	cfg.PG.MaxIdleConns = getInt("PG_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getInt("REDIS_DB", 0)

	cfg.MQ.URL = getEnv("RABBITMQ_URL", "")
	cfg.MQ.Exchange = getEnv("RABBITMQ_EXCHANGE", "events")

	cfg.ES.Addrs = getEnv("ES_ADDRS", "")
	cfg.ES.Username = getEnv("ES_USERNAME", "")
	cfg.ES.Password = getEnv("ES_PASSWORD", "")
	cfg.ES.Index = getEnv("ES_VISITOR_INDEX", "visitors")

	cfg.Geo.BaseURL = getEnv("GEO_BASE_URL", "http://ip-api.com/json")
	cfg.Geo.Timeout = getDuration("GEO_TIMEOUT", 3*time.Second)
	cfg.Geo.CacheTTL = getDuration("GEO_CACHE_TTL", time.Hour)
	cfg.Geo.CacheSize = getInt("GEO_CACHE_SIZE", 10000)

	cfg.Visitors.OnlineWindow = getDuration("ONLINE_WINDOW", 5*time.Minute)
	cfg.Visitors.WriteTimeout = getDuration("VISITOR_WRITE_TIMEOUT", 3*time.Second)

	cfg.RateLimit.WindowSec = getInt("RATE_LIMIT_WINDOW", 60)
	cfg.RateLimit.Max = getInt("RATE_LIMIT_MAX", 600)

	cfg.JWT.HSSecret = getEnv("JWT_HS_SECRET", "")
	cfg.JWT.Issuer = getEnv("JWT_ISSUER", "")

	cfg.Apollo.Enable = getBool("APOLLO_ENABLE", false)
	cfg.Apollo.AppID = getEnv("APOLLO_APP_ID", "")
	cfg.Apollo.Cluster = getEnv("APOLLO_CLUSTER", "default")
	cfg.Apollo.Namespace = getEnv("APOLLO_NAMESPACE", "application")
	cfg.Apollo.Addrs = getEnv("APOLLO_ADDRS", "")
	cfg.Apollo.AccessKey = getEnv("APOLLO_ACCESS_KEY", "")

	return cfg
}

// restartKeys are read once at startup; a live change to them is logged but
// not applied.
var restartKeys = []string{
	"server.addr", "pg.url", "redis.addr", "redis.password", "redis.db", "mq.url",
	"es.addrs", "es.username", "es.password",
	"geo.base_url", "geo.cache_ttl", "geo.cache_size",
	"ratelimit.max", "ratelimit.window",
}

// RestartRequired returns the changed keys that only take effect after a
// restart, in a stable order.
func RestartRequired(changed map[string]bool) []string {
	return lo.Filter(restartKeys, func(k string, _ int) bool { return changed[k] })
}

// Validate rejects configurations the service cannot run with. It is
// registered on the Store so invalid Apollo pushes are discarded.
func Validate(cfg *Config, changed map[string]bool) error {
	if cfg.PG.MaxIdleConns > cfg.PG.MaxOpenConns {
		return errors.New("PG_MAX_IDLE cannot exceed PG_MAX_OPEN")
	}
	if cfg.Geo.Timeout <= 0 {
		return errors.New("GEO_TIMEOUT must be positive")
	}
	if cfg.Visitors.OnlineWindow <= 0 {
		return errors.New("ONLINE_WINDOW must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	return lo.Ternary(v != "", v, def)
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// getDuration accepts Go duration strings ("90s") or bare seconds ("90").
func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return parseDuration(v, def)
}

func parseDuration(v string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}
