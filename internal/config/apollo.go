package config

import (
	"strconv"

	agollo "github.com/apolloconfig/agollo/v4"
	apconf "github.com/apolloconfig/agollo/v4/env/config"
	"github.com/apolloconfig/agollo/v4/storage"
	"go.uber.org/zap"
)

// overrideFromApollo starts Apollo client and overrides config values if present.
// Returns a closer to stop the Apollo client.
func overrideFromApollo(cfg *Config, store *Store) (func(), error) {
	if cfg.Apollo.Addrs == "" || cfg.Apollo.AppID == "" {
		configLogger.Warn("apollo: missing APOLLO_ADDRS or APOLLO_APP_ID; skip")
		return nil, nil
	}

	ns := cfg.Apollo.Namespace
	if ns == "" {
		ns = "application"
	}

	appCfg := &apconf.AppConfig{
		AppID:              cfg.Apollo.AppID,
		Cluster:            cfg.Apollo.Cluster,
		NamespaceName:      ns,
		IP:                 cfg.Apollo.Addrs, // comma separated
		Secret:             cfg.Apollo.AccessKey,
	}

	client, err := agollo.StartWithConfig(func() (*apconf.AppConfig, error) { return appCfg, nil })
	if err != nil {
		return nil, err
	}

	next := cloneConfig(cfg)
	applyOverrides(cacheLookup(client, ns), next)
	if !store.UpdateValidated(next, map[string]bool{"apollo.init": true}) {
		configLogger.Warn("apollo: initial values rejected by validators; keeping env config")
	}

	client.AddChangeListener(&changeListener{ns: ns, client: client, store: store})

	// agollo v4 has no public Stop.
	return func() {}, nil
}

// lookupFunc returns the raw string for an Apollo key.
type lookupFunc func(key string) (string, bool)

func cacheLookup(client agollo.Client, namespace string) lookupFunc {
	conf := client.GetConfig(namespace)
	return func(key string) (string, bool) {
		if conf == nil {
			return "", false
		}
		v := conf.GetValue(key)
		return v, v != ""
	}
}

// applyOverrides copies every known key present in get onto cfg.
func applyOverrides(get lookupFunc, cfg *Config) {
	str := func(key string, dst *string) {
		if s, ok := get(key); ok && s != "" {
			*dst = s
		}
	}
	num := func(key string, dst *int) {
		if s, ok := get(key); ok && s != "" {
			if n, err := strconv.Atoi(s); err == nil {
				*dst = n
			}
		}
	}

	str("app.env", &cfg.AppEnv)
	str("server.addr", &cfg.Server.Addr)
	str("log.level", &cfg.Log.Level)
	str("log.format", &cfg.Log.Format)

	str("pg.url", &cfg.PG.URL)
	num("pg.max_open", &cfg.PG.MaxOpenConns)
	num("pg.max_idle", &cfg.PG.MaxIdleConns)

	str("redis.addr", &cfg.Redis.Addr)
	str("redis.password", &cfg.Redis.Password)
	num("redis.db", &cfg.Redis.DB)

	str("mq.url", &cfg.MQ.URL)

	str("es.addrs", &cfg.ES.Addrs)
	str("es.username", &cfg.ES.Username)
	str("es.password", &cfg.ES.Password)

	str("geo.base_url", &cfg.Geo.BaseURL)
	if s, ok := get("geo.timeout"); ok && s != "" {
		cfg.Geo.Timeout = parseDuration(s, cfg.Geo.Timeout)
	}
	if s, ok := get("geo.cache_ttl"); ok && s != "" {
		cfg.Geo.CacheTTL = parseDuration(s, cfg.Geo.CacheTTL)
	}
	num("geo.cache_size", &cfg.Geo.CacheSize)

	if s, ok := get("visitors.online_window"); ok && s != "" {
		cfg.Visitors.OnlineWindow = parseDuration(s, cfg.Visitors.OnlineWindow)
	}

	num("ratelimit.window", &cfg.RateLimit.WindowSec)
	num("ratelimit.max", &cfg.RateLimit.Max)
}

type changeListener struct {
	ns     string
	client agollo.Client
	store  *Store
}

func (c *changeListener) OnChange(e *storage.ChangeEvent) {
	configLogger.Info("apollo change", zap.String("namespace", e.Namespace), zap.Int("changes", len(e.Changes)))
	next := cloneConfig(c.store.Get())
	applyOverrides(cacheLookup(c.client, c.ns), next)
	changed := map[string]bool{}
	for k := range e.Changes {
		changed[k] = true
	}
	if !c.store.UpdateValidated(next, changed) {
		configLogger.Warn("apollo change rejected by validators", zap.String("namespace", e.Namespace))
	}
}

func (c *changeListener) OnNewestChange(e *storage.FullChangeEvent) {
	configLogger.Debug("apollo newest change", zap.String("namespace", e.Namespace), zap.Int("keys", len(e.Changes)))
}
