// Package main is the entry point for the visitor beacon API server
//
//	@title			Visitor Beacon API
//	@version		1.0
//	@description	Visitor analytics ingestion: pageview and heartbeat beacons, live online counts.
//
//	@BasePath	/
//
//	@schemes		http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in						header
//	@name					Authorization
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"visitor-beacon-api/internal/config"
	"visitor-beacon-api/internal/db"
	"visitor-beacon-api/internal/esx"
	"visitor-beacon-api/internal/geo"
	"visitor-beacon-api/internal/httpx"
	"visitor-beacon-api/internal/httpx/kit"
	"visitor-beacon-api/internal/httpx/mw"
	"visitor-beacon-api/internal/logx"
	"visitor-beacon-api/internal/mqx"
	"visitor-beacon-api/internal/redisx"
	"visitor-beacon-api/internal/server"
	"visitor-beacon-api/internal/visitor"

	_ "visitor-beacon-api/docs" // swagger docs
)

func main() {
	// Load .env if present
	_ = godotenv.Load()

	// Load config (env first; optional Apollo override)
	cfg, store, apClose, err := config.Load()
	if err != nil {
		panic(err)
	}
	if apClose != nil {
		defer apClose()
	}

	logx.Init(cfg.Log.Level, cfg.Log.Format)
	defer logx.Sync()
	mainLogger := logx.GetScope("main")

	mainLogger.Info("config loaded",
		zap.String("env", cfg.AppEnv),
		zap.String("addr", cfg.Server.Addr),
		zap.String("db.driver", cfg.DB.Driver),
		zap.String("log.level", cfg.Log.Level),
		zap.String("log.format", cfg.Log.Format),
	)

	drv, closeDB, err := db.Open(cfg)
	if err != nil {
		mainLogger.Sugar().Error("open db error", "err", err)
		panic(err)
	}
	defer closeDB()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.Migrate(ctx, drv); err != nil {
		mainLogger.Sugar().Error("migrate error", "err", err)
		panic(err)
	}

	// Optional deps: Redis, MQ, ES. Each degrades to disabled on failure.
	rdb, redisClose, err := redisx.Open(cfg)
	if err != nil {
		mainLogger.Sugar().Warn("redis init failed", "err", err)
	}
	defer redisClose()

	pub, mqClose, err := mqx.Open(cfg)
	if err != nil {
		mainLogger.Sugar().Warn("mq init failed", "err", err)
	}
	defer mqClose()

	esClient, esClose, err := esx.Open(cfg)
	if err != nil {
		mainLogger.Sugar().Warn("es init failed", "err", err)
	}
	defer esClose()
	index := esx.NewVisitorIndex(esClient, cfg.ES.Index)

	geoOpts := geo.Options{
		BaseURL:   cfg.Geo.BaseURL,
		Timeout:   cfg.Geo.Timeout,
		CacheTTL:  cfg.Geo.CacheTTL,
		CacheSize: cfg.Geo.CacheSize,
	}
	if rdb != nil {
		geoOpts.Redis = rdb
	}
	resolver := geo.NewResolver(geoOpts)

	visitors := visitor.NewStore(drv)
	svcOpts := visitor.Options{
		WriteTimeout: cfg.Visitors.WriteTimeout,
		OnlineWindow: cfg.Visitors.OnlineWindow,
	}
	if pub != nil {
		svcOpts.Publisher = pub
	}
	if index.Enabled() {
		svcOpts.Indexer = index
	}
	svc := visitor.NewService(visitors, resolver, svcOpts)

	checks := []httpx.HealthCheck{{Name: "db", Check: func(ctx context.Context) error { return drv.DB().PingContext(ctx) }}}
	if rdb != nil {
		checks = append(checks, httpx.HealthCheck{Name: "redis", Check: func(ctx context.Context) error { return redisx.Ping(ctx, rdb) }})
	}

	app := fiber.New(kit.Config())
	httpx.RegisterCommonMiddlewares(app)
	httpx.Register(app, httpx.Deps{
		Visitors:  svc,
		Store:     visitors,
		Search:    index,
		Redis:     rdb,
		Health:    checks,
		Auth:      mw.HS256Parser(cfg.JWT.HSSecret, cfg.JWT.Issuer),
		RateLimit: httpx.RateLimit{WindowSec: cfg.RateLimit.WindowSec, Max: cfg.RateLimit.Max},
	})

	// Watch for dynamic config changes (Apollo)
	store.Watch(func(newCfg *config.Config, changed map[string]bool) {
		if changed["pg.max_open"] || changed["pg.max_idle"] {
			db.UpdatePool(newCfg.PG.MaxOpenConns, newCfg.PG.MaxIdleConns)
			mainLogger.Info("db pool updated",
				zap.Int("max_open", newCfg.PG.MaxOpenConns),
				zap.Int("max_idle", newCfg.PG.MaxIdleConns),
			)
		}
		if changed["visitors.online_window"] {
			svc.SetOnlineWindow(newCfg.Visitors.OnlineWindow)
			mainLogger.Info("online window updated", zap.Duration("window", svc.OnlineWindow()))
		}
		if changed["geo.timeout"] {
			resolver.SetTimeout(newCfg.Geo.Timeout)
			mainLogger.Info("geo timeout updated", zap.Duration("timeout", resolver.Timeout()))
		}
		for _, key := range config.RestartRequired(changed) {
			mainLogger.Warn("restart required for change to take effect", zap.String("key", key))
		}
		if changed["log.level"] || changed["log.format"] {
			logx.Init(newCfg.Log.Level, newCfg.Log.Format)
			mainLogger.Info("logger reconfigured",
				zap.String("level", newCfg.Log.Level),
				zap.String("format", newCfg.Log.Format),
			)
		}
	})

	// Graceful shutdown
	go func() {
		ln, err := server.GetListener(cfg.Server.Addr)
		if err != nil {
			mainLogger.Sugar().Errorf("listener error: %v", err)
			return
		}
		if err := app.Listener(ln); err != nil {
			mainLogger.Sugar().Infof("fiber exit: %v", err)
		}
	}()
	mainLogger.Sugar().Infof("server started on %s", cfg.Server.Addr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	mainLogger.Sugar().Info("shutting down...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		mainLogger.Warn("shutdown", zap.Error(err))
	}
	// drain queued event publishes and index writes before closing sinks
	svc.Close()
}
