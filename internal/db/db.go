// Package db provides database connection and schema functionality
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver for PostgreSQL
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // register sqlite driver for local runs and tests

	"visitor-beacon-api/internal/config"
	"visitor-beacon-api/internal/logx"
)

var dbLogger = logx.GetScope("db")

var baseDB *sql.DB

// Open opens the configured database and returns an ent SQL driver.
// DB_DRIVER=sqlite treats POSTGRES_URL as a sqlite DSN.
func Open(cfg *config.Config) (*entsql.Driver, func(), error) {
	driverName, dialectName := "pgx", dialect.Postgres
	if strings.EqualFold(cfg.DB.Driver, "sqlite") {
		driverName, dialectName = "sqlite", dialect.SQLite
	}
	sqldb, err := sql.Open(driverName, cfg.PG.URL)
	if err != nil {
		return nil, func() {}, err
	}
	if dialectName == dialect.SQLite {
		// a single writer avoids SQLITE_BUSY under concurrent beacons
		sqldb.SetMaxOpenConns(1)
	} else {
		sqldb.SetMaxOpenConns(cfg.PG.MaxOpenConns)
		sqldb.SetMaxIdleConns(cfg.PG.MaxIdleConns)
	}
	baseDB = sqldb

	drv := entsql.OpenDB(dialectName, sqldb)
	closer := func() {
		baseDB = nil
		if err := drv.Close(); err != nil {
			dbLogger.Sugar().Errorf("close db: %v", err)
		}
	}
	dbLogger.Info("database opened", zap.String("dialect", dialectName))
	return drv, closer, nil
}

// UpdatePool updates DB pool settings at runtime.
func UpdatePool(maxOpen, maxIdle int) {
	if baseDB == nil {
		return
	}
	if maxOpen > 0 {
		baseDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle >= 0 {
		baseDB.SetMaxIdleConns(maxIdle)
	}
}

// Timestamps are Unix milliseconds so window and duration arithmetic is
// plain integer math on both dialects.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS visitors (
	visitor_id       TEXT PRIMARY KEY,
	ip               TEXT NOT NULL DEFAULT '',
	user_agent       TEXT NOT NULL DEFAULT '',
	device_type      TEXT NOT NULL DEFAULT 'desktop',
	browser          TEXT NOT NULL DEFAULT 'Unknown',
	os               TEXT NOT NULL DEFAULT 'Unknown',
	city             TEXT NOT NULL DEFAULT 'Unknown',
	country          TEXT NOT NULL DEFAULT 'XX',
	current_page     TEXT NOT NULL DEFAULT '',
	referrer         TEXT NULL,
	referrer_source  TEXT NULL,
	referrer_domain  TEXT NULL,
	utm_source       TEXT NULL,
	utm_medium       TEXT NULL,
	utm_campaign     TEXT NULL,
	utm_content      TEXT NULL,
	utm_term         TEXT NULL,
	page_views       BIGINT NOT NULL DEFAULT 0,
	bounced          BOOLEAN NOT NULL DEFAULT TRUE,
	first_seen_ms    BIGINT NOT NULL,
	session_start_ms BIGINT NOT NULL,
	last_seen_ms     BIGINT NOT NULL,
	session_duration BIGINT NOT NULL DEFAULT 0,
	is_online        BOOLEAN NOT NULL DEFAULT TRUE
)`,
	`CREATE INDEX IF NOT EXISTS visitors_last_seen_idx ON visitors (last_seen_ms)`,
}

// Migrate applies the idempotent schema.
func Migrate(ctx context.Context, drv *entsql.Driver) error {
	for _, stmt := range schema {
		if _, err := drv.DB().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
