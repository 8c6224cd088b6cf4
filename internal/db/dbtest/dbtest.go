// Package dbtest opens migrated in-memory SQLite databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "modernc.org/sqlite"

	"visitor-beacon-api/internal/db"
)

// New returns a driver on a fresh in-memory database named after the test.
func New(t *testing.T) *entsql.Driver {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	sqldb, err := sql.Open("sqlite", "file:"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// one connection keeps the shared-cache database alive and serializes writers
	sqldb.SetMaxOpenConns(1)
	drv := entsql.OpenDB(dialect.SQLite, sqldb)
	t.Cleanup(func() { _ = drv.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.Migrate(ctx, drv); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return drv
}
