package redisx

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"visitor-beacon-api/internal/config"
)

func TestOpen(t *testing.T) {
	rdb, closer, err := Open(&config.Config{})
	if err != nil || rdb != nil {
		t.Fatalf("disabled: rdb=%v err=%v", rdb, err)
	}
	closer()

	mr := miniredis.RunT(t)
	cfg := &config.Config{}
	cfg.Redis.Addr = mr.Addr()
	rdb, closer, err = Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closer()
	if !rdb.Options().ContextTimeoutEnabled {
		t.Fatalf("context deadlines must bound redis round trips")
	}
	if err := Ping(context.Background(), rdb); err != nil {
		t.Fatalf("ping: %v", err)
	}

	mr.Close()
	if err := Ping(context.Background(), rdb); err == nil {
		t.Fatalf("ping should fail once server is gone")
	}
}
