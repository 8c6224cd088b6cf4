package config

import (
	"errors"
	"testing"
)

func TestStore_ValidatorVetoesUpdate(t *testing.T) {
	s := NewStore(FromEnv())
	s.AddValidator(Validate)

	var notified int
	s.Watch(func(*Config, map[string]bool) { notified++ })

	bad := cloneConfig(s.Get())
	bad.PG.MaxIdleConns = bad.PG.MaxOpenConns + 1
	if s.UpdateValidated(bad, map[string]bool{"pg.max_idle": true}) {
		t.Fatalf("expected veto")
	}
	if notified != 0 {
		t.Fatalf("watcher should not fire on veto")
	}

	good := cloneConfig(s.Get())
	good.Log.Level = "warn"
	if !s.UpdateValidated(good, map[string]bool{"log.level": true}) {
		t.Fatalf("expected commit")
	}
	if s.Get().Log.Level != "warn" || notified != 1 {
		t.Fatalf("level=%s notified=%d", s.Get().Log.Level, notified)
	}
}

func TestStore_UnwatchAndRemoveValidator(t *testing.T) {
	s := NewStore(FromEnv())
	var a, b int
	stopA := s.Watch(func(*Config, map[string]bool) { a++ })
	s.Watch(func(*Config, map[string]bool) { b++ })
	remove := s.AddValidator(func(*Config, map[string]bool) error { return errors.New("no") })

	if s.UpdateValidated(cloneConfig(s.Get()), nil) {
		t.Fatalf("validator should veto")
	}
	remove()
	stopA()
	if !s.UpdateValidated(cloneConfig(s.Get()), nil) {
		t.Fatalf("update should pass once validator removed")
	}
	if a != 0 || b != 1 {
		t.Fatalf("a=%d b=%d", a, b)
	}
}
