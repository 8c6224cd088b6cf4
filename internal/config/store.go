package config

import (
	"sync"
	"sync/atomic"
)

// Watcher is notified after a new config has been committed.
type Watcher func(newCfg *Config, changed map[string]bool)

// Validator vetoes a candidate config. Returning an error discards the update.
type Validator func(newCfg *Config, changed map[string]bool) error

// Store holds the live config and fans updates out to watchers.
type Store struct {
	v          atomic.Pointer[Config]
	mu         sync.RWMutex
	nextID     int
	watchers   map[int]Watcher
	validators map[int]Validator
}

func NewStore(cfg *Config) *Store {
	s := &Store{
		watchers:   map[int]Watcher{},
		validators: map[int]Validator{},
	}
	s.v.Store(cfg)
	return s
}

func (s *Store) Get() *Config {
	return s.v.Load()
}

// Update commits newCfg unconditionally and notifies watchers.
func (s *Store) Update(newCfg *Config, changed map[string]bool) {
	s.v.Store(newCfg)
	s.mu.RLock()
	ws := make([]Watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		ws = append(ws, w)
	}
	s.mu.RUnlock()
	for _, w := range ws {
		w(newCfg, changed)
	}
}

// Watch registers w and returns a func that unregisters it.
func (s *Store) Watch(w Watcher) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = w
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// AddValidator registers a validator. If any validator returns error on update, the update will be discarded.
func (s *Store) AddValidator(v Validator) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.validators[id] = v
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.validators, id)
		s.mu.Unlock()
	}
}

// UpdateValidated runs validators before committing the config. If any validator fails, no change is applied.
func (s *Store) UpdateValidated(newCfg *Config, changed map[string]bool) bool {
	s.mu.RLock()
	vals := make([]Validator, 0, len(s.validators))
	for _, v := range s.validators {
		vals = append(vals, v)
	}
	s.mu.RUnlock()
	for _, v := range vals {
		if err := v(newCfg, changed); err != nil {
			return false
		}
	}
	s.Update(newCfg, changed)
	return true
}

func cloneConfig(in *Config) *Config {
	out := *in
	return &out
}
