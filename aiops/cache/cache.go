// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package cache is the AI response cache: a time- and capacity-bounded
// in-memory store keyed by use case and a canonical content hash.
//
// Capacity is enforced per use case at write time by evicting the
// entries oldest by creation time. This is deliberately age-based rather
// than access-order (LRU): the cache favors freshness of AI answers over
// hot-path hit retention, unlike the latency-sensitive lookup caches
// used elsewhere in the platform.
package cache

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Config tunes caching for one use case.
type Config struct {
	// TTL is how long entries remain servable.
	TTL time.Duration

	// MaxEntries bounds the number of live entries for the use case.
	MaxEntries int

	// Enabled turns caching on for the use case.
	Enabled bool
}

// DefaultConfig returns the tuning applied to use cases with no
// configured cache policy.
func DefaultConfig() Config {
	return Config{
		TTL:        time.Hour,
		MaxEntries: 1000,
		Enabled:    true,
	}
}

// Entry is a cached answer.
type Entry struct {
	Value       any       `json:"value"`
	UseCase     string    `json:"use_case"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	HitCount    int64     `json:"hit_count"`
	Model       string    `json:"model,omitempty"`
	TokensSaved int64     `json:"tokens_saved,omitempty"`
	CostSaved   float64   `json:"cost_saved,omitempty"`
}

// SetMeta carries optional provenance recorded with a cache fill.
type SetMeta struct {
	Model       string
	TokensSaved int64
	CostSaved   float64
}

// UseCaseStats is a snapshot of per-use-case cache effectiveness.
type UseCaseStats struct {
	Requests    int64   `json:"requests"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	Entries     int     `json:"entries"`
	TokensSaved int64   `json:"tokens_saved"`
	CostSaved   float64 `json:"cost_saved"`
}

type counters struct {
	requests    int64
	hits        int64
	misses      int64
	tokensSaved int64
	costSaved   float64
}

// sweepInterval is the period of the background expiry sweep.
const sweepInterval = 5 * time.Minute

// Store is the response cache. It is safe for concurrent use; every
// lookup, fill and eviction is a single locked read-modify-write.
type Store struct {
	configs       map[string]Config
	defaultConfig Config
	entries       map[string]map[string]*Entry // use case -> key -> entry
	stats         map[string]*counters
	clock         clock.Clock
	logger        *log.Logger
	sweepTicker   *clock.Ticker
	stopSweep     chan struct{}
	mu            sync.Mutex
}

// Option configures the Store.
type Option func(*Store)

// WithClock sets the clock used for TTLs and the sweep ticker.
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// WithDefaultConfig overrides the policy for unconfigured use cases.
func WithDefaultConfig(cfg Config) Option {
	return func(s *Store) {
		s.defaultConfig = cfg
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore creates a response cache with per-use-case policies.
func NewStore(configs map[string]Config, opts ...Option) *Store {
	s := &Store{
		configs:       make(map[string]Config, len(configs)),
		defaultConfig: DefaultConfig(),
		entries:       make(map[string]map[string]*Entry),
		stats:         make(map[string]*counters),
		logger:        log.New(os.Stdout, "[AI_CACHE] ", log.LstdFlags),
	}
	for name, cfg := range configs {
		s.configs[name] = cfg
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.clock == nil {
		s.clock = clock.New()
	}

	return s
}

// Start launches the periodic sweep that removes expired entries across
// all use cases, bounding memory even for keys never read again.
func (s *Store) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sweepTicker != nil {
		return
	}
	s.sweepTicker = s.clock.Ticker(sweepInterval)
	s.stopSweep = make(chan struct{})

	go func(ticker *clock.Ticker, stop chan struct{}) {
		for {
			select {
			case <-ticker.C:
				removed := s.Sweep()
				if removed > 0 {
					s.logger.Printf("sweep removed %d expired entries", removed)
				}
			case <-stop:
				return
			}
		}
	}(s.sweepTicker, s.stopSweep)
}

// Stop cancels the periodic sweep.
func (s *Store) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sweepTicker == nil {
		return
	}
	s.sweepTicker.Stop()
	close(s.stopSweep)
	s.sweepTicker = nil
	s.stopSweep = nil
}

func (s *Store) configFor(useCase string) Config {
	if cfg, ok := s.configs[useCase]; ok {
		return cfg
	}
	return s.defaultConfig
}

func (s *Store) countersFor(useCase string) *counters {
	c, ok := s.stats[useCase]
	if !ok {
		c = &counters{}
		s.stats[useCase] = c
	}
	return c
}

// Get looks up a previously cached answer for the logical request.
// Expired entries are evicted lazily and count as misses. Hits increment
// the entry's hit counter and accumulate its recorded savings.
func (s *Store) Get(useCase, content string, variables map[string]any) (any, bool) {
	key, err := Key(useCase, content, variables)
	if err != nil {
		// Internal cache faults never abort the caller's request.
		s.logger.Printf("cache key error for %s: %v", useCase, err)
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.countersFor(useCase)
	c.requests++

	if !s.configFor(useCase).Enabled {
		c.misses++
		return nil, false
	}

	entry, ok := s.entries[useCase][key]
	if !ok {
		c.misses++
		return nil, false
	}

	if s.clock.Now().After(entry.ExpiresAt) {
		delete(s.entries[useCase], key)
		c.misses++
		return nil, false
	}

	entry.HitCount++
	c.hits++
	c.tokensSaved += entry.TokensSaved
	c.costSaved += entry.CostSaved
	return entry.Value, true
}

// Set caches an answer for the logical request. When the use case is at
// capacity, the entries oldest by creation time are evicted until
// exactly one slot is free.
func (s *Store) Set(useCase, content string, variables map[string]any, value any, meta SetMeta) {
	key, err := Key(useCase, content, variables)
	if err != nil {
		s.logger.Printf("cache key error for %s: %v", useCase, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.configFor(useCase)
	c := s.countersFor(useCase)
	c.requests++

	if !cfg.Enabled {
		return
	}

	byKey, ok := s.entries[useCase]
	if !ok {
		byKey = make(map[string]*Entry)
		s.entries[useCase] = byKey
	}

	// Overwriting an existing key does not consume a new slot.
	if _, exists := byKey[key]; !exists {
		for len(byKey) >= cfg.MaxEntries && cfg.MaxEntries > 0 {
			s.evictOldest(useCase, byKey)
		}
	}

	now := s.clock.Now()
	byKey[key] = &Entry{
		Value:       value,
		UseCase:     useCase,
		CreatedAt:   now,
		ExpiresAt:   now.Add(cfg.TTL),
		Model:       meta.Model,
		TokensSaved: meta.TokensSaved,
		CostSaved:   meta.CostSaved,
	}
}

// evictOldest removes the entry oldest by creation time. Caller must
// hold the lock. Idempotent on an empty map.
func (s *Store) evictOldest(useCase string, byKey map[string]*Entry) {
	var oldestKey string
	var oldest time.Time
	for key, entry := range byKey {
		if oldestKey == "" || entry.CreatedAt.Before(oldest) {
			oldestKey = key
			oldest = entry.CreatedAt
		}
	}
	if oldestKey == "" {
		return
	}
	delete(byKey, oldestKey)
	s.logger.Printf("evicted oldest entry for %s (created %s)", useCase, oldest.Format(time.RFC3339))
}

// Invalidate removes all live entries for a use case and returns how
// many were dropped.
func (s *Store) Invalidate(useCase string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries[useCase])
	delete(s.entries, useCase)
	return n
}

// Sweep removes every expired entry across all use cases and returns the
// number removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for useCase, byKey := range s.entries {
		for key, entry := range byKey {
			if now.After(entry.ExpiresAt) {
				delete(byKey, key)
				removed++
			}
		}
		if len(byKey) == 0 {
			delete(s.entries, useCase)
		}
	}
	return removed
}

// Len returns the number of live entries for a use case.
func (s *Store) Len(useCase string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries[useCase])
}

// Stats returns per-use-case effectiveness snapshots.
func (s *Store) Stats() map[string]UseCaseStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]UseCaseStats, len(s.stats))
	for useCase, c := range s.stats {
		stat := UseCaseStats{
			Requests:    c.requests,
			Hits:        c.hits,
			Misses:      c.misses,
			Entries:     len(s.entries[useCase]),
			TokensSaved: c.tokensSaved,
			CostSaved:   c.costSaved,
		}
		if c.requests > 0 {
			stat.HitRate = float64(c.hits) / float64(c.requests)
		}
		out[useCase] = stat
	}
	return out
}
