// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, configs map[string]Config) (*Store, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	s := NewStore(configs, WithClock(mock))
	return s, mock
}

func TestStore_SetThenGet(t *testing.T) {
	s, _ := newTestStore(t, map[string]Config{
		"audit-search": {TTL: time.Minute, MaxEntries: 10, Enabled: true},
	})

	vars := map[string]any{"tenant": "t-1", "query": "failed logins"}
	s.Set("audit-search", "prompt", vars, "cached answer", SetMeta{Model: "gpt-4o-mini"})

	got, ok := s.Get("audit-search", "prompt", vars)
	require.True(t, ok)
	assert.Equal(t, "cached answer", got)
}

func TestStore_ExpiryIsLazy(t *testing.T) {
	s, mock := newTestStore(t, map[string]Config{
		"audit-search": {TTL: time.Minute, MaxEntries: 10, Enabled: true},
	})

	s.Set("audit-search", "prompt", nil, "v", SetMeta{})

	mock.Add(59 * time.Second)
	_, ok := s.Get("audit-search", "prompt", nil)
	assert.True(t, ok, "entry should be live before TTL")

	mock.Add(2 * time.Second)
	_, ok = s.Get("audit-search", "prompt", nil)
	assert.False(t, ok, "entry should expire after TTL")
	assert.Zero(t, s.Len("audit-search"), "lazy expiry evicts the entry")

	stats := s.Stats()["audit-search"]
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestStore_CapacityEvictsOldestByCreation(t *testing.T) {
	s, mock := newTestStore(t, map[string]Config{
		"narrative": {TTL: time.Hour, MaxEntries: 3, Enabled: true},
	})

	for i := 0; i < 3; i++ {
		s.Set("narrative", fmt.Sprintf("prompt-%d", i), nil, i, SetMeta{})
		mock.Add(time.Second)
	}
	require.Equal(t, 3, s.Len("narrative"))

	// Touch the oldest entry; age-based eviction must ignore accesses.
	_, ok := s.Get("narrative", "prompt-0", nil)
	require.True(t, ok)

	s.Set("narrative", "prompt-3", nil, 3, SetMeta{})

	assert.Equal(t, 3, s.Len("narrative"), "capacity is enforced at write time")
	_, ok = s.Get("narrative", "prompt-0", nil)
	assert.False(t, ok, "the single oldest-by-creation entry is evicted, even if recently read")
	_, ok = s.Get("narrative", "prompt-1", nil)
	assert.True(t, ok)
	_, ok = s.Get("narrative", "prompt-3", nil)
	assert.True(t, ok)
}

func TestStore_OverwriteDoesNotEvict(t *testing.T) {
	s, mock := newTestStore(t, map[string]Config{
		"narrative": {TTL: time.Hour, MaxEntries: 2, Enabled: true},
	})

	s.Set("narrative", "a", nil, 1, SetMeta{})
	mock.Add(time.Second)
	s.Set("narrative", "b", nil, 2, SetMeta{})
	mock.Add(time.Second)
	s.Set("narrative", "a", nil, 10, SetMeta{})

	assert.Equal(t, 2, s.Len("narrative"))
	got, ok := s.Get("narrative", "a", nil)
	require.True(t, ok)
	assert.Equal(t, 10, got)
}

func TestStore_PeriodicSweep(t *testing.T) {
	s, mock := newTestStore(t, map[string]Config{
		"permission-explain": {TTL: time.Minute, MaxEntries: 10, Enabled: true},
	})

	s.Set("permission-explain", "p1", nil, "v1", SetMeta{})
	s.Set("permission-explain", "p2", nil, "v2", SetMeta{})

	s.Start()
	defer s.Stop()

	// Entries expire at +1m; the sweep fires at +5m and removes them
	// without any reads.
	mock.Add(sweepInterval + time.Second)

	// The sweep goroutine runs off the ticker channel; give it a moment.
	deadline := time.Now().Add(2 * time.Second)
	for s.Len("permission-explain") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweep did not remove expired entries")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStore_DisabledUseCase(t *testing.T) {
	s, _ := newTestStore(t, map[string]Config{
		"financial-masking": {TTL: time.Minute, MaxEntries: 10, Enabled: false},
	})

	s.Set("financial-masking", "p", nil, "v", SetMeta{})
	_, ok := s.Get("financial-masking", "p", nil)

	assert.False(t, ok, "disabled use cases never serve from cache")
	assert.Zero(t, s.Len("financial-masking"))

	stats := s.Stats()["financial-masking"]
	assert.Equal(t, int64(2), stats.Requests, "get and set both count as requests")
}

func TestStore_SavingsAggregation(t *testing.T) {
	s, _ := newTestStore(t, map[string]Config{
		"vendor-pricing": {TTL: time.Hour, MaxEntries: 10, Enabled: true},
	})

	s.Set("vendor-pricing", "p", nil, "v", SetMeta{Model: "gpt-4o", TokensSaved: 500, CostSaved: 0.01})

	for i := 0; i < 3; i++ {
		_, ok := s.Get("vendor-pricing", "p", nil)
		require.True(t, ok)
	}

	stats := s.Stats()["vendor-pricing"]
	assert.Equal(t, int64(3), stats.Hits)
	assert.Equal(t, int64(1500), stats.TokensSaved)
	assert.InDelta(t, 0.03, stats.CostSaved, 1e-9)
	assert.InDelta(t, 0.75, stats.HitRate, 1e-9, "3 hits over 4 requests (1 set + 3 gets)")
}

func TestStore_Invalidate(t *testing.T) {
	s, _ := newTestStore(t, nil)

	s.Set("anomaly-detection", "a", nil, 1, SetMeta{})
	s.Set("anomaly-detection", "b", nil, 2, SetMeta{})

	assert.Equal(t, 2, s.Invalidate("anomaly-detection"))
	assert.Zero(t, s.Len("anomaly-detection"))
}

func TestStore_UseCasesAreIsolated(t *testing.T) {
	s, _ := newTestStore(t, map[string]Config{
		"a": {TTL: time.Hour, MaxEntries: 1, Enabled: true},
		"b": {TTL: time.Hour, MaxEntries: 5, Enabled: true},
	})

	s.Set("a", "prompt", nil, "va", SetMeta{})
	s.Set("b", "prompt", nil, "vb", SetMeta{})

	// Same content, different use case: distinct entries.
	got, ok := s.Get("b", "prompt", nil)
	require.True(t, ok)
	assert.Equal(t, "vb", got)
	assert.Equal(t, 1, s.Len("a"))
	assert.Equal(t, 1, s.Len("b"))
}
