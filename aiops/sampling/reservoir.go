// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package sampling provides bounded-memory sampling utilities for
// high-volume metric streams.
package sampling

import (
	"math/rand"
	"sync"
	"time"
)

// Reservoir maintains a fixed-size uniform random sample of an unbounded
// stream of observations (Algorithm R). Once the reservoir is full, each
// new observation replaces a random slot with probability capacity/seen,
// so every observation ever offered has an equal chance of being retained.
//
// It is safe for concurrent use.
type Reservoir struct {
	capacity int
	values   []float64
	seen     int64
	random   *rand.Rand
	mu       sync.Mutex
}

// NewReservoir creates a reservoir holding at most capacity values.
// A capacity <= 0 defaults to 1000.
func NewReservoir(capacity int) *Reservoir {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Reservoir{
		capacity: capacity,
		values:   make([]float64, 0, capacity),
		random:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Add offers a value to the reservoir.
func (r *Reservoir) Add(v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seen++
	if len(r.values) < r.capacity {
		r.values = append(r.values, v)
		return
	}

	// Uniform replacement: keep v with probability capacity/seen.
	if idx := r.random.Int63n(r.seen); idx < int64(r.capacity) {
		r.values[idx] = v
	}
}

// Values returns a copy of the current sample.
func (r *Reservoir) Values() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]float64, len(r.values))
	copy(out, r.values)
	return out
}

// Len returns the number of values currently held.
func (r *Reservoir) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// Seen returns the total number of values ever offered.
func (r *Reservoir) Seen() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen
}

// Capacity returns the maximum sample size.
func (r *Reservoir) Capacity() int {
	return r.capacity
}
