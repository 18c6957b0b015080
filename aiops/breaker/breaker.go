// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package breaker tracks per-provider health and guards AI provider calls
// with a three-state circuit breaker (closed, open, half-open).
//
// Health records are owned exclusively by the breaker: they are mutated
// only through RecordSuccess/RecordFailure, never deleted, and reset only
// by explicit administrative action. The open-to-half-open transition is
// timer driven; the clock is injectable so tests can use a mock clock.
package breaker

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"axonflow/aicore/aiops/events"
)

// State is the circuit state for a provider.
type State string

const (
	// StateClosed allows all calls (normal operation).
	StateClosed State = "closed"

	// StateOpen rejects all calls until the recovery timeout fires.
	StateOpen State = "open"

	// StateHalfOpen allows trial calls to probe recovery.
	StateHalfOpen State = "half_open"
)

// Config holds the circuit breaker tuning parameters. The config is
// immutable once the breaker is constructed.
type Config struct {
	// FailureThreshold is the number of failures inside MonitoringWindow
	// that opens the circuit.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive half-open successes
	// that closes the circuit.
	SuccessThreshold int

	// Timeout is how long an open circuit waits before probing recovery.
	Timeout time.Duration

	// MonitoringWindow bounds how far back failures count toward
	// FailureThreshold.
	MonitoringWindow time.Duration
}

// DefaultConfig returns the standard breaker tuning.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		Timeout:          30 * time.Second,
		MonitoringWindow: 60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MonitoringWindow <= 0 {
		c.MonitoringWindow = d.MonitoringWindow
	}
	return c
}

// ProviderHealth is a point-in-time snapshot of a provider's breaker
// bookkeeping.
type ProviderHealth struct {
	Provider             string    `json:"provider"`
	State                State     `json:"state"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	LastFailure          time.Time `json:"last_failure,omitempty"`
	LastSuccess          time.Time `json:"last_success,omitempty"`
	TotalRequests        int64     `json:"total_requests"`
	TotalFailures        int64     `json:"total_failures"`
	AvgLatencyMs         float64   `json:"avg_latency_ms"`
	LastError            string    `json:"last_error,omitempty"`
}

// providerState is the mutable per-provider record.
type providerState struct {
	health        ProviderHealth
	failureWindow []time.Time
	halfOpenTimer *clock.Timer
}

// Breaker is the provider health registry and circuit breaker. It is safe
// for concurrent use; every state mutation is a single locked
// read-modify-write, so racing updates cannot double-transition a circuit.
type Breaker struct {
	config    Config
	providers map[string]*providerState
	clock     clock.Clock
	bus       *events.Bus
	logger    *log.Logger
	mu        sync.Mutex
}

// Option configures the Breaker.
type Option func(*Breaker)

// WithClock sets the clock used for timestamps and the auto-half-open
// timer. Tests use a mock clock.
func WithClock(c clock.Clock) Option {
	return func(b *Breaker) {
		b.clock = c
	}
}

// WithEvents sets the bus on which circuit transitions are published.
func WithEvents(bus *events.Bus) Option {
	return func(b *Breaker) {
		b.bus = bus
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *log.Logger) Option {
	return func(b *Breaker) {
		b.logger = l
	}
}

// New creates a Breaker with the given config.
func New(config Config, opts ...Option) *Breaker {
	b := &Breaker{
		config:    config.withDefaults(),
		providers: make(map[string]*providerState),
		logger:    log.New(os.Stdout, "[AI_BREAKER] ", log.LstdFlags),
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.clock == nil {
		b.clock = clock.New()
	}
	if b.bus == nil {
		b.bus = events.NewBus()
	}

	return b
}

// ensure returns the record for provider, creating a fresh closed record
// on first use. Caller must hold the lock.
func (b *Breaker) ensure(provider string) *providerState {
	st, ok := b.providers[provider]
	if !ok {
		st = &providerState{
			health: ProviderHealth{
				Provider: provider,
				State:    StateClosed,
			},
		}
		b.providers[provider] = st
	}
	return st
}

// RecordSuccess records a successful provider call. While half-open,
// reaching SuccessThreshold consecutive successes closes the circuit.
func (b *Breaker) RecordSuccess(provider string, latency time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.ensure(provider)
	h := &st.health

	h.TotalRequests++
	h.ConsecutiveFailures = 0
	h.ConsecutiveSuccesses++
	h.LastSuccess = b.clock.Now()

	// Exponential moving average, weighted 0.9 old / 0.1 new.
	ms := float64(latency.Milliseconds())
	if h.AvgLatencyMs == 0 {
		h.AvgLatencyMs = ms
	} else {
		h.AvgLatencyMs = h.AvgLatencyMs*0.9 + ms*0.1
	}

	if h.State == StateHalfOpen && h.ConsecutiveSuccesses >= b.config.SuccessThreshold {
		b.closeCircuit(provider, st)
	}
}

// RecordFailure records a failed provider call. While closed or
// half-open, FailureThreshold failures inside MonitoringWindow open the
// circuit and schedule the automatic half-open probe.
func (b *Breaker) RecordFailure(provider, errMsg string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.ensure(provider)
	h := &st.health
	now := b.clock.Now()

	h.TotalRequests++
	h.TotalFailures++
	h.ConsecutiveFailures++
	h.ConsecutiveSuccesses = 0
	h.LastFailure = now
	h.LastError = errMsg

	st.failureWindow = append(st.failureWindow, now)
	st.failureWindow = pruneWindow(st.failureWindow, now.Add(-b.config.MonitoringWindow))

	switch {
	case h.State == StateHalfOpen:
		// A failed probe reopens the circuit immediately.
		b.openCircuit(provider, st)
	case h.State == StateClosed && len(st.failureWindow) >= b.config.FailureThreshold:
		b.openCircuit(provider, st)
	}
}

// openCircuit transitions to open and schedules the half-open probe.
// Idempotent: a no-op when the circuit is already open. Caller must hold
// the lock.
func (b *Breaker) openCircuit(provider string, st *providerState) {
	if st.health.State == StateOpen {
		return
	}

	st.health.State = StateOpen
	b.logger.Printf("circuit OPEN for provider %s (%d failures in window)",
		provider, len(st.failureWindow))

	if st.halfOpenTimer != nil {
		st.halfOpenTimer.Stop()
	}
	st.halfOpenTimer = b.clock.AfterFunc(b.config.Timeout, func() {
		b.halfOpen(provider)
	})

	b.bus.Publish(events.Event{
		Name:     events.CircuitOpen,
		Provider: provider,
		Message:  st.health.LastError,
		Fields: map[string]any{
			"failures_in_window": len(st.failureWindow),
		},
	})
}

// closeCircuit transitions to closed, clearing the failure window and
// cancelling the pending half-open timer. Idempotent: a no-op when the
// circuit is already closed. Caller must hold the lock.
func (b *Breaker) closeCircuit(provider string, st *providerState) {
	if st.health.State == StateClosed {
		return
	}

	st.health.State = StateClosed
	st.failureWindow = nil
	if st.halfOpenTimer != nil {
		st.halfOpenTimer.Stop()
		st.halfOpenTimer = nil
	}

	b.logger.Printf("circuit CLOSED for provider %s", provider)
	b.bus.Publish(events.Event{
		Name:     events.CircuitClose,
		Provider: provider,
	})
}

// halfOpen is the timer callback moving an open circuit to half-open.
func (b *Breaker) halfOpen(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.providers[provider]
	if !ok || st.health.State != StateOpen {
		// Stale timer; the circuit was reset or closed in the meantime.
		return
	}

	st.health.State = StateHalfOpen
	st.health.ConsecutiveSuccesses = 0
	st.halfOpenTimer = nil

	b.logger.Printf("circuit HALF-OPEN for provider %s", provider)
	b.bus.Publish(events.Event{
		Name:     events.CircuitHalfOpen,
		Provider: provider,
	})
}

// Allow reports whether calls to provider may be attempted. Only an open
// circuit rejects calls; unknown providers are allowed.
func (b *Breaker) Allow(provider string) bool {
	return b.State(provider) != StateOpen
}

// State returns the circuit state for provider. Unknown providers are
// closed.
func (b *Breaker) State(provider string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if st, ok := b.providers[provider]; ok {
		return st.health.State
	}
	return StateClosed
}

// Health returns a snapshot of the provider's health record.
func (b *Breaker) Health(provider string) (ProviderHealth, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.providers[provider]
	if !ok {
		return ProviderHealth{}, false
	}
	return st.health, true
}

// AllHealth returns snapshots for every tracked provider.
func (b *Breaker) AllHealth() map[string]ProviderHealth {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]ProviderHealth, len(b.providers))
	for name, st := range b.providers {
		out[name] = st.health
	}
	return out
}

// Reset administratively clears a provider's record back to a fresh
// closed state. The record itself is retained.
func (b *Breaker) Reset(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.providers[provider]
	if !ok {
		return
	}

	if st.halfOpenTimer != nil {
		st.halfOpenTimer.Stop()
		st.halfOpenTimer = nil
	}
	st.failureWindow = nil
	st.health = ProviderHealth{
		Provider: provider,
		State:    StateClosed,
	}

	b.logger.Printf("circuit reset for provider %s", provider)
}

// Close cancels all outstanding half-open timers. The breaker must not be
// used after Close.
func (b *Breaker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, st := range b.providers {
		if st.halfOpenTimer != nil {
			st.halfOpenTimer.Stop()
			st.halfOpenTimer = nil
		}
	}
}

// pruneWindow drops timestamps at or before cutoff. The window is
// append-ordered, so the first retained index bounds the scan.
func pruneWindow(window []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(window) && !window[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return window
	}
	return append(window[:0], window[idx:]...)
}
