// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package failover

import (
	"context"
	"log"
	"os"

	"github.com/benbjohnson/clock"

	"axonflow/aicore/aiops/breaker"
)

// Result sources.
const (
	// SourceAI marks an answer served by a live provider call.
	SourceAI = "ai"

	// SourceFallback marks an answer served by the caller-supplied
	// fallback after every provider was skipped or failed.
	SourceFallback = "fallback"
)

// Result is the tagged outcome of an orchestrated call. Execute never
// propagates a provider error; the fallback path is the designed failure
// mode, not an exception.
type Result struct {
	// Value is the answer.
	Value any `json:"value"`

	// Source is SourceAI or SourceFallback.
	Source string `json:"source"`

	// Provider is the provider that served the call (empty on fallback).
	Provider string `json:"provider,omitempty"`

	// Degraded is true when the answer came from a half-open provider
	// probe or from the fallback.
	Degraded bool `json:"degraded"`

	// Retries is the number of retries the serving provider needed.
	Retries int `json:"retries"`
}

// Orchestrator walks a fixed provider priority list, consulting the
// circuit breaker and executing each candidate through the retry
// executor.
type Orchestrator struct {
	providers []string
	breaker   *breaker.Breaker
	executor  *Executor
	clock     clock.Clock
	logger    *log.Logger
}

// OrchestratorOption configures the Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithRetryConfig sets the retry executor tuning.
func WithRetryConfig(cfg RetryConfig) OrchestratorOption {
	return func(o *Orchestrator) {
		o.executor = NewExecutor(cfg, o.clock, o.logger)
	}
}

// WithClock sets the clock used for latency measurement and backoff.
func WithClock(c clock.Clock) OrchestratorOption {
	return func(o *Orchestrator) {
		o.clock = c
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *log.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// NewOrchestrator creates a failover orchestrator over the given provider
// priority list. Earlier providers are preferred.
func NewOrchestrator(providers []string, br *breaker.Breaker, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		providers: append([]string(nil), providers...),
		breaker:   br,
		clock:     clock.New(),
		logger:    log.New(os.Stdout, "[AI_FAILOVER] ", log.LstdFlags),
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.executor == nil {
		o.executor = NewExecutor(DefaultRetryConfig(), o.clock, o.logger)
	}

	return o
}

// Providers returns the priority list.
func (o *Orchestrator) Providers() []string {
	return append([]string(nil), o.providers...)
}

// Execute tries each provider in priority order. Providers with an open
// circuit are skipped without an attempt. On success the breaker records
// the outcome and a tagged result is returned; on failure the breaker
// records it and the next provider is tried. When every provider is
// skipped or fails, the fallback serves the answer.
func (o *Orchestrator) Execute(ctx context.Context, op Operation, fallback Fallback) Result {
	for _, provider := range o.providers {
		state := o.breaker.State(provider)
		if state == breaker.StateOpen {
			o.logger.Printf("skipping provider %s: circuit open", provider)
			continue
		}

		start := o.clock.Now()
		value, retries, err := o.executor.ExecuteWithRetry(ctx, provider, op)
		if err != nil {
			if ctx.Err() != nil {
				// Caller cancellation is not a provider fault; stop
				// walking the list and serve the fallback.
				o.logger.Printf("context done during %s call: %v", provider, ctx.Err())
				break
			}
			o.breaker.RecordFailure(provider, err.Error())
			o.logger.Printf("provider %s failed after %d retries: %v", provider, retries, err)
			continue
		}

		o.breaker.RecordSuccess(provider, o.clock.Now().Sub(start))
		return Result{
			Value:    value,
			Source:   SourceAI,
			Provider: provider,
			Degraded: state == breaker.StateHalfOpen,
			Retries:  retries,
		}
	}

	o.logger.Printf("all providers exhausted, serving fallback")
	result := Result{Source: SourceFallback, Degraded: true}
	if fallback != nil {
		result.Value = fallback()
	}
	return result
}
