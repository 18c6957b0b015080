// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package failover executes AI provider calls with bounded retries,
// exponential backoff and circuit-breaker-aware failover across a fixed
// provider priority list. Callers always receive a tagged result; when
// every provider is exhausted the supplied fallback serves the answer.
package failover

import (
	"context"
	"log"
	"math"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Operation is the provider call contract: it invokes the named provider
// and returns its answer. The context bounds the call; adapters are
// expected to honor transport-level deadlines carried on it.
type Operation func(ctx context.Context, provider string) (any, error)

// Fallback produces the deterministic default answer used when all
// providers are exhausted. It must be synchronous, side-effect free and
// must not panic.
type Fallback func() any

// RetryConfig holds the retry executor tuning. Immutable once set.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the backoff between attempts.
	MaxDelay time.Duration

	// ExponentialBase is the backoff growth factor per attempt.
	ExponentialBase float64
}

// DefaultRetryConfig returns the standard retry tuning.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		ExponentialBase: 2,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxRetries < 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.ExponentialBase <= 1 {
		c.ExponentialBase = d.ExponentialBase
	}
	return c
}

// Executor retries a single provider call with exponential backoff and
// jitter. Terminal failures abort immediately.
type Executor struct {
	config RetryConfig
	clock  clock.Clock
	logger *log.Logger

	random *rand.Rand
	mu     sync.Mutex
}

// NewExecutor creates a retry executor.
func NewExecutor(config RetryConfig, clk clock.Clock, logger *log.Logger) *Executor {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[AI_RETRY] ", log.LstdFlags)
	}
	return &Executor{
		config: config.withDefaults(),
		clock:  clk,
		logger: logger,
		random: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ExecuteWithRetry attempts the operation up to MaxRetries+1 times.
// It returns the value, the number of retries performed, and the last
// error when all attempts fail. Terminal errors propagate without
// consuming further retry budget.
func (e *Executor) ExecuteWithRetry(ctx context.Context, provider string, op Operation) (any, int, error) {
	var lastErr *ProviderError

	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		value, err := op(ctx, provider)
		if err == nil {
			return value, attempt, nil
		}

		lastErr = Classify(provider, err)
		if lastErr.Terminal {
			e.logger.Printf("terminal error from %s (code=%s), aborting: %v",
				provider, lastErr.Code, lastErr)
			return nil, attempt, lastErr
		}

		if attempt == e.config.MaxRetries {
			break
		}

		delay := e.backoff(attempt)
		e.logger.Printf("transient error from %s (attempt %d/%d), retrying in %v: %v",
			provider, attempt+1, e.config.MaxRetries+1, delay, lastErr)

		select {
		case <-e.clock.After(delay):
		case <-ctx.Done():
			return nil, attempt, ctx.Err()
		}
	}

	return nil, e.config.MaxRetries, lastErr
}

// backoff computes min(initial × base^attempt + jitter(≤10%), max).
func (e *Executor) backoff(attempt int) time.Duration {
	base := float64(e.config.InitialDelay) * math.Pow(e.config.ExponentialBase, float64(attempt))

	e.mu.Lock()
	jitter := base * 0.1 * e.random.Float64()
	e.mu.Unlock()

	delay := time.Duration(base + jitter)
	if delay > e.config.MaxDelay {
		delay = e.config.MaxDelay
	}
	return delay
}
