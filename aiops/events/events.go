// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package events provides the lifecycle notification bus for the AI core.
//
// The circuit breaker and the performance monitor publish named events
// (circuit-open, circuit-half-open, circuit-close, latency-alert,
// error-rate-alert, cost-alert) that observability collaborators can
// subscribe to. The bus is the layer's only outward-facing surface; it
// deliberately has no network protocol of its own.
package events

import (
	"log"
	"os"
	"sync"
	"time"
)

// Event names published by the AI core.
const (
	CircuitOpen     = "circuit-open"
	CircuitHalfOpen = "circuit-half-open"
	CircuitClose    = "circuit-close"
	LatencyAlert    = "latency-alert"
	ErrorRateAlert  = "error-rate-alert"
	CostAlert       = "cost-alert"
)

// Event is a lifecycle notification.
type Event struct {
	Name      string         `json:"name"`
	Provider  string         `json:"provider,omitempty"`
	UseCase   string         `json:"use_case,omitempty"`
	Message   string         `json:"message,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Handler processes a published event. Handlers run synchronously on the
// publisher's goroutine and must not block.
type Handler func(Event)

// Bus is an in-process publish/subscribe dispatcher. It is safe for
// concurrent use. Subscribing to the wildcard name "*" receives every
// event.
type Bus struct {
	handlers map[string][]Handler
	logger   *log.Logger
	mu       sync.RWMutex
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   log.New(os.Stdout, "[AI_EVENTS] ", log.LstdFlags),
	}
}

// Subscribe registers a handler for the named event, or for all events
// when name is "*".
func (b *Bus) Subscribe(name string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// Publish delivers the event to all matching handlers. A panicking
// handler is recovered and logged; it never aborts the publisher.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	matched := make([]Handler, 0, len(b.handlers[event.Name])+len(b.handlers["*"]))
	matched = append(matched, b.handlers[event.Name]...)
	matched = append(matched, b.handlers["*"]...)
	b.mu.RUnlock()

	for _, h := range matched {
		b.dispatch(h, event)
	}
}

func (b *Bus) dispatch(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Printf("handler panic for %s: %v", event.Name, r)
		}
	}()
	h(event)
}

// LogSubscriber returns a handler that logs every event it receives.
// Useful as a default observability sink.
func LogSubscriber(logger *log.Logger) Handler {
	if logger == nil {
		logger = log.Default()
	}
	return func(e Event) {
		logger.Printf("[AI EVENT] %s provider=%s use_case=%s: %s",
			e.Name, e.Provider, e.UseCase, e.Message)
	}
}
