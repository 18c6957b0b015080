// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package monitor records per-request performance samples for the AI core
// and raises threshold alerts on the events bus.
//
// Samples live in a bounded in-memory ring (oldest dropped beyond the cap)
// and feed both ad hoc summaries and the Prometheus collectors exported by
// the platform's /metrics endpoint.
package monitor

import (
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"axonflow/aicore/aiops/events"
)

const (
	defaultMaxSamples = 50000
	defaultMaxAlerts  = 1000

	// Latency alert threshold applied to use cases without an explicit
	// per-use-case threshold.
	defaultLatencyThresholdMs = 5000

	// Trailing window and floor for the error-rate rule.
	errorRateWindow     = 5 * time.Minute
	errorRateMinSamples = 10
	errorRateThreshold  = 0.05

	// Cost alerts fire when a single request costs more than this multiple
	// of the use case's exponentially averaged cost.
	costAlertMultiplier = 2.0
	costEMAWeight       = 0.9
)

// Prometheus metrics
var (
	promAIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "axonflow_aicore_requests_total",
			Help: "Total AI requests recorded by the performance monitor",
		},
		[]string{"use_case", "provider", "status"},
	)
	promAIRequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "axonflow_aicore_request_latency_milliseconds",
			Help:    "AI request latency in milliseconds",
			Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000},
		},
		[]string{"use_case"},
	)
	promAIRequestCost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "axonflow_aicore_request_cost_usd_total",
			Help: "Cumulative AI request cost in USD",
		},
		[]string{"use_case", "model"},
	)
	promAIAlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "axonflow_aicore_alerts_total",
			Help: "Total performance alerts raised by the monitor",
		},
		[]string{"rule"},
	)
)

func init() {
	// Register Prometheus metrics
	prometheus.MustRegister(promAIRequestsTotal)
	prometheus.MustRegister(promAIRequestLatency)
	prometheus.MustRegister(promAIRequestCost)
	prometheus.MustRegister(promAIAlertsTotal)
}

// Sample is one recorded AI request.
type Sample struct {
	UseCase      string    `json:"use_case"`
	Model        string    `json:"model"`
	Provider     string    `json:"provider"`
	LatencyMs    float64   `json:"latency_ms"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	Success      bool      `json:"success"`
	ErrorType    string    `json:"error_type,omitempty"`
	Cached       bool      `json:"cached"`
	Timestamp    time.Time `json:"timestamp"`
}

// Alert rule identifiers.
const (
	RuleLatency   = "latency"
	RuleErrorRate = "error-rate"
	RuleCost      = "cost"
)

// Alert is one threshold violation. Alerts are kept in a capped log and
// mirrored onto the events bus.
type Alert struct {
	Rule      string    `json:"rule"`
	UseCase   string    `json:"use_case"`
	Provider  string    `json:"provider,omitempty"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats is the summary computation for one set of samples.
type Stats struct {
	Count        int     `json:"count"`
	SuccessRate  float64 `json:"success_rate"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	P50LatencyMs float64 `json:"p50_latency_ms"`
	P95LatencyMs float64 `json:"p95_latency_ms"`
	P99LatencyMs float64 `json:"p99_latency_ms"`
	TotalCost    float64 `json:"total_cost"`
	CacheHitRate float64 `json:"cache_hit_rate"`
}

// Summary is the monitor's report over a trailing period.
type Summary struct {
	Stats
	PeriodMinutes int              `json:"period_minutes"`
	UseCases      map[string]Stats `json:"use_cases"`
	Alerts        []Alert          `json:"alerts"`
}

// Config tunes the monitor's alerting rules and buffer sizes.
type Config struct {
	// LatencyThresholdsMs maps a use case to its p95 latency alert
	// threshold. Use cases without an entry use DefaultLatencyThresholdMs.
	LatencyThresholdsMs map[string]float64

	DefaultLatencyThresholdMs float64

	MaxSamples int
	MaxAlerts  int
}

func (c Config) withDefaults() Config {
	if c.DefaultLatencyThresholdMs <= 0 {
		c.DefaultLatencyThresholdMs = defaultLatencyThresholdMs
	}
	if c.MaxSamples <= 0 {
		c.MaxSamples = defaultMaxSamples
	}
	if c.MaxAlerts <= 0 {
		c.MaxAlerts = defaultMaxAlerts
	}
	return c
}

// Monitor records samples and evaluates the alerting rules.
type Monitor struct {
	config Config
	clock  clock.Clock
	events *events.Bus
	logger *log.Logger

	mu      sync.Mutex
	samples []Sample
	alerts  []Alert

	// Per-use-case exponentially averaged request cost.
	costEMA map[string]float64
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock substitutes the wall clock, used by tests.
func WithClock(c clock.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithEvents attaches the lifecycle event bus alerts publish to.
func WithEvents(bus *events.Bus) Option {
	return func(m *Monitor) { m.events = bus }
}

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// NewMonitor creates a performance monitor.
func NewMonitor(config Config, opts ...Option) *Monitor {
	m := &Monitor{
		config:  config.withDefaults(),
		clock:   clock.New(),
		logger:  log.New(os.Stdout, "[AI-MONITOR] ", log.LstdFlags),
		costEMA: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Record appends a sample and evaluates the three alerting rules in order:
// latency threshold, trailing error rate, cost spike.
func (m *Monitor) Record(s Sample) {
	if s.Timestamp.IsZero() {
		s.Timestamp = m.clock.Now()
	}

	status := "success"
	if !s.Success {
		status = "error"
	}
	promAIRequestsTotal.WithLabelValues(s.UseCase, s.Provider, status).Inc()
	promAIRequestLatency.WithLabelValues(s.UseCase).Observe(s.LatencyMs)
	promAIRequestCost.WithLabelValues(s.UseCase, s.Model).Add(s.Cost)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.samples = append(m.samples, s)
	if len(m.samples) > m.config.MaxSamples {
		m.samples = m.samples[len(m.samples)-m.config.MaxSamples:]
	}

	m.checkLatencyLocked(s)
	m.checkErrorRateLocked(s)
	m.checkCostLocked(s)
}

func (m *Monitor) latencyThreshold(useCase string) float64 {
	if t, ok := m.config.LatencyThresholdsMs[useCase]; ok {
		return t
	}
	return m.config.DefaultLatencyThresholdMs
}

func (m *Monitor) checkLatencyLocked(s Sample) {
	threshold := m.latencyThreshold(s.UseCase)
	if s.LatencyMs <= threshold {
		return
	}
	m.raiseLocked(Alert{
		Rule:      RuleLatency,
		UseCase:   s.UseCase,
		Provider:  s.Provider,
		Message:   fmt.Sprintf("latency %.0fms exceeds threshold %.0fms for %s", s.LatencyMs, threshold, s.UseCase),
		Value:     s.LatencyMs,
		Threshold: threshold,
		Timestamp: s.Timestamp,
	}, events.LatencyAlert)
}

func (m *Monitor) checkErrorRateLocked(s Sample) {
	if s.Success {
		return
	}
	cutoff := m.clock.Now().Add(-errorRateWindow)
	var total, failed int
	for i := len(m.samples) - 1; i >= 0; i-- {
		sm := m.samples[i]
		if sm.Timestamp.Before(cutoff) {
			break
		}
		if sm.UseCase != s.UseCase {
			continue
		}
		total++
		if !sm.Success {
			failed++
		}
	}
	if total < errorRateMinSamples {
		return
	}
	rate := float64(failed) / float64(total)
	if rate <= errorRateThreshold {
		return
	}
	m.raiseLocked(Alert{
		Rule:      RuleErrorRate,
		UseCase:   s.UseCase,
		Provider:  s.Provider,
		Message:   fmt.Sprintf("error rate %.1f%% over last %s for %s (%d/%d failed)", rate*100, errorRateWindow, s.UseCase, failed, total),
		Value:     rate,
		Threshold: errorRateThreshold,
		Timestamp: s.Timestamp,
	}, events.ErrorRateAlert)
}

func (m *Monitor) checkCostLocked(s Sample) {
	ema, seeded := m.costEMA[s.UseCase]
	if seeded && ema > 0 && s.Cost > costAlertMultiplier*ema {
		m.raiseLocked(Alert{
			Rule:      RuleCost,
			UseCase:   s.UseCase,
			Provider:  s.Provider,
			Message:   fmt.Sprintf("cost $%.4f exceeds %gx average $%.4f for %s", s.Cost, costAlertMultiplier, ema, s.UseCase),
			Value:     s.Cost,
			Threshold: costAlertMultiplier * ema,
			Timestamp: s.Timestamp,
		}, events.CostAlert)
	}
	if !seeded {
		m.costEMA[s.UseCase] = s.Cost
		return
	}
	m.costEMA[s.UseCase] = costEMAWeight*ema + (1-costEMAWeight)*s.Cost
}

func (m *Monitor) raiseLocked(a Alert, eventName string) {
	m.alerts = append(m.alerts, a)
	if len(m.alerts) > m.config.MaxAlerts {
		m.alerts = m.alerts[len(m.alerts)-m.config.MaxAlerts:]
	}
	promAIAlertsTotal.WithLabelValues(a.Rule).Inc()
	m.logger.Printf("WARNING: %s alert: %s", a.Rule, a.Message)
	if m.events != nil {
		m.events.Publish(events.Event{
			Name:     eventName,
			Provider: a.Provider,
			UseCase:  a.UseCase,
			Message:  a.Message,
			Fields: map[string]any{
				"value":     a.Value,
				"threshold": a.Threshold,
			},
			Timestamp: a.Timestamp,
		})
	}
}

// GetSummary reports aggregate statistics over the trailing period.
func (m *Monitor) GetSummary(period time.Duration) Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.clock.Now().Add(-period)

	var window []Sample
	for _, s := range m.samples {
		if !s.Timestamp.Before(cutoff) {
			window = append(window, s)
		}
	}

	byUseCase := make(map[string][]Sample)
	for _, s := range window {
		byUseCase[s.UseCase] = append(byUseCase[s.UseCase], s)
	}

	summary := Summary{
		Stats:         computeStats(window),
		PeriodMinutes: int(period / time.Minute),
		UseCases:      make(map[string]Stats, len(byUseCase)),
	}
	for uc, samples := range byUseCase {
		summary.UseCases[uc] = computeStats(samples)
	}
	for _, a := range m.alerts {
		if !a.Timestamp.Before(cutoff) {
			summary.Alerts = append(summary.Alerts, a)
		}
	}
	return summary
}

// Usage reports per-use-case token and request totals over the trailing
// period, the input the cost report generator consumes.
func (m *Monitor) Usage(period time.Duration) map[string]UsageTotals {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.clock.Now().Add(-period)
	usage := make(map[string]UsageTotals)
	for _, s := range m.samples {
		if s.Timestamp.Before(cutoff) {
			continue
		}
		u := usage[s.UseCase]
		u.Requests++
		u.InputTokens += int64(s.InputTokens)
		u.OutputTokens += int64(s.OutputTokens)
		u.Cost += s.Cost
		usage[s.UseCase] = u
	}
	return usage
}

// UsageTotals aggregates token volume and spend for one use case.
type UsageTotals struct {
	Requests     int64   `json:"requests"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

func computeStats(samples []Sample) Stats {
	n := len(samples)
	if n == 0 {
		return Stats{}
	}

	latencies := make([]float64, 0, n)
	var succeeded, cached int
	var latencySum, costSum float64
	for _, s := range samples {
		latencies = append(latencies, s.LatencyMs)
		latencySum += s.LatencyMs
		costSum += s.Cost
		if s.Success {
			succeeded++
		}
		if s.Cached {
			cached++
		}
	}
	sort.Float64s(latencies)

	return Stats{
		Count:        n,
		SuccessRate:  float64(succeeded) / float64(n),
		AvgLatencyMs: latencySum / float64(n),
		P50LatencyMs: percentile(latencies, 50),
		P95LatencyMs: percentile(latencies, 95),
		P99LatencyMs: percentile(latencies, 99),
		TotalCost:    costSum,
		CacheHitRate: float64(cached) / float64(n),
	}
}

// percentile returns the nearest-rank percentile of an ascending-sorted
// slice: index = ceil(p/100 x n) - 1, clamped. No interpolation.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}
