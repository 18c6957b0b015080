// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package abtest runs controlled comparisons between two model/provider
// configurations. Traffic is split by a Bernoulli draw, per-arm metrics
// are aggregated as running totals plus a fixed-size latency reservoir,
// and results are scored by a composite of latency, cost and error rate.
package abtest

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"axonflow/aicore/aiops/sampling"
)

const (
	// Minimum requests per arm before a verdict is attempted.
	minSamplesPerArm = 30

	// Composite-score relative difference below which the arms tie.
	tieThreshold = 0.10

	// Deltas below this share are omitted from the recommendation.
	materialityThreshold = 0.05

	latencyReservoirSize = 1000
)

// Composite score weights: latency, cost, error rate.
const (
	weightLatency   = 0.4
	weightCost      = 0.3
	weightErrorRate = 0.3
)

// Verdict values returned by GetResults.
const (
	VerdictInconclusive = "INCONCLUSIVE"
	VerdictTie          = "TIE"
	VerdictWinner       = "WINNER"
)

// ArmConfig names one side of a test.
type ArmConfig struct {
	Name     string `json:"name" yaml:"name"`
	Model    string `json:"model" yaml:"model"`
	Provider string `json:"provider" yaml:"provider"`
}

// TestConfig describes a test to start.
type TestConfig struct {
	Name    string    `json:"name" yaml:"name"`
	UseCase string    `json:"use_case" yaml:"use_case"`
	ArmA    ArmConfig `json:"arm_a" yaml:"arm_a"`
	ArmB    ArmConfig `json:"arm_b" yaml:"arm_b"`

	// TrafficSplit is the probability a request routes to arm A.
	// Zero means an even 0.5 split.
	TrafficSplit float64 `json:"traffic_split" yaml:"traffic_split"`
}

// Sample is one request outcome recorded against an arm.
type Sample struct {
	LatencyMs float64
	Cost      float64
	Success   bool
}

// ArmStats is a snapshot of one arm's aggregates.
type ArmStats struct {
	Name           string  `json:"name"`
	Model          string  `json:"model"`
	Provider       string  `json:"provider"`
	Requests       int64   `json:"requests"`
	Failures       int64   `json:"failures"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
	P95LatencyMs   float64 `json:"p95_latency_ms"`
	AvgCost        float64 `json:"avg_cost"`
	ErrorRate      float64 `json:"error_rate"`
	CompositeScore float64 `json:"composite_score"`
}

// Results is the verdict for one test.
type Results struct {
	TestID         string    `json:"test_id"`
	Name           string    `json:"name"`
	Verdict        string    `json:"verdict"`
	Winner         string    `json:"winner,omitempty"`
	Confidence     float64   `json:"confidence"`
	Recommendation string    `json:"recommendation"`
	ArmA           ArmStats  `json:"arm_a"`
	ArmB           ArmStats  `json:"arm_b"`
	StartedAt      time.Time `json:"started_at"`
	Active         bool      `json:"active"`
}

// TestInfo is the listing view of a test.
type TestInfo struct {
	TestID    string    `json:"test_id"`
	Name      string    `json:"name"`
	UseCase   string    `json:"use_case"`
	Active    bool      `json:"active"`
	StartedAt time.Time `json:"started_at"`
	Requests  int64     `json:"requests"`
}

type arm struct {
	config     ArmConfig
	requests   int64
	failures   int64
	latencySum float64
	costSum    float64
	latencies  *sampling.Reservoir
}

func newArm(config ArmConfig) *arm {
	return &arm{
		config:    config,
		latencies: sampling.NewReservoir(latencyReservoirSize),
	}
}

func (a *arm) record(s Sample) {
	a.requests++
	if !s.Success {
		a.failures++
	}
	a.latencySum += s.LatencyMs
	a.costSum += s.Cost
	a.latencies.Add(s.LatencyMs)
}

func (a *arm) avgLatencyMs() float64 {
	if a.requests == 0 {
		return 0
	}
	return a.latencySum / float64(a.requests)
}

func (a *arm) avgCost() float64 {
	if a.requests == 0 {
		return 0
	}
	return a.costSum / float64(a.requests)
}

func (a *arm) errorRate() float64 {
	if a.requests == 0 {
		return 0
	}
	return float64(a.failures) / float64(a.requests)
}

// compositeScore weighs latency, cost and error rate into a single
// lower-is-better number.
func (a *arm) compositeScore() float64 {
	return weightLatency*(a.avgLatencyMs()/1000) +
		weightCost*(a.avgCost()*1000) +
		weightErrorRate*(a.errorRate()*100)
}

func (a *arm) p95LatencyMs() float64 {
	values := a.latencies.Values()
	if len(values) == 0 {
		return 0
	}
	sort.Float64s(values)
	idx := int(math.Ceil(0.95*float64(len(values)))) - 1
	if idx < 0 {
		idx = 0
	}
	return values[idx]
}

func (a *arm) stats() ArmStats {
	return ArmStats{
		Name:           a.config.Name,
		Model:          a.config.Model,
		Provider:       a.config.Provider,
		Requests:       a.requests,
		Failures:       a.failures,
		AvgLatencyMs:   a.avgLatencyMs(),
		P95LatencyMs:   a.p95LatencyMs(),
		AvgCost:        a.avgCost(),
		ErrorRate:      a.errorRate(),
		CompositeScore: a.compositeScore(),
	}
}

type test struct {
	id        string
	config    TestConfig
	armA      *arm
	armB      *arm
	startedAt time.Time
	active    bool
}

// Manager owns the set of running and stopped tests.
type Manager struct {
	clock  clock.Clock
	logger *log.Logger

	mu     sync.Mutex
	tests  map[string]*test
	random *rand.Rand
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock substitutes the wall clock, used by tests.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithRandomSource substitutes the Bernoulli source, used by tests.
func WithRandomSource(src rand.Source) Option {
	return func(m *Manager) { m.random = rand.New(src) }
}

// NewManager creates an A/B test manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		clock:  clock.New(),
		logger: log.New(os.Stdout, "[AI-ABTEST] ", log.LstdFlags),
		tests:  make(map[string]*test),
		random: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartTest registers a new test and returns its ID.
func (m *Manager) StartTest(config TestConfig) (string, error) {
	if config.ArmA.Name == "" || config.ArmB.Name == "" {
		return "", fmt.Errorf("abtest: both arms must be named")
	}
	if config.ArmA.Name == config.ArmB.Name {
		return "", fmt.Errorf("abtest: arm names must differ")
	}
	if config.TrafficSplit < 0 || config.TrafficSplit > 1 {
		return "", fmt.Errorf("abtest: traffic split %v outside [0,1]", config.TrafficSplit)
	}
	if config.TrafficSplit == 0 {
		config.TrafficSplit = 0.5
	}

	id := uuid.New().String()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tests[id] = &test{
		id:        id,
		config:    config,
		armA:      newArm(config.ArmA),
		armB:      newArm(config.ArmB),
		startedAt: m.clock.Now(),
		active:    true,
	}
	m.logger.Printf("started test %s (%s): %s vs %s, split %.2f",
		id, config.Name, config.ArmA.Name, config.ArmB.Name, config.TrafficSplit)
	return id, nil
}

// RouteRequest assigns a request to an arm by a Bernoulli draw with the
// configured split. Routing is non-deterministic by design.
func (m *Manager) RouteRequest(testID string) (ArmConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tst, ok := m.tests[testID]
	if !ok {
		return ArmConfig{}, fmt.Errorf("abtest: unknown test %q", testID)
	}
	if !tst.active {
		return ArmConfig{}, fmt.Errorf("abtest: test %q is stopped", testID)
	}
	if m.random.Float64() < tst.config.TrafficSplit {
		return tst.config.ArmA, nil
	}
	return tst.config.ArmB, nil
}

// RecordMetrics records one request outcome against the named arm.
func (m *Manager) RecordMetrics(testID, armName string, s Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tst, ok := m.tests[testID]
	if !ok {
		return fmt.Errorf("abtest: unknown test %q", testID)
	}
	switch armName {
	case tst.config.ArmA.Name:
		tst.armA.record(s)
	case tst.config.ArmB.Name:
		tst.armB.record(s)
	default:
		return fmt.Errorf("abtest: test %q has no arm %q", testID, armName)
	}
	return nil
}

// GetResults scores both arms and returns a verdict.
func (m *Manager) GetResults(testID string) (Results, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tst, ok := m.tests[testID]
	if !ok {
		return Results{}, fmt.Errorf("abtest: unknown test %q", testID)
	}

	results := Results{
		TestID:    tst.id,
		Name:      tst.config.Name,
		ArmA:      tst.armA.stats(),
		ArmB:      tst.armB.stats(),
		StartedAt: tst.startedAt,
		Active:    tst.active,
	}

	if tst.armA.requests < minSamplesPerArm || tst.armB.requests < minSamplesPerArm {
		results.Verdict = VerdictInconclusive
		results.Confidence = 0
		results.Recommendation = fmt.Sprintf(
			"Need at least %d requests per arm (%s has %d, %s has %d).",
			minSamplesPerArm,
			tst.config.ArmA.Name, tst.armA.requests,
			tst.config.ArmB.Name, tst.armB.requests)
		return results, nil
	}

	scoreA := tst.armA.compositeScore()
	scoreB := tst.armB.compositeScore()
	relDiff := relativeDifference(scoreA, scoreB)

	if relDiff < tieThreshold {
		results.Verdict = VerdictTie
		results.Confidence = 0.9
		results.Recommendation = fmt.Sprintf(
			"No meaningful difference between %s and %s (%.1f%% score gap). Either configuration is fine.",
			tst.config.ArmA.Name, tst.config.ArmB.Name, relDiff*100)
		return results, nil
	}

	winner, loser := tst.armA, tst.armB
	if scoreB < scoreA {
		winner, loser = tst.armB, tst.armA
	}
	results.Verdict = VerdictWinner
	results.Winner = winner.config.Name
	results.Confidence = math.Min(0.99, 0.5+relDiff)
	results.Recommendation = recommendation(winner, loser)
	return results, nil
}

// StopTest marks the test inactive. Recorded metrics and results remain
// readable.
func (m *Manager) StopTest(testID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tst, ok := m.tests[testID]
	if !ok {
		return fmt.Errorf("abtest: unknown test %q", testID)
	}
	tst.active = false
	m.logger.Printf("stopped test %s (%s)", tst.id, tst.config.Name)
	return nil
}

// ListTests returns all tests, newest first.
func (m *Manager) ListTests() []TestInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]TestInfo, 0, len(m.tests))
	for _, tst := range m.tests {
		infos = append(infos, TestInfo{
			TestID:    tst.id,
			Name:      tst.config.Name,
			UseCase:   tst.config.UseCase,
			Active:    tst.active,
			StartedAt: tst.startedAt,
			Requests:  tst.armA.requests + tst.armB.requests,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].StartedAt.Equal(infos[j].StartedAt) {
			return infos[i].StartedAt.After(infos[j].StartedAt)
		}
		return infos[i].TestID < infos[j].TestID
	})
	return infos
}

// relativeDifference is |a-b| over the larger of the two.
func relativeDifference(a, b float64) float64 {
	max := math.Max(a, b)
	if max == 0 {
		return 0
	}
	return math.Abs(a-b) / max
}

// recommendation cites the latency, cost and error-rate deltas, keeping
// only those that individually exceed the materiality threshold.
func recommendation(winner, loser *arm) string {
	var reasons []string

	if d := relativeDifference(winner.avgLatencyMs(), loser.avgLatencyMs()); d > materialityThreshold && winner.avgLatencyMs() < loser.avgLatencyMs() {
		reasons = append(reasons, fmt.Sprintf("%.0f%% lower latency", d*100))
	}
	if d := relativeDifference(winner.avgCost(), loser.avgCost()); d > materialityThreshold && winner.avgCost() < loser.avgCost() {
		reasons = append(reasons, fmt.Sprintf("%.0f%% lower cost", d*100))
	}
	if d := relativeDifference(winner.errorRate(), loser.errorRate()); d > materialityThreshold && winner.errorRate() < loser.errorRate() {
		reasons = append(reasons, fmt.Sprintf("%.0f%% lower error rate", d*100))
	}

	if len(reasons) == 0 {
		return fmt.Sprintf("Switch to %s: better composite score overall.", winner.config.Name)
	}
	return fmt.Sprintf("Switch to %s: %s.", winner.config.Name, strings.Join(reasons, ", "))
}
