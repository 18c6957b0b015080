// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package selector chooses the model/provider configuration for a named
// use case from read-only reference data, balancing latency, accuracy,
// cost and capability constraints. Selection never fails: use cases with
// no satisfying candidate fall back to a baseline model with a logged
// warning.
package selector

import (
	"log"
	"os"
	"sort"
	"sync"
)

// Reference token mix used for per-request cost estimates: a 1000-token
// average request split 70% input / 30% output.
const (
	referenceRequestTokens = 1000
	referenceInputShare    = 0.7
)

// ModelConfig is read-only reference data describing a model offering.
type ModelConfig struct {
	ID               string   `yaml:"id" json:"id"`
	Provider         string   `yaml:"provider" json:"provider"`
	InputCostPer1K   float64  `yaml:"input_cost_per_1k" json:"input_cost_per_1k"`
	OutputCostPer1K  float64  `yaml:"output_cost_per_1k" json:"output_cost_per_1k"`
	AvgLatencyMs     float64  `yaml:"avg_latency_ms" json:"avg_latency_ms"`
	Accuracy         float64  `yaml:"accuracy" json:"accuracy"`
	MaxContextTokens int      `yaml:"max_context_tokens" json:"max_context_tokens"`
	MaxOutputTokens  int      `yaml:"max_output_tokens" json:"max_output_tokens"`
	Capabilities     []string `yaml:"capabilities" json:"capabilities"`
}

// HasCapabilities reports whether the model supports every required
// capability.
func (m ModelConfig) HasCapabilities(required []string) bool {
	for _, want := range required {
		found := false
		for _, have := range m.Capabilities {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Requirement constrains model selection for a use case.
type Requirement struct {
	MaxLatencyMs         float64  `yaml:"max_latency_ms" json:"max_latency_ms"`
	MinAccuracy          float64  `yaml:"min_accuracy" json:"min_accuracy"`
	PrioritizeCost       bool     `yaml:"prioritize_cost" json:"prioritize_cost"`
	RequiredCapabilities []string `yaml:"required_capabilities" json:"required_capabilities"`
}

// DefaultRequirement is applied to use cases with no configured
// requirement.
func DefaultRequirement() Requirement {
	return Requirement{
		MaxLatencyMs: 5000,
		MinAccuracy:  0.7,
	}
}

// Selector holds the model registry and per-use-case requirements.
// Reference data is replaced wholesale by Reload, never partially
// mutated.
type Selector struct {
	models       []ModelConfig
	requirements map[string]Requirement
	defaultReq   Requirement
	baselineID   string
	logger       *log.Logger
	mu           sync.RWMutex
}

// Option configures the Selector.
type Option func(*Selector)

// WithBaseline names the model returned when no candidate satisfies a
// use case's requirement. Defaults to the most accurate registered model.
func WithBaseline(modelID string) Option {
	return func(s *Selector) {
		s.baselineID = modelID
	}
}

// WithDefaultRequirement overrides the fallback requirement for unknown
// use cases.
func WithDefaultRequirement(req Requirement) Option {
	return func(s *Selector) {
		s.defaultReq = req
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Selector) {
		s.logger = l
	}
}

// New creates a Selector over the given reference data.
func New(models []ModelConfig, requirements map[string]Requirement, opts ...Option) *Selector {
	s := &Selector{
		models:       append([]ModelConfig(nil), models...),
		requirements: make(map[string]Requirement, len(requirements)),
		defaultReq:   DefaultRequirement(),
		logger:       log.New(os.Stdout, "[AI_SELECTOR] ", log.LstdFlags),
	}
	for name, req := range requirements {
		s.requirements[name] = req
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Reload replaces the model registry and requirements wholesale. Used by
// the configuration hot-reload path.
func (s *Selector) Reload(models []ModelConfig, requirements map[string]Requirement) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.models = append([]ModelConfig(nil), models...)
	s.requirements = make(map[string]Requirement, len(requirements))
	for name, req := range requirements {
		s.requirements[name] = req
	}
	s.logger.Printf("reloaded reference data: %d models, %d use-case requirements",
		len(s.models), len(s.requirements))
}

// Requirement returns the requirement applied to useCase.
func (s *Selector) Requirement(useCase string) Requirement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requirementLocked(useCase)
}

func (s *Selector) requirementLocked(useCase string) Requirement {
	if req, ok := s.requirements[useCase]; ok {
		return req
	}
	return s.defaultReq
}

// SelectModel returns the best model configuration for the use case.
// Candidates must satisfy the requirement's latency ceiling, accuracy
// floor and capability set. Cost-prioritized use cases order candidates
// by estimated per-request cost ascending; everything else orders by
// accuracy descending with latency as the tiebreak. This method never
// fails: an empty candidate set logs a warning and returns the baseline.
func (s *Selector) SelectModel(useCase string) ModelConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req := s.requirementLocked(useCase)

	var candidates []ModelConfig
	for _, m := range s.models {
		if m.AvgLatencyMs <= req.MaxLatencyMs &&
			m.Accuracy >= req.MinAccuracy &&
			m.HasCapabilities(req.RequiredCapabilities) {
			candidates = append(candidates, m)
		}
	}

	if len(candidates) == 0 {
		baseline := s.baselineLocked()
		s.logger.Printf("WARNING: no model satisfies use case %q, falling back to baseline %q",
			useCase, baseline.ID)
		return baseline
	}

	if req.PrioritizeCost {
		sort.SliceStable(candidates, func(i, j int) bool {
			ci, cj := EstimateRequestCost(candidates[i]), EstimateRequestCost(candidates[j])
			if ci != cj {
				return ci < cj
			}
			return candidates[i].ID < candidates[j].ID
		})
	} else {
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].Accuracy != candidates[j].Accuracy {
				return candidates[i].Accuracy > candidates[j].Accuracy
			}
			if candidates[i].AvgLatencyMs != candidates[j].AvgLatencyMs {
				return candidates[i].AvgLatencyMs < candidates[j].AvgLatencyMs
			}
			return candidates[i].ID < candidates[j].ID
		})
	}

	return candidates[0]
}

// Baseline returns the baseline model.
func (s *Selector) Baseline() ModelConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baselineLocked()
}

// baselineLocked resolves the configured baseline, defaulting to the most
// accurate registered model.
func (s *Selector) baselineLocked() ModelConfig {
	if s.baselineID != "" {
		for _, m := range s.models {
			if m.ID == s.baselineID {
				return m
			}
		}
	}

	var best ModelConfig
	for _, m := range s.models {
		if m.Accuracy > best.Accuracy {
			best = m
		}
	}
	return best
}

// Models returns a copy of the model registry.
func (s *Selector) Models() []ModelConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ModelConfig(nil), s.models...)
}

// EstimateRequestCost estimates the cost of one average request against
// the model, using the documented reference token mix.
func EstimateRequestCost(m ModelConfig) float64 {
	inputTokens := referenceRequestTokens * referenceInputShare
	outputTokens := referenceRequestTokens * (1 - referenceInputShare)
	return inputTokens/1000*m.InputCostPer1K + outputTokens/1000*m.OutputCostPer1K
}
