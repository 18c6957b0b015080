// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package selector

import (
	"testing"
)

func testModels() []ModelConfig {
	return []ModelConfig{
		{
			ID:              "gpt-4o",
			Provider:        "openai",
			InputCostPer1K:  0.0025,
			OutputCostPer1K: 0.01,
			AvgLatencyMs:    1200,
			Accuracy:        0.95,
			Capabilities:    []string{"chat", "function_calling", "long_context"},
		},
		{
			ID:              "gpt-4o-mini",
			Provider:        "openai",
			InputCostPer1K:  0.00015,
			OutputCostPer1K: 0.0006,
			AvgLatencyMs:    600,
			Accuracy:        0.85,
			Capabilities:    []string{"chat", "function_calling"},
		},
		{
			ID:              "claude-sonnet",
			Provider:        "anthropic",
			InputCostPer1K:  0.003,
			OutputCostPer1K: 0.015,
			AvgLatencyMs:    1500,
			Accuracy:        0.95,
			Capabilities:    []string{"chat", "function_calling", "long_context"},
		},
		{
			ID:              "gemini-flash",
			Provider:        "gemini",
			InputCostPer1K:  0.0001,
			OutputCostPer1K: 0.0004,
			AvgLatencyMs:    400,
			Accuracy:        0.8,
			Capabilities:    []string{"chat"},
		},
	}
}

func TestSelectModel_AccuracyFirstByDefault(t *testing.T) {
	s := New(testModels(), map[string]Requirement{
		"narrative": {MaxLatencyMs: 3000, MinAccuracy: 0.9},
	})

	got := s.SelectModel("narrative")

	// gpt-4o and claude-sonnet tie on accuracy; the lower-latency one wins.
	if got.ID != "gpt-4o" {
		t.Errorf("selected %q, want gpt-4o (accuracy tie broken by latency)", got.ID)
	}
}

func TestSelectModel_CostPriority(t *testing.T) {
	s := New(testModels(), map[string]Requirement{
		"financial-masking": {MaxLatencyMs: 2000, MinAccuracy: 0.75, PrioritizeCost: true},
	})

	got := s.SelectModel("financial-masking")

	if got.ID != "gemini-flash" {
		t.Errorf("selected %q, want gemini-flash (cheapest satisfying candidate)", got.ID)
	}
}

func TestSelectModel_CapabilityFilter(t *testing.T) {
	s := New(testModels(), map[string]Requirement{
		"audit-search": {
			MaxLatencyMs:         2000,
			MinAccuracy:          0.75,
			PrioritizeCost:       true,
			RequiredCapabilities: []string{"function_calling"},
		},
	})

	got := s.SelectModel("audit-search")

	// gemini-flash is cheaper but lacks function_calling.
	if got.ID != "gpt-4o-mini" {
		t.Errorf("selected %q, want gpt-4o-mini", got.ID)
	}
}

func TestSelectModel_UnknownUseCaseUsesDefaultRequirement(t *testing.T) {
	s := New(testModels(), nil)

	got := s.SelectModel("never-configured")

	// Default requirement: latency <= 5000, accuracy >= 0.7. Everything
	// qualifies, ordered by accuracy then latency.
	if got.ID != "gpt-4o" {
		t.Errorf("selected %q, want gpt-4o", got.ID)
	}
}

func TestSelectModel_NoCandidateFallsBackToBaseline(t *testing.T) {
	s := New(testModels(), map[string]Requirement{
		"impossible": {MaxLatencyMs: 10, MinAccuracy: 0.99},
	}, WithBaseline("gpt-4o-mini"))

	got := s.SelectModel("impossible")

	if got.ID != "gpt-4o-mini" {
		t.Errorf("selected %q, want configured baseline gpt-4o-mini", got.ID)
	}
}

func TestSelectModel_DefaultBaselineIsMostAccurate(t *testing.T) {
	s := New(testModels(), map[string]Requirement{
		"impossible": {MaxLatencyMs: 10, MinAccuracy: 0.99},
	})

	got := s.SelectModel("impossible")

	if got.Accuracy != 0.95 {
		t.Errorf("baseline accuracy = %v, want the most accurate model", got.Accuracy)
	}
}

func TestEstimateRequestCost(t *testing.T) {
	m := ModelConfig{InputCostPer1K: 0.01, OutputCostPer1K: 0.02}

	// 700 input + 300 output tokens of a 1000-token reference request.
	want := 700.0/1000*0.01 + 300.0/1000*0.02
	if got := EstimateRequestCost(m); got != want {
		t.Errorf("EstimateRequestCost = %v, want %v", got, want)
	}
}

func TestReload_SwapsReferenceData(t *testing.T) {
	s := New(testModels(), nil)

	s.Reload([]ModelConfig{{
		ID:           "only-model",
		Provider:     "openai",
		AvgLatencyMs: 100,
		Accuracy:     0.9,
	}}, map[string]Requirement{
		"anything": {MaxLatencyMs: 1000, MinAccuracy: 0.5},
	})

	if got := s.SelectModel("anything"); got.ID != "only-model" {
		t.Errorf("selected %q after reload, want only-model", got.ID)
	}
	if len(s.Models()) != 1 {
		t.Errorf("registry size = %d, want 1", len(s.Models()))
	}
}
