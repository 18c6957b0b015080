// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package selector

import (
	"sort"
	"time"
)

// UseCaseUsage is the observed request and token volume for one use case.
type UseCaseUsage struct {
	Requests     int64 `json:"requests"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// UseCaseCost compares the cost of the selected model against the
// baseline reference model at the same volume.
type UseCaseCost struct {
	UseCase        string  `json:"use_case"`
	Model          string  `json:"model"`
	Requests       int64   `json:"requests"`
	ActualCost     float64 `json:"actual_cost_usd"`
	BaselineCost   float64 `json:"baseline_cost_usd"`
	Savings        float64 `json:"savings_usd"`
	SavingsPercent float64 `json:"savings_percent"`
}

// CostReport is the portfolio-wide cost comparison.
type CostReport struct {
	GeneratedAt    time.Time     `json:"generated_at"`
	BaselineModel  string        `json:"baseline_model"`
	UseCases       []UseCaseCost `json:"use_cases"`
	TotalActual    float64       `json:"total_actual_usd"`
	TotalBaseline  float64       `json:"total_baseline_usd"`
	TotalSavings   float64       `json:"total_savings_usd"`
	SavingsPercent float64       `json:"total_savings_percent"`
}

// GenerateCostReport computes, per use case, the actual cost of the
// selected model at the observed token volume versus the cost of running
// the same volume through the most expensive reference model, plus a
// portfolio-wide total. Pure over the usage input and the registry.
func (s *Selector) GenerateCostReport(usage map[string]UseCaseUsage) CostReport {
	reference := s.mostExpensiveModel()

	report := CostReport{
		GeneratedAt:   time.Now().UTC(),
		BaselineModel: reference.ID,
	}

	names := make([]string, 0, len(usage))
	for name := range usage {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		u := usage[name]
		selected := s.SelectModel(name)

		actual := tokenCost(selected, u.InputTokens, u.OutputTokens)
		baseline := tokenCost(reference, u.InputTokens, u.OutputTokens)

		entry := UseCaseCost{
			UseCase:      name,
			Model:        selected.ID,
			Requests:     u.Requests,
			ActualCost:   actual,
			BaselineCost: baseline,
			Savings:      baseline - actual,
		}
		if baseline > 0 {
			entry.SavingsPercent = entry.Savings / baseline * 100
		}

		report.UseCases = append(report.UseCases, entry)
		report.TotalActual += actual
		report.TotalBaseline += baseline
	}

	report.TotalSavings = report.TotalBaseline - report.TotalActual
	if report.TotalBaseline > 0 {
		report.SavingsPercent = report.TotalSavings / report.TotalBaseline * 100
	}

	return report
}

// mostExpensiveModel returns the reference model with the highest
// estimated per-request cost.
func (s *Selector) mostExpensiveModel() ModelConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best ModelConfig
	bestCost := -1.0
	for _, m := range s.models {
		if c := EstimateRequestCost(m); c > bestCost {
			best, bestCost = m, c
		}
	}
	return best
}

// tokenCost prices an observed token volume against a model.
func tokenCost(m ModelConfig, inputTokens, outputTokens int64) float64 {
	return float64(inputTokens)/1000*m.InputCostPer1K +
		float64(outputTokens)/1000*m.OutputCostPer1K
}
