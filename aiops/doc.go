// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package aiops provides the AxonFlow AI core - the request orchestration
and resilience layer between tenant-facing AI features and external
model providers.

# Overview

The AI core sits between business use cases (audit search, narrative
generation, anomaly detection, vendor pricing analysis) and the LLM
vendors that serve them. It guarantees that a caller always receives an
answer - AI-sourced, cached, or a rule-based fallback - regardless of
provider health.

# Architecture

Invocations flow through a pipeline:

	Request → Model Selector → Response Cache → Failover Orchestrator → Monitor → Response

Each stage is owned by its own package:

  - breaker: per-provider three-state circuit breakers
  - failover: retry with exponential backoff and provider failover
  - selector: requirement-driven model selection and cost reporting
  - cache: per-use-case TTL cache with age-based eviction
  - monitor: bounded sample ring, threshold alerts, Prometheus export
  - abtest: controlled model comparisons with reservoir sampling
  - events: the lifecycle notification bus

# Usage

Embed the core in a host service:

	config, err := aiops.LoadConfig("config/aiops.yaml")
	svc, err := aiops.NewService(config, providerCall)
	svc.Start()
	defer svc.Close()

	resp := svc.Invoke(ctx, aiops.Request{
	    UseCase: "audit-search",
	    Prompt:  prompt,
	    Fallback: func() any { return ruleBasedSearch(query) },
	})

Or run it standalone with the ops API:

	aiops.Run(providerCall)

# Ops API

The HTTP surface exposes provider health, metrics summaries, cache
statistics, A/B test management and cost reports under /api/v1/ai.
Mutating endpoints require an admin JWT.
*/
package aiops
