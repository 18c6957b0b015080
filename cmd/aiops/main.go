// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package main is the entry point for the AxonFlow AI Core service.
//
// The AI Core is the orchestration and resilience layer for AI requests:
// - Per-provider circuit breakers with automatic half-open recovery
// - Retry with exponential backoff and provider failover
// - Requirement-driven model selection with cost reporting
// - Per-use-case response caching
// - Performance monitoring, alerting and A/B testing
//
// Usage:
//
//	./aiops
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8090)
//	AI_CONFIG_PATH - YAML config path (default: config/aiops.yaml)
//	AI_ADMIN_JWT_SECRET - referenced from the config file for admin endpoints
//
// For more information, see https://docs.getaxonflow.com
package main

import (
	"axonflow/aicore/aiops"
)

func main() {
	// Standalone deployments have no vendor adapters wired in; hosts
	// embedding the library pass their ProviderCall to aiops.Run.
	aiops.Run(nil)
}
