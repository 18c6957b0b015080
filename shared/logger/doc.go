// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package logger provides structured JSON logging for the AxonFlow AI core.

# Overview

The logger package provides structured logging that outputs JSON to stdout,
making logs easily consumable by CloudWatch, ELK stack, or other log
aggregation systems.

Each log entry includes:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (aiops, api, etc.)
  - Instance ID and container name (for distributed tracing)
  - Use case (the AI workload the entry belongs to)
  - Request ID (for request correlation)
  - Custom fields

# Usage

Create a logger for your component:

	log := logger.New("aiops")

Log messages with use-case and request context:

	log.Info("audit-search", "req-456", "Serving from cache", map[string]interface{}{
	    "model":    "gpt-4o-mini",
	    "provider": "openai",
	})

Log errors with the causing error attached:

	log.ErrorWithCause("audit-search", "req-456", "Provider call failed", err, nil)

Log with duration tracking:

	start := time.Now()
	// ... do work ...
	log.InfoWithDuration("audit-search", "req-456", "Request completed",
	    float64(time.Since(start).Milliseconds()), nil)

# Output Format

Log entries are output as single-line JSON:

	{"timestamp":"2025-01-15T10:30:00.123456789Z","level":"INFO",
	 "component":"aiops","instance_id":"i-abc123","container":"aiops-xyz",
	 "use_case":"audit-search","request_id":"req-456",
	 "message":"Serving from cache","fields":{"model":"gpt-4o-mini"}}

# Environment Variables

The logger reads these environment variables:

  - INSTANCE_ID: Deployment instance identifier
  - HOSTNAME: Container hostname (auto-detected)

# Thread Safety

Logger instances are safe for concurrent use from multiple goroutines.
*/
package logger
