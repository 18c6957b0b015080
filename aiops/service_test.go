// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package aiops

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axonflow/aicore/aiops/abtest"
	"axonflow/aicore/aiops/failover"
	"axonflow/aicore/aiops/selector"
)

func testServiceConfig(t *testing.T) Config {
	t.Helper()
	config, err := ParseConfig([]byte(testConfigYAML))
	require.NoError(t, err)
	// Keep failing-path tests fast.
	config.Retry = RetryConfig{MaxRetries: 0, InitialDelayMs: 1, MaxDelayMs: 2, ExponentialBase: 2}
	return config
}

func okCall(content string) ProviderCall {
	return func(ctx context.Context, provider string, model selector.ModelConfig, prompt string, variables map[string]any) (ProviderResponse, error) {
		return ProviderResponse{Content: content, InputTokens: 100, OutputTokens: 50}, nil
	}
}

func failingCall() ProviderCall {
	return func(ctx context.Context, provider string, model selector.ModelConfig, prompt string, variables map[string]any) (ProviderResponse, error) {
		return ProviderResponse{}, failover.NewProviderError(provider, failover.ErrCodeServerError, "boom", 500)
	}
}

func newTestService(t *testing.T, call ProviderCall) *Service {
	t.Helper()
	svc, err := NewService(testServiceConfig(t), call)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func TestService_InvokeSuccess(t *testing.T) {
	svc := newTestService(t, okCall("answer"))

	resp := svc.Invoke(context.Background(), Request{
		UseCase: "audit-search",
		Prompt:  "find failed logins",
	})

	assert.Equal(t, "answer", resp.Content)
	assert.Equal(t, SourceAI, resp.Source)
	assert.Equal(t, "openai", resp.Provider, "first provider in the priority list serves")
	assert.Equal(t, "gpt-4o-mini", resp.Model, "cost-priority requirement picks the cheaper qualifying model")
	assert.False(t, resp.Degraded)
	assert.NotEmpty(t, resp.RequestID)
	// 100 in + 50 out on gpt-4o-mini pricing.
	assert.InDelta(t, 100.0/1000*0.00015+50.0/1000*0.0006, resp.Cost, 1e-12)
}

func TestService_InvokeCacheHit(t *testing.T) {
	svc := newTestService(t, okCall("answer"))

	req := Request{UseCase: "audit-search", Prompt: "find failed logins"}
	first := svc.Invoke(context.Background(), req)
	require.Equal(t, SourceAI, first.Source)

	second := svc.Invoke(context.Background(), req)
	assert.Equal(t, SourceCache, second.Source)
	assert.Equal(t, "answer", second.Content)
	assert.Zero(t, second.Cost, "cache hits cost nothing")

	summary := svc.Monitor.GetSummary(time.Hour)
	assert.Equal(t, 2, summary.Count)
	assert.InDelta(t, 0.5, summary.CacheHitRate, 1e-9)
}

func TestService_InvokeVariableOrderHitsSameEntry(t *testing.T) {
	svc := newTestService(t, okCall("answer"))

	first := svc.Invoke(context.Background(), Request{
		UseCase:   "audit-search",
		Prompt:    "promptA",
		Variables: map[string]any{"b": 1, "a": 2},
	})
	require.Equal(t, SourceAI, first.Source)

	second := svc.Invoke(context.Background(), Request{
		UseCase:   "audit-search",
		Prompt:    "promptA",
		Variables: map[string]any{"a": 2, "b": 1},
	})
	assert.Equal(t, SourceCache, second.Source)
}

func TestService_InvokeFallback(t *testing.T) {
	svc := newTestService(t, failingCall())

	resp := svc.Invoke(context.Background(), Request{
		UseCase:  "audit-search",
		Prompt:   "find failed logins",
		Fallback: func() any { return "rule-based answer" },
	})

	assert.Equal(t, SourceFallback, resp.Source)
	assert.Equal(t, "rule-based answer", resp.Content)
	assert.Empty(t, resp.Provider)
	assert.Zero(t, resp.Cost)

	summary := svc.Monitor.GetSummary(time.Hour)
	assert.Equal(t, 1, summary.Count)
	assert.Zero(t, summary.SuccessRate)

	// Failures must not be cached.
	again := svc.Invoke(context.Background(), Request{
		UseCase:  "audit-search",
		Prompt:   "find failed logins",
		Fallback: func() any { return "rule-based answer" },
	})
	assert.Equal(t, SourceFallback, again.Source)
}

func TestService_InvokeOpensBreakerThenSkips(t *testing.T) {
	svc := newTestService(t, failingCall())

	// failure_threshold is 2 in the test config; two invocations push two
	// failures per provider through the orchestrator.
	for i := 0; i < 2; i++ {
		svc.Invoke(context.Background(), Request{
			UseCase:  "audit-search",
			Prompt:   fmt.Sprintf("prompt-%d", i),
			Fallback: func() any { return "fallback" },
		})
	}

	health := svc.Breaker.AllHealth()
	require.Contains(t, health, "openai")
	assert.Equal(t, "open", string(health["openai"].State))
	openaiRequests := health["openai"].TotalRequests

	// With the breaker open, further invocations never touch openai.
	svc.Invoke(context.Background(), Request{
		UseCase:  "audit-search",
		Prompt:   "prompt-after-open",
		Fallback: func() any { return "fallback" },
	})
	assert.Equal(t, openaiRequests, svc.Breaker.AllHealth()["openai"].TotalRequests)
}

func TestService_InvokeRoutesThroughABTest(t *testing.T) {
	svc := newTestService(t, okCall("answer"))

	// All traffic to the arm naming the larger model.
	testID, err := svc.ABTests.StartTest(abtest.TestConfig{
		Name:         "mini vs full",
		UseCase:      "audit-search",
		ArmA:         abtest.ArmConfig{Name: "full", Model: "gpt-4o", Provider: "openai"},
		ArmB:         abtest.ArmConfig{Name: "mini", Model: "gpt-4o-mini", Provider: "openai"},
		TrafficSplit: 1.0,
	})
	require.NoError(t, err)

	resp := svc.Invoke(context.Background(), Request{
		UseCase: "audit-search",
		Prompt:  "unique prompt for test routing",
		TestID:  testID,
	})

	assert.Equal(t, "gpt-4o", resp.Model, "arm model overrides the selector choice")

	results, err := svc.ABTests.GetResults(testID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), results.ArmA.Requests)
	assert.Zero(t, results.ArmB.Requests)
}

func TestService_Reload(t *testing.T) {
	svc := newTestService(t, okCall("answer"))

	config := testServiceConfig(t)
	config.Models = []selector.ModelConfig{{
		ID: "gpt-5", Provider: "openai",
		InputCostPer1K: 0.001, OutputCostPer1K: 0.004,
		AvgLatencyMs: 800, Accuracy: 0.97,
	}}
	config.Requirements = nil
	svc.Reload(config)

	model := svc.Selector.SelectModel("audit-search")
	assert.Equal(t, "gpt-5", model.ID)
}
