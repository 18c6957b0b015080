// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package aiops

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"axonflow/aicore/aiops/abtest"
	"axonflow/aicore/aiops/breaker"
	"axonflow/aicore/aiops/cache"
	"axonflow/aicore/aiops/events"
	"axonflow/aicore/aiops/failover"
	"axonflow/aicore/aiops/monitor"
	"axonflow/aicore/aiops/selector"
	"axonflow/aicore/shared/logger"
)

// Response sources.
const (
	SourceAI       = "ai"
	SourceCache    = "cache"
	SourceFallback = "fallback"
)

// ProviderCall invokes one provider with the selected model. Implementers
// return a tagged failover error (failover.ProviderError) where they can
// classify the failure; raw errors are classified by status and message.
type ProviderCall func(ctx context.Context, provider string, model selector.ModelConfig, prompt string, variables map[string]any) (ProviderResponse, error)

// ProviderResponse is the raw result of one provider call.
type ProviderResponse struct {
	Content      any
	InputTokens  int
	OutputTokens int
}

// Request is one AI invocation through the core.
type Request struct {
	UseCase   string
	Prompt    string
	Variables map[string]any

	// RequestID correlates log lines; generated when empty.
	RequestID string

	// TestID routes the request through a running A/B test. The arm's
	// model overrides the selector's choice.
	TestID string

	// Fallback supplies the degraded answer when every provider fails.
	// Must be side-effect free. Nil yields a nil-content fallback.
	Fallback func() any
}

// Response is the tagged outcome of an invocation. Invoke never returns
// an error to its caller: the answer is AI-sourced, cached, or fallback.
type Response struct {
	Content   any     `json:"content"`
	Source    string  `json:"source"`
	Provider  string  `json:"provider,omitempty"`
	Model     string  `json:"model,omitempty"`
	Degraded  bool    `json:"degraded"`
	Retries   int     `json:"retries"`
	LatencyMs float64 `json:"latency_ms"`
	Cost      float64 `json:"cost"`
	RequestID string  `json:"request_id"`
}

// Service is the composition root: it owns one instance of every AI core
// component and wires them into the invocation pipeline.
type Service struct {
	config Config
	call   ProviderCall

	Events       *events.Bus
	Breaker      *breaker.Breaker
	Orchestrator *failover.Orchestrator
	Selector     *selector.Selector
	Cache        *cache.Store
	Monitor      *monitor.Monitor
	ABTests      *abtest.Manager

	clock clock.Clock
	log   *logger.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	clock clock.Clock
	log   *logger.Logger
}

// WithServiceClock substitutes the wall clock, used by tests.
func WithServiceClock(c clock.Clock) ServiceOption {
	return func(o *serviceOptions) { o.clock = c }
}

// WithServiceLogger overrides the default structured logger.
func WithServiceLogger(l *logger.Logger) ServiceOption {
	return func(o *serviceOptions) { o.log = l }
}

// NewService builds the AI core from config. The provider call is the
// host's integration point with its vendor SDKs.
func NewService(config Config, call ProviderCall, opts ...ServiceOption) (*Service, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	options := serviceOptions{
		clock: clock.New(),
		log:   logger.New("aiops"),
	}
	for _, opt := range opts {
		opt(&options)
	}

	bus := events.NewBus()

	br := breaker.New(config.BreakerConfig(),
		breaker.WithClock(options.clock),
		breaker.WithEvents(bus),
	)

	orch := failover.NewOrchestrator(config.Providers, br,
		failover.WithRetryConfig(config.RetryConfigValue()),
		failover.WithClock(options.clock),
	)

	selOpts := []selector.Option{}
	if config.Baseline != "" {
		selOpts = append(selOpts, selector.WithBaseline(config.Baseline))
	}
	sel := selector.New(config.Models, config.Requirements, selOpts...)

	store := cache.NewStore(config.CacheConfigs(),
		cache.WithClock(options.clock),
		cache.WithDefaultConfig(config.DefaultCacheConfig()),
	)

	mon := monitor.NewMonitor(config.MonitorConfigValue(),
		monitor.WithClock(options.clock),
		monitor.WithEvents(bus),
	)

	svc := &Service{
		config:       config,
		call:         call,
		Events:       bus,
		Breaker:      br,
		Orchestrator: orch,
		Selector:     sel,
		Cache:        store,
		Monitor:      mon,
		ABTests:      abtest.NewManager(abtest.WithClock(options.clock)),
		clock:        options.clock,
		log:          options.log,
	}
	return svc, nil
}

// Start launches the background cache sweep.
func (s *Service) Start() {
	s.Cache.Start()
}

// Close releases background resources: the cache sweep goroutine and any
// pending breaker half-open timers.
func (s *Service) Close() {
	s.Cache.Stop()
	s.Breaker.Close()
}

// Reload swaps in new model and requirement data. Called by the config
// watcher; safe against in-flight invocations.
func (s *Service) Reload(config Config) {
	s.Selector.Reload(config.Models, config.Requirements)
}

// Invoke runs one request through the full pipeline: model selection,
// cache lookup, failover execution, metrics, cache fill. It never
// returns an error; the response is tagged with its source.
func (s *Service) Invoke(ctx context.Context, req Request) Response {
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	model := s.Selector.SelectModel(req.UseCase)
	armName := ""
	if req.TestID != "" {
		if arm, err := s.ABTests.RouteRequest(req.TestID); err == nil {
			if m, ok := s.modelByID(arm.Model); ok {
				model = m
				armName = arm.Name
			} else {
				s.log.Warn(req.UseCase, req.RequestID, "test arm names unknown model, using selector choice",
					map[string]interface{}{"test_id": req.TestID, "model": arm.Model})
			}
		}
	}

	if content, ok := s.Cache.Get(req.UseCase, req.Prompt, req.Variables); ok {
		s.Monitor.Record(monitor.Sample{
			UseCase:   req.UseCase,
			Model:     model.ID,
			Success:   true,
			Cached:    true,
			Timestamp: s.clock.Now(),
		})
		s.log.Debug(req.UseCase, req.RequestID, "serving from cache", nil)
		return Response{
			Content:   content,
			Source:    SourceCache,
			Model:     model.ID,
			RequestID: req.RequestID,
		}
	}

	start := s.clock.Now()
	var lastResp ProviderResponse

	result := s.Orchestrator.Execute(ctx, func(ctx context.Context, provider string) (any, error) {
		resp, err := s.call(ctx, provider, model, req.Prompt, req.Variables)
		if err != nil {
			return nil, err
		}
		lastResp = resp
		return resp.Content, nil
	}, req.Fallback)

	latencyMs := float64(s.clock.Since(start)) / float64(time.Millisecond)

	resp := Response{
		Content:   result.Value,
		Source:    result.Source,
		Provider:  result.Provider,
		Model:     model.ID,
		Degraded:  result.Degraded,
		Retries:   result.Retries,
		LatencyMs: latencyMs,
		RequestID: req.RequestID,
	}

	success := result.Source == failover.SourceAI
	errorType := ""
	if success {
		resp.Cost = requestCost(model, lastResp.InputTokens, lastResp.OutputTokens)
	} else {
		errorType = "all_providers_exhausted"
	}

	s.Monitor.Record(monitor.Sample{
		UseCase:      req.UseCase,
		Model:        model.ID,
		Provider:     result.Provider,
		LatencyMs:    latencyMs,
		InputTokens:  lastResp.InputTokens,
		OutputTokens: lastResp.OutputTokens,
		Cost:         resp.Cost,
		Success:      success,
		ErrorType:    errorType,
		Timestamp:    s.clock.Now(),
	})

	if armName != "" {
		if err := s.ABTests.RecordMetrics(req.TestID, armName, abtest.Sample{
			LatencyMs: latencyMs,
			Cost:      resp.Cost,
			Success:   success,
		}); err != nil {
			s.log.Warn(req.UseCase, req.RequestID, "failed to record test metrics",
				map[string]interface{}{"test_id": req.TestID, "error": err.Error()})
		}
	}

	if success {
		s.Cache.Set(req.UseCase, req.Prompt, req.Variables, result.Value, cache.SetMeta{
			Model:       model.ID,
			TokensSaved: int64(lastResp.InputTokens + lastResp.OutputTokens),
			CostSaved:   resp.Cost,
		})
	} else {
		s.log.Warn(req.UseCase, req.RequestID, "all providers exhausted, serving fallback",
			map[string]interface{}{"retries": result.Retries})
	}

	return resp
}

// CostReport builds the selector cost report over the monitor's usage
// totals for the trailing period.
func (s *Service) CostReport(period time.Duration) selector.CostReport {
	usage := s.Monitor.Usage(period)
	converted := make(map[string]selector.UseCaseUsage, len(usage))
	for useCase, u := range usage {
		converted[useCase] = selector.UseCaseUsage{
			Requests:     u.Requests,
			InputTokens:  u.InputTokens,
			OutputTokens: u.OutputTokens,
		}
	}
	return s.Selector.GenerateCostReport(converted)
}

func (s *Service) modelByID(id string) (selector.ModelConfig, bool) {
	for _, m := range s.Selector.Models() {
		if m.ID == id {
			return m, true
		}
	}
	return selector.ModelConfig{}, false
}

// requestCost prices a call from its actual token counts.
func requestCost(m selector.ModelConfig, inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000*m.InputCostPer1K +
		float64(outputTokens)/1000*m.OutputCostPer1K
}
