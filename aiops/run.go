// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package aiops

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/cors"

	"axonflow/aicore/aiops/events"
	"axonflow/aicore/aiops/failover"
	"axonflow/aicore/aiops/selector"
)

// Daily cost report schedule, 06:00 UTC.
const costReportSchedule = "0 6 * * *"

// Run starts the AI core as a standalone service: it loads the YAML
// config, wires the components, watches the config file for model
// changes, schedules the daily cost report, and serves the ops API
// until SIGINT/SIGTERM.
//
// The provider call is the host's vendor-SDK integration. Passing nil
// runs the full pipeline with no live providers, so every invocation
// resolves through the fallback path; useful for ops-surface smoke
// deployments.
func Run(call ProviderCall) {
	log.Println("Starting AxonFlow AI Core...")

	configPath := getEnv("AI_CONFIG_PATH", "config/aiops.yaml")
	config, err := LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if call == nil {
		call = unavailableProviderCall
	}

	svc, err := NewService(config, call)
	if err != nil {
		log.Fatalf("Failed to build AI core: %v", err)
	}
	svc.Start()
	defer svc.Close()

	// Mirror every lifecycle event into the service log.
	svc.Events.Subscribe("*", events.LogSubscriber(log.Default()))

	watcher, err := NewConfigWatcher(configPath, log.Default())
	if err != nil {
		log.Fatalf("Failed to create config watcher: %v", err)
	}
	if err := watcher.Watch(svc.Reload); err != nil {
		log.Fatalf("Failed to watch config: %v", err)
	}
	defer watcher.Stop()

	// Daily cost report
	scheduler := cron.New(cron.WithLocation(time.UTC))
	if _, err := scheduler.AddFunc(costReportSchedule, func() {
		report := svc.CostReport(24 * time.Hour)
		payload, err := json.Marshal(report)
		if err != nil {
			log.Printf("ERROR: cost report marshal failed: %v", err)
			return
		}
		log.Printf("Daily AI cost report: %s", payload)
	}); err != nil {
		log.Fatalf("Failed to schedule cost report: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Setup router
	r := svc.Router()
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure for production
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	port := config.HTTP.Port
	if port == "" {
		port = getEnv("PORT", "8090")
	}
	server := &http.Server{
		Addr:    ":" + port,
		Handler: c.Handler(r),
	}

	go func() {
		log.Printf("AxonFlow AI Core listening on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down AxonFlow AI Core...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("ERROR: server shutdown: %v", err)
	}
}

// unavailableProviderCall fails every call with a transient error so the
// orchestrator exhausts its providers and serves the fallback.
func unavailableProviderCall(ctx context.Context, provider string, _ selector.ModelConfig, _ string, _ map[string]any) (ProviderResponse, error) {
	return ProviderResponse{}, failover.NewProviderError(provider, failover.ErrCodeUnavailable, "no provider adapter configured", 0)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
