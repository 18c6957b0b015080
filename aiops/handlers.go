// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package aiops

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"axonflow/aicore/aiops/abtest"
)

// Router builds the ops API. Read endpoints are open; mutating endpoints
// sit behind the admin JWT middleware.
func (s *Service) Router() *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", s.healthHandler).Methods("GET")

	// Provider health and breaker management
	r.HandleFunc("/api/v1/ai/providers", s.providersHandler).Methods("GET")
	r.HandleFunc("/api/v1/ai/providers/{name}/reset", s.adminAuth(s.resetProviderHandler)).Methods("POST")

	// Performance metrics
	r.HandleFunc("/api/v1/ai/metrics/summary", s.metricsSummaryHandler).Methods("GET")

	// Cache management
	r.HandleFunc("/api/v1/ai/cache/stats", s.cacheStatsHandler).Methods("GET")
	r.HandleFunc("/api/v1/ai/cache/invalidate", s.adminAuth(s.cacheInvalidateHandler)).Methods("POST")

	// A/B tests
	r.HandleFunc("/api/v1/ai/abtests", s.adminAuth(s.startTestHandler)).Methods("POST")
	r.HandleFunc("/api/v1/ai/abtests", s.listTestsHandler).Methods("GET")
	r.HandleFunc("/api/v1/ai/abtests/{id}/results", s.testResultsHandler).Methods("GET")
	r.HandleFunc("/api/v1/ai/abtests/{id}/stop", s.adminAuth(s.stopTestHandler)).Methods("POST")

	// Cost reporting
	r.HandleFunc("/api/v1/ai/costs/report", s.costReportHandler).Methods("GET")

	return r
}

func (s *Service) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"service":   "axonflow-aicore",
		"providers": len(s.Orchestrator.Providers()),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Service) providersHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"priority": s.Orchestrator.Providers(),
		"health":   s.Breaker.AllHealth(),
	})
}

func (s *Service) resetProviderHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, ok := s.Breaker.Health(name); !ok {
		writeError(w, http.StatusNotFound, "unknown provider "+name)
		return
	}
	s.Breaker.Reset(name)
	writeJSON(w, http.StatusOK, map[string]string{
		"provider": name,
		"state":    "closed",
	})
}

func (s *Service) metricsSummaryHandler(w http.ResponseWriter, r *http.Request) {
	period := 60 * time.Minute
	if raw := r.URL.Query().Get("period_minutes"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			writeError(w, http.StatusBadRequest, "period_minutes must be a positive integer")
			return
		}
		period = time.Duration(minutes) * time.Minute
	}
	writeJSON(w, http.StatusOK, s.Monitor.GetSummary(period))
}

func (s *Service) cacheStatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Cache.Stats())
}

func (s *Service) cacheInvalidateHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UseCase string `json:"use_case"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UseCase == "" {
		writeError(w, http.StatusBadRequest, "body must be {\"use_case\": \"...\"}")
		return
	}
	removed := s.Cache.Invalidate(body.UseCase)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"use_case": body.UseCase,
		"removed":  removed,
	})
}

func (s *Service) startTestHandler(w http.ResponseWriter, r *http.Request) {
	var config abtest.TestConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		writeError(w, http.StatusBadRequest, "invalid test config: "+err.Error())
		return
	}
	id, err := s.ABTests.StartTest(config)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"test_id": id})
}

func (s *Service) listTestsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ABTests.ListTests())
}

func (s *Service) testResultsHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	results, err := s.ABTests.GetResults(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Service) stopTestHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.ABTests.StopTest(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"test_id": id, "status": "stopped"})
}

func (s *Service) costReportHandler(w http.ResponseWriter, r *http.Request) {
	period := 24 * time.Hour
	if raw := r.URL.Query().Get("period_hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 {
			writeError(w, http.StatusBadRequest, "period_hours must be a positive integer")
			return
		}
		period = time.Duration(hours) * time.Hour
	}
	writeJSON(w, http.StatusOK, s.CostReport(period))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
