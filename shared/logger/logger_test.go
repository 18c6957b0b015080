// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"
)

// TestNew tests logger initialization
func TestNew(t *testing.T) {
	tests := []struct {
		name           string
		component      string
		instanceID     string
		expectedComp   string
		expectedInstID string
	}{
		{
			name:           "with instance ID set",
			component:      "test-component",
			instanceID:     "instance-123",
			expectedComp:   "test-component",
			expectedInstID: "instance-123",
		},
		{
			name:           "without instance ID",
			component:      "aiops",
			instanceID:     "",
			expectedComp:   "aiops",
			expectedInstID: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.instanceID != "" {
				if err := os.Setenv("INSTANCE_ID", tt.instanceID); err != nil {
					t.Fatalf("Failed to set INSTANCE_ID: %v", err)
				}
				defer func() {
					if err := os.Unsetenv("INSTANCE_ID"); err != nil {
						t.Errorf("Failed to unset INSTANCE_ID: %v", err)
					}
				}()
			} else {
				if err := os.Unsetenv("INSTANCE_ID"); err != nil {
					t.Fatalf("Failed to unset INSTANCE_ID: %v", err)
				}
			}

			logger := New(tt.component)

			if logger.Component != tt.expectedComp {
				t.Errorf("Expected component %s, got %s", tt.expectedComp, logger.Component)
			}

			if logger.InstanceID != tt.expectedInstID {
				t.Errorf("Expected instance ID %s, got %s", tt.expectedInstID, logger.InstanceID)
			}

			if logger.Container == "" {
				t.Error("Expected container to be set from hostname")
			}
		})
	}
}

func capture(t *testing.T) (*Logger, *bytes.Buffer) {
	t.Helper()
	logger := New("aiops")
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	return logger, &buf
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) Entry {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	var entry Entry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("Log output is not valid JSON: %v\noutput: %s", err, line)
	}
	return entry
}

// TestLog tests the structured entry shape
func TestLog(t *testing.T) {
	logger, buf := capture(t)

	logger.Log(INFO, "audit-search", "req-123", "test message", map[string]interface{}{
		"model": "gpt-4o-mini",
	})

	entry := decodeEntry(t, buf)

	if entry.Level != INFO {
		t.Errorf("Expected level INFO, got %s", entry.Level)
	}
	if entry.Component != "aiops" {
		t.Errorf("Expected component aiops, got %s", entry.Component)
	}
	if entry.UseCase != "audit-search" {
		t.Errorf("Expected use case audit-search, got %s", entry.UseCase)
	}
	if entry.RequestID != "req-123" {
		t.Errorf("Expected request ID req-123, got %s", entry.RequestID)
	}
	if entry.Message != "test message" {
		t.Errorf("Expected message %q, got %q", "test message", entry.Message)
	}
	if entry.Fields["model"] != "gpt-4o-mini" {
		t.Errorf("Expected fields to carry model, got %v", entry.Fields)
	}

	if _, err := time.Parse(time.RFC3339Nano, entry.Timestamp); err != nil {
		t.Errorf("Timestamp is not RFC3339Nano: %v", err)
	}
}

// TestLevels tests the severity helpers
func TestLevels(t *testing.T) {
	tests := []struct {
		name  string
		log   func(l *Logger)
		level Level
	}{
		{"debug", func(l *Logger) { l.Debug("uc", "req", "m", nil) }, DEBUG},
		{"info", func(l *Logger) { l.Info("uc", "req", "m", nil) }, INFO},
		{"warn", func(l *Logger) { l.Warn("uc", "req", "m", nil) }, WARN},
		{"error", func(l *Logger) { l.Error("uc", "req", "m", nil) }, ERROR},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := capture(t)
			tt.log(logger)
			if entry := decodeEntry(t, buf); entry.Level != tt.level {
				t.Errorf("Expected level %s, got %s", tt.level, entry.Level)
			}
		})
	}
}

// TestInfoWithDuration tests duration field injection
func TestInfoWithDuration(t *testing.T) {
	logger, buf := capture(t)

	logger.InfoWithDuration("audit-search", "req-123", "done", 123.4, nil)

	entry := decodeEntry(t, buf)
	if entry.Fields["duration_ms"] != 123.4 {
		t.Errorf("Expected duration_ms 123.4, got %v", entry.Fields["duration_ms"])
	}
}

// TestErrorWithCause tests error field injection
func TestErrorWithCause(t *testing.T) {
	logger, buf := capture(t)

	logger.ErrorWithCause("audit-search", "req-123", "provider call failed",
		os.ErrDeadlineExceeded, map[string]interface{}{"provider": "openai"})

	entry := decodeEntry(t, buf)
	if entry.Level != ERROR {
		t.Errorf("Expected level ERROR, got %s", entry.Level)
	}
	if entry.Fields["error"] != os.ErrDeadlineExceeded.Error() {
		t.Errorf("Expected error field, got %v", entry.Fields["error"])
	}
	if entry.Fields["provider"] != "openai" {
		t.Errorf("Expected provider field preserved, got %v", entry.Fields)
	}
}

// TestOmitsEmptyOptionalFields tests omitempty behavior
func TestOmitsEmptyOptionalFields(t *testing.T) {
	logger, buf := capture(t)

	logger.Info("", "", "plain message", nil)

	line := buf.String()
	if strings.Contains(line, "use_case") {
		t.Error("Expected empty use_case to be omitted")
	}
	if strings.Contains(line, "request_id") {
		t.Error("Expected empty request_id to be omitted")
	}
	if strings.Contains(line, "\"fields\"") {
		t.Error("Expected nil fields to be omitted")
	}
}
