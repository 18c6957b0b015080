// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package logger

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// Level represents the severity of a log entry
type Level string

const (
	DEBUG Level = "DEBUG"
	INFO  Level = "INFO"
	WARN  Level = "WARN"
	ERROR Level = "ERROR"
)

// Logger provides structured JSON logging for the AI core. Entries carry
// the use case and request ID so per-tenant AI traffic can be traced
// across the orchestration pipeline.
type Logger struct {
	Component  string
	InstanceID string
	Container  string

	mu  sync.Mutex
	out io.Writer
}

// Entry is one structured log line.
type Entry struct {
	Timestamp  string                 `json:"timestamp"`
	Level      Level                  `json:"level"`
	Component  string                 `json:"component"`
	InstanceID string                 `json:"instance_id"`
	Container  string                 `json:"container"`
	UseCase    string                 `json:"use_case,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	Message    string                 `json:"message"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// New creates a new Logger for the specified component
func New(component string) *Logger {
	// Get instance ID from environment (set during deployment)
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "unknown"
	}

	// Get container name from hostname
	container, err := os.Hostname()
	if err != nil {
		container = "unknown"
	}

	return &Logger{
		Component:  component,
		InstanceID: instanceID,
		Container:  container,
		out:        os.Stdout,
	}
}

// SetOutput redirects log output, used by tests.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

// Log creates a structured log entry and writes it as one JSON line
func (l *Logger) Log(level Level, useCase, requestID, message string, fields map[string]interface{}) {
	entry := Entry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      level,
		Component:  l.Component,
		InstanceID: l.InstanceID,
		Container:  l.Container,
		UseCase:    useCase,
		RequestID:  requestID,
		Message:    message,
		Fields:     fields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		log.Printf("ERROR: Failed to marshal log entry: %v", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Write(append(jsonBytes, '\n'))
}

// Info logs an informational message
func (l *Logger) Info(useCase, requestID, message string, fields map[string]interface{}) {
	l.Log(INFO, useCase, requestID, message, fields)
}

// Error logs an error message
func (l *Logger) Error(useCase, requestID, message string, fields map[string]interface{}) {
	l.Log(ERROR, useCase, requestID, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(useCase, requestID, message string, fields map[string]interface{}) {
	l.Log(WARN, useCase, requestID, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(useCase, requestID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, useCase, requestID, message, fields)
}

// InfoWithDuration logs an info message with a duration field
func (l *Logger) InfoWithDuration(useCase, requestID, message string, durationMS float64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = durationMS
	l.Info(useCase, requestID, message, fields)
}

// ErrorWithCause logs an error message with the causing error attached
func (l *Logger) ErrorWithCause(useCase, requestID, message string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(useCase, requestID, message, fields)
}
