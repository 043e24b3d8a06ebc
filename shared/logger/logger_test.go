// Copyright 2025 API-Sec Authors
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"bytes"
	"encoding/json"
	"log"
	"os"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name           string
		component      string
		instanceID     string
		expectedInstID string
	}{
		{
			name:           "with instance ID set",
			component:      "gateway",
			instanceID:     "instance-123",
			expectedInstID: "instance-123",
		},
		{
			name:           "without instance ID",
			component:      "gateway",
			instanceID:     "",
			expectedInstID: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("INSTANCE_ID", tt.instanceID)

			l := New(tt.component)

			if l.Component != tt.component {
				t.Errorf("Expected component %s, got %s", tt.component, l.Component)
			}
			if l.InstanceID != tt.expectedInstID {
				t.Errorf("Expected instance ID %s, got %s", tt.expectedInstID, l.InstanceID)
			}
			if l.Container == "" {
				t.Error("Expected container to be set from hostname")
			}
		})
	}
}

// captureEntry runs fn with log output captured and returns the parsed
// JSON entry.
func captureEntry(t *testing.T, fn func()) Entry {
	t.Helper()

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	fn()

	output := buf.String()
	jsonStart := strings.Index(output, "{")
	if jsonStart == -1 {
		t.Fatalf("No JSON found in log output: %s", output)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(strings.TrimSpace(output[jsonStart:])), &entry); err != nil {
		t.Fatalf("Failed to parse JSON log: %v\nOutput: %s", err, output)
	}
	return entry
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		name      string
		logFunc   func(*Logger, string, string, string, map[string]interface{})
		level     Level
		message   string
		tenantID  string
		requestID string
		fields    map[string]interface{}
	}{
		{
			name:      "Info log",
			logFunc:   (*Logger).Info,
			level:     INFO,
			message:   "inspection completed",
			tenantID:  "user-123",
			requestID: "req-456",
			fields:    map[string]interface{}{"engine": "edge_pattern"},
		},
		{
			name:      "Warn log",
			logFunc:   (*Logger).Warn,
			level:     WARN,
			message:   "audit queue full, dropping event",
			tenantID:  "user-789",
			requestID: "",
			fields:    nil,
		},
		{
			name:      "Error log",
			logFunc:   (*Logger).Error,
			level:     ERROR,
			message:   "request failed",
			tenantID:  "user-abc",
			requestID: "req-012",
			fields:    map[string]interface{}{"path": "/v1/inspect"},
		},
		{
			name:      "Debug log",
			logFunc:   (*Logger).Debug,
			level:     DEBUG,
			message:   "pattern evaluated",
			tenantID:  "user-xyz",
			requestID: "req-uvw",
			fields:    map[string]interface{}{"matched": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := captureEntry(t, func() {
				l := New("gateway")
				tt.logFunc(l, tt.tenantID, tt.requestID, tt.message, tt.fields)
			})

			if entry.Level != tt.level {
				t.Errorf("Expected level %s, got %s", tt.level, entry.Level)
			}
			if entry.Message != tt.message {
				t.Errorf("Expected message %q, got %q", tt.message, entry.Message)
			}
			if entry.TenantID != tt.tenantID {
				t.Errorf("Expected tenant ID %q, got %q", tt.tenantID, entry.TenantID)
			}
			if entry.RequestID != tt.requestID {
				t.Errorf("Expected request ID %q, got %q", tt.requestID, entry.RequestID)
			}
			if entry.Component != "gateway" {
				t.Errorf("Expected component 'gateway', got %q", entry.Component)
			}
			if _, err := time.Parse(time.RFC3339Nano, entry.Timestamp); err != nil {
				t.Errorf("Invalid timestamp format: %s", entry.Timestamp)
			}

			for key, want := range tt.fields {
				got, ok := entry.Fields[key]
				if !ok {
					t.Errorf("Expected field %q not found", key)
					continue
				}
				if got != want {
					t.Errorf("Field %q: expected %v, got %v", key, want, got)
				}
			}
		})
	}
}

func TestWarnWithError(t *testing.T) {
	entry := captureEntry(t, func() {
		l := New("gateway")
		l.WarnWithError("user-123", "req-456", "blocklist check failed, failing open",
			&testError{msg: "connection refused"},
			map[string]interface{}{"source_ip": "10.0.0.1"})
	})

	if entry.Level != WARN {
		t.Errorf("Expected WARN level, got %s", entry.Level)
	}
	if entry.Fields["error"] != "connection refused" {
		t.Errorf("Expected error field, got %v", entry.Fields["error"])
	}
	if entry.Fields["source_ip"] != "10.0.0.1" {
		t.Errorf("Expected source_ip field preserved, got %v", entry.Fields["source_ip"])
	}
}

func TestErrorWithCode(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		err        error
		wantErrMsg string
	}{
		{
			name:       "with error",
			statusCode: 500,
			err:        &testError{msg: "database connection failed"},
			wantErrMsg: "database connection failed",
		},
		{
			name:       "without error",
			statusCode: 503,
			err:        nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := captureEntry(t, func() {
				l := New("gateway")
				l.ErrorWithCode("user-123", "req-456", "request failed", tt.statusCode, tt.err, nil)
			})

			if entry.Level != ERROR {
				t.Errorf("Expected ERROR level, got %s", entry.Level)
			}

			code, ok := entry.Fields["status_code"].(float64)
			if !ok {
				t.Fatalf("status_code is not a number: %v", entry.Fields["status_code"])
			}
			if int(code) != tt.statusCode {
				t.Errorf("Expected status_code %d, got %v", tt.statusCode, code)
			}

			if tt.wantErrMsg != "" {
				if entry.Fields["error"] != tt.wantErrMsg {
					t.Errorf("Expected error %q, got %v", tt.wantErrMsg, entry.Fields["error"])
				}
			} else if _, present := entry.Fields["error"]; present {
				t.Error("Did not expect an error field")
			}
		})
	}
}

func TestJSONMarshalError(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	l := New("gateway")
	l.Info("user-123", "req-456", "test message", map[string]interface{}{
		"channel": make(chan int), // not marshalable
	})

	if !strings.Contains(buf.String(), "failed to marshal log entry") {
		t.Error("Expected error message about JSON marshaling failure")
	}
}

type testError struct {
	msg string
}

func (e *testError) Error() string {
	return e.msg
}

func BenchmarkLog(b *testing.B) {
	l := New("benchmark")
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	fields := map[string]interface{}{
		"engine":       "edge_pattern",
		"safe":         true,
		"scan_time_ms": 3,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.Info("user-123", "req-456", "inspection completed", fields)
	}
}
