package logging

import (
	"context"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		component string
		level     string
		format    string
	}{
		{"json logger", "binaryengine", "info", "json"},
		{"text logger", "binaryengine", "debug", "text"},
		{"invalid level", "binaryengine", "bogus", "json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.component, tt.level, tt.format)
			if logger == nil {
				t.Fatal("New() returned nil")
			}
			if logger.component != tt.component {
				t.Errorf("component = %v, want %v", logger.component, tt.component)
			}
		})
	}
}

func TestLogger_WithContext(t *testing.T) {
	logger := New("test", "info", "json")
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-123")
	ctx = WithUserID(ctx, "user-456")

	entry := logger.WithContext(ctx)
	if entry.Data["component"] != "test" {
		t.Errorf("component field = %v, want test", entry.Data["component"])
	}
	if entry.Data["trace_id"] != "trace-123" {
		t.Errorf("trace_id field = %v, want trace-123", entry.Data["trace_id"])
	}
	if entry.Data["user_id"] != "user-456" {
		t.Errorf("user_id field = %v, want user-456", entry.Data["user_id"])
	}
}

func TestDefault(t *testing.T) {
	defaultLogger = nil
	if Default() == nil {
		t.Fatal("Default() returned nil")
	}
	InitDefault("svc", "info", "json")
	if Default().component != "svc" {
		t.Errorf("Default().component = %v, want svc", Default().component)
	}
}
