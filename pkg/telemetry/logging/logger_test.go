package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"json", Config{Level: "info", Format: "json"}, false},
		{"text", Config{Level: "debug", Format: "text"}, false},
		{"defaults", Config{}, false},
		{"invalid level", Config{Level: "verbose"}, true},
		{"invalid format", Config{Format: "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.Writer = &bytes.Buffer{}
			logger, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && logger == nil {
				t.Error("New() returned nil logger")
			}
		})
	}
}

func TestLogger_Level(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Config{Level: "warn", Format: "text", Writer: buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestLogger_Redaction(t *testing.T) {
	tests := []struct {
		name   string
		redact bool
		log    func(*slog.Logger)
		key    string
		want   string
	}{
		{
			name:   "sensitive key",
			redact: true,
			log:    func(l *slog.Logger) { l.Info("m", "api_key", "abcdefgh1234") },
			key:    "api_key",
			want:   "abcd***",
		},
		{
			name:   "key pattern in value",
			redact: true,
			log:    func(l *slog.Logger) { l.Info("m", "prompt", "use sk-abcdefghijkl please") },
			key:    "prompt",
			want:   "use sk-*** please",
		},
		{
			name:   "error text",
			redact: true,
			log: func(l *slog.Logger) {
				l.Info("m", "error", errors.New("401: Authorization: Bearer abc.def"))
			},
			key:  "error",
			want: "401: Authorization: Bearer ***",
		},
		{
			name:   "attrs bound with With",
			redact: true,
			log:    func(l *slog.Logger) { l.With("token", "ghp_0123456789").Info("m") },
			key:    "token",
			want:   "ghp_***",
		},
		{
			name:   "max_tokens is not a credential",
			redact: true,
			log:    func(l *slog.Logger) { l.Info("m", "max_tokens", "256") },
			key:    "max_tokens",
			want:   "256",
		},
		{
			name:   "disabled",
			redact: false,
			log:    func(l *slog.Logger) { l.Info("m", "api_key", "abcdefgh1234") },
			key:    "api_key",
			want:   "abcdefgh1234",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger, err := New(Config{Format: "json", RedactSecrets: tt.redact, Writer: buf})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			tt.log(logger)
			entry := decodeLine(t, buf)
			if got := entry[tt.key]; got != tt.want {
				t.Errorf("%s = %v, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestLogger_Groups(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Config{Format: "json", RedactSecrets: true, Writer: buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("m", slog.Group("model", "name", "gpt-4o-mini", "api_key", "sk-abcdefghijkl"))

	model, ok := decodeLine(t, buf)["model"].(map[string]any)
	if !ok {
		t.Fatal("model group missing")
	}
	if model["name"] != "gpt-4o-mini" || model["api_key"] != "sk-a***" {
		t.Errorf("model group = %v", model)
	}
}

func TestLogger_ContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Config{Format: "json", Writer: buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := WithRunID(context.Background(), "run-42")
	ctx, span := sdktrace.NewTracerProvider().Tracer("test").Start(ctx, "decide")
	defer span.End()

	logger.InfoContext(ctx, "decision")
	entry := decodeLine(t, buf)
	if entry["run_id"] != "run-42" {
		t.Errorf("run_id = %v", entry["run_id"])
	}
	if entry["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("trace_id = %v", entry["trace_id"])
	}

	buf.Reset()
	logger.Info("plain")
	if _, ok := decodeLine(t, buf)["run_id"]; ok {
		t.Error("run_id logged without a context")
	}
}

func TestGetRunID(t *testing.T) {
	if got := GetRunID(context.Background()); got != "" {
		t.Errorf("GetRunID() = %q on empty context", got)
	}
	if got := GetRunID(WithRunID(context.Background(), "r")); got != "r" {
		t.Errorf("GetRunID() = %q", got)
	}
}
