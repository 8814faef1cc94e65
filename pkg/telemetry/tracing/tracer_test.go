package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestNew(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	tests := []struct {
		name        string
		config      Config
		wantErr     bool
		wantEnabled bool
	}{
		{"disabled", Config{}, false, false},
		{"stdout", Config{Enabled: true, Exporter: ExporterStdout, SampleRatio: 1, Writer: &bytes.Buffer{}}, false, true},
		{"default exporter", Config{Enabled: true, SampleRatio: 0.5, Writer: &bytes.Buffer{}}, false, true},
		{"otlp", Config{Enabled: true, Exporter: ExporterOTLP, Endpoint: "localhost:4317", Insecure: true, SampleRatio: 1}, false, true},
		{"otlp without endpoint", Config{Enabled: true, Exporter: ExporterOTLP, SampleRatio: 1}, true, false},
		{"unknown exporter", Config{Enabled: true, Exporter: "zipkin", SampleRatio: 1}, true, false},
		{"ratio above one", Config{Enabled: true, SampleRatio: 1.5}, true, false},
		{"negative ratio", Config{Enabled: true, SampleRatio: -0.1}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(context.Background(), tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer p.Shutdown(context.Background())
			if p.Enabled() != tt.wantEnabled {
				t.Errorf("Enabled() = %v, want %v", p.Enabled(), tt.wantEnabled)
			}
		})
	}
}

func TestProvider_ExportsDecisionSpan(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	buf := &bytes.Buffer{}
	p, err := New(context.Background(), Config{Enabled: true, SampleRatio: 1, ServiceName: "flood-test", Writer: buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, span := p.Start(context.Background(), "governance.Decide", DecisionAttributes("run-1", "h1", "household_owner", 4))
	if TraceID(ctx) == "" {
		t.Error("TraceID() empty inside a sampled span")
	}
	AddAttempt(span, 0, "proposed: elevation_threat")
	SetOutcome(span, "RETRY_SUCCESS", 2, "elevate_house")
	span.End()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"governance.Decide", AttrAgentID, "household_owner", "elevation_threat", "RETRY_SUCCESS", "flood-test"} {
		if !strings.Contains(out, want) {
			t.Errorf("exported span missing %q", want)
		}
	}
}

func TestNew_DisabledIsNoop(t *testing.T) {
	p, err := New(context.Background(), Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, span := p.Start(context.Background(), "noop")
	defer span.End()
	if TraceID(ctx) != "" {
		t.Error("disabled provider produced a valid span")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestCreateSampler(t *testing.T) {
	for _, ratio := range []float64{0, 0.25, 1} {
		if _, err := createSampler(ratio); err != nil {
			t.Errorf("createSampler(%v) error = %v", ratio, err)
		}
	}
	if _, err := createSampler(2); err == nil {
		t.Error("createSampler(2) should fail")
	}
}
