package config

import (
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	tests := []struct {
		name  string
		input Config
		check func(*testing.T, *Config)
	}{
		{
			name:  "empty config gets all defaults",
			input: Config{},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Broker.MaxRetries != DefaultMaxRetries {
					t.Errorf("expected max retries %d, got %d", DefaultMaxRetries, cfg.Broker.MaxRetries)
				}
				if cfg.Broker.ProposeTimeout != DefaultProposeTimeout {
					t.Errorf("expected propose timeout %v, got %v", DefaultProposeTimeout, cfg.Broker.ProposeTimeout)
				}
				if cfg.Broker.DefaultFallback != DefaultFallbackSkill {
					t.Errorf("expected fallback %q, got %q", DefaultFallbackSkill, cfg.Broker.DefaultFallback)
				}
				if cfg.Theory.Name != DefaultTheory {
					t.Errorf("expected theory %q, got %q", DefaultTheory, cfg.Theory.Name)
				}
				if cfg.Environment.Backend != "memory" || cfg.Environment.Path != "" {
					t.Errorf("environment = %+v", cfg.Environment)
				}
				if cfg.Trace.Backend != "jsonl" || cfg.Trace.Path != DefaultTraceJSONLPath {
					t.Errorf("trace = %+v", cfg.Trace)
				}
				if !Enabled(cfg.Trace.RedactSecrets) || !Enabled(cfg.Telemetry.Logging.RedactAPIKeys) {
					t.Error("redaction should default to enabled")
				}
				if cfg.Telemetry.Metrics.Path != DefaultMetricsPath || cfg.Telemetry.Tracing.SampleRatio != DefaultSampleRatio {
					t.Errorf("telemetry = %+v", cfg.Telemetry)
				}
				if cfg.Source.Revision != "" {
					t.Errorf("source defaults applied without a repository: %+v", cfg.Source)
				}
			},
		},
		{
			name: "set values are kept",
			input: Config{
				Broker:     BrokerConfig{MaxRetries: 7, ProposeTimeout: time.Second, DefaultFallback: "relocate"},
				Trace:      TraceConfig{Backend: "sqlite", RedactSecrets: boolPtr(false)},
				Source:     SourceConfig{Repository: "/srv/rules"},
				Theory:     TheoryConfig{Name: "water_appraisal"},
				Model:      ModelConfig{Adapter: "openai"},
				Simulation: SimulationConfig{Steps: 9},
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Broker.MaxRetries != 7 || cfg.Broker.ProposeTimeout != time.Second || cfg.Broker.DefaultFallback != "relocate" {
					t.Errorf("broker overridden: %+v", cfg.Broker)
				}
				if cfg.Trace.Path != DefaultTraceSQLitePath {
					t.Errorf("expected sqlite trace path, got %q", cfg.Trace.Path)
				}
				if Enabled(cfg.Trace.RedactSecrets) {
					t.Error("explicit redact_secrets: false was overridden")
				}
				if cfg.Source.Revision != DefaultSourceRevision || cfg.Source.Path != DefaultSourcePath {
					t.Errorf("source = %+v", cfg.Source)
				}
				if cfg.Theory.Name != "water_appraisal" || cfg.Model.Adapter != "openai" || cfg.Simulation.Steps != 9 {
					t.Errorf("values overridden: %+v", cfg)
				}
			},
		},
		{
			name:  "sqlite environment gets a path",
			input: Config{Environment: EnvironmentConfig{Backend: "sqlite"}},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Environment.Path != DefaultEnvironmentPath {
					t.Errorf("expected %q, got %q", DefaultEnvironmentPath, cfg.Environment.Path)
				}
			},
		},
		{
			name:  "memory trace has no path",
			input: Config{Trace: TraceConfig{Backend: "memory"}},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Trace.Path != "" {
					t.Errorf("expected no path, got %q", cfg.Trace.Path)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.input
			ApplyDefaults(&cfg)
			tt.check(t, &cfg)
		})
	}
}
