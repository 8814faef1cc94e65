package config

import "time"

// Default values for configuration fields.
const (
	// Broker defaults
	DefaultMaxRetries      = 3
	DefaultProposeTimeout  = 30 * time.Second
	DefaultBurst           = 1
	DefaultFallbackSkill   = "do_nothing"
	DefaultTheory          = "pmt"
	DefaultSimulationSteps = 1
	DefaultWorkers         = 1

	// Environment defaults
	DefaultEnvironmentBackend = "memory"
	DefaultEnvironmentPath    = "data/state.db"
	DefaultBusyTimeout        = 5 * time.Second

	// Model defaults
	DefaultModelAdapter = "scripted"

	// Trace defaults
	DefaultTraceBackend      = "jsonl"
	DefaultTraceJSONLPath    = "data/traces.jsonl"
	DefaultTraceSQLitePath   = "data/traces.db"
	DefaultTraceBuffer       = 1000
	DefaultTraceWriteTimeout = 5 * time.Second
	DefaultTraceMaxRawText   = 4096

	// Telemetry defaults
	DefaultLoggingLevel    = "info"
	DefaultLoggingFormat   = "text"
	DefaultMetricsAddress  = "127.0.0.1:9464"
	DefaultMetricsPath     = "/metrics"
	DefaultTracingExporter = "stdout"
	DefaultSampleRatio     = 1.0

	// Source defaults
	DefaultSourceRevision = "HEAD"
	DefaultSourcePath     = "wagf.yaml"
)

// ApplyDefaults fills zero-valued fields with their defaults. It never
// overrides a value that was set.
func ApplyDefaults(cfg *Config) {
	b := &cfg.Broker
	if b.MaxRetries == 0 {
		b.MaxRetries = DefaultMaxRetries
	}
	if b.ProposeTimeout == 0 {
		b.ProposeTimeout = DefaultProposeTimeout
	}
	if b.Burst == 0 {
		b.Burst = DefaultBurst
	}
	if b.DefaultFallback == "" {
		b.DefaultFallback = DefaultFallbackSkill
	}

	if cfg.Theory.Name == "" {
		cfg.Theory.Name = DefaultTheory
	}

	if cfg.Simulation.Steps == 0 {
		cfg.Simulation.Steps = DefaultSimulationSteps
	}
	if cfg.Simulation.Workers == 0 {
		cfg.Simulation.Workers = DefaultWorkers
	}

	env := &cfg.Environment
	if env.Backend == "" {
		env.Backend = DefaultEnvironmentBackend
	}
	if env.Backend == "sqlite" && env.Path == "" {
		env.Path = DefaultEnvironmentPath
	}
	if env.BusyTimeout == 0 {
		env.BusyTimeout = DefaultBusyTimeout
	}

	if cfg.Model.Adapter == "" {
		cfg.Model.Adapter = DefaultModelAdapter
	}

	applyTraceDefaults(&cfg.Trace)
	applyTelemetryDefaults(&cfg.Telemetry)

	if cfg.Source.Repository != "" {
		if cfg.Source.Revision == "" {
			cfg.Source.Revision = DefaultSourceRevision
		}
		if cfg.Source.Path == "" {
			cfg.Source.Path = DefaultSourcePath
		}
	}
}

func applyTraceDefaults(t *TraceConfig) {
	if t.Backend == "" {
		t.Backend = DefaultTraceBackend
	}
	if t.Path == "" {
		switch t.Backend {
		case "jsonl":
			t.Path = DefaultTraceJSONLPath
		case "sqlite":
			t.Path = DefaultTraceSQLitePath
		}
	}
	if t.Buffer == 0 {
		t.Buffer = DefaultTraceBuffer
	}
	if t.WriteTimeout == 0 {
		t.WriteTimeout = DefaultTraceWriteTimeout
	}
	if t.MaxRawText == 0 {
		t.MaxRawText = DefaultTraceMaxRawText
	}
	if t.RedactSecrets == nil {
		t.RedactSecrets = boolPtr(true)
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLoggingLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLoggingFormat
	}
	if t.Logging.RedactAPIKeys == nil {
		t.Logging.RedactAPIKeys = boolPtr(true)
	}
	if t.Metrics.ListenAddress == "" {
		t.Metrics.ListenAddress = DefaultMetricsAddress
	}
	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
	}
	if t.Tracing.Exporter == "" {
		t.Tracing.Exporter = DefaultTracingExporter
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultSampleRatio
	}
}

func boolPtr(b bool) *bool {
	return &b
}

// Enabled reports a defaulted boolean; nil counts as the default true.
func Enabled(b *bool) bool {
	return b == nil || *b
}
