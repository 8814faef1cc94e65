package config

import "time"

// Config is the root configuration of a governed simulation run. It holds
// the skill catalogue, the rule table, the theory, the agents and every
// runtime setting.
type Config struct {
	// RuleSetVersion is stamped into every trace record. When empty it is
	// derived from the configuration content, or from the commit when the
	// configuration is loaded through a git source.
	RuleSetVersion string `yaml:"rule_set_version"`

	// Broker contains retry and model-call settings of the decision loop.
	Broker BrokerConfig `yaml:"broker"`

	// Theory selects the behavioural theory used by coherence rules.
	Theory TheoryConfig `yaml:"theory"`

	// Skills is the skill catalogue in option order.
	Skills []SkillConfig `yaml:"skills" validate:"required,min=1,dive"`

	// Rules is the ordered validator table.
	Rules []RuleConfig `yaml:"rules" validate:"dive"`

	// Fallbacks maps agent types to their fallback skill. Agent types not
	// listed use broker.default_fallback.
	Fallbacks map[string]string `yaml:"fallbacks"`

	// Agents seeds the simulated population in decision order.
	Agents []AgentConfig `yaml:"agents" validate:"required,min=1,dive"`

	// Simulation controls steps and concurrency.
	Simulation SimulationConfig `yaml:"simulation"`

	// Environment selects the state backend.
	Environment EnvironmentConfig `yaml:"environment"`

	// Model selects and configures the model adapter.
	Model ModelConfig `yaml:"model"`

	// Trace configures trace storage and auditing.
	Trace TraceConfig `yaml:"trace"`

	// Telemetry contains logging, metrics and tracing settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Source optionally loads the configuration from a git revision.
	Source SourceConfig `yaml:"source"`

	// baseDir resolves relative paths; it is the directory of the loaded
	// file.
	baseDir string
}

// BrokerConfig configures the propose-validate-retry loop.
type BrokerConfig struct {
	// MaxRetries is the total number of propose attempts per agent-step.
	// Default: 3
	MaxRetries int `yaml:"max_retries" validate:"gte=1,lte=20"`

	// ProposeTimeout bounds a single model call. A call that times out
	// counts as a malformed attempt.
	// Default: 30s
	ProposeTimeout time.Duration `yaml:"propose_timeout" validate:"gte=0"`

	// RateLimit caps model calls per second across the run. Zero disables
	// limiting.
	// Default: 0
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`

	// Burst is the rate limiter burst size.
	// Default: 1
	Burst int `yaml:"burst" validate:"gte=0"`

	// DefaultFallback is committed when no admissible proposal emerges.
	// Default: "do_nothing"
	DefaultFallback string `yaml:"default_fallback"`
}

// TheoryConfig selects the behavioural theory.
type TheoryConfig struct {
	// Name is "pmt" or "water_appraisal".
	// Default: "pmt"
	Name string `yaml:"name" validate:"required"`

	// AgentTypes restricts the theory to these agent types. Empty keeps the
	// theory's own list.
	AgentTypes []string `yaml:"agent_types"`
}

// SkillConfig declares one skill of the catalogue.
type SkillConfig struct {
	ID                 string             `yaml:"id" validate:"required"`
	Description        string             `yaml:"description"`
	RequiredFields     []string           `yaml:"required_fields"`
	EligibleAgentTypes []string           `yaml:"eligible_agent_types"`
	Aliases            []string           `yaml:"aliases"`
	ParameterSchema    map[string]any     `yaml:"parameter_schema"`
	Effects            map[string]any     `yaml:"effects"`
	Costs              map[string]float64 `yaml:"costs"`
}

// RuleConfig declares one validator. Which fields apply depends on Kind.
type RuleConfig struct {
	ID         string   `yaml:"id"`
	Kind       string   `yaml:"kind" validate:"required"`
	Severity   string   `yaml:"severity" validate:"omitempty,oneof=blocking advisory"`
	Skills     []string `yaml:"skills"`
	AgentTypes []string `yaml:"agent_types"`
	Message    string   `yaml:"message"`
	Hint       string   `yaml:"hint"`
	Fields     []string `yaml:"fields"`

	Construct string `yaml:"construct"`
	MinLevel  string `yaml:"min_level"`
	MaxLevel  string `yaml:"max_level"`

	Attribute string   `yaml:"attribute"`
	Equals    any      `yaml:"equals"`
	NotEquals any      `yaml:"not_equals"`
	Min       *float64 `yaml:"min"`
	Max       *float64 `yaml:"max"`
	Required  bool     `yaml:"required"`

	Resource string  `yaml:"resource"`
	Amount   float64 `yaml:"amount"`

	Expression string `yaml:"expression"`
}

// AgentConfig seeds one agent.
type AgentConfig struct {
	ID         string         `yaml:"id" validate:"required"`
	Type       string         `yaml:"type" validate:"required"`
	Attributes map[string]any `yaml:"attributes"`
}

// SimulationConfig controls the run loop.
type SimulationConfig struct {
	// Steps is the number of simulation steps.
	// Default: 1
	Steps int `yaml:"steps" validate:"gte=1"`

	// Workers bounds concurrent decisions within a step when agents share
	// no resources.
	// Default: 1
	Workers int `yaml:"workers" validate:"gte=1,lte=256"`

	// Seed is passed to model adapters that support seeded sampling. Zero
	// leaves sampling unseeded.
	// Default: 0
	Seed int `yaml:"seed"`

	// PromptTemplate is a text/template rendered per agent-step as the
	// model context. Empty hands the agent's state to the adapter as is.
	PromptTemplate string `yaml:"prompt_template"`
}

// EnvironmentConfig selects the simulation state backend.
type EnvironmentConfig struct {
	// Backend is "memory" or "sqlite".
	// Default: "memory"
	Backend string `yaml:"backend" validate:"oneof=memory sqlite"`

	// Path is the sqlite database file.
	// Default: "data/state.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long sqlite waits on locks.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout" validate:"gte=0"`

	// Resources are the shared resource pools at step 0.
	Resources map[string]float64 `yaml:"resources"`
}

// ModelConfig selects the model adapter.
type ModelConfig struct {
	// Adapter is "scripted" or "openai".
	// Default: "scripted"
	Adapter string `yaml:"adapter" validate:"oneof=scripted openai"`

	// Script is the replay file of the scripted adapter.
	Script string `yaml:"script"`

	// ConstructAliases maps synonyms used by models to construct names,
	// e.g. threat_appraisal: threat.
	ConstructAliases map[string]string `yaml:"construct_aliases"`

	BaseURL      string  `yaml:"base_url" validate:"omitempty,url"`
	APIKey       string  `yaml:"api_key"`
	Name         string  `yaml:"name"`
	SystemPrompt string  `yaml:"system_prompt"`
	Temperature  float32 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens    int     `yaml:"max_tokens" validate:"gte=0"`
}

// TraceConfig configures trace storage.
type TraceConfig struct {
	// Backend is "memory", "jsonl" or "sqlite".
	// Default: "jsonl"
	Backend string `yaml:"backend" validate:"oneof=memory jsonl sqlite"`

	// Path is the trace file or database.
	// Default: "data/traces.jsonl"
	Path string `yaml:"path"`

	// SyncWrites writes each record before the decision returns instead of
	// queueing it.
	// Default: false
	SyncWrites bool `yaml:"sync_writes"`

	// Buffer is the async queue size.
	// Default: 1000
	Buffer int `yaml:"buffer" validate:"gte=0"`

	// WriteTimeout bounds one storage write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`

	// MaxRawText truncates raw model output kept in traces. Zero keeps it
	// whole.
	// Default: 4096
	MaxRawText int `yaml:"max_raw_text" validate:"gte=0"`

	// RedactSecrets masks API keys in raw model output.
	// Default: true
	RedactSecrets *bool `yaml:"redact_secrets"`

	// AuditSchedule is a cron expression for periodic summaries during a
	// run. Empty disables auditing.
	AuditSchedule string `yaml:"audit_schedule"`
}

// TelemetryConfig groups observability settings.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures log/slog.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	// Default: "info"
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Format is "json" or "text".
	// Default: "text"
	Format string `yaml:"format" validate:"oneof=json text"`

	// AddSource adds file:line to records.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactAPIKeys masks attribute values that look like API keys.
	// Default: true
	RedactAPIKeys *bool `yaml:"redact_api_keys"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled serves metrics during a run.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the metrics HTTP address.
	// Default: "127.0.0.1:9464"
	ListenAddress string `yaml:"listen_address" validate:"omitempty,hostname_port"`

	// Path is the metrics HTTP path.
	// Default: "/metrics"
	Path string `yaml:"path" validate:"omitempty,startswith=/"`
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	// Enabled installs a tracer provider. Without it spans are no-ops.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Exporter is "stdout" or "otlp".
	// Default: "stdout"
	Exporter string `yaml:"exporter" validate:"oneof=stdout otlp"`

	// Endpoint is the OTLP gRPC collector address.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS for the OTLP connection.
	Insecure bool `yaml:"insecure"`

	// SampleRatio is the fraction of decisions traced.
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`
}

// SourceConfig points at a configuration file inside a git repository.
type SourceConfig struct {
	// Repository is a local path or remote URL. Empty disables the source.
	Repository string `yaml:"repository"`

	// Revision is any git revision: branch, tag or commit.
	// Default: "HEAD"
	Revision string `yaml:"revision"`

	// Path is the configuration file inside the repository.
	// Default: "wagf.yaml"
	Path string `yaml:"path"`

	// Token authenticates HTTPS clones of remote repositories.
	Token string `yaml:"token"`
}
