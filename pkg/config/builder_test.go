package config

import "time"

// ConfigBuilder provides a fluent API for building Config instances in tests.
// It starts from a small valid flood-adaptation setup and allows selective
// overrides.
type ConfigBuilder struct {
	cfg Config
}

// NewTestConfig creates a new ConfigBuilder whose result passes Validate.
func NewTestConfig() *ConfigBuilder {
	fields := []string{"threat", "coping"}
	cfg := Config{
		Skills: []SkillConfig{
			{ID: "do_nothing", RequiredFields: fields},
			{ID: "buy_insurance", RequiredFields: fields, Effects: map[string]any{"insured": true}},
			{
				ID:                 "elevate_house",
				Aliases:            []string{"elevate"},
				RequiredFields:     fields,
				EligibleAgentTypes: []string{"household_owner"},
				Effects:            map[string]any{"elevated": true},
				Costs:              map[string]float64{"subsidy_pool": 1},
			},
			{ID: "relocate", RequiredFields: fields},
		},
		Rules: []RuleConfig{
			{ID: "labels", Kind: "construct_labels"},
			{ID: "eligible", Kind: "eligibility"},
			{ID: "elevation_threat", Kind: "threshold", Skills: []string{"elevate"}, Construct: "threat", MinLevel: "M"},
			{ID: "coherence", Kind: "coherence", Severity: "advisory"},
		},
		Agents: []AgentConfig{
			{ID: "h1", Type: "household_owner"},
			{ID: "h2", Type: "household_owner"},
		},
		Environment: EnvironmentConfig{Resources: map[string]float64{"subsidy_pool": 5}},
		Model:       ModelConfig{Script: "script.yaml"},
		Trace:       TraceConfig{Backend: "memory"},
	}
	ApplyDefaults(&cfg)
	return &ConfigBuilder{cfg: cfg}
}

// Build returns the built Config instance.
func (b *ConfigBuilder) Build() *Config {
	return &b.cfg
}

// WithMaxRetries sets broker.max_retries.
func (b *ConfigBuilder) WithMaxRetries(n int) *ConfigBuilder {
	b.cfg.Broker.MaxRetries = n
	return b
}

// WithProposeTimeout sets broker.propose_timeout.
func (b *ConfigBuilder) WithProposeTimeout(d time.Duration) *ConfigBuilder {
	b.cfg.Broker.ProposeTimeout = d
	return b
}

// WithRule appends a rule.
func (b *ConfigBuilder) WithRule(r RuleConfig) *ConfigBuilder {
	b.cfg.Rules = append(b.cfg.Rules, r)
	return b
}

// WithFallback sets the fallback skill of an agent type.
func (b *ConfigBuilder) WithFallback(agentType, skill string) *ConfigBuilder {
	if b.cfg.Fallbacks == nil {
		b.cfg.Fallbacks = make(map[string]string)
	}
	b.cfg.Fallbacks[agentType] = skill
	return b
}

// WithAgent appends an agent.
func (b *ConfigBuilder) WithAgent(id, agentType string) *ConfigBuilder {
	b.cfg.Agents = append(b.cfg.Agents, AgentConfig{ID: id, Type: agentType})
	return b
}

// WithTrace sets the trace backend and path.
func (b *ConfigBuilder) WithTrace(backend, path string) *ConfigBuilder {
	b.cfg.Trace.Backend = backend
	b.cfg.Trace.Path = path
	return b
}
