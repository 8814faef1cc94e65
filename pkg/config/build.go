package config

import (
	"github.com/WenyuChiou/WAGF-sub003/pkg/adapters/openai"
	"github.com/WenyuChiou/WAGF-sub003/pkg/environment"
	"github.com/WenyuChiou/WAGF-sub003/pkg/governance/broker"
	"github.com/WenyuChiou/WAGF-sub003/pkg/governance/rules"
	"github.com/WenyuChiou/WAGF-sub003/pkg/governance/theory"
	"github.com/WenyuChiou/WAGF-sub003/pkg/proposal"
	"github.com/WenyuChiou/WAGF-sub003/pkg/simulation"
	"github.com/WenyuChiou/WAGF-sub003/pkg/skills"
	"github.com/WenyuChiou/WAGF-sub003/pkg/trace/recorder"
)

// SkillDefinitions converts the skill catalogue.
func (c *Config) SkillDefinitions() []skills.Definition {
	defs := make([]skills.Definition, len(c.Skills))
	for i, s := range c.Skills {
		defs[i] = skills.Definition{
			ID:                 s.ID,
			Description:        s.Description,
			RequiredFields:     s.RequiredFields,
			EligibleAgentTypes: s.EligibleAgentTypes,
			Aliases:            s.Aliases,
			ParameterSchema:    s.ParameterSchema,
			Effects:            s.Effects,
			Costs:              s.Costs,
		}
	}
	return defs
}

// BuildRegistry builds the skill registry.
func (c *Config) BuildRegistry() (*skills.Registry, error) {
	return skills.NewRegistry(c.SkillDefinitions())
}

// BuildTheory selects the configured theory.
func (c *Config) BuildTheory() (theory.Theory, error) {
	return theory.New(c.Theory.Name, c.Theory.AgentTypes)
}

// RuleSpecs converts the rule table, preserving order.
func (c *Config) RuleSpecs() []rules.Spec {
	specs := make([]rules.Spec, len(c.Rules))
	for i, r := range c.Rules {
		specs[i] = rules.Spec{
			ID:         r.ID,
			Kind:       rules.Kind(r.Kind),
			Severity:   r.Severity,
			Skills:     r.Skills,
			AgentTypes: r.AgentTypes,
			Message:    r.Message,
			Hint:       r.Hint,
			Fields:     r.Fields,
			Construct:  r.Construct,
			MinLevel:   r.MinLevel,
			MaxLevel:   r.MaxLevel,
			Attribute:  r.Attribute,
			Equals:     r.Equals,
			NotEquals:  r.NotEquals,
			Min:        r.Min,
			Max:        r.Max,
			Required:   r.Required,
			Resource:   r.Resource,
			Amount:     r.Amount,
			Expression: r.Expression,
		}
	}
	return specs
}

// BuildPipeline builds the validator pipeline against a registry and theory.
func (c *Config) BuildPipeline(reg *skills.Registry, th theory.Theory) (*rules.Pipeline, error) {
	return rules.Build(c.RuleSpecs(), reg, th)
}

// BrokerConfig returns the broker settings.
func (c *Config) BrokerConfig() *broker.Config {
	return &broker.Config{
		MaxRetries:      c.Broker.MaxRetries,
		ProposeTimeout:  c.Broker.ProposeTimeout,
		RateLimit:       c.Broker.RateLimit,
		Burst:           c.Broker.Burst,
		DefaultFallback: c.Broker.DefaultFallback,
		Fallbacks:       c.Fallbacks,
		RuleSetVersion:  c.RuleSetVersion,
	}
}

// Parser returns the proposal parser with the configured construct aliases.
func (c *Config) Parser() *proposal.Parser {
	return proposal.NewParser(c.Model.ConstructAliases)
}

// EnvironmentAgents converts the agent seeds.
func (c *Config) EnvironmentAgents() []environment.Agent {
	agents := make([]environment.Agent, len(c.Agents))
	for i, a := range c.Agents {
		agents[i] = environment.Agent{ID: a.ID, Type: a.Type, Attrs: a.Attributes}
	}
	return agents
}

// RecorderConfig returns the trace recorder settings.
func (c *Config) RecorderConfig() *recorder.Config {
	return &recorder.Config{
		Async:         !c.Trace.SyncWrites,
		AsyncBuffer:   c.Trace.Buffer,
		WriteTimeout:  c.Trace.WriteTimeout,
		MaxRawText:    c.Trace.MaxRawText,
		RedactSecrets: Enabled(c.Trace.RedactSecrets),
	}
}

// SimulationConfig returns the runner settings for a run.
func (c *Config) SimulationConfig(runID string) *simulation.Config {
	return &simulation.Config{
		RunID:   runID,
		Steps:   c.Simulation.Steps,
		Workers: c.Simulation.Workers,
	}
}

// OpenAIConfig returns the settings of the OpenAI-compatible adapter.
func (c *Config) OpenAIConfig() openai.Config {
	return openai.Config{
		APIKey:       c.Model.APIKey,
		BaseURL:      c.Model.BaseURL,
		Model:        c.Model.Name,
		SystemPrompt: c.Model.SystemPrompt,
		Temperature:  c.Model.Temperature,
		MaxTokens:    c.Model.MaxTokens,
		Seed:         c.Simulation.Seed,
	}
}
