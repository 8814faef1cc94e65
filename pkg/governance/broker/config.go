package broker

import (
	"fmt"
	"time"

	"github.com/WenyuChiou/WAGF-sub003/pkg/skills"
)

// Config contains the broker's retry, timeout and fallback settings.
type Config struct {
	// MaxRetries is the total number of propose attempts per agent-step,
	// including the first.
	// Default: 3
	MaxRetries int

	// ProposeTimeout bounds a single adapter call. Zero disables the bound.
	// Default: 30 seconds
	ProposeTimeout time.Duration

	// RateLimit caps adapter calls per second across all agents. Zero
	// disables limiting.
	// Default: 0
	RateLimit float64

	// Burst is the limiter's bucket size.
	// Default: 1
	Burst int

	// DefaultFallback is committed for agent types without an entry in
	// Fallbacks.
	// Default: "do_nothing"
	DefaultFallback string

	// Fallbacks maps agent type to its fallback skill.
	Fallbacks map[string]string

	// RuleSetVersion is stamped into every trace record.
	RuleSetVersion string
}

// DefaultConfig returns the default broker configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:      3,
		ProposeTimeout:  30 * time.Second,
		Burst:           1,
		DefaultFallback: "do_nothing",
	}
}

// Validate checks the configuration against the skill registry. Every
// fallback must name a registered skill, and a per-type fallback must be
// eligible for that type.
func (c *Config) Validate(registry *skills.Registry) error {
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.ProposeTimeout < 0 {
		return fmt.Errorf("propose_timeout cannot be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative")
	}
	if c.RateLimit > 0 && c.Burst < 1 {
		return fmt.Errorf("burst must be at least 1 when rate_limit is set")
	}
	if c.DefaultFallback == "" {
		return fmt.Errorf("default fallback skill is required")
	}
	if _, err := registry.Lookup(c.DefaultFallback); err != nil {
		return fmt.Errorf("default fallback: %w", err)
	}
	for agentType, skill := range c.Fallbacks {
		if _, err := registry.Lookup(skill); err != nil {
			return fmt.Errorf("fallback for %s: %w", agentType, err)
		}
		if !registry.IsEligible(skill, agentType) {
			return fmt.Errorf("fallback %s is not eligible for agent type %s", skill, agentType)
		}
	}
	return nil
}

// fallbackFor returns the canonical fallback skill for an agent type.
func (c *Config) fallbackFor(registry *skills.Registry, agentType string) string {
	skill := c.DefaultFallback
	if s, ok := c.Fallbacks[agentType]; ok {
		skill = s
	}
	if id, ok := registry.Resolve(skill); ok {
		return id
	}
	return skill
}
