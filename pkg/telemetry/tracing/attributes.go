package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set on decision spans and attempt events.
const (
	AttrRunID     = "wagf.run_id"
	AttrAgentID   = "wagf.agent_id"
	AttrAgentType = "wagf.agent_type"
	AttrStep      = "wagf.step"
	AttrAttempt   = "wagf.attempt"
	AttrAttempts  = "wagf.attempts"
	AttrResult    = "wagf.result"
	AttrOutcome   = "wagf.outcome"
	AttrSkill     = "wagf.skill"
)

// DecisionAttributes identifies the agent-step a span governs.
func DecisionAttributes(runID, agentID, agentType string, step int) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.String(AttrRunID, runID),
		attribute.String(AttrAgentID, agentID),
		attribute.String(AttrAgentType, agentType),
		attribute.Int(AttrStep, step),
	)
}

// AddAttempt records one retry attempt as a span event.
func AddAttempt(span trace.Span, index int, result string) {
	span.AddEvent("attempt", trace.WithAttributes(
		attribute.Int(AttrAttempt, index),
		attribute.String(AttrResult, result),
	))
}

// SetOutcome records the resolved outcome and committed skill.
func SetOutcome(span trace.Span, outcome string, attempts int, skill string) {
	span.SetAttributes(
		attribute.String(AttrOutcome, outcome),
		attribute.Int(AttrAttempts, attempts),
		attribute.String(AttrSkill, skill),
	)
}
