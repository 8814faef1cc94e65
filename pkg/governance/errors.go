package governance

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrUnknownSkill indicates a skill identifier missing from the registry.
	ErrUnknownSkill = errors.New("unknown skill")

	// ErrAdapterUnavailable indicates the model adapter cannot serve any
	// request (bad credentials, missing endpoint). It aborts the run.
	ErrAdapterUnavailable = errors.New("model adapter unavailable")

	// ErrMalformedProposal indicates adapter output that cannot be structured.
	ErrMalformedProposal = errors.New("malformed proposal")

	// ErrExecution indicates the environment rejected a command.
	ErrExecution = errors.New("execution rejected")
)

// UnknownSkillError reports a registry miss.
type UnknownSkillError struct {
	SkillID string
}

// Error returns the error message.
func (e *UnknownSkillError) Error() string {
	return fmt.Sprintf("unknown skill %q", e.SkillID)
}

// Is matches ErrUnknownSkill.
func (e *UnknownSkillError) Is(target error) bool {
	return target == ErrUnknownSkill
}

// ParseError indicates the adapter output could not be turned into a
// SkillProposal.
type ParseError struct {
	// Reason is a short, stable description used in feedback text.
	Reason string

	// Raw is the offending output.
	Raw string

	Cause error
}

// Error returns the error message.
func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("parse error: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Is matches ErrMalformedProposal.
func (e *ParseError) Is(target error) bool {
	return target == ErrMalformedProposal
}

// NewParseError creates a ParseError.
func NewParseError(reason, raw string, cause error) *ParseError {
	return &ParseError{Reason: reason, Raw: raw, Cause: cause}
}

// ExecutionError indicates the environment refused an admissible command.
type ExecutionError struct {
	AgentID string
	SkillID string
	Reason  string
	Cause   error
}

// Error returns the error message.
func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("agent %s skill %s: %s", e.AgentID, e.SkillID, e.Reason)
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is matches ErrExecution.
func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecution
}

// NewExecutionError creates an ExecutionError.
func NewExecutionError(agentID, skillID, reason string, cause error) *ExecutionError {
	return &ExecutionError{AgentID: agentID, SkillID: skillID, Reason: reason, Cause: cause}
}

// AgentNotFoundError indicates the environment has no state for an agent.
type AgentNotFoundError struct {
	AgentID string
}

// Error returns the error message.
func (e *AgentNotFoundError) Error() string {
	return fmt.Sprintf("agent not found: %q", e.AgentID)
}
