// Package governance defines the shared vocabulary of the skill broker: the
// proposal a model produces, the agent state validators read, the results a
// validation attempt yields, the admissible command handed to the simulation
// environment and the outcome taxonomy recorded in the trace.
//
// # Decision Flow
//
//	DecisionContext (opaque context from the memory subsystem)
//	       ↓
//	Proposer.Propose          → SkillProposal | *ParseError | timeout
//	       ↓
//	skills.Registry.Lookup    → Definition | *UnknownSkillError
//	       ↓
//	rules.Pipeline.Validate   → []ValidationResult
//	       ↓
//	accept | retry with Feedback | exhaust
//	       ↓
//	Outcome + AdmissibleCommand (proposal or fallback)
//	       ↓
//	Environment.Apply         → ExecutionResult | *ExecutionError
//	       ↓
//	trace record
//
// The package holds only types and interfaces. The retry loop lives in
// governance/broker, rule evaluation in governance/rules and construct
// theories in governance/theory.
package governance
