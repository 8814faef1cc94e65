package governance

import "fmt"

// Outcome is the terminal disposition of one governed agent-step.
type Outcome string

const (
	// OutcomeApproved means the first attempt passed every blocking rule.
	OutcomeApproved Outcome = "APPROVED"

	// OutcomeRetrySuccess means a later attempt passed after at least one
	// corrective retry.
	OutcomeRetrySuccess Outcome = "RETRY_SUCCESS"

	// OutcomeRetryExhaustedFallback means every attempt was rejected and the
	// fallback skill was substituted.
	OutcomeRetryExhaustedFallback Outcome = "RETRY_EXHAUSTED_FALLBACK"

	// OutcomeMalformedInput means no attempt produced a structured proposal.
	// The fallback skill is applied as for exhaustion.
	OutcomeMalformedInput Outcome = "MALFORMED_INPUT"

	// OutcomeUnknownSkill means a proposal named a skill missing from the
	// registry. The step is aborted with the fallback skill.
	OutcomeUnknownSkill Outcome = "UNKNOWN_SKILL"

	// OutcomeExecutionFailed means the environment rejected the command and
	// the agent's state is unchanged.
	OutcomeExecutionFailed Outcome = "EXECUTION_FAILED"
)

// Outcomes lists every outcome tag in a stable order.
var Outcomes = []Outcome{
	OutcomeApproved,
	OutcomeRetrySuccess,
	OutcomeRetryExhaustedFallback,
	OutcomeMalformedInput,
	OutcomeUnknownSkill,
	OutcomeExecutionFailed,
}

// ParseOutcome parses an outcome tag.
func ParseOutcome(s string) (Outcome, error) {
	for _, o := range Outcomes {
		if string(o) == s {
			return o, nil
		}
	}
	return "", fmt.Errorf("unknown outcome %q", s)
}

// Accepted reports whether the outcome committed the model's own proposal.
func (o Outcome) Accepted() bool {
	return o == OutcomeApproved || o == OutcomeRetrySuccess
}

// UsesFallback reports whether the outcome substitutes the fallback skill.
func (o Outcome) UsesFallback() bool {
	return o == OutcomeRetryExhaustedFallback || o == OutcomeMalformedInput || o == OutcomeUnknownSkill
}
