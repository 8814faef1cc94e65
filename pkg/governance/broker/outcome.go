package broker

import (
	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
)

// loopResult is how the retry loop ended.
type loopResult struct {
	attempts []governance.RetryAttempt

	// accepted is the index of the accepted attempt, -1 when none was.
	accepted int

	// command is the accepted proposal's command; nil unless accepted >= 0.
	command *governance.AdmissibleCommand

	// unknown is set when a proposal named an unregistered skill.
	unknown error
}

// resolveOutcome maps the end of the retry loop to an outcome tag.
func resolveOutcome(res *loopResult) governance.Outcome {
	switch {
	case res.unknown != nil:
		return governance.OutcomeUnknownSkill
	case res.accepted == 0:
		return governance.OutcomeApproved
	case res.accepted > 0:
		return governance.OutcomeRetrySuccess
	}
	for _, a := range res.attempts {
		if a.Proposal != nil {
			return governance.OutcomeRetryExhaustedFallback
		}
	}
	return governance.OutcomeMalformedInput
}

// commandFor returns the command to execute for outcome. Fallback
// outcomes get a fresh command carrying only the fallback skill; nothing
// from the rejected proposals is carried over.
func commandFor(outcome governance.Outcome, res *loopResult, fallbackSkill string) *governance.AdmissibleCommand {
	if outcome.Accepted() {
		return res.command
	}
	return &governance.AdmissibleCommand{SkillID: fallbackSkill, Fallback: true}
}
