package broker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
)

// buildFeedback synthesizes the corrective message for the attempt after a.
// The text depends only on the attempt's event, proposal skill, results and
// error, and on the option list, so identical failures yield identical text.
func buildFeedback(a *governance.RetryAttempt, options []string, timeout string, cause error) *governance.Feedback {
	fb := &governance.Feedback{Attempt: a.Index, Event: a.Event}

	var b strings.Builder
	switch a.Event {
	case governance.EventTimeout:
		fmt.Fprintf(&b, "Your previous answer did not arrive within the time limit (%s).", timeout)
		b.WriteString(" Answer with one short JSON object.")

	case governance.EventParseError:
		reason := "unreadable response"
		var pe *governance.ParseError
		if errors.As(cause, &pe) && pe.Reason != "" {
			reason = pe.Reason
		}
		fmt.Fprintf(&b, "Your previous answer could not be parsed (%s).", reason)

	default:
		primary, ok := governance.PrimaryFailure(a.Results)
		if !ok {
			return nil
		}
		fb.RuleID = primary.RuleID

		skill := ""
		if a.Proposal != nil {
			skill = a.Proposal.SkillID
		}
		fmt.Fprintf(&b, "Your proposal %q was rejected by rule %s: %s.", skill, primary.RuleID, strings.TrimSuffix(primary.Explanation, "."))
		if primary.Hint != "" {
			fmt.Fprintf(&b, " Hint: %s.", strings.TrimSuffix(primary.Hint, "."))
		}

		var others []string
		for _, r := range governance.BlockingFailures(a.Results)[1:] {
			others = append(others, r.RuleID)
		}
		if len(others) > 0 {
			fmt.Fprintf(&b, " Also failing: %s.", strings.Join(others, ", "))
		}
	}

	if len(options) > 0 {
		fmt.Fprintf(&b, " Reply with a JSON object whose \"skill\" is one of: %s, together with your reasoning labels.", strings.Join(options, ", "))
	} else {
		b.WriteString(" Reply with a JSON object containing \"skill\" and your reasoning labels.")
	}

	fb.Text = b.String()
	return fb
}
