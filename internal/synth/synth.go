// Package synth renders dispatch outcomes into user-facing text. The
// dispatcher injects it as an interface; a language-model backed
// implementation can be swapped in without touching the core.
package synth

import (
	"fmt"
	"strings"

	"switchboard/internal/domain"
)

// Template is a deterministic, template-based synthesizer.
type Template struct{}

func NewTemplate() *Template {
	return &Template{}
}

func (t *Template) Success(outcome domain.SelectionOutcome, result domain.ExecutionResult) string {
	if result.Summary != "" {
		return result.Summary
	}
	return fmt.Sprintf("Done: %s completed %s.", result.Capability, result.Operation)
}

func (t *Template) Denied(outcome domain.SelectionOutcome, decision domain.TrustDecision) string {
	capName := "that capability"
	if outcome.Winner != nil {
		capName = outcome.Winner.Capability
	}
	switch decision {
	case domain.DecisionDeniedNoAllowlist:
		return fmt.Sprintf("I can't run %s for you: this action needs your standing approval first. "+
			"Ask an operator to grant it, or confirm this one action when prompted.", capName)
	case domain.DecisionDeniedLowConfidence:
		return fmt.Sprintf("I matched %s but not confidently enough to act on it. "+
			"Could you rephrase more specifically?", capName)
	default:
		return fmt.Sprintf("I won't run %s: the request was denied.", capName)
	}
}

func (t *Template) Failure(outcome domain.SelectionOutcome, execErr *domain.ExecError) string {
	capName := "the capability"
	if outcome.Winner != nil {
		capName = outcome.Winner.Capability
	}
	switch execErr.Kind {
	case domain.ErrTimeout:
		return fmt.Sprintf("%s took too long and was stopped. Nothing may have happened; please try again.", capName)
	case domain.ErrParameterInvalid:
		return fmt.Sprintf("I understood the request but %s rejected it: %s.", capName, execErr.Detail)
	case domain.ErrOperationNotDeclared:
		return fmt.Sprintf("%s tried an operation it never declared, so I refused it.", capName)
	default:
		return fmt.Sprintf("%s is unavailable right now. Please try again later.", capName)
	}
}

func (t *Template) NoMatch(utterance string, searchSummary string) string {
	var b strings.Builder
	b.WriteString("I couldn't find a confident match for that.")
	if searchSummary != "" {
		b.WriteString(" Here's what a search turned up:\n\n")
		b.WriteString(searchSummary)
	}
	return b.String()
}
