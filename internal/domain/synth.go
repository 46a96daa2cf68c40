package domain

// Synthesizer turns a dispatch outcome into a user-facing message.
// The core always hands it one of three shapes: a successful result,
// a denial explanation, or a no-match fallback.
type Synthesizer interface {
	Success(outcome SelectionOutcome, result ExecutionResult) string
	Denied(outcome SelectionOutcome, decision TrustDecision) string
	Failure(outcome SelectionOutcome, execErr *ExecError) string
	NoMatch(utterance string, searchSummary string) string
}
