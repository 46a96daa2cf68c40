package domain

// Candidate is one capability's claim on an utterance.
type Candidate struct {
	Capability string
	Confidence float64
	Operation  string
	Params     map[string]string
}

// SelectionOutcome is the ephemeral result of scoring one utterance
// against the active capability set. At most one winner per request;
// a nil winner means no candidate cleared the selection threshold and
// the caller must route to the read-only fallback.
type SelectionOutcome struct {
	RequestID  string
	UserID     string
	Utterance  string
	Candidates []Candidate
	Winner     *Candidate
}
