package domain

import (
	"context"
	"time"
)

// AuditOutcome is the terminal state of one recorded attempt.
type AuditOutcome string

const (
	OutcomeSuccess  AuditOutcome = "SUCCESS"
	OutcomeFailure  AuditOutcome = "FAILURE"
	OutcomeDenied   AuditOutcome = "DENIED"
	OutcomeNoWinner AuditOutcome = "NO_WINNER"
)

// Audit stages. One selection may produce a trust record and an
// execution record; a no-winner selection produces only a selection
// record.
const (
	StageSelection = "selection"
	StageTrust     = "trust"
	StageExecution = "execution"
)

// AuditRecord is one append-only entry: who, what, when, parameters,
// outcome. Parameters must be redacted of secrets before recording.
type AuditRecord struct {
	RequestID   string
	UserID      string
	Capability  string
	Kind        OperationKind
	Stage       string
	Operation   string
	Params      map[string]string
	Outcome     AuditOutcome
	ErrorDetail string
	CreatedAt   time.Time
}

// AuditLogger is the write side of the audit log. Record must accept
// duplicate and out-of-order entries without error.
type AuditLogger interface {
	Record(ctx context.Context, rec AuditRecord) error
}

// AuditReader is the read path for external reporting.
type AuditReader interface {
	Query(ctx context.Context, userID string, since time.Time) ([]AuditRecord, error)
}
