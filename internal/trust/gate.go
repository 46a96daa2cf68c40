// Package trust separates read-only inference from state-changing
// action. The gate classifies a winning capability's operation as READ
// or ACT and enforces the per-user allowlist before any ACT operation
// reaches a live side effect.
package trust

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"switchboard/internal/domain"
)

// ConfirmFunc is a callback to request one-time user confirmation.
// It sends the question and returns true if the user confirmed.
type ConfirmFunc func(ctx context.Context, question string) (bool, error)

// Decision is the gate's verdict on one selection outcome.
type Decision struct {
	Decision domain.TrustDecision
	Kind     domain.OperationKind
	Override bool // true when allowed by one-time confirmation, not a standing grant
	Detail   string
}

// Gate enforces trust policy over one selection outcome at a time.
// It reads the allowlist and writes the audit log; it never executes.
type Gate struct {
	allowlist        domain.Allowlist
	audit            domain.AuditLogger
	minActConfidence float64
	logger           *slog.Logger
}

func NewGate(allowlist domain.Allowlist, audit domain.AuditLogger, minActConfidence float64, logger *slog.Logger) *Gate {
	return &Gate{
		allowlist:        allowlist,
		audit:            audit,
		minActConfidence: minActConfidence,
		logger:           logger,
	}
}

// Classify maps a descriptor to its operation kind. A capability with
// no declared kind is treated as ACT: fail-closed, never fail-open.
func Classify(d domain.Descriptor) domain.OperationKind {
	if d.OperationKind == domain.KindRead {
		return domain.KindRead
	}
	return domain.KindAct
}

// Authorize classifies the winner's operation and checks the allowlist
// for ACT. Every decision, including denials, is written to the audit
// log before returning.
func (g *Gate) Authorize(ctx context.Context, outcome domain.SelectionOutcome, d domain.Descriptor) (Decision, error) {
	kind := Classify(d)

	if kind == domain.KindRead {
		// READ never requires an allowlist entry; no lookup at all.
		dec := Decision{Decision: domain.DecisionAllowed, Kind: kind, Detail: "read operation"}
		return dec, g.record(ctx, outcome, d, dec)
	}

	if outcome.Winner != nil && outcome.Winner.Confidence < g.minActConfidence {
		dec := Decision{
			Decision: domain.DecisionDeniedLowConfidence,
			Kind:     kind,
			Detail:   fmt.Sprintf("confidence %.2f below action minimum %.2f", outcome.Winner.Confidence, g.minActConfidence),
		}
		g.logger.Info("action denied: low confidence",
			"capability", d.Name,
			"user_id", outcome.UserID,
			"confidence", outcome.Winner.Confidence,
		)
		return dec, g.record(ctx, outcome, d, dec)
	}

	granted, err := g.allowlist.Granted(ctx, outcome.UserID, kind)
	if err != nil {
		return Decision{}, fmt.Errorf("allowlist lookup: %w", err)
	}

	var dec Decision
	if granted {
		dec = Decision{Decision: domain.DecisionAllowed, Kind: kind, Detail: "standing allowlist grant"}
	} else {
		dec = Decision{Decision: domain.DecisionDeniedNoAllowlist, Kind: kind, Detail: "no allowlist entry"}
		g.logger.Info("action denied: no allowlist entry",
			"capability", d.Name,
			"user_id", outcome.UserID,
		)
	}
	return dec, g.record(ctx, outcome, d, dec)
}

// ConfirmOnce re-runs classification with an explicit one-time override
// after the user confirmed out of band. The override is audited
// distinctly from a standing allowlist grant.
func (g *Gate) ConfirmOnce(ctx context.Context, outcome domain.SelectionOutcome, d domain.Descriptor) (Decision, error) {
	kind := Classify(d)
	dec := Decision{
		Decision: domain.DecisionAllowed,
		Kind:     kind,
		Override: true,
		Detail:   "one-time confirmation override",
	}
	g.logger.Info("action allowed by one-time confirmation",
		"capability", d.Name,
		"user_id", outcome.UserID,
	)
	return dec, g.record(ctx, outcome, d, dec)
}

func (g *Gate) record(ctx context.Context, outcome domain.SelectionOutcome, d domain.Descriptor, dec Decision) error {
	rec := domain.AuditRecord{
		RequestID:   outcome.RequestID,
		UserID:      outcome.UserID,
		Capability:  d.Name,
		Kind:        dec.Kind,
		Stage:       domain.StageTrust,
		ErrorDetail: dec.Detail,
		CreatedAt:   time.Now(),
	}
	if outcome.Winner != nil {
		rec.Operation = outcome.Winner.Operation
	}
	if dec.Decision == domain.DecisionAllowed {
		rec.Outcome = domain.OutcomeSuccess
	} else {
		rec.Outcome = domain.OutcomeDenied
		rec.ErrorDetail = string(dec.Decision) + ": " + dec.Detail
	}
	return g.audit.Record(ctx, rec)
}
