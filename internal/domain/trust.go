package domain

import (
	"context"
	"time"
)

// TrustDecision is the outcome of gating one selection.
type TrustDecision string

const (
	DecisionAllowed             TrustDecision = "ALLOWED"
	DecisionDeniedNoAllowlist   TrustDecision = "DENIED_NO_ALLOWLIST"
	DecisionDeniedLowConfidence TrustDecision = "DENIED_LOW_CONFIDENCE"
)

// AllowlistEntry is a standing per-user, per-operation-kind grant.
// Entries never expire silently; only an explicit revoke ends one.
type AllowlistEntry struct {
	UserID    string
	Kind      OperationKind
	GrantedAt time.Time
	RevokedAt *time.Time
}

// Allowlist is the per-user approval store consulted before any ACT
// operation. The trust gate only reads; grants and revocations come
// from the administrative surface.
type Allowlist interface {
	Granted(ctx context.Context, userID string, kind OperationKind) (bool, error)
	Grant(ctx context.Context, userID string, kind OperationKind) error
	Revoke(ctx context.Context, userID string, kind OperationKind) error
	Entries(ctx context.Context, userID string) ([]AllowlistEntry, error)
}
