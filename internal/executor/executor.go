// Package executor invokes a selected capability's operations against
// the restricted set of registered handlers. It is the only component
// in the core permitted to cause external state change.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"switchboard/internal/domain"
)

// Request carries everything one invocation attempt needs, including
// the identifiers stamped on its audit record.
type Request struct {
	RequestID  string
	UserID     string
	Capability domain.Descriptor
	Operation  string
	Params     map[string]string
}

// Executor dispatches operations to registered handlers, bounded by a
// timeout. Every attempt, including refusals, produces exactly one
// audit record. Failures are never retried here; retry policy belongs
// to the downstream collaborator.
type Executor struct {
	mu       sync.RWMutex
	handlers map[string]domain.OperationHandler
	audit    domain.AuditLogger
	timeout  time.Duration
	logger   *slog.Logger
}

func New(audit domain.AuditLogger, timeout time.Duration, logger *slog.Logger) *Executor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Executor{
		handlers: make(map[string]domain.OperationHandler),
		audit:    audit,
		timeout:  timeout,
		logger:   logger,
	}
}

func (e *Executor) Register(h domain.OperationHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[h.Name()] = h
	e.logger.Debug("registered operation handler", "operation", h.Name())
}

// Execute runs one operation. The operation must be a member of the
// capability's declared set; anything else is refused and logged, never
// silently widened.
func (e *Executor) Execute(ctx context.Context, req Request) (*domain.ExecutionResult, error) {
	if !req.Capability.Declares(req.Operation) {
		execErr := &domain.ExecError{
			Kind:   domain.ErrOperationNotDeclared,
			Detail: fmt.Sprintf("operation %q not declared by capability %q", req.Operation, req.Capability.Name),
		}
		e.logger.Warn("refused undeclared operation",
			"capability", req.Capability.Name,
			"operation", req.Operation,
			"user_id", req.UserID,
		)
		e.record(ctx, req, domain.OutcomeFailure, execErr.Error())
		return nil, execErr
	}

	e.mu.RLock()
	h := e.handlers[req.Operation]
	e.mu.RUnlock()
	if h == nil {
		execErr := &domain.ExecError{
			Kind:   domain.ErrUpstreamUnavailable,
			Detail: fmt.Sprintf("no handler registered for operation %q", req.Operation),
		}
		e.record(ctx, req, domain.OutcomeFailure, execErr.Error())
		return nil, execErr
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	result, err := h.Execute(execCtx, req.UserID, req.Params)
	if err != nil {
		execErr := classify(err)
		e.logger.Warn("operation failed",
			"capability", req.Capability.Name,
			"operation", req.Operation,
			"kind", execErr.Kind,
			"err", err,
		)
		e.record(ctx, req, domain.OutcomeFailure, execErr.Error())
		return nil, execErr
	}

	if result == nil {
		result = &domain.ExecutionResult{}
	}
	result.Capability = req.Capability.Name
	result.Operation = req.Operation

	e.record(ctx, req, domain.OutcomeSuccess, "")
	return result, nil
}

// classify maps a handler error onto a stable error kind.
func classify(err error) *domain.ExecError {
	var execErr *domain.ExecError
	if errors.As(err, &execErr) {
		return execErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.ExecError{Kind: domain.ErrTimeout, Detail: "operation timed out"}
	}
	return &domain.ExecError{Kind: domain.ErrUpstreamUnavailable, Detail: err.Error()}
}

func (e *Executor) record(ctx context.Context, req Request, outcome domain.AuditOutcome, detail string) {
	rec := domain.AuditRecord{
		RequestID:   req.RequestID,
		UserID:      req.UserID,
		Capability:  req.Capability.Name,
		Kind:        req.Capability.OperationKind,
		Stage:       domain.StageExecution,
		Operation:   req.Operation,
		Params:      Redact(req.Params),
		Outcome:     outcome,
		ErrorDetail: detail,
		CreatedAt:   time.Now(),
	}
	if err := e.audit.Record(ctx, rec); err != nil {
		e.logger.Error("audit write failed", "err", err, "request_id", req.RequestID)
	}
}

var secretKeyFragments = []string{"token", "secret", "password", "api_key", "apikey", "credential"}

// Redact replaces values of secret-looking parameter keys before they
// reach the audit log.
func Redact(params map[string]string) map[string]string {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]string, len(params))
	for k, v := range params {
		lower := strings.ToLower(k)
		redacted := false
		for _, frag := range secretKeyFragments {
			if strings.Contains(lower, frag) {
				out[k] = "[redacted]"
				redacted = true
				break
			}
		}
		if !redacted {
			out[k] = v
		}
	}
	return out
}
