package executor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"switchboard/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// captureAudit keeps every record it sees.
type captureAudit struct {
	records []domain.AuditRecord
}

func (c *captureAudit) Record(ctx context.Context, rec domain.AuditRecord) error {
	c.records = append(c.records, rec)
	return nil
}

// funcHandler adapts a function to domain.OperationHandler.
type funcHandler struct {
	name string
	fn   func(ctx context.Context, userID string, params map[string]string) (*domain.ExecutionResult, error)
}

func (h *funcHandler) Name() string { return h.name }

func (h *funcHandler) Execute(ctx context.Context, userID string, params map[string]string) (*domain.ExecutionResult, error) {
	return h.fn(ctx, userID, params)
}

func testDescriptor(ops ...string) domain.Descriptor {
	return domain.Descriptor{
		Name:              "test-cap",
		OperationKind:     domain.KindAct,
		AllowedOperations: ops,
	}
}

func testRequest(op string) Request {
	return Request{
		RequestID:  "req-1",
		UserID:     "u1",
		Capability: testDescriptor("thing.do"),
		Operation:  op,
		Params:     map[string]string{"x": "1"},
	}
}

// --- Execute ---

func TestExecute_Success(t *testing.T) {
	audit := &captureAudit{}
	e := New(audit, time.Second, testLogger())
	e.Register(&funcHandler{name: "thing.do", fn: func(ctx context.Context, userID string, params map[string]string) (*domain.ExecutionResult, error) {
		if userID != "u1" {
			t.Fatalf("handler must receive the user ID, got %q", userID)
		}
		return &domain.ExecutionResult{Summary: "done"}, nil
	}})

	result, err := e.Execute(context.Background(), testRequest("thing.do"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Summary != "done" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Capability != "test-cap" || result.Operation != "thing.do" {
		t.Fatalf("result must be stamped with capability and operation: %+v", result)
	}
	if len(audit.records) != 1 || audit.records[0].Outcome != domain.OutcomeSuccess {
		t.Fatalf("expected one SUCCESS execution record, got %+v", audit.records)
	}
	if audit.records[0].Stage != domain.StageExecution {
		t.Fatalf("expected execution stage, got %q", audit.records[0].Stage)
	}
}

func TestExecute_UndeclaredOperationRefused(t *testing.T) {
	audit := &captureAudit{}
	e := New(audit, time.Second, testLogger())
	e.Register(&funcHandler{name: "other.op", fn: func(ctx context.Context, userID string, params map[string]string) (*domain.ExecutionResult, error) {
		t.Fatal("handler must never run for an undeclared operation")
		return nil, nil
	}})

	_, err := e.Execute(context.Background(), testRequest("other.op"))
	var execErr *domain.ExecError
	if !errors.As(err, &execErr) || execErr.Kind != domain.ErrOperationNotDeclared {
		t.Fatalf("expected OPERATION_NOT_DECLARED, got %v", err)
	}
	if len(audit.records) != 1 || audit.records[0].Outcome != domain.OutcomeFailure {
		t.Fatalf("refusal must be audited as FAILURE, got %+v", audit.records)
	}
}

func TestExecute_NoHandlerRegistered(t *testing.T) {
	e := New(&captureAudit{}, time.Second, testLogger())

	_, err := e.Execute(context.Background(), testRequest("thing.do"))
	var execErr *domain.ExecError
	if !errors.As(err, &execErr) || execErr.Kind != domain.ErrUpstreamUnavailable {
		t.Fatalf("expected UPSTREAM_UNAVAILABLE, got %v", err)
	}
}

func TestExecute_HandlerErrorKindsPassThrough(t *testing.T) {
	e := New(&captureAudit{}, time.Second, testLogger())
	e.Register(&funcHandler{name: "thing.do", fn: func(ctx context.Context, userID string, params map[string]string) (*domain.ExecutionResult, error) {
		return nil, &domain.ExecError{Kind: domain.ErrParameterInvalid, Detail: "missing x"}
	}})

	_, err := e.Execute(context.Background(), testRequest("thing.do"))
	var execErr *domain.ExecError
	if !errors.As(err, &execErr) || execErr.Kind != domain.ErrParameterInvalid {
		t.Fatalf("expected PARAMETER_INVALID to pass through, got %v", err)
	}
}

func TestExecute_Timeout(t *testing.T) {
	audit := &captureAudit{}
	e := New(audit, 50*time.Millisecond, testLogger())
	e.Register(&funcHandler{name: "thing.do", fn: func(ctx context.Context, userID string, params map[string]string) (*domain.ExecutionResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})

	_, err := e.Execute(context.Background(), testRequest("thing.do"))
	var execErr *domain.ExecError
	if !errors.As(err, &execErr) || execErr.Kind != domain.ErrTimeout {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
	if len(audit.records) != 1 || audit.records[0].Outcome != domain.OutcomeFailure {
		t.Fatalf("timeout must be audited as FAILURE, got %+v", audit.records)
	}
}

func TestExecute_UnknownErrorIsUpstream(t *testing.T) {
	e := New(&captureAudit{}, time.Second, testLogger())
	e.Register(&funcHandler{name: "thing.do", fn: func(ctx context.Context, userID string, params map[string]string) (*domain.ExecutionResult, error) {
		return nil, errors.New("boom")
	}})

	_, err := e.Execute(context.Background(), testRequest("thing.do"))
	var execErr *domain.ExecError
	if !errors.As(err, &execErr) || execErr.Kind != domain.ErrUpstreamUnavailable {
		t.Fatalf("expected unknown errors to map to UPSTREAM_UNAVAILABLE, got %v", err)
	}
}

// --- Redaction ---

func TestRedact_SecretKeys(t *testing.T) {
	params := map[string]string{
		"item":      "milk",
		"api_key":   "sk-12345",
		"authToken": "tok",
		"PASSWORD":  "hunter2",
	}
	out := Redact(params)
	if out["item"] != "milk" {
		t.Fatalf("non-secret values must pass through, got %q", out["item"])
	}
	for _, k := range []string{"api_key", "authToken", "PASSWORD"} {
		if out[k] != "[redacted]" {
			t.Fatalf("%s must be redacted, got %q", k, out[k])
		}
	}
}

func TestExecute_AuditParamsRedacted(t *testing.T) {
	audit := &captureAudit{}
	e := New(audit, time.Second, testLogger())
	e.Register(&funcHandler{name: "thing.do", fn: func(ctx context.Context, userID string, params map[string]string) (*domain.ExecutionResult, error) {
		return &domain.ExecutionResult{}, nil
	}})

	req := testRequest("thing.do")
	req.Params = map[string]string{"token": "secret-value", "item": "milk"}
	if _, err := e.Execute(context.Background(), req); err != nil {
		t.Fatalf("execute: %v", err)
	}
	rec := audit.records[0]
	if rec.Params["token"] != "[redacted]" {
		t.Fatalf("audit params must be redacted, got %+v", rec.Params)
	}
	if rec.Params["item"] != "milk" {
		t.Fatalf("non-secret audit params must survive, got %+v", rec.Params)
	}
}
