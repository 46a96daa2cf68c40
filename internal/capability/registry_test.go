package capability

import (
	"context"
	"os"
	"testing"

	"switchboard/internal/domain"
)

// memApprovals is an in-memory ApprovalStore.
type memApprovals struct {
	hashes map[string]string
}

func newMemApprovals() *memApprovals {
	return &memApprovals{hashes: make(map[string]string)}
}

func (m *memApprovals) ApprovedHash(ctx context.Context, name string) (string, error) {
	return m.hashes[name], nil
}

func (m *memApprovals) RecordApproval(ctx context.Context, name string, hash string) error {
	m.hashes[name] = hash
	return nil
}

// --- Builtins ---

func TestLoad_BuiltinsAutoApproved(t *testing.T) {
	reg := NewRegistry(t.TempDir(), newMemApprovals(), testLogger())
	reg.RegisterBuiltins(Builtins()...)

	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	active := reg.Active()
	if len(active) != len(Builtins()) {
		t.Fatalf("all builtins must be active on first load: got %d of %d", len(active), len(Builtins()))
	}
}

func TestLoad_BuiltinApprovalRecorded(t *testing.T) {
	approvals := newMemApprovals()
	reg := NewRegistry(t.TempDir(), approvals, testLogger())
	reg.RegisterBuiltins(Builtins()...)

	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if approvals.hashes["shopping-list"] == "" {
		t.Fatal("builtin hash must be recorded as approved on first load")
	}
}

// --- User capabilities ---

func TestLoad_UserCapabilityStartsInactive(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pizza.yaml", validDescriptor)

	reg := NewRegistry(dir, newMemApprovals(), testLogger())
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	d, ok := reg.Get("pizza")
	if !ok {
		t.Fatal("pizza must be registered")
	}
	if d.Active {
		t.Fatal("unapproved user capability must start inactive")
	}
	if len(reg.Active()) != 0 {
		t.Fatal("inactive capability must not appear in the active set")
	}
}

func TestApprove_ActivatesAndPersists(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pizza.yaml", validDescriptor)

	approvals := newMemApprovals()
	reg := NewRegistry(dir, approvals, testLogger())
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := reg.Approve(context.Background(), "pizza"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	d, _ := reg.Get("pizza")
	if !d.Active {
		t.Fatal("approved capability must be active")
	}
	if approvals.hashes["pizza"] != d.IntegrityHash {
		t.Fatal("approval must persist the current hash")
	}

	// A reload with unchanged content keeps it active.
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	d, _ = reg.Get("pizza")
	if !d.Active {
		t.Fatal("approved capability must survive a reload")
	}
}

func TestApprove_UnknownCapability(t *testing.T) {
	reg := NewRegistry(t.TempDir(), newMemApprovals(), testLogger())
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := reg.Approve(context.Background(), "ghost"); err == nil {
		t.Fatal("approving an unknown capability must error")
	}
}

// --- Integrity ---

func TestLoad_HashChangeDeactivates(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "pizza.yaml", validDescriptor)

	reg := NewRegistry(dir, newMemApprovals(), testLogger())
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := reg.Approve(context.Background(), "pizza"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// Modify the descriptor file behind the registry's back.
	edited := validDescriptor + "\n# instructions changed\n"
	if err := os.WriteFile(path, []byte(edited), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	d, ok := reg.Get("pizza")
	if !ok {
		t.Fatal("pizza must still be registered")
	}
	if d.Active {
		t.Fatal("capability with a changed hash must be inactive until re-approved")
	}

	// Re-approval of the new content activates it again.
	if err := reg.Approve(context.Background(), "pizza"); err != nil {
		t.Fatalf("re-approve: %v", err)
	}
	d, _ = reg.Get("pizza")
	if !d.Active {
		t.Fatal("re-approved capability must be active")
	}
}

// --- Snapshot semantics ---

func TestLoad_DuplicateNameKeepsFirst(t *testing.T) {
	dir := t.TempDir()
	// Same name as the builtin; the builtin wins.
	writeFile(t, dir, "clone.yaml", `
name: shopping-list
operation_kind: read
triggers:
  - keywords: [impostor]
allowed_operations: [list.get]
`)

	reg := NewRegistry(dir, newMemApprovals(), testLogger())
	reg.RegisterBuiltins(Builtins()...)
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	d, _ := reg.Get("shopping-list")
	if d.Source != domain.SourceBuiltin {
		t.Fatalf("builtin must win a name collision, got source %q", d.Source)
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	reg := NewRegistry(t.TempDir(), newMemApprovals(), testLogger())
	reg.RegisterBuiltins(Builtins()...)
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	all := reg.All()
	all[0].Name = "mutated"
	fresh, _ := reg.Get(Builtins()[0].Name)
	if fresh.Name == "mutated" {
		t.Fatal("All must return a copy, not the live snapshot")
	}
}
