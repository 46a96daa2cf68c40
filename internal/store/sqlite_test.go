package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"switchboard/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), testLogger())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// --- Capability approvals ---

func TestApprovals_Roundtrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	hash, err := s.ApprovedHash(ctx, "pizza")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if hash != "" {
		t.Fatalf("expected empty hash for unknown capability, got %q", hash)
	}

	if err := s.RecordApproval(ctx, "pizza", "abc123"); err != nil {
		t.Fatalf("record: %v", err)
	}
	hash, _ = s.ApprovedHash(ctx, "pizza")
	if hash != "abc123" {
		t.Fatalf("expected abc123, got %q", hash)
	}

	// Upsert replaces the previous approval.
	if err := s.RecordApproval(ctx, "pizza", "def456"); err != nil {
		t.Fatalf("re-record: %v", err)
	}
	hash, _ = s.ApprovedHash(ctx, "pizza")
	if hash != "def456" {
		t.Fatalf("expected def456 after upsert, got %q", hash)
	}
}

// --- Allowlist ---

func TestAllowlist_GrantRevokeCycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	granted, err := s.Granted(ctx, "u1", domain.KindAct)
	if err != nil {
		t.Fatalf("granted: %v", err)
	}
	if granted {
		t.Fatal("no grant expected initially")
	}

	if err := s.Grant(ctx, "u1", domain.KindAct); err != nil {
		t.Fatalf("grant: %v", err)
	}
	granted, _ = s.Granted(ctx, "u1", domain.KindAct)
	if !granted {
		t.Fatal("grant must be visible immediately")
	}

	if err := s.Revoke(ctx, "u1", domain.KindAct); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	granted, _ = s.Granted(ctx, "u1", domain.KindAct)
	if granted {
		t.Fatal("revocation must take effect on the next check")
	}

	// Re-granting after revocation works.
	if err := s.Grant(ctx, "u1", domain.KindAct); err != nil {
		t.Fatalf("re-grant: %v", err)
	}
	granted, _ = s.Granted(ctx, "u1", domain.KindAct)
	if !granted {
		t.Fatal("re-grant must reset the revocation")
	}
}

func TestAllowlist_GrantsAreScoped(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Grant(ctx, "u1", domain.KindAct); err != nil {
		t.Fatalf("grant: %v", err)
	}

	if granted, _ := s.Granted(ctx, "u2", domain.KindAct); granted {
		t.Fatal("grant must not leak across users")
	}
	if granted, _ := s.Granted(ctx, "u1", domain.KindRead); granted {
		t.Fatal("grant must not leak across operation kinds")
	}
}

func TestAllowlist_Entries(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_ = s.Grant(ctx, "u1", domain.KindAct)
	_ = s.Revoke(ctx, "u1", domain.KindAct)

	entries, err := s.Entries(ctx, "u1")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].RevokedAt == nil {
		t.Fatal("revoked entry must carry its revocation time")
	}
}

// --- Audit log ---

func TestAudit_RecordAndQuery(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	recs := []domain.AuditRecord{
		{RequestID: "r1", UserID: "u1", Capability: "c1", Kind: domain.KindRead,
			Stage: domain.StageTrust, Operation: "x.get", Outcome: domain.OutcomeSuccess},
		{RequestID: "r1", UserID: "u1", Capability: "c1", Kind: domain.KindRead,
			Stage: domain.StageExecution, Operation: "x.get",
			Params: map[string]string{"q": "hello"}, Outcome: domain.OutcomeSuccess},
		{RequestID: "r2", UserID: "u2", Stage: domain.StageSelection, Outcome: domain.OutcomeNoWinner},
	}
	for _, rec := range recs {
		if err := s.Record(ctx, rec); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := s.Query(ctx, "u1", time.Time{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records for u1, got %d", len(got))
	}
	if got[1].Params["q"] != "hello" {
		t.Fatalf("params must round-trip, got %+v", got[1].Params)
	}

	got, _ = s.Query(ctx, "u2", time.Time{})
	if len(got) != 1 || got[0].Outcome != domain.OutcomeNoWinner {
		t.Fatalf("expected u2's NO_WINNER record, got %+v", got)
	}
}

func TestAudit_SinceFilters(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	old := domain.AuditRecord{UserID: "u1", Stage: domain.StageSelection,
		Outcome: domain.OutcomeNoWinner, CreatedAt: time.Now().Add(-time.Hour)}
	recent := domain.AuditRecord{UserID: "u1", Stage: domain.StageSelection,
		Outcome: domain.OutcomeNoWinner, CreatedAt: time.Now()}
	_ = s.Record(ctx, old)
	_ = s.Record(ctx, recent)

	got, err := s.Query(ctx, "u1", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("since filter should keep only the recent record, got %d", len(got))
	}
}

func TestAudit_DuplicatesAccepted(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rec := domain.AuditRecord{RequestID: "r1", UserID: "u1",
		Stage: domain.StageTrust, Outcome: domain.OutcomeDenied}
	if err := s.Record(ctx, rec); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if err := s.Record(ctx, rec); err != nil {
		t.Fatalf("duplicate record must be accepted: %v", err)
	}
}

// --- List data ---

func TestListItems_AddRemoveGet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_ = s.AddListItem(ctx, "u1", "shopping", "milk")
	_ = s.AddListItem(ctx, "u1", "shopping", "eggs")
	_ = s.AddListItem(ctx, "u2", "shopping", "bread")

	items, err := s.GetList(ctx, "u1", "shopping")
	if err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(items) != 2 || items[0] != "milk" || items[1] != "eggs" {
		t.Fatalf("expected [milk eggs] in insertion order, got %v", items)
	}

	removed, err := s.RemoveListItem(ctx, "u1", "shopping", "MILK")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed != 1 {
		t.Fatalf("case-insensitive remove should hit 1 row, got %d", removed)
	}

	items, _ = s.GetList(ctx, "u1", "shopping")
	if len(items) != 1 || items[0] != "eggs" {
		t.Fatalf("expected [eggs] after removal, got %v", items)
	}

	removed, _ = s.RemoveListItem(ctx, "u1", "shopping", "butter")
	if removed != 0 {
		t.Fatalf("removing an absent item should hit 0 rows, got %d", removed)
	}
}

// --- Reminders ---

func TestReminders_AddAndList(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	due := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	if err := s.AddReminder(ctx, "u1", "water the plants", &due); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddReminder(ctx, "u1", "call mom", nil); err != nil {
		t.Fatalf("add without due: %v", err)
	}

	reminders, err := s.ListReminders(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(reminders) != 2 {
		t.Fatalf("expected 2 reminders, got %d", len(reminders))
	}
	if reminders[0].DueAt == nil {
		t.Fatal("first reminder should carry its due time")
	}
	if reminders[1].DueAt != nil {
		t.Fatal("second reminder has no due time")
	}
}
