package state

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestTracker(t *testing.T) (*Tracker, string) {
	t.Helper()
	stateFile := filepath.Join(t.TempDir(), "state.json")
	tracker, err := NewTracker(stateFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tracker, stateFile
}

func TestNewTrackerFresh(t *testing.T) {
	tracker, _ := newTestTracker(t)

	if tracker.IsDelivered("personal", "uid1") {
		t.Error("expected uid1 to not be delivered")
	}
}

func TestMarkDeliveredAndPersist(t *testing.T) {
	tracker, stateFile := newTestTracker(t)

	if err := tracker.MarkDelivered("personal", "uid1"); err != nil {
		t.Fatalf("MarkDelivered failed: %v", err)
	}

	if !tracker.IsDelivered("personal", "uid1") {
		t.Error("expected uid1 to be delivered")
	}
	if tracker.IsDelivered("personal", "uid2") {
		t.Error("expected uid2 to not be delivered")
	}

	// Verify persistence: create a new tracker from the same file.
	tracker2, err := NewTracker(stateFile)
	if err != nil {
		t.Fatalf("unexpected error loading: %v", err)
	}

	if !tracker2.IsDelivered("personal", "uid1") {
		t.Error("expected uid1 persisted across reloads")
	}
}

func TestPrune(t *testing.T) {
	tracker, _ := newTestTracker(t)

	for _, uid := range []string{"uid1", "uid2", "uid3"} {
		if err := tracker.MarkDelivered("personal", uid); err != nil {
			t.Fatal(err)
		}
	}

	// Only uid2 is still on the server.
	if err := tracker.Prune("personal", map[string]bool{"uid2": true}); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}

	if tracker.IsDelivered("personal", "uid1") {
		t.Error("expected uid1 pruned")
	}
	if !tracker.IsDelivered("personal", "uid2") {
		t.Error("expected uid2 retained")
	}
	if tracker.IsDelivered("personal", "uid3") {
		t.Error("expected uid3 pruned")
	}
}

func TestPruneUnknownAccount(t *testing.T) {
	tracker, _ := newTestTracker(t)

	if err := tracker.Prune("nobody", map[string]bool{"uid": true}); err != nil {
		t.Fatalf("Prune on unknown account failed: %v", err)
	}
}

func TestStats(t *testing.T) {
	tracker, _ := newTestTracker(t)

	_ = tracker.MarkDelivered("a", "uid1")
	_ = tracker.MarkDelivered("a", "uid2")
	_ = tracker.MarkDelivered("b", "uid1")

	stats := tracker.Stats()
	if stats["a"] != 2 {
		t.Errorf("expected 2 UIDs for a, got %d", stats["a"])
	}
	if stats["b"] != 1 {
		t.Errorf("expected 1 UID for b, got %d", stats["b"])
	}
}

func TestCorruptedStateFile(t *testing.T) {
	stateFile := filepath.Join(t.TempDir(), "state.json")

	if err := os.WriteFile(stateFile, []byte("not json{{{"), 0600); err != nil {
		t.Fatal(err)
	}

	tracker, err := NewTracker(stateFile)
	if err != nil {
		t.Fatalf("should handle corrupted state gracefully, got: %v", err)
	}

	// Should start fresh.
	if tracker.IsDelivered("personal", "uid1") {
		t.Error("expected fresh state after corruption")
	}
}

func TestAccountsIndependent(t *testing.T) {
	tracker, _ := newTestTracker(t)

	_ = tracker.MarkDelivered("a", "uid1")
	_ = tracker.MarkDelivered("b", "uid1")

	if !tracker.IsDelivered("a", "uid1") {
		t.Error("expected uid1 delivered for a")
	}
	if !tracker.IsDelivered("b", "uid1") {
		t.Error("expected uid1 delivered for b")
	}
	if tracker.IsDelivered("a", "uid2") {
		t.Error("expected uid2 not delivered for a")
	}
}
