package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goodtune/worktimer/internal/storage"
)

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	sessions := New().Sessions()

	if _, err := sessions.Load(ctx, "u1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	record := storage.SessionRecord{AttendanceID: "a1", UserID: "u1", CheckIn: time.Now(), Status: "online"}
	if err := sessions.Save(ctx, record); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := sessions.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.AttendanceID != "a1" {
		t.Errorf("Expected a1, got %s", loaded.AttendanceID)
	}

	open, _ := sessions.ListOpen(ctx)
	if len(open) != 1 {
		t.Errorf("Expected 1 open session, got %d", len(open))
	}

	_ = sessions.Delete(ctx, "u1")
	if _, err := sessions.Load(ctx, "u1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestHistoryStore(t *testing.T) {
	ctx := context.Background()
	history := New().History()

	_ = history.IncrementDaily(ctx, "2024-01-01", "u1", 10, 1)
	_ = history.IncrementDaily(ctx, "2024-01-01", "u1", 20, 2)
	_ = history.IncrementDaily(ctx, "2024-02-01", "u1", 5, 0)

	totals, err := history.GetDaily(ctx, "2024-01-01", "u1")
	if err != nil {
		t.Fatalf("GetDaily failed: %v", err)
	}
	if totals.OnlineSeconds != 30 || totals.OfflineSeconds != 3 || totals.Sessions != 2 {
		t.Errorf("Unexpected totals %+v", totals)
	}

	deleted, _ := history.DeleteDailyBefore(ctx, "2024-01-15")
	if deleted != 1 {
		t.Errorf("Expected 1 deleted, got %d", deleted)
	}
	list, _ := history.ListDaily(ctx, "2024-02-01")
	if len(list) != 1 {
		t.Errorf("Expected 1 remaining entry, got %d", len(list))
	}
}
