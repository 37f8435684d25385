package history

import (
	"context"
	"testing"
	"time"

	"github.com/goodtune/worktimer/internal/storage/memory"
	"github.com/rs/zerolog"
)

func TestNextRun(t *testing.T) {
	rs, err := NewRetentionScheduler(memory.New().History(), 30, "03:00", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRetentionScheduler failed: %v", err)
	}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "before run time",
			now:  time.Date(2024, 3, 4, 1, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 4, 3, 0, 0, 0, time.UTC),
		},
		{
			name: "after run time",
			now:  time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 5, 3, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs.now = func() time.Time { return tt.now }
			if got := rs.nextRun(); !got.Equal(tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	history := memory.New().History()
	_ = history.IncrementDaily(ctx, "2024-01-01", "u1", 100, 0)
	_ = history.IncrementDaily(ctx, "2024-01-01", "u2", 100, 0)
	_ = history.IncrementDaily(ctx, "2024-03-01", "u1", 100, 0)

	rs, err := NewRetentionScheduler(history, 30, "03:00", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRetentionScheduler failed: %v", err)
	}
	rs.now = func() time.Time { return time.Date(2024, 3, 4, 3, 0, 0, 0, time.UTC) }

	deleted, err := rs.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 entries deleted, got %d", deleted)
	}
	if _, err := history.GetDaily(ctx, "2024-03-01", "u1"); err != nil {
		t.Errorf("Expected recent entry kept, got %v", err)
	}
}

func TestNewRetentionScheduler_InvalidTime(t *testing.T) {
	if _, err := NewRetentionScheduler(memory.New().History(), 30, "25:99", zerolog.Nop()); err == nil {
		t.Error("Expected error for invalid run time")
	}
}
