package roster

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/worktimer/internal/api"
	"github.com/rs/zerolog"
)

type fakeTeam struct {
	mu      sync.Mutex
	members []api.TeamMember
	err     error
	calls   int
}

func (f *fakeTeam) TeamStatus(ctx context.Context) ([]api.TeamMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.members, f.err
}

func TestPoll(t *testing.T) {
	source := &fakeTeam{members: []api.TeamMember{
		{UserID: "2", Name: "Bea", IsOnline: true},
		{UserID: "1", Name: "Ana", IsOnline: false},
		{UserID: "3", Name: "Cal", IsOnline: true},
	}}
	r, err := New(source, Config{CacheSize: 10}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := r.Poll(context.Background()); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}

	list := r.List()
	if len(list) != 3 || list[0].Name != "Ana" || list[2].Name != "Cal" {
		t.Errorf("Expected members sorted by name, got %+v", list)
	}
	if got := r.OnlineCount(); got != 2 {
		t.Errorf("Expected 2 online, got %d", got)
	}
	if m, ok := r.Get("2"); !ok || !m.IsOnline {
		t.Errorf("Expected Bea online, got %+v (found=%v)", m, ok)
	}
	if r.LastRefresh().IsZero() {
		t.Error("Expected last refresh to be set")
	}
}

func TestPoll_FailureKeepsEntries(t *testing.T) {
	source := &fakeTeam{members: []api.TeamMember{{UserID: "1", Name: "Ana", IsOnline: true}}}
	r, _ := New(source, Config{}, zerolog.Nop())
	_ = r.Poll(context.Background())

	source.mu.Lock()
	source.err = errors.New("timeout")
	source.mu.Unlock()

	if err := r.Poll(context.Background()); err == nil {
		t.Fatal("Expected error")
	}
	if _, ok := r.Get("1"); !ok {
		t.Error("Expected cached entry to survive a failed poll")
	}
}

func TestCacheBounded(t *testing.T) {
	source := &fakeTeam{members: []api.TeamMember{
		{UserID: "1", Name: "Ana"},
		{UserID: "2", Name: "Bea"},
		{UserID: "3", Name: "Cal"},
	}}
	r, _ := New(source, Config{CacheSize: 2}, zerolog.Nop())
	_ = r.Poll(context.Background())

	if got := len(r.List()); got != 2 {
		t.Errorf("Expected cache bounded to 2 entries, got %d", got)
	}
	if _, ok := r.Get("1"); ok {
		t.Error("Expected the oldest entry to be evicted")
	}
}

func TestStartStop(t *testing.T) {
	source := &fakeTeam{}
	r, _ := New(source, Config{PollInterval: time.Hour}, zerolog.Nop())

	r.Start()
	r.Stop()
	r.Stop()

	source.mu.Lock()
	defer source.mu.Unlock()
	if source.calls != 1 {
		t.Errorf("Expected one immediate poll, got %d", source.calls)
	}
}
