// Package roster keeps a bounded, periodically refreshed cache of every team
// member's online status for managerial views.
package roster

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goodtune/worktimer/internal/api"
	"github.com/goodtune/worktimer/internal/metrics"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// TeamSource lists all users' online status.
type TeamSource interface {
	TeamStatus(ctx context.Context) ([]api.TeamMember, error)
}

// Config holds roster settings.
type Config struct {
	PollInterval   time.Duration
	RequestTimeout time.Duration
	CacheSize      int
}

// Roster polls the backend and caches the latest status per user.
type Roster struct {
	source TeamSource
	cfg    Config
	cache  *lru.Cache[string, api.TeamMember]
	logger zerolog.Logger

	mu          sync.RWMutex
	lastRefresh time.Time

	stopChan chan struct{}
	done     chan struct{}
}

// New creates a roster.
func New(source TeamSource, cfg Config, logger zerolog.Logger) (*Roster, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = api.DefaultTimeout
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 512
	}

	cache, err := lru.New[string, api.TeamMember](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create roster cache: %w", err)
	}

	return &Roster{
		source: source,
		cfg:    cfg,
		cache:  cache,
		logger: logger.With().Str("component", "roster").Logger(),
	}, nil
}

// Start begins polling. The first poll runs immediately.
func (r *Roster) Start() {
	r.stopChan = make(chan struct{})
	r.done = make(chan struct{})
	go r.run()
	r.logger.Info().Dur("poll_interval", r.cfg.PollInterval).Msg("Roster poll started")
}

// Stop stops polling and waits for an in-flight poll to finish.
func (r *Roster) Stop() {
	if r.stopChan == nil {
		return
	}
	close(r.stopChan)
	<-r.done
	r.stopChan = nil
	r.logger.Info().Msg("Roster poll stopped")
}

func (r *Roster) run() {
	defer close(r.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-r.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	_ = r.Poll(ctx)
	for {
		select {
		case <-ticker.C:
			_ = r.Poll(ctx)
		case <-r.stopChan:
			return
		}
	}
}

// Poll refreshes the cache once. On failure the previous entries are kept.
func (r *Roster) Poll(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	members, err := r.source.TeamStatus(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to refresh team status, keeping last values")
		return fmt.Errorf("failed to refresh team status: %w", err)
	}

	for _, m := range members {
		r.cache.Add(string(m.UserID), m)
	}

	r.mu.Lock()
	r.lastRefresh = time.Now()
	r.mu.Unlock()

	online := r.OnlineCount()
	metrics.RosterUsersOnline.Set(float64(online))
	r.logger.Debug().Int("members", len(members)).Int("online", online).Msg("Team status refreshed")
	return nil
}

// Get returns the cached status of one user.
func (r *Roster) Get(userID string) (api.TeamMember, bool) {
	return r.cache.Peek(userID)
}

// List returns all cached members ordered by name.
func (r *Roster) List() []api.TeamMember {
	members := r.cache.Values()
	sort.Slice(members, func(i, j int) bool {
		if members[i].Name != members[j].Name {
			return members[i].Name < members[j].Name
		}
		return members[i].UserID < members[j].UserID
	})
	return members
}

// OnlineCount returns how many cached members are online.
func (r *Roster) OnlineCount() int {
	var n int
	for _, m := range r.cache.Values() {
		if m.IsOnline {
			n++
		}
	}
	return n
}

// LastRefresh returns when the cache was last refreshed successfully.
func (r *Roster) LastRefresh() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRefresh
}
