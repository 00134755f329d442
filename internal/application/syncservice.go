package application

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Syncer brings one remote source of comment threads up to date and reports
// the time of its newest activity.
type Syncer interface {
	Sync(ctx context.Context) (time.Time, error)
}

// refreshRequest represents a manual refresh trigger. An empty name refreshes
// every syncer.
type refreshRequest struct {
	name string
	done chan error
}

// SyncService runs registered syncers on an adaptive schedule: sources with
// recent activity are synced more often than quiet ones. Manual refreshes
// bypass the schedule.
type SyncService struct {
	tick      time.Duration
	refreshCh chan refreshRequest

	mu        sync.RWMutex
	syncers   map[string]Syncer
	schedules map[string]*syncSchedule
}

// NewSyncService creates a SyncService that checks for due syncers every tick.
func NewSyncService(tick time.Duration) *SyncService {
	return &SyncService{
		tick:      tick,
		refreshCh: make(chan refreshRequest),
		syncers:   make(map[string]Syncer),
		schedules: make(map[string]*syncSchedule),
	}
}

// Add registers syncer under name. A syncer added while the service runs is
// synced on the next tick.
func (s *SyncService) Add(name string, syncer Syncer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncers[name] = syncer
	s.schedules[name] = &syncSchedule{tier: TierStale}
}

// Start syncs everything once, then syncs whatever is due on every tick and
// serves manual refreshes. Start blocks until the context is canceled.
func (s *SyncService) Start(ctx context.Context) {
	s.syncDue(ctx, true)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync service stopped")
			return
		case <-ticker.C:
			s.syncDue(ctx, false)
		case req := <-s.refreshCh:
			req.done <- s.handleRefresh(ctx, req.name)
		}
	}
}

// Refresh triggers a sync of the named syncer, or of all syncers when name is
// empty, bypassing the schedule. It blocks until the sync completes or the
// context is canceled.
func (s *SyncService) Refresh(ctx context.Context, name string) error {
	done := make(chan error, 1)
	req := refreshRequest{name: name, done: done}

	select {
	case s.refreshCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Schedules returns the current schedule of every syncer, ordered by name.
func (s *SyncService) Schedules() []ScheduleInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ScheduleInfo, 0, len(s.schedules))
	for name, sched := range s.schedules {
		out = append(out, ScheduleInfo{
			Name:       name,
			Tier:       sched.tier.String(),
			NextSyncAt: sched.nextSyncAt,
			LastSynced: sched.lastSynced,
			LastError:  sched.lastError,
		})
	}
	slices.SortFunc(out, func(a, b ScheduleInfo) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

func (s *SyncService) syncDue(ctx context.Context, all bool) {
	start := time.Now()

	s.mu.RLock()
	var due []string
	for name, sched := range s.schedules {
		if all || !start.Before(sched.nextSyncAt) {
			due = append(due, name)
		}
	}
	s.mu.RUnlock()
	slices.Sort(due)

	var failed int
	for _, name := range due {
		if ctx.Err() != nil {
			return
		}
		if err := s.syncOne(ctx, name); err != nil {
			slog.Error("sync failed", "syncer", name, "error", err)
			failed++
		}
	}

	if len(due) > 0 {
		slog.Info("sync cycle complete",
			"synced", len(due),
			"errors", failed,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	}
}

func (s *SyncService) syncOne(ctx context.Context, name string) error {
	s.mu.RLock()
	syncer, ok := s.syncers[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("refresh %q: %w", name, ErrSyncerNotFound)
	}

	lastActivity, err := syncer.Sync(ctx)

	s.mu.Lock()
	sched := s.schedules[name]
	sched.advance(time.Now(), lastActivity, err)
	tier := sched.tier
	next := sched.nextSyncAt
	s.mu.Unlock()

	result := "ok"
	if err != nil {
		result = "error"
	}
	syncRunsTotal.WithLabelValues(result).Inc()

	slog.Debug("syncer ran", "syncer", name, "tier", tier.String(), "next_sync_at", next, "error", err)
	return err
}

// handleRefresh dispatches a manual refresh request.
func (s *SyncService) handleRefresh(ctx context.Context, name string) error {
	if name != "" {
		return s.syncOne(ctx, name)
	}

	s.mu.RLock()
	names := make([]string, 0, len(s.syncers))
	for n := range s.syncers {
		names = append(names, n)
	}
	s.mu.RUnlock()
	slices.Sort(names)

	var firstErr error
	for _, n := range names {
		if err := s.syncOne(ctx, n); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
