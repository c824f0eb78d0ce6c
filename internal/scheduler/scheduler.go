// Package scheduler runs periodic maintenance: pruning every user's
// memories, expiring idle sessions and sweeping expired cache entries.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rcliao/brightmatter/internal/model"
	"github.com/rcliao/brightmatter/internal/pruning"
)

const (
	DefaultPruneSchedule   = "0 3 * * *"
	DefaultCleanupSchedule = "@every 10m"

	stopTimeout = 5 * time.Second
)

// Users lists the users that own memories.
type Users interface {
	Users(ctx context.Context) ([]int64, error)
}

// Pruner prunes one user's memories.
type Pruner interface {
	PruneUserMemories(ctx context.Context, userID int64) (model.PruningResult, error)
}

// SessionCleaner expires idle sessions.
type SessionCleaner interface {
	CleanupExpiredSessions() int
}

// Sweeper drops expired cache entries.
type Sweeper interface {
	Sweep() int
}

// PruneReport totals one pass over every user.
type PruneReport struct {
	Users      int           `json:"users"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Processed  int           `json:"processed"`
	Deleted    int           `json:"deleted"`
	Compressed int           `json:"compressed"`
	Archived   int           `json:"archived"`
	Flagged    int           `json:"flagged"`
	Duration   time.Duration `json:"duration"`
}

// Scheduler owns a cron runner with the maintenance jobs registered.
type Scheduler struct {
	cron     *cron.Cron
	users    Users
	pruner   Pruner
	sessions SessionCleaner
	sweeper  Sweeper
	logger   *slog.Logger

	pruneSpec   string
	cleanupSpec string

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPruneSchedule sets the cron expression for pruning.
func WithPruneSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.pruneSpec = spec
		}
	}
}

// WithCleanupSchedule sets the cron expression for session and cache cleanup.
func WithCleanupSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.cleanupSpec = spec
		}
	}
}

// WithSessions expires idle sessions on the cleanup schedule.
func WithSessions(c SessionCleaner) Option {
	return func(s *Scheduler) { s.sessions = c }
}

// WithSweeper sweeps expired cache entries on the cleanup schedule.
func WithSweeper(sw Sweeper) Option {
	return func(s *Scheduler) { s.sweeper = sw }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New registers the maintenance jobs. It fails if a schedule does not parse.
func New(users Users, pruner Pruner, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		cron:        cron.New(),
		users:       users,
		pruner:      pruner,
		logger:      slog.Default(),
		pruneSpec:   DefaultPruneSchedule,
		cleanupSpec: DefaultCleanupSchedule,
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("component", "scheduler")
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if _, err := s.cron.AddFunc(s.pruneSpec, s.runPrune); err != nil {
		return nil, fmt.Errorf("register prune job %q: %w", s.pruneSpec, err)
	}
	if _, err := s.cron.AddFunc(s.cleanupSpec, s.runCleanup); err != nil {
		return nil, fmt.Errorf("register cleanup job %q: %w", s.cleanupSpec, err)
	}
	return s, nil
}

// Start begins running jobs. Cancelling ctx stops the scheduler.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "prune", s.pruneSpec, "cleanup", s.cleanupSpec)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.ctx.Done():
		}
	}()
}

// Stop halts the scheduler and waits briefly for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(stopTimeout):
		s.logger.Warn("stop timeout waiting for running jobs")
	}
	s.logger.Info("scheduler stopped")
}

// Entries returns the next run time of each registered job.
func (s *Scheduler) Entries() []time.Time {
	entries := s.cron.Entries()
	out := make([]time.Time, len(entries))
	for i, e := range entries {
		out[i] = e.Next
	}
	return out
}

func (s *Scheduler) runPrune() {
	rep, err := s.PruneAll(s.ctx)
	if err != nil {
		s.logger.Error("prune pass failed", "err", err)
		return
	}
	s.logger.Info("prune pass complete",
		"users", rep.Users, "deleted", rep.Deleted, "compressed", rep.Compressed,
		"archived", rep.Archived, "flagged", rep.Flagged, "failed", rep.Failed, "duration", rep.Duration)
}

func (s *Scheduler) runCleanup() {
	sessions, swept := s.Cleanup()
	if sessions > 0 || swept > 0 {
		s.logger.Info("cleanup complete", "sessions", sessions, "cache_entries", swept)
	}
}

// PruneAll prunes every known user in turn. A user already being pruned is
// skipped; a failing user is logged and counted but does not stop the pass.
func (s *Scheduler) PruneAll(ctx context.Context) (PruneReport, error) {
	start := time.Now()
	var rep PruneReport

	users, err := s.users.Users(ctx)
	if err != nil {
		return rep, fmt.Errorf("list users: %w", err)
	}
	for _, id := range users {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Users++
		res, err := s.pruner.PruneUserMemories(ctx, id)
		switch {
		case errors.Is(err, pruning.ErrPruningInProgress):
			rep.Skipped++
			continue
		case err != nil:
			rep.Failed++
			s.logger.Warn("prune user failed", "user_id", id, "err", err)
			continue
		}
		if len(res.Errors) > 0 {
			s.logger.Warn("prune user had errors", "user_id", id, "errors", len(res.Errors))
		}
		rep.Processed += res.Processed
		rep.Deleted += res.Deleted
		rep.Compressed += res.Compressed
		rep.Archived += res.Archived
		rep.Flagged += res.Flagged
	}
	rep.Duration = time.Since(start)
	return rep, nil
}

// Cleanup expires idle sessions and sweeps the cache, returning how many of each were removed.
func (s *Scheduler) Cleanup() (sessions, swept int) {
	if s.sessions != nil {
		sessions = s.sessions.CleanupExpiredSessions()
	}
	if s.sweeper != nil {
		swept = s.sweeper.Sweep()
	}
	return sessions, swept
}
