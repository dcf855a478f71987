// Package scheduler implements best-effort, in-memory scheduled deletion
// of messages. Only message ids and due times are retained, never content.
// Pending entries are lost on restart; that loss is accepted.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/whisperlabs/whisperbot/pkg/logger"
)

// DefaultSweepInterval is how often the run loop checks for due entries.
// Deletion resolution is "within one sweep interval", not exact-time.
const DefaultSweepInterval = 60 * time.Second

// Deleter is the outbound call the scheduler needs. Satisfied by
// *zulip.Client.
type Deleter interface {
	DeleteMessage(ctx context.Context, messageID int64) bool
}

// ScheduledDeletion is one pending timed action.
type ScheduledDeletion struct {
	MessageID int64
	DeleteAt  time.Time
}

// DeletionScheduler tracks pending deletions in a table keyed by message
// id: at most one entry per message, last schedule wins. Schedule is called
// from dispatch paths while Run sweeps concurrently; the table is the only
// shared state and the mutex is never held across the delete call itself.
type DeletionScheduler struct {
	deleter  Deleter
	interval time.Duration

	mu    sync.Mutex
	tasks map[int64]ScheduledDeletion

	now func() time.Time
}

type Option func(*DeletionScheduler)

// WithSweepInterval overrides the sweep cadence, mainly for tests.
func WithSweepInterval(d time.Duration) Option {
	return func(s *DeletionScheduler) { s.interval = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *DeletionScheduler) { s.now = now }
}

func New(deleter Deleter, opts ...Option) *DeletionScheduler {
	s := &DeletionScheduler{
		deleter:  deleter,
		interval: DefaultSweepInterval,
		tasks:    make(map[int64]ScheduledDeletion),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule records that messageID should be deleted after delay,
// overwriting any earlier entry for the same id. Non-blocking.
func (s *DeletionScheduler) Schedule(messageID int64, delay time.Duration) {
	deleteAt := s.now().UTC().Add(delay)
	logger.InfoCF("scheduler", "Scheduling deletion", map[string]any{
		"message_id": messageID,
		"delete_at":  deleteAt.Format(time.RFC3339),
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[messageID] = ScheduledDeletion{MessageID: messageID, DeleteAt: deleteAt}
}

// Pending returns the number of entries awaiting deletion.
func (s *DeletionScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Run is the sweep loop. It wakes every sweep interval, deletes due
// entries, and keeps going until ctx is cancelled. A fault during one
// sweep is logged and the loop continues on its next tick.
func (s *DeletionScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.InfoC("scheduler", "Scheduler stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep deletes every due entry once. The due set is snapshotted under the
// lock, delete calls run outside it so slow network I/O never blocks
// concurrent Schedule calls, and each entry is removed under the lock after
// its delete attempt whether or not it succeeded. A failed delete is
// dropped, not retried.
func (s *DeletionScheduler) sweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("scheduler", "Sweep panicked", map[string]any{"panic": r})
		}
	}()

	now := s.now().UTC()

	s.mu.Lock()
	due := make([]int64, 0, len(s.tasks))
	for id, task := range s.tasks {
		if !task.DeleteAt.After(now) {
			due = append(due, id)
		}
	}
	s.mu.Unlock()

	for _, id := range due {
		if ctx.Err() != nil {
			return
		}
		if s.deleter.DeleteMessage(ctx, id) {
			logger.InfoCF("scheduler", "Deleted message", map[string]any{"message_id": id})
		} else {
			logger.WarnCF("scheduler", "Failed to delete message, dropping entry",
				map[string]any{"message_id": id})
		}

		s.mu.Lock()
		delete(s.tasks, id)
		s.mu.Unlock()
	}
}
