// Package scheduler implements the periodic tick described in §4.8:
// every active account is enqueued for an incremental sync, oldest
// lastSyncedAt first. Grounded on adapter/in/worker/worker_background_sync.go's
// ticker-driven periodic loop, reworked from checkpoint-continuation
// into the spec's account-enumeration tick.
package scheduler

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"mailmirror/core/domain"
	"mailmirror/core/port/in"
	"mailmirror/core/port/out"
	"mailmirror/pkg/logger"
)

// Scheduler implements in.SchedulerService.
type Scheduler struct {
	accounts out.AccountRepository
	queue    out.JobQueue
}

// New builds a Scheduler. Retry policy (max attempts, backoff base) is
// the queue's concern, not the scheduler's — it lives in
// adapter/out/queue's Config, applied uniformly to every job kind.
func New(accounts out.AccountRepository, queue out.JobQueue) *Scheduler {
	return &Scheduler{accounts: accounts, queue: queue}
}

var _ in.SchedulerService = (*Scheduler)(nil)

// Tick enumerates every active account (at least one synced folder),
// ordered oldest lastSyncedAt first, and enqueues one incremental-sync
// job per account carrying its recorded syncedFolders. Accounts with no
// synced folders yet are skipped — they await their initial sync.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	accounts, err := s.accounts.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, account := range accounts {
		if len(account.SyncedFolders) == 0 {
			continue
		}

		payload := domain.IncrementalSyncPayload{
			AccountID: account.ID,
			Email:     account.Email,
			Folders:   account.SyncedFolders,
		}
		data, err := json.Marshal(payload)
		if err != nil {
			logger.Error("scheduler: marshal payload for %s: %v", account.ID, err)
			continue
		}

		job := &domain.Job{
			ID:      uuid.New().String(),
			Queue:   domain.JobIncrementalSync,
			Type:    domain.JobIncrementalSync,
			Payload: data,
			State:   domain.JobQueued,
		}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			logger.Error("scheduler: enqueue incremental sync for %s: %v", account.ID, err)
			continue
		}
		enqueued++
	}

	return enqueued, nil
}

// Run starts a ticker at the given interval and calls Tick on every
// firing until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Tick(ctx)
			if err != nil {
				logger.Error("scheduler: tick failed: %v", err)
				continue
			}
			logger.Info("scheduler: enqueued %d incremental-sync jobs", n)
		}
	}
}
