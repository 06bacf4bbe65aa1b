package worker

import (
	"context"
	"os"
	"sync"

	"github.com/go-pkgz/pool"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mailmirror/core/domain"
	"mailmirror/core/port/out"
)

// Pool supervises one blocking Consume loop per durable queue (§4.6),
// grounded on adapter/in/worker/worker_pool.go's go-pkgz/pool usage —
// narrowed from that file's generic job-message worker group to a
// fixed three-member group, one per queue kind, since per-queue
// concurrency and retry/backoff are already the job queue adapter's
// responsibility (adapter/out/queue/consume.go).
type Pool struct {
	group        *pool.WorkerGroup[domain.JobType]
	consumerName string
	started      bool
	mu           sync.Mutex
}

type queueWorker struct {
	queue   out.JobQueue
	handler *Handler
	name    string
}

// Do implements pool.Worker: it runs Consume for the assigned queue
// until ctx is cancelled, at which point the pool is shutting down.
func (w *queueWorker) Do(ctx context.Context, queueType domain.JobType) error {
	return w.queue.Consume(ctx, queueType, w.name, w.handler.Handle)
}

// NewPool builds a 3-worker go-pkgz/pool group, one worker per queue in
// §4.6 (initial-sync, incremental-sync, attachment-upload).
func NewPool(queue out.JobQueue, handler *Handler, log zerolog.Logger) *Pool {
	hostname, _ := os.Hostname()
	consumerName := hostname + "-" + uuid.New().String()

	worker := &queueWorker{queue: queue, handler: handler, name: consumerName}
	group := pool.New[domain.JobType](3, worker).WithContinueOnError()

	return &Pool{group: group, consumerName: consumerName}
}

// Start submits the three queue kinds and begins consuming; it returns
// once the workers are running, not once they finish (they block on
// Consume until Stop cancels the pool's context).
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.group.Go(ctx); err != nil {
		return err
	}
	p.group.Submit(domain.JobInitialSync)
	p.group.Submit(domain.JobIncrementalSync)
	p.group.Submit(domain.JobAttachmentUpload)
	p.started = true
	return nil
}

// Stop closes the pool, waiting up to ctx's deadline for in-flight jobs
// to finish.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return nil
	}
	p.started = false
	return p.group.Close(ctx)
}
