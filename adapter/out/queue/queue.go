// Package queue implements out.JobQueue over Redis Streams, grounded on
// adapter/out/messaging/worker_stream_consumer.go's consumer-group +
// pending-message-reclaim shape, reworked from the teacher's fixed
// JobHandler/stream-name plumbing into the three typed queues and
// retry/backoff/retention policy of §4.6.
package queue

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"mailmirror/core/domain"
	"mailmirror/core/port/out"
)

// Limits bundles the per-queue tuning knobs of §4.6.
type Limits struct {
	Concurrency        int
	RateLimitPerMinute int // 0 disables rate limiting
}

// Config is the full set of queue-adapter tuning parameters.
type Config struct {
	MaxAttempts        int
	BackoffBase        time.Duration
	CompletedRetention time.Duration
	FailedRetention    time.Duration
	BlockTimeout       time.Duration
	PendingCheckEvery  time.Duration

	Limits map[domain.JobType]Limits
}

// Queue implements out.JobQueue.
type Queue struct {
	client *redis.Client
	group  string
	cfg    Config
	log    zerolog.Logger
}

func New(client *redis.Client, group string, cfg Config, log zerolog.Logger) *Queue {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = 5 * time.Second
	}
	if cfg.BlockTimeout == 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.PendingCheckEvery == 0 {
		cfg.PendingCheckEvery = 30 * time.Second
	}
	return &Queue{client: client, group: group, cfg: cfg, log: log}
}

var _ out.JobQueue = (*Queue)(nil)

// wireJob is the on-the-wire envelope stored in the "data" stream field.
type wireJob struct {
	ID           string         `json:"id"`
	Type         domain.JobType `json:"type"`
	Payload      []byte         `json:"payload"`
	AttemptCount int            `json:"attemptCount"`
	CreatedAt    time.Time      `json:"createdAt"`
}

func streamName(queue domain.JobType) string {
	return "mailmirror:jobs:" + string(queue)
}

func deadLetterStreamName(queue domain.JobType) string {
	return "mailmirror:jobs:dead:" + string(queue)
}

// Enqueue implements out.JobQueue: XADD onto the queue's stream, lazily
// creating its consumer group.
func (q *Queue) Enqueue(ctx context.Context, job *domain.Job) error {
	stream := streamName(job.Queue)
	if err := q.ensureGroup(ctx, stream); err != nil {
		return err
	}

	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	wire := wireJob{
		ID:           job.ID,
		Type:         job.Type,
		Payload:      job.Payload,
		AttemptCount: job.AttemptCount,
		CreatedAt:    job.CreatedAt,
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return err
	}

	_, err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"data": data},
	}).Result()
	return err
}

func (q *Queue) ensureGroup(ctx context.Context, stream string) error {
	err := q.client.XGroupCreateMkStream(ctx, stream, q.group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return err
	}
	return nil
}

func (q *Queue) limitsFor(queue domain.JobType) Limits {
	if l, ok := q.cfg.Limits[queue]; ok {
		return l
	}
	return Limits{Concurrency: 2}
}

// backoffFor computes the exponential delay before attempt number
// attempt (1-indexed), starting at cfg.BackoffBase (§4.6 retry policy).
func (q *Queue) backoffFor(attempt int) time.Duration {
	d := q.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}
