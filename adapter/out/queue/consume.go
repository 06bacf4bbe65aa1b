package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"mailmirror/core/domain"
	"mailmirror/pkg/apperr"
)

// Consume implements out.JobQueue: reads from the queue's consumer
// group, bounds concurrent handling to the queue's configured worker
// slots, rate-limits dequeues, and retries failures with exponential
// backoff up to cfg.MaxAttempts before dead-lettering (§4.6). A
// CredentialRejected failure is dead-lettered at once, without retry.
func (q *Queue) Consume(ctx context.Context, queueType domain.JobType, consumerName string, handle func(ctx context.Context, job *domain.Job) error) error {
	stream := streamName(queueType)
	if err := q.ensureGroup(ctx, stream); err != nil {
		return err
	}

	limits := q.limitsFor(queueType)
	limiter := newRateLimiter(q.client, string(queueType), limits.RateLimitPerMinute)
	sem := make(chan struct{}, maxInt(limits.Concurrency, 1))

	go q.reclaimPendingLoop(ctx, queueType, stream, consumerName, handle, sem, limiter)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumerName,
			Streams:  []string{stream, ">"},
			Count:    int64(cap(sem)),
			Block:    q.cfg.BlockTimeout,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			q.log.Warn().Err(err).Str("stream", stream).Msg("xreadgroup failed")
			time.Sleep(time.Second)
			continue
		}

		for _, s := range result {
			for _, msg := range s.Messages {
				if limiter != nil {
					if ok, err := limiter.allow(ctx); err == nil && !ok {
						// Over the per-minute budget: leave the message
						// pending; the reclaim loop claims it once it has
						// been idle long enough (reads with ">" only
						// return new entries).
						continue
					}
				}

				sem <- struct{}{}
				go func(m redis.XMessage) {
					defer func() { <-sem }()
					q.process(ctx, queueType, stream, consumerName, m, handle)
				}(msg)
			}
		}
	}
}

// process decodes one message, runs handle, and acks, retries, or
// dead-letters according to the outcome.
func (q *Queue) process(ctx context.Context, queueType domain.JobType, stream, consumerName string, msg redis.XMessage, handle func(ctx context.Context, job *domain.Job) error) {
	job, err := decodeJob(queueType, msg)
	if err != nil {
		q.log.Error().Err(err).Str("id", msg.ID).Msg("malformed job envelope, dead-lettering")
		q.deadLetter(ctx, queueType, stream, msg, job)
		q.client.XAck(ctx, stream, q.group, msg.ID)
		return
	}

	handleErr := handle(ctx, job)
	if handleErr == nil {
		q.client.XAck(ctx, stream, q.group, msg.ID)
		q.applyCompletedRetention(ctx, stream)
		return
	}

	job.AttemptCount++
	if job.AttemptCount >= q.cfg.MaxAttempts || apperr.IsCredentialRejected(handleErr) {
		q.log.Warn().Str("id", job.ID).Int("attempts", job.AttemptCount).Err(handleErr).Msg("job exhausted retries, dead-lettering")
		q.deadLetter(ctx, queueType, stream, msg, job)
		q.client.XAck(ctx, stream, q.group, msg.ID)
		q.applyFailedRetention(ctx, deadLetterStreamName(queueType))
		return
	}

	delay := q.backoffFor(job.AttemptCount)
	q.log.Info().Str("id", job.ID).Int("attempt", job.AttemptCount).Dur("backoff", delay).Err(handleErr).Msg("job failed, retrying")
	q.client.XAck(ctx, stream, q.group, msg.ID)
	go q.requeueAfter(ctx, job, delay)
}

func (q *Queue) requeueAfter(ctx context.Context, job *domain.Job, delay time.Duration) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}
	if err := q.Enqueue(ctx, job); err != nil {
		q.log.Error().Err(err).Str("id", job.ID).Msg("failed to requeue after backoff")
	}
}

func decodeJob(queueType domain.JobType, msg redis.XMessage) (*domain.Job, error) {
	raw, ok := msg.Values["data"].(string)
	if !ok {
		return nil, errMalformedMessage
	}
	var wire wireJob
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, err
	}
	return &domain.Job{
		ID:           wire.ID,
		Queue:        queueType,
		Type:         wire.Type,
		Payload:      wire.Payload,
		AttemptCount: wire.AttemptCount,
		State:        domain.JobRunning,
		CreatedAt:    wire.CreatedAt,
	}, nil
}

// deadLetter copies a message (or, if it could not even be decoded, its
// raw values) onto the queue's dead-letter stream for operator inspection.
func (q *Queue) deadLetter(ctx context.Context, queueType domain.JobType, stream string, msg redis.XMessage, job *domain.Job) {
	values := map[string]any{
		"originalStream": stream,
		"originalId":     msg.ID,
		"deadAt":         time.Now().UTC().Format(time.RFC3339),
	}
	if job != nil {
		values["id"] = job.ID
		values["type"] = string(job.Type)
		values["attemptCount"] = job.AttemptCount
	}
	if raw, ok := msg.Values["data"]; ok {
		values["data"] = raw
	}
	q.client.XAdd(ctx, &redis.XAddArgs{Stream: deadLetterStreamName(queueType), Values: values})
}

// applyCompletedRetention bounds the main stream to the last 100 entries
// or cfg.CompletedRetention, whichever is stricter (§4.6 retention).
func (q *Queue) applyCompletedRetention(ctx context.Context, stream string) {
	q.client.XTrimMaxLenApprox(ctx, stream, 100, 10)
	if q.cfg.CompletedRetention > 0 {
		q.client.XTrimMinID(ctx, stream, minIDFor(q.cfg.CompletedRetention))
	}
}

// applyFailedRetention trims the dead-letter stream to cfg.FailedRetention.
func (q *Queue) applyFailedRetention(ctx context.Context, stream string) {
	if q.cfg.FailedRetention > 0 {
		q.client.XTrimMinID(ctx, stream, minIDFor(q.cfg.FailedRetention))
	}
}

// minIDFor renders a Redis stream ID cutoff for "now - window": stream
// IDs are millisecond timestamps, so XTRIM MINID with this value drops
// every entry older than window.
func minIDFor(window time.Duration) string {
	cutoff := time.Now().Add(-window).UnixMilli()
	if cutoff < 0 {
		cutoff = 0
	}
	return strconv.FormatInt(cutoff, 10) + "-0"
}

var errMalformedMessage = errMalformed{}

type errMalformed struct{}

func (errMalformed) Error() string { return "malformed stream message: missing data field" }

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
