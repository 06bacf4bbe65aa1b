package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"mailmirror/core/domain"
)

// reclaimPendingLoop periodically claims messages that have sat in the
// consumer group's PEL longer than two backoff intervals without being
// acked — a crashed worker's in-flight jobs — and reprocesses them.
// Grounded on adapter/out/messaging/worker_stream_consumer.go's
// claimAndProcessPending.
func (q *Queue) reclaimPendingLoop(ctx context.Context, queueType domain.JobType, stream, consumerName string, handle func(ctx context.Context, job *domain.Job) error, sem chan struct{}, limiter *rateLimiter) {
	ticker := time.NewTicker(q.cfg.PendingCheckEvery)
	defer ticker.Stop()

	minIdle := q.cfg.BackoffBase * 2

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: stream,
			Group:  q.group,
			Start:  "-",
			End:    "+",
			Count:  100,
		}).Result()
		if err != nil {
			if err != redis.Nil {
				q.log.Warn().Err(err).Str("stream", stream).Msg("xpending failed")
			}
			continue
		}

		for _, p := range pending {
			if p.Idle < minIdle {
				continue
			}

			claimed, err := q.client.XClaim(ctx, &redis.XClaimArgs{
				Stream:   stream,
				Group:    q.group,
				Consumer: consumerName,
				MinIdle:  minIdle,
				Messages: []string{p.ID},
			}).Result()
			if err != nil {
				q.log.Warn().Err(err).Str("id", p.ID).Msg("xclaim failed")
				continue
			}

			for _, msg := range claimed {
				sem <- struct{}{}
				go func(m redis.XMessage) {
					defer func() { <-sem }()
					q.process(ctx, queueType, stream, consumerName, m, handle)
				}(msg)
			}
		}
	}
}
