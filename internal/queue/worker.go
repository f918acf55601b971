package queue

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Result is what a job Handler returns on success. Blocked marks a
// terminal outcome the handler has already recorded (the Compliance
// Gate said BLOCK) — the job is finalized, not retried, and this is
// distinct from the handler returning an error, which does retry.
// "Blocked at dispatch is success, not failure."
type Result struct {
	Blocked bool
	Reasons []string
}

// Handler processes one job's payload. Returning an error retries the
// job (up to attemptsMax with exponential backoff); returning a Result
// finalizes it, whether or not Blocked is set.
type Handler func(ctx context.Context, payload json.RawMessage) (Result, error)

// WorkerConfig controls one kind's pool.
type WorkerConfig struct {
	Kind          string
	Concurrency   int
	AttemptsMax   int
	BackoffBaseMs int
}

// RunWorkers starts cfg.Concurrency goroutines BLPOPing from kind's ready
// list and dispatching to handler, until ctx is cancelled.
func (q *Queue) RunWorkers(ctx context.Context, logger *zap.Logger, cfg WorkerConfig, handler Handler) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.AttemptsMax <= 0 {
		cfg.AttemptsMax = 3
	}
	if cfg.BackoffBaseMs <= 0 {
		cfg.BackoffBaseMs = 5000
	}

	for i := 0; i < cfg.Concurrency; i++ {
		go q.runWorkerLoop(ctx, logger, cfg, handler)
	}
}

func (q *Queue) runWorkerLoop(ctx context.Context, logger *zap.Logger, cfg WorkerConfig, handler Handler) {
	key := readyKey(cfg.Kind)
	for {
		if ctx.Err() != nil {
			return
		}

		res, err := q.rdb.BLPop(ctx, 5*time.Second, key).Result()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue // timeout with no item, or a transient redis error; loop again
		}

		raw := res[1]
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			logger.Error("queue: malformed job payload, dropping", zap.Error(err))
			continue
		}

		q.dispatch(ctx, logger, cfg, handler, job)
	}
}

func (q *Queue) dispatch(ctx context.Context, logger *zap.Logger, cfg WorkerConfig, handler Handler, job Job) {
	if ok, err := q.acquireToken(ctx, cfg.Kind); err != nil {
		logger.Error("queue: token bucket error, requeueing job", zap.String("job_id", job.ID), zap.Error(err))
		q.requeueWithJitter(ctx, cfg.Kind, job)
		return
	} else if !ok {
		q.requeueWithJitter(ctx, cfg.Kind, job)
		return
	}

	result, err := handler(ctx, job.Payload)
	if err != nil {
		q.retry(ctx, logger, cfg, job, err)
		return
	}

	if result.Blocked {
		logger.Info("queue: job blocked at dispatch", zap.String("job_id", job.ID), zap.Strings("reasons", result.Reasons))
	}
	q.finalize(ctx, cfg.Kind, job, completedKey(cfg.Kind))
}

func (q *Queue) retry(ctx context.Context, logger *zap.Logger, cfg WorkerConfig, job Job, cause error) {
	job.Attempts++
	if job.Attempts >= cfg.AttemptsMax {
		logger.Error("queue: job failed permanently",
			zap.String("job_id", job.ID), zap.Int("attempts", job.Attempts), zap.Error(cause))
		q.finalize(ctx, cfg.Kind, job, failedKey(cfg.Kind))
		return
	}

	logger.Warn("queue: job failed, retrying",
		zap.String("job_id", job.ID), zap.Int("attempt", job.Attempts), zap.Error(cause))

	q.requeueAfter(ctx, cfg.Kind, job, backoffDuration(cfg.BackoffBaseMs, job.Attempts))
}

// backoffDuration implements base_ms * 2^(attempt-1): the first retry
// waits one base interval, the second waits two, and so on.
func backoffDuration(baseMs, attempt int) time.Duration {
	d := time.Duration(baseMs) * time.Millisecond
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

func (q *Queue) requeueAfter(ctx context.Context, kind string, job Job, delay time.Duration) {
	encoded, err := json.Marshal(job)
	if err != nil {
		return
	}
	dispatchAt := float64(time.Now().Add(delay).UnixMilli())
	q.rdb.ZAdd(ctx, scheduledKey(kind), &redis.Z{Score: dispatchAt, Member: encoded}).Err() //nolint:errcheck
}

func (q *Queue) requeueWithJitter(ctx context.Context, kind string, job Job) {
	jitter := time.Duration(rand.Int63n(int64(250 * time.Millisecond)))
	q.requeueAfter(ctx, kind, job, 250*time.Millisecond+jitter)
}

func (q *Queue) finalize(ctx context.Context, kind string, job Job, listKey string) {
	encoded, err := json.Marshal(job)
	if err != nil {
		return
	}
	pipe := q.rdb.Pipeline()
	pipe.LPush(ctx, listKey, encoded)
	limit := q.KeepCompleted
	if listKey == failedKey(kind) {
		limit = q.KeepFailed
	}
	pipe.LTrim(ctx, listKey, 0, limit-1)
	pipe.Exec(ctx) //nolint:errcheck
}
