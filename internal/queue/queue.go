// Package queue is a durable, delayed delivery queue backed by Redis.
// Jobs are JSON payloads addressed by a UUID; delayed jobs sit in a
// sorted set until their dispatch time elapses, then move to a ready
// list that workers BLPOP from.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Job is one unit of work: an opaque payload plus the bookkeeping the
// queue needs to retry it.
type Job struct {
	ID       string          `json:"id"`
	Kind     string          `json:"kind"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
}

// moveDueScript atomically moves every member of the scheduled set whose
// score (a unix-ms dispatch time) has elapsed onto the ready list. It is
// the delayed-dispatch analogue of a decrement-then-refund credit script:
// a multi-step Redis operation that must not interleave with a worker's
// BLPOP.
var moveDueScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for i, member in ipairs(due) do
	redis.call('RPUSH', KEYS[2], member)
	redis.call('ZREM', KEYS[1], member)
end
return #due
`)

// tokenBucketScript consumes one token from a counter that refills to
// ARGV[1] ("capacity") every ARGV[2] ("refill_interval_ms") milliseconds,
// returning 1 if a token was available and 0 otherwise. Bucket state is a
// Redis hash {tokens, reset_at}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local tokens = redis.call('HGET', key, 'tokens')
local resetAt = redis.call('HGET', key, 'reset_at')

if not tokens or not resetAt or now >= tonumber(resetAt) then
	tokens = capacity
	resetAt = now + interval
	redis.call('HSET', key, 'tokens', tokens, 'reset_at', resetAt)
end

tokens = tonumber(tokens)
if tokens <= 0 then
	return 0
end

redis.call('HINCRBY', key, 'tokens', -1)
return 1
`)

// Queue is a Redis-backed job queue. One Queue instance is shared across
// a process (single shared client, matching the concurrency model's
// "single shared client across workers").
type Queue struct {
	rdb            *redis.Client
	KeepCompleted  int64
	KeepFailed     int64
	RateCapacity   int64
	RateIntervalMs int64
}

// Config holds the queue's rate-limit and retention settings.
type Config struct {
	KeepCompleted  int64
	KeepFailed     int64
	RateCapacity   int64
	RateIntervalMs int64
}

func New(rdb *redis.Client, cfg Config) *Queue {
	if cfg.KeepCompleted == 0 {
		cfg.KeepCompleted = 100
	}
	if cfg.KeepFailed == 0 {
		cfg.KeepFailed = 100
	}
	return &Queue{
		rdb:            rdb,
		KeepCompleted:  cfg.KeepCompleted,
		KeepFailed:     cfg.KeepFailed,
		RateCapacity:   cfg.RateCapacity,
		RateIntervalMs: cfg.RateIntervalMs,
	}
}

func readyKey(kind string) string     { return fmt.Sprintf("queue:%s:ready", kind) }
func scheduledKey(kind string) string { return fmt.Sprintf("queue:%s:scheduled", kind) }
func completedKey(kind string) string { return fmt.Sprintf("queue:%s:completed", kind) }
func failedKey(kind string) string    { return fmt.Sprintf("queue:%s:failed", kind) }
func rateKey(kind string) string      { return fmt.Sprintf("ratelimit:%s", kind) }

// Enqueue submits a job for immediate dispatch (delay <= 0) or delayed
// dispatch, returning the job id.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload interface{}, delay time.Duration) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("queue: marshal payload: %w", err)
	}

	job := Job{ID: uuid.NewString(), Kind: kind, Payload: raw}
	encoded, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("queue: marshal job: %w", err)
	}

	if delay <= 0 {
		if err := q.rdb.RPush(ctx, readyKey(kind), encoded).Err(); err != nil {
			return "", fmt.Errorf("queue: push ready: %w", err)
		}
		return job.ID, nil
	}

	dispatchAt := float64(time.Now().Add(delay).UnixMilli())
	if err := q.rdb.ZAdd(ctx, scheduledKey(kind), &redis.Z{Score: dispatchAt, Member: encoded}).Err(); err != nil {
		return "", fmt.Errorf("queue: schedule: %w", err)
	}
	return job.ID, nil
}

// PromoteDue runs moveDueScript once for kind, moving every scheduled job
// whose dispatch time has elapsed onto the ready list. Called on a timer
// by the scheduler loop (see RunScheduler).
func (q *Queue) PromoteDue(ctx context.Context, kind string) (int64, error) {
	now := time.Now().UnixMilli()
	res, err := moveDueScript.Run(ctx, q.rdb, []string{scheduledKey(kind), readyKey(kind)}, now).Int64()
	if err != nil {
		return 0, fmt.Errorf("queue: promote due: %w", err)
	}
	return res, nil
}

// RunScheduler polls PromoteDue for kind every tick until ctx is
// cancelled. Intended to run as a single background goroutine per queue
// kind that has delayed jobs.
func (q *Queue) RunScheduler(ctx context.Context, kind string, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.PromoteDue(ctx, kind) //nolint:errcheck
		}
	}
}

// acquireToken consumes one token from kind's bucket. If RateCapacity is
// unset, rate limiting is disabled and every call succeeds.
func (q *Queue) acquireToken(ctx context.Context, kind string) (bool, error) {
	if q.RateCapacity <= 0 {
		return true, nil
	}
	now := time.Now().UnixMilli()
	ok, err := tokenBucketScript.Run(ctx, q.rdb, []string{rateKey(kind)}, q.RateCapacity, q.RateIntervalMs, now).Int64()
	if err != nil {
		return false, fmt.Errorf("queue: token bucket: %w", err)
	}
	return ok == 1, nil
}
