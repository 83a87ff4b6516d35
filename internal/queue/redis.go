package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// jobList is the list the workers BLPOP from.
	jobList = "launch-engine:jobs"

	// dedupPrefix namespaces the per-job idempotency markers.
	dedupPrefix = "launch-engine:dispatched:"

	// dedupTTL bounds marker lifetime; attempts are short-lived compared
	// to this.
	dedupTTL = 24 * time.Hour
)

// RedisQueue implements Queue over a Redis list with SETNX idempotency
// markers keyed by job identity.
type RedisQueue struct {
	client redis.UniversalClient
}

// NewRedisQueue creates a RedisQueue.
func NewRedisQueue(client redis.UniversalClient) *RedisQueue {
	return &RedisQueue{client: client}
}

// Compile-time interface check.
var _ Queue = (*RedisQueue)(nil)

// Enqueue pushes the job unless its identity key was already dispatched.
func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validate job: %w", err)
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	id := job.ID()
	claimed, err := q.client.SetNX(ctx, dedupPrefix+id, 1, dedupTTL).Result()
	if err != nil {
		return fmt.Errorf("claim job id %s: %w", id, err)
	}
	if !claimed {
		// Same attempt dispatched before; workers already have it.
		return nil
	}

	if err := q.client.RPush(ctx, jobList, payload).Err(); err != nil {
		// Free the marker so the aborted stage advance can re-dispatch.
		q.client.Del(ctx, dedupPrefix+id)
		return fmt.Errorf("push job %s: %w", id, err)
	}
	return nil
}
