package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrQueueEmpty is returned by Dequeue when nothing became available within
// the implementation's wait window.
var ErrQueueEmpty = errors.New("queue empty")

// Queue hands settlement ids from the scheduler to retry workers.
type Queue interface {
	Enqueue(ctx context.Context, settlementID string) error

	// Dequeue blocks briefly for an id and returns ErrQueueEmpty when none
	// arrived, letting workers re-check their context between waits.
	Dequeue(ctx context.Context) (string, error)
}

const redisQueueKey = "settlement:retry:v1"

// RedisQueue is a Redis-list-backed work queue shared by all instances.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue builds a queue on the provided client.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

// Enqueue pushes the settlement id onto the shared list.
func (q *RedisQueue) Enqueue(ctx context.Context, settlementID string) error {
	return q.client.LPush(ctx, redisQueueKey, settlementID).Err()
}

// Dequeue pops the oldest id, waiting up to one second.
func (q *RedisQueue) Dequeue(ctx context.Context) (string, error) {
	res, err := q.client.BRPop(ctx, time.Second, redisQueueKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrQueueEmpty
	}
	if err != nil {
		return "", err
	}
	// BRPOP returns [key, value].
	return res[1], nil
}

// MemoryQueue is a channel-backed queue for tests and single-instance runs
// without Redis.
type MemoryQueue struct {
	ch chan string
}

// NewMemoryQueue builds an in-process queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{ch: make(chan string, 1024)}
}

// Enqueue pushes the settlement id, respecting context cancellation.
func (q *MemoryQueue) Enqueue(ctx context.Context, settlementID string) error {
	select {
	case q.ch <- settlementID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue pops the oldest id, waiting up to one second.
func (q *MemoryQueue) Dequeue(ctx context.Context) (string, error) {
	select {
	case id := <-q.ch:
		return id, nil
	case <-time.After(time.Second):
		return "", ErrQueueEmpty
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
