package webhook

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/nexuscore/nexus-core/internal/nexuserr"
)

// RedisQueue backs the async webhook queue with a Redis list, used when
// REDIS_URL is set so queued jobs survive a process restart. LPUSH/BRPOP is
// the standard go-redis reliable-queue idiom; jobs are JSON-encoded.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue wraps an existing *redis.Client. key namespaces the list,
// e.g. "nexus:webhooks:queue".
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return nexuserr.Wrap(nexuserr.CodeInternal, "failed to encode webhook job", err)
	}
	return q.client.LPush(ctx, q.key, payload).Err()
}

// Dequeue blocks (subject to ctx) on BRPOP, giving FIFO delivery order.
func (q *RedisQueue) Dequeue(ctx context.Context) (Job, error) {
	res, err := q.client.BRPop(ctx, 0, q.key).Result()
	if err != nil {
		return Job{}, err
	}
	if len(res) != 2 {
		return Job{}, nexuserr.New(nexuserr.CodeInternal, "unexpected BRPOP reply shape")
	}
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return Job{}, nexuserr.Wrap(nexuserr.CodeInternal, "failed to decode webhook job", err)
	}
	return job, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	return int(n), err
}
