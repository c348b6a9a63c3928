package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"llmhub/common/utils"
	"llmhub/internal/config"
)

// 仅当锁仍属于当前持有者时删除
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisQueue 基于 Redis 列表的任务队列，LPUSH 入队、BRPOP 出队
type RedisQueue struct {
	client  *redis.Client
	key     string
	lockTTL time.Duration
}

// NewRedisQueue 创建任务队列
func NewRedisQueue(client *redis.Client, cfg config.QueueConfig) *RedisQueue {
	return &RedisQueue{client: client, key: cfg.Key, lockTTL: cfg.LockTTL}
}

// Dispatch 分配任务ID并入队
func (q *RedisQueue) Dispatch(ctx context.Context, task Task) (string, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}
	if err := q.push(ctx, task); err != nil {
		return "", err
	}
	return task.ID, nil
}

func (q *RedisQueue) push(ctx context.Context, task Task) error {
	data, err := utils.ToJSONBytes(task)
	if err != nil {
		return fmt.Errorf("序列化任务失败: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("任务入队失败: %w", err)
	}
	return nil
}

// Pop 阻塞等待任务，超时返回 nil
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*Task, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// res[0] 为 key，res[1] 为任务
	var task Task
	if err := utils.FromJSON([]byte(res[1]), &task); err != nil {
		return nil, fmt.Errorf("解析任务失败: %w", err)
	}
	return &task, nil
}

// Len 待处理任务数
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// Acquire 获取文档处理租约，同一文档同时只允许一个任务执行
func (q *RedisQueue) Acquire(ctx context.Context, documentID int64, token string) (bool, error) {
	return q.client.SetNX(ctx, q.lockKey(documentID), token, q.lockTTL).Result()
}

// Release 释放租约
func (q *RedisQueue) Release(ctx context.Context, documentID int64, token string) error {
	return releaseScript.Run(ctx, q.client, []string{q.lockKey(documentID)}, token).Err()
}

func (q *RedisQueue) lockKey(documentID int64) string {
	return fmt.Sprintf("%s:lock:%d", q.key, documentID)
}
