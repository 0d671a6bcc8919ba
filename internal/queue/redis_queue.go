package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPopTimeout = 5 * time.Second

// RedisQueue stores tasks in a Redis list: LPUSH to publish, BRPOP to consume.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// RedisOptions configures NewRedisQueue.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

func NewRedisQueue(ctx context.Context, opts RedisOptions) (*RedisQueue, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, errors.New("queue: redis address is required")
	}
	key := strings.TrimSpace(opts.Key)
	if key == "" {
		return nil, errors.New("queue: redis key is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  redisPopTimeout + 5*time.Second,
		WriteTimeout: 10 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("queue: redis ping: %w", err)
	}

	return &RedisQueue{client: client, key: key}, nil
}

func (q *RedisQueue) Publish(ctx context.Context, task Task) error {
	raw, err := encodeTask(task)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("queue: redis lpush: %w", err)
	}
	return nil
}

func (q *RedisQueue) Next(ctx context.Context) (Task, error) {
	for {
		result, err := q.client.BRPop(ctx, redisPopTimeout, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				if ctx.Err() != nil {
					return Task{}, ctx.Err()
				}
				continue
			}
			if ctx.Err() != nil {
				return Task{}, ctx.Err()
			}
			if errors.Is(err, redis.ErrClosed) {
				return Task{}, ErrClosed
			}
			return Task{}, fmt.Errorf("queue: redis brpop: %w", err)
		}
		// result[0] 是 key，result[1] 是任务内容
		if len(result) < 2 {
			continue
		}
		return decodeTask([]byte(result[1]))
	}
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
