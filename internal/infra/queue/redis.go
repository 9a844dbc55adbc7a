package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tg-fanout-bot/internal/domain"
)

// RedisPostQueue реализует очередь событий постов на базе Redis lists.
// Используется в окружениях без RabbitMQ.
type RedisPostQueue struct {
	client *redis.Client
	key    string
}

// NewRedisPostQueue создаёт очередь по указанному ключу.
func NewRedisPostQueue(client *redis.Client, key string) *RedisPostQueue {
	return &RedisPostQueue{client: client, key: key}
}

// Publish публикует событие в очередь.
func (q *RedisPostQueue) Publish(ctx context.Context, event domain.PostEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}

// Consume блокирующе читает следующее событие из очереди.
func (q *RedisPostQueue) Consume(ctx context.Context) (domain.PostEvent, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.PostEvent{}, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.PostEvent{}, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.PostEvent{}, err
		}
		if len(res) != 2 {
			return domain.PostEvent{}, errors.New("redis queue: unexpected response")
		}
		var event domain.PostEvent
		if err := json.Unmarshal([]byte(res[1]), &event); err != nil {
			// Нечитаемое сообщение уже снято с очереди; отбрасываем его,
			// чтобы не останавливать потребление.
			continue
		}
		return event, nil
	}
}
