package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tg-fanout-bot/internal/domain"
	"tg-fanout-bot/internal/infra/metrics"
)

// RabbitPostQueue реализует очередь событий постов через AMQP.
type RabbitPostQueue struct {
	conn  *amqp.Connection
	queue string

	mu         sync.Mutex
	pubChannel *amqp.Channel
	deliveries <-chan amqp.Delivery
}

// NewRabbitPostQueue подключается к RabbitMQ и объявляет durable-очередь.
func NewRabbitPostQueue(amqpURL, queue string) (*RabbitPostQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitPostQueue{conn: conn, queue: queue, pubChannel: ch}, nil
}

// Publish публикует событие в очередь.
func (q *RabbitPostQueue) Publish(ctx context.Context, event domain.PostEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	start := time.Now()
	err = q.pubChannel.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Consume блокирующе читает следующее событие. Доставка подтверждается
// сразу после декодирования: идемпотентность обеспечивает потребитель.
func (q *RabbitPostQueue) Consume(ctx context.Context) (domain.PostEvent, error) {
	deliveries, err := q.consumeChannel()
	if err != nil {
		return domain.PostEvent{}, err
	}
	for {
		select {
		case <-ctx.Done():
			return domain.PostEvent{}, ctx.Err()
		case msg, ok := <-deliveries:
			if !ok {
				return domain.PostEvent{}, errors.New("amqp: канал доставки закрыт")
			}
			var event domain.PostEvent
			if err := json.Unmarshal(msg.Body, &event); err != nil {
				// Нечитаемое сообщение отбрасывается без requeue, иначе
				// оно будет вечно возвращаться в голову очереди.
				_ = msg.Nack(false, false)
				continue
			}
			if err := msg.Ack(false); err != nil {
				return domain.PostEvent{}, fmt.Errorf("ack event: %w", err)
			}
			return event, nil
		}
	}
}

func (q *RabbitPostQueue) consumeChannel() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("start consume: %w", err)
	}
	q.deliveries = deliveries
	return deliveries, nil
}

// Close закрывает соединение с брокером.
func (q *RabbitPostQueue) Close() error {
	return q.conn.Close()
}
