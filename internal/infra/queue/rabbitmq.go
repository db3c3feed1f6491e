package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"yt-notify-bot/internal/domain"
	"yt-notify-bot/internal/infra/metrics"
)

const attemptHeader = "x-attempt"

// RabbitNotificationQueue реализует очередь уведомлений через AMQP.
type RabbitNotificationQueue struct {
	conn  *amqp.Connection
	queue string

	pubMu sync.Mutex
	pub   *amqp.Channel

	consOnce   sync.Once
	consErr    error
	cons       *amqp.Channel
	deliveries <-chan amqp.Delivery
}

var _ domain.NotificationQueue = (*RabbitNotificationQueue)(nil)

// NewRabbitNotificationQueue подключается к брокеру и объявляет durable-очередь.
func NewRabbitNotificationQueue(amqpURL, queue string) (*RabbitNotificationQueue, error) {
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
	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := pub.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitNotificationQueue{conn: conn, queue: queue, pub: pub}, nil
}

// Enqueue публикует задачу в очередь.
func (q *RabbitNotificationQueue) Enqueue(ctx context.Context, job domain.NotificationJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	start := time.Now()
	err = q.pub.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{attemptHeader: strconv.Itoa(job.Attempt)},
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Receive ждёт следующую задачу. ack(false) публикует задачу повторно с увеличенным счётчиком попыток.
func (q *RabbitNotificationQueue) Receive(ctx context.Context) (domain.NotificationJob, domain.AckFunc, error) {
	if err := q.startConsumer(); err != nil {
		return domain.NotificationJob{}, nil, err
	}
	select {
	case <-ctx.Done():
		return domain.NotificationJob{}, nil, ctx.Err()
	case d, ok := <-q.deliveries:
		if !ok {
			return domain.NotificationJob{}, nil, errors.New("rabbitmq: канал доставки закрыт")
		}
		var job domain.NotificationJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			_ = d.Nack(false, false)
			return domain.NotificationJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return d.Ack(false)
			}
			job.Attempt++
			retryCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := q.Enqueue(retryCtx, job); err != nil {
				_ = d.Nack(false, true)
				return err
			}
			return d.Ack(false)
		}
		return job, ack, nil
	}
}

func (q *RabbitNotificationQueue) startConsumer() error {
	q.consOnce.Do(func() {
		ch, err := q.conn.Channel()
		if err != nil {
			q.consErr = fmt.Errorf("open consumer channel: %w", err)
			return
		}
		if err := ch.Qos(1, 0, false); err != nil {
			q.consErr = fmt.Errorf("set qos: %w", err)
			return
		}
		deliveries, err := ch.Consume(q.queue, "", false, false, false, false, nil)
		if err != nil {
			q.consErr = fmt.Errorf("consume: %w", err)
			return
		}
		q.cons = ch
		q.deliveries = deliveries
	})
	return q.consErr
}

// Close закрывает соединение с брокером.
func (q *RabbitNotificationQueue) Close() error {
	return q.conn.Close()
}
