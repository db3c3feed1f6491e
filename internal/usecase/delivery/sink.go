package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"yt-notify-bot/internal/domain"
	"yt-notify-bot/internal/infra/metrics"
)

// DefaultDeliverTimeout ограничивает одну отправку в прямом режиме.
const DefaultDeliverTimeout = 15 * time.Second

// AsyncSink доставляет уведомления напрямую, в отдельной горутине.
// Планировщик не ждёт результата отправки.
type AsyncSink struct {
	deliverer domain.Deliverer
	timeout   time.Duration
	log       zerolog.Logger
	wg        sync.WaitGroup
}

var _ domain.DeliverySink = (*AsyncSink)(nil)

// NewAsyncSink создаёт прямой приёмник уведомлений.
func NewAsyncSink(deliverer domain.Deliverer, timeout time.Duration, logger zerolog.Logger) *AsyncSink {
	if timeout <= 0 {
		timeout = DefaultDeliverTimeout
	}
	return &AsyncSink{deliverer: deliverer, timeout: timeout, log: logger}
}

// Notify запускает доставку и сразу возвращает управление.
func (s *AsyncSink) Notify(ctx context.Context, n domain.Notification) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// отмена цикла опроса не должна обрывать уже начатую отправку
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		if err := s.deliverer.Deliver(sendCtx, n); err != nil {
			reason := "send_failed"
			if errors.Is(err, domain.ErrUndeliverable) {
				reason = "undeliverable"
			}
			metrics.NotificationsDropped.WithLabelValues(reason).Inc()
			s.log.Error().Err(err).
				Str("guild", n.GuildID).
				Str("channel", n.ChannelID).
				Str("track", string(n.Track)).
				Str("item", n.ItemID).
				Msg("delivery: не удалось отправить уведомление")
		}
	}()
}

// Wait дожидается завершения начатых отправок.
func (s *AsyncSink) Wait() {
	s.wg.Wait()
}

// QueueSink публикует уведомления в очередь для воркера бота.
type QueueSink struct {
	queue domain.NotificationQueue
	log   zerolog.Logger
	now   func() time.Time
}

var _ domain.DeliverySink = (*QueueSink)(nil)

// NewQueueSink создаёт приёмник поверх очереди.
func NewQueueSink(queue domain.NotificationQueue, logger zerolog.Logger) *QueueSink {
	return &QueueSink{queue: queue, log: logger, now: time.Now}
}

// Notify ставит уведомление в очередь. Ошибка публикации только логируется.
func (s *QueueSink) Notify(ctx context.Context, n domain.Notification) {
	job := domain.NotificationJob{
		ID:           uuid.NewString(),
		Notification: n,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		metrics.NotificationsDropped.WithLabelValues("enqueue_failed").Inc()
		s.log.Error().Err(err).
			Str("job_id", job.ID).
			Str("guild", n.GuildID).
			Str("item", n.ItemID).
			Msg("delivery: не удалось поставить уведомление в очередь")
	}
}
