package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"yt-notify-bot/internal/domain"
	"yt-notify-bot/internal/infra/metrics"
)

const (
	// DefaultMaxAttempts ограничивает количество повторов одной задачи.
	DefaultMaxAttempts = 5
	// DefaultDedupTTL хранит отметку о доставке задачи.
	DefaultDedupTTL = 24 * time.Hour

	dedupPrefix = "delivered:"
)

// WorkerConfig задаёт параметры воркера доставки.
type WorkerConfig struct {
	MaxAttempts int
	DedupTTL    time.Duration
	Backoff     time.Duration
	Timeout     time.Duration
}

// Worker читает задачи из очереди и отправляет их в Discord.
type Worker struct {
	queue     domain.NotificationQueue
	deliverer domain.Deliverer
	dedup     domain.Cache
	cfg       WorkerConfig
	log       zerolog.Logger
}

// NewWorker создаёт воркер. dedup может быть nil, тогда повторная доставка после сбоя подтверждения возможна.
func NewWorker(queue domain.NotificationQueue, deliverer domain.Deliverer, dedup domain.Cache, cfg WorkerConfig, logger zerolog.Logger) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = DefaultDedupTTL
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultDeliverTimeout
	}
	return &Worker{queue: queue, deliverer: deliverer, dedup: dedup, cfg: cfg, log: logger}
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeRetry
)

// Run обрабатывает очередь до отмены контекста.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("delivery: ошибка чтения очереди")
			if !w.pause(ctx) {
				return
			}
			continue
		}

		jobLog := w.log.With().
			Str("job_id", job.ID).
			Int("attempt", job.Attempt).
			Str("guild", job.Notification.GuildID).
			Str("channel", job.Notification.ChannelID).
			Str("track", string(job.Notification.Track)).
			Str("item", job.Notification.ItemID).
			Logger()

		if job.ID == "" {
			jobLog.Error().Msg("delivery: получена задача без идентификатора, подтверждаем и пропускаем")
			if err := ack(true); err != nil {
				jobLog.Error().Err(err).Msg("delivery: не удалось подтвердить задачу без идентификатора")
			}
			continue
		}

		if w.handle(ctx, job, jobLog) == outcomeRetry {
			if job.Attempt+1 < w.cfg.MaxAttempts {
				jobLog.Warn().Msg("delivery: задача завершилась ошибкой, повторим позже")
				if err := ack(false); err != nil {
					jobLog.Error().Err(err).Msg("delivery: не удалось вернуть задачу в очередь")
				}
				if !w.pause(ctx) {
					return
				}
				continue
			}
			metrics.NotificationsDropped.WithLabelValues("max_attempts").Inc()
			jobLog.Error().Msg("delivery: достигнут предел попыток, отбрасываем задачу")
		}

		if err := ack(true); err != nil {
			jobLog.Error().Err(err).Msg("delivery: не удалось подтвердить задачу")
		}
	}
}

func (w *Worker) handle(ctx context.Context, job domain.NotificationJob, jobLog zerolog.Logger) outcome {
	send := func() error {
		sendCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
		defer cancel()
		return w.deliverer.Deliver(sendCtx, job.Notification)
	}

	var err error
	if w.dedup != nil {
		// ключ снимается, если send вернул ошибку
		err = w.dedup.Once(dedupPrefix+job.ID, w.cfg.DedupTTL, send)
	} else {
		err = send()
	}
	if err == nil {
		return outcomeDone
	}
	if errors.Is(err, domain.ErrUndeliverable) {
		metrics.NotificationsDropped.WithLabelValues("undeliverable").Inc()
		jobLog.Warn().Err(err).Msg("delivery: уведомление нельзя доставить, пропускаем")
		return outcomeDone
	}
	jobLog.Error().Err(err).Msg("delivery: ошибка отправки")
	return outcomeRetry
}

func (w *Worker) pause(ctx context.Context) bool {
	t := time.NewTimer(w.cfg.Backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
