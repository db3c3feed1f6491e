package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"yt-notify-bot/internal/app"
	"yt-notify-bot/internal/infra/config"
	logging "yt-notify-bot/internal/infra/log"
	"yt-notify-bot/internal/infra/metrics"
	"yt-notify-bot/internal/usecase/delivery"
	"yt-notify-bot/internal/usecase/notifier"
)

func main() {
	cfg := config.Load()
	logger := logging.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logging.Component(logger, "metrics"), cfg.MetricsAddr)

	store, closeStore, err := app.OpenStore(ctx, cfg, logging.Component(logger, "store"))
	if err != nil {
		logger.Fatal().Err(err).Msg("notifier: нет подключения к хранилищу")
	}
	defer closeStore()

	redisClient, closeRedis, err := app.OpenRedis(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("notifier: нет подключения к Redis")
	}
	defer closeRedis()

	notificationQueue, closeQueue, err := app.OpenQueue(cfg, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("notifier: не удалось открыть очередь уведомлений")
	}
	defer closeQueue()
	if notificationQueue == nil {
		logger.Fatal().Str("driver", cfg.Queues.Driver).Msg("notifier: нужна очередь redis или rabbitmq")
	}

	source, err := app.NewVideoSource(ctx, cfg, app.NewCache(redisClient), logging.Component(logger, "youtube"))
	if err != nil {
		logger.Fatal().Err(err).Msg("notifier: не удалось создать клиента YouTube")
	}

	scheduler := notifier.NewScheduler(store, source,
		delivery.NewQueueSink(notificationQueue, logging.Component(logger, "delivery")),
		notifier.NewGuard(),
		notifier.Config{
			BaseInterval:  cfg.Poll.BaseInterval,
			RetryInterval: cfg.Poll.RetryInterval,
			Concurrency:   cfg.Poll.Concurrency,
		}, logging.Component(logger, "notifier"))

	logger.Info().Str("queue", cfg.Queues.Driver).Msg("notifier: запущен")
	scheduler.Run(ctx)
	logger.Info().Msg("notifier: остановлен")
}
