package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"yt-notify-bot/internal/adapters/discord"
	"yt-notify-bot/internal/app"
	"yt-notify-bot/internal/domain"
	"yt-notify-bot/internal/infra/config"
	logging "yt-notify-bot/internal/infra/log"
	"yt-notify-bot/internal/infra/metrics"
	"yt-notify-bot/internal/usecase/delivery"
	"yt-notify-bot/internal/usecase/guilds"
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
		logger.Fatal().Err(err).Msg("bot: нет подключения к хранилищу")
	}
	defer closeStore()

	redisClient, closeRedis, err := app.OpenRedis(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: нет подключения к Redis")
	}
	defer closeRedis()
	cache := app.NewCache(redisClient)

	notificationQueue, closeQueue, err := app.OpenQueue(cfg, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось открыть очередь уведомлений")
	}
	defer closeQueue()

	statbotService, err := app.NewStatbot(cfg, logging.Component(logger, "statbot"))
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: некорректная конфигурация Statbot")
	}
	if statbotService == nil {
		logger.Warn().Msg("bot: STATBOT_API_KEY не задан, команды Statbot отключены")
	}

	session, err := discord.NewSession(cfg.Discord.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось создать сессию Discord")
	}

	guildService := guilds.NewService(store, logging.Component(logger, "guilds"))
	handler := discord.NewHandler(guildService, statbotService, cfg.Discord.CommandPrefix, logging.Component(logger, "discord"))
	discord.Bind(ctx, session, handler, logging.Component(logger, "discord"))

	if err := session.Open(); err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось подключиться к Discord")
	}
	defer session.Close()

	if err := discord.RegisterCommands(session, cfg.Discord.AppID, cfg.Discord.CommandGuild, logging.Component(logger, "discord")); err != nil {
		logger.Error().Err(err).Msg("bot: команды не зарегистрированы")
	}

	deliverer := discord.NewSessionDeliverer(session, logging.Component(logger, "deliverer"))

	var wg sync.WaitGroup
	var sink domain.DeliverySink
	var asyncSink *delivery.AsyncSink
	if notificationQueue != nil {
		sink = delivery.NewQueueSink(notificationQueue, logging.Component(logger, "delivery"))
		worker := delivery.NewWorker(notificationQueue, deliverer, cache, delivery.WorkerConfig{}, logging.Component(logger, "delivery"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
		logger.Info().Str("driver", cfg.Queues.Driver).Msg("bot: доставка через очередь")
	} else {
		asyncSink = delivery.NewAsyncSink(deliverer, delivery.DefaultDeliverTimeout, logging.Component(logger, "delivery"))
		sink = asyncSink
	}

	if cfg.Poll.Enabled {
		source, err := app.NewVideoSource(ctx, cfg, cache, logging.Component(logger, "youtube"))
		if err != nil {
			logger.Fatal().Err(err).Msg("bot: не удалось создать клиента YouTube")
		}
		scheduler := notifier.NewScheduler(store, source, sink, notifier.NewGuard(), notifier.Config{
			BaseInterval:  cfg.Poll.BaseInterval,
			RetryInterval: cfg.Poll.RetryInterval,
			Concurrency:   cfg.Poll.Concurrency,
		}, logging.Component(logger, "notifier"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.Run(ctx)
		}()
	} else {
		logger.Info().Msg("bot: планировщик отключён, уведомления приходят из очереди")
	}

	logger.Info().Msg("bot: запущен")
	<-ctx.Done()
	logger.Info().Msg("bot: остановка")
	wg.Wait()
	if asyncSink != nil {
		asyncSink.Wait()
	}
}
