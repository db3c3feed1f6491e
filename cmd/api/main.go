package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"yt-notify-bot/internal/adapters/httpapi"
	"yt-notify-bot/internal/app"
	"yt-notify-bot/internal/infra/config"
	httpinfra "yt-notify-bot/internal/infra/http"
	logging "yt-notify-bot/internal/infra/log"
	"yt-notify-bot/internal/infra/metrics"
	"yt-notify-bot/internal/usecase/guilds"
)

func main() {
	cfg := config.Load()
	logger := logging.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := app.OpenStore(ctx, cfg, logging.Component(logger, "store"))
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к хранилищу")
	}
	defer closeStore()

	if cfg.APIToken == "" {
		logger.Warn().Msg("api: API_TOKEN не задан, /api/v1 доступно без авторизации")
	}

	server := httpinfra.NewServer(logging.Component(logger, "http"))
	guildService := guilds.NewService(store, logging.Component(logger, "guilds"))
	httpapi.Mount(server.Router, store, guildService, cfg.APIToken, logging.Component(logger, "api"))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("api: ошибка остановки сервера")
		}
	}()

	if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		logger.Fatal().Err(err).Msg("api: сервер остановлен с ошибкой")
	}
}
