package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	PollCycleSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "poll_cycle_seconds",
		Help:    "Длительность цикла проверки YouTube",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})
	PollCycleErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poll_cycle_errors_total",
		Help: "Циклы, прерванные из-за ошибки получения гильдий",
	})
	PollGuilds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "poll_guilds",
		Help: "Количество гильдий в последнем цикле",
	})
	GuardContention = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poll_guard_contention_total",
		Help: "Проверки каналов, пропущенные из-за уже идущей проверки",
	})
	ChannelCheckErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poll_channel_errors_total",
		Help: "Ошибки проверки отдельных каналов",
	})

	YouTubeFetchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "youtube_fetch_failures_total",
		Help: "Неудачные запросы к YouTube, засчитанные как отсутствие элемента",
	}, []string{"kind", "reason"})
	YouTubeCacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "youtube_cache_total",
		Help: "Обращения к кэшу кандидатов YouTube",
	}, []string{"result"})

	NotificationsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_emitted_total",
		Help: "Уведомления, переданные на доставку",
	}, []string{"track"})
	NotificationsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_dropped_total",
		Help: "Уведомления, отброшенные без доставки",
	}, []string{"reason"})
	NotificationsDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_delivered_total",
		Help: "Уведомления, отправленные в Discord",
	}, []string{"track"})
	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})
	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_commands_total",
		Help: "Обработанные команды бота",
	}, []string{"command", "status"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		PollCycleSeconds,
		PollCycleErrors,
		PollGuilds,
		GuardContention,
		ChannelCheckErrors,
		YouTubeFetchFailures,
		YouTubeCacheHits,
		NotificationsEmitted,
		NotificationsDropped,
		NotificationsDelivered,
		BotSendErrors,
		CommandsTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveCommand учитывает обработанную команду.
func ObserveCommand(command string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	CommandsTotal.WithLabelValues(command, status).Inc()
}
