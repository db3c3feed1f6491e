// Package app собирает адаптеры из конфигурации для бинарников cmd/*.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"yt-notify-bot/internal/adapters/repo"
	"yt-notify-bot/internal/adapters/youtube"
	"yt-notify-bot/internal/domain"
	"yt-notify-bot/internal/infra/cache"
	"yt-notify-bot/internal/infra/config"
	"yt-notify-bot/internal/infra/db"
	"yt-notify-bot/internal/infra/queue"
	"yt-notify-bot/internal/usecase/statbot"
)

// Драйверы хранилища и очереди.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"

	QueueDirect = "direct"
	QueueRedis  = "redis"
	QueueRabbit = "rabbitmq"
)

// Store объединяет чтение конфигурации планировщиком и её изменение командами.
type Store interface {
	domain.ConfigStore
	domain.GuildRepo
}

// Closer освобождает ресурсы, открытые при сборке.
type Closer func()

func noop() {}

// OpenStore подключает хранилище по STORE_DRIVER и готовит схему.
func OpenStore(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (Store, Closer, error) {
	switch strings.ToLower(cfg.StoreDriver) {
	case StoreMemory:
		logger.Warn().Msg("app: используется хранилище в памяти, настройки не переживут перезапуск")
		return repo.NewMemory(), noop, nil
	case StorePostgres, "":
		pool, err := db.Connect(cfg.PGDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		store := repo.NewPostgres(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres schema: %w", err)
		}
		return store, pool.Close, nil
	case StoreMongo:
		client, database, err := db.ConnectMongo(cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, nil, err
		}
		store := repo.NewMongo(database)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, fmt.Errorf("mongo indexes: %w", err)
		}
		return store, func() { _ = client.Disconnect(context.Background()) }, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// OpenRedis подключает Redis, если задан REDIS_ADDR. Без адреса возвращает nil.
func OpenRedis(cfg config.AppConfig) (*redis.Client, Closer, error) {
	if cfg.RedisAddr == "" {
		return nil, noop, nil
	}
	client, err := db.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		return nil, nil, err
	}
	return client, func() { _ = client.Close() }, nil
}

// NewCache возвращает кэш поверх Redis или nil без Redis.
func NewCache(client *redis.Client) domain.Cache {
	if client == nil {
		return nil
	}
	return cache.NewRedis(client, "ytnotify:")
}

// OpenQueue создаёт очередь уведомлений по QUEUE_DRIVER. Для direct возвращает nil.
func OpenQueue(cfg config.AppConfig, client *redis.Client) (domain.NotificationQueue, Closer, error) {
	switch strings.ToLower(cfg.Queues.Driver) {
	case QueueDirect, "":
		return nil, noop, nil
	case QueueRedis:
		if client == nil {
			return nil, nil, errors.New("redis queue requires REDIS_ADDR")
		}
		return queue.NewRedisNotificationQueue(client, cfg.Queues.Notification), noop, nil
	case QueueRabbit:
		q, err := queue.NewRabbitNotificationQueue(cfg.RabbitURL, cfg.Queues.Notification)
		if err != nil {
			return nil, nil, err
		}
		return q, func() { _ = q.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown queue driver %q", cfg.Queues.Driver)
}

// NewVideoSource создаёт клиента YouTube и, при наличии кэша, оборачивает его кэшем кандидатов.
func NewVideoSource(ctx context.Context, cfg config.AppConfig, c domain.Cache, logger zerolog.Logger) (domain.VideoSource, error) {
	src, err := youtube.NewSource(ctx, cfg.YouTube.APIKey, logger,
		youtube.WithTimeout(cfg.YouTube.Timeout),
		youtube.WithRPS(cfg.YouTube.RPS),
	)
	if err != nil {
		return nil, err
	}
	if c == nil || cfg.YouTube.CacheTTL <= 0 {
		return src, nil
	}
	return youtube.NewCachedSource(src, c, cfg.YouTube.CacheTTL, logger), nil
}

// NewStatbot создаёт сервис Statbot. Без STATBOT_API_KEY возвращает nil.
func NewStatbot(cfg config.AppConfig, logger zerolog.Logger) (*statbot.Service, error) {
	if cfg.Statbot.APIKey == "" {
		return nil, nil
	}
	client, err := statbot.NewClient(cfg.Statbot.BaseURL, cfg.Statbot.APIKey, statbot.WithTimeout(cfg.Statbot.Timeout))
	if err != nil {
		return nil, err
	}
	return statbot.NewService(client, cfg.Statbot.FullCheckPause, logger), nil
}
