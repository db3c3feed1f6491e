package domain

import (
	"context"
	"time"
)

// ConfigStore отдаёт конфигурацию гильдий и хранит состояние треков для планировщика.
type ConfigStore interface {
	GetAllGuildConfigs(ctx context.Context) ([]GuildConfig, error)
	// GetTrackState возвращает последний идентификатор трека или пустую строку.
	GetTrackState(ctx context.Context, guildID, channelID string, track Track) (string, error)
	SetTrackState(ctx context.Context, guildID, channelID string, track Track, id string) error
	ClearTrackState(ctx context.Context, guildID, channelID string, track Track) error
}

// GuildRepo управляет конфигурацией гильдий.
type GuildRepo interface {
	// GetGuildConfig возвращает ErrGuildNotFound, если гильдия ещё не настраивалась.
	GetGuildConfig(ctx context.Context, guildID string) (GuildConfig, error)
	SaveGuildConfig(ctx context.Context, cfg GuildConfig) error
	DeleteGuildConfig(ctx context.Context, guildID string) error
	// DeleteChannelState удаляет состояние треков канала; пустой channelID удаляет всё состояние гильдии.
	DeleteChannelState(ctx context.Context, guildID, channelID string) error
}

// VideoSource ищет последний элемент канала указанного типа.
// Ошибки и таймауты не возвращаются: результат в этом случае nil.
type VideoSource interface {
	FetchLatest(ctx context.Context, channelID string, track Track) *Item
}

// DeliverySink принимает уведомления без ожидания доставки.
type DeliverySink interface {
	Notify(ctx context.Context, n Notification)
}

// Deliverer синхронно отправляет уведомление в Discord.
type Deliverer interface {
	Deliver(ctx context.Context, n Notification) error
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
