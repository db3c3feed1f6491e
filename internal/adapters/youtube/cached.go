package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"yt-notify-bot/internal/domain"
	"yt-notify-bot/internal/infra/cache"
	"yt-notify-bot/internal/infra/metrics"
)

// DefaultCacheTTL короче минимального интервала опроса, чтобы кэш жил не дольше одного цикла.
const DefaultCacheTTL = 20 * time.Second

var noneMarker = []byte("none")

// CachedSource кэширует ответы источника по паре (канал, трек),
// чтобы гильдии с общим каналом тратили один запрос за цикл.
type CachedSource struct {
	next  domain.VideoSource
	cache domain.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

var _ domain.VideoSource = (*CachedSource)(nil)

// NewCachedSource оборачивает источник кэшем.
func NewCachedSource(next domain.VideoSource, c domain.Cache, ttl time.Duration, logger zerolog.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedSource{next: next, cache: c, ttl: ttl, log: logger}
}

// FetchLatest отдаёт значение из кэша или обращается к источнику.
func (c *CachedSource) FetchLatest(ctx context.Context, channelID string, track domain.Track) *domain.Item {
	key := "yt:" + channelID + ":" + string(track)

	raw, err := c.cache.Get(key)
	switch {
	case err == nil:
		if item, ok := decodeCached(raw); ok {
			metrics.YouTubeCacheHits.WithLabelValues("hit").Inc()
			return item
		}
		metrics.YouTubeCacheHits.WithLabelValues("error").Inc()
	case errors.Is(err, cache.ErrMiss):
		metrics.YouTubeCacheHits.WithLabelValues("miss").Inc()
	default:
		metrics.YouTubeCacheHits.WithLabelValues("error").Inc()
		c.log.Warn().Err(err).Str("key", key).Msg("youtube: ошибка чтения кэша")
	}

	item := c.next.FetchLatest(ctx, channelID, track)

	payload := noneMarker
	if item != nil {
		if payload, err = json.Marshal(item); err != nil {
			return item
		}
	}
	if err := c.cache.Set(key, payload, c.ttl); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("youtube: ошибка записи кэша")
	}
	return item
}

func decodeCached(raw []byte) (*domain.Item, bool) {
	if string(raw) == string(noneMarker) {
		return nil, true
	}
	var item domain.Item
	if err := json.Unmarshal(raw, &item); err != nil || item.ID == "" {
		return nil, false
	}
	return &item, true
}
