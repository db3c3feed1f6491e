package domain

import (
	"fmt"
	"strings"
	"time"
)

// Track описывает тип уведомления для YouTube-канала.
type Track string

const (
	TrackUpload    Track = "upload"
	TrackLive      Track = "live"
	TrackScheduled Track = "scheduled"
)

// Tracks перечисляет треки в порядке проверки: загрузки, эфир, запланированные эфиры.
// Порядок важен: проверка эфира сбрасывает состояние запланированного эфира.
var Tracks = []Track{TrackUpload, TrackLive, TrackScheduled}

// ParseTrack разбирает название трека.
func ParseTrack(raw string) (Track, error) {
	switch Track(strings.ToLower(strings.TrimSpace(raw))) {
	case TrackUpload:
		return TrackUpload, nil
	case TrackLive:
		return TrackLive, nil
	case TrackScheduled, "schedule":
		return TrackScheduled, nil
	}
	return "", fmt.Errorf("неизвестный трек %q", raw)
}

// DefaultPollIntervalSeconds применяется, если у гильдии не задан интервал.
const DefaultPollIntervalSeconds = 30

// TrackConfig хранит настройки доставки одного трека.
type TrackConfig struct {
	Enabled        bool     `json:"enabled" bson:"enabled"`
	Destination    string   `json:"destination" bson:"destination"`
	MentionTargets []string `json:"mention_targets" bson:"mention_targets"`
}

// NewTrackConfig возвращает включённый трек с указанным каналом доставки.
func NewTrackConfig(destination string) TrackConfig {
	return TrackConfig{Enabled: true, Destination: destination, MentionTargets: []string{}}
}

// ChannelConfig описывает отслеживаемый YouTube-канал внутри гильдии.
type ChannelConfig struct {
	ChannelID string      `json:"channel_id" bson:"channelId"`
	Upload    TrackConfig `json:"upload" bson:"upload"`
	Live      TrackConfig `json:"live" bson:"live"`
	Scheduled TrackConfig `json:"scheduled" bson:"scheduled"`
}

// NewChannelConfig возвращает канал, все треки которого включены и публикуются в destination.
func NewChannelConfig(channelID, destination string) ChannelConfig {
	return ChannelConfig{
		ChannelID: channelID,
		Upload:    NewTrackConfig(destination),
		Live:      NewTrackConfig(destination),
		Scheduled: NewTrackConfig(destination),
	}
}

// Track возвращает настройки указанного трека.
func (c ChannelConfig) Track(track Track) TrackConfig {
	switch track {
	case TrackLive:
		return c.Live
	case TrackScheduled:
		return c.Scheduled
	default:
		return c.Upload
	}
}

// SetTrack заменяет настройки указанного трека.
func (c *ChannelConfig) SetTrack(track Track, cfg TrackConfig) {
	switch track {
	case TrackLive:
		c.Live = cfg
	case TrackScheduled:
		c.Scheduled = cfg
	default:
		c.Upload = cfg
	}
}

// GuildConfig описывает настройки уведомлений гильдии Discord.
type GuildConfig struct {
	ID                  string          `json:"id" bson:"id"`
	PollIntervalSeconds int             `json:"poll_interval_seconds,omitempty" bson:"pollIntervalSeconds,omitempty"`
	Channels            []ChannelConfig `json:"channels" bson:"channels"`
	UpdatedAt           time.Time       `json:"updated_at" bson:"updatedAt"`
}

// PollInterval возвращает интервал проверки гильдии.
func (g GuildConfig) PollInterval() time.Duration {
	if g.PollIntervalSeconds <= 0 {
		return DefaultPollIntervalSeconds * time.Second
	}
	return time.Duration(g.PollIntervalSeconds) * time.Second
}

// Channel ищет канал по идентификатору.
func (g GuildConfig) Channel(channelID string) (ChannelConfig, bool) {
	for _, ch := range g.Channels {
		if ch.ChannelID == channelID {
			return ch, true
		}
	}
	return ChannelConfig{}, false
}

// TrackState хранит последние идентификаторы, по которым уже отправлены уведомления.
type TrackState struct {
	LastUpload    string `json:"last_upload,omitempty" bson:"lastUpload,omitempty"`
	LastLive      string `json:"last_live,omitempty" bson:"lastLive,omitempty"`
	LastScheduled string `json:"last_scheduled,omitempty" bson:"lastScheduled,omitempty"`
}

// Get возвращает значение трека.
func (s TrackState) Get(track Track) string {
	switch track {
	case TrackLive:
		return s.LastLive
	case TrackScheduled:
		return s.LastScheduled
	default:
		return s.LastUpload
	}
}

// Set задаёт значение трека. Пустая строка очищает состояние.
func (s *TrackState) Set(track Track, id string) {
	switch track {
	case TrackLive:
		s.LastLive = id
	case TrackScheduled:
		s.LastScheduled = id
	default:
		s.LastUpload = id
	}
}

// Item описывает кандидата, найденного в YouTube.
type Item struct {
	ID           string    `json:"id"`
	ChannelID    string    `json:"channel_id"`
	Title        string    `json:"title,omitempty"`
	ChannelTitle string    `json:"channel_title,omitempty"`
	PublishedAt  time.Time `json:"published_at,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
}

// URL возвращает ссылку на видео.
func (i Item) URL() string {
	return "https://www.youtube.com/watch?v=" + i.ID
}

// Notification описывает событие, которое нужно доставить в Discord.
type Notification struct {
	GuildID        string   `json:"guild_id"`
	ChannelID      string   `json:"channel_id"`
	Track          Track    `json:"track"`
	ItemID         string   `json:"item_id"`
	Destination    string   `json:"destination"`
	MentionTargets []string `json:"mention_targets,omitempty"`
	Item           Item     `json:"item"`
}
