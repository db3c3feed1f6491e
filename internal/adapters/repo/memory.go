package repo

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"yt-notify-bot/internal/domain"
)

type memoryStateKey struct {
	guild, channel string
}

// Memory хранит конфигурацию в памяти процесса. Подходит для локального запуска и тестов.
type Memory struct {
	mu     sync.RWMutex
	guilds map[string]domain.GuildConfig
	state  map[memoryStateKey]domain.TrackState
}

var (
	_ domain.ConfigStore = (*Memory)(nil)
	_ domain.GuildRepo   = (*Memory)(nil)
)

// NewMemory создаёт пустое хранилище.
func NewMemory() *Memory {
	return &Memory{
		guilds: make(map[string]domain.GuildConfig),
		state:  make(map[memoryStateKey]domain.TrackState),
	}
}

func cloneGuild(cfg domain.GuildConfig) domain.GuildConfig {
	out := cfg
	if cfg.Channels != nil {
		out.Channels = make([]domain.ChannelConfig, len(cfg.Channels))
		for i, ch := range cfg.Channels {
			for _, track := range domain.Tracks {
				tc := ch.Track(track)
				tc.MentionTargets = append([]string{}, tc.MentionTargets...)
				ch.SetTrack(track, tc)
			}
			out.Channels[i] = ch
		}
	}
	return out
}

func (m *Memory) GetAllGuildConfigs(context.Context) ([]domain.GuildConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.GuildConfig, 0, len(m.guilds))
	for _, cfg := range m.guilds {
		out = append(out, cloneGuild(cfg))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetGuildConfig(_ context.Context, guildID string) (domain.GuildConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.guilds[guildID]
	if !ok {
		return domain.GuildConfig{}, domain.ErrGuildNotFound
	}
	return cloneGuild(cfg), nil
}

func (m *Memory) SaveGuildConfig(_ context.Context, cfg domain.GuildConfig) error {
	if cfg.ID == "" {
		return errors.New("guild id is empty")
	}
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guilds[cfg.ID] = cloneGuild(cfg)
	return nil
}

func (m *Memory) DeleteGuildConfig(_ context.Context, guildID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.guilds, guildID)
	return nil
}

func (m *Memory) DeleteChannelState(_ context.Context, guildID, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.state {
		if key.guild == guildID && (channelID == "" || key.channel == channelID) {
			delete(m.state, key)
		}
	}
	return nil
}

func (m *Memory) GetTrackState(_ context.Context, guildID, channelID string, track domain.Track) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state[memoryStateKey{guildID, channelID}].Get(track), nil
}

func (m *Memory) SetTrackState(_ context.Context, guildID, channelID string, track domain.Track, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memoryStateKey{guildID, channelID}
	st := m.state[key]
	st.Set(track, id)
	m.state[key] = st
	return nil
}

func (m *Memory) ClearTrackState(ctx context.Context, guildID, channelID string, track domain.Track) error {
	return m.SetTrackState(ctx, guildID, channelID, track, "")
}
