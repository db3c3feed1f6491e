package notifier

import (
	"context"
	"errors"
	"sync"

	"yt-notify-bot/internal/domain"
)

type stateKey struct {
	guild, channel string
	track          domain.Track
}

type stubStore struct {
	mu      sync.Mutex
	guilds  []domain.GuildConfig
	listErr error
	setErr  error
	state   map[stateKey]string
	writes  int
}

func newStubStore(guilds ...domain.GuildConfig) *stubStore {
	return &stubStore{guilds: guilds, state: make(map[stateKey]string)}
}

func (s *stubStore) GetAllGuildConfigs(context.Context) ([]domain.GuildConfig, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.guilds, nil
}

func (s *stubStore) GetTrackState(_ context.Context, guildID, channelID string, track domain.Track) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state[stateKey{guildID, channelID, track}], nil
}

func (s *stubStore) SetTrackState(_ context.Context, guildID, channelID string, track domain.Track, id string) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.state[stateKey{guildID, channelID, track}] = id
	return nil
}

func (s *stubStore) ClearTrackState(_ context.Context, guildID, channelID string, track domain.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	delete(s.state, stateKey{guildID, channelID, track})
	return nil
}

func (s *stubStore) get(guildID, channelID string, track domain.Track) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state[stateKey{guildID, channelID, track}]
}

func (s *stubStore) put(guildID, channelID string, track domain.Track, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[stateKey{guildID, channelID, track}] = id
}

type fetchCall struct {
	channel string
	track   domain.Track
}

type stubSource struct {
	mu    sync.Mutex
	items map[fetchCall]string
	calls []fetchCall
	panic bool
}

func (s *stubSource) FetchLatest(_ context.Context, channelID string, track domain.Track) *domain.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panic {
		panic("source exploded")
	}
	call := fetchCall{channelID, track}
	s.calls = append(s.calls, call)
	id, ok := s.items[call]
	if !ok {
		return nil
	}
	return &domain.Item{ID: id, ChannelID: channelID}
}

func (s *stubSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubSink struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (s *stubSink) Notify(_ context.Context, n domain.Notification) {
	s.mu.Lock()
	s.sent = append(s.sent, n)
	s.mu.Unlock()
}

var errStore = errors.New("store unavailable")

func channel(id, destination string) domain.ChannelConfig {
	return domain.ChannelConfig{
		ChannelID: id,
		Upload:    domain.NewTrackConfig(destination),
		Live:      domain.NewTrackConfig(destination),
		Scheduled: domain.NewTrackConfig(destination),
	}
}
