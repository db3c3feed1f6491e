package guilds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"yt-notify-bot/internal/domain"
)

// MinPollIntervalSeconds задаёт нижнюю границу интервала проверки гильдии.
const MinPollIntervalSeconds = domain.DefaultPollIntervalSeconds

// Result описывает ответ команды, который показывается пользователю как есть.
type Result struct {
	Success bool
	Message string
}

func ok(format string, args ...any) Result {
	return Result{Success: true, Message: fmt.Sprintf(format, args...)}
}

func fail(format string, args ...any) Result {
	return Result{Success: false, Message: fmt.Sprintf(format, args...)}
}

// Service управляет настройками уведомлений гильдий.
type Service struct {
	repo domain.GuildRepo
	log  zerolog.Logger
	now  func() time.Time

	// изменения конфигурации выполняются как read-modify-write
	mu sync.Mutex
}

// NewService создаёт сервис настроек.
func NewService(repo domain.GuildRepo, logger zerolog.Logger) *Service {
	return &Service{repo: repo, log: logger, now: time.Now}
}

// GetGuildConfig возвращает конфигурацию гильдии. found=false, если гильдия не настроена.
func (s *Service) GetGuildConfig(ctx context.Context, guildID string) (domain.GuildConfig, bool, error) {
	cfg, err := s.repo.GetGuildConfig(ctx, guildID)
	if errors.Is(err, domain.ErrGuildNotFound) {
		return domain.GuildConfig{ID: guildID}, false, nil
	}
	if err != nil {
		return domain.GuildConfig{}, false, fmt.Errorf("получение конфигурации гильдии: %w", err)
	}
	return cfg, true, nil
}

// SetNotifications полностью заменяет настройки уведомлений гильдии.
func (s *Service) SetNotifications(ctx context.Context, guildID string, pollSeconds int, channels []domain.ChannelConfig) Result {
	seen := make(map[string]struct{}, len(channels))
	normalized := make([]domain.ChannelConfig, 0, len(channels))
	for _, ch := range channels {
		ch.ChannelID = strings.TrimSpace(ch.ChannelID)
		if ch.ChannelID == "" {
			return fail("Channel ID must not be empty.")
		}
		if _, dup := seen[ch.ChannelID]; dup {
			return fail("Channel `%s` is listed twice.", ch.ChannelID)
		}
		seen[ch.ChannelID] = struct{}{}
		normalized = append(normalized, normalizeChannel(ch))
	}
	return s.mutate(ctx, guildID, "Notification settings saved.", func(cfg *domain.GuildConfig) Result {
		cfg.PollIntervalSeconds = clampInterval(pollSeconds)
		cfg.Channels = normalized
		return Result{Success: true}
	})
}

// UnsetNotifications удаляет настройки и состояние уведомлений гильдии.
func (s *Service) UnsetNotifications(ctx context.Context, guildID string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.DeleteGuildConfig(ctx, guildID); err != nil && !errors.Is(err, domain.ErrGuildNotFound) {
		return s.storageFailure(guildID, "удаление конфигурации", err)
	}
	if err := s.repo.DeleteChannelState(ctx, guildID, ""); err != nil {
		return s.storageFailure(guildID, "удаление состояния", err)
	}
	return ok("YouTube notifications disabled for this server.")
}

// SetPollInterval задаёт интервал проверки гильдии в секундах.
func (s *Service) SetPollInterval(ctx context.Context, guildID string, seconds int) Result {
	if seconds <= 0 {
		return fail("Poll interval must be a positive number of seconds.")
	}
	applied := clampInterval(seconds)
	return s.mutate(ctx, guildID, fmt.Sprintf("Poll interval set to %d seconds.", applied), func(cfg *domain.GuildConfig) Result {
		cfg.PollIntervalSeconds = applied
		return Result{Success: true}
	})
}

// UnsetPollInterval возвращает интервал по умолчанию.
func (s *Service) UnsetPollInterval(ctx context.Context, guildID string) Result {
	return s.mutate(ctx, guildID, fmt.Sprintf("Poll interval reset to %d seconds.", domain.DefaultPollIntervalSeconds), func(cfg *domain.GuildConfig) Result {
		cfg.PollIntervalSeconds = 0
		return Result{Success: true}
	})
}

// GetPollInterval возвращает действующий интервал в секундах.
func (s *Service) GetPollInterval(ctx context.Context, guildID string) (int, error) {
	cfg, _, err := s.GetGuildConfig(ctx, guildID)
	if err != nil {
		return 0, err
	}
	return int(cfg.PollInterval() / time.Second), nil
}

// AddChannel добавляет YouTube-канал в гильдию.
func (s *Service) AddChannel(ctx context.Context, guildID string, ch domain.ChannelConfig) Result {
	ch.ChannelID = strings.TrimSpace(ch.ChannelID)
	if ch.ChannelID == "" {
		return fail("Channel ID must not be empty.")
	}
	ch = normalizeChannel(ch)
	return s.mutate(ctx, guildID, fmt.Sprintf("Now tracking YouTube channel `%s`.", ch.ChannelID), func(cfg *domain.GuildConfig) Result {
		if _, exists := cfg.Channel(ch.ChannelID); exists {
			return fail("Channel `%s` is already tracked.", ch.ChannelID)
		}
		cfg.Channels = append(cfg.Channels, ch)
		return Result{Success: true}
	})
}

// RemoveChannel удаляет канал и его состояние.
func (s *Service) RemoveChannel(ctx context.Context, guildID, channelID string) Result {
	channelID = strings.TrimSpace(channelID)
	res := s.mutate(ctx, guildID, fmt.Sprintf("Stopped tracking YouTube channel `%s`.", channelID), func(cfg *domain.GuildConfig) Result {
		idx := indexOf(cfg.Channels, channelID)
		if idx < 0 {
			return fail("Channel not found.")
		}
		cfg.Channels = append(cfg.Channels[:idx], cfg.Channels[idx+1:]...)
		return Result{Success: true}
	})
	if !res.Success {
		return res
	}
	if err := s.repo.DeleteChannelState(ctx, guildID, channelID); err != nil {
		s.log.Warn().Err(err).Str("guild_id", guildID).Str("channel_id", channelID).Msg("guilds: не удалось удалить состояние канала")
	}
	return res
}

// ClearChannels удаляет все каналы гильдии.
func (s *Service) ClearChannels(ctx context.Context, guildID string) Result {
	res := s.mutate(ctx, guildID, "All tracked channels removed.", func(cfg *domain.GuildConfig) Result {
		cfg.Channels = []domain.ChannelConfig{}
		return Result{Success: true}
	})
	if !res.Success {
		return res
	}
	if err := s.repo.DeleteChannelState(ctx, guildID, ""); err != nil {
		s.log.Warn().Err(err).Str("guild_id", guildID).Msg("guilds: не удалось удалить состояние каналов")
	}
	return res
}

// GetChannels возвращает отслеживаемые каналы.
func (s *Service) GetChannels(ctx context.Context, guildID string) ([]domain.ChannelConfig, error) {
	cfg, _, err := s.GetGuildConfig(ctx, guildID)
	if err != nil {
		return nil, err
	}
	return cfg.Channels, nil
}

// GetChannelConfig возвращает настройки одного канала.
func (s *Service) GetChannelConfig(ctx context.Context, guildID, channelID string) (domain.ChannelConfig, error) {
	cfg, _, err := s.GetGuildConfig(ctx, guildID)
	if err != nil {
		return domain.ChannelConfig{}, err
	}
	ch, found := cfg.Channel(strings.TrimSpace(channelID))
	if !found {
		return domain.ChannelConfig{}, domain.ErrChannelNotFound
	}
	return ch, nil
}

// SetEnabled включает или выключает трек канала.
func (s *Service) SetEnabled(ctx context.Context, guildID, channelID string, track domain.Track, enabled bool) Result {
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	return s.updateTrack(ctx, guildID, channelID, track, fmt.Sprintf("%s alerts %s for `%s`.", trackTitle(track), state, channelID), func(t *domain.TrackConfig) {
		t.Enabled = enabled
	})
}

// GetEnabled возвращает признак включённого трека.
func (s *Service) GetEnabled(ctx context.Context, guildID, channelID string, track domain.Track) (bool, error) {
	ch, err := s.GetChannelConfig(ctx, guildID, channelID)
	if err != nil {
		return false, err
	}
	return ch.Track(track).Enabled, nil
}

// SetDestination задаёт канал Discord для трека.
func (s *Service) SetDestination(ctx context.Context, guildID, channelID string, track domain.Track, destination string) Result {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return fail("Discord channel must not be empty.")
	}
	return s.updateTrack(ctx, guildID, channelID, track, fmt.Sprintf("%s alerts for `%s` will be posted in <#%s>.", trackTitle(track), channelID, destination), func(t *domain.TrackConfig) {
		t.Destination = destination
	})
}

// GetDestination возвращает канал Discord трека.
func (s *Service) GetDestination(ctx context.Context, guildID, channelID string, track domain.Track) (string, error) {
	ch, err := s.GetChannelConfig(ctx, guildID, channelID)
	if err != nil {
		return "", err
	}
	return ch.Track(track).Destination, nil
}

// SetMentionTargets задаёт роли, упоминаемые в уведомлении.
func (s *Service) SetMentionTargets(ctx context.Context, guildID, channelID string, track domain.Track, roles []string) Result {
	cleaned := NormalizeRoles(roles)
	msg := fmt.Sprintf("%s alerts for `%s` will not mention any role.", trackTitle(track), channelID)
	if len(cleaned) > 0 {
		msg = fmt.Sprintf("%s alerts for `%s` will mention %s.", trackTitle(track), channelID, formatRoles(cleaned))
	}
	return s.updateTrack(ctx, guildID, channelID, track, msg, func(t *domain.TrackConfig) {
		t.MentionTargets = cleaned
	})
}

// GetMentionTargets возвращает роли трека.
func (s *Service) GetMentionTargets(ctx context.Context, guildID, channelID string, track domain.Track) ([]string, error) {
	ch, err := s.GetChannelConfig(ctx, guildID, channelID)
	if err != nil {
		return nil, err
	}
	return ch.Track(track).MentionTargets, nil
}

// ParseRoles разбирает список ролей, разделённых запятыми.
func ParseRoles(raw string) []string {
	return NormalizeRoles(strings.Split(raw, ","))
}

// NormalizeRoles убирает пробелы, обёртку <@&id>, пустые значения и дубликаты.
func NormalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		role = strings.TrimSpace(role)
		role = strings.TrimSuffix(strings.TrimPrefix(role, "<@&"), ">")
		if role == "" {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

func (s *Service) updateTrack(ctx context.Context, guildID, channelID string, track domain.Track, message string, fn func(*domain.TrackConfig)) Result {
	channelID = strings.TrimSpace(channelID)
	return s.mutate(ctx, guildID, message, func(cfg *domain.GuildConfig) Result {
		idx := indexOf(cfg.Channels, channelID)
		if idx < 0 {
			return fail("Channel not found.")
		}
		trackCfg := cfg.Channels[idx].Track(track)
		fn(&trackCfg)
		cfg.Channels[idx].SetTrack(track, trackCfg)
		return Result{Success: true}
	})
}

// mutate загружает конфигурацию, применяет fn и сохраняет результат, если fn вернул успех.
func (s *Service) mutate(ctx context.Context, guildID, successMessage string, fn func(*domain.GuildConfig) Result) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.repo.GetGuildConfig(ctx, guildID)
	if errors.Is(err, domain.ErrGuildNotFound) {
		cfg = domain.GuildConfig{ID: guildID, Channels: []domain.ChannelConfig{}}
	} else if err != nil {
		return s.storageFailure(guildID, "получение конфигурации", err)
	}

	res := fn(&cfg)
	if !res.Success {
		return res
	}
	cfg.ID = guildID
	cfg.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveGuildConfig(ctx, cfg); err != nil {
		return s.storageFailure(guildID, "сохранение конфигурации", err)
	}
	if res.Message == "" {
		res.Message = successMessage
	}
	return res
}

func (s *Service) storageFailure(guildID, operation string, err error) Result {
	s.log.Error().Err(err).Str("guild_id", guildID).Msgf("guilds: %s", operation)
	return fail("Could not update settings, please try again later.")
}

func normalizeChannel(ch domain.ChannelConfig) domain.ChannelConfig {
	for _, track := range domain.Tracks {
		t := ch.Track(track)
		t.Destination = strings.TrimSpace(t.Destination)
		t.MentionTargets = NormalizeRoles(t.MentionTargets)
		ch.SetTrack(track, t)
	}
	return ch
}

func clampInterval(seconds int) int {
	if seconds <= 0 {
		return 0
	}
	if seconds < MinPollIntervalSeconds {
		return MinPollIntervalSeconds
	}
	return seconds
}

func indexOf(channels []domain.ChannelConfig, channelID string) int {
	for i, ch := range channels {
		if ch.ChannelID == channelID {
			return i
		}
	}
	return -1
}

func trackTitle(track domain.Track) string {
	switch track {
	case domain.TrackLive:
		return "Live"
	case domain.TrackScheduled:
		return "Scheduled stream"
	default:
		return "Upload"
	}
}

func formatRoles(roles []string) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = "<@&" + r + ">"
	}
	return strings.Join(parts, ", ")
}
