package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"yt-notify-bot/internal/domain"
	"yt-notify-bot/internal/infra/metrics"
)

const (
	// DefaultBaseInterval задаёт паузу между циклами в расчёте на одну гильдию.
	DefaultBaseInterval = 30 * time.Second
	// DefaultRetryInterval задаёт паузу после ошибки получения списка гильдий.
	DefaultRetryInterval = time.Minute
)

// Config задаёт ритм планировщика.
type Config struct {
	BaseInterval  time.Duration
	RetryInterval time.Duration
	// Concurrency ограничивает число параллельных проверок каналов; 1 означает последовательную проверку.
	Concurrency int
}

func (c Config) withDefaults() Config {
	if c.BaseInterval <= 0 {
		c.BaseInterval = DefaultBaseInterval
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	return c
}

// CycleDelay растягивает паузу пропорционально числу гильдий.
func CycleDelay(base time.Duration, guildCount int) time.Duration {
	if guildCount < 1 {
		guildCount = 1
	}
	return base * time.Duration(guildCount)
}

// Scheduler периодически проверяет YouTube-каналы всех гильдий.
type Scheduler struct {
	store  domain.ConfigStore
	source domain.VideoSource
	sink   domain.DeliverySink
	engine *Engine
	guard  *Guard
	cfg    Config
	log    zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	lastScan map[string]time.Time
}

// NewScheduler создаёт планировщик.
func NewScheduler(store domain.ConfigStore, source domain.VideoSource, sink domain.DeliverySink, guard *Guard, cfg Config, logger zerolog.Logger) *Scheduler {
	if guard == nil {
		guard = NewGuard()
	}
	return &Scheduler{
		store:    store,
		source:   source,
		sink:     sink,
		engine:   NewEngine(store),
		guard:    guard,
		cfg:      cfg.withDefaults(),
		log:      logger,
		now:      time.Now,
		lastScan: make(map[string]time.Time),
	}
}

// Run выполняет циклы проверки до отмены контекста.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info().Dur("base_interval", s.cfg.BaseInterval).Int("concurrency", s.cfg.Concurrency).Msg("notifier: планировщик запущен")
	for {
		delay := s.RunCycle(ctx)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info().Msg("notifier: планировщик остановлен")
			return
		case <-timer.C:
		}
	}
}

// RunCycle выполняет один проход по гильдиям и возвращает паузу до следующего.
func (s *Scheduler) RunCycle(ctx context.Context) time.Duration {
	start := time.Now()
	guilds, err := s.store.GetAllGuildConfigs(ctx)
	if err != nil {
		metrics.PollCycleErrors.Inc()
		s.log.Error().Err(err).Dur("retry_in", s.cfg.RetryInterval).Msg("notifier: не удалось получить список гильдий")
		return s.cfg.RetryInterval
	}
	delay := CycleDelay(s.cfg.BaseInterval, len(guilds))
	metrics.PollGuilds.Set(float64(len(guilds)))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	checked := 0
	for _, guild := range guilds {
		if len(guild.Channels) == 0 || !s.due(guild) {
			continue
		}
		for _, ch := range guild.Channels {
			guildID, channel := guild.ID, ch
			checked++
			g.Go(func() error {
				s.checkChannel(ctx, guildID, channel)
				return nil
			})
		}
	}
	_ = g.Wait()

	metrics.PollCycleSeconds.Observe(time.Since(start).Seconds())
	s.log.Debug().Int("guilds", len(guilds)).Int("channels", checked).Dur("next_in", delay).Msg("notifier: цикл проверки завершён")
	return delay
}

// due отмечает скан гильдии, если её собственный интервал уже прошёл.
func (s *Scheduler) due(guild domain.GuildConfig) bool {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastScan[guild.ID]; ok && now.Sub(last) < guild.PollInterval() {
		return false
	}
	s.lastScan[guild.ID] = now
	return true
}

func (s *Scheduler) checkChannel(ctx context.Context, guildID string, ch domain.ChannelConfig) {
	chLog := s.log.With().Str("guild_id", guildID).Str("channel_id", ch.ChannelID).Logger()
	if !ch.Upload.Enabled && !ch.Live.Enabled && !ch.Scheduled.Enabled {
		return
	}
	if !s.guard.TryAcquire(guildID, ch.ChannelID) {
		metrics.GuardContention.Inc()
		chLog.Debug().Msg("notifier: проверка канала уже выполняется, пропускаем")
		return
	}
	defer s.guard.Release(guildID, ch.ChannelID)
	defer func() {
		if r := recover(); r != nil {
			metrics.ChannelCheckErrors.Inc()
			chLog.Error().Err(fmt.Errorf("panic: %v", r)).Msg("notifier: сбой проверки канала")
		}
	}()

	for _, track := range domain.Tracks {
		trackCfg := ch.Track(track)
		if !trackCfg.Enabled {
			continue
		}
		item := s.source.FetchLatest(ctx, ch.ChannelID, track)
		decision, err := s.engine.Evaluate(ctx, guildID, ch.ChannelID, track, item)
		if err != nil {
			metrics.ChannelCheckErrors.Inc()
			chLog.Error().Err(err).Str("track", string(track)).Msg("notifier: ошибка проверки канала")
			return
		}
		if !decision.Notify {
			continue
		}
		s.emit(ctx, chLog, guildID, ch.ChannelID, trackCfg, decision, *item)
	}
}

func (s *Scheduler) emit(ctx context.Context, chLog zerolog.Logger, guildID, channelID string, trackCfg domain.TrackConfig, decision Decision, item domain.Item) {
	evLog := chLog.With().Str("track", string(decision.Track)).Str("item_id", decision.ItemID).Logger()
	if trackCfg.Destination == "" {
		metrics.NotificationsDropped.WithLabelValues("no_destination").Inc()
		evLog.Warn().Msg("notifier: не задан канал доставки, уведомление пропущено")
		return
	}
	mentions := make([]string, len(trackCfg.MentionTargets))
	copy(mentions, trackCfg.MentionTargets)
	s.sink.Notify(ctx, domain.Notification{
		GuildID:        guildID,
		ChannelID:      channelID,
		Track:          decision.Track,
		ItemID:         decision.ItemID,
		Destination:    trackCfg.Destination,
		MentionTargets: mentions,
		Item:           item,
	})
	metrics.NotificationsEmitted.WithLabelValues(string(decision.Track)).Inc()
	evLog.Info().Msg("notifier: найдено новое событие")
}
