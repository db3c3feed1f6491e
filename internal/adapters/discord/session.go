package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"yt-notify-bot/internal/infra/metrics"
)

// NewSession создаёт сессию бота с нужными интентами. Соединение открывает Open.
func NewSession(token string) (*discordgo.Session, error) {
	if token == "" {
		return nil, errors.New("discord token is empty")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent
	return s, nil
}

// Bind подключает обработчик команд к событиям сессии.
func Bind(ctx context.Context, s *discordgo.Session, h *Handler, logger zerolog.Logger) {
	s.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		logger.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("discord: сессия готова")
	})
	s.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		h.HandleInteraction(ctx, s, i)
	})
	s.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		h.HandleMessage(ctx, s, m)
	})
}

// RegisterCommands перезаписывает слэш-команды приложения. Пустой guildID регистрирует их глобально.
func RegisterCommands(s *discordgo.Session, appID, guildID string, logger zerolog.Logger) error {
	if appID == "" && s.State != nil && s.State.User != nil {
		appID = s.State.User.ID
	}
	if appID == "" {
		return errors.New("discord application id is unknown")
	}
	start := time.Now()
	registered, err := s.ApplicationCommandBulkOverwrite(appID, guildID, Commands())
	metrics.ObserveNetworkRequest("discord", "commands_overwrite", "application", start, err)
	if err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	logger.Info().Int("count", len(registered)).Str("scope_guild", guildID).Msg("discord: команды зарегистрированы")
	return nil
}
