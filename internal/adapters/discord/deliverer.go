package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"yt-notify-bot/internal/domain"
	"yt-notify-bot/internal/infra/metrics"
)

// RESTClient описывает часть REST API Discord, нужную для доставки уведомлений.
type RESTClient interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Deliverer отправляет уведомления в текстовые каналы Discord.
type Deliverer struct {
	api   RESTClient
	state *discordgo.State
	log   zerolog.Logger
}

var _ domain.Deliverer = (*Deliverer)(nil)

// NewDeliverer создаёт отправителя. state может быть nil, тогда всё читается через REST.
func NewDeliverer(api RESTClient, state *discordgo.State, logger zerolog.Logger) *Deliverer {
	return &Deliverer{api: api, state: state, log: logger}
}

// NewSessionDeliverer создаёт отправителя поверх сессии бота.
func NewSessionDeliverer(s *discordgo.Session, logger zerolog.Logger) *Deliverer {
	return NewDeliverer(s, s.State, logger)
}

// Deliver проверяет канал и роли и отправляет сообщение.
// Неразрешимый канал или роль дают ошибку, совместимую с domain.ErrUndeliverable.
func (d *Deliverer) Deliver(ctx context.Context, n domain.Notification) error {
	channel, err := d.resolveChannel(ctx, n.Destination)
	if err != nil {
		return err
	}
	if channel.GuildID != "" && channel.GuildID != n.GuildID {
		return fmt.Errorf("канал %s принадлежит другой гильдии: %w", n.Destination, domain.ErrUndeliverable)
	}
	if err := d.checkRoles(ctx, n.GuildID, n.MentionTargets); err != nil {
		return err
	}

	parts := SplitMessage(FormatNotification(n), MessageLimit)
	for i, part := range parts {
		msg := &discordgo.MessageSend{
			Content:         part,
			AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}},
		}
		if i == 0 && len(n.MentionTargets) > 0 {
			msg.AllowedMentions.Roles = append([]string(nil), n.MentionTargets...)
		}
		start := time.Now()
		_, err := d.api.ChannelMessageSendComplex(channel.ID, msg, discordgo.WithContext(ctx))
		metrics.ObserveNetworkRequest("discord", "channel_message_send", "channel", start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			if isPermanent(err) {
				return fmt.Errorf("отправка в канал %s: %v: %w", channel.ID, err, domain.ErrUndeliverable)
			}
			return fmt.Errorf("отправка в канал %s: %w", channel.ID, err)
		}
	}

	metrics.NotificationsDelivered.WithLabelValues(string(n.Track)).Inc()
	d.log.Info().
		Str("guild", n.GuildID).
		Str("channel", n.ChannelID).
		Str("track", string(n.Track)).
		Str("item", n.ItemID).
		Str("destination", channel.ID).
		Msg("discord: уведомление отправлено")
	return nil
}

func (d *Deliverer) resolveChannel(ctx context.Context, id string) (*discordgo.Channel, error) {
	if id == "" {
		return nil, fmt.Errorf("канал доставки не задан: %w", domain.ErrUndeliverable)
	}
	if d.state != nil {
		if ch, err := d.state.Channel(id); err == nil {
			return ch, nil
		}
	}
	start := time.Now()
	ch, err := d.api.Channel(id, discordgo.WithContext(ctx))
	metrics.ObserveNetworkRequest("discord", "channel_get", "channel", start, err)
	if err != nil {
		if isPermanent(err) {
			return nil, fmt.Errorf("канал %s недоступен: %v: %w", id, err, domain.ErrUndeliverable)
		}
		return nil, fmt.Errorf("получение канала %s: %w", id, err)
	}
	return ch, nil
}

func (d *Deliverer) checkRoles(ctx context.Context, guildID string, roles []string) error {
	if len(roles) == 0 {
		return nil
	}
	known := make(map[string]struct{})
	if d.state != nil {
		if g, err := d.state.Guild(guildID); err == nil {
			for _, r := range g.Roles {
				known[r.ID] = struct{}{}
			}
		}
	}
	if !hasAll(known, roles) {
		start := time.Now()
		list, err := d.api.GuildRoles(guildID, discordgo.WithContext(ctx))
		metrics.ObserveNetworkRequest("discord", "guild_roles", "guild", start, err)
		if err != nil {
			if isPermanent(err) {
				return fmt.Errorf("роли гильдии %s недоступны: %v: %w", guildID, err, domain.ErrUndeliverable)
			}
			return fmt.Errorf("получение ролей гильдии %s: %w", guildID, err)
		}
		for _, r := range list {
			known[r.ID] = struct{}{}
		}
	}
	for _, id := range roles {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("роль %s не найдена в гильдии %s: %w", id, guildID, domain.ErrUndeliverable)
		}
	}
	return nil
}

func hasAll(known map[string]struct{}, ids []string) bool {
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return false
		}
	}
	return true
}

func isPermanent(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Response == nil {
		return false
	}
	switch restErr.Response.StatusCode {
	case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// FormatNotification собирает текст уведомления: упоминания ролей, заголовок и ссылку.
func FormatNotification(n domain.Notification) string {
	var b strings.Builder
	if len(n.MentionTargets) > 0 {
		mentions := make([]string, 0, len(n.MentionTargets))
		for _, id := range n.MentionTargets {
			mentions = append(mentions, "<@&"+id+">")
		}
		b.WriteString(strings.Join(mentions, " "))
		b.WriteString("\n")
	}
	b.WriteString(headline(n))
	b.WriteString("\n")
	b.WriteString(itemURL(n))
	return b.String()
}

func headline(n domain.Notification) string {
	source := n.ChannelID
	if n.Item.ChannelTitle != "" {
		source = n.Item.ChannelTitle
	}
	title := n.Item.Title
	var action string
	switch n.Track {
	case domain.TrackLive:
		action = "is live now"
	case domain.TrackScheduled:
		action = "scheduled a stream"
	default:
		action = "uploaded a new video"
	}
	if title == "" {
		return fmt.Sprintf("**%s** %s", source, action)
	}
	return fmt.Sprintf("**%s** %s: **%s**", source, action, title)
}

func itemURL(n domain.Notification) string {
	if n.Item.ID != "" {
		return n.Item.URL()
	}
	return domain.Item{ID: n.ItemID}.URL()
}
