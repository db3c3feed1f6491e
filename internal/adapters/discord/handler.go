package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"yt-notify-bot/internal/domain"
	"yt-notify-bot/internal/infra/metrics"
	"yt-notify-bot/internal/usecase/guilds"
	"yt-notify-bot/internal/usecase/statbot"
)

const (
	textUsage         = "Usage: `!statbot <group> <sub> [key=value ...]`"
	guildOnlyMessage  = "This command can only be used in a server."
	unknownCommand    = "Unknown command."
	statbotDisabled   = "Statbot API is not configured."
	commandTimeout    = 30 * time.Second
	fullCheckDeadline = 10 * time.Minute
)

// Responder описывает часть сессии Discord, через которую отвечают команды.
type Responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Handler обрабатывает слэш-команды и текстовые команды бота.
type Handler struct {
	guilds  *guilds.Service
	statbot *statbot.Service
	prefix  string
	log     zerolog.Logger
}

// NewHandler создаёт обработчик. statbotUC может быть nil, если ключ Statbot не настроен.
func NewHandler(guildUC *guilds.Service, statbotUC *statbot.Service, prefix string, logger zerolog.Logger) *Handler {
	if prefix == "" {
		prefix = "!"
	}
	return &Handler{guilds: guildUC, statbot: statbotUC, prefix: prefix, log: logger}
}

type reply struct {
	content string
	file    *statbot.Attachment
}

// HandleInteraction обрабатывает слэш-команду.
func (h *Handler) HandleInteraction(ctx context.Context, r Responder, i *discordgo.InteractionCreate) {
	if i == nil || i.Interaction == nil || i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	cmdLog := h.log.With().Str("command", data.Name).Str("guild", i.GuildID).Logger()

	if i.GuildID == "" {
		h.respondNow(r, i.Interaction, guildOnlyMessage, cmdLog)
		return
	}

	var flags discordgo.MessageFlags
	if data.Name != commandStat {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := r.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags},
	})
	if err != nil {
		metrics.ObserveCommand(data.Name, err)
		cmdLog.Error().Err(err).Msg("discord: не удалось подтвердить команду")
		return
	}

	timeout := commandTimeout
	if data.Name == commandAPI {
		timeout = fullCheckDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, cmdErr := h.dispatch(ctx, r, i.Interaction, data)
	metrics.ObserveCommand(data.Name, cmdErr)
	if cmdErr != nil {
		cmdLog.Warn().Err(cmdErr).Msg("discord: команда завершилась ошибкой")
	}
	h.edit(r, i.Interaction, out, cmdLog)
}

func (h *Handler) dispatch(ctx context.Context, r Responder, interaction *discordgo.Interaction, data discordgo.ApplicationCommandInteractionData) (reply, error) {
	sub := firstOption(data.Options)
	if sub == nil {
		return reply{content: unknownCommand}, nil
	}
	guildID := interaction.GuildID
	opts := optionMap(sub.Options)

	switch data.Name {
	case "channel":
		return h.channelCommand(ctx, guildID, sub.Name, opts)
	case "interval":
		return h.intervalCommand(ctx, guildID, sub.Name, opts)
	case commandStat:
		if sub.Type != discordgo.ApplicationCommandOptionSubCommandGroup {
			return reply{content: unknownCommand}, nil
		}
		leaf := firstOption(sub.Options)
		if leaf == nil {
			return reply{content: unknownCommand}, nil
		}
		return h.statbotQuery(ctx, guildID, sub.Name, leaf.Name, statbotOptions(optionMap(leaf.Options)))
	case commandAPI:
		return h.statbotAPI(ctx, r, interaction, sub.Name, opts)
	}
	if track, err := domain.ParseTrack(data.Name); err == nil {
		return h.trackCommand(ctx, guildID, track, sub.Name, opts)
	}
	return reply{content: unknownCommand}, nil
}

func (h *Handler) channelCommand(ctx context.Context, guildID, sub string, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) (reply, error) {
	var res guilds.Result
	switch sub {
	case "add":
		res = h.guilds.AddChannel(ctx, guildID, domain.NewChannelConfig(optString(opts, optID), optString(opts, optDiscord)))
	case "remove":
		res = h.guilds.RemoveChannel(ctx, guildID, optString(opts, optID))
	case "clear":
		res = h.guilds.ClearChannels(ctx, guildID)
	case "list":
		channels, err := h.guilds.GetChannels(ctx, guildID)
		if err != nil {
			return reply{content: "Could not load settings, please try again later."}, err
		}
		return reply{content: FormatChannelList(channels)}, nil
	default:
		return reply{content: unknownCommand}, nil
	}
	return resultReply(res)
}

func (h *Handler) trackCommand(ctx context.Context, guildID string, track domain.Track, sub string, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) (reply, error) {
	channelID := optString(opts, optID)
	var res guilds.Result
	switch sub {
	case "enable":
		res = h.guilds.SetEnabled(ctx, guildID, channelID, track, optBool(opts, optEnabled))
	case "channel":
		res = h.guilds.SetDestination(ctx, guildID, channelID, track, optString(opts, optDiscord))
	case "roles":
		res = h.guilds.SetMentionTargets(ctx, guildID, channelID, track, guilds.ParseRoles(optString(opts, optRoles)))
	default:
		return reply{content: "Unknown option."}, nil
	}
	return resultReply(res)
}

func (h *Handler) intervalCommand(ctx context.Context, guildID, sub string, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) (reply, error) {
	var res guilds.Result
	switch sub {
	case "set":
		seconds, _ := optInt(opts, optSeconds)
		res = h.guilds.SetPollInterval(ctx, guildID, int(seconds))
	case "unset":
		res = h.guilds.UnsetPollInterval(ctx, guildID)
	default:
		return reply{content: unknownCommand}, nil
	}
	return resultReply(res)
}

func resultReply(res guilds.Result) (reply, error) {
	if !res.Success {
		return reply{content: res.Message}, errors.New(res.Message)
	}
	return reply{content: res.Message}, nil
}

func (h *Handler) statbotQuery(ctx context.Context, guildID, group, sub string, options map[string]string) (reply, error) {
	if h.statbot == nil {
		return reply{content: statbotDisabled}, nil
	}
	out, err := h.statbot.Query(ctx, statbot.Request{Group: group, Sub: sub, GuildID: guildID, Options: options})
	if err != nil {
		return reply{content: statbot.UserMessage(err)}, err
	}
	return reply{content: out.Content, file: out.File}, nil
}

func (h *Handler) statbotAPI(ctx context.Context, r Responder, interaction *discordgo.Interaction, sub string, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) (reply, error) {
	if h.statbot == nil {
		return reply{content: statbotDisabled}, nil
	}
	switch sub {
	case "test":
		out, err := h.statbot.RunRaw(ctx, optString(opts, optRequest), interaction.GuildID)
		if err != nil {
			return reply{content: statbot.UserMessage(err)}, err
		}
		return reply{content: out.Content, file: out.File}, nil
	case "full":
		progress := func(index, total int) {
			h.edit(r, interaction, reply{content: statbot.ProgressMessage(index, total)}, h.log)
		}
		report, err := h.statbot.RunFullCheck(ctx, interaction.GuildID, progress)
		if err != nil {
			return reply{content: report.Message()}, err
		}
		return reply{content: report.Message()}, nil
	}
	return reply{content: unknownCommand}, nil
}

// HandleMessage обрабатывает текстовую команду !statbot.
func (h *Handler) HandleMessage(ctx context.Context, r Responder, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	args := strings.Fields(m.Content)
	if len(args) == 0 || args[0] != h.prefix+commandStat {
		return
	}
	msgLog := h.log.With().Str("command", "text_statbot").Str("guild", m.GuildID).Logger()

	var out reply
	var err error
	if len(args) < 3 {
		out = reply{content: textUsage}
	} else {
		ctx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()
		out, err = h.statbotQuery(ctx, m.GuildID, args[1], args[2], statbot.ParseKeyValues(args[3:]))
	}
	metrics.ObserveCommand("text_statbot", err)

	send := &discordgo.MessageSend{
		Content:         out.content,
		Reference:       m.Reference(),
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}},
	}
	if out.file != nil {
		send.Files = []*discordgo.File{toFile(out.file)}
	}
	start := time.Now()
	_, sendErr := r.ChannelMessageSendComplex(m.ChannelID, send, discordgo.WithContext(ctx))
	metrics.ObserveNetworkRequest("discord", "channel_message_send", "channel", start, sendErr)
	if sendErr != nil {
		metrics.BotSendErrors.Inc()
		msgLog.Error().Err(sendErr).Msg("discord: не удалось ответить на сообщение")
	}
}

func (h *Handler) respondNow(r Responder, interaction *discordgo.Interaction, content string, l zerolog.Logger) {
	err := r.InteractionRespond(interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content, Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		l.Error().Err(err).Msg("discord: не удалось ответить на команду")
	}
}

func (h *Handler) edit(r Responder, interaction *discordgo.Interaction, out reply, l zerolog.Logger) {
	content := out.content
	if len([]rune(content)) > MessageLimit {
		content = SplitMessage(content, MessageLimit)[0]
	}
	edit := &discordgo.WebhookEdit{Content: &content}
	if out.file != nil {
		edit.Files = []*discordgo.File{toFile(out.file)}
	}
	start := time.Now()
	_, err := r.InteractionResponseEdit(interaction, edit)
	metrics.ObserveNetworkRequest("discord", "interaction_edit", "interaction", start, err)
	if err != nil {
		metrics.BotSendErrors.Inc()
		l.Error().Err(err).Msg("discord: не удалось обновить ответ на команду")
	}
}

func toFile(a *statbot.Attachment) *discordgo.File {
	return &discordgo.File{Name: a.Name, ContentType: "application/json", Reader: bytes.NewReader(a.Data)}
}

func firstOption(opts []*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	if len(opts) == 0 {
		return nil
	}
	return opts[0]
}

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		out[o.Name] = o
	}
	return out
}

// optString читает строковое значение, в том числе идентификатор канала или роли.
func optString(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	o, ok := opts[name]
	if !ok || o.Value == nil {
		return ""
	}
	return strings.TrimSpace(optionText(o.Value))
}

func optBool(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) bool {
	o, ok := opts[name]
	if !ok {
		return false
	}
	v, _ := o.Value.(bool)
	return v
}

func optInt(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) (int64, bool) {
	o, ok := opts[name]
	if !ok {
		return 0, false
	}
	switch v := o.Value.(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func optionText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// statbotOptions превращает поля /statbot в параметры запроса; params дополняет их парами key=value.
func statbotOptions(opts map[string]*discordgo.ApplicationCommandInteractionDataOption) map[string]string {
	out := statbot.ParseKeyValues(strings.Fields(optString(opts, optParams)))
	for name, o := range opts {
		if name == optParams || o.Value == nil {
			continue
		}
		out[name] = optionText(o.Value)
	}
	return out
}

// FormatChannelList описывает отслеживаемые каналы гильдии.
func FormatChannelList(channels []domain.ChannelConfig) string {
	if len(channels) == 0 {
		return "No channels are tracked."
	}
	var b strings.Builder
	b.WriteString("Tracked channels:")
	for _, ch := range channels {
		fmt.Fprintf(&b, "\n`%s`", ch.ChannelID)
		for _, track := range domain.Tracks {
			cfg := ch.Track(track)
			state := "off"
			if cfg.Enabled {
				state = "on"
			}
			fmt.Fprintf(&b, "\n  %s: %s", track, state)
			if cfg.Destination != "" {
				fmt.Fprintf(&b, " → <#%s>", cfg.Destination)
			}
			if len(cfg.MentionTargets) > 0 {
				mentions := make([]string, 0, len(cfg.MentionTargets))
				for _, id := range cfg.MentionTargets {
					mentions = append(mentions, "<@&"+id+">")
				}
				fmt.Fprintf(&b, " (%s)", strings.Join(mentions, " "))
			}
		}
	}
	return b.String()
}
