package discord

import (
	"github.com/bwmarrin/discordgo"

	"yt-notify-bot/internal/domain"
	"yt-notify-bot/internal/usecase/statbot"
)

// Имена параметров слэш-команд.
const (
	optID       = "id"
	optDiscord  = "discord"
	optEnabled  = "enabled"
	optRoles    = "roles"
	optSeconds  = "seconds"
	optRequest  = "request"
	optParams   = "params"
	commandAPI  = "statbot-api"
	commandStat = "statbot"
)

// slashStatbotOptions перечисляет параметры, которые /statbot принимает отдельными полями.
// Остальные передаются строкой params в виде key=value, чтобы не превысить лимит Discord в 25 полей.
var slashStatbotOptions = []struct {
	name        string
	kind        discordgo.ApplicationCommandOptionType
	description string
	choices     []string
}{
	{name: "start", kind: discordgo.ApplicationCommandOptionInteger, description: "Start timestamp (ms)"},
	{name: "end", kind: discordgo.ApplicationCommandOptionInteger, description: "End timestamp (ms)"},
	{name: "timezone_offset", kind: discordgo.ApplicationCommandOptionInteger, description: "Timezone offset in hours"},
	{name: "interval", kind: discordgo.ApplicationCommandOptionString, description: "Interval", choices: []string{"hour", "day", "week", "month"}},
	{name: "limit", kind: discordgo.ApplicationCommandOptionInteger, description: "Max number of results"},
	{name: "order", kind: discordgo.ApplicationCommandOptionString, description: "Sort order", choices: []string{"asc", "desc"}},
	{name: "bot", kind: discordgo.ApplicationCommandOptionBoolean, description: "Include bots"},
	{name: "stats", kind: discordgo.ApplicationCommandOptionString, description: "Stats to include"},
}

var manageGuild int64 = discordgo.PermissionManageServer

// Commands возвращает описание всех слэш-команд бота.
func Commands() []*discordgo.ApplicationCommand {
	cmds := []*discordgo.ApplicationCommand{channelCommand(), intervalCommand()}
	for _, track := range domain.Tracks {
		cmds = append(cmds, trackCommand(track))
	}
	cmds = append(cmds, statbotCommand(), statbotAPICommand())
	for _, c := range cmds {
		c.DefaultMemberPermissions = &manageGuild
	}
	return cmds
}

func stringOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        name,
		Description: description,
		Required:    required,
	}
}

func channelOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionChannel,
		Name:         optDiscord,
		Description:  "Discord channel for notifications",
		Required:     true,
		ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews},
	}
}

func subcommand(name, description string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        name,
		Description: description,
		Options:     opts,
	}
}

func channelCommand() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "channel",
		Description: "Manage tracked YouTube channels",
		Options: []*discordgo.ApplicationCommandOption{
			subcommand("add", "Add a YouTube channel",
				stringOption(optID, "YouTube channel ID", true), channelOption()),
			subcommand("remove", "Remove a tracked channel",
				stringOption(optID, "YouTube channel ID", true)),
			subcommand("clear", "Clear all tracked channels"),
			subcommand("list", "List tracked channels"),
		},
	}
}

func trackCommand(track domain.Track) *discordgo.ApplicationCommand {
	noun := trackNoun(track)
	return &discordgo.ApplicationCommand{
		Name:        string(track),
		Description: "Configure " + noun + " alerts for a YouTube channel",
		Options: []*discordgo.ApplicationCommandOption{
			subcommand("enable", "Enable/disable "+noun+" alerts",
				stringOption(optID, "YouTube channel ID", true),
				&discordgo.ApplicationCommandOption{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        optEnabled,
					Description: "Enable or disable",
					Required:    true,
				}),
			subcommand("channel", "Set Discord channel for "+noun+" alerts",
				stringOption(optID, "YouTube channel ID", true), channelOption()),
			subcommand("roles", "Set mention roles for "+noun+" alerts",
				stringOption(optID, "YouTube channel ID", true),
				stringOption(optRoles, "Comma separated role IDs or mentions, empty to clear", false)),
		},
	}
}

func trackNoun(track domain.Track) string {
	switch track {
	case domain.TrackLive:
		return "live"
	case domain.TrackScheduled:
		return "scheduled stream"
	default:
		return "upload"
	}
}

func intervalCommand() *discordgo.ApplicationCommand {
	minSeconds := float64(domain.DefaultPollIntervalSeconds)
	return &discordgo.ApplicationCommand{
		Name:        "interval",
		Description: "Configure how often YouTube channels are checked",
		Options: []*discordgo.ApplicationCommandOption{
			subcommand("set", "Set the check interval",
				&discordgo.ApplicationCommandOption{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        optSeconds,
					Description: "Interval in seconds",
					Required:    true,
					MinValue:    &minSeconds,
				}),
			subcommand("unset", "Reset the check interval to default"),
		},
	}
}

func statbotCommand() *discordgo.ApplicationCommand {
	groups := make([]*discordgo.ApplicationCommandOption, 0, len(statbot.Groups()))
	for _, group := range statbot.Groups() {
		subs := make([]*discordgo.ApplicationCommandOption, 0)
		for _, sub := range statbot.Subs(group) {
			subs = append(subs, subcommand(sub, "Get "+group+" "+sub+" data", statbotQueryOptions()...))
		}
		groups = append(groups, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
			Name:        group,
			Description: "Query " + group + " stats",
			Options:     subs,
		})
	}
	return &discordgo.ApplicationCommand{
		Name:        commandStat,
		Description: "Query Statbot API data",
		Options:     groups,
	}
}

func statbotQueryOptions() []*discordgo.ApplicationCommandOption {
	opts := make([]*discordgo.ApplicationCommandOption, 0, len(slashStatbotOptions)+1)
	for _, o := range slashStatbotOptions {
		opt := &discordgo.ApplicationCommandOption{Type: o.kind, Name: o.name, Description: o.description}
		for _, c := range o.choices {
			opt.Choices = append(opt.Choices, &discordgo.ApplicationCommandOptionChoice{Name: c, Value: c})
		}
		opts = append(opts, opt)
	}
	return append(opts, stringOption(optParams, "Extra parameters as key=value separated by spaces", false))
}

func statbotAPICommand() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        commandAPI,
		Description: "Run raw Statbot API requests",
		Options: []*discordgo.ApplicationCommandOption{
			subcommand("test", "Run a single request",
				stringOption(optRequest, "Path relative to this guild or a full URL", true)),
			subcommand("full", "Run the full diagnostic request list"),
		},
	}
}
