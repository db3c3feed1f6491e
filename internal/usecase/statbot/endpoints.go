package statbot

import (
	"fmt"
	"sort"
	"strings"
)

// endpoints сопоставляет group/sub с путём API; %s заменяется на идентификатор гильдии.
var endpoints = map[string]map[string]string{
	"messages": {
		"series":       "/v1/guilds/%s/messages",
		"tops-members": "/v1/guilds/%s/messages/tops/members",
		"sums":         "/v1/guilds/%s/messages/sums",
	},
	"voice": {
		"series":       "/v1/guilds/%s/voice",
		"tops-members": "/v1/guilds/%s/voice/tops/members",
		"sums":         "/v1/guilds/%s/voice/sums",
	},
	"activities": {
		"series": "/v1/guilds/%s/activities",
		"tops":   "/v1/guilds/%s/activities/tops/activities",
	},
	"members": {
		"counts":        "/v1/guilds/%s/counts/members",
		"counts-series": "/v1/guilds/%s/counts/members/series",
	},
	"channels": {
		"counts-series": "/v1/guilds/%s/counts/channels/series",
	},
	"statuses": {
		"series": "/v1/guilds/%s/statuses/series",
	},
}

// Options перечисляет параметры запроса в порядке добавления.
var Options = []string{
	"start", "end", "timezone_offset", "interval", "limit", "order", "bot", "stats",
	"whitelist_members", "blacklist_members", "whitelist_roles", "blacklist_roles",
	"whitelist_channels", "blacklist_channels", "whitelist_voice_channels", "blacklist_voice_channels",
	"by_channel", "by_member", "by_flag", "voice_states", "by_state",
	"whitelist_activities", "blacklist_activities", "by_activity",
	"page_size", "page", "select", "full",
}

// IsListOption сообщает, передаётся ли параметр списком через запятую.
func IsListOption(name string) bool {
	if name == "voice_states" || name == "select" {
		return true
	}
	return strings.HasSuffix(name, "s") && (strings.HasPrefix(name, "whitelist_") || strings.HasPrefix(name, "blacklist_"))
}

// EndpointPath возвращает путь API для group/sub.
func EndpointPath(group, sub, guildID string) (string, error) {
	tpl, ok := endpoints[group][sub]
	if !ok {
		return "", &UnknownEndpointError{Group: group, Sub: sub}
	}
	return fmt.Sprintf(tpl, guildID), nil
}

// Groups возвращает известные группы в алфавитном порядке.
func Groups() []string {
	out := make([]string, 0, len(endpoints))
	for g := range endpoints {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Subs возвращает подкоманды группы в алфавитном порядке.
func Subs(group string) []string {
	subs := endpoints[group]
	out := make([]string, 0, len(subs))
	for s := range subs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
