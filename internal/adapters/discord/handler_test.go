package discord

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"yt-notify-bot/internal/adapters/repo"
	"yt-notify-bot/internal/domain"
	"yt-notify-bot/internal/usecase/guilds"
	"yt-notify-bot/internal/usecase/statbot"
)

type sentFile struct {
	name string
	data string
}

type fakeResponder struct {
	mu       sync.Mutex
	deferred []discordgo.InteractionResponseType
	flags    []discordgo.MessageFlags
	edits    []string
	files    []sentFile
	messages []*discordgo.MessageSend
}

func (f *fakeResponder) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deferred = append(f.deferred, resp.Type)
	if resp.Data != nil {
		f.flags = append(f.flags, resp.Data.Flags)
		if resp.Data.Content != "" {
			f.edits = append(f.edits, resp.Data.Content)
		}
	}
	return nil
}

func (f *fakeResponder) InteractionResponseEdit(_ *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if edit.Content != nil {
		f.edits = append(f.edits, *edit.Content)
	}
	for _, file := range edit.Files {
		data, _ := io.ReadAll(file.Reader)
		f.files = append(f.files, sentFile{name: file.Name, data: string(data)})
	}
	return &discordgo.Message{}, nil
}

func (f *fakeResponder) ChannelMessageSendComplex(_ string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, data)
	for _, file := range data.Files {
		raw, _ := io.ReadAll(file.Reader)
		f.files = append(f.files, sentFile{name: file.Name, data: string(raw)})
	}
	return &discordgo.Message{}, nil
}

func (f *fakeResponder) lastEdit(t *testing.T) string {
	t.Helper()
	if len(f.edits) == 0 {
		t.Fatalf("ожидали ответ на команду")
	}
	return f.edits[len(f.edits)-1]
}

func command(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:      "I1",
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: "G1",
		Data:    discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
	}}
}

func sub(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Type: discordgo.ApplicationCommandOptionSubCommand, Name: name, Options: opts}
}

func group(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Type: discordgo.ApplicationCommandOptionSubCommandGroup, Name: name, Options: opts}
}

func str(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Type: discordgo.ApplicationCommandOptionString, Name: name, Value: value}
}

func channelOpt(value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Type: discordgo.ApplicationCommandOptionChannel, Name: optDiscord, Value: value}
}

func boolean(name string, value bool) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Type: discordgo.ApplicationCommandOptionBoolean, Name: name, Value: value}
}

func integer(name string, value float64) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Type: discordgo.ApplicationCommandOptionInteger, Name: name, Value: value}
}

type fixture struct {
	handler *Handler
	store   *repo.Memory
	queries chan string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	queries := make(chan string, 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.RequestURI()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[1,2]}`))
	}))
	t.Cleanup(srv.Close)

	client, err := statbot.NewClient(srv.URL, "secret", statbot.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	store := repo.NewMemory()
	h := NewHandler(guilds.NewService(store, zerolog.Nop()), statbot.NewService(client, 0, zerolog.Nop()), "!", zerolog.Nop())
	return &fixture{handler: h, store: store, queries: queries}
}

func (f *fixture) run(t *testing.T, i *discordgo.InteractionCreate) *fakeResponder {
	t.Helper()
	r := &fakeResponder{}
	f.handler.HandleInteraction(context.Background(), r, i)
	return r
}

func TestChannelAddAndList(t *testing.T) {
	f := newFixture(t)

	r := f.run(t, command("channel", sub("add", str(optID, "UC1"), channelOpt("D1"))))
	if len(r.deferred) != 1 || r.deferred[0] != discordgo.InteractionResponseDeferredChannelMessageWithSource {
		t.Fatalf("ожидали отложенный ответ")
	}
	if r.flags[0] != discordgo.MessageFlagsEphemeral {
		t.Fatalf("настройки должны отвечать скрытым сообщением")
	}

	cfg, err := f.store.GetGuildConfig(context.Background(), "G1")
	if err != nil || len(cfg.Channels) != 1 {
		t.Fatalf("ожидали сохранённый канал, получили %+v, %v", cfg, err)
	}
	if cfg.Channels[0].Live.Destination != "D1" || !cfg.Channels[0].Scheduled.Enabled {
		t.Fatalf("новый канал должен получить включённые треки с каналом D1: %+v", cfg.Channels[0])
	}

	r = f.run(t, command("channel", sub("add", str(optID, "UC1"), channelOpt("D1"))))
	if got := r.lastEdit(t); !strings.Contains(got, "already tracked") {
		t.Fatalf("ожидали сообщение о дубликате, получили %q", got)
	}

	r = f.run(t, command("channel", sub("list")))
	if got := r.lastEdit(t); !strings.Contains(got, "`UC1`") || !strings.Contains(got, "<#D1>") {
		t.Fatalf("неожиданный список каналов %q", got)
	}
}

func TestTrackCommands(t *testing.T) {
	f := newFixture(t)
	f.run(t, command("channel", sub("add", str(optID, "UC1"), channelOpt("D1"))))

	f.run(t, command("live", sub("enable", str(optID, "UC1"), boolean(optEnabled, false))))
	f.run(t, command("scheduled", sub("channel", str(optID, "UC1"), channelOpt("D9"))))
	f.run(t, command("upload", sub("roles", str(optID, "UC1"), str(optRoles, "<@&R1>, R2, R1"))))

	cfg, _ := f.store.GetGuildConfig(context.Background(), "G1")
	ch := cfg.Channels[0]
	if ch.Live.Enabled {
		t.Fatalf("ожидали выключенный трек live")
	}
	if ch.Scheduled.Destination != "D9" {
		t.Fatalf("ожидали канал D9 для scheduled, получили %q", ch.Scheduled.Destination)
	}
	if strings.Join(ch.Upload.MentionTargets, ",") != "R1,R2" {
		t.Fatalf("неожиданные роли %v", ch.Upload.MentionTargets)
	}

	r := f.run(t, command("live", sub("enable", str(optID, "UC404"), boolean(optEnabled, true))))
	if got := r.lastEdit(t); got != "Channel not found." {
		t.Fatalf("ожидали Channel not found., получили %q", got)
	}
}

func TestIntervalCommands(t *testing.T) {
	f := newFixture(t)

	f.run(t, command("interval", sub("set", integer(optSeconds, 10))))
	cfg, _ := f.store.GetGuildConfig(context.Background(), "G1")
	if cfg.PollIntervalSeconds != guilds.MinPollIntervalSeconds {
		t.Fatalf("ожидали интервал, поднятый до минимума, получили %d", cfg.PollIntervalSeconds)
	}

	f.run(t, command("interval", sub("set", integer(optSeconds, 120))))
	cfg, _ = f.store.GetGuildConfig(context.Background(), "G1")
	if cfg.PollIntervalSeconds != 120 {
		t.Fatalf("ожидали 120, получили %d", cfg.PollIntervalSeconds)
	}

	f.run(t, command("interval", sub("unset")))
	cfg, _ = f.store.GetGuildConfig(context.Background(), "G1")
	if cfg.PollInterval() != domain.DefaultPollIntervalSeconds*time.Second {
		t.Fatalf("ожидали интервал по умолчанию, получили %v", cfg.PollInterval())
	}
}

func TestStatbotSlashCommand(t *testing.T) {
	f := newFixture(t)

	r := f.run(t, command(commandStat, group("messages", sub("series",
		str("interval", "day"),
		integer("limit", 5),
		boolean("bot", false),
		str(optParams, "whitelist_members=1,2 by_channel=true"),
	))))

	if r.flags[0] == discordgo.MessageFlagsEphemeral {
		t.Fatalf("ответ /statbot должен быть видим всем")
	}
	if got := r.lastEdit(t); got != "Here's your Statbot data for `messages/series`" {
		t.Fatalf("неожиданный ответ %q", got)
	}
	if len(r.files) != 1 || r.files[0].name != "messages-series.json" {
		t.Fatalf("ожидали файл messages-series.json, получили %+v", r.files)
	}
	if !strings.Contains(r.files[0].data, "\n  \"data\"") {
		t.Fatalf("ожидали JSON с отступом в два пробела: %q", r.files[0].data)
	}

	query := <-f.queries
	for _, want := range []string{"/v1/guilds/G1/messages?", "interval=day", "limit=5", "bot=false", "whitelist_members=1", "whitelist_members=2", "by_channel=true"} {
		if !strings.Contains(query, want) {
			t.Fatalf("запрос %q не содержит %q", query, want)
		}
	}
}

func TestStatbotAPITestInline(t *testing.T) {
	f := newFixture(t)

	r := f.run(t, command(commandAPI, sub("test", str(optRequest, "messages/sums"))))
	if got := r.lastEdit(t); !strings.HasPrefix(got, "```json\n") {
		t.Fatalf("ожидали JSON в сообщении, получили %q", got)
	}
	if query := <-f.queries; query != "/v1/guilds/G1/messages/sums" {
		t.Fatalf("неожиданный путь %q", query)
	}
}

func TestInteractionOutsideGuild(t *testing.T) {
	f := newFixture(t)
	i := command("channel", sub("list"))
	i.GuildID = ""

	r := f.run(t, i)
	if len(r.deferred) != 1 || r.deferred[0] != discordgo.InteractionResponseChannelMessageWithSource {
		t.Fatalf("ожидали немедленный ответ")
	}
	if got := r.lastEdit(t); got != guildOnlyMessage {
		t.Fatalf("неожиданный ответ %q", got)
	}
}

func message(content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "M1",
		ChannelID: "C1",
		GuildID:   "G1",
		Content:   content,
		Author:    &discordgo.User{ID: "U1"},
	}}
}

func TestTextStatbotUsage(t *testing.T) {
	f := newFixture(t)
	r := &fakeResponder{}
	f.handler.HandleMessage(context.Background(), r, message("!statbot messages"))

	if len(r.messages) != 1 || r.messages[0].Content != textUsage {
		t.Fatalf("ожидали подсказку по использованию, получили %+v", r.messages)
	}
}

func TestTextStatbotQuery(t *testing.T) {
	f := newFixture(t)
	r := &fakeResponder{}
	f.handler.HandleMessage(context.Background(), r, message("!statbot voice sums order=desc"))

	if len(r.messages) != 1 || r.messages[0].Content != "Here's your Statbot data for `voice/sums`" {
		t.Fatalf("неожиданный ответ %+v", r.messages)
	}
	if len(r.files) != 1 || r.files[0].name != "voice-sums.json" {
		t.Fatalf("ожидали файл voice-sums.json")
	}
	if query := <-f.queries; query != "/v1/guilds/G1/voice/sums?order=desc" {
		t.Fatalf("неожиданный запрос %q", query)
	}
}

func TestTextStatbotUnknownEndpoint(t *testing.T) {
	f := newFixture(t)
	r := &fakeResponder{}
	f.handler.HandleMessage(context.Background(), r, message("!statbot voice nope"))

	if len(r.messages) != 1 || r.messages[0].Content != "Unknown endpoint for group: voice, sub: nope" {
		t.Fatalf("неожиданный ответ %+v", r.messages)
	}
}

func TestTextIgnoresBotsAndOtherMessages(t *testing.T) {
	f := newFixture(t)
	r := &fakeResponder{}
	bot := message("!statbot voice sums")
	bot.Author.Bot = true
	f.handler.HandleMessage(context.Background(), r, bot)
	f.handler.HandleMessage(context.Background(), r, message("hello there"))

	if len(r.messages) != 0 {
		t.Fatalf("не ожидали ответов, получили %d", len(r.messages))
	}
}

func TestCommandsDefinition(t *testing.T) {
	names := map[string]bool{}
	for _, c := range Commands() {
		names[c.Name] = true
		if c.DefaultMemberPermissions == nil || *c.DefaultMemberPermissions != manageGuild {
			t.Fatalf("команда %s должна требовать право управления сервером", c.Name)
		}
	}
	for _, want := range []string{"channel", "upload", "live", "scheduled", "interval", commandStat, commandAPI} {
		if !names[want] {
			t.Fatalf("нет команды %s", want)
		}
	}

	stat := statbotCommand()
	if len(stat.Options) != len(statbot.Groups()) {
		t.Fatalf("ожидали %d групп, получили %d", len(statbot.Groups()), len(stat.Options))
	}
	for _, g := range stat.Options {
		for _, s := range g.Options {
			if len(s.Options) > 25 {
				t.Fatalf("подкоманда %s/%s превышает лимит параметров Discord", g.Name, s.Name)
			}
		}
	}
}
