package statbot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// inlineLimit ограничивает длину JSON, который показывается прямо в сообщении.
const inlineLimit = 500

// Request описывает запрос group/sub с параметрами пользователя.
type Request struct {
	Group   string
	Sub     string
	GuildID string
	// Options содержит сырые значения параметров по имени.
	Options map[string]string
}

// Attachment описывает файл, прикладываемый к ответу.
type Attachment struct {
	Name string
	Data []byte
}

// Reply содержит готовый ответ для Discord.
type Reply struct {
	Content string
	File    *Attachment
}

// Service проксирует команды в Statbot API.
type Service struct {
	client *Client
	log    zerolog.Logger
	pause  time.Duration
}

// NewService создаёт сервис. pause задаёт задержку между запросами полной проверки.
func NewService(client *Client, pause time.Duration, logger zerolog.Logger) *Service {
	return &Service{client: client, log: logger, pause: pause}
}

// BuildQuery формирует параметры запроса. Списочные параметры разбиваются по запятой
// и повторяются, остальные передаются как есть без пробелов по краям.
func BuildQuery(options map[string]string) url.Values {
	params := url.Values{}
	for _, name := range Options {
		raw, ok := options[name]
		if !ok {
			continue
		}
		if IsListOption(name) {
			for _, item := range strings.Split(raw, ",") {
				if item = strings.TrimSpace(item); item != "" {
					params.Add(name, item)
				}
			}
			continue
		}
		params.Add(name, strings.TrimSpace(raw))
	}
	return params
}

// ParseKeyValues разбирает аргументы вида key=value; значение может содержать '='.
func ParseKeyValues(args []string) map[string]string {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, found := strings.Cut(arg, "=")
		if key == "" || !found || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

// Query выполняет запрос group/sub и возвращает JSON-вложение.
func (s *Service) Query(ctx context.Context, req Request) (Reply, error) {
	path, err := EndpointPath(req.Group, req.Sub, req.GuildID)
	if err != nil {
		return Reply{}, err
	}
	query := BuildQuery(req.Options)
	s.log.Info().Str("guild_id", req.GuildID).Str("path", path).Str("query", query.Encode()).Msg("statbot: запрос к API")

	body, err := s.client.Get(ctx, path, query, req.Group+"/"+req.Sub)
	if err != nil {
		return Reply{}, err
	}
	pretty, err := prettyJSON(body)
	if err != nil {
		return Reply{}, fmt.Errorf("decode statbot response: %w", err)
	}
	return Reply{
		Content: fmt.Sprintf("Here's your Statbot data for `%s/%s`", req.Group, req.Sub),
		File:    &Attachment{Name: fmt.Sprintf("%s-%s.json", req.Group, req.Sub), Data: pretty},
	}, nil
}

// RunRaw выполняет произвольный запрос: полный URL или путь относительно /v1/guilds/{guild}/.
func (s *Service) RunRaw(ctx context.Context, request, guildID string) (Reply, error) {
	request = strings.TrimSpace(request)
	target := request
	if !strings.HasPrefix(request, "http://") && !strings.HasPrefix(request, "https://") {
		target = fmt.Sprintf("/v1/guilds/%s/%s", guildID, strings.TrimLeft(request, "/"))
	}
	body, err := s.client.Get(ctx, target, nil, "raw")
	if err != nil {
		return Reply{}, err
	}
	pretty, err := prettyJSON(body)
	if err != nil {
		pretty = body
	}
	if len(pretty) > inlineLimit {
		return Reply{
			Content: "Response too long, sending as file:",
			File:    &Attachment{Name: "statbot-response.json", Data: pretty},
		}, nil
	}
	return Reply{Content: "```json\n" + string(pretty) + "\n```"}, nil
}

// FullCheckReport описывает итог полной проверки.
type FullCheckReport struct {
	Total     int
	Succeeded int
	Failed    []string
}

// Message возвращает итоговый текст проверки.
func (r FullCheckReport) Message() string {
	failed := "None"
	if len(r.Failed) > 0 {
		failed = strings.Join(r.Failed, ", ")
	}
	return fmt.Sprintf("Finished running %d requests. Failed requests: %s", r.Succeeded, failed)
}

// ProgressMessage возвращает текст промежуточного статуса.
func ProgressMessage(index, total int) string {
	return fmt.Sprintf("Running request %d of %d...", index+1, total)
}

// FullCheckRequests возвращает набор диагностических запросов для гильдии.
func FullCheckRequests(guildID string) []string {
	g := "/v1/guilds/" + guildID
	return []string{
		g + "/messages/series",
		g + "/messages/series?by_member=true&by_channel=true&by_flag=true",
		g + "/messages/series?interval=hour&order=asc",
		g + "/voice/series",
		g + "/voice/series?by_member=true&by_channel=true&by_state=true",
		g + "/voice/series?voice_states[]=self_mute",
		g + "/activities/series",
		g + "/activities/series?by_member=true&by_activity=true",
		g + "/membercounts/series",
		g + "/membercounts/series?interval=week&order=desc",
		g + "/statuses/series",
		g + "/statuses/series?interval=month&order=asc",
		g + "/counts/members/series?stats[]=text&stats[]=voice",
		g + "/counts/channels/series?stats[]=text&stats[]=voice",
		g + "/messages/sums",
		g + "/voice/sums",
		g + "/voice/sums?voice_states[]=afk",
		g + "/counts/members",
		g + "/channels",
		"/v1/activities",
		g + "/activities/tops/activities",
		g + "/activities/tops/activities?page=1&page_size=50",
		g + "/messages/tops/members",
		g + "/messages/tops/members?full=true",
		g + "/messages/tops/channels",
		g + "/messages/tops/channels?full=true",
		g + "/voice/tops/members",
		g + "/voice/tops/members?full=true",
		g + "/voice/tops/members?voice_states[]=server_mute",
		g + "/voice/tops/channels",
		g + "/voice/tops/channels?full=true",
	}
}

// RunFullCheck последовательно выполняет диагностические запросы с паузой между ними.
// progress вызывается перед каждым запросом.
func (s *Service) RunFullCheck(ctx context.Context, guildID string, progress func(index, total int)) (FullCheckReport, error) {
	requests := FullCheckRequests(guildID)
	report := FullCheckReport{Total: len(requests)}
	for i, req := range requests {
		if progress != nil {
			progress(i, len(requests))
		}
		if _, err := s.client.Get(ctx, req, nil, "full_check"); err != nil {
			s.log.Warn().Err(err).Str("request", req).Msg("statbot: запрос полной проверки не удался")
			report.Failed = append(report.Failed, s.client.BaseURL()+req)
		} else {
			report.Succeeded++
		}
		if i == len(requests)-1 || s.pause <= 0 {
			continue
		}
		timer := time.NewTimer(s.pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return report, ctx.Err()
		case <-timer.C:
		}
	}
	return report, nil
}

func prettyJSON(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(body), "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
