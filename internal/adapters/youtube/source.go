package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"yt-notify-bot/internal/domain"
	"yt-notify-bot/internal/infra/metrics"
)

const (
	// DefaultTimeout ограничивает один запрос к Data API.
	DefaultTimeout = 10 * time.Second
	// DefaultRPS задаёт частоту запросов по умолчанию.
	DefaultRPS = 5.0
)

// Source ищет последние элементы канала через YouTube Data API v3.
type Source struct {
	api     *yt.Service
	limiter *rate.Limiter
	timeout time.Duration
	log     zerolog.Logger
}

var _ domain.VideoSource = (*Source)(nil)

// Option настраивает Source.
type Option func(*settings)

type settings struct {
	timeout    time.Duration
	rps        float64
	endpoint   string
	httpClient *http.Client
}

// WithTimeout задаёт таймаут одного запроса.
func WithTimeout(timeout time.Duration) Option {
	return func(s *settings) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithRPS задаёт ограничение частоты запросов. Значение <= 0 отключает ограничение.
func WithRPS(rps float64) Option {
	return func(s *settings) {
		s.rps = rps
	}
}

// WithEndpoint переопределяет адрес API.
func WithEndpoint(endpoint string) Option {
	return func(s *settings) {
		s.endpoint = endpoint
	}
}

// WithHTTPClient задаёт HTTP клиент.
func WithHTTPClient(client *http.Client) Option {
	return func(s *settings) {
		s.httpClient = client
	}
}

// NewSource создаёт клиента Data API.
func NewSource(ctx context.Context, apiKey string, logger zerolog.Logger, opts ...Option) (*Source, error) {
	if apiKey == "" {
		return nil, errors.New("youtube api key is required")
	}
	cfg := settings{timeout: DefaultTimeout, rps: DefaultRPS}
	for _, opt := range opts {
		opt(&cfg)
	}

	clientOpts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if cfg.endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.endpoint))
	}
	if cfg.httpClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(cfg.httpClient))
	}
	api, err := yt.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.rps > 0 {
		burst := int(cfg.rps)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.rps), burst)
	}

	return &Source{api: api, limiter: limiter, timeout: cfg.timeout, log: logger}, nil
}

// FetchLatest возвращает самый новый элемент канала или nil.
// Ошибки, таймауты и пустые ответы сводятся к nil.
func (s *Source) FetchLatest(ctx context.Context, channelID string, track domain.Track) *domain.Item {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	item, err := s.fetch(ctx, channelID, track)
	if err != nil {
		reason := failureReason(err)
		metrics.YouTubeFetchFailures.WithLabelValues(string(track), reason).Inc()
		s.log.Warn().Err(err).
			Str("kind", string(track)).
			Str("channel_id", channelID).
			Str("reason", reason).
			Msg("youtube: не удалось получить элемент")
		return nil
	}
	return item
}

func (s *Source) fetch(ctx context.Context, channelID string, track domain.Track) (*domain.Item, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	call := s.api.Search.List([]string{"snippet"}).
		ChannelId(channelID).
		Order("date").
		MaxResults(1).
		Type("video")
	switch track {
	case domain.TrackLive:
		call = call.EventType("live")
	case domain.TrackScheduled:
		call = call.EventType("upcoming")
	}

	start := time.Now()
	resp, err := call.Context(ctx).Do()
	metrics.ObserveNetworkRequest("youtube", "search_"+string(track), "youtube", start, err)
	if err != nil {
		return nil, err
	}

	for _, result := range resp.Items {
		if result == nil || result.Id == nil || result.Id.VideoId == "" {
			continue
		}
		return toItem(channelID, result), nil
	}
	return nil, nil
}

func toItem(channelID string, result *yt.SearchResult) *domain.Item {
	item := &domain.Item{ID: result.Id.VideoId, ChannelID: channelID}
	if sn := result.Snippet; sn != nil {
		item.Title = sn.Title
		item.ChannelTitle = sn.ChannelTitle
		if sn.ChannelId != "" {
			item.ChannelID = sn.ChannelId
		}
		if ts, err := time.Parse(time.RFC3339, sn.PublishedAt); err == nil {
			item.PublishedAt = ts
		}
		item.ThumbnailURL = thumbnail(sn.Thumbnails)
	}
	return item
}

func thumbnail(th *yt.ThumbnailDetails) string {
	if th == nil {
		return ""
	}
	for _, t := range []*yt.Thumbnail{th.Maxres, th.High, th.Medium, th.Default} {
		if t != nil && t.Url != "" {
			return t.Url
		}
	}
	return ""
}

func failureReason(err error) string {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden {
		return "quota"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}
