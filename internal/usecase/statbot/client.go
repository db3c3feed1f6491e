package statbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"yt-notify-bot/internal/domain"
	"yt-notify-bot/internal/infra/metrics"
)

// DefaultBaseURL указывает на публичное API Statbot.
const DefaultBaseURL = "https://api.statbot.net"

// UnknownEndpointError возвращается для неизвестной пары group/sub.
type UnknownEndpointError struct {
	Group string
	Sub   string
}

func (e *UnknownEndpointError) Error() string {
	return fmt.Sprintf("Unknown endpoint for group: %s, sub: %s", e.Group, e.Sub)
}

func (e *UnknownEndpointError) Is(target error) bool { return target == domain.ErrUnknownEndpoint }

// RateLimitError возвращается, если API ограничил частоту запросов.
type RateLimitError struct {
	// Wait содержит количество секунд из заголовков или "a few".
	Wait string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("Rate limited. Please wait %s seconds before retrying.", e.Wait)
}

func (e *RateLimitError) Is(target error) bool { return target == domain.ErrRateLimited }

// APIError описывает ответ API с неуспешным статусом.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Error %d: %s", e.Status, e.Message)
}

// UserMessage превращает ошибку клиента в текст для ответа пользователю.
func UserMessage(err error) string {
	var unknown *UnknownEndpointError
	var limited *RateLimitError
	var apiErr *APIError
	switch {
	case errors.As(err, &unknown):
		return unknown.Error()
	case errors.As(err, &limited):
		return limited.Error()
	case errors.As(err, &apiErr):
		return apiErr.Error()
	default:
		return fmt.Sprintf("Error unknown: %v", err)
	}
}

// Client выполняет запросы к Statbot API.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
}

// Option настраивает клиент.
type Option func(*Client)

// WithHTTPClient задаёт http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout задаёт таймаут запроса.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient создаёт клиент. Пустой baseURL означает DefaultBaseURL.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	client := &Client{
		baseURL:    parsed,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// BaseURL возвращает базовый адрес API.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Get выполняет GET по пути или полному URL и возвращает тело ответа.
// Ограничение частоты и неуспешные статусы возвращаются как ошибки.
func (c *Client) Get(ctx context.Context, target string, query url.Values, operation string) ([]byte, error) {
	endpoint, err := c.resolve(target)
	if err != nil {
		return nil, err
	}
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("statbot", operation, endpoint.Host, start, err)
		return nil, fmt.Errorf("statbot request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err == nil {
		err = checkResponse(resp, body)
	}
	metrics.ObserveNetworkRequest("statbot", operation, endpoint.Host, start, err)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) resolve(target string) (*url.URL, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		parsed, err := url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("parse request url: %w", err)
		}
		return parsed, nil
	}
	ref, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse request path: %w", err)
	}
	resolved := *c.baseURL
	resolved.Path = strings.TrimRight(c.baseURL.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	resolved.RawQuery = ref.RawQuery
	return &resolved, nil
}

func checkResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode == http.StatusTooManyRequests || headerInt(resp.Header, "X-Ratelimit-Remaining") == 0 {
		wait := "a few"
		if v := headerInt(resp.Header, "Retry-After"); v > 0 {
			wait = strconv.Itoa(v)
		} else if v := headerInt(resp.Header, "X-Ratelimit-Reset"); v > 0 {
			wait = strconv.Itoa(v)
		}
		return &RateLimitError{Wait: wait}
	}
	if resp.StatusCode >= 300 {
		var payload struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &payload)
		msg := strings.TrimSpace(payload.Message)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	return nil
}

// headerInt возвращает числовое значение заголовка или -1, если его нет или он не число.
func headerInt(h http.Header, name string) int {
	raw := strings.TrimSpace(h.Get(name))
	if raw == "" {
		return -1
	}
	// reset может прийти дробным
	if dot := strings.IndexByte(raw, '.'); dot >= 0 {
		raw = raw[:dot]
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return v
}
