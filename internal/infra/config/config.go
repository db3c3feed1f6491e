package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	APIToken    string `envconfig:"API_TOKEN"`

	Discord struct {
		Token         string `envconfig:"DISCORD_TOKEN"`
		AppID         string `envconfig:"DISCORD_APP_ID"`
		CommandGuild  string `envconfig:"DISCORD_COMMAND_GUILD"`
		CommandPrefix string `envconfig:"COMMAND_PREFIX" default:"!"`
	} `envconfig:""`

	YouTube struct {
		APIKey   string        `envconfig:"YOUTUBE_API_KEY"`
		Timeout  time.Duration `envconfig:"YOUTUBE_TIMEOUT" default:"10s"`
		RPS      float64       `envconfig:"YOUTUBE_RPS" default:"5"`
		CacheTTL time.Duration `envconfig:"YOUTUBE_CACHE_TTL" default:"20s"`
	} `envconfig:""`

	Statbot struct {
		APIKey         string        `envconfig:"STATBOT_API_KEY"`
		BaseURL        string        `envconfig:"STATBOT_BASE_URL" default:"https://api.statbot.net"`
		Timeout        time.Duration `envconfig:"STATBOT_TIMEOUT" default:"10s"`
		FullCheckPause time.Duration `envconfig:"STATBOT_FULL_CHECK_PAUSE" default:"5s"`
	} `envconfig:""`

	Poll struct {
		Enabled       bool          `envconfig:"POLLER_ENABLED" default:"true"`
		BaseInterval  time.Duration `envconfig:"POLL_BASE_INTERVAL" default:"30s"`
		RetryInterval time.Duration `envconfig:"POLL_RETRY_INTERVAL" default:"60s"`
		Concurrency   int           `envconfig:"POLL_CONCURRENCY" default:"1"`
	} `envconfig:""`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`
	PGDSN       string `envconfig:"PG_DSN"`

	Mongo struct {
		URI      string `envconfig:"MONGO_URI"`
		Database string `envconfig:"MONGO_DB" default:"ytnotify"`
	} `envconfig:""`

	RedisAddr string `envconfig:"REDIS_ADDR"`
	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Queues struct {
		Driver       string `envconfig:"QUEUE_DRIVER" default:"direct"`
		Notification string `envconfig:"NOTIFY_QUEUE_KEY" default:"notification_jobs"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
