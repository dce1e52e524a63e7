package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов конвейера настроения.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Asia/Seoul"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	AMQPURL string `envconfig:"AMQP_URL"`

	Queue struct {
		Stream   string `envconfig:"CHAT_STREAM_KEY" default:"chat_events"`
		Group    string `envconfig:"CHAT_CONSUMER_GROUP" default:"reply_worker"`
		Consumer string `envconfig:"CHAT_CONSUMER_NAME" default:"reply_worker_1"`
	} `envconfig:""`

	Classifier struct {
		BaseURL string `envconfig:"CLASSIFIER_URL"`
		Timeout int    `envconfig:"CLASSIFIER_TIMEOUT_SEC" default:"10"`
	} `envconfig:""`

	Keyword struct {
		BaseURL string `envconfig:"KEYWORD_URL"`
		Timeout int    `envconfig:"KEYWORD_TIMEOUT_SEC" default:"5"`
	} `envconfig:""`

	Aggregate struct {
		BucketMinutes int `envconfig:"BUCKET_MINUTES" default:"60"`
	} `envconfig:""`

	Cron struct {
		Window string `envconfig:"WINDOW_CRON" default:"0 * * * *"`
		Rollup string `envconfig:"ROLLUP_CRON" default:"10 0 * * *"`
		Trend  string `envconfig:"TREND_CRON" default:"*/30 * * * *"`
		Reset  string `envconfig:"RESET_CRON" default:"0 0 * * *"`
	} `envconfig:""`

	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
