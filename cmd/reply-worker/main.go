package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"mood-pipeline/internal/adapters/classifier"
	"mood-pipeline/internal/adapters/notify"
	"mood-pipeline/internal/adapters/repo"
	"mood-pipeline/internal/infra/cache"
	"mood-pipeline/internal/infra/config"
	"mood-pipeline/internal/infra/db"
	applog "mood-pipeline/internal/infra/log"
	"mood-pipeline/internal/infra/metrics"
	"mood-pipeline/internal/infra/queue"
	"mood-pipeline/internal/usecase/ingest"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: нет подключения к БД")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	repoAdapter := repo.NewPostgres(pool)
	scoreStore := cache.NewRedisScoreStore(redisClient)
	eventQueue := queue.NewRedisChatEventQueue(redisClient, cfg.Queue.Stream)

	if cfg.Classifier.BaseURL == "" {
		logger.Fatal().Msg("worker: не указан адрес классификатора (CLASSIFIER_URL)")
	}
	classifierAdapter, err := classifier.NewHTTP(cfg.Classifier.BaseURL, time.Duration(cfg.Classifier.Timeout)*time.Second)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось создать клиента классификатора")
	}

	if cfg.AMQPURL == "" {
		logger.Fatal().Msg("worker: не указан адрес RabbitMQ (AMQP_URL)")
	}
	publisher, err := notify.NewRabbitPublisher(cfg.AMQPURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось подключиться к RabbitMQ")
	}
	defer publisher.Close()

	worker := ingest.NewService(
		logger.With().Str("component", "reply_worker").Logger(),
		eventQueue,
		scoreStore,
		repoAdapter,
		classifierAdapter,
		publisher,
		cfg.Queue.Group,
		cfg.Queue.Consumer,
	)

	logger.Info().Str("stream", cfg.Queue.Stream).Str("group", cfg.Queue.Group).Msg("worker: запуск обработки очереди")
	worker.Run(ctx)
	logger.Info().Msg("worker: остановлен")
}
