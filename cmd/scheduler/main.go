package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"mood-pipeline/internal/adapters/keyword"
	"mood-pipeline/internal/adapters/repo"
	"mood-pipeline/internal/domain"
	"mood-pipeline/internal/infra/cache"
	"mood-pipeline/internal/infra/config"
	"mood-pipeline/internal/infra/db"
	applog "mood-pipeline/internal/infra/log"
	"mood-pipeline/internal/infra/metrics"
	"mood-pipeline/internal/usecase/aggregate"
	"mood-pipeline/internal/usecase/reset"
	"mood-pipeline/internal/usecase/rollup"
	"mood-pipeline/internal/usecase/trend"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		logger.Fatal().Err(err).Str("tz", cfg.TZ).Msg("scheduler: неизвестный часовой пояс")
	}

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	repoAdapter := repo.NewPostgres(pool)
	scoreStore := cache.NewRedisScoreStore(redisClient)

	staticPicker := keyword.NewStatic()
	var picker domain.KeywordPicker = staticPicker
	if cfg.Keyword.BaseURL != "" {
		picker, err = keyword.NewHTTP(cfg.Keyword.BaseURL, time.Duration(cfg.Keyword.Timeout)*time.Second)
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler: не удалось создать клиента подборщика")
		}
	}

	bucket := time.Duration(cfg.Aggregate.BucketMinutes) * time.Minute
	aggregateService := aggregate.NewService(
		logger.With().Str("component", "aggregate").Logger(),
		repoAdapter, repoAdapter, scoreStore, picker, staticPicker, bucket,
	)
	rollupService := rollup.NewService(logger.With().Str("component", "rollup").Logger(), repoAdapter, repoAdapter)
	trendService := trend.NewService(logger.With().Str("component", "trend").Logger(), repoAdapter, repoAdapter, scoreStore)
	resetService := reset.NewService(logger.With().Str("component", "reset").Logger(), scoreStore)

	cronLogger := cronLog{log: logger.With().Str("component", "cron").Logger()}
	// SkipIfStillRunning: два пересекающихся запуска одной задачи удвоили бы
	// записи агрегатов; разные задачи работают параллельно.
	scheduler := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger)),
	)

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"window_aggregate", cfg.Cron.Window, aggregateService.Run},
		{"daily_rollup", cfg.Cron.Rollup, rollupService.Run},
		{"weekly_trend", cfg.Cron.Trend, trendService.Run},
		{"score_reset", cfg.Cron.Reset, resetService.Run},
	}
	for _, job := range jobs {
		name, run := job.name, job.run
		if _, err := scheduler.AddFunc(job.spec, func() {
			if err := run(ctx); err != nil {
				logger.Error().Err(err).Str("job", name).Msg("scheduler: задача завершилась с ошибкой")
			}
		}); err != nil {
			logger.Fatal().Err(err).Str("job", name).Str("spec", job.spec).Msg("scheduler: некорректное cron-выражение")
		}
	}

	scheduler.Start()
	logger.Info().Msg("scheduler: задачи запланированы")

	<-ctx.Done()
	logger.Info().Msg("scheduler: остановка")
	<-scheduler.Stop().Done()
}

// cronLog адаптирует zerolog к логгеру robfig/cron.
type cronLog struct {
	log zerolog.Logger
}

func (c cronLog) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLog) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
