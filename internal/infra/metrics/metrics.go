package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	ChatEventsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_events_consumed_total",
		Help: "Обработанные события чата",
	})
	ChatEventsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_events_failed_total",
		Help: "События чата, завершившиеся ошибкой обработки",
	})
	ChatEventsDeadLettered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_events_dead_lettered_total",
		Help: "Нераспознанные события, отправленные в dead-letter",
	})
	ClassifierErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "classifier_errors_total",
		Help: "Ошибки обращения к классификатору настроения",
	})
	ReplyPublishErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reply_publish_errors_total",
		Help: "Ошибки публикации ответа пользователю",
	})
	WindowResultsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "window_results_written_total",
		Help: "Записанные оконные агрегаты",
	})
	DayResultsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "day_results_written_total",
		Help: "Записанные дневные свёртки",
	})
	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_job_duration_seconds",
		Help:    "Длительность периодических задач конвейера",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		ChatEventsConsumed,
		ChatEventsFailed,
		ChatEventsDeadLettered,
		ClassifierErrors,
		ReplyPublishErrors,
		WindowResultsWritten,
		DayResultsWritten,
		JobDuration,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтами /metrics и /healthz.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveJob записывает длительность периодической задачи.
func ObserveJob(job string, start time.Time) {
	JobDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
}
