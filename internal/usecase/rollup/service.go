package rollup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mood-pipeline/internal/domain"
	"mood-pipeline/internal/infra/metrics"
)

// Service сворачивает вчерашние оконные агрегаты в одну дневную запись
// на пользователя. Свёртка идемпотентна по паре (пользователь, дата).
type Service struct {
	log     zerolog.Logger
	windows domain.WindowResultRepo
	days    domain.DayResultRepo
}

// NewService создаёт сервис дневной свёртки.
func NewService(log zerolog.Logger, windows domain.WindowResultRepo, days domain.DayResultRepo) *Service {
	return &Service{log: log, windows: windows, days: days}
}

// Run сворачивает вчерашний день относительно текущего момента.
func (s *Service) Run(ctx context.Context) error {
	return s.RunAt(ctx, time.Now())
}

// RunAt сворачивает день, предшествующий now. Пользователи без агрегатов
// за вчера записей не получают; ошибка по одному пользователю не
// прерывает остальных.
func (s *Service) RunAt(ctx context.Context, now time.Time) error {
	defer metrics.ObserveJob("daily_rollup", time.Now())

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterday := dayStart.AddDate(0, 0, -1)

	results, err := s.windows.ListWindowResultsBetween(ctx, yesterday, dayStart)
	if err != nil {
		return fmt.Errorf("выборка оконных агрегатов: %w", err)
	}

	grouped := make(map[int64][]float64)
	var order []int64
	for _, result := range results {
		if _, ok := grouped[result.UserID]; !ok {
			order = append(order, result.UserID)
		}
		grouped[result.UserID] = append(grouped[result.UserID], result.AvgScore)
	}

	for _, userID := range order {
		if err := s.rollupUser(ctx, userID, yesterday, grouped[userID]); err != nil {
			s.log.Error().Err(err).Int64("user", userID).Time("date", yesterday).Msg("rollup: ошибка свёртки пользователя")
		}
	}
	return nil
}

func (s *Service) rollupUser(ctx context.Context, userID int64, date time.Time, scores []float64) error {
	exists, err := s.days.HasDayResult(ctx, userID, date)
	if err != nil {
		return fmt.Errorf("проверка свёртки: %w", err)
	}
	if exists {
		s.log.Info().Int64("user", userID).Time("date", date).Msg("rollup: свёртка уже записана, пропуск")
		return nil
	}

	var sum float64
	for _, score := range scores {
		sum += score
	}
	avg := sum / float64(len(scores))

	if err := s.days.SaveDayResult(ctx, domain.DayResult{
		UserID:   userID,
		Date:     date,
		AvgScore: avg,
		Section:  domain.SectionForScore(avg),
	}); err != nil {
		return fmt.Errorf("сохранение свёртки: %w", err)
	}
	metrics.DayResultsWritten.Inc()
	return nil
}
