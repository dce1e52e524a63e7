package trend

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mood-pipeline/internal/domain"
	"mood-pipeline/internal/infra/metrics"
)

// Service считает недельный тренд: доминирующую эмоцию текущей недели и
// разницу средних дневных оценок с прошлой неделей. Результат пишется в
// кэш поверх предыдущего, история не хранится. Частота запуска на
// корректность не влияет.
type Service struct {
	log     zerolog.Logger
	windows domain.WindowResultRepo
	days    domain.DayResultRepo
	trends  domain.TrendCache
}

// NewService создаёт калькулятор трендов.
func NewService(log zerolog.Logger, windows domain.WindowResultRepo, days domain.DayResultRepo, trends domain.TrendCache) *Service {
	return &Service{log: log, windows: windows, days: days, trends: trends}
}

// Run пересчитывает тренды на текущий момент.
func (s *Service) Run(ctx context.Context) error {
	return s.RunAt(ctx, time.Now())
}

// RunAt пересчитывает тренды для пользователей с агрегатами на текущей
// ISO-неделе. Ошибка по одному пользователю не прерывает остальных.
func (s *Service) RunAt(ctx context.Context, now time.Time) error {
	defer metrics.ObserveJob("weekly_trend", time.Now())

	weekStart := StartOfWeek(now)
	users, err := s.windows.ListUserIDsBetween(ctx, weekStart, now)
	if err != nil {
		return fmt.Errorf("выборка пользователей недели: %w", err)
	}

	for _, userID := range users {
		if err := s.computeUser(ctx, userID, weekStart, now); err != nil {
			s.log.Error().Err(err).Int64("user", userID).Msg("trend: ошибка расчёта тренда")
		}
	}
	return nil
}

func (s *Service) computeUser(ctx context.Context, userID int64, weekStart, now time.Time) error {
	labels, err := s.windows.ListEmotionLabels(ctx, userID, weekStart, now)
	if err != nil {
		return fmt.Errorf("выборка меток эмоций: %w", err)
	}
	dominant := DominantLabel(labels)

	// Текущая неделя считается по завершённым дням: с понедельника по вчера.
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	thisWeek, err := s.days.ListDayScoresBetween(ctx, userID, weekStart, dayStart)
	if err != nil {
		return fmt.Errorf("выборка дневных оценок недели: %w", err)
	}
	lastWeek, err := s.days.ListDayScoresBetween(ctx, userID, weekStart.AddDate(0, 0, -7), weekStart)
	if err != nil {
		return fmt.Errorf("выборка дневных оценок прошлой недели: %w", err)
	}

	delta := averageOrDefault(thisWeek) - averageOrDefault(lastWeek)
	if err := s.trends.SetTrend(ctx, userID, domain.WeeklyTrend{
		EmotionLabel: dominant,
		ScoreDelta:   delta,
	}); err != nil {
		return fmt.Errorf("запись тренда: %w", err)
	}
	return nil
}

// DominantLabel возвращает самую частую метку. При равенстве побеждает
// метка, встретившаяся раньше в порядке выборки — произвольный, но
// детерминированный выбор.
func DominantLabel(labels []string) string {
	counts := make(map[string]int, len(labels))
	var dominant string
	best := 0
	for _, label := range labels {
		counts[label]++
		if counts[label] > best {
			best = counts[label]
			dominant = label
		}
	}
	return dominant
}

// averageOrDefault возвращает среднее списка, для пустого — базовые 50.
func averageOrDefault(scores []float64) float64 {
	if len(scores) == 0 {
		return domain.DefaultScore
	}
	var sum float64
	for _, score := range scores {
		sum += score
	}
	return sum / float64(len(scores))
}

// StartOfWeek возвращает полночь понедельника ISO-недели момента t.
func StartOfWeek(t time.Time) time.Time {
	dayStart := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := int(t.Weekday()) - 1
	if offset < 0 {
		offset = 6
	}
	return dayStart.AddDate(0, 0, -offset)
}
