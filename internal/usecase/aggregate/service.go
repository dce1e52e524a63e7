package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mood-pipeline/internal/domain"
	"mood-pipeline/internal/infra/metrics"
)

// Service строит оконные агрегаты настроения: по одному на активного
// пользователя за часовой слот.
type Service struct {
	log     zerolog.Logger
	turns   domain.ChatTurnRepo
	windows domain.WindowResultRepo
	scores  domain.ScoreStore
	picker  domain.KeywordPicker
	// fallback подбирает слово по статической таблице, когда внешний
	// подборщик недоступен. Никогда не ошибается на валидной секции.
	fallback domain.KeywordPicker
	bucket   time.Duration
}

// NewService создаёт агрегатор с шириной окна bucket.
func NewService(log zerolog.Logger, turns domain.ChatTurnRepo, windows domain.WindowResultRepo, scores domain.ScoreStore, picker, fallback domain.KeywordPicker, bucket time.Duration) *Service {
	if bucket <= 0 {
		bucket = time.Hour
	}
	return &Service{log: log, turns: turns, windows: windows, scores: scores, picker: picker, fallback: fallback, bucket: bucket}
}

// Run выполняет агрегацию на текущий момент.
func (s *Service) Run(ctx context.Context) error {
	return s.RunAt(ctx, time.Now())
}

// RunAt выполняет агрегацию на указанный момент. Активные пользователи —
// с хотя бы одной репликой любой роли за сегодняшний день. Ошибка по
// одному пользователю не прерывает остальных.
func (s *Service) RunAt(ctx context.Context, now time.Time) error {
	defer metrics.ObserveJob("window_aggregate", time.Now())

	dayStart := startOfDay(now)
	users, err := s.turns.ListActiveUserIDs(ctx, dayStart, now)
	if err != nil {
		return fmt.Errorf("выборка активных пользователей: %w", err)
	}

	label := WindowLabel(now)
	for _, userID := range users {
		if err := s.aggregateUser(ctx, userID, label, dayStart, now); err != nil {
			s.log.Error().Err(err).Int64("user", userID).Str("window", label).Msg("aggregate: ошибка агрегации пользователя")
		}
	}
	return nil
}

func (s *Service) aggregateUser(ctx context.Context, userID int64, label string, dayStart, now time.Time) error {
	// Повторный запуск того же слота не должен дублировать агрегат.
	exists, err := s.windows.HasWindowResult(ctx, userID, label, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return fmt.Errorf("проверка слота: %w", err)
	}
	if exists {
		s.log.Info().Int64("user", userID).Str("window", label).Msg("aggregate: слот уже записан, пропуск")
		return nil
	}

	turns, err := s.turns.ListUserTurnsBetween(ctx, userID, now.Add(-s.bucket), now)
	if err != nil {
		return fmt.Errorf("выборка реплик: %w", err)
	}

	avg, totalWeight := s.decayedAverage(turns, now)
	if totalWeight == 0 {
		var skip bool
		avg, skip, err = s.fallbackAverage(ctx, userID, dayStart, now)
		if err != nil {
			return err
		}
		if skip {
			return nil
		}
	}

	section := domain.SectionForScore(avg)
	word := s.pickKeyword(ctx, section, avg)

	if _, err := s.windows.SaveWindowResult(ctx, domain.WindowResult{
		UserID:       userID,
		WindowLabel:  label,
		AvgScore:     avg,
		EmotionLabel: word,
		Section:      section,
		CreatedAt:    now,
	}); err != nil {
		return fmt.Errorf("сохранение агрегата: %w", err)
	}
	metrics.WindowResultsWritten.Inc()
	return nil
}

// decayedAverage считает взвешенное среднее оценок реплик. Вес линейно
// убывает с возрастом: свежая реплика весит bucketMinutes, реплика старше
// ширины окна — ноль.
func (s *Service) decayedAverage(turns []domain.ChatTurn, now time.Time) (float64, float64) {
	bucketMinutes := s.bucket.Minutes()
	var weighted, total float64
	for _, turn := range turns {
		if turn.ScoreAfter == nil {
			continue
		}
		age := now.Sub(turn.CreatedAt).Minutes()
		weight := bucketMinutes - age
		if weight <= 0 {
			continue
		}
		weighted += weight * float64(*turn.ScoreAfter)
		total += weight
	}
	if total == 0 {
		return 0, 0
	}
	return weighted / total, total
}

// fallbackAverage обрабатывает слот без свежих реплик. Пользователь без
// единой реплики за день пропускается; иначе среднее смешивается с текущей
// оценкой хранилища, а первый слот дня берёт её как есть.
func (s *Service) fallbackAverage(ctx context.Context, userID int64, dayStart, now time.Time) (float64, bool, error) {
	count, err := s.turns.CountUserTurnsBetween(ctx, userID, dayStart, now)
	if err != nil {
		return 0, false, fmt.Errorf("подсчёт реплик за день: %w", err)
	}
	if count == 0 {
		return 0, true, nil
	}

	current, err := s.scores.Get(ctx, userID)
	if errors.Is(err, domain.ErrScoreNotFound) {
		current = domain.DefaultScore
	} else if err != nil {
		return 0, false, fmt.Errorf("чтение оценки: %w", err)
	}

	prior, ok, err := s.windows.LatestWindowResultBetween(ctx, userID, dayStart, now)
	if err != nil {
		return 0, false, fmt.Errorf("поиск предыдущего слота: %w", err)
	}
	if ok {
		return (prior.AvgScore + float64(current)) / 2, false, nil
	}
	return float64(current), false, nil
}

func (s *Service) pickKeyword(ctx context.Context, section int, avg float64) string {
	word, err := s.picker.PickKeyword(ctx, section, avg)
	if err == nil {
		return word
	}
	s.log.Warn().Err(err).Int("section", section).Msg("aggregate: подборщик недоступен, используем статическое слово")
	word, err = s.fallback.PickKeyword(ctx, section, avg)
	if err != nil {
		s.log.Error().Err(err).Int("section", section).Msg("aggregate: статический подборщик вернул ошибку")
		return ""
	}
	return word
}

// WindowLabel возвращает метку часового слота на момент запуска, например "09-10".
// Метка отражает час агрегации, а не время входных сообщений.
func WindowLabel(now time.Time) string {
	hour := now.Hour()
	return fmt.Sprintf("%02d-%02d", hour, (hour+1)%24)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
