package rollup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mood-pipeline/internal/domain"
)

type stubWindows struct {
	results []domain.WindowResult
}

func (s *stubWindows) SaveWindowResult(_ context.Context, r domain.WindowResult) (domain.WindowResult, error) {
	return r, nil
}
func (s *stubWindows) HasWindowResult(context.Context, int64, string, time.Time, time.Time) (bool, error) {
	return false, nil
}
func (s *stubWindows) LatestWindowResultBetween(context.Context, int64, time.Time, time.Time) (domain.WindowResult, bool, error) {
	return domain.WindowResult{}, false, nil
}
func (s *stubWindows) ListWindowResultsBetween(context.Context, time.Time, time.Time) ([]domain.WindowResult, error) {
	return s.results, nil
}
func (s *stubWindows) ListEmotionLabels(context.Context, int64, time.Time, time.Time) ([]string, error) {
	return nil, nil
}
func (s *stubWindows) ListUserIDsBetween(context.Context, time.Time, time.Time) ([]int64, error) {
	return nil, nil
}

type stubDays struct {
	saved   []domain.DayResult
	hasErr  map[int64]error
	existed map[int64]bool
}

func (s *stubDays) SaveDayResult(_ context.Context, r domain.DayResult) error {
	s.saved = append(s.saved, r)
	if s.existed == nil {
		s.existed = make(map[int64]bool)
	}
	s.existed[r.UserID] = true
	return nil
}
func (s *stubDays) HasDayResult(_ context.Context, userID int64, _ time.Time) (bool, error) {
	if err := s.hasErr[userID]; err != nil {
		return false, err
	}
	return s.existed[userID], nil
}
func (s *stubDays) ListDayScoresBetween(context.Context, int64, time.Time, time.Time) ([]float64, error) {
	return nil, nil
}

var runTime = time.Date(2026, 8, 25, 0, 10, 0, 0, time.UTC)

func TestRollupAveragesYesterdayWindows(t *testing.T) {
	windows := &stubWindows{results: []domain.WindowResult{
		{UserID: 1, AvgScore: 40},
		{UserID: 1, AvgScore: 60},
		{UserID: 2, AvgScore: 90},
	}}
	days := &stubDays{}
	service := NewService(zerolog.Nop(), windows, days)

	if err := service.RunAt(context.Background(), runTime); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(days.saved) != 2 {
		t.Fatalf("ожидали 2 свёртки, получили %d", len(days.saved))
	}
	first := days.saved[0]
	if first.UserID != 1 || first.AvgScore != 50 {
		t.Fatalf("ожидали среднее 50 для пользователя 1, получили %+v", first)
	}
	if first.Section != 4 {
		t.Fatalf("ожидали секцию 4, получили %d", first.Section)
	}
	wantDate := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	if !first.Date.Equal(wantDate) {
		t.Fatalf("ожидали дату %v, получили %v", wantDate, first.Date)
	}
	second := days.saved[1]
	if second.UserID != 2 || second.AvgScore != 90 || second.Section != 6 {
		t.Fatalf("неожиданная свёртка пользователя 2: %+v", second)
	}
}

func TestRollupIdempotentPerUserDate(t *testing.T) {
	windows := &stubWindows{results: []domain.WindowResult{
		{UserID: 1, AvgScore: 40},
		{UserID: 1, AvgScore: 60},
	}}
	days := &stubDays{}
	service := NewService(zerolog.Nop(), windows, days)

	if err := service.RunAt(context.Background(), runTime); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := service.RunAt(context.Background(), runTime); err != nil {
		t.Fatalf("не ожидали ошибку при повторе: %v", err)
	}
	if len(days.saved) != 1 {
		t.Fatalf("ожидали ровно одну свёртку после двух запусков, получили %d", len(days.saved))
	}
	if days.saved[0].AvgScore != 50 {
		t.Fatalf("ожидали значение первого запуска 50, получили %v", days.saved[0].AvgScore)
	}
}

func TestRollupContinuesAfterUserError(t *testing.T) {
	windows := &stubWindows{results: []domain.WindowResult{
		{UserID: 1, AvgScore: 40},
		{UserID: 2, AvgScore: 70},
	}}
	days := &stubDays{hasErr: map[int64]error{1: errors.New("таймаут БД")}}
	service := NewService(zerolog.Nop(), windows, days)

	if err := service.RunAt(context.Background(), runTime); err != nil {
		t.Fatalf("ошибка одного пользователя не должна прерывать запуск: %v", err)
	}
	if len(days.saved) != 1 || days.saved[0].UserID != 2 {
		t.Fatalf("ожидали свёртку только пользователя 2, получили %+v", days.saved)
	}
}

func TestRollupSkipsUsersWithoutWindows(t *testing.T) {
	days := &stubDays{}
	service := NewService(zerolog.Nop(), &stubWindows{}, days)

	if err := service.RunAt(context.Background(), runTime); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(days.saved) != 0 {
		t.Fatalf("не ожидали синтетических свёрток, получили %d", len(days.saved))
	}
}
