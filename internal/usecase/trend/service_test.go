package trend

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mood-pipeline/internal/domain"
)

type stubWindows struct {
	users  []int64
	labels []string
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
	return nil, nil
}
func (s *stubWindows) ListEmotionLabels(context.Context, int64, time.Time, time.Time) ([]string, error) {
	return s.labels, nil
}
func (s *stubWindows) ListUserIDsBetween(context.Context, time.Time, time.Time) ([]int64, error) {
	return s.users, nil
}

type stubDays struct {
	thisWeek []float64
	lastWeek []float64
	weekEdge time.Time
}

func (s *stubDays) SaveDayResult(context.Context, domain.DayResult) error { return nil }
func (s *stubDays) HasDayResult(context.Context, int64, time.Time) (bool, error) {
	return false, nil
}
func (s *stubDays) ListDayScoresBetween(_ context.Context, _ int64, start, _ time.Time) ([]float64, error) {
	if start.Before(s.weekEdge) {
		return s.lastWeek, nil
	}
	return s.thisWeek, nil
}

type stubTrends struct {
	saved map[int64]domain.WeeklyTrend
}

func (s *stubTrends) SetTrend(_ context.Context, userID int64, trend domain.WeeklyTrend) error {
	if s.saved == nil {
		s.saved = make(map[int64]domain.WeeklyTrend)
	}
	s.saved[userID] = trend
	return nil
}
func (s *stubTrends) GetTrend(_ context.Context, userID int64) (domain.WeeklyTrend, error) {
	return s.saved[userID], nil
}

// Среда, 26 августа 2026 — понедельник недели приходится на 24-е.
var now = time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

func TestWeeklyDelta(t *testing.T) {
	windows := &stubWindows{users: []int64{5}, labels: []string{"радость"}}
	days := &stubDays{
		thisWeek: []float64{70},
		lastWeek: []float64{40, 60},
		weekEdge: StartOfWeek(now),
	}
	trends := &stubTrends{}
	service := NewService(zerolog.Nop(), windows, days, trends)

	if err := service.RunAt(context.Background(), now); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	trend := trends.saved[5]
	if trend.ScoreDelta != 20 {
		t.Fatalf("ожидали дельту +20, получили %v", trend.ScoreDelta)
	}
	if trend.EmotionLabel != "радость" {
		t.Fatalf("ожидали доминирующую эмоцию, получили %q", trend.EmotionLabel)
	}
}

func TestWeeklyDeltaDefaultsToFiftyOnEmptyWeek(t *testing.T) {
	windows := &stubWindows{users: []int64{5}, labels: []string{"грусть"}}
	days := &stubDays{
		thisWeek: []float64{70},
		lastWeek: nil,
		weekEdge: StartOfWeek(now),
	}
	trends := &stubTrends{}
	service := NewService(zerolog.Nop(), windows, days, trends)

	if err := service.RunAt(context.Background(), now); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if trends.saved[5].ScoreDelta != 20 {
		t.Fatalf("пустая прошлая неделя должна давать базу 50, дельта %v", trends.saved[5].ScoreDelta)
	}
}

func TestDominantLabelTieBreaksByFirstSeen(t *testing.T) {
	labels := []string{"грусть", "радость", "радость", "грусть"}
	if got := DominantLabel(labels); got != "грусть" {
		t.Fatalf("при равенстве побеждает первая встреченная метка, получили %q", got)
	}
	if got := DominantLabel(nil); got != "" {
		t.Fatalf("пустой список меток должен давать пустую метку, получили %q", got)
	}
}

func TestStartOfWeek(t *testing.T) {
	monday := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	if got := StartOfWeek(now); !got.Equal(monday) {
		t.Fatalf("ожидали понедельник %v, получили %v", monday, got)
	}
	// Воскресенье относится к той же ISO-неделе.
	sunday := time.Date(2026, 8, 30, 23, 0, 0, 0, time.UTC)
	if got := StartOfWeek(sunday); !got.Equal(monday) {
		t.Fatalf("воскресенье должно давать тот же понедельник, получили %v", got)
	}
}
