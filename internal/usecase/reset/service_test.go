package reset

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"mood-pipeline/internal/domain"
)

type stubScores struct {
	cleared bool
	err     error
}

func (s *stubScores) Get(context.Context, int64) (int, error) {
	return 0, domain.ErrScoreNotFound
}
func (s *stubScores) Set(context.Context, int64, int) error              { return nil }
func (s *stubScores) Increment(context.Context, int64, int) (int, error) { return 0, nil }
func (s *stubScores) Delete(context.Context, int64) error                { return nil }
func (s *stubScores) Exists(context.Context, int64) (bool, error)        { return false, nil }
func (s *stubScores) DeleteAll(context.Context) error {
	if s.err != nil {
		return s.err
	}
	s.cleared = true
	return nil
}

func TestRunClearsScores(t *testing.T) {
	scores := &stubScores{}
	service := NewService(zerolog.Nop(), scores)
	if err := service.Run(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !scores.cleared {
		t.Fatalf("ожидали очистку хранилища оценок")
	}
}

func TestRunWrapsStoreError(t *testing.T) {
	scores := &stubScores{err: errors.New("redis недоступен")}
	service := NewService(zerolog.Nop(), scores)
	if err := service.Run(context.Background()); err == nil {
		t.Fatalf("ожидали ошибку сброса")
	}
}
