package reset

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mood-pipeline/internal/domain"
	"mood-pipeline/internal/infra/metrics"
)

// Service выполняет ночной сброс хранилища оценок — его единственное
// регламентное обслуживание. Первая реплика следующего дня заново
// инициализирует оценку значением по умолчанию.
type Service struct {
	log    zerolog.Logger
	scores domain.ScoreStore
}

// NewService создаёт сервис сброса.
func NewService(log zerolog.Logger, scores domain.ScoreStore) *Service {
	return &Service{log: log, scores: scores}
}

// Run удаляет все текущие оценки настроения.
func (s *Service) Run(ctx context.Context) error {
	defer metrics.ObserveJob("score_reset", time.Now())

	if err := s.scores.DeleteAll(ctx); err != nil {
		return fmt.Errorf("сброс оценок: %w", err)
	}
	s.log.Info().Msg("reset: оценки настроения сброшены")
	return nil
}
