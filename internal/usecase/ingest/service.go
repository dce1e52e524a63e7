package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mood-pipeline/internal/domain"
	"mood-pipeline/internal/infra/metrics"
)

// Service — единственный потребитель очереди событий чата. Превращает сырой
// текст в изменения состояния: оценку, сохранённые реплики и ответ.
type Service struct {
	log        zerolog.Logger
	queue      domain.ChatEventQueue
	scores     domain.ScoreStore
	turns      domain.ChatTurnRepo
	classifier domain.Classifier
	publisher  domain.ReplyPublisher
	group      string
	consumer   string
}

// NewService создаёт воркер обработки событий.
func NewService(log zerolog.Logger, queue domain.ChatEventQueue, scores domain.ScoreStore, turns domain.ChatTurnRepo, classifier domain.Classifier, publisher domain.ReplyPublisher, group, consumer string) *Service {
	return &Service{
		log:        log,
		queue:      queue,
		scores:     scores,
		turns:      turns,
		classifier: classifier,
		publisher:  publisher,
		group:      group,
		consumer:   consumer,
	}
}

// Run обрабатывает события до отмены контекста. Ошибка обработки отдельного
// события логируется, событие подтверждается и не переигрывается.
func (s *Service) Run(ctx context.Context) {
	for {
		event, ack, err := s.queue.Read(ctx, s.group, s.consumer)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.log.Error().Err(err).Msg("worker: ошибка чтения очереди")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if err := s.ProcessEvent(ctx, event); err != nil {
			metrics.ChatEventsFailed.Inc()
			s.log.Error().Err(err).Int64("user", event.UserID).Str("event", event.ID).Msg("worker: не удалось обработать событие")
		} else {
			metrics.ChatEventsConsumed.Inc()
		}
		if err := ack(ctx); err != nil {
			s.log.Error().Err(err).Str("event", event.ID).Msg("worker: не удалось подтвердить событие")
		}
	}
}

// ProcessEvent выполняет один проход конвейера для события.
func (s *Service) ProcessEvent(ctx context.Context, event domain.ChatEvent) error {
	exists, err := s.scores.Exists(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("проверка оценки: %w", err)
	}
	if !exists {
		if err := s.scores.Set(ctx, event.UserID, domain.DefaultScore); err != nil {
			return fmt.Errorf("инициализация оценки: %w", err)
		}
	}

	role := event.Speaker
	if role == "" {
		role = domain.RoleUser
	}
	// Время реплики берётся из события, а не из часов воркера.
	turn, err := s.turns.SaveTurn(ctx, domain.ChatTurn{
		UserID:    event.UserID,
		Role:      role,
		Text:      event.Text,
		CreatedAt: time.UnixMilli(event.CreatedAtMillis),
	})
	if err != nil {
		return fmt.Errorf("сохранение реплики: %w", err)
	}
	if role != domain.RoleUser {
		return nil
	}

	cls, err := s.classifier.Classify(ctx, event.UserID, event.Text)
	if err != nil {
		// Отказ классификатора не блокирует приём: реплика уже сохранена,
		// ответ пропускаем без повторных попыток.
		metrics.ClassifierErrors.Inc()
		s.log.Warn().Err(err).Int64("user", event.UserID).Msg("worker: классификатор недоступен, ответ пропущен")
		return nil
	}

	if err := s.scores.Set(ctx, event.UserID, cls.ScoreAfter); err != nil {
		return fmt.Errorf("обновление оценки: %w", err)
	}
	if err := s.turns.AttachScore(ctx, turn.ID, cls.ScoreDelta, cls.ScoreAfter); err != nil {
		return fmt.Errorf("прикрепление оценки: %w", err)
	}

	s.publishReply(ctx, event.UserID, cls.Reply)

	// Оценка настроения прикрепляется только к пользовательским репликам.
	if _, err := s.turns.SaveTurn(ctx, domain.ChatTurn{
		UserID:    event.UserID,
		Role:      domain.RoleBot,
		Text:      cls.Reply,
		CreatedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("сохранение ответа: %w", err)
	}
	return nil
}

type replyPayload struct {
	UserID int64  `json:"user_id"`
	Reply  string `json:"reply"`
	SentAt int64  `json:"sent_at_ms"`
}

// publishReply отправляет ответ в канал пользователя. Ошибка не фатальна.
func (s *Service) publishReply(ctx context.Context, userID int64, reply string) {
	payload, err := json.Marshal(replyPayload{UserID: userID, Reply: reply, SentAt: time.Now().UnixMilli()})
	if err != nil {
		s.log.Error().Err(err).Int64("user", userID).Msg("worker: сериализация ответа")
		return
	}
	channelKey := fmt.Sprintf("user.%d", userID)
	if err := s.publisher.Publish(ctx, channelKey, payload); err != nil {
		metrics.ReplyPublishErrors.Inc()
		s.log.Warn().Err(err).Int64("user", userID).Msg("worker: не удалось опубликовать ответ")
	}
}
