package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mood-pipeline/internal/domain"
)

type stubScores struct {
	values map[int64]int
}

func (s *stubScores) Get(_ context.Context, userID int64) (int, error) {
	v, ok := s.values[userID]
	if !ok {
		return 0, domain.ErrScoreNotFound
	}
	return v, nil
}
func (s *stubScores) Set(_ context.Context, userID int64, value int) error {
	if s.values == nil {
		s.values = make(map[int64]int)
	}
	s.values[userID] = value
	return nil
}
func (s *stubScores) Increment(_ context.Context, userID int64, delta int) (int, error) {
	s.values[userID] += delta
	return s.values[userID], nil
}
func (s *stubScores) Delete(_ context.Context, userID int64) error {
	delete(s.values, userID)
	return nil
}
func (s *stubScores) Exists(_ context.Context, userID int64) (bool, error) {
	_, ok := s.values[userID]
	return ok, nil
}
func (s *stubScores) DeleteAll(context.Context) error {
	s.values = nil
	return nil
}

type stubTurns struct {
	saved    []domain.ChatTurn
	attached map[int64][2]int
	nextID   int64
}

func (s *stubTurns) SaveTurn(_ context.Context, turn domain.ChatTurn) (domain.ChatTurn, error) {
	s.nextID++
	turn.ID = s.nextID
	s.saved = append(s.saved, turn)
	return turn, nil
}
func (s *stubTurns) AttachScore(_ context.Context, turnID int64, delta, after int) error {
	if s.attached == nil {
		s.attached = make(map[int64][2]int)
	}
	s.attached[turnID] = [2]int{delta, after}
	return nil
}
func (s *stubTurns) ListUserTurnsBetween(context.Context, int64, time.Time, time.Time) ([]domain.ChatTurn, error) {
	return nil, nil
}
func (s *stubTurns) CountUserTurnsBetween(context.Context, int64, time.Time, time.Time) (int, error) {
	return 0, nil
}
func (s *stubTurns) ListActiveUserIDs(context.Context, time.Time, time.Time) ([]int64, error) {
	return nil, nil
}

type fakeClassifier struct {
	result domain.Classification
	err    error
}

func (c *fakeClassifier) Classify(context.Context, int64, string) (domain.Classification, error) {
	return c.result, c.err
}

type fakePublisher struct {
	channels []string
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, channelKey string, payload []byte) error {
	p.channels = append(p.channels, channelKey)
	p.payloads = append(p.payloads, payload)
	return p.err
}

func newTestService(scores *stubScores, turns *stubTurns, cls *fakeClassifier, pub *fakePublisher) *Service {
	return NewService(zerolog.Nop(), nil, scores, turns, cls, pub, "reply_worker", "reply_worker_1")
}

var eventTime = time.Date(2026, 8, 24, 9, 15, 0, 0, time.UTC)

func testEvent() domain.ChatEvent {
	return domain.ChatEvent{
		ID:              "evt-1",
		UserID:          7,
		Text:            "сегодня тяжёлый день",
		Speaker:         domain.RoleUser,
		CreatedAtMillis: eventTime.UnixMilli(),
	}
}

func TestProcessEventHappyPath(t *testing.T) {
	scores := &stubScores{}
	turns := &stubTurns{}
	cls := &fakeClassifier{result: domain.Classification{ScoreDelta: -5, ScoreAfter: 45, Reply: "держитесь"}}
	pub := &fakePublisher{}
	service := newTestService(scores, turns, cls, pub)

	if err := service.ProcessEvent(context.Background(), testEvent()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if scores.values[7] != 45 {
		t.Fatalf("ожидали оценку 45 после классификации, получили %d", scores.values[7])
	}
	if len(turns.saved) != 2 {
		t.Fatalf("ожидали реплику пользователя и ответ бота, получили %d", len(turns.saved))
	}
	user := turns.saved[0]
	if user.Role != domain.RoleUser || !user.CreatedAt.Equal(time.UnixMilli(eventTime.UnixMilli())) {
		t.Fatalf("реплика пользователя должна нести время события: %+v", user)
	}
	if got := turns.attached[user.ID]; got != [2]int{-5, 45} {
		t.Fatalf("ожидали прикреплённую оценку (-5, 45), получили %v", got)
	}
	bot := turns.saved[1]
	if bot.Role != domain.RoleBot || bot.Text != "держитесь" {
		t.Fatalf("неожиданный ответ бота: %+v", bot)
	}
	if bot.ScoreDelta != nil || bot.ScoreAfter != nil {
		t.Fatalf("ответ бота не должен нести оценку")
	}
	if len(pub.channels) != 1 || pub.channels[0] != "user.7" {
		t.Fatalf("ожидали публикацию в канал user.7, получили %v", pub.channels)
	}
}

func TestProcessEventInitializesScoreLazily(t *testing.T) {
	scores := &stubScores{}
	turns := &stubTurns{}
	cls := &fakeClassifier{err: errors.New("недоступен")}
	service := newTestService(scores, turns, cls, &fakePublisher{})

	if err := service.ProcessEvent(context.Background(), testEvent()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if scores.values[7] != domain.DefaultScore {
		t.Fatalf("ожидали инициализацию оценки значением %d, получили %d", domain.DefaultScore, scores.values[7])
	}
}

func TestProcessEventClassifierFailureKeepsTurn(t *testing.T) {
	scores := &stubScores{values: map[int64]int{7: 62}}
	turns := &stubTurns{}
	cls := &fakeClassifier{err: errors.New("таймаут")}
	pub := &fakePublisher{}
	service := newTestService(scores, turns, cls, pub)

	if err := service.ProcessEvent(context.Background(), testEvent()); err != nil {
		t.Fatalf("отказ классификатора не должен быть ошибкой обработки: %v", err)
	}
	if len(turns.saved) != 1 {
		t.Fatalf("реплика пользователя должна сохраниться, получили %d записей", len(turns.saved))
	}
	if scores.values[7] != 62 {
		t.Fatalf("оценка не должна меняться при отказе классификатора, получили %d", scores.values[7])
	}
	if len(pub.channels) != 0 {
		t.Fatalf("ответ не должен публиковаться при отказе классификатора")
	}
	if len(turns.attached) != 0 {
		t.Fatalf("оценка не должна прикрепляться при отказе классификатора")
	}
}

func TestProcessEventPublishFailureNonFatal(t *testing.T) {
	scores := &stubScores{}
	turns := &stubTurns{}
	cls := &fakeClassifier{result: domain.Classification{ScoreDelta: 3, ScoreAfter: 53, Reply: "отлично"}}
	pub := &fakePublisher{err: errors.New("брокер недоступен")}
	service := newTestService(scores, turns, cls, pub)

	if err := service.ProcessEvent(context.Background(), testEvent()); err != nil {
		t.Fatalf("ошибка публикации не фатальна: %v", err)
	}
	if len(turns.saved) != 2 {
		t.Fatalf("ответ бота должен сохраниться несмотря на ошибку публикации, получили %d", len(turns.saved))
	}
}

func TestProcessEventBotSpeakerPersistedWithoutClassification(t *testing.T) {
	scores := &stubScores{}
	turns := &stubTurns{}
	cls := &fakeClassifier{result: domain.Classification{ScoreAfter: 99}}
	pub := &fakePublisher{}
	service := newTestService(scores, turns, cls, pub)

	event := testEvent()
	event.Speaker = domain.RoleBot
	if err := service.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(turns.saved) != 1 || turns.saved[0].Role != domain.RoleBot {
		t.Fatalf("ожидали только сохранение реплики бота, получили %+v", turns.saved)
	}
	if len(pub.channels) != 0 {
		t.Fatalf("реплика бота не должна порождать публикацию")
	}
}
