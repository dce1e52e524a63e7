package domain

import (
	"context"
	"time"
)

// ScoreStore хранит текущую оценку настроения пользователя.
// Диапазон [0,100] обеспечивает классификатор, хранилище значения не
// ограничивает — это ответственность вызывающей стороны.
type ScoreStore interface {
	// Get возвращает текущую оценку. Отсутствие ключа — ошибка ErrScoreNotFound.
	Get(ctx context.Context, userID int64) (int, error)
	Set(ctx context.Context, userID int64, value int) error
	Increment(ctx context.Context, userID int64, delta int) (int, error)
	Delete(ctx context.Context, userID int64) error
	Exists(ctx context.Context, userID int64) (bool, error)
	// DeleteAll удаляет все оценки. Используется только ночным сбросом.
	DeleteAll(ctx context.Context) error
}

// TrendCache хранит недельный тренд пользователя. Каждая запись
// перезаписывается при очередном расчёте.
type TrendCache interface {
	SetTrend(ctx context.Context, userID int64, trend WeeklyTrend) error
	GetTrend(ctx context.Context, userID int64) (WeeklyTrend, error)
}

// ChatTurnRepo управляет репликами диалога во внешнем хранилище сообщений.
type ChatTurnRepo interface {
	SaveTurn(ctx context.Context, turn ChatTurn) (ChatTurn, error)
	// AttachScore прикрепляет оценку классификатора к пользовательской реплике.
	AttachScore(ctx context.Context, turnID int64, scoreDelta, scoreAfter int) error
	// ListUserTurnsBetween возвращает реплики роли USER в интервале [start, end).
	ListUserTurnsBetween(ctx context.Context, userID int64, start, end time.Time) ([]ChatTurn, error)
	CountUserTurnsBetween(ctx context.Context, userID int64, start, end time.Time) (int, error)
	// ListActiveUserIDs возвращает пользователей хотя бы с одной репликой
	// любой роли в интервале [start, end).
	ListActiveUserIDs(ctx context.Context, start, end time.Time) ([]int64, error)
}

// WindowResultRepo управляет оконными агрегатами.
type WindowResultRepo interface {
	SaveWindowResult(ctx context.Context, result WindowResult) (WindowResult, error)
	// HasWindowResult сообщает, записан ли уже агрегат слота за день.
	HasWindowResult(ctx context.Context, userID int64, windowLabel string, dayStart, dayEnd time.Time) (bool, error)
	// LatestWindowResultBetween возвращает последний по времени агрегат интервала.
	LatestWindowResultBetween(ctx context.Context, userID int64, start, end time.Time) (WindowResult, bool, error)
	ListWindowResultsBetween(ctx context.Context, start, end time.Time) ([]WindowResult, error)
	// ListEmotionLabels возвращает метки эмоций пользователя в порядке записи.
	ListEmotionLabels(ctx context.Context, userID int64, start, end time.Time) ([]string, error)
	ListUserIDsBetween(ctx context.Context, start, end time.Time) ([]int64, error)
}

// DayResultRepo управляет дневными свёртками.
type DayResultRepo interface {
	SaveDayResult(ctx context.Context, result DayResult) error
	HasDayResult(ctx context.Context, userID int64, date time.Time) (bool, error)
	ListDayScoresBetween(ctx context.Context, userID int64, start, end time.Time) ([]float64, error)
}

// Classifier — внешний классификатор настроения. Возвращает сдвиг и
// абсолютную оценку [0,100] вместе с текстом ответа пользователю.
type Classifier interface {
	Classify(ctx context.Context, userID int64, text string) (Classification, error)
}

// KeywordPicker подбирает человекочитаемое ключевое слово для секции.
type KeywordPicker interface {
	PickKeyword(ctx context.Context, section int, avgScore float64) (string, error)
}

// ReplyPublisher публикует ответ в канал уведомлений пользователя.
// Доставка fire-and-forget: ошибка публикации не фатальна для конвейера.
type ReplyPublisher interface {
	Publish(ctx context.Context, channelKey string, payload []byte) error
}
