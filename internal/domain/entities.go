package domain

import "time"

// TurnRole описывает автора реплики в диалоге.
type TurnRole string

const (
	// RoleUser — реплика пользователя.
	RoleUser TurnRole = "USER"
	// RoleBot — ответ бота.
	RoleBot TurnRole = "BOT"
)

// ChatTurn представляет одну реплику диалога. После записи не изменяется,
// кроме прикрепления оценки настроения к пользовательской реплике.
type ChatTurn struct {
	ID         int64
	UserID     int64
	Role       TurnRole
	Text       string
	ScoreDelta *int
	ScoreAfter *int
	CreatedAt  time.Time
}

// WindowResult — агрегат настроения пользователя за один часовой слот.
// WindowLabel кодирует слот по часам запуска агрегации, например "09-10".
type WindowResult struct {
	ID           int64
	UserID       int64
	WindowLabel  string
	AvgScore     float64
	EmotionLabel string
	Section      int
	CreatedAt    time.Time
}

// DayResult — дневная свёртка оконных агрегатов. Не более одной записи
// на пару (пользователь, дата).
type DayResult struct {
	UserID   int64
	Date     time.Time
	AvgScore float64
	Section  int
}

// WeeklyTrend — недельный тренд пользователя: доминирующая эмоция и
// разница средних оценок с прошлой неделей. Хранится только в кэше,
// история не ведётся.
type WeeklyTrend struct {
	EmotionLabel string  `json:"emotion_label"`
	ScoreDelta   float64 `json:"score_delta"`
}

// Classification — результат работы внешнего классификатора настроения.
type Classification struct {
	ScoreDelta int
	ScoreAfter int
	Reply      string
}
