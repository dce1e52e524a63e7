package domain

import "context"

// ChatEvent — сырое событие чата, поступающее в очередь приёма.
type ChatEvent struct {
	ID              string   `json:"event_id,omitempty"`
	UserID          int64    `json:"user_id"`
	Text            string   `json:"text"`
	Speaker         TurnRole `json:"speaker"`
	CreatedAtMillis int64    `json:"created_at_ms"`
}

// ConsumerGroupSize фиксирует число потребителей в группе очереди приёма.
// Порядок доставки внутри группы гарантирован только при одном потребителе;
// масштабирование потребует партиционирования по пользователю.
const ConsumerGroupSize = 1

// EventAckFunc подтверждает успешную обработку события очереди.
type EventAckFunc func(ctx context.Context) error

// ChatEventQueue описывает упорядоченную очередь событий чата с доставкой
// at-least-once по группам потребителей.
type ChatEventQueue interface {
	// Append публикует событие в конец очереди.
	Append(ctx context.Context, event ChatEvent) error
	// Read блокирующе читает следующее непрочитанное событие группы.
	// Событие остаётся pending до вызова ack; нераспознанные записи
	// уходят в dead-letter поток и не переигрываются.
	Read(ctx context.Context, group, consumer string) (ChatEvent, EventAckFunc, error)
}
