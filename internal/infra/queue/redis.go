package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mood-pipeline/internal/domain"
	"mood-pipeline/internal/infra/metrics"
)

const (
	payloadField = "payload"
	// readBlock ограничивает блокирующее чтение, чтобы воркер успевал
	// реагировать на сигнал остановки.
	readBlock = 5 * time.Second
)

// RedisChatEventQueue реализует очередь событий чата на базе Redis Streams.
// Доставка at-least-once: запись остаётся pending до подтверждения.
type RedisChatEventQueue struct {
	client *redis.Client
	stream string

	mu     sync.Mutex
	groups map[string]bool
}

var _ domain.ChatEventQueue = (*RedisChatEventQueue)(nil)

// NewRedisChatEventQueue создаёт очередь по указанному ключу потока.
func NewRedisChatEventQueue(client *redis.Client, stream string) *RedisChatEventQueue {
	return &RedisChatEventQueue{client: client, stream: stream, groups: make(map[string]bool)}
}

func (q *RedisChatEventQueue) deadStream() string {
	return q.stream + ":dead"
}

// Append публикует событие в конец потока.
func (q *RedisChatEventQueue) Append(ctx context.Context, event domain.ChatEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	start := time.Now()
	err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{payloadField: payload},
	}).Err()
	metrics.ObserveNetworkRequest("redis", "xadd", q.stream, start, err)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (q *RedisChatEventQueue) ensureGroup(ctx context.Context, group string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.groups[group] {
		return nil
	}
	err := q.client.XGroupCreateMkStream(ctx, q.stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	q.groups[group] = true
	return nil
}

// Read блокирующе читает следующее событие группы. Нераспознанные записи
// уходят в dead-letter поток, подтверждаются и не возвращаются вызывающему.
func (q *RedisChatEventQueue) Read(ctx context.Context, group, consumer string) (domain.ChatEvent, domain.EventAckFunc, error) {
	if err := q.ensureGroup(ctx, group); err != nil {
		return domain.ChatEvent{}, nil, err
	}
	for {
		if err := ctx.Err(); err != nil {
			return domain.ChatEvent{}, nil, err
		}

		start := time.Now()
		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    1,
			Block:    readBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			metrics.ObserveNetworkRequest("redis", "xreadgroup", q.stream, start, err)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.ChatEvent{}, nil, ctx.Err()
				}
				continue
			}
			return domain.ChatEvent{}, nil, err
		}
		metrics.ObserveNetworkRequest("redis", "xreadgroup", q.stream, start, nil)

		if len(streams) == 0 || len(streams[0].Messages) == 0 {
			continue
		}
		msg := streams[0].Messages[0]

		event, err := decodeEvent(msg)
		if err != nil {
			if dlErr := q.deadLetter(ctx, group, msg, err); dlErr != nil {
				return domain.ChatEvent{}, nil, dlErr
			}
			continue
		}

		entryID := msg.ID
		ack := func(ackCtx context.Context) error {
			start := time.Now()
			err := q.client.XAck(ackCtx, q.stream, group, entryID).Err()
			metrics.ObserveNetworkRequest("redis", "xack", q.stream, start, err)
			return err
		}
		return event, ack, nil
	}
}

func decodeEvent(msg redis.XMessage) (domain.ChatEvent, error) {
	raw, ok := msg.Values[payloadField].(string)
	if !ok {
		return domain.ChatEvent{}, fmt.Errorf("запись %s без поля payload", msg.ID)
	}
	var event domain.ChatEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return domain.ChatEvent{}, fmt.Errorf("decode event %s: %w", msg.ID, err)
	}
	if event.UserID == 0 {
		return domain.ChatEvent{}, fmt.Errorf("запись %s без user_id", msg.ID)
	}
	return event, nil
}

// deadLetter переносит нераспознанную запись в отдельный поток и подтверждает её.
func (q *RedisChatEventQueue) deadLetter(ctx context.Context, group string, msg redis.XMessage, cause error) error {
	start := time.Now()
	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.deadStream(),
		Values: map[string]any{
			"id":       uuid.NewString(),
			"entry_id": msg.ID,
			"cause":    cause.Error(),
			"values":   fmt.Sprint(msg.Values),
		},
	}).Err()
	metrics.ObserveNetworkRequest("redis", "xadd", q.deadStream(), start, err)
	if err != nil {
		return fmt.Errorf("dead-letter: %w", err)
	}
	metrics.ChatEventsDeadLettered.Inc()
	return q.client.XAck(ctx, q.stream, group, msg.ID).Err()
}
