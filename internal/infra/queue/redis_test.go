package queue

import (
	"testing"

	"github.com/redis/go-redis/v9"

	"mood-pipeline/internal/domain"
)

func TestDecodeEvent(t *testing.T) {
	msg := redis.XMessage{
		ID: "1-0",
		Values: map[string]interface{}{
			payloadField: `{"event_id":"evt-1","user_id":7,"text":"привет","speaker":"USER","created_at_ms":1756000000000}`,
		},
	}
	event, err := decodeEvent(msg)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if event.UserID != 7 || event.Speaker != domain.RoleUser {
		t.Fatalf("неожиданное событие: %+v", event)
	}
	if event.CreatedAtMillis != 1756000000000 {
		t.Fatalf("ожидали исходное время события, получили %d", event.CreatedAtMillis)
	}
}

func TestDecodeEventRejectsGarbage(t *testing.T) {
	cases := []redis.XMessage{
		{ID: "1-0", Values: map[string]interface{}{}},
		{ID: "2-0", Values: map[string]interface{}{payloadField: "не json"}},
		{ID: "3-0", Values: map[string]interface{}{payloadField: `{"text":"без пользователя"}`}},
	}
	for _, msg := range cases {
		if _, err := decodeEvent(msg); err == nil {
			t.Fatalf("запись %s должна отклоняться", msg.ID)
		}
	}
}
