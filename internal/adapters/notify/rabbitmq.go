package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"mood-pipeline/internal/domain"
	"mood-pipeline/internal/infra/metrics"
)

const exchangeName = "mood.replies"

// RabbitPublisher публикует ответы пользователю через AMQP.
// Доставка fire-and-forget: подтверждений брокера не ждём.
type RabbitPublisher struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

var _ domain.ReplyPublisher = (*RabbitPublisher)(nil)

// NewRabbitPublisher создаёт издателя и проверяет подключение.
func NewRabbitPublisher(url string) (*RabbitPublisher, error) {
	if url == "" {
		return nil, errors.New("amqp url is empty")
	}
	p := &RabbitPublisher{url: url}
	if err := p.ensureChannel(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *RabbitPublisher) ensureChannel() error {
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return fmt.Errorf("dial amqp: %w", err)
		}
		p.conn = conn
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchangeName, "direct", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	p.ch = ch
	return nil
}

// Publish отправляет полезную нагрузку в канал пользователя.
func (p *RabbitPublisher) Publish(ctx context.Context, channelKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	err := p.ensureChannel()
	if err == nil {
		err = p.ch.PublishWithContext(ctx, exchangeName, channelKey, false, false, amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        payload,
		})
	}
	metrics.ObserveNetworkRequest("rabbitmq", "publish", channelKey, start, err)
	if err != nil {
		return fmt.Errorf("publish reply: %w", err)
	}
	return nil
}

// Close закрывает канал и подключение.
func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
