package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dosada05/debate-arena/services"
	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// Publisher публикует события ядра в topic-exchange RabbitMQ для внешних
// потребителей (аналитика, история партий). Доставка fire-and-forget: ошибка
// публикации логируется и не влияет на исход матча.
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *slog.Logger
	mu       sync.Mutex
}

func NewPublisher(url, exchange string, logger *slog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

type envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func (p *Publisher) NotifyMatch(matchID int64, eventType string, payload interface{}) {
	p.publish(fmt.Sprintf("match.%d", matchID), eventType, payload)
}

func (p *Publisher) NotifyPlayer(playerID int64, eventType string, payload interface{}) {
	p.publish(fmt.Sprintf("player.%d", playerID), eventType, payload)
}

func (p *Publisher) publish(routingKey, eventType string, payload interface{}) {
	body, err := json.Marshal(envelope{Type: eventType, Payload: payload})
	if err != nil {
		p.logger.Error("failed to marshal event",
			slog.String("event", eventType), slog.Any("error", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now().UTC(),
			Body:        body,
		},
	)
	if err != nil {
		p.logger.Error("failed to publish event",
			slog.String("event", eventType),
			slog.String("routing_key", routingKey),
			slog.Any("error", err),
		)
	}
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

var _ services.Notifier = (*Publisher)(nil)
