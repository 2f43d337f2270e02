// Package event publishes session lifecycle events to RabbitMQ.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Type is the routing key of a lifecycle event.
type Type string

const (
	SessionCreated   Type = "session.created"
	PlayerJoined     Type = "player.joined"
	GameStarted      Type = "game.started"
	QuestionRevealed Type = "question.revealed"
	RoundCompleted   Type = "round.completed"
	GameFinished     Type = "game.finished"
)

// Event is the message body published for every lifecycle change.
type Event struct {
	Type       Type      `json:"type"`
	SessionID  string    `json:"sessionId"`
	PlayerID   string    `json:"playerId,omitempty"`
	QuestionID string    `json:"questionId,omitempty"`
	Category   string    `json:"category,omitempty"`
	Round      int       `json:"round"`
	Players    int       `json:"players"`
	OccurredAt time.Time `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type EventPublisher struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	enabled  bool
	logger   *slog.Logger

	mu sync.Mutex // amqp091 channels are not safe for concurrent publishing
}

// NewEventPublisher connects to RabbitMQ and declares the topic exchange.
// An empty URI yields a disabled publisher that drops every event.
func NewEventPublisher(uri, exchange string, logger *slog.Logger) (*EventPublisher, error) {
	if uri == "" {
		logger.Warn("AMQP URL is empty, event publishing is disabled")
		return &EventPublisher{exchange: exchange, logger: logger}, nil
	}

	conn, err := amqp091.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger.Info("event publisher initialized", "exchange", exchange)

	return &EventPublisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		enabled:  true,
		logger:   logger,
	}, nil
}

func (p *EventPublisher) Publish(ctx context.Context, ev Event) error {
	if !p.enabled {
		p.logger.Debug("event publishing disabled, skipping event", "type", ev.Type, "session", ev.SessionID)
		return nil
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx,
		p.exchange,      // exchange
		string(ev.Type), // routing key
		false,           // mandatory
		false,           // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    ev.OccurredAt,
			Body:         body,
			Headers: amqp091.Table{
				"event_type": string(ev.Type),
				"session_id": ev.SessionID,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("published event", "type", ev.Type, "session", ev.SessionID)
	return nil
}

func (p *EventPublisher) Close() error {
	if !p.enabled {
		return nil
	}

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Warn("error closing RabbitMQ channel", "error", err)
		}
	}

	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("error closing RabbitMQ connection: %w", err)
		}
	}

	return nil
}

// MockPublisher records events in memory
type MockPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *MockPublisher) Close() error { return nil }

// Events returns a copy of everything published so far.
func (m *MockPublisher) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Types returns the types of everything published so far, in order.
func (m *MockPublisher) Types() []Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]Type, len(m.events))
	for i, ev := range m.events {
		types[i] = ev.Type
	}
	return types
}
