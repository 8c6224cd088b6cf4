// Package mqx publishes visitor events to RabbitMQ.
package mqx

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/lo"

	"visitor-beacon-api/internal/config"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
	Close() error
}

var ErrClosed = errors.New("mqx: publisher closed")

// RabbitPublisher publishes persistent JSON messages to a topic exchange.
// A single channel is shared, so publishes are serialized.
type RabbitPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// Open returns nil without error when RABBITMQ_URL is unset.
func Open(cfg *config.Config) (*RabbitPublisher, func(), error) {
	if cfg.MQ.URL == "" {
		return nil, func() {}, nil
	}
	p, err := NewRabbitPublisher(cfg.MQ.URL, cfg.MQ.Exchange)
	if err != nil {
		return nil, func() {}, err
	}
	return p, func() { _ = p.Close() }, nil
}

func NewRabbitPublisher(url string, exchange string) (*RabbitPublisher, error) {
	exchange = lo.Ternary(exchange != "", exchange, "events")
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &RabbitPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return ErrClosed
	}
	return p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    time.Now(),
		DeliveryMode: amqp.Persistent,
	})
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}
