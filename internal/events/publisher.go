package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"cedar-commerce/internal/correlation"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange is the topic exchange all storefront events go to.
const Exchange = "cedar.events"

const producer = "cedar-commerce"

// Publisher emits domain events after the state change they describe has committed.
type Publisher interface {
	CartConverted(ctx context.Context, ev CartConverted) error
	QuoteStatusChanged(ctx context.Context, ev QuoteStatusChanged) error
	Close() error
}

type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher publishes JSON envelopes to the topic exchange.
type RabbitPublisher struct {
	ch     channel
	logger *log.Logger
	now    func() time.Time
}

func NewRabbitPublisher(conn *amqp.Connection, logger *log.Logger) (*RabbitPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p, err := newRabbitPublisher(ch, logger)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	return p, nil
}

func newRabbitPublisher(ch channel, logger *log.Logger) (*RabbitPublisher, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	// Declare the exchange so publish never fails due to missing infra.
	if err := ch.ExchangeDeclare(Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare %s: %w", Exchange, err)
	}
	return &RabbitPublisher{ch: ch, logger: logger, now: time.Now}, nil
}

func (p *RabbitPublisher) Close() error {
	return p.ch.Close()
}

func (p *RabbitPublisher) CartConverted(ctx context.Context, ev CartConverted) error {
	env := newEnvelope(EventCartConverted, 1, producer, ev.CartID, correlation.FromContext(ctx), ev, p.now())
	return p.publish(ctx, env.RoutingKey(), env)
}

func (p *RabbitPublisher) QuoteStatusChanged(ctx context.Context, ev QuoteStatusChanged) error {
	env := newEnvelope(EventQuoteStatusChanged, 1, producer, ev.QuoteID, correlation.FromContext(ctx), ev, p.now())
	return p.publish(ctx, env.RoutingKey(), env)
}

func (p *RabbitPublisher) publish(ctx context.Context, routingKey string, env any) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", routingKey, err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	err = p.ch.PublishWithContext(pubCtx, Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.logger.Printf("events: publish key=%s error=%v", routingKey, err)
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

// Noop discards events. Used when no broker is configured.
type Noop struct{}

func (Noop) CartConverted(context.Context, CartConverted) error { return nil }

func (Noop) QuoteStatusChanged(context.Context, QuoteStatusChanged) error { return nil }

func (Noop) Close() error { return nil }
