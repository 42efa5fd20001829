package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cedar-commerce/internal/correlation"
	"cedar-commerce/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

type fakeChannel struct {
	declared  []string
	published []amqp.Publishing
	keys      []string
	err       error
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	f.declared = append(f.declared, name+":"+kind)
	return nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, exchange+"/"+key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func TestQuoteStatusChangedEnvelope(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newRabbitPublisher(ch, nil)
	if err != nil {
		t.Fatalf("newRabbitPublisher: %v", err)
	}
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	ctx, _ := correlation.WithID(context.Background(), "corr-9")
	err = p.QuoteStatusChanged(ctx, QuoteStatusChanged{
		QuoteID: "q-1", CustomerID: "u-1", From: domain.QuotePendingCustomer, To: domain.QuoteAccepted, Actor: domain.PartyCustomer,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(ch.declared) != 1 || ch.declared[0] != "cedar.events:topic" {
		t.Fatalf("unexpected declarations %v", ch.declared)
	}
	if ch.keys[0] != "cedar.events/quote.status_changed.v1" {
		t.Fatalf("unexpected routing %v", ch.keys)
	}
	msg := ch.published[0]
	if msg.ContentType != "application/json" || msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected publishing %+v", msg)
	}

	var env EventEnvelope[QuoteStatusChanged]
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := env.Validate(EventQuoteStatusChanged, 1); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if env.PartitionKey != "q-1" || env.CorrelationID != "corr-9" || env.EventID == "" || !env.OccurredAt.Equal(now) {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if env.Payload.To != domain.QuoteAccepted {
		t.Fatalf("unexpected payload %+v", env.Payload)
	}
}

func TestPublishFailureIsReturned(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p, err := newRabbitPublisher(ch, nil)
	if err != nil {
		t.Fatalf("newRabbitPublisher: %v", err)
	}
	if err := p.CartConverted(context.Background(), CartConverted{CartID: "c-1"}); err == nil {
		t.Fatalf("expected publish error")
	}
}
