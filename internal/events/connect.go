package events

import (
	"io"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Connect dials the broker and returns a publisher that owns the connection. It falls back to
// Noop when url is empty or the broker is unreachable: events are best effort and must not keep a
// process from starting.
func Connect(url string, logger *log.Logger) Publisher {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if url == "" {
		logger.Printf("events: AMQP_URL not set, publishing disabled")
		return Noop{}
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		logger.Printf("events: dial broker error=%v, publishing disabled", err)
		return Noop{}
	}
	pub, err := NewRabbitPublisher(conn, logger)
	if err != nil {
		_ = conn.Close()
		logger.Printf("events: init publisher error=%v, publishing disabled", err)
		return Noop{}
	}
	return &connPublisher{RabbitPublisher: pub, conn: conn}
}

type connPublisher struct {
	*RabbitPublisher
	conn *amqp.Connection
}

func (p *connPublisher) Close() error {
	_ = p.RabbitPublisher.Close()
	return p.conn.Close()
}
