package queue

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/streadway/amqp"

	"github.com/outreachly/voicecampaign-backend/internal/model"
)

// EventPublisher receives one CallEvent per dispatch outcome or reconciled
// webhook. Publishing is fire-and-forget from the caller's point of view: a
// broken audit stream must never fail a tick.
type EventPublisher interface {
	Publish(event model.CallEvent) error
}

// InMemoryPublisher fans events out to in-process subscribers. Used in tests
// and single-binary runs without a broker.
type InMemoryPublisher struct {
	mu       sync.Mutex
	handlers []func(model.CallEvent)
}

func NewInMemoryPublisher() *InMemoryPublisher {
	return &InMemoryPublisher{}
}

func (p *InMemoryPublisher) Subscribe(handler func(model.CallEvent)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, handler)
}

func (p *InMemoryPublisher) Publish(event model.CallEvent) error {
	p.mu.Lock()
	handlers := append([]func(model.CallEvent){}, p.handlers...)
	p.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}

// CallEventsQueue is the broker queue the audit worker consumes.
const CallEventsQueue = "call_events"

// AMQPPublisher publishes call events to a durable broker queue.
type AMQPPublisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	_, err = ch.QueueDeclare(
		CallEventsQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, ch: ch}, nil
}

// Close releases the channel and the underlying connection.
func (p *AMQPPublisher) Close() error {
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

func (p *AMQPPublisher) Publish(event model.CallEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	err = p.ch.Publish(
		"",
		CallEventsQueue,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		log.Println("⚠️ Failed to publish call event:", err)
	}
	return err
}

var _ EventPublisher = (*InMemoryPublisher)(nil)
var _ EventPublisher = (*AMQPPublisher)(nil)
