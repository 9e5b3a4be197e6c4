// Package events fans committed lifecycle transitions out to RabbitMQ so
// downstream consumers (compliance reporting, recycler billing) can follow
// the ledger without polling it. Publishing is strictly after commit: a
// broker outage never blocks or rolls back a transition.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/recychain/recychain/internal/ledger"
)

// AMQPPublisher publishes transition events to a topic exchange. Routing keys
// are "asset.<kind>" (asset.register, asset.sanitize, ...) so consumers can
// bind to the subset they care about.
type AMQPPublisher struct {
	Conn     *amqp.Connection
	Channel  *amqp.Channel
	Exchange string
}

func NewAMQPPublisher(amqpURL, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	return &AMQPPublisher{Conn: conn, Channel: ch, Exchange: exchange}, nil
}

var _ ledger.Publisher = (*AMQPPublisher)(nil)

func (p *AMQPPublisher) Publish(ctx context.Context, ev ledger.TransitionEvent) error {
	msg, err := buildPublishing(ev)
	if err != nil {
		return err
	}
	return p.Channel.PublishWithContext(ctx, p.Exchange, routingKey(ev), false, false, msg)
}

func (p *AMQPPublisher) Close() {
	p.Channel.Close()
	p.Conn.Close()
}

func routingKey(ev ledger.TransitionEvent) string {
	return "asset." + ev.Kind
}

// buildPublishing serializes the event into a persistent JSON message. The
// receipt id doubles as the message id so consumers can dedupe redeliveries.
func buildPublishing(ev ledger.TransitionEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		MessageId:    ev.ReceiptID,
		Timestamp:    ev.OccurredAt,
		DeliveryMode: amqp.Persistent,
	}, nil
}
