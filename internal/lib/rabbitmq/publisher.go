package rabbitmq

import (
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"
)

// Publisher binds a channel to the notifications exchange so services can
// depend on a narrow Publish method.
type Publisher struct {
	Ch       *amqp.Channel
	Exchange string
}

// Publish sends a JSON-encoded message with the given routing key.
func (p *Publisher) Publish(routingKey string, message any) error {
	return PublishMessage(p.Ch, p.Exchange, routingKey, message)
}

// PublishMessage publishes a JSON-encoded message to the exchange.
func PublishMessage(ch *amqp.Channel, exchange string, routingkey string, message any) error {
	const op = "rabbitmq.PublishMessage"
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = ch.Publish(
		exchange,
		routingkey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
