// Package rabbitmq публикует сообщения в RabbitMQ.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
)

// TransactionMessage — сообщение очереди обновлений: подписанная транзакция магазина.
type TransactionMessage struct {
	SignedTransaction string `json:"signed_transaction"`
}

// PublishMessage публикует сообщение в RabbitMQ.
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

// Publisher отправляет подписанные транзакции в обменник обновлений.
type Publisher struct {
	mu         sync.Mutex
	ch         *amqp.Channel
	exchange   string
	routingKey string
}

// NewPublisher создаёт издателя поверх открытого канала.
func NewPublisher(ch *amqp.Channel, exchange, routingKey string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange, routingKey: routingKey}
}

// PublishTransaction публикует подписанную транзакцию.
func (p *Publisher) PublishTransaction(ctx context.Context, signed string) error {
	const op = "rabbitmq.PublishTransaction"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if signed == "" {
		return fmt.Errorf("%s: %w", op, errors.New("empty signed transaction"))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := PublishMessage(p.ch, p.exchange, p.routingKey, TransactionMessage{SignedTransaction: signed}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
