// Package rabbitmq подключается к RabbitMQ, объявляет обменник и очереди обновлений транзакций
// и превращает очередь в ленту проверенных транзакций для сверки.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/streadway/amqp"
)

var errNoAttempts = errors.New("no connection attempts")

// Connect подключается к брокеру, делая до retries попыток с паузой delay.
// Ожидание между попытками прерывается отменой ctx.
func Connect(ctx context.Context, url string, retries int, delay time.Duration) (*amqp.Connection, error) {
	const op = "rabbitmq.Connect"

	lastErr := errNoAttempts
	for attempt := 0; attempt < max(retries, 1); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%s: %w (last error: %v)", op, ctx.Err(), lastErr)
			case <-time.After(delay):
			}
		}
		conn, err := amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%s: %w", op, lastErr)
}

// SetupChannel открывает канал и объявляет топологию: durable direct-обменник,
// durable очереди и их привязки.
func SetupChannel(conn *amqp.Connection, t Topology) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := declare(ch, t); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ch, nil
}

func declare(ch *amqp.Channel, t Topology) error {
	if t.Prefetch > 0 {
		if err := ch.Qos(t.Prefetch, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}
	}

	if err := ch.ExchangeDeclare(t.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.Exchange, err)
	}

	for _, q := range t.Queues {
		if _, err := ch.QueueDeclare(q.QueueName, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.QueueName, err)
		}
		if err := ch.QueueBind(q.QueueName, q.RoutingKey, t.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s/%s: %w", q.QueueName, t.Exchange, q.RoutingKey, err)
		}
	}
	return nil
}
