package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/purchasekit/internal/lib/sl"
)

// ErrRejectMessage — сообщение нельзя обработать ни сейчас, ни позже. Такое сообщение
// отклоняется без возврата в очередь, остальные ошибки возвращают его в очередь.
var ErrRejectMessage = errors.New("reject message")

// ConsumerMessage запускает потребителя очереди. Сообщения обрабатываются не более чем
// workers обработчиками одновременно и подтверждаются, как только обработчик вернул nil.
// Возвращённый канал закрывается, когда потребитель остановлен и все начатые обработчики завершились.
func ConsumerMessage(ctx context.Context, log *slog.Logger, ch *amqp.Channel, queueName string, workers int, handler func([]byte) error) (<-chan struct{}, error) {
	return ConsumeDeliveries(ctx, log, ch, queueName, workers, func(d amqp.Delivery) error {
		if err := handler(d.Body); err != nil {
			return err
		}
		if err := d.Ack(false); err != nil {
			log.Error("failed to ack message", slog.String("queue", queueName), sl.Err(err))
		}
		return nil
	})
}

// ConsumeDeliveries запускает потребителя, который передаёт подтверждение обработчику:
// при nil обработчик сам отвечает за Ack или Nack доставки, при ошибке доставка отклоняется
// здесь же (ErrRejectMessage — без возврата в очередь).
func ConsumeDeliveries(ctx context.Context, log *slog.Logger, ch *amqp.Channel, queueName string, workers int, handler func(amqp.Delivery) error) (<-chan struct{}, error) {
	const op = "rabbitmq.ConsumeDeliveries"
	log = log.With(slog.String("op", op), slog.String("queue", queueName))

	tag := queueName + "-" + uuid.NewString()
	delivery, err := ch.Consume(
		queueName,
		tag,
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	done := make(chan struct{})
	sem := make(chan struct{}, max(workers, 1))
	var wg sync.WaitGroup
	go func() {
		defer close(done)
		defer wg.Wait()
		for {
			select {
			case d, ok := <-delivery:
				if !ok {
					return
				}
				sem <- struct{}{}
				wg.Add(1)
				go func(delivery amqp.Delivery) {
					defer wg.Done()
					defer func() { <-sem }()
					if err := handler(delivery); err != nil {
						requeue := !errors.Is(err, ErrRejectMessage)
						log.Warn("message handling failed", sl.Err(err), slog.Bool("requeue", requeue))
						if nackErr := delivery.Nack(false, requeue); nackErr != nil {
							log.Error("failed to nack message", sl.Err(nackErr))
						}
					}
				}(d)
			case <-ctx.Done():
				if err := ch.Cancel(tag, false); err != nil {
					log.Warn("failed to cancel consumer", sl.Err(err))
				}
				return
			}
		}
	}()
	return done, nil
}
