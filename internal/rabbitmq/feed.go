package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	librabbitmq "github.com/magabrotheeeer/purchasekit/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/purchasekit/internal/store"
)

// Verifier проверяет подписанные транзакции из очереди.
type Verifier interface {
	Verify(signed string) store.VerificationResult
}

// TransactionFeed — лента обновлений транзакций из очереди RabbitMQ.
type TransactionFeed struct {
	ch       *amqp.Channel
	queue    string
	verifier Verifier
	log      *slog.Logger
}

// NewTransactionFeed создаёт ленту поверх канала с объявленной очередью queue.
func NewTransactionFeed(ch *amqp.Channel, queue string, verifier Verifier, log *slog.Logger) *TransactionFeed {
	return &TransactionFeed{ch: ch, queue: queue, verifier: verifier, log: log}
}

// Updates читает очередь по одному сообщению и отдаёт результаты проверки подписи.
// Сообщение остаётся неподтверждённым, пока получатель не вызовет Ack или Reject результата.
// Канал закрывается после отмены ctx. Неразобранные сообщения отклоняются без возврата в очередь.
func (f *TransactionFeed) Updates(ctx context.Context) (<-chan store.VerificationResult, error) {
	const op = "rabbitmq.Updates"
	out := make(chan store.VerificationResult, 16)

	done, err := ConsumeDeliveries(ctx, f.log, f.ch, f.queue, 1, func(d amqp.Delivery) error {
		signed, err := DecodeTransactionMessage(d.Body)
		if err != nil {
			return err
		}
		result := f.verifier.Verify(signed)
		result.Delivery = delivery{d: d}
		select {
		case out <- result:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	go func() {
		<-done
		close(out)
	}()
	return out, nil
}

// delivery подтверждает сообщение брокеру после применения транзакции.
type delivery struct {
	d amqp.Delivery
}

func (a delivery) Ack() error {
	return a.d.Ack(false)
}

func (a delivery) Reject(requeue bool) error {
	return a.d.Nack(false, requeue)
}

// DecodeTransactionMessage достаёт подписанную транзакцию из тела сообщения.
func DecodeTransactionMessage(body []byte) (string, error) {
	const op = "rabbitmq.DecodeTransactionMessage"
	var msg librabbitmq.TransactionMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", fmt.Errorf("%s: %w: %v", op, ErrRejectMessage, err)
	}
	if msg.SignedTransaction == "" {
		return "", fmt.Errorf("%s: %w: empty signed_transaction", op, ErrRejectMessage)
	}
	return msg.SignedTransaction, nil
}
