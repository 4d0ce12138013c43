package rabbitmq

// Обменник и очередь обновлений транзакций.
const (
	TransactionsExchange = "transactions"
	UpdatesQueue         = "transactions.updates"
	UpdatesRoutingKey    = "updates"
)

// Prefetch для ленты: обновления применяются по одному.
const transactionsPrefetch = 1

// QueueConfig — очередь и ключ, которым она привязана к обменнику.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// Topology — обменник и привязанные к нему очереди.
type Topology struct {
	Exchange string
	Prefetch int
	Queues   []QueueConfig
}

// TransactionTopology возвращает топологию ленты обновлений транзакций.
func TransactionTopology() Topology {
	return Topology{
		Exchange: TransactionsExchange,
		Prefetch: transactionsPrefetch,
		Queues: []QueueConfig{
			{QueueName: UpdatesQueue, RoutingKey: UpdatesRoutingKey},
		},
	}
}
