package rabbitmq

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const amqpPort = nat.Port("5672/tcp")

// dialTestBroker возвращает канал к брокеру из TEST_RABBITMQ_URL или из контейнера.
func dialTestBroker(ctx context.Context, t *testing.T) *amqp.Channel {
	t.Helper()
	if os.Getenv("SKIP_RABBITMQ_TESTS") == "true" {
		t.Skip("Skipping RabbitMQ tests")
	}

	amqpURI := os.Getenv("TEST_RABBITMQ_URL")
	if amqpURI == "" {
		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "rabbitmq:3-management",
				ExposedPorts: []string{string(amqpPort)},
				WaitingFor:   wait.ForListeningPort(amqpPort).WithStartupTimeout(2 * time.Minute),
			},
			Started: true,
		})
		require.NoError(t, err)
		t.Cleanup(func() {
			if err := container.Terminate(context.Background()); err != nil {
				t.Logf("failed to terminate rabbitmq container: %v", err)
			}
		})

		host, err := container.Host(ctx)
		require.NoError(t, err)
		port, err := container.MappedPort(ctx, amqpPort)
		require.NoError(t, err)
		amqpURI = fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port())
	}

	var conn *amqp.Connection
	var err error
	for range 10 {
		if conn, err = amqp.Dial(amqpURI); err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ch, err := conn.Channel()
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}
