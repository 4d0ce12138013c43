// Package client — клиент gRPC-проверки здоровья сервиса.
package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type HealthClient struct {
	conn   *grpc.ClientConn
	client healthpb.HealthClient
}

// NewHealthClient создаёт клиент. Подключение устанавливается при первом запросе.
func NewHealthClient(addr string, opts ...grpc.DialOption) (*HealthClient, error) {
	const op = "client.NewHealthClient"
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &HealthClient{conn: conn, client: healthpb.NewHealthClient(conn)}, nil
}

func (c *HealthClient) Close() error {
	return c.conn.Close()
}

// Check возвращает статус сервиса service. Пустое имя означает сервер целиком.
func (c *HealthClient) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	const op = "client.Check"
	resp, err := c.client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("%s: %w", op, err)
	}
	return resp.GetStatus(), nil
}
