// Package main проверяет готовность сервиса через gRPC health и завершается с кодом 0 только при SERVING.
// Используется как HEALTHCHECK контейнера.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/magabrotheeeer/purchasekit/internal/grpc/client"
	"github.com/magabrotheeeer/purchasekit/internal/grpc/server"
)

func main() {
	addr := flag.String("addr", "localhost:50051", "gRPC health address")
	timeout := flag.Duration("timeout", 3*time.Second, "check timeout")
	flag.Parse()

	if err := run(*addr, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(addr string, timeout time.Duration) error {
	c, err := client.NewHealthClient(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	status, err := c.Check(ctx, server.ServiceName)
	if err != nil {
		return err
	}
	fmt.Println(status.String())
	if status != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("service %s is %s", server.ServiceName, status)
	}
	return nil
}
