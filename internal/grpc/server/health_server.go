// Package server реализует gRPC-сервис проверки здоровья, который отражает готовность
// контроллера покупок: NOT_SERVING до окончания загрузки, SERVING после неё.
package server

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName — имя сервиса в ответах проверки здоровья.
const ServiceName = "purchasekit"

// LoadState сообщает об окончании загрузки.
type LoadState interface {
	Loaded() <-chan struct{}
}

// HealthServer управляет статусом стандартного gRPC health-сервиса.
type HealthServer struct {
	health *health.Server
	log    *slog.Logger
}

// NewHealthServer создаёт сервис в состоянии NOT_SERVING.
func NewHealthServer(log *slog.Logger) *HealthServer {
	h := health.NewServer()
	h.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{health: h, log: log}
}

// Register регистрирует сервис на gRPC-сервере.
func (s *HealthServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.health)
}

// Watch переводит сервис в SERVING, когда state загрузится. Возвращается после этого или отмены ctx.
func (s *HealthServer) Watch(ctx context.Context, state LoadState) {
	select {
	case <-state.Loaded():
		s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		s.log.Info("health status changed", slog.String("status", healthpb.HealthCheckResponse_SERVING.String()))
	case <-ctx.Done():
	}
}

// Shutdown переводит все сервисы в NOT_SERVING и запрещает дальнейшие изменения.
func (s *HealthServer) Shutdown() {
	s.health.Shutdown()
	s.log.Info("health status changed", slog.String("status", healthpb.HealthCheckResponse_NOT_SERVING.String()))
}
