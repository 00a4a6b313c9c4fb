package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ReadinessCheck reports whether backing stores are reachable.
type ReadinessCheck func(ctx context.Context) error

// Server bundles the gRPC server with its health service.
type Server struct {
	*grpc.Server
	health *health.Server
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		recoverInterceptor(logger),
		loggingInterceptor(logger),
	))
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return &Server{Server: srv, health: healthSrv, logger: logger}
}

// WatchReadiness flips the overall health status whenever check changes outcome.
// It blocks until ctx is cancelled.
func (s *Server) WatchReadiness(ctx context.Context, check ReadinessCheck, interval time.Duration) {
	if check == nil {
		return
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	current := healthpb.HealthCheckResponse_SERVING
	for {
		next := s.probe(ctx, check)
		if next != current {
			s.logger.WarnContext(ctx, "grpc health status changed",
				"module", "grpc",
				"layer", "adapter",
				"operation", "watch_readiness",
				"outcome", next.String(),
			)
			s.health.SetServingStatus("", next)
			current = next
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) probe(ctx context.Context, check ReadinessCheck) healthpb.HealthCheckResponse_ServingStatus {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := check(probeCtx); err != nil {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

// Stop marks the server as not serving and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.Server.GracefulStop()
}

func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		level := slog.LevelDebug
		if err != nil {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "grpc call",
			"module", "grpc",
			"layer", "adapter",
			"operation", info.FullMethod,
			"outcome", status.Code(err).String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}

func recoverInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.ErrorContext(ctx, "grpc panic recovered",
					"module", "grpc",
					"layer", "adapter",
					"operation", info.FullMethod,
					"outcome", "panic",
					"panic", rec,
				)
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
