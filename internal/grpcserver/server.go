// Package grpcserver exposes the standard gRPC health service so orchestrators
// can hold traffic until the first index snapshot is published.
//
// The service reports NOT_SERVING until IndexReloaded is called, then
// SERVING until Stop.
package grpcserver

import (
	"context"
	"fmt"
	"net"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"jobmate/recommender-service/internal/events"
)

// ServiceName is the health-checked service name besides the overall "".
const ServiceName = "jobmate.recommender.v1.Recommender"

// Server wraps a grpc.Server carrying the health service.
type Server struct {
	srv    *grpc.Server
	health *health.Server
	logger *zap.Logger
}

// NewServer constructs a Server in the NOT_SERVING state.
func NewServer(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	panicHandler := func(p any) error {
		logger.Error("grpc handler panic", zap.Any("panic", p))
		return status.Errorf(codes.Internal, "%s", p)
	}

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			recovery.UnaryServerInterceptor(recovery.WithRecoveryHandler(panicHandler)),
			logging.UnaryServerInterceptor(interceptorLogger(logger)),
		),
		grpc.ChainStreamInterceptor(
			recovery.StreamServerInterceptor(recovery.WithRecoveryHandler(panicHandler)),
			logging.StreamServerInterceptor(interceptorLogger(logger)),
		),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	s := &Server{srv: srv, health: hs, logger: logger}
	s.setServing(false)
	return s
}

// IndexReloaded implements events.Notifier: a published snapshot makes the
// service ready.
func (s *Server) IndexReloaded(ctx context.Context, ev events.IndexReloaded) error {
	s.setServing(true)
	return nil
}

// Serve accepts connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("grpc listening", zap.String("addr", lis.Addr().String()))
	if err := s.srv.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Stop marks the service NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}

func (s *Server) setServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

func interceptorLogger(l *zap.Logger) logging.Logger {
	return logging.LoggerFunc(func(_ context.Context, lvl logging.Level, msg string, fields ...any) {
		s := l.Sugar()
		switch lvl {
		case logging.LevelDebug:
			s.Debugw(msg, fields...)
		case logging.LevelInfo:
			s.Infow(msg, fields...)
		case logging.LevelWarn:
			s.Warnw(msg, fields...)
		case logging.LevelError:
			s.Errorw(msg, fields...)
		default:
			panic(fmt.Sprintf("unknown level %v", lvl))
		}
	})
}
