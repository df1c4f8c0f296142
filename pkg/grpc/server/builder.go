package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	health "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

type Option func(*Options)

type Options struct {
	port              int
	listener          net.Listener
	logger            *zap.Logger
	reflection        bool
	enableLogging     bool
	maxRecvMsgBytes   int
	keepaliveTime     time.Duration
	unaryInterceptors []grpc.UnaryServerInterceptor
}

func WithPort(port int) Option {
	return func(o *Options) {
		o.port = port
	}
}

// WithListener serves on an existing listener instead of binding the port.
func WithListener(lis net.Listener) Option {
	return func(o *Options) {
		o.listener = lis
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		o.logger = logger
	}
}

func WithReflection(enabled bool) Option {
	return func(o *Options) {
		o.reflection = enabled
	}
}

func WithLogging(enabled bool) Option {
	return func(o *Options) {
		o.enableLogging = enabled
	}
}

// WithMaxRecvMsgSize caps inbound messages. Zero keeps the grpc default.
func WithMaxRecvMsgSize(bytes int) Option {
	return func(o *Options) {
		o.maxRecvMsgBytes = bytes
	}
}

// WithKeepalive pings idle clients after d. Zero keeps the grpc default.
func WithKeepalive(d time.Duration) Option {
	return func(o *Options) {
		o.keepaliveTime = d
	}
}

// WithUnaryInterceptors appends interceptors after recovery and logging.
func WithUnaryInterceptors(interceptors ...grpc.UnaryServerInterceptor) Option {
	return func(o *Options) {
		o.unaryInterceptors = append(o.unaryInterceptors, interceptors...)
	}
}

// Server wraps a grpc.Server with a health service and lifecycle logging.
type Server struct {
	grpcServer   *grpc.Server
	lis          net.Listener
	logger       *zap.Logger
	healthServer *health.Server
}

// New builds a server from the options. It binds the port unless a listener
// was supplied.
func New(opts ...Option) (*Server, error) {
	options := &Options{
		port:   50051,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = zap.NewNop()
	}

	lis, err := listen(options)
	if err != nil {
		return nil, err
	}

	grpcServer := grpc.NewServer(serverOptions(options)...)
	if options.reflection {
		reflection.Register(grpcServer)
	}

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	return &Server{
		grpcServer:   grpcServer,
		lis:          lis,
		logger:       options.logger.Named("grpc-server"),
		healthServer: healthServer,
	}, nil
}

func listen(o *Options) (net.Listener, error) {
	if o.listener != nil {
		return o.listener, nil
	}
	if o.port < 1 || o.port > 65535 {
		return nil, fmt.Errorf("invalid port %d: must be between 1 and 65535", o.port)
	}
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", o.port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d: %w", o.port, err)
	}
	return lis, nil
}

func serverOptions(o *Options) []grpc.ServerOption {
	// Recovery runs outermost so a panic anywhere below becomes codes.Internal.
	chain := []grpc.UnaryServerInterceptor{RecoveryInterceptor(o.logger)}
	if o.enableLogging {
		chain = append(chain, LoggingInterceptor(o.logger))
	}
	chain = append(chain, o.unaryInterceptors...)

	serverOpts := []grpc.ServerOption{grpc.ChainUnaryInterceptor(chain...)}
	if o.maxRecvMsgBytes > 0 {
		serverOpts = append(serverOpts, grpc.MaxRecvMsgSize(o.maxRecvMsgBytes))
	}
	if o.keepaliveTime > 0 {
		serverOpts = append(serverOpts,
			grpc.KeepaliveParams(keepalive.ServerParameters{Time: o.keepaliveTime}),
			grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
				MinTime:             o.keepaliveTime / 2,
				PermitWithoutStream: true,
			}),
		)
	}
	return serverOpts
}

// RegisterServiceWithHealth registers a service and marks it SERVING under
// serviceName.
func (s *Server) RegisterServiceWithHealth(serviceName string, registerFunc func(s *grpc.Server)) {
	registerFunc(s.grpcServer)

	if serviceName != "" {
		s.healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
		s.logger.Info("registered service with health check", zap.String("service", serviceName))
	}
}

// SetServiceHealth updates the health status of a specific service.
func (s *Server) SetServiceHealth(serviceName string, status healthpb.HealthCheckResponse_ServingStatus) {
	s.healthServer.SetServingStatus(serviceName, status)
	s.logger.Info("updated service health",
		zap.String("service", serviceName),
		zap.String("status", status.String()))
}

// Start serves in a goroutine and returns immediately.
func (s *Server) Start() {
	addr := s.lis.Addr().String()
	go func() {
		if err := s.grpcServer.Serve(s.lis); err != nil {
			s.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()
	s.logger.Info("gRPC server started", zap.String("addr", addr))
}

// Shutdown flips every service to NOT_SERVING, then stops gracefully. If ctx
// expires first the remaining RPCs are cut off.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("gRPC server shutting down")
	s.healthServer.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("gRPC server stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("forced shutdown due to timeout")
		s.grpcServer.Stop()
		return ctx.Err()
	}
}

// Addr returns the server's listening address.
func (s *Server) Addr() net.Addr {
	return s.lis.Addr()
}
