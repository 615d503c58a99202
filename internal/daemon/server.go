package daemon

import (
	"context"
	"fmt"
	"net"
	"os"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/krishhrana/whatsapp-mcp/internal/bus"
	"github.com/krishhrana/whatsapp-mcp/internal/status"
)

// ServiceName is the health service name the daemon reports under, next to
// the empty overall name.
const ServiceName = "wppmcp"

// HealthServer serves grpc.health.v1 on a Unix domain socket.
type HealthServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
	unsub      func()
	done       chan struct{}
}

// NewHealthServer binds socketPath. Both service names start NOT_SERVING.
func NewHealthServer(socketPath string, logger *zap.Logger) (*HealthServer, error) {
	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &HealthServer{
		grpcServer: srv,
		health:     hs,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger.Named("health"),
		done:       make(chan struct{}),
	}, nil
}

// Follow mirrors state machine transitions published on b into the health
// status until Stop.
func (s *HealthServer) Follow(b *bus.Bus, m *status.Machine) {
	events, unsub := b.Subscribe(status.EventStatusChanged, 16)
	s.unsub = unsub
	s.set(m.Current())
	go func() {
		for {
			select {
			case evt := <-events:
				if change, ok := evt.Payload.(status.StatusChange); ok {
					s.set(change.To)
				}
			case <-s.done:
				return
			}
		}
	}()
}

func (s *HealthServer) set(st status.State) {
	v := servingStatus(st)
	s.health.SetServingStatus("", v)
	s.health.SetServingStatus(ServiceName, v)
	s.logger.Debug("health status set", zap.String("state", string(st)), zap.String("health", v.String()))
}

func servingStatus(st status.State) healthpb.HealthCheckResponse_ServingStatus {
	if st == status.Serving {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// Start begins serving gRPC requests. Blocks until stopped.
func (s *HealthServer) Start() error {
	s.logger.Info("health server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop reports NOT_SERVING to watchers, shuts down gracefully and removes the
// socket file.
func (s *HealthServer) Stop(_ context.Context) {
	s.logger.Info("health server stopping")
	if s.unsub != nil {
		s.unsub()
	}
	close(s.done)
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	_ = os.Remove(s.socketPath)
}

// Check asks the daemon listening on socketPath for its health.
func Check(ctx context.Context, socketPath string) (*healthpb.HealthCheckResponse, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial health socket: %w", err)
	}
	defer func() { _ = conn.Close() }()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	return resp, nil
}
