package rpc

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/9triver/opcgw/internal/domain/gateway/types"
)

// GatewayService 健康检查中网关对应的服务名
const GatewayService = "opcgw.Gateway"

type server struct {
	Server   *grpc.Server
	Listener net.Listener
}

func (rs *server) GracefulStop() {
	if rs == nil {
		return
	}
	if rs.Server != nil {
		rs.Server.GracefulStop()
	}
	if rs.Listener != nil {
		_ = rs.Listener.Close()
	}
}

func (rs *server) Stop() {
	if rs == nil {
		return
	}
	if rs.Server != nil {
		rs.Server.Stop()
	}
	if rs.Listener != nil {
		_ = rs.Listener.Close()
	}
}

// StateSource 网关运行状态来源
type StateSource interface {
	State() types.ServerState
	OnStateChange(handler func(types.ServerState))
}

// Options enumerates all required fields to start RPC servers.
type Options struct {
	HealthAddr       string
	Gateway          StateSource
	HealthServerOpts []grpc.ServerOption
}

// Manager manages the lifecycle of RPC servers.
type Manager struct {
	Health    *server
	Options   Options
	health    *health.Server
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewManager creates a new RPC server manager.
func NewManager(opts Options) *Manager {
	return &Manager{
		Options: opts,
		health:  health.NewServer(),
	}
}

// Start 启动健康检查服务，状态随网关运行状态切换
func (m *Manager) Start() error {
	if m.Options.Gateway == nil {
		return errors.New("gateway is required")
	}
	if m.Options.HealthAddr == "" {
		return errors.New("health listen address is required")
	}

	var err error
	m.startOnce.Do(func() {
		m.setState(m.Options.Gateway.State())
		m.Options.Gateway.OnStateChange(m.setState)

		var s *server
		s, err = startServer(m.Options.HealthAddr, m.Options.HealthServerOpts, func(s *grpc.Server) {
			healthpb.RegisterHealthServer(s, m.health)
			reflection.Register(s)
		})
		if err != nil {
			logrus.WithError(err).Error("failed to start health server")
			return
		}
		logrus.Infof("Health server listening on %s", s.Listener.Addr())
		m.Health = s
	})
	return err
}

func (m *Manager) setState(state types.ServerState) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state == types.ServerStateRunning {
		status = healthpb.HealthCheckResponse_SERVING
	}
	m.health.SetServingStatus("", status)
	m.health.SetServingStatus(GatewayService, status)
	logrus.Debugf("Health status set to %s", status)
}

// Stop stops all RPC servers gracefully.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.health.Shutdown()
		shutdownWithTimeout(m.Health, 30*time.Second)
	})
}

func shutdownWithTimeout(s *server, timeout time.Duration) {
	if s == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(timeout):
		logrus.Warn("grpc server graceful stop timed out, forcing stop")
		s.Stop()
	}
}

func startServer(addr string, opts []grpc.ServerOption, register func(*grpc.Server)) (*server, error) {
	lis, err := net.Listen("tcp4", addr)
	if err != nil {
		return nil, err
	}

	s := grpc.NewServer(opts...)
	register(s)

	go func() {
		if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logrus.WithError(err).Error("grpc server stopped unexpectedly")
		}
	}()

	return &server{Server: s, Listener: lis}, nil
}
