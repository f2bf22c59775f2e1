package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/9triver/opcgw/internal/config"
	auditAPI "github.com/9triver/opcgw/internal/transport/http/audit"
	authAPI "github.com/9triver/opcgw/internal/transport/http/auth"
	gatewayAPI "github.com/9triver/opcgw/internal/transport/http/gateway"
	httpauth "github.com/9triver/opcgw/internal/transport/http/util/auth"
	"github.com/9triver/opcgw/internal/websocket"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Options struct {
	Port     int
	Config   *config.Config
	Gateway  gatewayAPI.Gateway
	Sessions gatewayAPI.SessionLister
	Methods  gatewayAPI.MethodMetadata
	Hub      *websocket.Hub
	AuditMgr auditAPI.OperationQuerier
}

type Server struct {
	Server *http.Server
	Router *mux.Router
	Issuer *httpauth.Issuer
}

func NewServer(opts Options) *Server {
	router := mux.NewRouter()
	issuer := httpauth.NewIssuer(opts.Config.Auth.JWTSecret, httpauth.DefaultTokenExpiration)

	// 登录和状态接口无需认证
	router.Use(httpauth.Middleware(issuer, "/auth/login", "/status"))

	authAPI.RegisterRoutes(router, &opts.Config.Auth, issuer)
	gatewayAPI.RegisterRoutes(router, opts.Gateway, opts.Sessions, opts.Methods, opts.Hub)
	if opts.AuditMgr != nil {
		auditAPI.RegisterRoutes(router, opts.AuditMgr)
	}

	return &Server{
		Server: &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", opts.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		Router: router,
		Issuer: issuer,
	}
}

// Start 监听端口并在后台提供服务，监听失败时返回错误
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Server.Addr, err)
	}
	go func() {
		if err := s.Server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("HTTP server exited: %v", err)
		}
	}()
	logrus.Infof("HTTP server started on %s", s.Server.Addr)
	return nil
}

func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Server.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Failed to stop HTTP server")
	}
	logrus.Info("HTTP server stopped")
}
