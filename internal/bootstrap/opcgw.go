package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/9triver/opcgw/internal/config"
	"github.com/9triver/opcgw/internal/domain/audit"
	"github.com/9triver/opcgw/internal/domain/gateway"
	registryclient "github.com/9triver/opcgw/internal/infra/client/registry"
	twinclient "github.com/9triver/opcgw/internal/infra/client/twin"
	"github.com/9triver/opcgw/internal/transport/http"
	"github.com/9triver/opcgw/internal/transport/rpc"
	"github.com/9triver/opcgw/internal/websocket"
	"github.com/sirupsen/logrus"
)

type Opcgw struct {
	// 配置
	Config *config.Config

	// 基础设施
	AuditManager *audit.Manager
	auditRepo    audit.Repository
	Twin         *twinclient.Client
	Registry     *registryclient.Client

	// 网关
	Gateway  *gateway.Server
	Sessions *sessionDirectory
	Hub      *websocket.Hub

	// Transport
	RPCManager *rpc.Manager
	HTTPServer *http.Server
}

// Start 启动网关及管理接口
func (opcgw *Opcgw) Start(ctx context.Context) error {
	go opcgw.Hub.Run()
	go opcgw.AuditManager.RunRetention(ctx, opcgw.Config.Database.AuditRetention(), time.Hour)

	if err := opcgw.Gateway.StartApplication(ctx); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}
	if err := opcgw.RPCManager.Start(); err != nil {
		return fmt.Errorf("failed to start rpc servers: %w", err)
	}
	if err := opcgw.HTTPServer.Start(); err != nil {
		return fmt.Errorf("failed to start http server: %w", err)
	}
	return nil
}

// Stop 停止所有服务并清理资源
func (opcgw *Opcgw) Stop() error {
	if opcgw.HTTPServer != nil {
		opcgw.HTTPServer.Stop()
	}
	if opcgw.Gateway != nil {
		opcgw.Gateway.OnServerStopping()
	}
	if opcgw.RPCManager != nil {
		opcgw.RPCManager.Stop()
		logrus.Info("RPC servers stopped")
	}
	if opcgw.Hub != nil {
		opcgw.Hub.Stop()
	}
	if opcgw.AuditManager != nil {
		opcgw.AuditManager.Flush()
	}
	if opcgw.auditRepo != nil {
		if err := opcgw.auditRepo.Close(); err != nil {
			logrus.Errorf("Error closing audit repository: %v", err)
		}
	}

	logrus.Info("All services stopped")
	return nil
}
