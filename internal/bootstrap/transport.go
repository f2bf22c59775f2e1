package bootstrap

import (
	"fmt"

	"github.com/9triver/opcgw/internal/transport/http"
	"github.com/9triver/opcgw/internal/transport/rpc"
	"github.com/sirupsen/logrus"
)

// bootstrapTransport 初始化管理接口与健康检查（不启动）
func bootstrapTransport(opcgw *Opcgw) error {
	opcgw.RPCManager = rpc.NewManager(rpc.Options{
		HealthAddr: fmt.Sprintf("0.0.0.0:%d", opcgw.Config.Transport.RPC.Health.Port),
		Gateway:    opcgw.Gateway,
	})

	opcgw.HTTPServer = http.NewServer(http.Options{
		Port:     opcgw.Config.Transport.HTTP.Port,
		Config:   opcgw.Config,
		Gateway:  opcgw.Gateway,
		Sessions: opcgw.Sessions,
		Methods:  opcgw.Twin,
		Hub:      opcgw.Hub,
		AuditMgr: opcgw.AuditManager,
	})

	logrus.Info("Transport layer initialized")
	return nil
}
