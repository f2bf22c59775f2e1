package bootstrap

import (
	"fmt"

	"github.com/9triver/opcgw/internal/config"
	"github.com/sirupsen/logrus"
)

// Initialize 初始化所有模块
// 按照依赖顺序初始化：审计 -> 网关 -> Transport
func Initialize(cfg *config.Config) (*Opcgw, error) {
	opcgw := &Opcgw{Config: cfg}

	// 1. 初始化审计模块
	if err := bootstrapAudit(opcgw); err != nil {
		return nil, fmt.Errorf("failed to initialize audit module: %w", err)
	}

	// 2. 初始化网关
	if err := bootstrapGateway(opcgw); err != nil {
		opcgw.Stop()
		return nil, fmt.Errorf("failed to initialize gateway: %w", err)
	}

	// 3. 初始化 Transport 层
	if err := bootstrapTransport(opcgw); err != nil {
		opcgw.Stop()
		return nil, fmt.Errorf("failed to initialize transport layer: %w", err)
	}

	logrus.Info("All modules initialized successfully")
	return opcgw, nil
}
