package bootstrap

import (
	"fmt"
	"sync"

	"github.com/9triver/opcgw/internal/domain/certificate"
	"github.com/9triver/opcgw/internal/domain/gateway"
	"github.com/9triver/opcgw/internal/domain/gateway/endpoint"
	"github.com/9triver/opcgw/internal/domain/gateway/types"
	"github.com/9triver/opcgw/internal/domain/request"
	"github.com/9triver/opcgw/internal/domain/session"
	registryclient "github.com/9triver/opcgw/internal/infra/client/registry"
	twinclient "github.com/9triver/opcgw/internal/infra/client/twin"
	"github.com/9triver/opcgw/internal/websocket"
	"github.com/sirupsen/logrus"
)

// sessionDirectory 指向当前运行周期的会话注册器
// 注册器在每次启动时重新创建
type sessionDirectory struct {
	mu      sync.RWMutex
	current *session.Registrar
}

func (d *sessionDirectory) set(r *session.Registrar) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = r
}

// Sessions 当前会话快照，网关未运行时为空
func (d *sessionDirectory) Sessions() []types.SessionRef {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.current == nil {
		return nil
	}
	return d.current.Sessions()
}

// bootstrapGateway 初始化证书、后端客户端与网关核心
func bootstrapGateway(opcgw *Opcgw) error {
	gwCfg := &opcgw.Config.Gateway

	var cert *types.InstanceCertificate
	if gwCfg.CertificateFile != "" {
		c, err := certificate.LoadInstanceCertificate(gwCfg.CertificateFile, gwCfg.PrivateKeyFile, gwCfg.CertificateChainFiles)
		if err != nil {
			return fmt.Errorf("failed to load instance certificate: %w", err)
		}
		cert = c
		logrus.Infof("Instance certificate loaded: %s (thumbprint %s)", c.Certificate.Subject.CommonName, endpoint.Thumbprint(c.Raw()))
	} else {
		logrus.Warn("gateway.certificate_file not set, secured endpoints cannot sign sessions")
	}

	validator, err := certificate.NewValidator(gwCfg.TrustListDir)
	if err != nil {
		return fmt.Errorf("failed to load trust list: %w", err)
	}
	logrus.Infof("Trust list loaded: %d certificates", validator.Count())

	opcgw.Twin = twinclient.NewClient(opcgw.Config.Twin)
	opcgw.Registry = registryclient.NewClient(opcgw.Config.Registry)
	opcgw.Hub = websocket.NewHub()
	opcgw.Sessions = &sessionDirectory{}

	sessionCfg := session.ConfigFromGateway(gwCfg)
	server, err := gateway.NewServer(gateway.Options{
		Config:      gwCfg,
		Certificate: cert,
		NewRegistrar: func() (gateway.SessionRegistrar, error) {
			r := session.NewRegistrar(sessionCfg)
			r.Subscribe(opcgw.Hub.Publish)
			opcgw.Sessions.set(r)
			return r, nil
		},
		NewTracker: func() (gateway.RequestTracker, error) {
			return request.NewTracker(), nil
		},
		Validator: validator,
		Twin:      opcgw.Twin,
		Registry:  opcgw.Registry,
		Auditor:   opcgw.AuditManager,
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}
	opcgw.Gateway = server
	opcgw.Gateway.OnStateChange(func(state types.ServerState) {
		if state != types.ServerStateRunning {
			opcgw.Sessions.set(nil)
		}
	})

	logrus.Infof("Gateway initialized: %s", gwCfg.ApplicationURI)
	return nil
}
