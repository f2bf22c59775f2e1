package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/9triver/opcgw/internal/config"
	audittypes "github.com/9triver/opcgw/internal/domain/audit/types"
	"github.com/9triver/opcgw/internal/domain/gateway/types"
	"github.com/awcullen/opcua/ua"
	"github.com/sirupsen/logrus"
)

// Options 网关构造参数
type Options struct {
	Config      *config.GatewayConfig
	Certificate *types.InstanceCertificate

	// 启动时创建，停止时释放
	NewRegistrar func() (SessionRegistrar, error)
	NewTracker   func() (RequestTracker, error)

	Validator CertificateValidator
	Twin      TwinClient
	Registry  RegistryClient
	Auditor   Auditor // 可选
}

// Server 网关核心，实现会话协议服务集
// 自身不持有地址空间，所有操作转发到后端服务
type Server struct {
	cfg          *config.GatewayConfig
	cert         *types.InstanceCertificate
	newRegistrar func() (SessionRegistrar, error)
	newTracker   func() (RequestTracker, error)
	validator    CertificateValidator
	twin         TwinClient
	registry     RegistryClient
	auditor      Auditor

	lifecycleMu sync.Mutex // 串行化 StartApplication / OnServerStopping

	mu          sync.Mutex // 保护以下字段
	state       types.ServerState
	tracker     RequestTracker
	registrar   SessionRegistrar
	summary     types.DiagnosticsSummary
	serverError error
	startedAt   time.Time

	stateMu       sync.RWMutex
	stateHandlers []func(types.ServerState)
}

// NewServer 创建网关核心，初始状态为 Shutdown
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("gateway config is required")
	}
	if opts.NewRegistrar == nil || opts.NewTracker == nil {
		return nil, errors.New("registrar and tracker factories are required")
	}
	if opts.Twin == nil || opts.Registry == nil {
		return nil, errors.New("twin and registry clients are required")
	}
	return &Server{
		cfg:          opts.Config,
		cert:         opts.Certificate,
		newRegistrar: opts.NewRegistrar,
		newTracker:   opts.NewTracker,
		validator:    opts.Validator,
		twin:         opts.Twin,
		registry:     opts.Registry,
		auditor:      opts.Auditor,
		state:        types.ServerStateShutdown,
	}, nil
}

// StartApplication 创建请求跟踪器与会话注册器后进入 Running
// 任何失败都会回到 Shutdown 并记录为服务器错误
func (s *Server) StartApplication(ctx context.Context) (err error) {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.State() == types.ServerStateRunning {
		return nil
	}

	var (
		tracker   RequestTracker
		registrar SessionRegistrar
	)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during start: %v", r)
		}
		if err == nil {
			return
		}
		if registrar != nil {
			registrar.Close()
		}
		if tracker != nil {
			tracker.Close()
		}
		s.mu.Lock()
		s.state = types.ServerStateShutdown
		s.serverError = err
		s.mu.Unlock()
		logrus.Errorf("Gateway failed to start: %v", err)
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if tracker, err = s.newTracker(); err != nil {
		return fmt.Errorf("failed to create request tracker: %w", err)
	}
	if registrar, err = s.newRegistrar(); err != nil {
		return fmt.Errorf("failed to create session registrar: %w", err)
	}
	registrar.Subscribe(s.onSessionEvent)

	s.mu.Lock()
	s.tracker = tracker
	s.registrar = registrar
	s.state = types.ServerStateRunning
	s.serverError = nil
	s.startedAt = time.Now()
	s.mu.Unlock()

	logrus.Infof("Gateway %s running", s.cfg.ApplicationURI)
	s.audit(&audittypes.OperationLog{
		User:         "system",
		Operation:    audittypes.OperationTypeStartServer,
		ResourceID:   s.cfg.ApplicationURI,
		ResourceType: "server",
		Action:       "gateway started",
		Status:       statusString(ua.Good),
	})
	s.notifyState(types.ServerStateRunning)
	return nil
}

// OnServerStopping 释放请求跟踪器与会话注册器并回到 Shutdown，可重复调用
func (s *Server) OnServerStopping() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	tracker, registrar := s.tracker, s.registrar
	s.tracker, s.registrar = nil, nil
	wasRunning := s.state == types.ServerStateRunning
	s.state = types.ServerStateShutdown
	s.mu.Unlock()

	if tracker != nil {
		if err := tracker.Close(); err != nil {
			logrus.Warnf("Failed to close request tracker: %v", err)
		}
	}
	if registrar != nil {
		if err := registrar.Close(); err != nil {
			logrus.Warnf("Failed to close session registrar: %v", err)
		}
	}
	if !wasRunning {
		return
	}

	logrus.Infof("Gateway %s stopped", s.cfg.ApplicationURI)
	s.audit(&audittypes.OperationLog{
		User:         "system",
		Operation:    audittypes.OperationTypeStopServer,
		ResourceID:   s.cfg.ApplicationURI,
		ResourceType: "server",
		Action:       "gateway stopped",
		Status:       statusString(ua.Good),
	})
	s.notifyState(types.ServerStateShutdown)
}

// State 当前运行状态
func (s *Server) State() types.ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ServerError 最近一次启动失败的错误
func (s *Server) ServerError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverError
}

// StartedAt 最近一次进入 Running 的时间
func (s *Server) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Summary 诊断计数快照
func (s *Server) Summary() types.DiagnosticsSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// ApplicationURI 网关自身的 ApplicationUri
func (s *Server) ApplicationURI() string {
	return s.cfg.ApplicationURI
}

// OnStateChange 注册运行状态变化回调
func (s *Server) OnStateChange(handler func(types.ServerState)) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.stateHandlers = append(s.stateHandlers, handler)
}

func (s *Server) notifyState(state types.ServerState) {
	s.stateMu.RLock()
	handlers := make([]func(types.ServerState), len(s.stateHandlers))
	copy(handlers, s.stateHandlers)
	s.stateMu.RUnlock()

	for _, h := range handlers {
		h(state)
	}
}

func (s *Server) onSessionEvent(ev types.SessionEvent) {
	s.mu.Lock()
	switch ev.Type {
	case types.SessionEventCreated:
		s.summary.CurrentSessionCount++
		s.summary.CumulatedSessionCount++
	case types.SessionEventClosing:
		if s.summary.CurrentSessionCount > 0 {
			s.summary.CurrentSessionCount--
		}
	case types.SessionEventTimeout:
		s.summary.SessionTimeoutCount++
	}
	s.mu.Unlock()

	if ev.Type == types.SessionEventTimeout {
		logrus.WithField("session", ev.SessionID).Info("Session timed out")
	}
}

// countRejected 失败请求计数，会话类请求同时计入会话拒绝
func (s *Server) countRejected(err error, sessionRequest bool) {
	security := IsSecurityError(StatusOf(err))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary.RejectedRequestsCount++
	if security {
		s.summary.SecurityRejectedRequestsCount++
	}
	if sessionRequest {
		s.summary.RejectedSessionCount++
		if security {
			s.summary.SecurityRejectedSessionCount++
		}
	}
}

type collaborators struct {
	registrar SessionRegistrar
	tracker   RequestTracker
}

// begin 校验请求头与运行状态，创建请求上下文并登记到跟踪器
func (s *Server) begin(ctx context.Context, ch *types.Channel, header *ua.RequestHeader, rt types.RequestType) (*types.RequestContext, collaborators, error) {
	if header == nil {
		return nil, collaborators{}, NewServiceError(ua.BadRequestHeaderInvalid, nil)
	}
	if ch == nil {
		return nil, collaborators{}, NewServiceError(ua.BadSecureChannelIDInvalid, nil)
	}

	s.mu.Lock()
	state := s.state
	c := collaborators{registrar: s.registrar, tracker: s.tracker}
	s.mu.Unlock()

	if state != types.ServerStateRunning {
		return nil, collaborators{}, NewServiceError(ua.BadServerHalted, nil)
	}

	rc, err := c.registrar.GetContext(ctx, ch, header, rt)
	if err != nil {
		return nil, collaborators{}, err
	}
	c.tracker.RequestReceived(rc)
	return rc, c, nil
}

func (s *Server) complete(rc *types.RequestContext, c collaborators) {
	c.tracker.RequestCompleted(rc)
	rc.Release()
}

// serve 所有服务入口的统一包装：校验、登记、执行、计数、注销
func serve[T any](s *Server, ctx context.Context, ch *types.Channel, header *ua.RequestHeader, rt types.RequestType,
	op func(rc *types.RequestContext, c collaborators) (T, error)) (result T, err error) {
	sessionRequest := rt == types.RequestTypeCreateSession || rt == types.RequestTypeActivateSession
	defer func() {
		if r := recover(); r != nil {
			err = Errorf(ua.BadUnexpectedError, "panic in %s: %v", rt, r)
		}
		if err != nil {
			s.countRejected(err, sessionRequest)
			logrus.WithFields(logrus.Fields{
				"request": rt.String(),
				"status":  statusString(StatusOf(err)),
			}).Debugf("Request rejected: %v", err)
		}
	}()

	rc, c, err := s.begin(ctx, ch, header, rt)
	if err != nil {
		return result, err
	}
	defer s.complete(rc, c)

	return op(rc, c)
}

func (s *Server) responseHeader(rc *types.RequestContext) ua.ResponseHeader {
	return ua.ResponseHeader{
		Timestamp:     time.Now(),
		RequestHandle: rc.RequestHandle,
		ServiceResult: ua.Good,
	}
}

func (s *Server) audit(log *audittypes.OperationLog) {
	if s.auditor == nil {
		return
	}
	s.auditor.RecordAsync(log)
}

func statusString(code ua.StatusCode) string {
	return fmt.Sprintf("0x%08X", uint32(code))
}

// TranslateBrowsePathsToNodeIDs 不支持路径解析，始终返回空结果
func (s *Server) TranslateBrowsePathsToNodeIDs(ctx context.Context, ch *types.Channel, req *ua.TranslateBrowsePathsToNodeIDsRequest) (*ua.TranslateBrowsePathsToNodeIDsResponse, error) {
	return serve(s, ctx, ch, &req.RequestHeader, types.RequestTypeTranslateBrowsePaths,
		func(rc *types.RequestContext, _ collaborators) (*ua.TranslateBrowsePathsToNodeIDsResponse, error) {
			if len(req.BrowsePaths) == 0 {
				return nil, NewServiceError(ua.BadNothingToDo, nil)
			}
			return &ua.TranslateBrowsePathsToNodeIDsResponse{
				ResponseHeader: s.responseHeader(rc),
				Results:        []ua.BrowsePathResult{},
			}, nil
		})
}

// CreateSubscription 订阅类服务未实现
func (s *Server) CreateSubscription(ctx context.Context, ch *types.Channel, req *ua.CreateSubscriptionRequest) (*ua.CreateSubscriptionResponse, error) {
	return nil, s.unsupported(ctx, ch, &req.RequestHeader)
}

// CreateMonitoredItems 订阅类服务未实现
func (s *Server) CreateMonitoredItems(ctx context.Context, ch *types.Channel, req *ua.CreateMonitoredItemsRequest) (*ua.CreateMonitoredItemsResponse, error) {
	return nil, s.unsupported(ctx, ch, &req.RequestHeader)
}

// Publish 订阅类服务未实现
func (s *Server) Publish(ctx context.Context, ch *types.Channel, req *ua.PublishRequest) (*ua.PublishResponse, error) {
	return nil, s.unsupported(ctx, ch, &req.RequestHeader)
}

func (s *Server) unsupported(ctx context.Context, ch *types.Channel, header *ua.RequestHeader) error {
	_, err := serve(s, ctx, ch, header, types.RequestTypeUnknown,
		func(*types.RequestContext, collaborators) (struct{}, error) {
			return struct{}{}, NewServiceError(ua.BadServiceUnsupported, nil)
		})
	return err
}
