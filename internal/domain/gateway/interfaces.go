package gateway

import (
	"context"
	"crypto/x509"

	audittypes "github.com/9triver/opcgw/internal/domain/audit/types"
	"github.com/9triver/opcgw/internal/domain/gateway/types"
	regtypes "github.com/9triver/opcgw/internal/domain/registry/types"
	twintypes "github.com/9triver/opcgw/internal/domain/twin/types"
	"github.com/awcullen/opcua/ua"
)

// SessionRegistrar 会话注册器
// 负责会话对象生命周期、nonce 与令牌签发，网关只做委托
type SessionRegistrar interface {
	// GetContext 根据请求头中的认证令牌解析会话并创建请求上下文
	GetContext(ctx context.Context, ch *types.Channel, header *ua.RequestHeader, rt types.RequestType) (*types.RequestContext, error)
	CreateSession(rc *types.RequestContext, params *types.CreateSessionParams) (*types.CreatedSession, error)
	ActivateSession(rc *types.RequestContext, params *types.ActivateSessionParams) (*types.ActivatedSession, error)
	CloseSession(rc *types.RequestContext, deleteSubscriptions bool) error
	// Subscribe 订阅会话生命周期事件
	Subscribe(handler func(types.SessionEvent))
	Close() error
}

// RequestTracker 请求生命周期跟踪器，用于按 RequestHandle 取消请求
type RequestTracker interface {
	RequestReceived(rc *types.RequestContext)
	RequestCompleted(rc *types.RequestContext)
	// CancelRequests 取消同一会话中 handle 对应的请求，返回取消数量
	CancelRequests(rc *types.RequestContext, handle uint32) int
	Close() error
}

// CertificateValidator 证书链校验
type CertificateValidator interface {
	Validate(ctx context.Context, chain []*x509.Certificate) error
}

// TwinClient twin 后端服务
type TwinClient interface {
	NodeBrowseFirst(ctx context.Context, twinID string, req *twintypes.BrowseFirstRequestModel) (*twintypes.BrowseFirstResponseModel, error)
	NodeBrowseNext(ctx context.Context, twinID string, req *twintypes.BrowseNextRequestModel) (*twintypes.BrowseNextResponseModel, error)
	NodeValueRead(ctx context.Context, twinID string, req *twintypes.ValueReadRequestModel) (*twintypes.ValueReadResponseModel, error)
	NodeValueWrite(ctx context.Context, twinID string, req *twintypes.ValueWriteRequestModel) (*twintypes.ValueWriteResponseModel, error)
	NodeMethodCall(ctx context.Context, twinID string, req *twintypes.MethodCallRequestModel) (*twintypes.MethodCallResponseModel, error)
}

// RegistryClient registry 后端服务
type RegistryClient interface {
	ListAllApplications(ctx context.Context) ([]regtypes.ApplicationInfoModel, error)
	QueryAllApplications(ctx context.Context, query *regtypes.ApplicationRegistrationQueryModel) ([]regtypes.ApplicationInfoModel, error)
	GetApplication(ctx context.Context, applicationID string) (*regtypes.ApplicationRegistrationModel, error)
}

// Auditor 审计日志记录
type Auditor interface {
	RecordAsync(log *audittypes.OperationLog)
}
