package types

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"time"

	"github.com/9triver/opcgw/internal/domain/gateway/diagnostics"
	"github.com/9triver/opcgw/internal/util"
	"github.com/awcullen/opcua/ua"
)

// RequestType 服务请求类型
type RequestType int

const (
	RequestTypeUnknown RequestType = iota
	RequestTypeCreateSession
	RequestTypeActivateSession
	RequestTypeCloseSession
	RequestTypeCancel
	RequestTypeBrowse
	RequestTypeBrowseNext
	RequestTypeTranslateBrowsePaths
	RequestTypeRead
	RequestTypeWrite
	RequestTypeCall
	RequestTypeFindServers
	RequestTypeGetEndpoints
)

var requestTypeNames = map[RequestType]string{
	RequestTypeCreateSession:        "CreateSession",
	RequestTypeActivateSession:      "ActivateSession",
	RequestTypeCloseSession:         "CloseSession",
	RequestTypeCancel:               "Cancel",
	RequestTypeBrowse:               "Browse",
	RequestTypeBrowseNext:           "BrowseNext",
	RequestTypeTranslateBrowsePaths: "TranslateBrowsePathsToNodeIds",
	RequestTypeRead:                 "Read",
	RequestTypeWrite:                "Write",
	RequestTypeCall:                 "Call",
	RequestTypeFindServers:          "FindServers",
	RequestTypeGetEndpoints:         "GetEndpoints",
}

func (t RequestType) String() string {
	if name, ok := requestTypeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// SessionLess 不需要已激活会话的请求
func (t RequestType) SessionLess() bool {
	switch t {
	case RequestTypeCreateSession, RequestTypeFindServers, RequestTypeGetEndpoints:
		return true
	}
	return false
}

// ServerState 网关运行状态
type ServerState int32

const (
	ServerStateShutdown ServerState = iota
	ServerStateRunning
)

func (s ServerState) String() string {
	if s == ServerStateRunning {
		return "running"
	}
	return "shutdown"
}

// Channel 安全通道上下文，由协议栈提供
type Channel struct {
	ID                uint32
	EndpointURL       string // 通道绑定的端点地址，最后一段路径为 twin 标识
	SecurityPolicyURI string
	SecurityMode      ua.MessageSecurityMode
	RemoteCertificate []byte
}

// SessionRef 请求所属会话
type SessionRef struct {
	SessionID string
	Name      string
	Identity  string
	Activated bool
}

// RequestContext 单次服务调用的上下文
// 在请求开始时创建，请求结束后丢弃
type RequestContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	RequestID         string
	RequestType       RequestType
	RequestHandle     uint32
	AuditEntryID      string
	Channel           *Channel
	Session           *SessionRef
	SecurityPolicyURI string
	DiagnosticsMask   diagnostics.Mask
	StringTable       *diagnostics.StringTable
	Locales           []string
	ReceivedAt        time.Time
}

// NewRequestContext 根据请求头创建上下文，TimeoutHint 非零时附加超时
func NewRequestContext(parent context.Context, rt RequestType, ch *Channel, header *ua.RequestHeader) *RequestContext {
	if parent == nil {
		parent = context.Background()
	}
	rc := &RequestContext{
		RequestID:   util.GenIDWith(util.PrefixRequest),
		RequestType: rt,
		Channel:     ch,
		StringTable: diagnostics.NewStringTable(),
		ReceivedAt:  time.Now(),
	}
	if ch != nil {
		rc.SecurityPolicyURI = ch.SecurityPolicyURI
	}
	if header != nil {
		rc.RequestHandle = header.RequestHandle
		rc.AuditEntryID = header.AuditEntryID
		rc.DiagnosticsMask = diagnostics.Mask(header.ReturnDiagnostics)
		if header.TimeoutHint > 0 {
			rc.ctx, rc.cancel = context.WithTimeout(parent, time.Duration(header.TimeoutHint)*time.Millisecond)
			return rc
		}
	}
	rc.ctx, rc.cancel = context.WithCancel(parent)
	return rc
}

// Context 请求上下文，Cancel 后被取消
func (c *RequestContext) Context() context.Context {
	return c.ctx
}

// Cancel 取消请求中未完成的后端调用
func (c *RequestContext) Cancel() {
	c.cancel()
}

// Release 释放请求持有的资源
func (c *RequestContext) Release() {
	c.cancel()
}

// SessionID 会话标识，无会话时为空
func (c *RequestContext) SessionID() string {
	if c.Session == nil {
		return ""
	}
	return c.Session.SessionID
}

// CreateSessionParams 交给会话注册器的创建参数
type CreateSessionParams struct {
	SessionName            string
	ClientDescription      ua.ApplicationDescription
	EndpointURL            string
	RequireEncryption      bool
	ClientNonce            []byte
	ClientCertificate      *x509.Certificate
	RequestedTimeout       float64
	MaxResponseMessageSize uint32
}

// CreatedSession 会话注册器创建的会话
type CreatedSession struct {
	SessionID           ua.NodeID
	AuthenticationToken ua.NodeID
	ServerNonce         []byte
	RevisedTimeout      float64
}

// ActivateSessionParams 激活参数
type ActivateSessionParams struct {
	ClientSignature      ua.SignatureData
	SoftwareCertificates []ua.SignedSoftwareCertificate
	IdentityToken        any
	UserTokenSignature   ua.SignatureData
	Locales              []string
}

// ActivatedSession 激活结果
type ActivatedSession struct {
	ServerNonce     []byte
	Identity        string
	IdentityChanged bool
}

// SessionEventType 会话事件类型
type SessionEventType string

const (
	SessionEventCreated   SessionEventType = "session.created"
	SessionEventActivated SessionEventType = "session.activated"
	SessionEventClosing   SessionEventType = "session.closing"
	SessionEventTimeout   SessionEventType = "session.timeout"
)

// SessionEvent 会话生命周期事件
type SessionEvent struct {
	Type      SessionEventType `json:"type"`
	SessionID string           `json:"session_id"`
	Name      string           `json:"name,omitempty"`
	Identity  string           `json:"identity,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// DiagnosticsSummary 服务端诊断计数
type DiagnosticsSummary struct {
	RejectedSessionCount          uint32 `json:"rejected_session_count"`
	RejectedRequestsCount         uint32 `json:"rejected_requests_count"`
	SecurityRejectedSessionCount  uint32 `json:"security_rejected_session_count"`
	SecurityRejectedRequestsCount uint32 `json:"security_rejected_requests_count"`
	CurrentSessionCount           uint32 `json:"current_session_count"`
	CumulatedSessionCount         uint32 `json:"cumulated_session_count"`
	SessionTimeoutCount           uint32 `json:"session_timeout_count"`
}

// InstanceCertificate 网关实例证书
type InstanceCertificate struct {
	Certificate *x509.Certificate
	Chain       [][]byte // 颁发者证书 DER，按顺序
	PrivateKey  *rsa.PrivateKey
}

// Raw 叶证书 DER
func (c *InstanceCertificate) Raw() []byte {
	if c == nil || c.Certificate == nil {
		return nil
	}
	return c.Certificate.Raw
}

// RawChain 叶证书与颁发者证书按顺序拼接
func (c *InstanceCertificate) RawChain() []byte {
	out := append([]byte{}, c.Raw()...)
	if c == nil {
		return out
	}
	for _, b := range c.Chain {
		out = append(out, b...)
	}
	return out
}
