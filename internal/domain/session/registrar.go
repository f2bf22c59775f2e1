package session

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/9triver/opcgw/internal/config"
	"github.com/9triver/opcgw/internal/domain/gateway/types"
	"github.com/9triver/opcgw/internal/util"
	"github.com/awcullen/opcua/ua"
	"github.com/sirupsen/logrus"
)

const (
	defaultSweepInterval = time.Second
	sessionIDLength      = 16
)

// Config 会话注册器参数
type Config struct {
	MinTimeout        time.Duration
	MaxTimeout        time.Duration
	MaxSessions       int
	NonceLength       int
	SweepInterval     time.Duration
	UserTokenPolicies []config.UserTokenPolicyConfig
}

// ConfigFromGateway 由网关配置生成注册器参数
func ConfigFromGateway(cfg *config.GatewayConfig) Config {
	return Config{
		MinTimeout:        time.Duration(cfg.MinSessionTimeoutMs * float64(time.Millisecond)),
		MaxTimeout:        time.Duration(cfg.MaxSessionTimeoutMs * float64(time.Millisecond)),
		MaxSessions:       cfg.MaxSessions,
		NonceLength:       cfg.MinNonceLength,
		UserTokenPolicies: cfg.UserTokenPolicies,
	}
}

// Session 会话状态，仅由注册器修改
type Session struct {
	ID                  ua.NodeID
	AuthenticationToken ua.NodeID
	Name                string
	EndpointURL         string
	ClientDescription   ua.ApplicationDescription
	ClientCertificate   *x509.Certificate
	Timeout             time.Duration
	ServerNonce         []byte
	ChannelID           uint32
	Activated           bool
	Identity            string
	Locales             []string
	CreatedAt           time.Time
	LastSeen            time.Time
}

func (s *Session) ref() *types.SessionRef {
	return &types.SessionRef{
		SessionID: fmt.Sprint(s.ID),
		Name:      s.Name,
		Identity:  s.Identity,
		Activated: s.Activated,
	}
}

// Registrar 内存会话注册器
type Registrar struct {
	cfg    Config
	events *EventHub

	mu       sync.Mutex
	sessions map[string]*Session // key: 认证令牌
	byID     map[string]*Session

	now  func() time.Time
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewRegistrar 创建注册器并启动过期清理
func NewRegistrar(cfg Config) *Registrar {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	r := &Registrar{
		cfg:      cfg,
		events:   NewEventHub(),
		sessions: make(map[string]*Session),
		byID:     make(map[string]*Session),
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Registrar) run() {
	defer close(r.done)
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep 移除超时会话并发布 timeout 事件
func (r *Registrar) sweep() {
	now := r.now()
	var expired []*Session

	r.mu.Lock()
	for token, s := range r.sessions {
		if now.Sub(s.LastSeen) > s.Timeout {
			expired = append(expired, s)
			delete(r.sessions, token)
			delete(r.byID, fmt.Sprint(s.ID))
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		logrus.Infof("Session %s expired after %s", s.Name, s.Timeout)
		r.publish(types.SessionEventTimeout, s)
		r.publish(types.SessionEventClosing, s)
	}
}

func (r *Registrar) publish(t types.SessionEventType, s *Session) {
	r.events.Publish(types.SessionEvent{
		Type:      t,
		SessionID: fmt.Sprint(s.ID),
		Name:      s.Name,
		Identity:  s.Identity,
		Timestamp: r.now(),
	})
}

// Subscribe 订阅会话事件
func (r *Registrar) Subscribe(handler func(types.SessionEvent)) {
	r.events.Subscribe(handler)
}

// GetContext 由认证令牌解析会话并创建请求上下文
func (r *Registrar) GetContext(ctx context.Context, ch *types.Channel, header *ua.RequestHeader, rt types.RequestType) (*types.RequestContext, error) {
	if rt.SessionLess() {
		return types.NewRequestContext(ctx, rt, ch, header), nil
	}
	if header.AuthenticationToken == nil {
		return nil, ua.BadSessionIDInvalid
	}

	r.mu.Lock()
	s, ok := r.sessions[fmt.Sprint(header.AuthenticationToken)]
	if !ok {
		r.mu.Unlock()
		return nil, ua.BadSessionIDInvalid
	}
	if !s.Activated && rt != types.RequestTypeActivateSession && rt != types.RequestTypeCloseSession {
		r.mu.Unlock()
		return nil, ua.BadSessionNotActivated
	}
	if s.Activated && ch != nil && s.ChannelID != ch.ID && rt != types.RequestTypeActivateSession {
		r.mu.Unlock()
		return nil, ua.BadSecureChannelIDInvalid
	}
	s.LastSeen = r.now()
	ref := s.ref()
	locales := s.Locales
	r.mu.Unlock()

	rc := types.NewRequestContext(ctx, rt, ch, header)
	rc.Session = ref
	rc.Locales = locales
	return rc, nil
}

// CreateSession 分配会话标识、认证令牌和服务端 nonce，超时限制在配置范围内
func (r *Registrar) CreateSession(rc *types.RequestContext, params *types.CreateSessionParams) (*types.CreatedSession, error) {
	nonce, err := newNonce(r.cfg.NonceLength)
	if err != nil {
		return nil, err
	}
	id, err := newNonce(sessionIDLength)
	if err != nil {
		return nil, err
	}
	token, err := newNonce(r.cfg.NonceLength)
	if err != nil {
		return nil, err
	}

	name := params.SessionName
	if name == "" {
		name = params.ClientDescription.ApplicationURI
	}
	if name == "" {
		name = util.GenIDWith(util.PrefixSession)
	}

	now := r.now()
	s := &Session{
		ID:                  ua.NewNodeIDOpaque(1, ua.ByteString(id)),
		AuthenticationToken: ua.NewNodeIDOpaque(0, ua.ByteString(token)),
		Name:                name,
		EndpointURL:         params.EndpointURL,
		ClientDescription:   params.ClientDescription,
		ClientCertificate:   params.ClientCertificate,
		Timeout:             r.clampTimeout(params.RequestedTimeout),
		ServerNonce:         nonce,
		CreatedAt:           now,
		LastSeen:            now,
	}
	if rc.Channel != nil {
		s.ChannelID = rc.Channel.ID
	}

	r.mu.Lock()
	if r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions {
		r.mu.Unlock()
		return nil, ua.BadTooManySessions
	}
	r.sessions[fmt.Sprint(s.AuthenticationToken)] = s
	r.byID[fmt.Sprint(s.ID)] = s
	r.mu.Unlock()

	r.publish(types.SessionEventCreated, s)
	return &types.CreatedSession{
		SessionID:           s.ID,
		AuthenticationToken: s.AuthenticationToken,
		ServerNonce:         nonce,
		RevisedTimeout:      float64(s.Timeout) / float64(time.Millisecond),
	}, nil
}

func (r *Registrar) clampTimeout(requestedMs float64) time.Duration {
	timeout := time.Duration(requestedMs * float64(time.Millisecond))
	if timeout < r.cfg.MinTimeout {
		timeout = r.cfg.MinTimeout
	}
	if r.cfg.MaxTimeout > 0 && timeout > r.cfg.MaxTimeout {
		timeout = r.cfg.MaxTimeout
	}
	return timeout
}

// ActivateSession 校验身份令牌并激活会话，身份变化时 IdentityChanged 为 true
func (r *Registrar) ActivateSession(rc *types.RequestContext, params *types.ActivateSessionParams) (*types.ActivatedSession, error) {
	identity, err := r.identityOf(params.IdentityToken)
	if err != nil {
		return nil, err
	}
	nonce, err := newNonce(r.cfg.NonceLength)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	s, ok := r.byID[rc.SessionID()]
	if !ok {
		r.mu.Unlock()
		return nil, ua.BadSessionIDInvalid
	}
	changed := s.Activated && s.Identity != identity
	s.Activated = true
	s.Identity = identity
	s.ServerNonce = nonce
	s.Locales = params.Locales
	s.LastSeen = r.now()
	if rc.Channel != nil {
		s.ChannelID = rc.Channel.ID
	}
	r.mu.Unlock()

	r.publish(types.SessionEventActivated, s)
	return &types.ActivatedSession{ServerNonce: nonce, Identity: identity, IdentityChanged: changed}, nil
}

// identityOf 按配置的令牌策略识别身份
func (r *Registrar) identityOf(token any) (string, error) {
	var (
		policyID  string
		tokenType string
		identity  string
	)
	switch t := token.(type) {
	case nil:
		return "anonymous", nil
	case ua.AnonymousIdentityToken:
		policyID, tokenType, identity = t.PolicyID, "anonymous", "anonymous"
	case ua.UserNameIdentityToken:
		if t.UserName == "" {
			return "", ua.BadIdentityTokenInvalid
		}
		policyID, tokenType, identity = t.PolicyID, "username", t.UserName
	case ua.X509IdentityToken:
		cert, err := x509.ParseCertificate([]byte(t.CertificateData))
		if err != nil {
			return "", ua.BadIdentityTokenInvalid
		}
		sum := sha1.Sum(cert.Raw)
		policyID, tokenType, identity = t.PolicyID, "certificate", "x509:"+hex.EncodeToString(sum[:])
	case ua.IssuedIdentityToken:
		sum := sha1.Sum([]byte(t.TokenData))
		policyID, tokenType, identity = t.PolicyID, "issued", "issued:"+hex.EncodeToString(sum[:8])
	default:
		return "", ua.BadIdentityTokenInvalid
	}
	if !r.allowed(policyID, tokenType) {
		return "", ua.BadIdentityTokenRejected
	}
	return identity, nil
}

func (r *Registrar) allowed(policyID, tokenType string) bool {
	if len(r.cfg.UserTokenPolicies) == 0 {
		return tokenType == "anonymous"
	}
	for _, p := range r.cfg.UserTokenPolicies {
		if p.TokenType == tokenType && (policyID == "" || p.PolicyID == policyID) {
			return true
		}
	}
	return false
}

// CloseSession 移除会话并发布 closing 事件
func (r *Registrar) CloseSession(rc *types.RequestContext, deleteSubscriptions bool) error {
	r.mu.Lock()
	s, ok := r.byID[rc.SessionID()]
	if ok {
		delete(r.byID, rc.SessionID())
		delete(r.sessions, fmt.Sprint(s.AuthenticationToken))
	}
	r.mu.Unlock()

	if !ok {
		return ua.BadSessionIDInvalid
	}
	r.publish(types.SessionEventClosing, s)
	return nil
}

// Sessions 当前会话快照
func (r *Registrar) Sessions() []types.SessionRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.SessionRef, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, *s.ref())
	}
	return out
}

// Close 停止过期清理并关闭所有会话
func (r *Registrar) Close() error {
	r.once.Do(func() {
		close(r.stop)
		<-r.done

		r.mu.Lock()
		remaining := make([]*Session, 0, len(r.byID))
		for _, s := range r.byID {
			remaining = append(remaining, s)
		}
		r.sessions = make(map[string]*Session)
		r.byID = make(map[string]*Session)
		r.mu.Unlock()

		for _, s := range remaining {
			r.publish(types.SessionEventClosing, s)
		}
	})
	return nil
}

func newNonce(n int) ([]byte, error) {
	if n <= 0 {
		n = 32
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return b, nil
}
