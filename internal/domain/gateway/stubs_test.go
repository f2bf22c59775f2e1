package gateway

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/9triver/opcgw/internal/config"
	audittypes "github.com/9triver/opcgw/internal/domain/audit/types"
	"github.com/9triver/opcgw/internal/domain/gateway/types"
	regtypes "github.com/9triver/opcgw/internal/domain/registry/types"
	twintypes "github.com/9triver/opcgw/internal/domain/twin/types"
	"github.com/awcullen/opcua/ua"
)

type stubRegistrar struct {
	mu       sync.Mutex
	handlers []func(types.SessionEvent)
	created  []*types.CreateSessionParams
	closed   atomic.Int32

	createErr       error
	activateErr     error
	identityChanged bool
}

func (r *stubRegistrar) GetContext(ctx context.Context, ch *types.Channel, header *ua.RequestHeader, rt types.RequestType) (*types.RequestContext, error) {
	rc := types.NewRequestContext(ctx, rt, ch, header)
	if !rt.SessionLess() {
		rc.Session = &types.SessionRef{SessionID: "session-1", Identity: "anonymous", Activated: true}
	}
	return rc, nil
}

func (r *stubRegistrar) CreateSession(rc *types.RequestContext, params *types.CreateSessionParams) (*types.CreatedSession, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.mu.Lock()
	r.created = append(r.created, params)
	r.mu.Unlock()
	r.emit(types.SessionEvent{Type: types.SessionEventCreated, SessionID: "session-1"})
	return &types.CreatedSession{
		SessionID:           ua.NewNodeIDOpaque(1, ua.ByteString("session-1")),
		AuthenticationToken: ua.NewNodeIDOpaque(0, ua.ByteString("token-1")),
		ServerNonce:         []byte("server-nonce-0123456789abcdef012"),
		RevisedTimeout:      params.RequestedTimeout,
	}, nil
}

func (r *stubRegistrar) ActivateSession(rc *types.RequestContext, params *types.ActivateSessionParams) (*types.ActivatedSession, error) {
	if r.activateErr != nil {
		return nil, r.activateErr
	}
	return &types.ActivatedSession{ServerNonce: []byte("next-nonce"), Identity: "anonymous", IdentityChanged: r.identityChanged}, nil
}

func (r *stubRegistrar) CloseSession(rc *types.RequestContext, deleteSubscriptions bool) error {
	r.emit(types.SessionEvent{Type: types.SessionEventClosing, SessionID: rc.SessionID()})
	return nil
}

func (r *stubRegistrar) Subscribe(handler func(types.SessionEvent)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, handler)
}

func (r *stubRegistrar) emit(ev types.SessionEvent) {
	r.mu.Lock()
	handlers := append([]func(types.SessionEvent){}, r.handlers...)
	r.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (r *stubRegistrar) Close() error {
	r.closed.Add(1)
	return nil
}

func (r *stubRegistrar) lastCreated() *types.CreateSessionParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.created) == 0 {
		return nil
	}
	return r.created[len(r.created)-1]
}

type stubTracker struct {
	received  atomic.Int32
	completed atomic.Int32
	closed    atomic.Int32
	cancelled int
}

func (t *stubTracker) RequestReceived(*types.RequestContext)  { t.received.Add(1) }
func (t *stubTracker) RequestCompleted(*types.RequestContext) { t.completed.Add(1) }
func (t *stubTracker) CancelRequests(*types.RequestContext, uint32) int {
	return t.cancelled
}
func (t *stubTracker) Close() error {
	t.closed.Add(1)
	return nil
}

type stubTwin struct {
	calls atomic.Int32

	browseFirst func(twinID string, req *twintypes.BrowseFirstRequestModel) (*twintypes.BrowseFirstResponseModel, error)
	browseNext  func(twinID string, req *twintypes.BrowseNextRequestModel) (*twintypes.BrowseNextResponseModel, error)
	read        func(ctx context.Context, twinID string, req *twintypes.ValueReadRequestModel) (*twintypes.ValueReadResponseModel, error)
	write       func(twinID string, req *twintypes.ValueWriteRequestModel) (*twintypes.ValueWriteResponseModel, error)
	call        func(twinID string, req *twintypes.MethodCallRequestModel) (*twintypes.MethodCallResponseModel, error)
}

func (t *stubTwin) NodeBrowseFirst(_ context.Context, twinID string, req *twintypes.BrowseFirstRequestModel) (*twintypes.BrowseFirstResponseModel, error) {
	t.calls.Add(1)
	return t.browseFirst(twinID, req)
}

func (t *stubTwin) NodeBrowseNext(_ context.Context, twinID string, req *twintypes.BrowseNextRequestModel) (*twintypes.BrowseNextResponseModel, error) {
	t.calls.Add(1)
	return t.browseNext(twinID, req)
}

func (t *stubTwin) NodeValueRead(ctx context.Context, twinID string, req *twintypes.ValueReadRequestModel) (*twintypes.ValueReadResponseModel, error) {
	t.calls.Add(1)
	return t.read(ctx, twinID, req)
}

func (t *stubTwin) NodeValueWrite(_ context.Context, twinID string, req *twintypes.ValueWriteRequestModel) (*twintypes.ValueWriteResponseModel, error) {
	t.calls.Add(1)
	return t.write(twinID, req)
}

func (t *stubTwin) NodeMethodCall(_ context.Context, twinID string, req *twintypes.MethodCallRequestModel) (*twintypes.MethodCallResponseModel, error) {
	t.calls.Add(1)
	return t.call(twinID, req)
}

type stubRegistry struct {
	calls   atomic.Int32
	apps    []regtypes.ApplicationInfoModel
	queries []string
	reg     *regtypes.ApplicationRegistrationModel
	err     error
}

func (r *stubRegistry) ListAllApplications(context.Context) ([]regtypes.ApplicationInfoModel, error) {
	r.calls.Add(1)
	return r.apps, r.err
}

func (r *stubRegistry) QueryAllApplications(_ context.Context, q *regtypes.ApplicationRegistrationQueryModel) ([]regtypes.ApplicationInfoModel, error) {
	r.calls.Add(1)
	r.queries = append(r.queries, q.ApplicationURI)
	var out []regtypes.ApplicationInfoModel
	for _, app := range r.apps {
		if app.ApplicationURI == q.ApplicationURI {
			out = append(out, app)
		}
	}
	return out, r.err
}

func (r *stubRegistry) GetApplication(_ context.Context, id string) (*regtypes.ApplicationRegistrationModel, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	if r.reg == nil || r.reg.Application.ApplicationID != id {
		return nil, nil
	}
	return r.reg, nil
}

type stubValidator struct {
	calls atomic.Int32
	err   error
}

func (v *stubValidator) Validate(context.Context, []*x509.Certificate) error {
	v.calls.Add(1)
	return v.err
}

type stubAuditor struct {
	mu   sync.Mutex
	logs []*audittypes.OperationLog
}

func (a *stubAuditor) RecordAsync(log *audittypes.OperationLog) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
}

func (a *stubAuditor) last(op audittypes.OperationType) *audittypes.OperationLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.logs) - 1; i >= 0; i-- {
		if a.logs[i].Operation == op {
			return a.logs[i]
		}
	}
	return nil
}

func (a *stubAuditor) operations() []audittypes.OperationType {
	a.mu.Lock()
	defer a.mu.Unlock()
	ops := make([]audittypes.OperationType, 0, len(a.logs))
	for _, l := range a.logs {
		ops = append(ops, l.Operation)
	}
	return ops
}

const testAppURI = "urn:opcgw:test"

type fixture struct {
	server    *Server
	registrar *stubRegistrar
	tracker   *stubTracker
	twin      *stubTwin
	registry  *stubRegistry
	validator *stubValidator
	auditor   *stubAuditor
	cfg       *config.GatewayConfig
}

func testConfig() *config.GatewayConfig {
	return &config.GatewayConfig{
		ApplicationURI:     testAppURI,
		ApplicationName:    "opcgw test",
		BaseAddresses:      []string{"https://gateway:51111/ua"},
		SecurityPolicies:   []string{ua.SecurityPolicyURIBasic256Sha256},
		MinNonceLength:     32,
		MaxRequestSize:     4 << 20,
		MaxConcurrentItems: 4,
		UserTokenPolicies: []config.UserTokenPolicyConfig{
			{PolicyID: "anonymous", TokenType: "anonymous"},
			{PolicyID: "username", TokenType: "username", SecurityPolicyURI: ua.SecurityPolicyURIBasic256Sha256},
		},
	}
}

func newFixture(t *testing.T, cert *types.InstanceCertificate) *fixture {
	t.Helper()
	f := &fixture{
		registrar: &stubRegistrar{},
		tracker:   &stubTracker{},
		twin:      &stubTwin{},
		registry:  &stubRegistry{},
		validator: &stubValidator{},
		auditor:   &stubAuditor{},
		cfg:       testConfig(),
	}
	srv, err := NewServer(Options{
		Config:       f.cfg,
		Certificate:  cert,
		NewRegistrar: func() (SessionRegistrar, error) { return f.registrar, nil },
		NewTracker:   func() (RequestTracker, error) { return f.tracker, nil },
		Validator:    f.validator,
		Twin:         f.twin,
		Registry:     f.registry,
		Auditor:      f.auditor,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	f.server = srv
	return f
}

func newRunningFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t, nil)
	if err := f.server.StartApplication(context.Background()); err != nil {
		t.Fatalf("StartApplication: %v", err)
	}
	t.Cleanup(f.server.OnServerStopping)
	return f
}

func twinChannel(twinID string) *types.Channel {
	return &types.Channel{
		ID:                1,
		EndpointURL:       "https://gateway:51111/ua/" + twinID,
		SecurityPolicyURI: ua.SecurityPolicyURINone,
	}
}

// newCertificate 生成带 URI SAN 的自签名证书
func newCertificate(t *testing.T, appURIs ...string) (*x509.Certificate, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: "opcgw test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		IsCA:         true,

		BasicConstraintsValid: true,
	}
	for _, appURI := range appURIs {
		if appURI == "" {
			continue
		}
		u, err := url.Parse(appURI)
		if err != nil {
			t.Fatalf("parse uri: %v", err)
		}
		tmpl.URIs = append(tmpl.URIs, u)
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return cert, key
}
