package gateway

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	audittypes "github.com/9triver/opcgw/internal/domain/audit/types"
	"github.com/9triver/opcgw/internal/domain/gateway/diagnostics"
	"github.com/9triver/opcgw/internal/domain/gateway/endpoint"
	"github.com/9triver/opcgw/internal/domain/gateway/types"
	"github.com/awcullen/opcua/ua"
	"github.com/sirupsen/logrus"
)

// ActivateSessionResponse 激活响应，每个软件证书对应一个结果与诊断记录
type ActivateSessionResponse struct {
	Header          ua.ResponseHeader
	ServerNonce     ua.ByteString
	Results         []ua.StatusCode
	DiagnosticInfos []*diagnostics.Info
	StringTable     []string
	IdentityChanged bool
}

// CreateSession 校验会话准入条件后交由会话注册器创建会话
func (s *Server) CreateSession(ctx context.Context, ch *types.Channel, req *ua.CreateSessionRequest) (*ua.CreateSessionResponse, error) {
	var leaf *x509.Certificate
	resp, err := serve(s, ctx, ch, &req.RequestHeader, types.RequestTypeCreateSession,
		func(rc *types.RequestContext, c collaborators) (*ua.CreateSessionResponse, error) {
			if req.ServerURI != "" && req.ServerURI != s.cfg.ApplicationURI {
				return nil, Errorf(ua.BadServerURIInvalid, "server uri %q does not match %q", req.ServerURI, s.cfg.ApplicationURI)
			}

			policy := rc.SecurityPolicyURI
			requireEncryption := len(req.ClientCertificate) > 0 || !isPolicyNone(policy)

			if requireEncryption {
				var err error
				leaf, err = s.validateClientCertificate(rc.Context(), []byte(req.ClientCertificate), req.ClientDescription.ApplicationURI)
				if err != nil {
					return nil, err
				}
			}

			var nonce []byte
			if !isPolicyNone(policy) {
				nonce = []byte(req.ClientNonce)
				if len(nonce) > 0 && len(nonce) < s.cfg.MinNonceLength {
					return nil, Errorf(ua.BadNonceInvalid, "client nonce length %d below minimum %d", len(nonce), s.cfg.MinNonceLength)
				}
			}

			created, err := c.registrar.CreateSession(rc, &types.CreateSessionParams{
				SessionName:            req.SessionName,
				ClientDescription:      req.ClientDescription,
				EndpointURL:            req.EndpointURL,
				RequireEncryption:      requireEncryption,
				ClientNonce:            nonce,
				ClientCertificate:      leaf,
				RequestedTimeout:       req.RequestedSessionTimeout,
				MaxResponseMessageSize: req.MaxResponseMessageSize,
			})
			if err != nil {
				return nil, err
			}

			resp := &ua.CreateSessionResponse{
				ResponseHeader:        s.responseHeader(rc),
				SessionID:             created.SessionID,
				AuthenticationToken:   created.AuthenticationToken,
				RevisedSessionTimeout: created.RevisedTimeout,
				ServerNonce:           ua.ByteString(created.ServerNonce),
				ServerEndpoints:       s.localEndpoints(),
				MaxRequestMessageSize: s.cfg.MaxRequestSize,
			}
			if requireEncryption {
				resp.ServerCertificate = ua.ByteString(s.serverCertificate())
			}
			if leaf != nil && len(nonce) > 0 {
				sig, err := s.sign(policy, leaf.Raw, nonce)
				if err != nil {
					return nil, err
				}
				resp.ServerSignature = sig
			}
			return resp, nil
		})

	entry := &audittypes.OperationLog{
		User:         req.SessionName,
		ResourceType: "session",
		Endpoint:     req.EndpointURL,
		Details: map[string]any{
			"client_application_uri": req.ClientDescription.ApplicationURI,
		},
	}
	if err != nil {
		entry.Operation = audittypes.OperationTypeRejectSession
		entry.Action = "session rejected"
		entry.Status = statusString(StatusOf(err))
		entry.Details["error"] = err.Error()
		logrus.WithField("client", req.ClientDescription.ApplicationURI).Warnf("Session rejected: %v", err)
	} else {
		entry.Operation = audittypes.OperationTypeCreateSession
		entry.ResourceID = FormatNodeID(resp.SessionID)
		if leaf != nil {
			entry.Details["client_certificate_thumbprint"] = endpoint.Thumbprint(leaf.Raw)
		}
		entry.Action = "session created"
		entry.Status = statusString(ua.Good)
	}
	s.audit(entry)
	return resp, err
}

// validateClientCertificate 解析客户端证书链并校验叶证书
func (s *Server) validateClientCertificate(ctx context.Context, raw []byte, applicationURI string) (*x509.Certificate, error) {
	chain, err := x509.ParseCertificates(raw)
	if err != nil {
		return nil, NewServiceError(ua.BadCertificateInvalid, err)
	}
	if len(chain) == 0 {
		return nil, Errorf(ua.BadCertificateInvalid, "client certificate chain is empty")
	}
	leaf := chain[0]
	if applicationURI != "" && len(leaf.URIs) > 0 && !hasURI(leaf, applicationURI) {
		return nil, Errorf(ua.BadCertificateURIInvalid, "application uri %q not among certificate uris %v", applicationURI, leaf.URIs)
	}
	if s.validator != nil {
		if err := s.validator.Validate(ctx, chain); err != nil {
			return nil, err
		}
	}
	return leaf, nil
}

func hasURI(cert *x509.Certificate, uri string) bool {
	for _, u := range cert.URIs {
		if u.String() == uri {
			return true
		}
	}
	return false
}

func (s *Server) serverCertificate() []byte {
	if s.cert == nil {
		return nil
	}
	if s.cfg.SendCertificateChain {
		return s.cert.RawChain()
	}
	return s.cert.Raw()
}

// sign 按安全策略对 certificate||nonce 签名
func (s *Server) sign(policy string, certificate, nonce []byte) (ua.SignatureData, error) {
	if s.cert == nil || s.cert.PrivateKey == nil {
		return ua.SignatureData{}, Errorf(ua.BadSecurityChecksFailed, "instance private key not configured")
	}
	key := s.cert.PrivateKey

	var (
		hash      crypto.Hash
		algorithm string
		pss       bool
	)
	switch policy {
	case ua.SecurityPolicyURIBasic128Rsa15, ua.SecurityPolicyURIBasic256:
		hash, algorithm = crypto.SHA1, ua.RsaSha1Signature
	case ua.SecurityPolicyURIBasic256Sha256, ua.SecurityPolicyURIAes128Sha256RsaOaep:
		hash, algorithm = crypto.SHA256, ua.RsaSha256Signature
	case ua.SecurityPolicyURIAes256Sha256RsaPss:
		hash, algorithm, pss = crypto.SHA256, ua.RsaPssSha256Signature, true
	default:
		return ua.SignatureData{}, nil
	}

	h := hash.New()
	h.Write(certificate)
	h.Write(nonce)
	hashed := h.Sum(nil)

	var (
		signature []byte
		err       error
	)
	if pss {
		signature, err = rsa.SignPSS(rand.Reader, key, hash, hashed, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
	} else {
		signature, err = rsa.SignPKCS1v15(rand.Reader, key, hash, hashed)
	}
	if err != nil {
		return ua.SignatureData{}, NewServiceError(ua.BadSecurityChecksFailed, err)
	}
	return ua.SignatureData{Signature: ua.ByteString(signature), Algorithm: algorithm}, nil
}

func isPolicyNone(policy string) bool {
	return policy == "" || policy == ua.SecurityPolicyURINone
}

// ActivateSession 逐个校验软件证书后交由会话注册器激活
func (s *Server) ActivateSession(ctx context.Context, ch *types.Channel, req *ua.ActivateSessionRequest) (*ActivateSessionResponse, error) {
	return serve(s, ctx, ch, &req.RequestHeader, types.RequestTypeActivateSession,
		func(rc *types.RequestContext, c collaborators) (*ActivateSessionResponse, error) {
			results := make([]ua.StatusCode, len(req.ClientSoftwareCertificates))
			infos := make([]*diagnostics.Info, len(req.ClientSoftwareCertificates))
			for i, sc := range req.ClientSoftwareCertificates {
				err := s.validateSoftwareCertificate(rc.Context(), sc)
				if err == nil {
					results[i] = ua.Good
					continue
				}
				results[i] = StatusOf(err)
				infos[i] = diagnostics.FromError(err, rc.DiagnosticsMask, rc.StringTable)
			}

			activated, err := c.registrar.ActivateSession(rc, &types.ActivateSessionParams{
				ClientSignature:      req.ClientSignature,
				SoftwareCertificates: req.ClientSoftwareCertificates,
				IdentityToken:        req.UserIdentityToken,
				UserTokenSignature:   req.UserTokenSignature,
				Locales:              req.LocaleIDs,
			})
			if err != nil {
				return nil, err
			}

			op, action := audittypes.OperationTypeActivateSession, "session activated"
			if activated.IdentityChanged {
				op, action = audittypes.OperationTypeChangeIdentity, "session identity changed"
			}
			logrus.WithFields(logrus.Fields{
				"session":  rc.SessionID(),
				"identity": activated.Identity,
			}).Infof("Session %s", action)
			s.audit(&audittypes.OperationLog{
				User:         activated.Identity,
				Operation:    op,
				ResourceID:   rc.SessionID(),
				ResourceType: "session",
				Action:       action,
				Status:       statusString(ua.Good),
				Endpoint:     ch.EndpointURL,
			})

			return &ActivateSessionResponse{
				Header:          s.responseHeader(rc),
				ServerNonce:     ua.ByteString(activated.ServerNonce),
				Results:         results,
				DiagnosticInfos: infos,
				StringTable:     rc.StringTable.Strings(),
				IdentityChanged: activated.IdentityChanged,
			}, nil
		})
}

func (s *Server) validateSoftwareCertificate(ctx context.Context, sc ua.SignedSoftwareCertificate) error {
	chain, err := x509.ParseCertificates([]byte(sc.CertificateData))
	if err != nil {
		return NewServiceError(ua.BadCertificateInvalid, err)
	}
	if len(chain) == 0 {
		return Errorf(ua.BadCertificateInvalid, "software certificate is empty")
	}
	if s.validator == nil {
		return nil
	}
	return s.validator.Validate(ctx, chain)
}

// CloseSession 关闭调用方会话
func (s *Server) CloseSession(ctx context.Context, ch *types.Channel, req *ua.CloseSessionRequest) (*ua.CloseSessionResponse, error) {
	return serve(s, ctx, ch, &req.RequestHeader, types.RequestTypeCloseSession,
		func(rc *types.RequestContext, c collaborators) (*ua.CloseSessionResponse, error) {
			sessionID := rc.SessionID()
			if err := c.registrar.CloseSession(rc, req.DeleteSubscriptions); err != nil {
				return nil, err
			}
			user := ""
			if rc.Session != nil {
				user = rc.Session.Identity
			}
			s.audit(&audittypes.OperationLog{
				User:         user,
				Operation:    audittypes.OperationTypeCloseSession,
				ResourceID:   sessionID,
				ResourceType: "session",
				Action:       "session closed",
				Status:       statusString(ua.Good),
				Endpoint:     ch.EndpointURL,
			})
			return &ua.CloseSessionResponse{ResponseHeader: s.responseHeader(rc)}, nil
		})
}

// Cancel 取消同一会话中指定句柄的未完成请求
func (s *Server) Cancel(ctx context.Context, ch *types.Channel, req *ua.CancelRequest) (*ua.CancelResponse, error) {
	return serve(s, ctx, ch, &req.RequestHeader, types.RequestTypeCancel,
		func(rc *types.RequestContext, c collaborators) (*ua.CancelResponse, error) {
			count := c.tracker.CancelRequests(rc, req.RequestHandle)
			if count > 0 {
				s.audit(&audittypes.OperationLog{
					Operation:    audittypes.OperationTypeCancelRequest,
					ResourceID:   rc.SessionID(),
					ResourceType: "request",
					Action:       fmt.Sprintf("cancelled %d requests with handle %d", count, req.RequestHandle),
					Status:       statusString(ua.Good),
					Endpoint:     ch.EndpointURL,
				})
			}
			return &ua.CancelResponse{
				ResponseHeader: s.responseHeader(rc),
				CancelCount:    uint32(count),
			}, nil
		})
}
