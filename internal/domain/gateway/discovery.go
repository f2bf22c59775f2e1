package gateway

import (
	"context"

	"github.com/9triver/opcgw/internal/config"
	"github.com/9triver/opcgw/internal/domain/gateway/endpoint"
	"github.com/9triver/opcgw/internal/domain/gateway/types"
	regtypes "github.com/9triver/opcgw/internal/domain/registry/types"
	"github.com/awcullen/opcua/ua"
)

var userTokenTypes = map[string]ua.UserTokenType{
	"anonymous":   ua.UserTokenTypeAnonymous,
	"username":    ua.UserTokenTypeUserName,
	"certificate": ua.UserTokenTypeCertificate,
	"issued":      ua.UserTokenTypeIssuedToken,
}

// FindServers 按请求的 ServerUri 逐个查询注册中心并取并集，未指定时列出全部应用
func (s *Server) FindServers(ctx context.Context, ch *types.Channel, req *ua.FindServersRequest) (*ua.FindServersResponse, error) {
	return serve(s, ctx, ch, &req.RequestHeader, types.RequestTypeFindServers,
		func(rc *types.RequestContext, _ collaborators) (*ua.FindServersResponse, error) {
			apps, err := s.findApplications(rc.Context(), req.ServerURIs)
			if err != nil {
				return nil, err
			}
			base := s.requestBase(req.EndpointURL, ch)
			servers := make([]ua.ApplicationDescription, 0, len(apps))
			for i := range apps {
				servers = append(servers, endpoint.ApplicationDescription(&apps[i], base))
			}
			return &ua.FindServersResponse{
				ResponseHeader: s.responseHeader(rc),
				Servers:        servers,
			}, nil
		})
}

func (s *Server) findApplications(ctx context.Context, serverURIs []string) ([]regtypes.ApplicationInfoModel, error) {
	if len(serverURIs) == 0 {
		return s.registry.ListAllApplications(ctx)
	}
	seen := make(map[string]struct{})
	var apps []regtypes.ApplicationInfoModel
	for _, uri := range serverURIs {
		found, err := s.registry.QueryAllApplications(ctx, &regtypes.ApplicationRegistrationQueryModel{ApplicationURI: uri})
		if err != nil {
			return nil, err
		}
		for _, app := range found {
			if _, ok := seen[app.ApplicationID]; ok {
				continue
			}
			seen[app.ApplicationID] = struct{}{}
			apps = append(apps, app)
		}
	}
	return apps, nil
}

// GetEndpoints 请求地址最后一段为应用标识，按注册中心记录合成端点描述
func (s *Server) GetEndpoints(ctx context.Context, ch *types.Channel, req *ua.GetEndpointsRequest) (*ua.GetEndpointsResponse, error) {
	return serve(s, ctx, ch, &req.RequestHeader, types.RequestTypeGetEndpoints,
		func(rc *types.RequestContext, _ collaborators) (*ua.GetEndpointsResponse, error) {
			appID, err := endpoint.ParseTwinID(req.EndpointURL)
			if err != nil {
				return nil, err
			}
			reg, err := s.registry.GetApplication(rc.Context(), appID)
			if err != nil {
				return nil, err
			}
			if reg == nil || reg.Application == nil {
				return nil, Errorf(ua.BadNodeIDUnknown, "application %s not found", appID)
			}

			// 请求地址已以应用标识结尾，直接作为应用地址
			appURL := s.requestBase(req.EndpointURL, ch)
			profiles := endpoint.FilterTransportProfiles(req.ProfileURIs, s.cfg.TransportProfiles, config.TransportProfileURIHTTPSBinary)
			policies := s.userTokenPolicies()
			endpoints := make([]ua.EndpointDescription, 0, len(profiles)*len(reg.Endpoints))
			for _, profile := range profiles {
				for i := range reg.Endpoints {
					endpoints = append(endpoints, endpoint.EndpointDescription(reg.Application, &reg.Endpoints[i], appURL,
						endpoint.EndpointOptions{TransportProfileURI: profile, UserTokenPolicies: policies}))
				}
			}
			return &ua.GetEndpointsResponse{
				ResponseHeader: s.responseHeader(rc),
				Endpoints:      endpoints,
			}, nil
		})
}

// requestBase 合成地址的基础部分：请求地址，其次通道地址，最后为配置地址
func (s *Server) requestBase(requested string, ch *types.Channel) string {
	switch {
	case requested != "":
		return requested
	case ch != nil && ch.EndpointURL != "":
		return ch.EndpointURL
	}
	return s.cfg.BaseAddress()
}

func (s *Server) userTokenPolicies() []ua.UserTokenPolicy {
	policies := make([]ua.UserTokenPolicy, 0, len(s.cfg.UserTokenPolicies))
	for _, p := range s.cfg.UserTokenPolicies {
		tokenType, ok := userTokenTypes[p.TokenType]
		if !ok {
			continue
		}
		policies = append(policies, ua.UserTokenPolicy{
			PolicyID:          p.PolicyID,
			TokenType:         tokenType,
			SecurityPolicyURI: p.SecurityPolicyURI,
		})
	}
	return policies
}

// localEndpoints 网关自身的端点，随 CreateSession 返回
func (s *Server) localEndpoints() []ua.EndpointDescription {
	self := ua.ApplicationDescription{
		ApplicationURI:  s.cfg.ApplicationURI,
		ProductURI:      s.cfg.ProductURI,
		ApplicationName: ua.LocalizedText{Text: s.cfg.ApplicationName},
		ApplicationType: ua.ApplicationTypeServer,
		DiscoveryURLs:   s.cfg.BaseAddresses,
	}
	profiles := s.cfg.TransportProfiles
	if len(profiles) == 0 {
		profiles = []string{config.TransportProfileURIHTTPSBinary}
	}
	policies := s.userTokenPolicies()
	cert := ua.ByteString(s.serverCertificate())

	var endpoints []ua.EndpointDescription
	for _, addr := range s.cfg.BaseAddresses {
		for _, profile := range profiles {
			for _, policy := range s.cfg.SecurityPolicies {
				ep := ua.EndpointDescription{
					EndpointURL:         addr,
					Server:              self,
					SecurityPolicyURI:   policy,
					SecurityMode:        ua.MessageSecurityModeSignAndEncrypt,
					UserIdentityTokens:  policies,
					TransportProfileURI: profile,
					SecurityLevel:       securityLevel(policy),
				}
				if isPolicyNone(policy) {
					ep.SecurityMode = ua.MessageSecurityModeNone
				} else {
					ep.ServerCertificate = cert
				}
				endpoints = append(endpoints, ep)
			}
		}
	}
	return endpoints
}

func securityLevel(policy string) byte {
	switch policy {
	case ua.SecurityPolicyURIBasic128Rsa15:
		return 1
	case ua.SecurityPolicyURIBasic256:
		return 2
	case ua.SecurityPolicyURIBasic256Sha256:
		return 3
	case ua.SecurityPolicyURIAes128Sha256RsaOaep:
		return 4
	case ua.SecurityPolicyURIAes256Sha256RsaPss:
		return 5
	}
	return 0
}
