package endpoint

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	regtypes "github.com/9triver/opcgw/internal/domain/registry/types"
	"github.com/awcullen/opcua/ua"
)

// ParseTwinID 从端点地址解析 twin 标识（最后一段非空路径）
// GetEndpoints 生成的端点地址为 <base>/<applicationId>/<endpointId>，绑定该地址的通道解析出的 twin 即端点标识
func ParseTwinID(endpointURL string) (string, error) {
	u, err := url.Parse(endpointURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ua.BadTCPEndpointURLInvalid, err)
	}
	segments := strings.Split(strings.Trim(u.EscapedPath(), "/"), "/")
	last := segments[len(segments)-1]
	if last == "" {
		return "", fmt.Errorf("%w: no twin identifier in %q", ua.BadTCPEndpointURLInvalid, endpointURL)
	}
	id, err := url.PathUnescape(last)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ua.BadTCPEndpointURLInvalid, err)
	}
	return id, nil
}

// JoinURL 在基础地址后追加一段路径
func JoinURL(base, id string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(id)
}

// ApplicationType 转换应用类型
func ApplicationType(t regtypes.ApplicationType) ua.ApplicationType {
	switch t {
	case regtypes.ApplicationTypeClient:
		return ua.ApplicationTypeClient
	case regtypes.ApplicationTypeClientAndServer:
		return ua.ApplicationTypeClientAndServer
	case regtypes.ApplicationTypeDiscoveryServer:
		return ua.ApplicationTypeDiscoveryServer
	}
	return ua.ApplicationTypeServer
}

// ApplicationDescription 由 registry 应用记录生成应用描述
// 服务 URI 与发现地址均为 base/<applicationId>
func ApplicationDescription(app *regtypes.ApplicationInfoModel, base string) ua.ApplicationDescription {
	return describeApplication(app, JoinURL(base, app.ApplicationID))
}

func describeApplication(app *regtypes.ApplicationInfoModel, gatewayURL string) ua.ApplicationDescription {
	return ua.ApplicationDescription{
		ApplicationURI:      app.ApplicationURI,
		ProductURI:          app.ProductURI,
		ApplicationName:     ua.LocalizedText{Text: app.ApplicationName, Locale: app.Locale},
		ApplicationType:     ApplicationType(app.ApplicationType),
		GatewayServerURI:    gatewayURL,
		DiscoveryProfileURI: app.DiscoveryProfileURI,
		DiscoveryURLs:       []string{gatewayURL},
	}
}

// EndpointOptions 端点描述生成参数
type EndpointOptions struct {
	TransportProfileURI string
	UserTokenPolicies   []ua.UserTokenPolicy
}

// EndpointDescription 由应用记录和端点记录生成端点描述
// appURL 为应用地址 <base>/<applicationId>，同时作为服务 URI 与发现地址
// 端点地址为 appURL/<endpointId>，安全模式固定为 SignAndEncrypt
func EndpointDescription(app *regtypes.ApplicationInfoModel, ep *regtypes.EndpointInfoModel, appURL string, opts EndpointOptions) ua.EndpointDescription {
	desc := ua.EndpointDescription{
		EndpointURL:         JoinURL(appURL, ep.ID),
		Server:              describeApplication(app, strings.TrimRight(appURL, "/")),
		SecurityMode:        ua.MessageSecurityModeSignAndEncrypt,
		UserIdentityTokens:  opts.UserTokenPolicies,
		TransportProfileURI: opts.TransportProfileURI,
	}
	if ep.SecurityLevel != nil && *ep.SecurityLevel > 0 {
		desc.SecurityLevel = byte(min(*ep.SecurityLevel, 255))
	}
	if ep.Endpoint != nil {
		desc.SecurityPolicyURI = ep.Endpoint.SecurityPolicy
		desc.ServerCertificate = ua.ByteString(serverCertificate(ep.Endpoint))
	}
	return desc
}

func serverCertificate(ep *regtypes.EndpointModel) []byte {
	if len(ep.Certificate) > 0 {
		return ep.Certificate
	}
	if ep.CertificateThumbprint == "" {
		return nil
	}
	b, err := hex.DecodeString(ep.CertificateThumbprint)
	if err != nil {
		return []byte(ep.CertificateThumbprint)
	}
	return b
}

// Thumbprint 证书 SHA-1 指纹（大写十六进制）
func Thumbprint(der []byte) string {
	sum := sha1.Sum(der)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// FilterTransportProfiles 取调用方请求与网关提供的 profile 交集
// 调用方未指定时返回默认 profile
func FilterTransportProfiles(requested, offered []string, fallback string) []string {
	if len(requested) == 0 {
		return []string{fallback}
	}
	var out []string
	for _, r := range requested {
		for _, o := range offered {
			if r == o {
				out = append(out, o)
				break
			}
		}
	}
	return out
}
