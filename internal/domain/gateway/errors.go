package gateway

import (
	"fmt"

	"github.com/9triver/opcgw/internal/domain/gateway/diagnostics"
	"github.com/awcullen/opcua/ua"
)

// ServiceError 携带协议状态码的服务错误
type ServiceError struct {
	Code ua.StatusCode
	Err  error
}

// NewServiceError 创建服务错误，err 可为 nil
func NewServiceError(code ua.StatusCode, err error) *ServiceError {
	return &ServiceError{Code: code, Err: err}
}

// Errorf 以格式化消息创建服务错误
func Errorf(code ua.StatusCode, format string, args ...any) *ServiceError {
	return &ServiceError{Code: code, Err: fmt.Errorf(format, args...)}
}

func (e *ServiceError) Error() string {
	if e.Err == nil {
		return e.Code.Error()
	}
	return fmt.Sprintf("%s: %v", e.Code.Error(), e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// StatusCode 协议状态码
func (e *ServiceError) StatusCode() ua.StatusCode {
	return e.Code
}

// StatusOf 将任意错误映射为协议状态码
func StatusOf(err error) ua.StatusCode {
	return diagnostics.StatusOf(err)
}

var securityStatusCodes = map[ua.StatusCode]struct{}{
	ua.BadSecurityChecksFailed:         {},
	ua.BadSecurityPolicyRejected:       {},
	ua.BadCertificateInvalid:           {},
	ua.BadCertificateTimeInvalid:       {},
	ua.BadCertificateIssuerTimeInvalid: {},
	ua.BadCertificateHostNameInvalid:   {},
	ua.BadCertificateURIInvalid:        {},
	ua.BadCertificateUseNotAllowed:     {},
	ua.BadCertificateUntrusted:         {},
	ua.BadCertificateRevocationUnknown: {},
	ua.BadCertificateRevoked:           {},
	ua.BadServerURIInvalid:             {},
	ua.BadNonceInvalid:                 {},
	ua.BadApplicationSignatureInvalid:  {},
	ua.BadIdentityTokenInvalid:         {},
	ua.BadIdentityTokenRejected:        {},
	ua.BadUserAccessDenied:             {},
	ua.BadUserSignatureInvalid:         {},
}

// IsSecurityError 是否为安全类状态码
func IsSecurityError(code ua.StatusCode) bool {
	_, ok := securityStatusCodes[code]
	return ok
}
