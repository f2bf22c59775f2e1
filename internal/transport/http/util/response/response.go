package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/awcullen/opcua/ua"
)

// BaseResponse 统一的API响应结构
type BaseResponse struct {
	Code       int    `json:"code"`            // 业务状态码
	Message    string `json:"message"`         // 响应消息
	Data       any    `json:"data,omitempty"`  // 响应数据
	Error      string `json:"error,omitempty"` // 错误信息
	HTTPStatus int    `json:"-"`               // HTTP 状态码（可选，默认与 Code 相同）
}

// Success 创建成功响应
func Success(data any) *BaseResponse {
	return &BaseResponse{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	}
}

// BadRequest 创建错误请求响应
func BadRequest(error string) *BaseResponse {
	return &BaseResponse{
		Code:    http.StatusBadRequest,
		Message: "bad request",
		Error:   error,
	}
}

// Unauthorized 创建未授权响应
func Unauthorized(error string) *BaseResponse {
	return &BaseResponse{
		Code:    http.StatusUnauthorized,
		Message: "unauthorized",
		Error:   error,
	}
}

// InternalError 创建内部服务器错误响应
func InternalError(error string) *BaseResponse {
	return &BaseResponse{
		Code:    http.StatusInternalServerError,
		Message: "internal server error",
		Error:   error,
	}
}

// ServiceUnavailable 创建服务不可用响应
func ServiceUnavailable(error string) *BaseResponse {
	return &BaseResponse{
		Code:    http.StatusServiceUnavailable,
		Message: "service unavailable",
		Error:   error,
	}
}

// NotFound 创建资源未找到响应
func NotFound(error string) *BaseResponse {
	return &BaseResponse{
		Code:    http.StatusNotFound,
		Message: "not found",
		Error:   error,
	}
}

// BusinessError 创建业务错误响应（HTTP 状态依然为 200）
func BusinessError(code int, message string, data any) *BaseResponse {
	return &BaseResponse{
		Code:       code,
		Message:    message,
		Data:       data,
		HTTPStatus: http.StatusOK,
	}
}

// FromError 按错误携带的协议状态码选择 HTTP 状态
func FromError(err error) *BaseResponse {
	var code ua.StatusCode
	var coder interface{ StatusCode() ua.StatusCode }
	switch {
	case errors.As(err, &coder):
		code = coder.StatusCode()
	case errors.As(err, &code):
	default:
		return InternalError(err.Error())
	}

	switch code {
	case ua.BadNotFound, ua.BadNodeIDUnknown:
		return NotFound(err.Error())
	case ua.BadInvalidArgument, ua.BadNodeIDInvalid:
		return BadRequest(err.Error())
	case ua.BadServerNotConnected, ua.BadTimeout, ua.BadServerHalted:
		return ServiceUnavailable(err.Error())
	}
	return InternalError(err.Error())
}

// WriteJSON 将响应写入HTTP响应
func (r *BaseResponse) WriteJSON(w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	status := r.HTTPStatus
	if status == 0 {
		status = r.Code
	}
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(r)
}
