package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	twintypes "github.com/9triver/opcgw/internal/domain/twin/types"
	"github.com/awcullen/opcua/ua"
	"google.golang.org/protobuf/types/known/structpb"
)

// Absent 字符串表下标缺省值
const Absent int32 = -1

// Info 操作级诊断记录，各字段为字符串表下标
type Info struct {
	SymbolicID      int32         `json:"symbolicId"`
	NamespaceURI    int32         `json:"namespaceUri"`
	Locale          int32         `json:"locale"`
	LocalizedText   int32         `json:"localizedText"`
	AdditionalInfo  string        `json:"additionalInfo,omitempty"`
	InnerStatusCode ua.StatusCode `json:"innerStatusCode,omitempty"`
	Inner           *Info         `json:"inner,omitempty"`
}

func newInfo() *Info {
	return &Info{
		SymbolicID:    Absent,
		NamespaceURI:  Absent,
		Locale:        Absent,
		LocalizedText: Absent,
	}
}

func (i *Info) empty() bool {
	return i.SymbolicID == Absent && i.NamespaceURI == Absent && i.Locale == Absent &&
		i.LocalizedText == Absent && i.AdditionalInfo == "" && i.InnerStatusCode == ua.Good && i.Inner == nil
}

// StatusCoder 携带协议状态码的错误
type StatusCoder interface {
	StatusCode() ua.StatusCode
}

// StatusOf 将任意错误映射为协议状态码
func StatusOf(err error) ua.StatusCode {
	if err == nil {
		return ua.Good
	}
	var coder StatusCoder
	if errors.As(err, &coder) {
		return coder.StatusCode()
	}
	var code ua.StatusCode
	if errors.As(err, &code) {
		return code
	}
	switch {
	case errors.Is(err, context.Canceled):
		return ua.BadRequestCancelledByClient
	case errors.Is(err, context.DeadlineExceeded):
		return ua.BadTimeout
	}
	return ua.BadUnexpectedError
}

// ToBackend 将诊断掩码转换为后端诊断参数，未请求诊断时返回 nil
func ToBackend(mask Mask, auditID string) *twintypes.DiagnosticsModel {
	var level twintypes.DiagnosticsLevel
	switch {
	case mask == 0:
		if auditID == "" {
			return nil
		}
		level = twintypes.DiagnosticsLevelNone
	case mask&All == All:
		level = twintypes.DiagnosticsLevelVerbose
	case mask&(OperationLocalizedText|OperationAdditionalInfo|OperationInnerDiagnostics) != 0:
		level = twintypes.DiagnosticsLevelDiagnostics
	case mask.OperationLevel():
		level = twintypes.DiagnosticsLevelOperations
	default:
		level = twintypes.DiagnosticsLevelStatus
	}
	now := time.Now().UTC()
	return &twintypes.DiagnosticsModel{
		Level:     level,
		AuditID:   auditID,
		TimeStamp: &now,
	}
}

// FromBackend 将后端结果转换为状态码和诊断记录
// 未请求操作级诊断时诊断记录为 nil
func FromBackend(result *twintypes.ServiceResultModel, mask Mask, table *StringTable) (ua.StatusCode, *Info) {
	if result == nil {
		return ua.Good, nil
	}
	status := ua.Good
	if result.StatusCode != nil {
		status = ua.StatusCode(*result.StatusCode)
	} else if code, ok := numberField(result.Diagnostics, "statusCode", "status"); ok {
		status = ua.StatusCode(code)
	}
	if !mask.OperationLevel() {
		return status, nil
	}
	info := fromPayload(result.Diagnostics, result.ErrorMessage, mask, table, 0)
	if info.empty() {
		return status, nil
	}
	return status, info
}

// maxInnerDepth 内层诊断最大嵌套深度
const maxInnerDepth = 4

func fromPayload(payload *structpb.Struct, message string, mask Mask, table *StringTable, depth int) *Info {
	info := newInfo()
	if mask.Has(OperationSymbolicID) {
		if s, ok := stringField(payload, "symbolicId"); ok {
			info.SymbolicID = table.Intern(s)
		}
		if s, ok := stringField(payload, "namespaceUri"); ok {
			info.NamespaceURI = table.Intern(s)
		}
	}
	if mask.Has(OperationLocalizedText) {
		if message == "" {
			message, _ = stringField(payload, "message")
		}
		if message != "" {
			info.LocalizedText = table.Intern(message)
		}
		if s, ok := stringField(payload, "locale"); ok {
			info.Locale = table.Intern(s)
		}
	}
	if mask.Has(OperationAdditionalInfo) && payload != nil && len(payload.GetFields()) > 0 {
		if data, err := json.Marshal(payload); err == nil {
			info.AdditionalInfo = string(data)
		}
	}
	if mask.Has(OperationInnerStatusCode) {
		if code, ok := numberField(payload, "innerStatusCode"); ok {
			info.InnerStatusCode = ua.StatusCode(code)
		}
	}
	if mask.Has(OperationInnerDiagnostics) && depth < maxInnerDepth {
		if inner := payload.GetFields()["inner"].GetStructValue(); inner != nil {
			if ii := fromPayload(inner, "", mask, table, depth+1); !ii.empty() {
				info.Inner = ii
			}
		}
	}
	return info
}

// FromError 异常路径的诊断记录，与 FromBackend 遵循相同掩码规则
func FromError(err error, mask Mask, table *StringTable) *Info {
	if err == nil || !mask.OperationLevel() {
		return nil
	}
	status := StatusOf(err)
	info := newInfo()
	if mask.Has(OperationSymbolicID) {
		info.SymbolicID = table.Intern(fmt.Sprintf("0x%08X", uint32(status)))
	}
	if mask.Has(OperationLocalizedText) {
		info.LocalizedText = table.Intern(err.Error())
	}
	if mask.Has(OperationAdditionalInfo) {
		info.AdditionalInfo = fmt.Sprintf("%T", err)
	}
	if mask.Has(OperationInnerStatusCode) {
		if inner := errors.Unwrap(err); inner != nil {
			if code := StatusOf(inner); code != status {
				info.InnerStatusCode = code
			}
		}
	}
	if mask.Has(OperationInnerDiagnostics) {
		if inner := errors.Unwrap(err); inner != nil {
			if ii := FromError(inner, mask&^OperationInnerDiagnostics, table); ii != nil && !ii.empty() {
				info.Inner = ii
			}
		}
	}
	return info
}

func stringField(s *structpb.Struct, name string) (string, bool) {
	v, ok := s.GetFields()[name]
	if !ok {
		return "", false
	}
	str, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok || str.StringValue == "" {
		return "", false
	}
	return str.StringValue, true
}

func numberField(s *structpb.Struct, names ...string) (uint32, bool) {
	for _, name := range names {
		v, ok := s.GetFields()[name]
		if !ok {
			continue
		}
		if n, ok := v.GetKind().(*structpb.Value_NumberValue); ok && n.NumberValue >= 0 {
			return uint32(n.NumberValue), true
		}
	}
	return 0, false
}
