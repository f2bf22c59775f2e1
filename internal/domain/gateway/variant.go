package gateway

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/awcullen/opcua/ua"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"
)

// 后端使用的内置数据类型名
const (
	DataTypeBoolean       = "Boolean"
	DataTypeSByte         = "SByte"
	DataTypeByte          = "Byte"
	DataTypeInt16         = "Int16"
	DataTypeUInt16        = "UInt16"
	DataTypeInt32         = "Int32"
	DataTypeUInt32        = "UInt32"
	DataTypeInt64         = "Int64"
	DataTypeUInt64        = "UInt64"
	DataTypeFloat         = "Float"
	DataTypeDouble        = "Double"
	DataTypeString        = "String"
	DataTypeDateTime      = "DateTime"
	DataTypeGUID          = "Guid"
	DataTypeByteString    = "ByteString"
	DataTypeNodeID        = "NodeId"
	DataTypeStatusCode    = "StatusCode"
	DataTypeQualifiedName = "QualifiedName"
	DataTypeLocalizedText = "LocalizedText"
)

// EncodeVariant 将协议值编码为后端 JSON 值及其数据类型名
func EncodeVariant(v ua.Variant) (*structpb.Value, string, error) {
	switch x := v.(type) {
	case nil:
		return structpb.NewNullValue(), "", nil
	case bool:
		return structpb.NewBoolValue(x), DataTypeBoolean, nil
	case int8:
		return structpb.NewNumberValue(float64(x)), DataTypeSByte, nil
	case uint8:
		return structpb.NewNumberValue(float64(x)), DataTypeByte, nil
	case int16:
		return structpb.NewNumberValue(float64(x)), DataTypeInt16, nil
	case uint16:
		return structpb.NewNumberValue(float64(x)), DataTypeUInt16, nil
	case int32:
		return structpb.NewNumberValue(float64(x)), DataTypeInt32, nil
	case uint32:
		return structpb.NewNumberValue(float64(x)), DataTypeUInt32, nil
	case int64:
		// 64 位整数按字符串传递，避免精度丢失
		return structpb.NewStringValue(strconv.FormatInt(x, 10)), DataTypeInt64, nil
	case uint64:
		return structpb.NewStringValue(strconv.FormatUint(x, 10)), DataTypeUInt64, nil
	case float32:
		return structpb.NewNumberValue(float64(x)), DataTypeFloat, nil
	case float64:
		return structpb.NewNumberValue(x), DataTypeDouble, nil
	case string:
		return structpb.NewStringValue(x), DataTypeString, nil
	case time.Time:
		return structpb.NewStringValue(x.UTC().Format(time.RFC3339Nano)), DataTypeDateTime, nil
	case uuid.UUID:
		return structpb.NewStringValue(x.String()), DataTypeGUID, nil
	case ua.ByteString:
		return structpb.NewStringValue(base64.StdEncoding.EncodeToString([]byte(x))), DataTypeByteString, nil
	case ua.StatusCode:
		return structpb.NewNumberValue(float64(uint32(x))), DataTypeStatusCode, nil
	case ua.QualifiedName:
		return structpb.NewStringValue(formatQualifiedName(x)), DataTypeQualifiedName, nil
	case ua.LocalizedText:
		return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"text":   structpb.NewStringValue(x.Text),
			"locale": structpb.NewStringValue(x.Locale),
		}}), DataTypeLocalizedText, nil
	case ua.NodeIDNumeric, ua.NodeIDString, ua.NodeIDGUID, ua.NodeIDOpaque:
		return structpb.NewStringValue(FormatNodeID(x.(ua.NodeID))), DataTypeNodeID, nil
	case []bool:
		return encodeSlice(x)
	case []int8:
		return encodeSlice(x)
	case []uint8:
		return encodeSlice(x)
	case []int16:
		return encodeSlice(x)
	case []uint16:
		return encodeSlice(x)
	case []int32:
		return encodeSlice(x)
	case []uint32:
		return encodeSlice(x)
	case []int64:
		return encodeSlice(x)
	case []uint64:
		return encodeSlice(x)
	case []float32:
		return encodeSlice(x)
	case []float64:
		return encodeSlice(x)
	case []string:
		return encodeSlice(x)
	case []time.Time:
		return encodeSlice(x)
	case []ua.ByteString:
		return encodeSlice(x)
	}
	return nil, "", Errorf(ua.BadTypeMismatch, "unsupported variant type %T", v)
}

func encodeSlice[T any](items []T) (*structpb.Value, string, error) {
	values := make([]*structpb.Value, 0, len(items))
	dataType := ""
	for _, item := range items {
		v, dt, err := EncodeVariant(item)
		if err != nil {
			return nil, "", err
		}
		values = append(values, v)
		dataType = dt
	}
	if dataType == "" {
		// 空数组也需要类型名
		var zero T
		_, dataType, _ = EncodeVariant(zero)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values}), dataType, nil
}

// DecodeVariant 按后端给出的数据类型名还原协议值
// 数据类型为空时按 JSON 值的自然类型推断
func DecodeVariant(v *structpb.Value, dataType string) (ua.Variant, error) {
	if v == nil {
		return nil, nil
	}
	if _, ok := v.GetKind().(*structpb.Value_NullValue); ok {
		return nil, nil
	}
	if list := v.GetListValue(); list != nil {
		return decodeArray(list.GetValues(), dataType)
	}

	switch dataType {
	case "":
		return inferScalar(v)
	case DataTypeBoolean:
		b, ok := v.GetKind().(*structpb.Value_BoolValue)
		if !ok {
			return nil, mismatch(dataType, v)
		}
		return b.BoolValue, nil
	case DataTypeSByte:
		n, err := integer(v, math.MinInt8, math.MaxInt8)
		return int8(n), err
	case DataTypeByte:
		n, err := integer(v, 0, math.MaxUint8)
		return uint8(n), err
	case DataTypeInt16:
		n, err := integer(v, math.MinInt16, math.MaxInt16)
		return int16(n), err
	case DataTypeUInt16:
		n, err := integer(v, 0, math.MaxUint16)
		return uint16(n), err
	case DataTypeInt32:
		n, err := integer(v, math.MinInt32, math.MaxInt32)
		return int32(n), err
	case DataTypeUInt32:
		n, err := integer(v, 0, math.MaxUint32)
		return uint32(n), err
	case DataTypeInt64:
		return int64Value(v)
	case DataTypeUInt64:
		return uint64Value(v)
	case DataTypeFloat:
		f, err := number(v)
		return float32(f), err
	case DataTypeDouble:
		return number(v)
	case DataTypeString:
		return text(v, dataType)
	case DataTypeDateTime:
		s, err := text(v, dataType)
		if err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, NewServiceError(ua.BadTypeMismatch, err)
		}
		return t, nil
	case DataTypeGUID:
		s, err := text(v, dataType)
		if err != nil {
			return nil, err
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, NewServiceError(ua.BadTypeMismatch, err)
		}
		return id, nil
	case DataTypeByteString:
		s, err := text(v, dataType)
		if err != nil {
			return nil, err
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, NewServiceError(ua.BadTypeMismatch, err)
		}
		return ua.ByteString(b), nil
	case DataTypeStatusCode:
		n, err := integer(v, 0, math.MaxUint32)
		return ua.StatusCode(n), err
	case DataTypeNodeID:
		s, err := text(v, dataType)
		if err != nil {
			return nil, err
		}
		id := ParseNodeID(s)
		if id == nil {
			return nil, Errorf(ua.BadTypeMismatch, "invalid node id %q", s)
		}
		return id, nil
	case DataTypeQualifiedName:
		s, err := text(v, dataType)
		if err != nil {
			return nil, err
		}
		return ParseQualifiedName(s), nil
	case DataTypeLocalizedText:
		if s, ok := v.GetKind().(*structpb.Value_StringValue); ok {
			return ua.LocalizedText{Text: s.StringValue}, nil
		}
		st := v.GetStructValue()
		if st == nil {
			return nil, mismatch(dataType, v)
		}
		return ua.LocalizedText{
			Text:   st.GetFields()["text"].GetStringValue(),
			Locale: st.GetFields()["locale"].GetStringValue(),
		}, nil
	}
	return nil, Errorf(ua.BadTypeMismatch, "unsupported data type %q", dataType)
}

func decodeArray(values []*structpb.Value, dataType string) (ua.Variant, error) {
	switch dataType {
	case DataTypeBoolean:
		return decodeSlice[bool](values, dataType)
	case DataTypeSByte:
		return decodeSlice[int8](values, dataType)
	case DataTypeByte:
		return decodeSlice[uint8](values, dataType)
	case DataTypeInt16:
		return decodeSlice[int16](values, dataType)
	case DataTypeUInt16:
		return decodeSlice[uint16](values, dataType)
	case DataTypeInt32:
		return decodeSlice[int32](values, dataType)
	case DataTypeUInt32:
		return decodeSlice[uint32](values, dataType)
	case DataTypeInt64:
		return decodeSlice[int64](values, dataType)
	case DataTypeUInt64:
		return decodeSlice[uint64](values, dataType)
	case DataTypeFloat:
		return decodeSlice[float32](values, dataType)
	case DataTypeDouble, "":
		return decodeSlice[float64](values, DataTypeDouble)
	case DataTypeString:
		return decodeSlice[string](values, dataType)
	case DataTypeDateTime:
		return decodeSlice[time.Time](values, dataType)
	case DataTypeByteString:
		return decodeSlice[ua.ByteString](values, dataType)
	}
	return nil, Errorf(ua.BadTypeMismatch, "unsupported array data type %q", dataType)
}

func decodeSlice[T any](values []*structpb.Value, dataType string) ([]T, error) {
	out := make([]T, 0, len(values))
	for _, v := range values {
		item, err := DecodeVariant(v, dataType)
		if err != nil {
			return nil, err
		}
		typed, ok := item.(T)
		if !ok {
			return nil, Errorf(ua.BadTypeMismatch, "array element %T is not %s", item, dataType)
		}
		out = append(out, typed)
	}
	return out, nil
}

func inferScalar(v *structpb.Value) (ua.Variant, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_BoolValue:
		return k.BoolValue, nil
	case *structpb.Value_NumberValue:
		return k.NumberValue, nil
	case *structpb.Value_StringValue:
		return k.StringValue, nil
	}
	return nil, Errorf(ua.BadTypeMismatch, "cannot infer data type of %T", v.GetKind())
}

func mismatch(dataType string, v *structpb.Value) error {
	return Errorf(ua.BadTypeMismatch, "value %T does not match %s", v.GetKind(), dataType)
}

func number(v *structpb.Value) (float64, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return k.NumberValue, nil
	case *structpb.Value_StringValue:
		f, err := strconv.ParseFloat(k.StringValue, 64)
		if err != nil {
			return 0, NewServiceError(ua.BadTypeMismatch, err)
		}
		return f, nil
	}
	return 0, Errorf(ua.BadTypeMismatch, "value %T is not a number", v.GetKind())
}

func integer(v *structpb.Value, min, max float64) (int64, error) {
	f, err := number(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f < min || f > max {
		return 0, Errorf(ua.BadTypeMismatch, "value %v out of range", f)
	}
	return int64(f), nil
}

func int64Value(v *structpb.Value) (int64, error) {
	if s, ok := v.GetKind().(*structpb.Value_StringValue); ok {
		n, err := strconv.ParseInt(s.StringValue, 10, 64)
		if err != nil {
			return 0, NewServiceError(ua.BadTypeMismatch, err)
		}
		return n, nil
	}
	return integer(v, math.MinInt64, math.MaxInt64)
}

func uint64Value(v *structpb.Value) (uint64, error) {
	if s, ok := v.GetKind().(*structpb.Value_StringValue); ok {
		n, err := strconv.ParseUint(s.StringValue, 10, 64)
		if err != nil {
			return 0, NewServiceError(ua.BadTypeMismatch, err)
		}
		return n, nil
	}
	n, err := integer(v, 0, math.MaxUint64)
	return uint64(n), err
}

func text(v *structpb.Value, dataType string) (string, error) {
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", mismatch(dataType, v)
	}
	return s.StringValue, nil
}

// FormatNodeID 节点标识的字符串形式，nil 为空串
func FormatNodeID(id ua.NodeID) string {
	if id == nil {
		return ""
	}
	return fmt.Sprint(id)
}

// ParseNodeID 解析字符串形式的节点标识，失败返回 nil
func ParseNodeID(s string) ua.NodeID {
	if s == "" {
		return nil
	}
	return ua.ParseNodeID(s)
}

// ParseQualifiedName 解析 "ns:name" 形式的浏览名，无前缀时命名空间为 0
func ParseQualifiedName(s string) ua.QualifiedName {
	if i := strings.IndexByte(s, ':'); i > 0 {
		if ns, err := strconv.ParseUint(s[:i], 10, 16); err == nil {
			return ua.QualifiedName{NamespaceIndex: uint16(ns), Name: s[i+1:]}
		}
	}
	return ua.QualifiedName{Name: s}
}

func formatQualifiedName(q ua.QualifiedName) string {
	if q.NamespaceIndex == 0 {
		return q.Name
	}
	return fmt.Sprintf("%d:%s", q.NamespaceIndex, q.Name)
}
