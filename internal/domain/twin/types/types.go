package types

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// DiagnosticsLevel 后端诊断级别
type DiagnosticsLevel string

const (
	DiagnosticsLevelNone        DiagnosticsLevel = "None"
	DiagnosticsLevelStatus      DiagnosticsLevel = "Status"
	DiagnosticsLevelOperations  DiagnosticsLevel = "Operations"
	DiagnosticsLevelDiagnostics DiagnosticsLevel = "Diagnostics"
	DiagnosticsLevelVerbose     DiagnosticsLevel = "Verbose"
)

// DiagnosticsModel 请求携带的诊断参数
type DiagnosticsModel struct {
	Level     DiagnosticsLevel `json:"level,omitempty"`
	AuditID   string           `json:"auditId,omitempty"`
	TimeStamp *time.Time       `json:"timeStamp,omitempty"`
}

// RequestHeaderModel 后端请求头
type RequestHeaderModel struct {
	Diagnostics *DiagnosticsModel `json:"diagnostics,omitempty"`
	Locales     []string          `json:"locales,omitempty"`
}

// ServiceResultModel 后端调用结果，Diagnostics 为自由格式 JSON
type ServiceResultModel struct {
	StatusCode   *uint32          `json:"statusCode,omitempty"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	Diagnostics  *structpb.Struct `json:"diagnostics,omitempty"`
}

// BrowseDirection 浏览方向
type BrowseDirection string

const (
	BrowseDirectionForward  BrowseDirection = "Forward"
	BrowseDirectionBackward BrowseDirection = "Backward"
	BrowseDirectionBoth     BrowseDirection = "Both"
)

// NodeModel 节点描述
type NodeModel struct {
	NodeID         string `json:"nodeId"`
	NodeClass      string `json:"nodeClass,omitempty"` // e.g., "Object", "Variable", "Method"
	BrowseName     string `json:"browseName,omitempty"`
	DisplayName    string `json:"displayName,omitempty"`
	TypeDefinition string `json:"typeDefinitionId,omitempty"`
}

// NodeReferenceModel 节点引用
type NodeReferenceModel struct {
	ReferenceTypeID string          `json:"referenceTypeId,omitempty"`
	Direction       BrowseDirection `json:"direction,omitempty"`
	Target          *NodeModel      `json:"target"`
}

// BrowseFirstRequestModel 首次浏览请求
type BrowseFirstRequestModel struct {
	Header                *RequestHeaderModel `json:"header,omitempty"`
	NodeID                string              `json:"nodeId,omitempty"`
	Direction             BrowseDirection     `json:"direction,omitempty"`
	ReferenceTypeID       string              `json:"referenceTypeId,omitempty"`
	NoSubtypes            bool                `json:"noSubtypes,omitempty"`
	MaxReferencesToReturn uint32              `json:"maxReferencesToReturn,omitempty"`
	NodeClassMask         uint32              `json:"nodeClassMask,omitempty"`
}

// BrowseFirstResponseModel 首次浏览响应
type BrowseFirstResponseModel struct {
	Node              *NodeModel           `json:"node,omitempty"`
	References        []NodeReferenceModel `json:"references,omitempty"`
	ContinuationToken string               `json:"continuationToken,omitempty"`
	ErrorInfo         *ServiceResultModel  `json:"errorInfo,omitempty"`
}

// BrowseNextRequestModel 续浏览请求
type BrowseNextRequestModel struct {
	Header            *RequestHeaderModel `json:"header,omitempty"`
	ContinuationToken string              `json:"continuationToken"`
	Abort             bool                `json:"abort,omitempty"`
}

// BrowseNextResponseModel 续浏览响应
type BrowseNextResponseModel struct {
	References        []NodeReferenceModel `json:"references,omitempty"`
	ContinuationToken string               `json:"continuationToken,omitempty"`
	ErrorInfo         *ServiceResultModel  `json:"errorInfo,omitempty"`
}

// ValueReadRequestModel 值读取请求
type ValueReadRequestModel struct {
	Header     *RequestHeaderModel `json:"header,omitempty"`
	NodeID     string              `json:"nodeId"`
	IndexRange string              `json:"indexRange,omitempty"`
	MaxAge     *float64            `json:"maxAge,omitempty"`
}

// ValueReadResponseModel 值读取响应
type ValueReadResponseModel struct {
	Value             *structpb.Value     `json:"value,omitempty"`
	DataType          string              `json:"dataType,omitempty"`
	SourcePicoseconds *uint16             `json:"sourcePicoseconds,omitempty"`
	SourceTimestamp   *time.Time          `json:"sourceTimestamp,omitempty"`
	ServerPicoseconds *uint16             `json:"serverPicoseconds,omitempty"`
	ServerTimestamp   *time.Time          `json:"serverTimestamp,omitempty"`
	ErrorInfo         *ServiceResultModel `json:"errorInfo,omitempty"`
}

// ValueWriteRequestModel 值写入请求
type ValueWriteRequestModel struct {
	Header     *RequestHeaderModel `json:"header,omitempty"`
	NodeID     string              `json:"nodeId"`
	IndexRange string              `json:"indexRange,omitempty"`
	DataType   string              `json:"dataType,omitempty"`
	Value      *structpb.Value     `json:"value"`
}

// ValueWriteResponseModel 值写入响应
type ValueWriteResponseModel struct {
	ErrorInfo *ServiceResultModel `json:"errorInfo,omitempty"`
}

// MethodCallArgumentModel 方法参数
type MethodCallArgumentModel struct {
	Value    *structpb.Value `json:"value,omitempty"`
	DataType string          `json:"dataType,omitempty"`
}

// MethodCallRequestModel 方法调用请求
type MethodCallRequestModel struct {
	Header    *RequestHeaderModel       `json:"header,omitempty"`
	ObjectID  string                    `json:"objectId,omitempty"`
	MethodID  string                    `json:"methodId"`
	Arguments []MethodCallArgumentModel `json:"arguments,omitempty"`
}

// MethodCallResponseModel 方法调用响应
type MethodCallResponseModel struct {
	Results   []MethodCallArgumentModel `json:"results,omitempty"`
	ErrorInfo *ServiceResultModel       `json:"errorInfo,omitempty"`
}

// MethodMetadataRequestModel 方法元数据请求
type MethodMetadataRequestModel struct {
	Header   *RequestHeaderModel `json:"header,omitempty"`
	MethodID string              `json:"methodId"`
}

// MethodMetadataArgumentModel 方法参数描述
type MethodMetadataArgumentModel struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	DataType    string `json:"dataType,omitempty"`
	ValueRank   *int32 `json:"valueRank,omitempty"`
}

// MethodMetadataResponseModel 方法元数据
type MethodMetadataResponseModel struct {
	ObjectID        string                        `json:"objectId,omitempty"`
	InputArguments  []MethodMetadataArgumentModel `json:"inputArguments,omitempty"`
	OutputArguments []MethodMetadataArgumentModel `json:"outputArguments,omitempty"`
	ErrorInfo       *ServiceResultModel           `json:"errorInfo,omitempty"`
}
