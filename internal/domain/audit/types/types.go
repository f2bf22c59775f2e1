package types

import "time"

// OperationType 操作类型
type OperationType string

const (
	OperationTypeCreateSession   OperationType = "create_session"
	OperationTypeRejectSession   OperationType = "reject_session"
	OperationTypeActivateSession OperationType = "activate_session"
	OperationTypeChangeIdentity  OperationType = "change_identity"
	OperationTypeCloseSession    OperationType = "close_session"
	OperationTypeCancelRequest   OperationType = "cancel_request"
	OperationTypeStartServer     OperationType = "start_server"
	OperationTypeStopServer      OperationType = "stop_server"
)

// OperationLog 操作日志
type OperationLog struct {
	ID           string         `json:"id"`
	User         string         `json:"user"`               // 会话身份或客户端应用 URI
	Operation    OperationType  `json:"operation"`          // 操作类型
	ResourceID   string         `json:"resource_id"`        // 资源ID（如会话ID）
	ResourceType string         `json:"resource_type"`      // 资源类型（如 "session"）
	Action       string         `json:"action"`             // 操作描述
	Status       string         `json:"status"`             // 协议状态码，e.g., "0x00000000"
	Details      map[string]any `json:"details"`            // 附加信息
	Timestamp    time.Time      `json:"timestamp"`          // 操作时间
	Endpoint     string         `json:"endpoint,omitempty"` // 通道端点地址
}

// QueryOptions 查询选项
type QueryOptions struct {
	StartTime  *time.Time    `json:"start_time,omitempty"`
	EndTime    *time.Time    `json:"end_time,omitempty"`
	User       string        `json:"user,omitempty"`
	Operation  OperationType `json:"operation,omitempty"`
	ResourceID string        `json:"resource_id,omitempty"`
	Limit      int           `json:"limit"`
	Offset     int           `json:"offset"`
}

// QueryResult 查询结果
type QueryResult struct {
	Logs    []*OperationLog `json:"logs"`
	Total   int             `json:"total"`
	HasMore bool            `json:"has_more"`
}
