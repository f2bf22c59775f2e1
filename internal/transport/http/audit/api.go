package audit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	audittypes "github.com/9triver/opcgw/internal/domain/audit/types"
	"github.com/9triver/opcgw/internal/transport/http/util/response"
	"github.com/9triver/opcgw/internal/util"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// OperationQuerier 操作日志查询
type OperationQuerier interface {
	GetOperations(ctx context.Context, options *audittypes.QueryOptions) (*audittypes.QueryResult, error)
}

// API 审计相关 API
type API struct {
	operations OperationQuerier
	logFile    func() string
}

func NewAPI(operations OperationQuerier) *API {
	return &API{operations: operations, logFile: util.GetLogFilePath}
}

// RegisterRoutes 注册审计相关路由
func RegisterRoutes(router *mux.Router, operations OperationQuerier) {
	api := NewAPI(operations)
	router.HandleFunc("/audit/operations", api.handleGetOperations).Methods("GET")
	router.HandleFunc("/audit/logs", api.handleGetLogs).Methods("GET")
	logrus.Info("Audit API routes registered: /audit/operations, /audit/logs")
}

// handleGetOperations 查询会话准入与服务器生命周期操作日志
func (api *API) handleGetOperations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit, err := parsePositiveInt(query.Get("limit"), 100)
	if err != nil {
		response.BadRequest("invalid limit: " + err.Error()).WriteJSON(w)
		return
	}
	offset, err := parseNonNegativeInt(query.Get("offset"), 0)
	if err != nil {
		response.BadRequest("invalid offset: " + err.Error()).WriteJSON(w)
		return
	}
	start, err := parseTime(query.Get("start_time"))
	if err != nil {
		response.BadRequest("invalid start_time: " + err.Error()).WriteJSON(w)
		return
	}
	end, err := parseTime(query.Get("end_time"))
	if err != nil {
		response.BadRequest("invalid end_time: " + err.Error()).WriteJSON(w)
		return
	}

	result, err := api.operations.GetOperations(r.Context(), &audittypes.QueryOptions{
		StartTime:  start,
		EndTime:    end,
		User:       query.Get("user"),
		Operation:  audittypes.OperationType(query.Get("operation")),
		ResourceID: query.Get("resource_id"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		logrus.Errorf("Failed to query operation logs: %v", err)
		response.InternalError("failed to query operation logs: " + err.Error()).WriteJSON(w)
		return
	}
	response.Success(result).WriteJSON(w)
}

// handleGetLogs 读取网关自身的运行日志
func (api *API) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit, err := parsePositiveInt(query.Get("limit"), 100)
	if err != nil {
		response.BadRequest("invalid limit: " + err.Error()).WriteJSON(w)
		return
	}
	offset, err := parseNonNegativeInt(query.Get("offset"), 0)
	if err != nil {
		response.BadRequest("invalid offset: " + err.Error()).WriteJSON(w)
		return
	}
	level := query.Get("level")
	if level == "all" {
		level = ""
	}

	path := api.logFile()
	if path == "" {
		response.Success(GetLogsResponse{Logs: []*LogEntry{}}).WriteJSON(w)
		return
	}

	logs, err := readLogs(path, limit, offset, level)
	if err != nil {
		logrus.Errorf("Failed to read logs from file: %v", err)
		response.InternalError("failed to read logs: " + err.Error()).WriteJSON(w)
		return
	}
	response.Success(GetLogsResponse{Logs: logs, Total: len(logs)}).WriteJSON(w)
}

func parsePositiveInt(raw string, defaultVal int) (int, error) {
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("must be positive integer")
	}
	return value, nil
}

func parseNonNegativeInt(raw string, defaultVal int) (int, error) {
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("must be non-negative integer")
	}
	return value, nil
}

func parseTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
