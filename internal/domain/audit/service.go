package audit

import (
	"context"
	"errors"
	"time"

	"github.com/9triver/opcgw/internal/domain/audit/types"
	"github.com/9triver/opcgw/internal/util"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// ErrOperationRequired 缺少操作类型
var ErrOperationRequired = errors.New("operation type is required")

// Service 审计日志服务
type Service interface {
	RecordOperation(ctx context.Context, log *types.OperationLog) error
	GetOperations(ctx context.Context, options *types.QueryOptions) (*types.QueryResult, error)
	// Prune 清理超过保留期的记录
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService 创建审计日志服务
func NewService(repo Repository) Service {
	return &service{repo: repo, now: time.Now}
}

func (s *service) RecordOperation(ctx context.Context, log *types.OperationLog) error {
	if log.Operation == "" {
		return ErrOperationRequired
	}
	if log.ID == "" {
		log.ID = util.GenIDWith(util.PrefixAudit)
	}
	if log.Timestamp.IsZero() {
		log.Timestamp = s.now()
	}
	if log.Details == nil {
		log.Details = map[string]any{}
	}
	return s.repo.SaveOperation(ctx, log)
}

// GetOperations 多取一条用于判断 HasMore，Total 为本页条数
func (s *service) GetOperations(ctx context.Context, options *types.QueryOptions) (*types.QueryResult, error) {
	query := types.QueryOptions{}
	if options != nil {
		query = *options
	}
	switch {
	case query.Limit <= 0:
		query.Limit = defaultQueryLimit
	case query.Limit > maxQueryLimit:
		query.Limit = maxQueryLimit
	}
	if query.Offset < 0 {
		query.Offset = 0
	}
	limit := query.Limit
	query.Limit++

	logs, err := s.repo.GetOperations(ctx, &query)
	if err != nil {
		return nil, err
	}
	hasMore := len(logs) > limit
	if hasMore {
		logs = logs[:limit]
	}
	return &types.QueryResult{Logs: logs, Total: len(logs), HasMore: hasMore}, nil
}

func (s *service) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	return s.repo.DeleteBefore(ctx, s.now().Add(-retention))
}
