package audit

import (
	"context"
	"time"

	"github.com/9triver/opcgw/internal/domain/audit/types"
)

// Repository 审计日志存储
type Repository interface {
	SaveOperation(ctx context.Context, log *types.OperationLog) error
	// GetOperations 按条件查询，结果按时间倒序
	GetOperations(ctx context.Context, options *types.QueryOptions) ([]*types.OperationLog, error)
	// DeleteBefore 删除早于 before 的记录，返回删除条数
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	Close() error
}
