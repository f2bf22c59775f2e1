package audit

import (
	"context"
	"sync"
	"time"

	"github.com/9triver/opcgw/internal/domain/audit/types"
	"github.com/sirupsen/logrus"
)

// recordTimeout 异步写入单条日志的超时
const recordTimeout = 5 * time.Second

// Manager 操作日志管理器
type Manager struct {
	svc     Service
	pending sync.WaitGroup
}

// NewManager 创建操作日志管理器
func NewManager(svc Service) *Manager {
	return &Manager{
		svc: svc,
	}
}

// RecordOperation 记录操作日志
func (m *Manager) RecordOperation(ctx context.Context, log *types.OperationLog) error {
	return m.svc.RecordOperation(ctx, log)
}

// RecordAsync 异步记录操作日志，不阻塞请求路径，失败只记录警告
func (m *Manager) RecordAsync(log *types.OperationLog) {
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := m.svc.RecordOperation(ctx, log); err != nil {
			logrus.Warnf("Failed to record %s operation: %v", log.Operation, err)
		}
	}()
}

// Flush 等待已提交的异步写入完成
func (m *Manager) Flush() {
	m.pending.Wait()
}

// GetOperations 查询操作日志
func (m *Manager) GetOperations(ctx context.Context, options *types.QueryOptions) (*types.QueryResult, error) {
	return m.svc.GetOperations(ctx, options)
}

// Prune 清理超过保留期的记录
func (m *Manager) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	return m.svc.Prune(ctx, retention)
}

// RunRetention 立即清理一次，之后按 interval 周期清理，ctx 取消后返回
func (m *Manager) RunRetention(ctx context.Context, retention, interval time.Duration) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := m.svc.Prune(ctx, retention)
		switch {
		case err != nil:
			logrus.Warnf("Failed to prune audit log: %v", err)
		case n > 0:
			logrus.Infof("Pruned %d audit records older than %v", n, retention)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
