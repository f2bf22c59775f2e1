package gateway

import (
	"context"
	"time"

	"github.com/9triver/opcgw/internal/domain/gateway/diagnostics"
	"github.com/9triver/opcgw/internal/domain/gateway/endpoint"
	"github.com/9triver/opcgw/internal/domain/gateway/types"
	twintypes "github.com/9triver/opcgw/internal/domain/twin/types"
	"github.com/awcullen/opcua/ua"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// BatchResponse 批量操作响应，Results 与 DiagnosticInfos 与请求项一一对应
type BatchResponse[T any] struct {
	Header          ua.ResponseHeader
	Results         []T
	DiagnosticInfos []*diagnostics.Info
	StringTable     []string
}

type (
	BrowseResponse     = BatchResponse[ua.BrowseResult]
	BrowseNextResponse = BatchResponse[ua.BrowseResult]
	ReadResponse       = BatchResponse[ua.DataValue]
	WriteResponse      = BatchResponse[ua.StatusCode]
	CallResponse       = BatchResponse[ua.CallMethodResult]
)

// itemFunc 单项后端调用，返回结果与可选诊断记录
type itemFunc[I, T any] func(ctx context.Context, twinID string, item I) (T, *diagnostics.Info, error)

// dispatch 将 N 项请求拆成 N 次独立后端调用
// 每个槽位预先填入失败值，单项失败只影响自身槽位
func dispatch[I, T any](s *Server, rc *types.RequestContext, items []I, failed T, op itemFunc[I, T]) ([]T, []*diagnostics.Info) {
	results := make([]T, len(items))
	infos := make([]*diagnostics.Info, len(items))
	for i := range results {
		results[i] = failed
	}

	twinID, twinErr := endpoint.ParseTwinID(rc.Channel.EndpointURL)

	g, ctx := errgroup.WithContext(rc.Context())
	if limit := s.cfg.MaxConcurrentItems; limit > 0 {
		g.SetLimit(limit)
	}
	for i := range items {
		i := i
		g.Go(func() error {
			result, info, err := runItem(s, ctx, twinID, twinErr, items[i], op)
			if err != nil {
				infos[i] = diagnostics.FromError(err, rc.DiagnosticsMask, rc.StringTable)
				logrus.WithFields(logrus.Fields{
					"request": rc.RequestType.String(),
					"index":   i,
					"twin":    twinID,
				}).Debugf("Batch item failed: %v", err)
				return nil
			}
			results[i] = result
			infos[i] = info
			return nil
		})
	}
	// 单项错误已写入槽位，不会返回给 errgroup
	_ = g.Wait()
	return results, infos
}

// runItem 执行单项调用，附加后端超时并把 panic 转为失败
func runItem[I, T any](s *Server, ctx context.Context, twinID string, twinErr error, item I, op itemFunc[I, T]) (result T, info *diagnostics.Info, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Errorf(ua.BadUnexpectedError, "panic in batch item: %v", r)
		}
	}()
	if twinErr != nil {
		return result, nil, twinErr
	}
	if err := ctx.Err(); err != nil {
		return result, nil, err
	}
	if timeout := s.cfg.BackendTimeoutSeconds; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
		defer cancel()
	}
	return op(ctx, twinID, item)
}

// requireItems 列表为空时整体拒绝
func requireItems(n int) error {
	if n == 0 {
		return NewServiceError(ua.BadNothingToDo, nil)
	}
	return nil
}

// backendHeader 后端请求头，携带调用方诊断掩码与审计标识
func backendHeader(rc *types.RequestContext) *twintypes.RequestHeaderModel {
	header := &twintypes.RequestHeaderModel{
		Diagnostics: diagnostics.ToBackend(rc.DiagnosticsMask, rc.AuditEntryID),
		Locales:     rc.Locales,
	}
	if header.Diagnostics == nil && len(header.Locales) == 0 {
		return nil
	}
	return header
}

// batchResponse 组装批量响应
func batchResponse[T any](s *Server, rc *types.RequestContext, results []T, infos []*diagnostics.Info) *BatchResponse[T] {
	return &BatchResponse[T]{
		Header:          s.responseHeader(rc),
		Results:         results,
		DiagnosticInfos: infos,
		StringTable:     rc.StringTable.Strings(),
	}
}
