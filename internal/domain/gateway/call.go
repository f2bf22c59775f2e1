package gateway

import (
	"context"

	"github.com/9triver/opcgw/internal/domain/gateway/diagnostics"
	"github.com/9triver/opcgw/internal/domain/gateway/types"
	twintypes "github.com/9triver/opcgw/internal/domain/twin/types"
	"github.com/awcullen/opcua/ua"
)

// Call 逐项调用方法，输入参数逐个编码，输出参数按后端数据类型解码
func (s *Server) Call(ctx context.Context, ch *types.Channel, req *ua.CallRequest) (*CallResponse, error) {
	return serve(s, ctx, ch, &req.RequestHeader, types.RequestTypeCall,
		func(rc *types.RequestContext, _ collaborators) (*CallResponse, error) {
			if err := requireItems(len(req.MethodsToCall)); err != nil {
				return nil, err
			}
			header := backendHeader(rc)
			failed := ua.CallMethodResult{StatusCode: ua.BadMethodInvalid}
			results, infos := dispatch(s, rc, req.MethodsToCall, failed,
				func(ctx context.Context, twinID string, item ua.CallMethodRequest) (ua.CallMethodResult, *diagnostics.Info, error) {
					args := make([]twintypes.MethodCallArgumentModel, 0, len(item.InputArguments))
					for _, in := range item.InputArguments {
						value, dataType, err := EncodeVariant(in)
						if err != nil {
							return failed, nil, err
						}
						args = append(args, twintypes.MethodCallArgumentModel{Value: value, DataType: dataType})
					}
					resp, err := s.twin.NodeMethodCall(ctx, twinID, &twintypes.MethodCallRequestModel{
						Header:    header,
						ObjectID:  FormatNodeID(item.ObjectID),
						MethodID:  FormatNodeID(item.MethodID),
						Arguments: args,
					})
					if err != nil {
						return failed, nil, err
					}
					status, info := diagnostics.FromBackend(resp.ErrorInfo, rc.DiagnosticsMask, rc.StringTable)
					outputs := make([]ua.Variant, 0, len(resp.Results))
					for _, out := range resp.Results {
						v, err := DecodeVariant(out.Value, out.DataType)
						if err != nil {
							return failed, nil, err
						}
						outputs = append(outputs, v)
					}
					return ua.CallMethodResult{StatusCode: status, OutputArguments: outputs}, info, nil
				})
			return batchResponse(s, rc, results, infos), nil
		})
}
