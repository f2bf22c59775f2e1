package gateway

import (
	"context"
	"time"

	"github.com/9triver/opcgw/internal/domain/gateway/diagnostics"
	"github.com/9triver/opcgw/internal/domain/gateway/types"
	twintypes "github.com/9triver/opcgw/internal/domain/twin/types"
	"github.com/awcullen/opcua/ua"
)

// Read 逐项读取节点值，仅支持 Value 属性
func (s *Server) Read(ctx context.Context, ch *types.Channel, req *ua.ReadRequest) (*ReadResponse, error) {
	return serve(s, ctx, ch, &req.RequestHeader, types.RequestTypeRead,
		func(rc *types.RequestContext, _ collaborators) (*ReadResponse, error) {
			if err := requireItems(len(req.NodesToRead)); err != nil {
				return nil, err
			}
			if req.MaxAge < 0 {
				return nil, NewServiceError(ua.BadMaxAgeInvalid, nil)
			}
			header := backendHeader(rc)
			maxAge := req.MaxAge
			failed := ua.DataValue{StatusCode: ua.BadNodeIDInvalid}
			results, infos := dispatch(s, rc, req.NodesToRead, failed,
				func(ctx context.Context, twinID string, item ua.ReadValueID) (ua.DataValue, *diagnostics.Info, error) {
					if item.AttributeID != 0 && item.AttributeID != ua.AttributeIDValue {
						return ua.DataValue{StatusCode: ua.BadAttributeIDInvalid}, nil, nil
					}
					resp, err := s.twin.NodeValueRead(ctx, twinID, &twintypes.ValueReadRequestModel{
						Header:     header,
						NodeID:     FormatNodeID(item.NodeID),
						IndexRange: item.IndexRange,
						MaxAge:     &maxAge,
					})
					if err != nil {
						return failed, nil, err
					}
					status, info := diagnostics.FromBackend(resp.ErrorInfo, rc.DiagnosticsMask, rc.StringTable)
					if status.IsBad() {
						return ua.DataValue{StatusCode: status}, info, nil
					}
					value, err := DecodeVariant(resp.Value, resp.DataType)
					if err != nil {
						return failed, nil, err
					}
					return dataValue(value, status, resp, req.TimestampsToReturn), info, nil
				})
			return batchResponse(s, rc, results, infos), nil
		})
}

func dataValue(value ua.Variant, status ua.StatusCode, resp *twintypes.ValueReadResponseModel, ttr ua.TimestampsToReturn) ua.DataValue {
	var (
		srcTs, srvTs     time.Time
		srcPico, srvPico uint16
	)
	if ttr == ua.TimestampsToReturnSource || ttr == ua.TimestampsToReturnBoth {
		if resp.SourceTimestamp != nil {
			srcTs = *resp.SourceTimestamp
		}
		if resp.SourcePicoseconds != nil {
			srcPico = *resp.SourcePicoseconds
		}
	}
	if ttr == ua.TimestampsToReturnServer || ttr == ua.TimestampsToReturnBoth {
		if resp.ServerTimestamp != nil {
			srvTs = *resp.ServerTimestamp
		}
		if resp.ServerPicoseconds != nil {
			srvPico = *resp.ServerPicoseconds
		}
	}
	return ua.NewDataValue(value, status, srcTs, srcPico, srvTs, srvPico)
}

// Write 逐项写入节点值，后端未明确报告错误即为 Good
func (s *Server) Write(ctx context.Context, ch *types.Channel, req *ua.WriteRequest) (*WriteResponse, error) {
	return serve(s, ctx, ch, &req.RequestHeader, types.RequestTypeWrite,
		func(rc *types.RequestContext, _ collaborators) (*WriteResponse, error) {
			if err := requireItems(len(req.NodesToWrite)); err != nil {
				return nil, err
			}
			header := backendHeader(rc)
			failed := ua.BadNotWritable
			results, infos := dispatch(s, rc, req.NodesToWrite, failed,
				func(ctx context.Context, twinID string, item ua.WriteValue) (ua.StatusCode, *diagnostics.Info, error) {
					if item.AttributeID != 0 && item.AttributeID != ua.AttributeIDValue {
						return ua.BadAttributeIDInvalid, nil, nil
					}
					value, dataType, err := EncodeVariant(item.Value.Value)
					if err != nil {
						return failed, nil, err
					}
					resp, err := s.twin.NodeValueWrite(ctx, twinID, &twintypes.ValueWriteRequestModel{
						Header:     header,
						NodeID:     FormatNodeID(item.NodeID),
						IndexRange: item.IndexRange,
						DataType:   dataType,
						Value:      value,
					})
					if err != nil {
						return failed, nil, err
					}
					status, info := diagnostics.FromBackend(resp.ErrorInfo, rc.DiagnosticsMask, rc.StringTable)
					return status, info, nil
				})
			return batchResponse(s, rc, results, infos), nil
		})
}
