package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/9triver/opcgw/internal/domain/gateway/diagnostics"
	twintypes "github.com/9triver/opcgw/internal/domain/twin/types"
	"github.com/awcullen/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func readItems(n int) []ua.ReadValueID {
	items := make([]ua.ReadValueID, n)
	for i := range items {
		items[i] = ua.ReadValueID{NodeID: ua.NewNodeIDNumeric(2, uint32(i)), AttributeID: ua.AttributeIDValue}
	}
	return items
}

func TestRead_PartialFailureIsolated(t *testing.T) {
	f := newRunningFixture(t)
	var (
		mu    sync.Mutex
		twins []string
	)
	f.twin.read = func(_ context.Context, twinID string, req *twintypes.ValueReadRequestModel) (*twintypes.ValueReadResponseModel, error) {
		mu.Lock()
		twins = append(twins, twinID)
		mu.Unlock()
		if req.NodeID == "ns=2;i=3" {
			return nil, errors.New("backend unavailable")
		}
		var n int
		fmt.Sscanf(req.NodeID, "ns=2;i=%d", &n)
		return &twintypes.ValueReadResponseModel{Value: structpb.NewNumberValue(float64(n * 10)), DataType: DataTypeInt32}, nil
	}

	resp, err := f.server.Read(context.Background(), twinChannel("twin-1"), &ua.ReadRequest{
		NodesToRead:        readItems(5),
		TimestampsToReturn: ua.TimestampsToReturnNeither,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 5)
	require.Len(t, resp.DiagnosticInfos, 5)

	for i, dv := range resp.Results {
		if i == 3 {
			assert.Equal(t, ua.BadNodeIDInvalid, dv.StatusCode)
			assert.Nil(t, dv.Value)
			continue
		}
		assert.Equal(t, ua.Good, dv.StatusCode, "item %d", i)
		assert.Equal(t, int32(i*10), dv.Value, "item %d", i)
	}
	// 未请求诊断时失败项也不返回诊断记录
	assert.Nil(t, resp.DiagnosticInfos[3])
	assert.ElementsMatch(t, []string{"twin-1", "twin-1", "twin-1", "twin-1", "twin-1"}, twins)
}

func TestRead_FailureDiagnosticsWhenRequested(t *testing.T) {
	f := newRunningFixture(t)
	f.twin.read = func(context.Context, string, *twintypes.ValueReadRequestModel) (*twintypes.ValueReadResponseModel, error) {
		return nil, errors.New("backend unavailable")
	}

	resp, err := f.server.Read(context.Background(), twinChannel("twin-1"), &ua.ReadRequest{
		RequestHeader: ua.RequestHeader{ReturnDiagnostics: uint32(diagnostics.OperationLevel)},
		NodesToRead:   readItems(2),
	})
	require.NoError(t, err)
	for i := range resp.Results {
		require.NotNil(t, resp.DiagnosticInfos[i])
		assert.NotEqual(t, diagnostics.Absent, resp.DiagnosticInfos[i].LocalizedText)
	}
	assert.Contains(t, resp.StringTable, "backend unavailable")
}

func TestRead_BadStatusCarriesOnlyStatus(t *testing.T) {
	f := newRunningFixture(t)
	code := uint32(ua.BadNodeIDUnknown)
	f.twin.read = func(context.Context, string, *twintypes.ValueReadRequestModel) (*twintypes.ValueReadResponseModel, error) {
		return &twintypes.ValueReadResponseModel{
			Value:     structpb.NewNumberValue(1),
			ErrorInfo: &twintypes.ServiceResultModel{StatusCode: &code},
		}, nil
	}

	resp, err := f.server.Read(context.Background(), twinChannel("twin-1"), &ua.ReadRequest{NodesToRead: readItems(1)})
	require.NoError(t, err)
	assert.Equal(t, ua.BadNodeIDUnknown, resp.Results[0].StatusCode)
	assert.Nil(t, resp.Results[0].Value)
}

func TestRead_TimestampsFollowRequest(t *testing.T) {
	f := newRunningFixture(t)
	src := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	srv := src.Add(time.Second)
	f.twin.read = func(context.Context, string, *twintypes.ValueReadRequestModel) (*twintypes.ValueReadResponseModel, error) {
		return &twintypes.ValueReadResponseModel{
			Value:           structpb.NewStringValue("on"),
			DataType:        DataTypeString,
			SourceTimestamp: &src,
			ServerTimestamp: &srv,
		}, nil
	}

	resp, err := f.server.Read(context.Background(), twinChannel("twin-1"), &ua.ReadRequest{
		NodesToRead:        readItems(1),
		TimestampsToReturn: ua.TimestampsToReturnSource,
	})
	require.NoError(t, err)
	assert.Equal(t, "on", resp.Results[0].Value)
	assert.True(t, resp.Results[0].SourceTimestamp.Equal(src))
	assert.True(t, resp.Results[0].ServerTimestamp.IsZero())
}

func TestRead_NonValueAttributeRejectedPerItem(t *testing.T) {
	f := newRunningFixture(t)

	resp, err := f.server.Read(context.Background(), twinChannel("twin-1"), &ua.ReadRequest{
		NodesToRead: []ua.ReadValueID{{NodeID: ua.NewNodeIDNumeric(2, 1), AttributeID: ua.AttributeIDBrowseName}},
	})
	require.NoError(t, err)
	assert.Equal(t, ua.BadAttributeIDInvalid, resp.Results[0].StatusCode)
	assert.Zero(t, f.twin.calls.Load())
}

func TestBatch_NothingToDo(t *testing.T) {
	f := newRunningFixture(t)
	ch := twinChannel("twin-1")
	ctx := context.Background()

	_, err := f.server.Browse(ctx, ch, &ua.BrowseRequest{})
	assert.Equal(t, ua.BadNothingToDo, StatusOf(err))
	_, err = f.server.BrowseNext(ctx, ch, &ua.BrowseNextRequest{})
	assert.Equal(t, ua.BadNothingToDo, StatusOf(err))
	_, err = f.server.Read(ctx, ch, &ua.ReadRequest{})
	assert.Equal(t, ua.BadNothingToDo, StatusOf(err))
	_, err = f.server.Write(ctx, ch, &ua.WriteRequest{})
	assert.Equal(t, ua.BadNothingToDo, StatusOf(err))
	_, err = f.server.Call(ctx, ch, &ua.CallRequest{})
	assert.Equal(t, ua.BadNothingToDo, StatusOf(err))

	assert.Zero(t, f.twin.calls.Load())
	assert.Equal(t, uint32(5), f.server.Summary().RejectedRequestsCount)
	assert.Equal(t, f.tracker.received.Load(), f.tracker.completed.Load())
}

func TestBatch_MissingTwinFailsEveryItem(t *testing.T) {
	f := newRunningFixture(t)
	ch := twinChannel("")
	ch.EndpointURL = "https://gateway:51111"

	resp, err := f.server.Read(context.Background(), ch, &ua.ReadRequest{NodesToRead: readItems(3)})
	require.NoError(t, err)
	for _, dv := range resp.Results {
		assert.Equal(t, ua.BadNodeIDInvalid, dv.StatusCode)
	}
	assert.Zero(t, f.twin.calls.Load())
}

func TestBatch_CancelledItemsStillFilled(t *testing.T) {
	f := newRunningFixture(t)
	started := make(chan struct{}, 3)
	f.twin.read = func(ctx context.Context, _ string, _ *twintypes.ValueReadRequestModel) (*twintypes.ValueReadResponseModel, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	resp, err := f.server.Read(ctx, twinChannel("twin-1"), &ua.ReadRequest{
		RequestHeader: ua.RequestHeader{ReturnDiagnostics: uint32(diagnostics.OperationLevel)},
		NodesToRead:   readItems(3),
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	for i := range resp.Results {
		assert.Equal(t, ua.BadNodeIDInvalid, resp.Results[i].StatusCode)
		require.NotNil(t, resp.DiagnosticInfos[i])
	}
}

func TestBrowse_MapsReferencesAndContinuation(t *testing.T) {
	f := newRunningFixture(t)
	token := base64.StdEncoding.EncodeToString([]byte("cursor-1"))
	var got *twintypes.BrowseFirstRequestModel
	f.twin.browseFirst = func(twinID string, req *twintypes.BrowseFirstRequestModel) (*twintypes.BrowseFirstResponseModel, error) {
		got = req
		return &twintypes.BrowseFirstResponseModel{
			References: []twintypes.NodeReferenceModel{
				{
					ReferenceTypeID: "i=35",
					Direction:       twintypes.BrowseDirectionForward,
					Target:          &twintypes.NodeModel{NodeID: "ns=2;s=Pump", NodeClass: "Object", BrowseName: "2:Pump", DisplayName: "Pump"},
				},
				{
					ReferenceTypeID: "i=35",
					Direction:       twintypes.BrowseDirectionBackward,
					Target:          &twintypes.NodeModel{NodeID: "i=85", NodeClass: "Object", BrowseName: "Objects"},
				},
			},
			ContinuationToken: token,
		}, nil
	}

	resp, err := f.server.Browse(context.Background(), twinChannel("twin-1"), &ua.BrowseRequest{
		RequestedMaxReferencesPerNode: 2,
		NodesToBrowse: []ua.BrowseDescription{{
			NodeID:          ua.NewNodeIDNumeric(0, 85),
			BrowseDirection: ua.BrowseDirectionBoth,
			ReferenceTypeID: ua.NewNodeIDNumeric(0, 35),
			IncludeSubtypes: false,
		}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	assert.Equal(t, "i=85", got.NodeID)
	assert.Equal(t, "i=35", got.ReferenceTypeID)
	assert.Equal(t, twintypes.BrowseDirectionBoth, got.Direction)
	assert.True(t, got.NoSubtypes)
	assert.Equal(t, uint32(2), got.MaxReferencesToReturn)

	result := resp.Results[0]
	assert.Equal(t, ua.Good, result.StatusCode)
	assert.Equal(t, "cursor-1", string(result.ContinuationPoint))
	require.Len(t, result.References, 2)
	assert.True(t, result.References[0].IsForward)
	assert.False(t, result.References[1].IsForward)
	assert.Equal(t, ua.QualifiedName{NamespaceIndex: 2, Name: "Pump"}, result.References[0].BrowseName)
	assert.Equal(t, "Pump", result.References[0].DisplayName.Text)
	assert.Equal(t, ua.NodeClassObject, result.References[0].NodeClass)
}

func TestBrowseNext_ReencodesContinuationPoint(t *testing.T) {
	f := newRunningFixture(t)
	var got *twintypes.BrowseNextRequestModel
	f.twin.browseNext = func(_ string, req *twintypes.BrowseNextRequestModel) (*twintypes.BrowseNextResponseModel, error) {
		got = req
		return &twintypes.BrowseNextResponseModel{}, nil
	}

	resp, err := f.server.BrowseNext(context.Background(), twinChannel("twin-1"), &ua.BrowseNextRequest{
		ReleaseContinuationPoints: true,
		ContinuationPoints:        []ua.ByteString{ua.ByteString("cursor-1")},
	})
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("cursor-1")), got.ContinuationToken)
	assert.True(t, got.Abort)
	assert.Equal(t, ua.Good, resp.Results[0].StatusCode)
}

func TestWrite_EncodesValueAndReportsStatus(t *testing.T) {
	f := newRunningFixture(t)
	var (
		mu  sync.Mutex
		got = map[string]*twintypes.ValueWriteRequestModel{}
	)
	f.twin.write = func(_ string, req *twintypes.ValueWriteRequestModel) (*twintypes.ValueWriteResponseModel, error) {
		mu.Lock()
		got[req.NodeID] = req
		mu.Unlock()
		if req.NodeID == "ns=2;i=2" {
			return nil, errors.New("read only")
		}
		return &twintypes.ValueWriteResponseModel{}, nil
	}

	resp, err := f.server.Write(context.Background(), twinChannel("twin-1"), &ua.WriteRequest{
		NodesToWrite: []ua.WriteValue{
			{NodeID: ua.NewNodeIDNumeric(2, 1), AttributeID: ua.AttributeIDValue, Value: ua.DataValue{Value: int16(7)}},
			{NodeID: ua.NewNodeIDNumeric(2, 2), AttributeID: ua.AttributeIDValue, Value: ua.DataValue{Value: "x"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []ua.StatusCode{ua.Good, ua.BadNotWritable}, resp.Results)
	assert.Equal(t, DataTypeInt16, got["ns=2;i=1"].DataType)
	assert.Equal(t, float64(7), got["ns=2;i=1"].Value.GetNumberValue())
}

func TestCall_EncodesInputsAndDecodesOutputs(t *testing.T) {
	f := newRunningFixture(t)
	f.twin.call = func(_ string, req *twintypes.MethodCallRequestModel) (*twintypes.MethodCallResponseModel, error) {
		if req.MethodID == "ns=2;s=Broken" {
			return nil, errors.New("method failed")
		}
		if assert.Len(t, req.Arguments, 2) {
			assert.Equal(t, DataTypeDouble, req.Arguments[0].DataType)
			assert.Equal(t, DataTypeBoolean, req.Arguments[1].DataType)
		}
		return &twintypes.MethodCallResponseModel{Results: []twintypes.MethodCallArgumentModel{
			{Value: structpb.NewStringValue("42"), DataType: DataTypeUInt64},
		}}, nil
	}

	resp, err := f.server.Call(context.Background(), twinChannel("twin-1"), &ua.CallRequest{
		MethodsToCall: []ua.CallMethodRequest{
			{ObjectID: ua.NewNodeIDString(2, "Pump"), MethodID: ua.NewNodeIDString(2, "Start"), InputArguments: []ua.Variant{1.5, true}},
			{ObjectID: ua.NewNodeIDString(2, "Pump"), MethodID: ua.NewNodeIDString(2, "Broken")},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, ua.Good, resp.Results[0].StatusCode)
	assert.Equal(t, []ua.Variant{uint64(42)}, resp.Results[0].OutputArguments)
	assert.Equal(t, ua.BadMethodInvalid, resp.Results[1].StatusCode)
	assert.Empty(t, resp.Results[1].OutputArguments)
}
