package gateway

import (
	"context"
	"errors"
	"testing"

	audittypes "github.com/9triver/opcgw/internal/domain/audit/types"
	"github.com/9triver/opcgw/internal/domain/gateway/types"
	twintypes "github.com/9triver/opcgw/internal/domain/twin/types"
	"github.com/awcullen/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_RejectsRequestsBeforeStart(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.server.Read(context.Background(), twinChannel("twin-1"), &ua.ReadRequest{
		NodesToRead: []ua.ReadValueID{{NodeID: ua.NewNodeIDNumeric(2, 1), AttributeID: ua.AttributeIDValue}},
	})
	require.Error(t, err)
	assert.Equal(t, ua.BadServerHalted, StatusOf(err))
	assert.Zero(t, f.twin.calls.Load())
	assert.Zero(t, f.tracker.received.Load())
	assert.Equal(t, uint32(1), f.server.Summary().RejectedRequestsCount)
}

func TestServer_RejectsRequestsAfterStop(t *testing.T) {
	f := newRunningFixture(t)
	f.server.OnServerStopping()

	_, err := f.server.FindServers(context.Background(), twinChannel("twin-1"), &ua.FindServersRequest{})
	assert.Equal(t, ua.BadServerHalted, StatusOf(err))
	assert.Zero(t, f.registry.calls.Load())
	assert.Equal(t, types.ServerStateShutdown, f.server.State())
}

func TestServer_StopIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	f.server.OnServerStopping()
	assert.Zero(t, f.registrar.closed.Load())

	require.NoError(t, f.server.StartApplication(context.Background()))
	f.server.OnServerStopping()
	f.server.OnServerStopping()

	assert.Equal(t, int32(1), f.registrar.closed.Load())
	assert.Equal(t, int32(1), f.tracker.closed.Load())
	assert.Equal(t, []audittypes.OperationType{
		audittypes.OperationTypeStartServer,
		audittypes.OperationTypeStopServer,
	}, f.auditor.operations())
}

func TestServer_StartFailureRevertsToShutdown(t *testing.T) {
	tracker := &stubTracker{}
	srv, err := NewServer(Options{
		Config:       testConfig(),
		NewTracker:   func() (RequestTracker, error) { return tracker, nil },
		NewRegistrar: func() (SessionRegistrar, error) { return nil, errors.New("registrar unavailable") },
		Twin:         &stubTwin{},
		Registry:     &stubRegistry{},
	})
	require.NoError(t, err)

	err = srv.StartApplication(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.ServerStateShutdown, srv.State())
	assert.ErrorContains(t, srv.ServerError(), "registrar unavailable")
	assert.Equal(t, int32(1), tracker.closed.Load())
}

func TestServer_StartPanicRevertsToShutdown(t *testing.T) {
	srv, err := NewServer(Options{
		Config:       testConfig(),
		NewTracker:   func() (RequestTracker, error) { panic("boom") },
		NewRegistrar: func() (SessionRegistrar, error) { return &stubRegistrar{}, nil },
		Twin:         &stubTwin{},
		Registry:     &stubRegistry{},
	})
	require.NoError(t, err)

	err = srv.StartApplication(context.Background())
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, types.ServerStateShutdown, srv.State())
}

func TestServer_StateChangeNotifications(t *testing.T) {
	f := newFixture(t, nil)
	var states []types.ServerState
	f.server.OnStateChange(func(s types.ServerState) { states = append(states, s) })

	require.NoError(t, f.server.StartApplication(context.Background()))
	f.server.OnServerStopping()

	assert.Equal(t, []types.ServerState{types.ServerStateRunning, types.ServerStateShutdown}, states)
}

func TestServer_RequestBracketAlwaysCompletes(t *testing.T) {
	f := newRunningFixture(t)
	f.twin.read = func(context.Context, string, *twintypes.ValueReadRequestModel) (*twintypes.ValueReadResponseModel, error) {
		panic("backend exploded")
	}

	resp, err := f.server.Read(context.Background(), twinChannel("twin-1"), &ua.ReadRequest{
		NodesToRead: []ua.ReadValueID{{NodeID: ua.NewNodeIDNumeric(2, 1)}},
	})
	require.NoError(t, err)
	assert.Equal(t, ua.BadNodeIDInvalid, resp.Results[0].StatusCode)
	assert.Equal(t, f.tracker.received.Load(), f.tracker.completed.Load())
}

func TestServer_MissingHeaderRejected(t *testing.T) {
	f := newRunningFixture(t)

	_, err := f.server.CloseSession(context.Background(), nil, &ua.CloseSessionRequest{})
	assert.Equal(t, ua.BadSecureChannelIDInvalid, StatusOf(err))
	assert.Zero(t, f.tracker.received.Load())
}

func TestServer_SessionCounters(t *testing.T) {
	f := newRunningFixture(t)
	ch := twinChannel("twin-1")

	_, err := f.server.CreateSession(context.Background(), ch, &ua.CreateSessionRequest{SessionName: "s1"})
	require.NoError(t, err)
	_, err = f.server.CloseSession(context.Background(), ch, &ua.CloseSessionRequest{})
	require.NoError(t, err)
	f.registrar.emit(types.SessionEvent{Type: types.SessionEventTimeout, SessionID: "session-2"})

	summary := f.server.Summary()
	assert.Equal(t, uint32(0), summary.CurrentSessionCount)
	assert.Equal(t, uint32(1), summary.CumulatedSessionCount)
	assert.Equal(t, uint32(1), summary.SessionTimeoutCount)
	assert.Zero(t, summary.RejectedRequestsCount)
}

func TestServer_SubscriptionServicesUnsupported(t *testing.T) {
	f := newRunningFixture(t)

	_, err := f.server.CreateSubscription(context.Background(), twinChannel("twin-1"), &ua.CreateSubscriptionRequest{})
	assert.Equal(t, ua.BadServiceUnsupported, StatusOf(err))
}

func TestServer_TranslateBrowsePathsReturnsEmpty(t *testing.T) {
	f := newRunningFixture(t)

	resp, err := f.server.TranslateBrowsePathsToNodeIDs(context.Background(), twinChannel("twin-1"),
		&ua.TranslateBrowsePathsToNodeIDsRequest{BrowsePaths: []ua.BrowsePath{{StartingNode: ua.NewNodeIDNumeric(0, 85)}}})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Zero(t, f.twin.calls.Load())
}
