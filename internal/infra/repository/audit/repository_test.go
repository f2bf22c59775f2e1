package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	domainaudit "github.com/9triver/opcgw/internal/domain/audit"
	audittypes "github.com/9triver/opcgw/internal/domain/audit/types"
	"github.com/9triver/opcgw/internal/infra/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *domainaudit.Manager {
	t.Helper()
	cfg := &database.Config{}
	cfg.ApplyDefaults(t.TempDir())
	repo, err := NewOperationLogRepoSQLite(filepath.Join(t.TempDir(), "audit.db"), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return domainaudit.NewManager(domainaudit.NewService(repo))
}

func TestRecordAndQueryOperations(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	for i, op := range []audittypes.OperationType{
		audittypes.OperationTypeCreateSession,
		audittypes.OperationTypeActivateSession,
		audittypes.OperationTypeChangeIdentity,
		audittypes.OperationTypeCloseSession,
	} {
		require.NoError(t, m.RecordOperation(ctx, &audittypes.OperationLog{
			User:         "urn:client",
			Operation:    op,
			ResourceID:   "sess-1",
			ResourceType: "session",
			Action:       string(op),
			Status:       "0x00000000",
			Details:      map[string]any{"index": i},
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, m.RecordOperation(ctx, &audittypes.OperationLog{
		User:      "urn:other",
		Operation: audittypes.OperationTypeRejectSession,
		Action:    "rejected",
		Timestamp: base.Add(time.Hour),
	}))

	all, err := m.GetOperations(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all.Logs, 5)
	assert.False(t, all.HasMore)
	assert.Equal(t, audittypes.OperationTypeRejectSession, all.Logs[0].Operation)
	assert.NotEmpty(t, all.Logs[0].ID)

	page, err := m.GetOperations(ctx, &audittypes.QueryOptions{ResourceID: "sess-1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Logs, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, audittypes.OperationTypeCloseSession, page.Logs[0].Operation)
	assert.Equal(t, float64(3), page.Logs[0].Details["index"])
	assert.True(t, base.Add(3*time.Minute).Equal(page.Logs[0].Timestamp))

	next, err := m.GetOperations(ctx, &audittypes.QueryOptions{ResourceID: "sess-1", Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, next.Logs, 2)
	assert.False(t, next.HasMore)

	start := base.Add(90 * time.Second)
	ranged, err := m.GetOperations(ctx, &audittypes.QueryOptions{StartTime: &start, User: "urn:client"})
	require.NoError(t, err)
	assert.Len(t, ranged.Logs, 2)
}

func TestRecordOperationRequiresType(t *testing.T) {
	m := newTestManager(t)
	err := m.RecordOperation(context.Background(), &audittypes.OperationLog{User: "x"})
	assert.Error(t, err)
}

func TestPruneOperations(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	now := time.Now()
	require.NoError(t, m.RecordOperation(ctx, &audittypes.OperationLog{
		Operation: audittypes.OperationTypeStartServer, Action: "old", Timestamp: now.Add(-48 * time.Hour),
	}))
	require.NoError(t, m.RecordOperation(ctx, &audittypes.OperationLog{
		Operation: audittypes.OperationTypeStopServer, Action: "recent", Timestamp: now.Add(-time.Hour),
	}))

	n, err := m.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := m.GetOperations(ctx, nil)
	require.NoError(t, err)
	require.Len(t, left.Logs, 1)
	assert.Equal(t, "recent", left.Logs[0].Action)

	n, err = m.Prune(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}
