package container

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/service"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/workflow"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
)

const seed = `{
  "users": [
    {"id": "alice", "display_name": "Alice", "manager_id": "dave", "approval_level": 0},
    {"id": "dave", "display_name": "Dave", "manager_id": "rita", "approval_level": 1},
    {"id": "rita", "display_name": "Rita", "approval_level": 2, "is_final_approver": true}
  ],
  "accounts": [{"id": "acme", "name": "Acme Industrial", "theater": "EMEA"}]
}`

func startContainer(t *testing.T) *Container {
	t.Helper()
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "directory.json")
	require.NoError(t, os.WriteFile(seedPath, []byte(seed), 0o600))

	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "cache.db")
	cfg.Directory.SeedFile = seedPath
	cfg.Metrics.Enabled = false

	c, err := NewContainer(cfg, zap.NewNop(), WithoutWorkers())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewContainer_RequiresConfigAndLogger(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(DefaultConfig(), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Database.Path = ""
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestContainer_CreateApproveAndFlush(t *testing.T) {
	ctx := context.Background()
	c := startContainer(t)

	req, err := c.Service().CreateRequest(ctx, "alice", service.RequestInput{
		Title:     "Partner enablement",
		AccountID: "acme",
		Quarter:   "FY2027-Q1",
	}, true)
	require.NoError(t, err)
	next, ok := req.NextApprover()
	require.True(t, ok)
	assert.Equal(t, "dave", next.ID)
	assert.Equal(t, "Acme Industrial", req.AccountName)

	req, err = c.Service().SubmitIntent(ctx, req.ID, workflow.IntentApprove, "dave", service.IntentPayload{Comment: "ok"})
	require.NoError(t, err)
	next, _ = req.NextApprover()
	assert.Equal(t, "rita", next.ID)

	require.NoError(t, c.Coordinator().Flush(ctx))

	remote, err := c.Remote().ReadRequest(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, remote)
	assert.Equal(t, "DM_APPROVED", remote.Status)
	assert.Equal(t, "rita", remote.NextApproverID)

	backlog, err := c.Coordinator().Backlog(ctx)
	require.NoError(t, err)
	assert.Zero(t, backlog[entity.TaskStatusPending])
}

func TestContainer_Health(t *testing.T) {
	c := startContainer(t)

	health := c.Health(context.Background())
	assert.True(t, health.Overall, "%+v", health.Components)
	assert.True(t, health.Components["database"].Healthy)
	assert.Equal(t, "3 users, 1 accounts", health.Components["directory"].Message)
	assert.Contains(t, health.Components["outbox"].Message, "pending=0")
}

func TestContainer_CloseTwice(t *testing.T) {
	c := startContainer(t)
	require.NoError(t, c.Close())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start(context.Background()))
}
