package directory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/port"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type mockSource struct {
	users    []*entity.User
	accounts []*entity.Account
	finals   []*entity.FinalApprover
	err      error
}

func (m *mockSource) ReadUsers(ctx context.Context) ([]*entity.User, error) {
	return m.users, m.err
}

func (m *mockSource) ReadAccounts(ctx context.Context) ([]*entity.Account, error) {
	return m.accounts, nil
}

func (m *mockSource) ReadFinalApprovers(ctx context.Context) ([]*entity.FinalApprover, error) {
	return m.finals, nil
}

type mockRepo struct {
	mu    sync.Mutex
	saved *port.DirectoryData
}

func (m *mockRepo) ReplaceAll(ctx context.Context, data *port.DirectoryData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = data
	return nil
}

func (m *mockRepo) Load(ctx context.Context) (*port.DirectoryData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		return &port.DirectoryData{}, nil
	}
	return m.saved, nil
}

func sampleSource() *mockSource {
	return &mockSource{
		users: []*entity.User{
			{ID: "alice", DisplayName: "Alice", ManagerID: "bob"},
			{ID: "bob", DisplayName: "Bob", ApprovalLevel: 1},
			{ID: "gina", DisplayName: "Gina", ApprovalLevel: 4, IsFinalApprover: true},
		},
		accounts: []*entity.Account{{ID: "acct-1", Name: "Contoso", Theater: "AMER"}},
		finals:   []*entity.FinalApprover{{Theater: "AMER", UserID: "gina"}},
	}
}

func TestCache_Refresh(t *testing.T) {
	repo := &mockRepo{}
	c := NewCache(sampleSource(), repo, nopLogger{})

	require.NoError(t, c.Refresh(context.Background()))

	u, ok := c.User("alice")
	require.True(t, ok)
	assert.Equal(t, "bob", u.ManagerID)

	a, ok := c.Account("acct-1")
	require.True(t, ok)
	assert.Equal(t, "Contoso", a.Name)

	fa, ok := c.FinalApproverFor("AMER")
	require.True(t, ok)
	assert.Equal(t, "gina", fa.ID)

	_, ok = c.FinalApproverFor("EMEA")
	assert.False(t, ok)

	require.NotNil(t, repo.saved)
	assert.Len(t, repo.saved.Users, 3)

	users, accounts, loadedAt := c.Stats()
	assert.Equal(t, 3, users)
	assert.Equal(t, 1, accounts)
	assert.False(t, loadedAt.IsZero())
}

func TestCache_RefreshFailureKeepsSnapshot(t *testing.T) {
	src := sampleSource()
	c := NewCache(src, nil, nopLogger{})
	require.NoError(t, c.Refresh(context.Background()))

	src.err = errors.New("remote down")
	err := c.Refresh(context.Background())
	require.Error(t, err)

	_, ok := c.User("alice")
	assert.True(t, ok, "previous snapshot must survive a failed refresh")
}

func TestCache_SnapshotIsStable(t *testing.T) {
	src := sampleSource()
	c := NewCache(src, nil, nopLogger{})
	require.NoError(t, c.Refresh(context.Background()))

	snap := c.Snapshot()

	src.users = []*entity.User{{ID: "zoe"}}
	require.NoError(t, c.Refresh(context.Background()))

	_, ok := snap.User("alice")
	assert.True(t, ok, "held snapshot must not change after refresh")
	_, ok = c.User("alice")
	assert.False(t, ok)
	_, ok = c.User("zoe")
	assert.True(t, ok)
}

func TestCache_ViewIgnoresLaterRefresh(t *testing.T) {
	src := sampleSource()
	c := NewCache(src, nil, nopLogger{})
	require.NoError(t, c.Refresh(context.Background()))

	view := c.View()

	src.users = []*entity.User{{ID: "alice", ManagerID: "zoe"}, {ID: "zoe", ApprovalLevel: 1}}
	src.finals = nil
	require.NoError(t, c.Refresh(context.Background()))

	u, ok := view.User("alice")
	require.True(t, ok)
	assert.Equal(t, "bob", u.ManagerID)
	fa, ok := view.FinalApproverFor("AMER")
	require.True(t, ok)
	assert.Equal(t, "gina", fa.ID)

	u, _ = c.User("alice")
	assert.Equal(t, "zoe", u.ManagerID)
	_, ok = c.FinalApproverFor("AMER")
	assert.False(t, ok)
}

func TestCache_ReturnsCopies(t *testing.T) {
	c := NewCache(sampleSource(), nil, nopLogger{})
	require.NoError(t, c.Refresh(context.Background()))

	u, _ := c.User("alice")
	u.ManagerID = "mallory"

	again, _ := c.User("alice")
	assert.Equal(t, "bob", again.ManagerID)
}

func TestCache_LoadPersisted(t *testing.T) {
	repo := &mockRepo{}
	require.NoError(t, NewCache(sampleSource(), repo, nopLogger{}).Refresh(context.Background()))

	warm := NewCache(&mockSource{err: errors.New("offline")}, repo, nopLogger{})
	require.NoError(t, warm.LoadPersisted(context.Background()))

	_, ok := warm.User("bob")
	assert.True(t, ok)
}

func TestCache_NoSource(t *testing.T) {
	c := NewCache(nil, nil, nopLogger{})
	assert.Error(t, c.Refresh(context.Background()))
	_, ok := c.User("anyone")
	assert.False(t, ok)
}

func TestCache_ConcurrentReadsDuringRefresh(t *testing.T) {
	c := NewCache(sampleSource(), nil, nopLogger{})
	require.NoError(t, c.Refresh(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = c.Refresh(context.Background())
		}()
		go func() {
			defer wg.Done()
			snap := c.Snapshot()
			if _, ok := snap.User("alice"); !ok {
				t.Error("reader saw a partial directory")
			}
		}()
	}
	wg.Wait()
}
