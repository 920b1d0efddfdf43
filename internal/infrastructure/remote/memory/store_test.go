package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/port"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
)

func TestStore_WriteReadDelete(t *testing.T) {
	fixed := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	s := NewStore(WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	missing, err := s.ReadRequest(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, missing)

	first, err := s.WriteRequest(ctx, &entity.RequestRecord{ID: "a", Title: "v1"})
	require.NoError(t, err)
	second, err := s.WriteRequest(ctx, &entity.RequestRecord{ID: "a", Title: "v2"})
	require.NoError(t, err)
	assert.True(t, second.After(first), "modification times must increase even with a frozen clock")

	rec, err := s.ReadRequest(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "v2", rec.Title)

	rec.Title = "mutated"
	again, _ := s.ReadRequest(ctx, "a")
	assert.Equal(t, "v2", again.Title)

	deleted, err := s.DeleteRequest(ctx, "a")
	require.NoError(t, err)
	hwm, _ := s.ReadHighWaterMark(ctx, port.SourceInvestmentRequests)
	assert.Equal(t, deleted, hwm)

	snap, err := s.ReadSnapshot(ctx, port.SourceInvestmentRequests)
	require.NoError(t, err)
	assert.Empty(t, snap.Records)
	assert.Equal(t, hwm, snap.HighWaterMark)
}

func TestStore_Hook(t *testing.T) {
	s := NewStore()
	boom := errors.New("unavailable")
	s.SetHook(func(ctx context.Context, op Op, id string) error {
		if op == OpWrite && id == "a" {
			return boom
		}
		return nil
	})

	_, err := s.WriteRequest(context.Background(), &entity.RequestRecord{ID: "a"})
	assert.ErrorIs(t, err, boom)
	_, err = s.WriteRequest(context.Background(), &entity.RequestRecord{ID: "b"})
	assert.NoError(t, err)

	s.SetHook(nil)
	_, err = s.WriteRequest(context.Background(), &entity.RequestRecord{ID: "a"})
	assert.NoError(t, err)
}

func TestStore_Directory(t *testing.T) {
	s := NewStore()
	s.SetDirectory(&port.DirectoryData{
		Users:          []*entity.User{{ID: "bob", ApprovalLevel: 1}},
		Accounts:       []*entity.Account{{ID: "acme", Name: "Acme"}},
		FinalApprovers: []*entity.FinalApprover{{Theater: "AMER", UserID: "dave"}},
	})
	ctx := context.Background()

	users, err := s.ReadUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	users[0].ApprovalLevel = 9
	again, _ := s.ReadUsers(ctx)
	assert.Equal(t, 1, again[0].ApprovalLevel)

	accounts, _ := s.ReadAccounts(ctx)
	assert.Len(t, accounts, 1)
	finals, _ := s.ReadFinalApprovers(ctx)
	assert.Equal(t, "dave", finals[0].UserID)
}

func TestStore_CancelledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.WriteRequest(ctx, &entity.RequestRecord{ID: "a"})
	assert.ErrorIs(t, err, context.Canceled)
}
