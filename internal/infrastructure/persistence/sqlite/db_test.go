package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/pkg/database"
)

func newTxManager(t *testing.T) *DB {
	t.Helper()
	handle, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "tx.db"), MaxOpenConns: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = handle.Close() })

	_, err = handle.Exec("CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)")
	require.NoError(t, err)
	return NewDB(handle.DB, zap.NewNop())
}

func count(t *testing.T, db *DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM kv").Scan(&n))
	return n
}

func TestWithTransaction_CommitsNestedWork(t *testing.T) {
	db := newTxManager(t)
	ctx := context.Background()

	err := db.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := Conn(ctx, db.DB).ExecContext(ctx, "INSERT INTO kv VALUES ('a', '1')"); err != nil {
			return err
		}
		// joins the outer transaction; with one connection a second BEGIN would block
		return db.WithTransaction(ctx, func(ctx context.Context) error {
			_, err := Conn(ctx, db.DB).ExecContext(ctx, "INSERT INTO kv VALUES ('b', '2')")
			return err
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count(t, db))
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	db := newTxManager(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithTransaction(ctx, func(ctx context.Context) error {
		_, _ = Conn(ctx, db.DB).ExecContext(ctx, "INSERT INTO kv VALUES ('a', '1')")
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, count(t, db))
}

func TestWithTransaction_RollsBackOnPanic(t *testing.T) {
	db := newTxManager(t)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = db.WithTransaction(ctx, func(ctx context.Context) error {
			_, _ = Conn(ctx, db.DB).ExecContext(ctx, "INSERT INTO kv VALUES ('a', '1')")
			panic("boom")
		})
	})
	assert.Zero(t, count(t, db))
}

func TestConn_WithoutTransaction(t *testing.T) {
	db := newTxManager(t)
	assert.Equal(t, Executor(db.DB), Conn(context.Background(), db.DB))
}
