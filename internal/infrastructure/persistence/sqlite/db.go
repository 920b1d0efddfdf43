// Package sqlite carries transactions through context so repositories written
// against *sql.DB join whatever transaction the caller opened.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/port"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/pkg/database"
)

type txKey struct{}

// Executor covers both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// DB implements port.TransactionManager over the local cache
type DB struct {
	*sql.DB
	logger *zap.Logger

	// beginAttempts bounds retries when another process holds the write lock
	beginAttempts int
	beginBackoff  time.Duration
}

// NewDB creates a transaction manager
func NewDB(sqlDB *sql.DB, logger *zap.Logger) *DB {
	return &DB{
		DB:            sqlDB,
		logger:        logger,
		beginAttempts: 3,
		beginBackoff:  50 * time.Millisecond,
	}
}

// WithTransaction runs fn inside a transaction carried by ctx. Nested calls
// join the outer transaction. fn's error is returned unwrapped.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	tx, err := db.begin(ctx)
	if err != nil {
		return err
	}

	done := false
	defer func() {
		if done {
			return
		}
		if p := recover(); p != nil {
			_ = tx.Rollback()
			db.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		done = true
		return err
	}

	done = true
	if err := tx.Commit(); err != nil {
		db.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// begin takes the write lock, retrying while another process holds it past
// the driver's busy timeout. Nothing has run yet, so a retry is safe.
func (db *DB) begin(ctx context.Context) (*sql.Tx, error) {
	var err error
	for attempt := 1; attempt <= db.beginAttempts; attempt++ {
		var tx *sql.Tx
		tx, err = db.BeginTx(ctx, nil)
		if err == nil {
			return tx, nil
		}
		if !database.IsBusy(err) || attempt == db.beginAttempts {
			break
		}
		db.logger.Warn("Database busy, retrying begin", zap.Int("attempt", attempt))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(db.beginBackoff * time.Duration(attempt)):
		}
	}
	db.logger.Error("Failed to begin transaction", zap.Error(err))
	return nil, fmt.Errorf("failed to begin transaction: %w", err)
}

// Conn returns the transaction carried by ctx, or db when there is none.
// Repositories call it for every statement so they take part in WithTransaction.
func Conn(ctx context.Context, db *sql.DB) Executor {
	if tx := txFrom(ctx); tx != nil {
		return tx
	}
	return db
}

func txFrom(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

var _ port.TransactionManager = (*DB)(nil)
