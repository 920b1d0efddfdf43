// Package postgres keeps the system of record in PostgreSQL
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/port"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
)

//go:embed schema/001_remote.sql
var schemaSQL string

// Config holds connection settings
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	ConnectTimeout  time.Duration
}

// Store implements port.RemoteStore and port.DirectorySource over pgx
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Open connects and verifies the pool
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Info("Remote store connected",
		zap.String("host", poolCfg.ConnConfig.Host),
		zap.String("database", poolCfg.ConnConfig.Database),
		zap.Int32("max_conns", poolCfg.MaxConns))

	return &Store{pool: pool, logger: logger}, nil
}

// EnsureSchema creates the remote tables when missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure remote schema: %w", err)
	}
	return nil
}

// Close releases the pool
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) inTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Error("Rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return tx.Commit(ctx)
}

// bump moves the source high-water mark strictly forward and returns it.
// The row lock serializes concurrent writers.
func bump(ctx context.Context, tx pgx.Tx, source string) (time.Time, error) {
	var at time.Time
	err := tx.QueryRow(ctx, `
		UPDATE gov_sync_sources
		SET high_water_mark = GREATEST(clock_timestamp(), high_water_mark + interval '1 microsecond')
		WHERE source = $1
		RETURNING high_water_mark
	`, source).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, fmt.Errorf("unknown sync source %s", source)
	}
	if err != nil {
		return time.Time{}, err
	}
	return at.UTC(), nil
}

func (s *Store) ReadRequest(ctx context.Context, id string) (*entity.RequestRecord, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM gov_investment_requests WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read request %s: %w", id, err)
	}

	var rec entity.RequestRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("decode request %s: %w", id, err)
	}
	return &rec, nil
}

func (s *Store) WriteRequest(ctx context.Context, rec *entity.RequestRecord) (time.Time, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return time.Time{}, fmt.Errorf("encode request %s: %w", rec.ID, err)
	}

	var at time.Time
	err = s.inTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		if at, err = bump(ctx, tx, port.SourceInvestmentRequests); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO gov_investment_requests (id, payload, modified_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, modified_at = EXCLUDED.modified_at
		`, rec.ID, payload, at)
		return err
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("write request %s: %w", rec.ID, err)
	}
	return at, nil
}

func (s *Store) DeleteRequest(ctx context.Context, id string) (time.Time, error) {
	var at time.Time
	err := s.inTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		if at, err = bump(ctx, tx, port.SourceInvestmentRequests); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM gov_investment_requests WHERE id = $1`, id)
		return err
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("delete request %s: %w", id, err)
	}
	return at, nil
}

func (s *Store) ReadHighWaterMark(ctx context.Context, source string) (time.Time, error) {
	var at time.Time
	err := s.pool.QueryRow(ctx, `SELECT high_water_mark FROM gov_sync_sources WHERE source = $1`, source).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read high-water mark %s: %w", source, err)
	}
	return at.UTC(), nil
}

// ReadSnapshot reads every request and the high-water mark in one
// repeatable-read transaction so the mark matches the rows
func (s *Store) ReadSnapshot(ctx context.Context, source string) (*port.RemoteSnapshot, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback(ctx)

	snap := &port.RemoteSnapshot{Source: source}
	err = tx.QueryRow(ctx, `SELECT high_water_mark FROM gov_sync_sources WHERE source = $1`, source).Scan(&snap.HighWaterMark)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("read snapshot mark: %w", err)
	}
	snap.HighWaterMark = snap.HighWaterMark.UTC()

	rows, err := tx.Query(ctx, `SELECT id, payload FROM gov_investment_requests ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("read snapshot rows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var rec entity.RequestRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			s.logger.Error("Skipping undecodable remote request", zap.String("id", id), zap.Error(err))
			continue
		}
		snap.Records = append(snap.Records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Store) ReadUsers(ctx context.Context) ([]*entity.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, display_name, title, manager_id, approval_level, is_final_approver, theater, email
		FROM gov_users ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("read users: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*entity.User, error) {
		u := &entity.User{}
		err := row.Scan(&u.ID, &u.DisplayName, &u.Title, &u.ManagerID, &u.ApprovalLevel,
			&u.IsFinalApprover, &u.Theater, &u.Email)
		return u, err
	})
}

func (s *Store) ReadAccounts(ctx context.Context) ([]*entity.Account, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, theater, industry_segment FROM gov_accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("read accounts: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*entity.Account, error) {
		a := &entity.Account{}
		err := row.Scan(&a.ID, &a.Name, &a.Theater, &a.IndustrySegment)
		return a, err
	})
}

func (s *Store) ReadFinalApprovers(ctx context.Context) ([]*entity.FinalApprover, error) {
	rows, err := s.pool.Query(ctx, `SELECT theater, user_id FROM gov_final_approvers ORDER BY theater`)
	if err != nil {
		return nil, fmt.Errorf("read final approvers: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*entity.FinalApprover, error) {
		f := &entity.FinalApprover{}
		err := row.Scan(&f.Theater, &f.UserID)
		return f, err
	})
}

// SeedDirectory replaces the reference tables, for demos and tests
func (s *Store) SeedDirectory(ctx context.Context, data *port.DirectoryData) error {
	return s.inTransaction(ctx, func(tx pgx.Tx) error {
		for _, table := range []string{"gov_users", "gov_accounts", "gov_final_approvers"} {
			if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}

		batch := &pgx.Batch{}
		for _, u := range data.Users {
			batch.Queue(`INSERT INTO gov_users (id, display_name, title, manager_id, approval_level, is_final_approver, theater, email)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				u.ID, u.DisplayName, u.Title, u.ManagerID, u.ApprovalLevel, u.IsFinalApprover, u.Theater, u.Email)
		}
		for _, a := range data.Accounts {
			batch.Queue(`INSERT INTO gov_accounts (id, name, theater, industry_segment) VALUES ($1, $2, $3, $4)`,
				a.ID, a.Name, a.Theater, a.IndustrySegment)
		}
		for _, f := range data.FinalApprovers {
			batch.Queue(`INSERT INTO gov_final_approvers (theater, user_id) VALUES ($1, $2)`, f.Theater, f.UserID)
		}
		if batch.Len() == 0 {
			_, err := bump(ctx, tx, port.SourceDirectory)
			return err
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
		_, err := bump(ctx, tx, port.SourceDirectory)
		return err
	})
}
