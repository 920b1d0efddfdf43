package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/port"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/infrastructure/persistence/sqlite"
)

// DirectoryRepository implements port.DirectoryRepository
type DirectoryRepository struct {
	db        *sql.DB
	txManager port.TransactionManager
	logger    *zap.Logger
}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository(db *sql.DB, txManager port.TransactionManager, logger *zap.Logger) port.DirectoryRepository {
	return &DirectoryRepository{
		db:        db,
		txManager: txManager,
		logger:    logger,
	}
}

// ReplaceAll swaps the stored directory in one transaction
func (r *DirectoryRepository) ReplaceAll(ctx context.Context, data *port.DirectoryData) error {
	return r.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		conn := sqlite.Conn(ctx, r.db)

		for _, table := range []string{"directory_users", "directory_accounts", "directory_final_approvers"} {
			if _, err := conn.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		for _, u := range data.Users {
			_, err := conn.ExecContext(ctx, `
				INSERT INTO directory_users (id, display_name, title, manager_id, approval_level, is_final_approver, theater, email)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				u.ID, u.DisplayName, u.Title, u.ManagerID, u.ApprovalLevel, u.IsFinalApprover, u.Theater, u.Email)
			if err != nil {
				return fmt.Errorf("failed to store user %s: %w", u.ID, err)
			}
		}
		for _, a := range data.Accounts {
			_, err := conn.ExecContext(ctx,
				`INSERT INTO directory_accounts (id, name, theater, industry_segment) VALUES (?, ?, ?, ?)`,
				a.ID, a.Name, a.Theater, a.IndustrySegment)
			if err != nil {
				return fmt.Errorf("failed to store account %s: %w", a.ID, err)
			}
		}
		for _, f := range data.FinalApprovers {
			_, err := conn.ExecContext(ctx,
				`INSERT INTO directory_final_approvers (theater, user_id) VALUES (?, ?)`,
				f.Theater, f.UserID)
			if err != nil {
				return fmt.Errorf("failed to store final approver of %s: %w", f.Theater, err)
			}
		}
		return nil
	})
}

func (r *DirectoryRepository) Load(ctx context.Context) (*port.DirectoryData, error) {
	conn := sqlite.Conn(ctx, r.db)
	data := &port.DirectoryData{}

	rows, err := conn.QueryContext(ctx, `
		SELECT id, display_name, title, manager_id, approval_level, is_final_approver, theater, email
		FROM directory_users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	for rows.Next() {
		var u entity.User
		if err := rows.Scan(&u.ID, &u.DisplayName, &u.Title, &u.ManagerID, &u.ApprovalLevel, &u.IsFinalApprover, &u.Theater, &u.Email); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		data.Users = append(data.Users, &u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = conn.QueryContext(ctx, `SELECT id, name, theater, industry_segment FROM directory_accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	for rows.Next() {
		var a entity.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Theater, &a.IndustrySegment); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		data.Accounts = append(data.Accounts, &a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = conn.QueryContext(ctx, `SELECT theater, user_id FROM directory_final_approvers ORDER BY theater`)
	if err != nil {
		return nil, fmt.Errorf("failed to load final approvers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var f entity.FinalApprover
		if err := rows.Scan(&f.Theater, &f.UserID); err != nil {
			return nil, fmt.Errorf("failed to scan final approver: %w", err)
		}
		data.FinalApprovers = append(data.FinalApprovers, &f)
	}
	return data, rows.Err()
}
