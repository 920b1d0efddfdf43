package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/port"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/infrastructure/persistence/sqlite"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/pkg/database"
)

// RequestRepository implements port.RequestRepository. The full record is
// kept as JSON; the columns beside it exist for filtering.
type RequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sql.DB, logger *zap.Logger) port.RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

const requestColumns = `payload, remote_updated_at`

func (r *RequestRepository) Insert(ctx context.Context, req *entity.InvestmentRequest) error {
	rec := req.ToRecord()
	payload, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO investment_requests (
			id, title, account_id, theater, quarter, status, current_approval_level,
			next_approver_id, created_by, on_behalf_of, payload, remote_updated_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		rec.ID, rec.Title, rec.AccountID, rec.Theater, rec.Quarter, rec.Status, rec.CurrentApprovalLevel,
		rec.NextApproverID, rec.CreatedBy, rec.OnBehalfOf, payload, nullTime(req.RemoteUpdatedAt),
		utc(rec.CreatedAt), utc(rec.UpdatedAt),
	)
	if database.IsConstraint(err) {
		return fmt.Errorf("%w: request %s", port.ErrAlreadyExists, rec.ID)
	}
	if err != nil {
		r.logger.Error("Failed to insert request", zap.String("id", rec.ID), zap.Error(err))
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}

func (r *RequestRepository) Update(ctx context.Context, req *entity.InvestmentRequest) error {
	rec := req.ToRecord()
	payload, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	query := `
		UPDATE investment_requests SET
			title = ?, account_id = ?, theater = ?, quarter = ?, status = ?,
			current_approval_level = ?, next_approver_id = ?, on_behalf_of = ?,
			payload = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		rec.Title, rec.AccountID, rec.Theater, rec.Quarter, rec.Status,
		rec.CurrentApprovalLevel, rec.NextApproverID, rec.OnBehalfOf,
		payload, utc(rec.UpdatedAt),
		rec.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update request", zap.String("id", rec.ID), zap.Error(err))
		return fmt.Errorf("failed to update request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("request %s not found", rec.ID)
	}
	return nil
}

func (r *RequestRepository) Upsert(ctx context.Context, req *entity.InvestmentRequest, remoteUpdatedAt time.Time) error {
	rec := req.ToRecord()
	payload, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO investment_requests (
			id, title, account_id, theater, quarter, status, current_approval_level,
			next_approver_id, created_by, on_behalf_of, payload, remote_updated_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			account_id = excluded.account_id,
			theater = excluded.theater,
			quarter = excluded.quarter,
			status = excluded.status,
			current_approval_level = excluded.current_approval_level,
			next_approver_id = excluded.next_approver_id,
			created_by = excluded.created_by,
			on_behalf_of = excluded.on_behalf_of,
			payload = excluded.payload,
			remote_updated_at = excluded.remote_updated_at,
			updated_at = excluded.updated_at
	`
	_, err = sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		rec.ID, rec.Title, rec.AccountID, rec.Theater, rec.Quarter, rec.Status, rec.CurrentApprovalLevel,
		rec.NextApproverID, rec.CreatedBy, rec.OnBehalfOf, payload, nullTime(&remoteUpdatedAt),
		utc(rec.CreatedAt), utc(rec.UpdatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to upsert request", zap.String("id", rec.ID), zap.Error(err))
		return fmt.Errorf("failed to upsert request: %w", err)
	}
	return nil
}

func (r *RequestRepository) Delete(ctx context.Context, id string) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM investment_requests WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete request", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete request: %w", err)
	}
	return nil
}

func (r *RequestRepository) GetByID(ctx context.Context, id string) (*entity.InvestmentRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM investment_requests WHERE id = ?`

	req, err := r.scan(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get request", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get request %s: %w", id, err)
	}
	return req, nil
}

func (r *RequestRepository) List(ctx context.Context, filter port.RequestFilter) ([]*entity.InvestmentRequest, error) {
	var where []string
	var args []interface{}

	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			marks[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.CreatedBy != "" {
		where = append(where, "created_by = ?")
		args = append(args, filter.CreatedBy)
	}
	if filter.NextApproverID != "" {
		where = append(where, "next_approver_id = ?")
		args = append(args, filter.NextApproverID)
	}
	if filter.InvolvedUser != "" {
		where = append(where, `(created_by = ? OR on_behalf_of = ? OR EXISTS (
			SELECT 1 FROM json_each(payload, '$.contributors') WHERE value = ?))`)
		args = append(args, filter.InvolvedUser, filter.InvolvedUser, filter.InvolvedUser)
	}
	if filter.Theater != "" {
		where = append(where, "theater = ?")
		args = append(args, filter.Theater)
	}
	if filter.Quarter != "" {
		where = append(where, "quarter = ?")
		args = append(args, filter.Quarter)
	}

	query := `SELECT ` + requestColumns + ` FROM investment_requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, id"

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list requests", zap.Error(err))
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var requests []*entity.InvestmentRequest
	for rows.Next() {
		req, err := r.scan(rows)
		if err != nil {
			r.logger.Error("Skipping unreadable request row", zap.Error(err))
			continue
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func (r *RequestRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, `SELECT id FROM investment_requests ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list request ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan request id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *RequestRepository) SetRemoteUpdatedAt(ctx context.Context, id string, at time.Time) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE investment_requests SET remote_updated_at = ? WHERE id = ?`, utc(at), id)
	if err != nil {
		return fmt.Errorf("failed to set remote watermark of %s: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *RequestRepository) scan(row rowScanner) (*entity.InvestmentRequest, error) {
	var payload sql.NullString
	var remoteAt sql.NullTime
	if err := row.Scan(&payload, &remoteAt); err != nil {
		return nil, err
	}

	rec, err := decodeRecord(payload)
	if err != nil {
		return nil, err
	}
	req, err := entity.FromRecord(rec)
	if err != nil {
		return nil, err
	}
	if remoteAt.Valid {
		t := remoteAt.Time
		req.RemoteUpdatedAt = &t
	}
	return req, nil
}
