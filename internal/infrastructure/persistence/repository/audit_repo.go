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

// AuditRepository implements port.AuditRepository. There is no update or
// delete path; the schema refuses both.
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

func (r *AuditRepository) Append(ctx context.Context, entry *entity.AuditEntry) error {
	before, err := encodeRecord(entry.Before)
	if err != nil {
		return err
	}
	after, err := encodeRecord(entry.After)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audit_log (request_id, action, actor_id, comment, before_json, after_json, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	res, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		entry.RequestID, string(entry.Action), entry.ActorID, entry.Comment, before, after, utc(entry.At))
	if err != nil {
		r.logger.Error("Failed to append audit entry",
			zap.String("request_id", entry.RequestID),
			zap.String("action", string(entry.Action)),
			zap.Error(err))
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit entry id: %w", err)
	}
	entry.ID = id
	return nil
}

func (r *AuditRepository) ListByRequest(ctx context.Context, requestID string) ([]*entity.AuditEntry, error) {
	query := `
		SELECT id, request_id, action, actor_id, comment, before_json, after_json, at
		FROM audit_log
		WHERE request_id = ?
		ORDER BY id
	`
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, requestID)
	if err != nil {
		r.logger.Error("Failed to list audit entries", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*entity.AuditEntry
	for rows.Next() {
		var entry entity.AuditEntry
		var action string
		var before, after sql.NullString
		if err := rows.Scan(&entry.ID, &entry.RequestID, &action, &entry.ActorID, &entry.Comment, &before, &after, &entry.At); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.Action = entity.AuditAction(action)
		if entry.Before, err = decodeRecord(before); err != nil {
			return nil, err
		}
		if entry.After, err = decodeRecord(after); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
