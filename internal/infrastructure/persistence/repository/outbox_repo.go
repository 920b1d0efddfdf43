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
)

// OutboxRepository implements port.OutboxRepository
type OutboxRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOutboxRepository creates a new outbox repository
func NewOutboxRepository(db *sql.DB, logger *zap.Logger) port.OutboxRepository {
	return &OutboxRepository{
		db:     db,
		logger: logger,
	}
}

const taskColumns = `seq, request_id, op, payload, status, attempts, last_error, next_attempt_at, created_at, updated_at`

func (r *OutboxRepository) Enqueue(ctx context.Context, task *entity.PropagationTask) error {
	payload, err := encodeRecord(task.Payload)
	if err != nil {
		return err
	}
	if task.Status == "" {
		task.Status = entity.TaskStatusPending
	}

	query := `
		INSERT INTO outbox_tasks (
			request_id, op, payload, status, attempts, last_error, next_attempt_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		task.RequestID, string(task.Op), payload, string(task.Status), task.Attempts, task.LastError,
		utc(task.NextAttemptAt), utc(task.CreatedAt), utc(task.UpdatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to enqueue task", zap.String("request_id", task.RequestID), zap.Error(err))
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get task seq: %w", err)
	}
	task.Seq = seq
	return nil
}

// ClaimableHeads picks the lowest open seq per request; only heads that are
// PENDING and due come back, so a parked head holds back its whole request.
func (r *OutboxRepository) ClaimableHeads(ctx context.Context, now time.Time, skip []string, limit int) ([]*entity.PropagationTask, error) {
	query := `
		SELECT ` + prefixed("t.", taskColumns) + `
		FROM outbox_tasks t
		JOIN (
			SELECT request_id, MIN(seq) AS head
			FROM outbox_tasks
			WHERE status IN ('PENDING', 'PARKED')
			GROUP BY request_id
		) h ON t.seq = h.head
		WHERE t.status = 'PENDING' AND t.next_attempt_at <= ?
	`
	args := []interface{}{utc(now)}

	if len(skip) > 0 {
		marks := make([]string, len(skip))
		for i, id := range skip {
			marks[i] = "?"
			args = append(args, id)
		}
		query += " AND t.request_id NOT IN (" + strings.Join(marks, ", ") + ")"
	}
	if limit <= 0 {
		limit = -1
	}
	query += " ORDER BY t.seq LIMIT ?"
	args = append(args, limit)

	return r.query(ctx, query, args...)
}

func (r *OutboxRepository) GetBySeq(ctx context.Context, seq int64) (*entity.PropagationTask, error) {
	query := `SELECT ` + taskColumns + ` FROM outbox_tasks WHERE seq = ?`
	task, err := scanTask(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, seq))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %d: %w", seq, err)
	}
	return task, nil
}

func (r *OutboxRepository) MarkDone(ctx context.Context, seq int64, at time.Time) error {
	return r.exec(ctx, "mark task done",
		`UPDATE outbox_tasks SET status = 'DONE', last_error = '', updated_at = ? WHERE seq = ?`,
		utc(at), seq)
}

func (r *OutboxRepository) MarkRetry(ctx context.Context, seq int64, attempts int, lastErr string, next time.Time) error {
	return r.exec(ctx, "schedule task retry",
		`UPDATE outbox_tasks SET attempts = ?, last_error = ?, next_attempt_at = ?, updated_at = ?
		 WHERE seq = ? AND status = 'PENDING'`,
		attempts, lastErr, utc(next), utc(time.Now()), seq)
}

func (r *OutboxRepository) MarkParked(ctx context.Context, seq int64, attempts int, lastErr string, at time.Time) error {
	return r.exec(ctx, "park task",
		`UPDATE outbox_tasks SET status = 'PARKED', attempts = ?, last_error = ?, updated_at = ?
		 WHERE seq = ? AND status = 'PENDING'`,
		attempts, lastErr, utc(at), seq)
}

func (r *OutboxRepository) Requeue(ctx context.Context, seq int64, at time.Time) error {
	res, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE outbox_tasks SET status = 'PENDING', attempts = 0, next_attempt_at = ?, updated_at = ?
		 WHERE seq = ? AND status = 'PARKED'`,
		utc(at), utc(at), seq)
	if err != nil {
		return fmt.Errorf("failed to requeue task %d: %w", seq, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %d is not parked", seq)
	}
	return nil
}

func (r *OutboxRepository) HasOpen(ctx context.Context, requestID string) (bool, error) {
	var exists int
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM outbox_tasks WHERE request_id = ? AND status IN ('PENDING', 'PARKED'))`,
		requestID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check open tasks of %s: %w", requestID, err)
	}
	return exists == 1, nil
}

func (r *OutboxRepository) ListParked(ctx context.Context) ([]*entity.PropagationTask, error) {
	return r.query(ctx, `SELECT `+taskColumns+` FROM outbox_tasks WHERE status = 'PARKED' ORDER BY seq`)
}

func (r *OutboxRepository) CountByStatus(ctx context.Context) (map[entity.TaskStatus]int, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, `SELECT status, COUNT(*) FROM outbox_tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	defer rows.Close()

	counts := map[entity.TaskStatus]int{
		entity.TaskStatusPending: 0,
		entity.TaskStatusDone:    0,
		entity.TaskStatusParked:  0,
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan task count: %w", err)
		}
		counts[entity.TaskStatus(status)] = n
	}
	return counts, rows.Err()
}

func (r *OutboxRepository) PurgeDone(ctx context.Context, before time.Time) (int64, error) {
	res, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM outbox_tasks WHERE status = 'DONE' AND updated_at < ?`, utc(before))
	if err != nil {
		return 0, fmt.Errorf("failed to purge done tasks: %w", err)
	}
	return res.RowsAffected()
}

func (r *OutboxRepository) exec(ctx context.Context, what, query string, args ...interface{}) error {
	if _, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("Outbox update failed", zap.String("op", what), zap.Error(err))
		return fmt.Errorf("failed to %s: %w", what, err)
	}
	return nil
}

func (r *OutboxRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.PropagationTask, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query tasks", zap.Error(err))
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*entity.PropagationTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func scanTask(row rowScanner) (*entity.PropagationTask, error) {
	var task entity.PropagationTask
	var op, status string
	var payload sql.NullString

	err := row.Scan(
		&task.Seq,
		&task.RequestID,
		&op,
		&payload,
		&status,
		&task.Attempts,
		&task.LastError,
		&task.NextAttemptAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	task.Op = entity.TaskOp(op)
	task.Status = entity.TaskStatus(status)

	if task.Payload, err = decodeRecord(payload); err != nil {
		return nil, err
	}
	return &task, nil
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = prefix + p
	}
	return strings.Join(parts, ", ")
}
