package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/port"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/infrastructure/persistence/sqlite"
)

// WatermarkRepository implements port.WatermarkRepository
type WatermarkRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWatermarkRepository creates a new watermark repository
func NewWatermarkRepository(db *sql.DB, logger *zap.Logger) port.WatermarkRepository {
	return &WatermarkRepository{
		db:     db,
		logger: logger,
	}
}

func (r *WatermarkRepository) Get(ctx context.Context, source string) (time.Time, error) {
	var hwm time.Time
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT high_water_mark FROM sync_watermarks WHERE source = ?`, source).Scan(&hwm)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read watermark of %s: %w", source, err)
	}
	return hwm, nil
}

func (r *WatermarkRepository) Set(ctx context.Context, source string, at time.Time) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO sync_watermarks (source, high_water_mark, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET high_water_mark = excluded.high_water_mark, updated_at = excluded.updated_at
	`, source, utc(at), utc(time.Now()))
	if err != nil {
		r.logger.Error("Failed to store watermark", zap.String("source", source), zap.Error(err))
		return fmt.Errorf("failed to store watermark of %s: %w", source, err)
	}
	return nil
}
