package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
)

// Times are stored in UTC so that text comparison in SQL matches time order.
func utc(t time.Time) time.Time {
	return t.UTC()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func encodeRecord(rec *entity.RequestRecord) (sql.NullString, error) {
	if rec == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode request record: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeRecord(raw sql.NullString) (*entity.RequestRecord, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var rec entity.RequestRecord
	if err := json.Unmarshal([]byte(raw.String), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode request record: %w", err)
	}
	return &rec, nil
}
