package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"vigil/core"

	"go.uber.org/zap"
)

// SQLiteDetectionStorage handles detection persistence in SQLite.
// Detections are content-addressed: the same record may arrive many times
// and only the first write creates a row.
type SQLiteDetectionStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteDetectionStorage creates a new detection storage.
func NewSQLiteDetectionStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteDetectionStorage {
	return &SQLiteDetectionStorage{sqlite: sqlite, logger: logger}
}

// PutDetection stores a detection if absent. The bool reports whether this
// call created the row.
func (s *SQLiteDetectionStorage) PutDetection(ctx context.Context, det *core.Detection) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	body, err := json.Marshal(det)
	if err != nil {
		return false, fmt.Errorf("failed to marshal detection: %w", err)
	}

	query := `
		INSERT INTO detections (detection_id, rule_id, rule_version, service, severity, detected_at, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(detection_id) DO NOTHING
	`

	result, err := s.sqlite.DB.ExecContext(ctx, query,
		det.DetectionID,
		det.RuleID,
		det.RuleVersion,
		det.Service,
		det.Severity,
		det.DetectedAt.UTC(),
		string(body),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert detection: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return false, nil
	}

	s.logger.Infow("Detection stored",
		"detection_id", det.DetectionID,
		"rule_id", det.RuleID,
		"service", det.Service,
	)

	return true, nil
}

// GetDetection retrieves a detection by ID.
func (s *SQLiteDetectionStorage) GetDetection(ctx context.Context, detectionID string) (*core.Detection, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var body string
	err := s.sqlite.ReadDB.QueryRowContext(ctx,
		"SELECT body FROM detections WHERE detection_id = ?", detectionID,
	).Scan(&body)

	if err == sql.ErrNoRows {
		return nil, ErrDetectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get detection: %w", err)
	}

	var det core.Detection
	if err := json.Unmarshal([]byte(body), &det); err != nil {
		return nil, fmt.Errorf("failed to unmarshal detection: %w", err)
	}

	return &det, nil
}

// QueryDetectionsInWindow returns detections with detected_at in the
// half-open interval [start, end), optionally narrowed to one rule.
// Results are ordered by detection ID so replayed queries are stable.
func (s *SQLiteDetectionStorage) QueryDetectionsInWindow(ctx context.Context, start, end time.Time, ruleID string) ([]core.Detection, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := `
		SELECT body FROM detections
		WHERE detected_at >= ? AND detected_at < ?
	`
	args := []interface{}{start.UTC(), end.UTC()}
	if ruleID != "" {
		query += " AND rule_id = ?"
		args = append(args, ruleID)
	}
	query += " ORDER BY detection_id ASC"

	rows, err := s.sqlite.ReadDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	var detections []core.Detection
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan detection row: %w", err)
		}
		var det core.Detection
		if err := json.Unmarshal([]byte(body), &det); err != nil {
			return nil, fmt.Errorf("failed to unmarshal detection: %w", err)
		}
		detections = append(detections, det)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating detection rows: %w", err)
	}

	return detections, nil
}
