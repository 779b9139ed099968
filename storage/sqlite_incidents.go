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

// SQLiteIncidentStorage handles the live incident view in SQLite. The event
// log is authoritative; this table is the query-side projection, guarded by
// optimistic version checks.
type SQLiteIncidentStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteIncidentStorage creates a new incident storage.
func NewSQLiteIncidentStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteIncidentStorage {
	return &SQLiteIncidentStorage{sqlite: sqlite, logger: logger}
}

// CreateIncident stores an incident if absent. The bool reports whether this
// call created the row; a concurrent promotion of the same evidence loses
// the race and sees false.
func (s *SQLiteIncidentStorage) CreateIncident(ctx context.Context, inc *core.Incident) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	body, err := json.Marshal(inc)
	if err != nil {
		return false, fmt.Errorf("failed to marshal incident: %w", err)
	}

	query := `
		INSERT INTO incidents (incident_id, status, service, severity, version, created_at, updated_at, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(incident_id) DO NOTHING
	`

	result, err := s.sqlite.DB.ExecContext(ctx, query,
		inc.IncidentID,
		string(inc.Status),
		inc.Service,
		inc.Severity,
		inc.IncidentVersion,
		inc.CreatedAt.UTC(),
		inc.UpdatedAt.UTC(),
		string(body),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert incident: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return false, nil
	}

	s.logger.Infow("Incident created",
		"incident_id", inc.IncidentID,
		"service", inc.Service,
		"severity", inc.Severity,
	)

	return true, nil
}

// GetIncident retrieves an incident by ID.
func (s *SQLiteIncidentStorage) GetIncident(ctx context.Context, incidentID string) (*core.Incident, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var body string
	err := s.sqlite.ReadDB.QueryRowContext(ctx,
		"SELECT body FROM incidents WHERE incident_id = ?", incidentID,
	).Scan(&body)

	if err == sql.ErrNoRows {
		return nil, ErrIncidentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}

	var inc core.Incident
	if err := json.Unmarshal([]byte(body), &inc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal incident: %w", err)
	}

	return &inc, nil
}

// UpdateIncident replaces the live view at the expected prior version.
// The incident passed in already carries the incremented version; the guard
// matches version-1 so a lost race surfaces as ErrVersionConflict.
func (s *SQLiteIncidentStorage) UpdateIncident(ctx context.Context, inc *core.Incident) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	body, err := json.Marshal(inc)
	if err != nil {
		return fmt.Errorf("failed to marshal incident: %w", err)
	}

	query := `
		UPDATE incidents
		SET status = ?, severity = ?, version = ?, updated_at = ?, body = ?
		WHERE incident_id = ? AND version = ?
	`

	result, err := s.sqlite.DB.ExecContext(ctx, query,
		string(inc.Status),
		inc.Severity,
		inc.IncidentVersion,
		inc.UpdatedAt.UTC(),
		string(body),
		inc.IncidentID,
		inc.IncidentVersion-1,
	)
	if err != nil {
		return fmt.Errorf("failed to update incident: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		var exists int
		if scanErr := s.sqlite.DB.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM incidents WHERE incident_id = ?", inc.IncidentID,
		).Scan(&exists); scanErr == nil && exists == 0 {
			return ErrIncidentNotFound
		}
		return ErrVersionConflict
	}

	s.logger.Infow("Incident updated",
		"incident_id", inc.IncidentID,
		"status", inc.Status,
		"version", inc.IncidentVersion,
	)

	return nil
}

// HasActiveIncident reports whether the incident exists and has not reached a
// terminal status. The id is evidence-derived, so the check deduplicates exactly
// the incident this evidence maps to and never an unrelated one on the same
// service.
func (s *SQLiteIncidentStorage) HasActiveIncident(ctx context.Context, incidentID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var status string
	err := s.sqlite.ReadDB.QueryRowContext(ctx,
		"SELECT status FROM incidents WHERE incident_id = ?", incidentID,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query incident status: %w", err)
	}

	return !core.IncidentStatus(status).IsTerminal(), nil
}

// ListIncidents returns incidents ordered by creation time descending, plus
// the total count for pagination.
func (s *SQLiteIncidentStorage) ListIncidents(ctx context.Context, limit, offset int) ([]core.Incident, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := s.sqlite.ReadDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM incidents").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count incidents: %w", err)
	}

	rows, err := s.sqlite.ReadDB.QueryContext(ctx,
		"SELECT body FROM incidents ORDER BY created_at DESC, incident_id ASC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	var incidents []core.Incident
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, 0, fmt.Errorf("failed to scan incident row: %w", err)
		}
		var inc core.Incident
		if err := json.Unmarshal([]byte(body), &inc); err != nil {
			return nil, 0, fmt.Errorf("failed to unmarshal incident: %w", err)
		}
		incidents = append(incidents, inc)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating incident rows: %w", err)
	}

	return incidents, total, nil
}
