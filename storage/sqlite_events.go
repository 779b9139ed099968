package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"vigil/core"

	"go.uber.org/zap"
)

// SQLiteEventStorage handles the append-only incident event log in SQLite.
// Per incident, event sequence numbers start at 1 and increase by exactly 1;
// the append is guarded so two writers can never both claim the next slot.
type SQLiteEventStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteEventStorage creates a new event storage.
func NewSQLiteEventStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteEventStorage {
	return &SQLiteEventStorage{sqlite: sqlite, logger: logger}
}

// AppendEvent appends a record at the sequence number it carries. The insert
// only lands when rec.EventSeq is exactly one past the current maximum for
// the incident (or 1 for the first event); otherwise ErrSequenceConflict.
func (s *SQLiteEventStorage) AppendEvent(ctx context.Context, rec *core.EventRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if rec.EventSeq < 1 {
		return fmt.Errorf("event sequence must be >= 1, got %d", rec.EventSeq)
	}

	query := `
		INSERT INTO incident_events (incident_id, event_seq, event_type, payload, actor, occurred_at, state_hash_after)
		SELECT ?, ?, ?, ?, ?, ?, ?
		WHERE ? = 1 + COALESCE((SELECT MAX(event_seq) FROM incident_events WHERE incident_id = ?), 0)
	`

	result, err := s.sqlite.DB.ExecContext(ctx, query,
		rec.IncidentID,
		rec.EventSeq,
		string(rec.EventType),
		string(rec.Payload),
		rec.Actor,
		rec.OccurredAt.UTC(),
		rec.StateHashAfter,
		rec.EventSeq,
		rec.IncidentID,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrSequenceConflict
	}

	s.logger.Infow("Event appended",
		"incident_id", rec.IncidentID,
		"event_seq", rec.EventSeq,
		"event_type", rec.EventType,
	)

	return nil
}

// GetEvents returns all events for an incident in sequence order.
func (s *SQLiteEventStorage) GetEvents(ctx context.Context, incidentID string) ([]core.EventRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := `
		SELECT incident_id, event_seq, event_type, payload, actor, occurred_at, state_hash_after
		FROM incident_events
		WHERE incident_id = ?
		ORDER BY event_seq ASC
	`

	rows, err := s.sqlite.ReadDB.QueryContext(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []core.EventRecord
	for rows.Next() {
		var rec core.EventRecord
		var eventType, payload string
		var occurredAt time.Time

		err := rows.Scan(
			&rec.IncidentID,
			&rec.EventSeq,
			&eventType,
			&payload,
			&rec.Actor,
			&occurredAt,
			&rec.StateHashAfter,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}

		rec.EventType = core.EventType(eventType)
		rec.Payload = []byte(payload)
		rec.OccurredAt = occurredAt.UTC()
		events = append(events, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}

	return events, nil
}

// LatestSeq returns the highest sequence number for an incident, 0 when the
// incident has no events.
func (s *SQLiteEventStorage) LatestSeq(ctx context.Context, incidentID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var seq sql.NullInt64
	err := s.sqlite.ReadDB.QueryRowContext(ctx,
		"SELECT MAX(event_seq) FROM incident_events WHERE incident_id = ?", incidentID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to query latest sequence: %w", err)
	}

	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
