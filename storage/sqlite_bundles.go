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

// SQLiteEvidenceBundleStorage handles evidence bundle persistence in SQLite.
// Bundles are content-addressed and never mutated after the first write.
type SQLiteEvidenceBundleStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteEvidenceBundleStorage creates a new evidence bundle storage.
func NewSQLiteEvidenceBundleStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteEvidenceBundleStorage {
	return &SQLiteEvidenceBundleStorage{sqlite: sqlite, logger: logger}
}

// PutEvidenceBundle stores a bundle if absent.
func (s *SQLiteEvidenceBundleStorage) PutEvidenceBundle(ctx context.Context, bundle *core.EvidenceBundle) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	body, err := json.Marshal(bundle)
	if err != nil {
		return false, fmt.Errorf("failed to marshal evidence bundle: %w", err)
	}

	query := `
		INSERT INTO evidence_bundles (evidence_id, window_start, window_end, body)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(evidence_id) DO NOTHING
	`

	result, err := s.sqlite.DB.ExecContext(ctx, query,
		bundle.EvidenceID,
		bundle.WindowStart.UTC(),
		bundle.WindowEnd.UTC(),
		string(body),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert evidence bundle: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return false, nil
	}

	s.logger.Infow("Evidence bundle stored",
		"evidence_id", bundle.EvidenceID,
		"signal_count", bundle.SignalSummary.SignalCount,
	)

	return true, nil
}

// GetEvidenceBundle retrieves a bundle by evidence ID.
func (s *SQLiteEvidenceBundleStorage) GetEvidenceBundle(ctx context.Context, evidenceID string) (*core.EvidenceBundle, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var body string
	err := s.sqlite.ReadDB.QueryRowContext(ctx,
		"SELECT body FROM evidence_bundles WHERE evidence_id = ?", evidenceID,
	).Scan(&body)

	if err == sql.ErrNoRows {
		return nil, ErrEvidenceBundleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get evidence bundle: %w", err)
	}

	var bundle core.EvidenceBundle
	if err := json.Unmarshal([]byte(body), &bundle); err != nil {
		return nil, fmt.Errorf("failed to unmarshal evidence bundle: %w", err)
	}

	return &bundle, nil
}
