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

// SQLiteCandidateStorage handles incident candidate persistence in SQLite.
type SQLiteCandidateStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteCandidateStorage creates a new candidate storage.
func NewSQLiteCandidateStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteCandidateStorage {
	return &SQLiteCandidateStorage{sqlite: sqlite, logger: logger}
}

// PutCandidate stores a candidate if absent. Re-deriving the same candidate
// from replayed signals converges on the existing row.
func (s *SQLiteCandidateStorage) PutCandidate(ctx context.Context, candidate *core.IncidentCandidate) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	body, err := json.Marshal(candidate)
	if err != nil {
		return false, fmt.Errorf("failed to marshal candidate: %w", err)
	}

	query := `
		INSERT INTO candidates (candidate_id, correlation_key, rule_id, body)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(candidate_id) DO NOTHING
	`

	result, err := s.sqlite.DB.ExecContext(ctx, query,
		candidate.CandidateID,
		candidate.CorrelationKey,
		candidate.RuleID,
		string(body),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert candidate: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return false, nil
	}

	s.logger.Infow("Candidate stored",
		"candidate_id", candidate.CandidateID,
		"correlation_key", candidate.CorrelationKey,
	)

	return true, nil
}

// GetCandidate retrieves a candidate by ID.
func (s *SQLiteCandidateStorage) GetCandidate(ctx context.Context, candidateID string) (*core.IncidentCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var body string
	err := s.sqlite.ReadDB.QueryRowContext(ctx,
		"SELECT body FROM candidates WHERE candidate_id = ?", candidateID,
	).Scan(&body)

	if err == sql.ErrNoRows {
		return nil, ErrCandidateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}

	var candidate core.IncidentCandidate
	if err := json.Unmarshal([]byte(body), &candidate); err != nil {
		return nil, fmt.Errorf("failed to unmarshal candidate: %w", err)
	}

	return &candidate, nil
}
