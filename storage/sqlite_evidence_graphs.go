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

// SQLiteEvidenceGraphStorage handles evidence graph persistence in SQLite.
type SQLiteEvidenceGraphStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteEvidenceGraphStorage creates a new evidence graph storage.
func NewSQLiteEvidenceGraphStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteEvidenceGraphStorage {
	return &SQLiteEvidenceGraphStorage{sqlite: sqlite, logger: logger}
}

// PutEvidenceGraph stores a graph if absent.
func (s *SQLiteEvidenceGraphStorage) PutEvidenceGraph(ctx context.Context, graph *core.EvidenceGraph) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	body, err := json.Marshal(graph)
	if err != nil {
		return false, fmt.Errorf("failed to marshal evidence graph: %w", err)
	}

	query := `
		INSERT INTO evidence_graphs (graph_id, candidate_id, body)
		VALUES (?, ?, ?)
		ON CONFLICT(graph_id) DO NOTHING
	`

	result, err := s.sqlite.DB.ExecContext(ctx, query, graph.GraphID, graph.CandidateID, string(body))
	if err != nil {
		return false, fmt.Errorf("failed to insert evidence graph: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	return rowsAffected > 0, nil
}

// GetEvidenceGraph retrieves a graph by ID.
func (s *SQLiteEvidenceGraphStorage) GetEvidenceGraph(ctx context.Context, graphID string) (*core.EvidenceGraph, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var body string
	err := s.sqlite.ReadDB.QueryRowContext(ctx,
		"SELECT body FROM evidence_graphs WHERE graph_id = ?", graphID,
	).Scan(&body)

	if err == sql.ErrNoRows {
		return nil, ErrEvidenceGraphNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get evidence graph: %w", err)
	}

	var graph core.EvidenceGraph
	if err := json.Unmarshal([]byte(body), &graph); err != nil {
		return nil, fmt.Errorf("failed to unmarshal evidence graph: %w", err)
	}

	return &graph, nil
}

// GetEvidenceGraphsByCandidate returns all graphs for a candidate, ordered
// by graph ID.
func (s *SQLiteEvidenceGraphStorage) GetEvidenceGraphsByCandidate(ctx context.Context, candidateID string) ([]core.EvidenceGraph, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := s.sqlite.ReadDB.QueryContext(ctx,
		"SELECT body FROM evidence_graphs WHERE candidate_id = ? ORDER BY graph_id ASC", candidateID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidence graphs: %w", err)
	}
	defer rows.Close()

	var graphs []core.EvidenceGraph
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan evidence graph row: %w", err)
		}
		var graph core.EvidenceGraph
		if err := json.Unmarshal([]byte(body), &graph); err != nil {
			return nil, fmt.Errorf("failed to unmarshal evidence graph: %w", err)
		}
		graphs = append(graphs, graph)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating evidence graph rows: %w", err)
	}

	return graphs, nil
}
