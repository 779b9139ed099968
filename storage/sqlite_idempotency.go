package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SQLiteIdempotencyStorage handles permanent idempotency records in SQLite.
// Records never expire: they are audit artifacts as much as dedup state.
type SQLiteIdempotencyStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteIdempotencyStorage creates a new idempotency storage.
func NewSQLiteIdempotencyStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteIdempotencyStorage {
	return &SQLiteIdempotencyStorage{sqlite: sqlite, logger: logger}
}

// PutIfAbsent attempts to create the record. When a record with the same key
// already exists, the existing record is returned and created is false. The
// caller decides whether the existing record is a replay or a conflict by
// comparing request hashes.
func (s *SQLiteIdempotencyStorage) PutIfAbsent(ctx context.Context, rec *IdempotencyRecord) (*IdempotencyRecord, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO idempotency_records (key, namespace, request_hash, resource_id, status_code, response_body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO NOTHING
	`

	result, err := s.sqlite.DB.ExecContext(ctx, query,
		rec.Key,
		rec.Namespace,
		rec.RequestHash,
		rec.ResourceID,
		rec.StatusCode,
		string(rec.ResponseBody),
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert idempotency record: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		return rec, true, nil
	}

	existing, err := s.GetRecord(ctx, rec.Key)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetRecord retrieves an idempotency record by key.
func (s *SQLiteIdempotencyStorage) GetRecord(ctx context.Context, key string) (*IdempotencyRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		SELECT key, namespace, request_hash, resource_id, status_code, response_body, created_at
		FROM idempotency_records
		WHERE key = ?
	`

	var rec IdempotencyRecord
	var responseBody string
	var createdAt time.Time

	err := s.sqlite.ReadDB.QueryRowContext(ctx, query, key).Scan(
		&rec.Key,
		&rec.Namespace,
		&rec.RequestHash,
		&rec.ResourceID,
		&rec.StatusCode,
		&responseBody,
		&createdAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency record: %w", err)
	}

	rec.ResponseBody = []byte(responseBody)
	rec.CreatedAt = createdAt.UTC()

	return &rec, nil
}
