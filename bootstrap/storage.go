package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"vigil/config"
	"vigil/storage"
)

// StorageComponents holds every storage backend the application uses. The
// bundle store is transparently cache-fronted when Redis is enabled.
type StorageComponents struct {
	SQLite *storage.SQLite
	Redis  *storage.RedisCache

	Detections  storage.DetectionStorageInterface
	Graphs      storage.EvidenceGraphStorageInterface
	Bundles     storage.EvidenceBundleStorageInterface
	Candidates  storage.CandidateStorageInterface
	Incidents   storage.IncidentStorageInterface
	Events      storage.EventStorageInterface
	Idempotency storage.IdempotencyStorageInterface
}

// EnsureDataDirectory creates the directory holding the SQLite database file.
func EnsureDataDirectory(cfg *config.Config, sugar *zap.SugaredLogger) error {
	if cfg.Storage.SQLitePath == ":memory:" {
		return nil
	}

	dir := filepath.Dir(cfg.Storage.SQLitePath)
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve data directory %s: %w", dir, err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", absPath, err)
	}

	sugar.Infow("Data directory ready", "path", absPath)
	return nil
}

// InitStorage opens SQLite, builds all typed stores and optionally fronts the
// evidence bundle store with Redis.
func InitStorage(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (*StorageComponents, error) {
	sqlite, err := storage.NewSQLite(cfg.Storage.SQLitePath, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
	}

	components := &StorageComponents{
		SQLite:      sqlite,
		Detections:  storage.NewSQLiteDetectionStorage(sqlite, sugar),
		Graphs:      storage.NewSQLiteEvidenceGraphStorage(sqlite, sugar),
		Bundles:     storage.NewSQLiteEvidenceBundleStorage(sqlite, sugar),
		Candidates:  storage.NewSQLiteCandidateStorage(sqlite, sugar),
		Incidents:   storage.NewSQLiteIncidentStorage(sqlite, sugar),
		Events:      storage.NewSQLiteEventStorage(sqlite, sugar),
		Idempotency: storage.NewSQLiteIdempotencyStorage(sqlite, sugar),
	}

	if cfg.Redis.Enabled {
		redis := storage.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, sugar)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := redis.Ping(pingCtx); err != nil {
			sugar.Warnw("Redis unreachable, running without bundle cache", "addr", cfg.Redis.Addr, "error", err)
		} else {
			components.Redis = redis
			components.Bundles = storage.NewCachedBundleStorage(components.Bundles, redis, cfg.Redis.TTL, sugar)
			sugar.Infow("Redis bundle cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.TTL)
		}
	}

	return components, nil
}

// Close releases storage connections. Safe to call with partial state.
func (s *StorageComponents) Close(sugar *zap.SugaredLogger) {
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			sugar.Errorw("Failed to close Redis connection", "error", err)
		}
	}
	if s.SQLite != nil {
		if err := s.SQLite.Close(); err != nil {
			sugar.Errorw("Failed to close SQLite database", "error", err)
		}
	}
}
