package bootstrap

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vigil/config"
	"vigil/core"
)

func TestPromotionPolicy_DefaultsWhenUnset(t *testing.T) {
	cfg := &config.Config{}

	policy := promotionPolicy(cfg)
	assert.Equal(t, core.ConfidenceBandMedium, policy.MinBand)
	assert.Equal(t, 0.4, policy.MinScore)
	assert.Equal(t, 2, policy.MinDetections)
}

func TestPromotionPolicy_ConfigOverrides(t *testing.T) {
	cfg := &config.Config{}
	cfg.Promotion.MinBand = "HIGH"
	cfg.Promotion.MinScore = 0.8
	cfg.Promotion.MinDetections = 5

	policy := promotionPolicy(cfg)
	assert.Equal(t, core.ConfidenceBandHigh, policy.MinBand)
	assert.Equal(t, 0.8, policy.MinScore)
	assert.Equal(t, 5, policy.MinDetections)
}

func TestEnsureDataDirectory(t *testing.T) {
	sugar := zap.NewNop().Sugar()

	cfg := &config.Config{}
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "nested", "vigil.db")
	require.NoError(t, EnsureDataDirectory(cfg, sugar))
	assert.DirExists(t, filepath.Dir(cfg.Storage.SQLitePath))

	memory := &config.Config{}
	memory.Storage.SQLitePath = ":memory:"
	assert.NoError(t, EnsureDataDirectory(memory, sugar))
}
