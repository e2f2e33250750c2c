package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestValidateEngineConfigRequiresSystemOwner(t *testing.T) {
	cfg := DefaultEngineConfig()
	err := ValidateEngineConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "systemOwnerId")

	cfg.SystemOwnerID = 42
	assert.NoError(t, ValidateEngineConfig(cfg))
}

func TestValidateEngineConfigRejectsBadValues(t *testing.T) {
	base := DefaultEngineConfig()
	base.SystemOwnerID = 1

	cases := []struct {
		name   string
		mutate func(*EngineConfig)
	}{
		{"rate_above_100", func(c *EngineConfig) { c.Commission.DefaultRate = 101 }},
		{"empty_category", func(c *EngineConfig) { c.Commission.CategoryName = " " }},
		{"zero_horizon", func(c *EngineConfig) { c.Recurrence.HorizonMonths = 0 }},
		{"zero_lookahead", func(c *EngineConfig) { c.Recurrence.TemplateLookahead = 0 }},
		{"zero_batch", func(c *EngineConfig) { c.Reconcile.BatchSize = 0 }},
		{"zero_concurrency", func(c *EngineConfig) { c.Sync.Concurrency = 0 }},
		{"zero_burst", func(c *EngineConfig) { c.Sync.Burst = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			assert.Error(t, ValidateEngineConfig(cfg))
		})
	}
}

func TestNewEngineConfigHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`engine:
  systemOwnerId: 77
  commission:
    defaultRate: 7.5
  recurrence:
    horizonMonths: 6
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "engine.yml"), content, 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	holder, err := NewEngineConfigHolder(zaptest.NewLogger(t))
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, int64(77), cfg.SystemOwnerID)
	assert.Equal(t, 7.5, cfg.Commission.DefaultRate)
	assert.Equal(t, 6, cfg.Recurrence.HorizonMonths)
	assert.Equal(t, "Sales Commissions", cfg.Commission.CategoryName)
	assert.Equal(t, 3, cfg.Recurrence.TemplateLookahead)
}

func TestEngineConfigHolderNilFallsBackToDefaults(t *testing.T) {
	var holder *EngineConfigHolder
	assert.Equal(t, DefaultEngineConfig(), holder.Get())
}
