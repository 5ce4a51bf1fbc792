package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_AllDefaultsApply(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "jj", cfg.VCS.Binary)
	assert.Equal(t, 20, cfg.Loop.MaxIterations)
	assert.Equal(t, 2, cfg.Loop.BadIterationRetries)
	assert.Equal(t, 3, cfg.Backpressure.Escalation.FailureWindow)
	assert.Equal(t, 2, cfg.Backpressure.Escalation.FailureThreshold)
	assert.NotEmpty(t, cfg.ProtectedFiles)
	assert.Equal(t, 200, cfg.OpLog.PollIntervalMS)
	assert.Equal(t, "description", cfg.Metadata.Backend)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_OverlaysRecognisedKeys(t *testing.T) {
	dir := t.TempDir()
	hoxDir := filepath.Join(dir, ".hox")
	require.NoError(t, os.MkdirAll(hoxDir, 0o755))

	contents := `
protected_files = [".git/**", "custom-secret.yaml"]

[loop]
max_iterations = 5
max_budget_usd = 1.50

[backpressure.escalation]
failure_window = 4
failure_threshold = 3

[oplog]
poll_interval_ms = 500
`
	require.NoError(t, os.WriteFile(filepath.Join(hoxDir, "config.toml"), []byte(contents), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Loop.MaxIterations)
	assert.Equal(t, 1.50, cfg.Loop.MaxBudgetUSD)
	assert.Equal(t, 4, cfg.Backpressure.Escalation.FailureWindow)
	assert.Equal(t, []string{".git/**", "custom-secret.yaml"}, cfg.ProtectedFiles)
	assert.Equal(t, 500, cfg.OpLog.PollIntervalMS)
	// Untouched sections keep their defaults.
	assert.Equal(t, "jj", cfg.VCS.Binary)
}

func TestPollInterval(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 200*time.Millisecond, cfg.PollInterval())

	cfg.OpLog.PollIntervalMS = 0
	assert.Equal(t, 200*time.Millisecond, cfg.PollInterval())
}
