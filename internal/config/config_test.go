package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EHR_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Server.RunTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "exports", cfg.Paths.ExportDir)

	assert.Equal(t, 10, cfg.Pipeline.CardinalityThreshold)
	assert.Equal(t, 3.0, cfg.Pipeline.OutlierSigma)
	assert.Equal(t, 0.001, cfg.Pipeline.ConvergenceEpsilon)
	assert.Equal(t, 10, cfg.Pipeline.MaxIterations)
	assert.Equal(t, 5, cfg.Pipeline.Neighbors)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.False(t, cfg.Pipeline.EncodeMissing)
	assert.Equal(t, "one_hot", cfg.Pipeline.EncodingStrategy)
	assert.Equal(t, "mean", cfg.Pipeline.ImputationStrategy)
	assert.Contains(t, cfg.Pipeline.DateFormats, "2006-01-02")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "ehrkit.yaml")
	content := `
server:
  port: 9090
pipeline:
  cardinality_threshold: 25
  encoding_strategy: ordinal
`
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0o644))
	t.Setenv("EHR_CONFIG_FILE", configFile)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Pipeline.CardinalityThreshold)
	assert.Equal(t, "ordinal", cfg.Pipeline.EncodingStrategy)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "ehrkit.yaml")
	content := `
server:
  port: 9090
pipeline:
  encoding_strategy: ordinal
`
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0o644))
	t.Setenv("EHR_CONFIG_FILE", configFile)
	t.Setenv("EHR_SERVER_PORT", "7070")
	t.Setenv("EHR_PIPELINE_ENCODING_STRATEGY", "hash")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "hash", cfg.Pipeline.EncodingStrategy)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown encoding strategy", key: "EHR_PIPELINE_ENCODING_STRATEGY", value: "bogus"},
		{name: "unknown imputation strategy", key: "EHR_PIPELINE_IMPUTATION_STRATEGY", value: "guess"},
		{name: "cardinality threshold below minimum", key: "EHR_PIPELINE_CARDINALITY_THRESHOLD", value: "1"},
		{name: "negative outlier sigma", key: "EHR_PIPELINE_OUTLIER_SIGMA", value: "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("EHR_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestEnsureDirs(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		Paths: PathsConfig{
			DataDir:   filepath.Join(dir, "data"),
			ExportDir: filepath.Join(dir, "exports"),
			LogsDir:   filepath.Join(dir, "logs"),
		},
	}

	require.NoError(t, cfg.EnsureDirs())
	for _, d := range []string{cfg.Paths.DataDir, cfg.Paths.ExportDir, cfg.Paths.LogsDir} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
