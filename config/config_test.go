package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  mode: release\n"))
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, 1024, cfg.Pipeline.MaxDimension)
	assert.Equal(t, "foreground", cfg.Pipeline.MaskPolarity)
	assert.False(t, cfg.Segmenter.AllowLocalModels)
	assert.True(t, cfg.Segmenter.UseCache)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
}

func TestLoad_Overrides(t *testing.T) {
	content := `
pipeline:
  max_dimension: 512
  mask_polarity: background
segmenter:
  endpoint: http://segmenter:9000/
  timeout: 5s
session:
  ttl: 10m
  sweep_spec: "@every 30s"
`
	cfg, err := Load(writeConfig(t, content))
	require.NoError(t, err)

	assert.Equal(t, 512, cfg.Pipeline.MaxDimension)
	assert.Equal(t, "background", cfg.Pipeline.MaskPolarity)
	assert.Equal(t, "http://segmenter:9000/", cfg.Segmenter.Endpoint)
	assert.Equal(t, 5*time.Second, cfg.Segmenter.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.Session.TTL)
	assert.Equal(t, "@every 30s", cfg.Session.SweepSpec)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("BGVANISH_PIPELINE_MAX_DIMENSION", "256")

	cfg, err := Load(writeConfig(t, "server:\n  port: \":9090\"\n"))
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Pipeline.MaxDimension)
	assert.Equal(t, ":9090", cfg.Server.Port)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"非正数最大边", "pipeline:\n  max_dimension: 0\n", "max_dimension"},
		{"未知极性", "pipeline:\n  mask_polarity: auto\n", "mask_polarity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestNew_FallsBackToDefault(t *testing.T) {
	t.Setenv("BGVANISH_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestNew_RejectsInvalidFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"极性拼写错误", "pipeline:\n  mask_polarity: backgrnd\n", "mask_polarity"},
		{"YAML 格式错误", "pipeline: [\n", "read config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BGVANISH_CONFIG", writeConfig(t, tt.content))
			cfg, err := New()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_ReadsFile(t *testing.T) {
	t.Setenv("BGVANISH_CONFIG", writeConfig(t, "pipeline:\n  mask_polarity: background\n"))
	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "background", cfg.Pipeline.MaskPolarity)
}
