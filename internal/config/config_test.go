package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/configs"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 60, cfg.Retrieval.RRFConstant)
	assert.Equal(t, 0.7, cfg.Retrieval.Alpha)
	assert.Equal(t, "checkpoint", cfg.Build.TimeoutStrategy)
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Build, cfg.Build)
}

func TestLoad_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foundry.yaml")
	data := `
build:
  max_sources_per_build: 5
  fetch_concurrency: 2
  embedding_batch_size: 25
  build_timeout_ms: 120000
  timeout_strategy: skip
  max_blob_bytes: 1048576
retrieval:
  alpha: 0.5
  rrf_constant: 60
  keyword_backend: bleve
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Build.MaxSourcesPerBuild)
	assert.Equal(t, "skip", cfg.Build.TimeoutStrategy)
	assert.Equal(t, 0.5, cfg.Retrieval.Alpha)
	assert.Equal(t, "bleve", cfg.Retrieval.KeywordBackend)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvProjectsDir, "/tmp/proj")
	t.Setenv(EnvRunsDir, "/tmp/runs")
	t.Setenv(EnvPort, "9191")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/proj", cfg.Paths.ProjectsDir)
	assert.Equal(t, "/tmp/runs", cfg.Paths.RunsDir)
	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestValidate_Bounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"max_sources too high", func(c *Config) { c.Build.MaxSourcesPerBuild = 51 }},
		{"concurrency too high", func(c *Config) { c.Build.FetchConcurrency = 11 }},
		{"batch too small", func(c *Config) { c.Build.EmbeddingBatchSize = 9 }},
		{"timeout too small", func(c *Config) { c.Build.BuildTimeoutMS = 1000 }},
		{"bad strategy", func(c *Config) { c.Build.TimeoutStrategy = "abort" }},
		{"bad alpha", func(c *Config) { c.Retrieval.Alpha = 1.5 }},
		{"bad backend", func(c *Config) { c.Retrieval.KeywordBackend = "lucene" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "foundry.yaml")
	cfg := Default()
	cfg.Build.MaxSourcesPerBuild = 7
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Build.MaxSourcesPerBuild)
}

func TestLoad_EmbeddedTemplate(t *testing.T) {
	t.Setenv(EnvProjectsDir, "")
	t.Setenv(EnvRunsDir, "")
	t.Setenv(EnvPort, "")

	path := filepath.Join(t.TempDir(), "foundry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configs.WorkspaceConfigTemplate), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
