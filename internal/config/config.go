// Package config loads and validates the Index Foundry workspace
// configuration. Configuration comes from an optional YAML file with
// environment-variable overrides layered on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Environment variables recognized by the workspace.
const (
	// EnvProjectsDir overrides the projects base directory.
	EnvProjectsDir = "FOUNDRY_PROJECTS_DIR"
	// EnvRunsDir overrides the runs base directory.
	EnvRunsDir = "FOUNDRY_RUNS_DIR"
	// EnvPort overrides the search server listen port.
	EnvPort = "PORT"
)

// Config is the complete workspace configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Paths     PathsConfig     `yaml:"paths" json:"paths"`
	Build     BuildConfig     `yaml:"build" json:"build"`
	Retrieval RetrievalConfig `yaml:"retrieval" json:"retrieval"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
}

// PathsConfig configures workspace base directories.
type PathsConfig struct {
	// ProjectsDir is the base directory for project workspaces (default ./projects).
	ProjectsDir string `yaml:"projects_dir" json:"projects_dir"`
	// RunsDir is the base directory for run workspaces (default ./runs).
	RunsDir string `yaml:"runs_dir" json:"runs_dir"`
}

// BuildConfig configures build orchestrator defaults.
type BuildConfig struct {
	MaxSourcesPerBuild int    `yaml:"max_sources_per_build" json:"max_sources_per_build"`
	FetchConcurrency   int    `yaml:"fetch_concurrency" json:"fetch_concurrency"`
	EmbeddingBatchSize int    `yaml:"embedding_batch_size" json:"embedding_batch_size"`
	BuildTimeoutMS     int    `yaml:"build_timeout_ms" json:"build_timeout_ms"`
	TimeoutStrategy    string `yaml:"timeout_strategy" json:"timeout_strategy"`
	MaxBlobBytes       int64  `yaml:"max_blob_bytes" json:"max_blob_bytes"`
}

// RetrievalConfig configures the hybrid retriever.
type RetrievalConfig struct {
	// Alpha is the hybrid fusion weight for the semantic list (default 0.7).
	Alpha float64 `yaml:"alpha" json:"alpha"`
	// RRFConstant is the RRF smoothing parameter k (fixed at 60 by default).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`
	// KeywordBackend selects the keyword scorer: "native" (term-frequency,
	// default) or "bleve" (BM25).
	KeywordBackend string `yaml:"keyword_backend" json:"keyword_backend"`
	// Approximate enables HNSW candidate generation for semantic search.
	// Default false: exact brute-force cosine scoring.
	Approximate bool `yaml:"approximate" json:"approximate"`
	// AllowedFilterFields declares metadata fields usable in filters.
	AllowedFilterFields []string `yaml:"allowed_filter_fields" json:"allowed_filter_fields"`
}

// ServerConfig configures the search server.
type ServerConfig struct {
	Port     int    `yaml:"port" json:"port"`
	LogLevel string `yaml:"log_level" json:"log_level"`
	// Metrics enables the Prometheus /metrics endpoint.
	Metrics bool `yaml:"metrics" json:"metrics"`
}

// TelemetryConfig configures query telemetry persistence.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			ProjectsDir: "./projects",
			RunsDir:     "./runs",
		},
		Build: BuildConfig{
			MaxSourcesPerBuild: 10,
			FetchConcurrency:   3,
			EmbeddingBatchSize: 50,
			BuildTimeoutMS:     300_000,
			TimeoutStrategy:    "checkpoint",
			MaxBlobBytes:       100 * 1024 * 1024,
		},
		Retrieval: RetrievalConfig{
			Alpha:          0.7,
			RRFConstant:    60,
			KeywordBackend: "native",
			AllowedFilterFields: []string{
				"content_type", "language", "title", "tags", "source_id", "doc_id",
			},
		},
		Server: ServerConfig{
			Port:     8080,
			LogLevel: "info",
			Metrics:  true,
		},
		Telemetry: TelemetryConfig{Enabled: true},
	}
}

// Load reads configuration from path (if it exists), applies environment
// overrides, and validates the result. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers environment-variable overrides onto cfg.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvProjectsDir); v != "" {
		c.Paths.ProjectsDir = v
	}
	if v := os.Getenv(EnvRunsDir); v != "" {
		c.Paths.RunsDir = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 && port < 65536 {
			c.Server.Port = port
		}
	}
}

// Validate checks ranges and enum values.
func (c *Config) Validate() error {
	if c.Build.MaxSourcesPerBuild < 1 || c.Build.MaxSourcesPerBuild > 50 {
		return fmt.Errorf("build.max_sources_per_build must be in [1,50], got %d", c.Build.MaxSourcesPerBuild)
	}
	if c.Build.FetchConcurrency < 1 || c.Build.FetchConcurrency > 10 {
		return fmt.Errorf("build.fetch_concurrency must be in [1,10], got %d", c.Build.FetchConcurrency)
	}
	if c.Build.EmbeddingBatchSize < 10 || c.Build.EmbeddingBatchSize > 100 {
		return fmt.Errorf("build.embedding_batch_size must be in [10,100], got %d", c.Build.EmbeddingBatchSize)
	}
	if c.Build.BuildTimeoutMS < 60_000 || c.Build.BuildTimeoutMS > 1_800_000 {
		return fmt.Errorf("build.build_timeout_ms must be in [60000,1800000], got %d", c.Build.BuildTimeoutMS)
	}
	switch c.Build.TimeoutStrategy {
	case "skip", "checkpoint", "split":
	default:
		return fmt.Errorf("build.timeout_strategy must be one of skip, checkpoint, split; got %q", c.Build.TimeoutStrategy)
	}
	if c.Retrieval.Alpha < 0 || c.Retrieval.Alpha > 1 {
		return fmt.Errorf("retrieval.alpha must be in [0,1], got %v", c.Retrieval.Alpha)
	}
	switch c.Retrieval.KeywordBackend {
	case "native", "bleve":
	default:
		return fmt.Errorf("retrieval.keyword_backend must be native or bleve, got %q", c.Retrieval.KeywordBackend)
	}
	return nil
}

// Save writes the configuration as YAML via temp file + rename.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Rename(tmp, path)
}
