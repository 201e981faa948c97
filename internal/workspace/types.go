// Package workspace owns the on-disk project layout: the project manifest,
// the source ledger, the append-only chunk and vector logs, and checkpoints.
// All writes are atomic; readers tolerate a trailing partial JSONL line.
package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"time"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/chunk"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/embed"
)

// MaxProjectIDLen bounds project slugs.
const MaxProjectIDLen = 64

var projectIDRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// ValidProjectID reports whether id is a legal project slug.
func ValidProjectID(id string) bool {
	return len(id) > 0 && len(id) <= MaxProjectIDLen && projectIDRe.MatchString(id)
}

// SourceType identifies how a source is fetched.
type SourceType string

const (
	SourceURL     SourceType = "url"
	SourceSitemap SourceType = "sitemap"
	SourceFolder  SourceType = "folder"
	SourcePDF     SourceType = "pdf"
)

// ValidSourceType reports whether t is a known source type.
func ValidSourceType(t SourceType) bool {
	switch t {
	case SourceURL, SourceSitemap, SourceFolder, SourcePDF:
		return true
	}
	return false
}

// SourceStatus is the per-source build state.
type SourceStatus string

const (
	StatusPending   SourceStatus = "pending"
	StatusFetching  SourceStatus = "fetching"
	StatusChunking  SourceStatus = "chunking"
	StatusEmbedding SourceStatus = "embedding"
	StatusCompleted SourceStatus = "completed"
	StatusFailed    SourceStatus = "failed"
)

// SourceOptions are per-source fetch settings frozen when the source is
// added. Sitemap sources use Include/Exclude/MaxPages/Concurrency; folder
// sources use Glob/Exclude.
type SourceOptions struct {
	Include     []string `json:"include,omitempty"`
	Exclude     []string `json:"exclude,omitempty"`
	Glob        string   `json:"glob,omitempty"`
	MaxPages    int      `json:"max_pages,omitempty"`
	Concurrency int      `json:"concurrency,omitempty"`
	TimeoutMS   int      `json:"timeout_ms,omitempty"`
}

// SourceRecord is one line of sources.jsonl. Identity and URI never change;
// status updates append a new full record and the reader keeps the last one
// per id.
type SourceRecord struct {
	ID         string         `json:"source_id"`
	Type       SourceType     `json:"type"`
	URI        string         `json:"uri"`
	Name       string         `json:"name,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Options    *SourceOptions `json:"options,omitempty"`
	AddedAt    time.Time      `json:"added_at"`
	Status     SourceStatus   `json:"status"`
	LastError  string         `json:"last_error,omitempty"`
	ChunkCount int            `json:"chunk_count,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// ProjectStatus is the overall build status recorded in the manifest.
type ProjectStatus string

const (
	ProjectIdle      ProjectStatus = "idle"
	ProjectRunning   ProjectStatus = "running"
	ProjectCompleted ProjectStatus = "completed"
	ProjectFailed    ProjectStatus = "failed"
	ProjectPartial   ProjectStatus = "partial"
)

// PhaseManifest is the audit record for one pipeline phase of a build.
type PhaseManifest struct {
	Phase       string    `json:"phase"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	InputCount  int       `json:"input_count"`
	OutputCount int       `json:"output_count"`
	InputHash   string    `json:"input_hash,omitempty"`
	OutputHash  string    `json:"output_hash,omitempty"`
	ToolVersion string    `json:"tool_version,omitempty"`
	Errors      []string  `json:"errors,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
}

// ProjectStats are the aggregate totals kept in the project manifest.
type ProjectStats struct {
	SourcesTotal     int     `json:"sources_total"`
	SourcesCompleted int     `json:"sources_completed"`
	SourcesFailed    int     `json:"sources_failed"`
	ChunksTotal      int     `json:"chunks_total"`
	VectorsTotal     int     `json:"vectors_total"`
	TokensUsed       int     `json:"tokens_used"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
	ErrorsTotal      int     `json:"errors_total"`
}

// Project is the project.json manifest.
type Project struct {
	ID          string                `json:"project_id"`
	Description string                `json:"description,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	Status      ProjectStatus         `json:"status"`
	Model       embed.ModelDescriptor `json:"model"`
	Chunking    chunk.Config          `json:"chunking"`
	ConfigHash  string                `json:"config_hash"`
	Stats       ProjectStats          `json:"stats"`
	Phases      []PhaseManifest       `json:"phases,omitempty"`
}

// ConfigHash hashes the frozen model and chunking configuration. Builds
// record it so a config drift between build and resume is detectable.
func ConfigHash(model embed.ModelDescriptor, chunking chunk.Config) string {
	payload, _ := json.Marshal(struct {
		Model    embed.ModelDescriptor `json:"model"`
		Chunking chunk.Config          `json:"chunking"`
	}{model, chunking})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// InProgressSource marks partial progress on the source a build was working
// on when the checkpoint was written.
type InProgressSource struct {
	SourceID   string       `json:"source_id"`
	Phase      SourceStatus `json:"phase"`
	ChunksDone int          `json:"chunks_done,omitempty"`
}

// CheckpointStats are the aggregates accumulated up to a checkpoint.
type CheckpointStats struct {
	ChunksAdded  int   `json:"chunks_added"`
	VectorsAdded int   `json:"vectors_added"`
	TokensUsed   int   `json:"tokens_used"`
	DurationMS   int64 `json:"duration_ms"`
}

// Checkpoint is a durable prefix of a build: resuming from it and finishing
// the remaining sources yields the same final state as one uninterrupted
// build.
type Checkpoint struct {
	ID                 string            `json:"checkpoint_id"`
	ProjectID          string            `json:"project_id"`
	ConfigHash         string            `json:"config_hash,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	CompletedSourceIDs []string          `json:"completed_source_ids"`
	InProgress         *InProgressSource `json:"in_progress,omitempty"`
	Stats              CheckpointStats   `json:"stats"`
}
