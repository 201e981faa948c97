// Package preflight validates the environment before builds and serving:
// workspace writability, disk space, file descriptor limits, and embedding
// credentials. Checks report rather than fail; the doctor command renders
// them and callers decide what is fatal.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/embed"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/workspace"
)

// Thresholds.
const (
	// MinDiskSpaceBytes is the free-space floor for the projects dir.
	MinDiskSpaceBytes = 100 * 1024 * 1024

	// MinFileDescriptors covers concurrent fetches plus log files.
	MinFileDescriptors = 1024
)

// Status is the outcome of one check.
type Status int

const (
	StatusPass Status = iota
	StatusWarn
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// Result is one check outcome.
type Result struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Message  string `json:"message"`
	Details  string `json:"details,omitempty"`
	Required bool   `json:"required"`
}

// IsCritical reports a required check that failed.
func (r Result) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Run executes every check against the projects directory. When store is
// non-nil, each project's embedding credentials are checked too.
func Run(projectsDir string, store *workspace.Store) []Result {
	results := []Result{
		CheckWorkspace(projectsDir),
		CheckDiskSpace(projectsDir),
		CheckFileDescriptors(),
	}
	if store != nil {
		if projects, err := store.ListProjects(); err == nil {
			for _, p := range projects {
				results = append(results, CheckCredentials(p))
			}
		}
	}
	return results
}

// CheckWorkspace verifies the projects directory can be created and written.
func CheckWorkspace(dir string) Result {
	r := Result{Name: "workspace", Required: true}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("cannot create %s: %v", dir, err)
		return r
	}
	probe := filepath.Join(dir, ".preflight")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("cannot write to %s: %v", dir, err)
		return r
	}
	_ = os.Remove(probe)
	r.Status = StatusPass
	r.Message = dir + " is writable"
	return r
}

// CheckDiskSpace verifies free space at the projects directory.
func CheckDiskSpace(dir string) Result {
	r := Result{Name: "disk_space", Required: true}
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		r.Status = StatusWarn
		r.Message = fmt.Sprintf("cannot stat filesystem: %v", err)
		return r
	}
	free := stat.Bavail * uint64(stat.Bsize)
	r.Message = fmt.Sprintf("%s free (minimum 100 MB)", formatBytes(free))
	if free < MinDiskSpaceBytes {
		r.Status = StatusFail
		return r
	}
	r.Status = StatusPass
	return r
}

// CheckFileDescriptors verifies the open-file limit.
func CheckFileDescriptors() Result {
	r := Result{Name: "file_descriptors", Required: false}
	var lim syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &lim); err != nil {
		r.Status = StatusWarn
		r.Message = fmt.Sprintf("cannot read limit: %v", err)
		return r
	}
	r.Message = fmt.Sprintf("%d (minimum %d)", lim.Cur, MinFileDescriptors)
	if lim.Cur < MinFileDescriptors {
		r.Status = StatusWarn
		r.Details = "raise it with: ulimit -n 10240"
		return r
	}
	r.Status = StatusPass
	return r
}

// CheckCredentials verifies a project's embedding provider is usable: the
// static provider always is; openai needs its API key in the environment.
func CheckCredentials(p *workspace.Project) Result {
	r := Result{Name: "credentials:" + p.ID, Required: false}
	if p.Model.Provider != embed.ProviderOpenAI {
		r.Status = StatusPass
		r.Message = p.Model.String() + " needs no credentials"
		return r
	}
	keyEnv := p.Model.APIKeyEnv
	if keyEnv == "" {
		keyEnv = embed.DefaultAPIKeyEnv
	}
	if os.Getenv(keyEnv) == "" {
		r.Status = StatusFail
		r.Message = keyEnv + " is not set"
		r.Details = "builds for " + p.ID + " will fail with MissingApiKey"
		return r
	}
	r.Status = StatusPass
	r.Message = keyEnv + " is set"
	return r
}

func formatBytes(bytes uint64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/gb)
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/kb)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
