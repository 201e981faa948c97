package ui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/build"
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/retrieve"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/workspace"
)

// snippetLen bounds the text shown per search hit.
const snippetLen = 200

// Renderer writes human-readable command output.
type Renderer struct {
	out    io.Writer
	styles Styles
}

// New picks styling from the environment: styled on an interactive
// terminal, plain for pipes, CI, NO_COLOR, or when forced.
func New(out io.Writer, forcePlain bool) *Renderer {
	plain := forcePlain || !IsTTY(out) || DetectCI() || DetectNoColor()
	return &Renderer{out: out, styles: GetStyles(plain)}
}

// IsTTY reports whether the writer is an interactive terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor honors the NO_COLOR convention.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI reports whether a CI environment is detected.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}

func (r *Renderer) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

// Err prints a failure with its code and suggestion when present.
func (r *Renderer) Err(err error) {
	r.printf("%s %s\n", r.styles.Error.Render("error["+ferrors.GetCode(err)+"]:"), err.Error())
	var fe *ferrors.FoundryError
	if errors.As(err, &fe) && fe.Suggestion != "" {
		r.printf("%s %s\n", r.styles.Dim.Render("hint:"), fe.Suggestion)
	}
}

// BuildResult prints the outcome of one build invocation.
func (r *Renderer) BuildResult(projectID string, res *build.Result) {
	s := r.styles
	label := s.Success.Render("build " + string(res.Status))
	if !res.Success {
		label = s.Error.Render("build " + string(res.Status))
	}
	if res.DryRun {
		label = s.Warning.Render("dry run")
	}
	r.printf("%s %s\n", s.Header.Render(projectID+":"), label)

	r.printf("  %s %d processed, %d remaining\n",
		s.Label.Render("sources:"), res.Progress.ProcessedThisRun, res.Progress.Remaining)
	r.printf("  %s %d chunks, %d vectors\n",
		s.Label.Render("indexed:"), res.ChunksAdded, res.VectorsAdded)
	if res.Metrics.TokensUsed > 0 {
		r.printf("  %s %d tokens ($%.4f)\n",
			s.Label.Render("embedding:"), res.Metrics.TokensUsed, res.Metrics.EstimatedCostUSD)
	}
	r.printf("  %s %s\n",
		s.Label.Render("duration:"), (time.Duration(res.Metrics.DurationMS) * time.Millisecond).String())

	if res.Progress.HasMore && res.Progress.CheckpointID != "" {
		r.printf("  %s resume with --resume (checkpoint %s)\n",
			s.Warning.Render("incomplete:"), res.Progress.CheckpointID)
	}
	for _, se := range res.Errors {
		r.printf("  %s %s: %s\n", s.Error.Render("failed:"), se.SourceID, se.Message)
		if se.Suggestion != "" {
			r.printf("    %s %s\n", s.Dim.Render("hint:"), se.Suggestion)
		}
	}
}

// SearchResult prints scored hits with truncated snippets.
func (r *Renderer) SearchResult(res *retrieve.Result) {
	s := r.styles
	if len(res.Hits) == 0 {
		r.printf("%s\n", s.Dim.Render("no results ("+string(res.Mode)+")"))
		return
	}
	r.printf("%s %d hits (%s)\n", s.Header.Render("results:"), len(res.Hits), res.Mode)
	for i, hit := range res.Hits {
		c := hit.Chunk
		head := fmt.Sprintf("%2d. %s", i+1, shortID(c.ID))
		if hit.Expanded {
			head = fmt.Sprintf("    %s %s", s.Dim.Render("ctx"), shortID(c.ID))
		} else {
			head += " " + s.Score.Render(fmt.Sprintf("%.4f", hit.Score))
		}
		if title := c.Metadata.Title; title != "" {
			head += " " + s.Label.Render(title)
		}
		r.printf("%s\n", head)
		r.printf("    %s\n", snippet(c.Text))
	}
}

// Sources prints one line per registered source.
func (r *Renderer) Sources(sources []workspace.SourceRecord) {
	s := r.styles
	if len(sources) == 0 {
		r.printf("%s\n", s.Dim.Render("no sources"))
		return
	}
	for _, src := range sources {
		status := s.Dim.Render(string(src.Status))
		switch src.Status {
		case workspace.StatusCompleted:
			status = s.Success.Render(string(src.Status))
		case workspace.StatusFailed:
			status = s.Error.Render(string(src.Status))
		}
		r.printf("%s  %-7s %-9s %s", s.Value.Render(src.ID), src.Type, status, src.URI)
		if src.ChunkCount > 0 {
			r.printf(" %s", s.Label.Render(fmt.Sprintf("(%d chunks)", src.ChunkCount)))
		}
		r.printf("\n")
		if src.LastError != "" {
			r.printf("  %s %s\n", s.Error.Render("last error:"), src.LastError)
		}
	}
}

// Projects prints one line per project manifest.
func (r *Renderer) Projects(projects []*workspace.Project) {
	s := r.styles
	if len(projects) == 0 {
		r.printf("%s\n", s.Dim.Render("no projects"))
		return
	}
	for _, p := range projects {
		r.printf("%s  %-9s %s/%s  %d chunks, %d vectors\n",
			s.Header.Render(p.ID),
			p.Status,
			p.Model.Provider, p.Model.Model,
			p.Stats.ChunksTotal, p.Stats.VectorsTotal)
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > snippetLen {
		return text[:snippetLen] + "..."
	}
	return text
}
