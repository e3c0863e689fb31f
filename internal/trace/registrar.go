// Package trace builds the prompt/output evidence bundle that ships in
// the same commit as the change itself, and verifies after commit that
// the bundle and its commit trailers agree.
package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/issueforge/issueforge/internal/config"
	"github.com/issueforge/issueforge/internal/gitx"
	"github.com/issueforge/issueforge/internal/prompt"
	"github.com/issueforge/issueforge/internal/runstore"
)

// Trailer keys appended to the commit message.
const (
	TrailerFile = "Trace-File"
	TrailerSHA  = "Trace-SHA256"
)

// Registrar assembles and verifies the trace bundle for one run.
type Registrar struct {
	git     gitx.Runner
	run     *runstore.Dir
	repoDir string
	cfg     config.TraceConfig
}

// NewRegistrar creates a Registrar.
func NewRegistrar(git gitx.Runner, run *runstore.Dir, repoDir string, cfg config.TraceConfig) *Registrar {
	return &Registrar{git: git, run: run, repoDir: repoDir, cfg: cfg}
}

// Registration describes a registered trace bundle.
type Registration struct {
	Status         string `json:"status"` // "registered", "skipped", or "failed"
	File           string `json:"file,omitempty"`
	SHA256         string `json:"sha256,omitempty"`
	CommitAppendix string `json:"-"`
}

var attemptArtifactRe = regexp.MustCompile(`_attempt_(\d+)\.md$`)

// Register renders the bundle path, assembles the bundle from run
// artifacts, writes it into both the run dir and the repo, and returns
// the commit trailer appendix. Disabled tracing yields a skipped
// registration so the status still shows up in the run artifacts.
func (r *Registrar) Register(vars prompt.Vars) (*Registration, error) {
	if !r.cfg.Enabled {
		reg := &Registration{Status: "skipped"}
		if err := r.run.WriteJSON("trace_status.json", reg); err != nil {
			return nil, err
		}
		return reg, nil
	}

	relPath, err := prompt.Render(r.cfg.ArtifactPath, vars)
	if err != nil {
		return nil, fmt.Errorf("render trace path: %w", err)
	}
	relPath = filepath.ToSlash(filepath.Clean(relPath))
	if filepath.IsAbs(relPath) || relPath == ".." || strings.HasPrefix(relPath, "../") {
		return nil, fmt.Errorf("trace path %q escapes the repository", relPath)
	}

	bundle, err := r.buildBundle()
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256([]byte(bundle))
	digest := hex.EncodeToString(sum[:])

	if err := r.run.WriteArtifact("trace_bundle.md", []byte(bundle)); err != nil {
		return nil, err
	}
	repoPath := filepath.Join(r.repoDir, relPath)
	if err := os.MkdirAll(filepath.Dir(repoPath), 0o755); err != nil {
		return nil, fmt.Errorf("create trace dir in repo: %w", err)
	}
	if err := os.WriteFile(repoPath, []byte(bundle), 0o644); err != nil {
		return nil, fmt.Errorf("write trace bundle into repo: %w", err)
	}

	reg := &Registration{Status: "registered", File: relPath, SHA256: digest}
	if r.cfg.AppendTrailers {
		reg.CommitAppendix = fmt.Sprintf("%s: %s\n%s: %s", TrailerFile, relPath, TrailerSHA, digest)
	}
	if err := r.run.WriteJSON("trace_status.json", reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// buildBundle renders one markdown document from the run artifacts:
// prompts in invocation order, then per-attempt outputs and gate
// reports, then the plan and review. Every section carries its own
// content hash so a single edited section is detectable even without
// the commit trailers.
func (r *Registrar) buildBundle() (string, error) {
	var b strings.Builder
	b.WriteString("# Run Trace\n")

	sections := []string{"planner_prompt.md"}
	sections = append(sections, r.attemptArtifacts("coder_prompt_attempt_")...)
	sections = append(sections, "reviewer_prompt.md")
	sections = append(sections, r.attemptArtifacts("coder_output_attempt_")...)
	sections = append(sections, r.attemptArtifacts("validation_attempt_")...)
	sections = append(sections, "plan.md", "review.md")

	for _, name := range sections {
		if !r.run.HasArtifact(name) {
			continue
		}
		data, err := r.run.ReadArtifact(name)
		if err != nil {
			return "", err
		}
		sum := sha256.Sum256(data)
		fmt.Fprintf(&b, "\n## %s\n", name)
		fmt.Fprintf(&b, "SHA256: %s\n\n", hex.EncodeToString(sum[:]))
		fmt.Fprintf(&b, "````\n%s\n````\n", clip(string(data), r.cfg.MaxSectionChars))
	}
	return b.String(), nil
}

// attemptArtifacts lists run artifacts with the given prefix sorted by
// attempt number, not lexically, so attempt 10 follows attempt 9.
func (r *Registrar) attemptArtifacts(prefix string) []string {
	files, err := r.run.ListFiles()
	if err != nil {
		return nil
	}
	type numbered struct {
		name string
		n    int
	}
	var found []numbered
	for _, f := range files {
		if !strings.HasPrefix(f, prefix) {
			continue
		}
		m := attemptArtifactRe.FindStringSubmatch(f)
		if m == nil {
			continue
		}
		n := 0
		fmt.Sscanf(m[1], "%d", &n)
		found = append(found, numbered{name: f, n: n})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })
	names := make([]string, len(found))
	for i, f := range found {
		names[i] = f.name
	}
	return names
}

func clip(s string, max int) string {
	if max <= 0 {
		max = 6000
	}
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... (truncated)"
}
