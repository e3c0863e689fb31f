// Package ailogs archives the raw agent logs of a run into the
// repository and optionally publishes them to a dedicated logs branch
// so the feature branch history stays clean.
package ailogs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/issueforge/issueforge/internal/config"
	"github.com/issueforge/issueforge/internal/gitx"
	"github.com/issueforge/issueforge/internal/prompt"
	"github.com/issueforge/issueforge/internal/runstore"
)

// Archiver copies run artifacts into the repo and publishes them.
type Archiver struct {
	git     gitx.Runner
	run     *runstore.Dir
	repoDir string
	cfg     config.AILogsConfig
}

// NewArchiver creates an Archiver.
func NewArchiver(git gitx.Runner, run *runstore.Dir, repoDir string, cfg config.AILogsConfig) *Archiver {
	return &Archiver{git: git, run: run, repoDir: repoDir, cfg: cfg}
}

// Bundle describes the archived log set inside the repo.
type Bundle struct {
	Status    string   `json:"status"` // "archived", "skipped", or "failed"
	Dir       string   `json:"dir,omitempty"`
	IndexFile string   `json:"index_file,omitempty"`
	Paths     []string `json:"paths,omitempty"` // repo-relative, index included
	FileCount int      `json:"file_count"`
	Required  bool     `json:"required"`
}

// Save copies every run artifact into the templated repo directory and
// writes an index listing what the archive contains. Disabled
// archiving still records a skipped status artifact.
func (a *Archiver) Save(vars prompt.Vars) (*Bundle, error) {
	if !a.cfg.Enabled {
		b := &Bundle{Status: "skipped", Required: a.cfg.Required}
		if err := a.run.WriteJSON("ailogs_status.json", b); err != nil {
			return nil, err
		}
		return b, nil
	}

	relDir, err := prompt.Render(a.cfg.Path, vars)
	if err != nil {
		return nil, fmt.Errorf("render ai-logs path: %w", err)
	}
	relDir = filepath.ToSlash(filepath.Clean(relDir))
	if filepath.IsAbs(relDir) || relDir == ".." || strings.HasPrefix(relDir, "../") {
		return nil, fmt.Errorf("ai-logs path %q escapes the repository", relDir)
	}

	files, err := a.run.ListFiles()
	if err != nil {
		return nil, err
	}

	destRoot := filepath.Join(a.repoDir, relDir)
	var paths []string
	for _, f := range files {
		data, err := a.run.ReadArtifact(f)
		if err != nil {
			return nil, err
		}
		dest := filepath.Join(destRoot, f)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, fmt.Errorf("create ai-logs dir: %w", err)
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return nil, fmt.Errorf("copy artifact %s: %w", f, err)
		}
		paths = append(paths, filepath.ToSlash(filepath.Join(relDir, f)))
	}

	indexName := a.cfg.IndexFile
	if indexName == "" {
		indexName = "index.md"
	}
	index := a.renderIndex(vars, files)
	indexPath := filepath.Join(destRoot, indexName)
	if err := os.WriteFile(indexPath, []byte(index), 0o644); err != nil {
		return nil, fmt.Errorf("write ai-logs index: %w", err)
	}
	paths = append(paths, filepath.ToSlash(filepath.Join(relDir, indexName)))
	sort.Strings(paths)

	b := &Bundle{
		Status:    "archived",
		Dir:       relDir,
		IndexFile: filepath.ToSlash(filepath.Join(relDir, indexName)),
		Paths:     paths,
		FileCount: len(files),
		Required:  a.cfg.Required,
	}
	if err := a.run.WriteJSON("ailogs_status.json", b); err != nil {
		return nil, err
	}
	return b, nil
}

func (a *Archiver) renderIndex(vars prompt.Vars, files []string) string {
	var b strings.Builder
	b.WriteString("# Agent Logs\n\n")
	fmt.Fprintf(&b, "- Issue: #%s\n", vars["issue_number"])
	fmt.Fprintf(&b, "- Run: %s\n", vars["run_timestamp"])
	if branch := vars["branch_name"]; branch != "" {
		fmt.Fprintf(&b, "- Branch: %s\n", branch)
	}
	b.WriteString("\n## Files\n\n")
	for _, f := range files {
		fmt.Fprintf(&b, "- [%s](%s)\n", f, f)
	}
	return b.String()
}
