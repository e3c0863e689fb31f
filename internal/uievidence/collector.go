// Package uievidence collects screenshots and other image files the
// coder agent drops into the repo's evidence directory, preserving
// them as run artifacts and optionally letting them ride in the
// commit.
package uievidence

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/issueforge/issueforge/internal/config"
	"github.com/issueforge/issueforge/internal/runstore"
)

// Collector gathers UI evidence from the repo into the run dir.
type Collector struct {
	run     *runstore.Dir
	repoDir string
	cfg     config.UIEvidenceConfig
}

// NewCollector creates a Collector.
func NewCollector(run *runstore.Dir, repoDir string, cfg config.UIEvidenceConfig) *Collector {
	return &Collector{run: run, repoDir: repoDir, cfg: cfg}
}

// Evidence describes what was collected.
type Evidence struct {
	Status       string   `json:"status"` // "attached", "none", "skipped", or "failed"
	DeliveryMode string   `json:"delivery_mode,omitempty"`
	ArtifactDir  string   `json:"artifact_dir,omitempty"`
	ImageFiles   []string `json:"image_files,omitempty"` // repo-relative
	Required     bool     `json:"required"`
	// CommitPaths are the repo paths that stay in place for the commit
	// in commit mode. Empty in artifact-only mode.
	CommitPaths []string `json:"commit_paths,omitempty"`
	Appendix    string   `json:"-"`
	Markdown    string   `json:"-"`
}

// Collect scans the configured evidence directory for images, copies
// them into the run dir, and in artifact-only mode removes the repo
// copies so they never reach the commit. Required evidence that is
// missing is an error; optional missing evidence records "none".
func (c *Collector) Collect() (*Evidence, error) {
	ev := &Evidence{Required: c.cfg.Required, DeliveryMode: c.cfg.DeliveryMode}

	if !c.cfg.Enabled {
		ev.Status = "skipped"
		return ev, c.run.WriteJSON("uievidence_status.json", ev)
	}

	images, err := c.discover()
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		if c.cfg.Required {
			return nil, fmt.Errorf("UI evidence is required but %s contains no images", c.cfg.RepoDir)
		}
		ev.Status = "none"
		return ev, c.run.WriteJSON("uievidence_status.json", ev)
	}

	for _, rel := range images {
		data, err := os.ReadFile(filepath.Join(c.repoDir, rel))
		if err != nil {
			return nil, fmt.Errorf("read evidence %s: %w", rel, err)
		}
		artifact := filepath.ToSlash(filepath.Join(c.cfg.ArtifactDir, filepath.Base(rel)))
		if err := c.run.WriteArtifact(artifact, data); err != nil {
			return nil, err
		}
	}

	switch c.cfg.DeliveryMode {
	case config.DeliveryCommit:
		ev.CommitPaths = images
		ev.Appendix = c.renderAppendix(images)
	default:
		for _, rel := range images {
			os.Remove(filepath.Join(c.repoDir, rel))
		}
		pruneEmptyDirs(c.repoDir, c.cfg.RepoDir)
	}

	ev.Status = "attached"
	ev.ArtifactDir = c.cfg.ArtifactDir
	ev.ImageFiles = images
	ev.Markdown = c.renderSummary(images)
	return ev, c.run.WriteJSON("uievidence_status.json", ev)
}

func (c *Collector) discover() ([]string, error) {
	root := filepath.Join(c.repoDir, c.cfg.RepoDir)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}
	exts := make(map[string]bool, len(c.cfg.ImageExtensions))
	for _, e := range c.cfg.ImageExtensions {
		exts[strings.ToLower(e)] = true
	}

	var images []string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if !exts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, rerr := filepath.Rel(c.repoDir, path)
		if rerr != nil {
			return rerr
		}
		images = append(images, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan UI evidence: %w", err)
	}
	sort.Strings(images)
	return images, nil
}

func (c *Collector) renderAppendix(images []string) string {
	var b strings.Builder
	b.WriteString("UI-Evidence:")
	for _, img := range images {
		b.WriteString("\n  " + img)
	}
	return b.String()
}

func (c *Collector) renderSummary(images []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Collected %d UI evidence image(s):\n", len(images))
	for _, img := range images {
		fmt.Fprintf(&b, "- %s\n", filepath.Base(img))
	}
	return b.String()
}

func pruneEmptyDirs(repoDir, relDir string) {
	for dir := relDir; dir != "." && dir != "" && dir != "/"; dir = filepath.Dir(dir) {
		full := filepath.Join(repoDir, dir)
		entries, err := os.ReadDir(full)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(full); err != nil {
			return
		}
	}
}
