// Package workspace resolves which repository a run operates on, from
// either a direct path or a projects manifest, cloning on demand.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/issueforge/issueforge/internal/config"
	"github.com/issueforge/issueforge/internal/gitx"
)

// Runtime is the resolved execution environment for one run.
type Runtime struct {
	RepoDir           string
	ProjectID         string
	RepoSlug          string // owner/name, empty when undetectable
	DefaultBaseBranch string
	RunNamespace      string
	ConfigOverlay     string // project config overlay path, empty when none
}

// Opts are the inputs that pick the target repository.
type Opts struct {
	ProjectID    string
	ManifestPath string
	TargetRepo   string // owner/name, overrides detection
	TargetPath   string // direct path to a checkout
	BaseBranch   string
}

// Resolve picks the repository for a run. A project ID goes through
// the manifest (cloning the repo if its local path does not exist yet);
// otherwise TargetPath is used directly with the slug detected from
// the origin remote.
func Resolve(git gitx.Runner, opts Opts) (*Runtime, error) {
	if opts.ProjectID != "" {
		return resolveProject(git, opts)
	}
	if opts.TargetPath == "" {
		return nil, fmt.Errorf("either --project or --target-path is required")
	}

	repoDir, err := filepath.Abs(opts.TargetPath)
	if err != nil {
		return nil, fmt.Errorf("resolve target path: %w", err)
	}
	if _, err := os.Stat(filepath.Join(repoDir, ".git")); err != nil {
		return nil, fmt.Errorf("%s is not a git checkout", repoDir)
	}

	slug := opts.TargetRepo
	if slug == "" {
		slug = detectSlug(git, repoDir)
	}
	rt := &Runtime{
		RepoDir:           repoDir,
		RepoSlug:          slug,
		DefaultBaseBranch: opts.BaseBranch,
		RunNamespace:      namespaceFor(slug, repoDir),
	}
	return rt, nil
}

func resolveProject(git gitx.Runner, opts Opts) (*Runtime, error) {
	if opts.ManifestPath == "" {
		return nil, fmt.Errorf("--projects-file is required with --project")
	}
	m, err := config.LoadManifest(opts.ManifestPath)
	if err != nil {
		return nil, err
	}
	p, err := m.Lookup(opts.ProjectID)
	if err != nil {
		return nil, err
	}

	repoDir := p.LocalPath
	if repoDir == "" {
		root := m.WorkspaceRoot
		if root == "" {
			root = "."
		}
		repoDir = filepath.Join(root, opts.ProjectID)
	}
	repoDir, err = filepath.Abs(repoDir)
	if err != nil {
		return nil, fmt.Errorf("resolve project path: %w", err)
	}

	if _, err := os.Stat(filepath.Join(repoDir, ".git")); err != nil {
		if p.CloneURL == "" {
			return nil, fmt.Errorf("project %s has no checkout at %s and no clone_url", opts.ProjectID, repoDir)
		}
		if err := os.MkdirAll(filepath.Dir(repoDir), 0o755); err != nil {
			return nil, fmt.Errorf("create workspace dir: %w", err)
		}
		if _, err := git.Run("", "clone", p.CloneURL, repoDir); err != nil {
			return nil, fmt.Errorf("clone project %s: %w", opts.ProjectID, err)
		}
	}

	slug := p.Repo
	if slug == "" {
		slug = detectSlug(git, repoDir)
	}
	base := opts.BaseBranch
	if base == "" {
		base = p.BaseBranch
	}

	overlay := p.Config
	if overlay != "" && !filepath.IsAbs(overlay) {
		overlay = filepath.Join(filepath.Dir(opts.ManifestPath), overlay)
	}

	return &Runtime{
		RepoDir:           repoDir,
		ProjectID:         opts.ProjectID,
		RepoSlug:          slug,
		DefaultBaseBranch: base,
		RunNamespace:      opts.ProjectID,
		ConfigOverlay:     overlay,
	}, nil
}

// detectSlug parses owner/name out of the origin remote URL. Both
// SSH and HTTPS forms are handled; anything else yields "".
func detectSlug(git gitx.Runner, repoDir string) string {
	out, err := git.Run(repoDir, "remote", "get-url", "origin")
	if err != nil {
		return ""
	}
	return parseSlug(strings.TrimSpace(out))
}

func parseSlug(url string) string {
	url = strings.TrimSuffix(url, ".git")
	if scheme, rest, ok := strings.Cut(url, "://"); ok {
		if scheme == "file" {
			return ""
		}
		parts := strings.Split(rest, "/")
		if len(parts) == 3 && parts[1] != "" && parts[2] != "" {
			return parts[1] + "/" + parts[2]
		}
		return ""
	}
	if _, rest, ok := strings.Cut(url, ":"); ok {
		parts := strings.Split(rest, "/")
		if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			return parts[0] + "/" + parts[1]
		}
	}
	return ""
}

func namespaceFor(slug, repoDir string) string {
	if slug != "" {
		if _, name, ok := strings.Cut(slug, "/"); ok {
			return name
		}
	}
	return filepath.Base(repoDir)
}
