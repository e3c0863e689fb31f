package gitx

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoChanges reports that staging produced no meaningful changes to
// commit. Callers decide whether that ends the run cleanly or is fatal.
var ErrNoChanges = errors.New("no meaningful file changes to commit")

// CommitOpts holds options for reconciling a commit from the working tree.
type CommitOpts struct {
	Message string
	// IgnorePaths are staged paths that do not count as meaningful work
	// (run artifacts, evidence files). They are still committed when
	// meaningful changes exist.
	IgnorePaths []string
	// ForceAddPaths are added with `git add -f` so gitignored artifact
	// directories still land in the commit.
	ForceAddPaths []string
	// RequiredPaths must appear in the staged set or the commit fails.
	// Checked independently of IgnorePaths: a path can be both ignored
	// for the meaningful-change test and required to be present.
	RequiredPaths []string
}

// CommitResult describes a reconciled commit.
type CommitResult struct {
	SHA             string
	StagedPaths     []string
	MeaningfulPaths []string
}

// Commit stages everything, force-adds artifact paths, and commits if
// the staged set contains changes beyond the ignored paths. Returns
// ErrNoChanges (wrapped) when nothing or only ignored paths are staged.
func Commit(git Runner, repoDir string, opts CommitOpts) (*CommitResult, error) {
	if strings.TrimSpace(opts.Message) == "" {
		return nil, fmt.Errorf("commit message is empty")
	}
	if _, err := git.Run(repoDir, "add", "-A"); err != nil {
		return nil, fmt.Errorf("stage changes: %w", err)
	}
	for _, p := range opts.ForceAddPaths {
		if _, err := git.Run(repoDir, "add", "-f", "--", p); err != nil {
			return nil, fmt.Errorf("force-add %s: %w", p, err)
		}
	}

	out, err := git.Run(repoDir, "diff", "--cached", "--name-only")
	if err != nil {
		return nil, fmt.Errorf("list staged changes: %w", err)
	}
	staged := splitLines(out)
	if len(staged) == 0 {
		return nil, fmt.Errorf("%w: nothing staged", ErrNoChanges)
	}

	ignore := make(map[string]bool, len(opts.IgnorePaths))
	for _, p := range opts.IgnorePaths {
		ignore[normalizePath(p)] = true
	}
	var meaningful []string
	for _, p := range staged {
		if !ignore[normalizePath(p)] {
			meaningful = append(meaningful, p)
		}
	}
	if len(meaningful) == 0 {
		return nil, fmt.Errorf("%w: only run artifacts staged (%s)", ErrNoChanges, strings.Join(staged, ", "))
	}

	stagedSet := make(map[string]bool, len(staged))
	for _, p := range staged {
		stagedSet[normalizePath(p)] = true
	}
	for _, p := range opts.RequiredPaths {
		if !stagedSet[normalizePath(p)] {
			return nil, fmt.Errorf("required path %s is not staged", p)
		}
	}

	if _, err := git.Run(repoDir, "commit", "-m", opts.Message); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	sha, err := HeadSHA(git, repoDir)
	if err != nil {
		return nil, err
	}
	sort.Strings(meaningful)
	sort.Strings(staged)
	return &CommitResult{SHA: sha, StagedPaths: staged, MeaningfulPaths: meaningful}, nil
}

func normalizePath(p string) string {
	return filepath.ToSlash(strings.TrimPrefix(strings.TrimSpace(p), "./"))
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			out = append(out, t)
		}
	}
	return out
}
