package ailogs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/issueforge/issueforge/internal/config"
	"github.com/issueforge/issueforge/internal/gitx"
	"github.com/issueforge/issueforge/internal/prompt"
)

// PublishResult describes where the archived logs ended up.
type PublishResult struct {
	Status   string   `json:"status"` // "published", "same-branch", "skipped", or "failed"
	Mode     string   `json:"mode"`
	Branch   string   `json:"branch,omitempty"`
	Commit   string   `json:"commit,omitempty"`
	Required bool     `json:"required"`
	Paths    []string `json:"paths,omitempty"`
}

// PublishDedicated moves the archived logs onto the dedicated logs
// branch through an isolated work copy, then removes them from the
// feature checkout so they never ride along in the feature commit.
// In same-branch mode it records that and leaves the files in place
// for the commit reconciler.
func (a *Archiver) PublishDedicated(bundle *Bundle, vars prompt.Vars) (*PublishResult, error) {
	res := &PublishResult{Mode: a.cfg.Publish.Mode, Required: a.cfg.PublishRequired()}

	if bundle.Status != "archived" {
		res.Status = "skipped"
		return res, a.run.WriteJSON("ailogs_publish.json", res)
	}
	if a.cfg.Publish.Mode != config.PublishDedicatedBranch {
		res.Status = "same-branch"
		res.Paths = bundle.Paths
		return res, a.run.WriteJSON("ailogs_publish.json", res)
	}

	message, err := prompt.Render(a.cfg.Publish.CommitMessage, vars)
	if err != nil {
		return nil, fmt.Errorf("render publish commit message: %w", err)
	}

	wc, err := gitx.AcquireWorkCopy(a.git, a.repoDir)
	if err != nil {
		return nil, err
	}
	defer wc.Release()

	if err := wc.CheckoutBranch(a.cfg.Publish.Branch); err != nil {
		return nil, err
	}

	for _, p := range bundle.Paths {
		src := filepath.Join(a.repoDir, p)
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, fmt.Errorf("read archived log %s: %w", p, err)
		}
		dest := filepath.Join(wc.Dir, p)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir in workcopy: %w", err)
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return nil, fmt.Errorf("copy log into workcopy: %w", err)
		}
		if _, err := a.git.Run(wc.Dir, "add", "-f", "--", p); err != nil {
			return nil, fmt.Errorf("stage log %s: %w", p, err)
		}
	}

	// diff --cached --quiet exits non-zero when something is staged.
	if _, err := a.git.Run(wc.Dir, "diff", "--cached", "--quiet"); err != nil {
		if _, cerr := a.git.Run(wc.Dir, "commit", "-m", message); cerr != nil {
			return nil, fmt.Errorf("commit logs: %w", cerr)
		}
		if perr := gitx.Push(a.git, wc.Dir, a.cfg.Publish.Branch); perr != nil {
			return nil, perr
		}
		sha, serr := gitx.HeadSHA(a.git, wc.Dir)
		if serr != nil {
			return nil, serr
		}
		res.Commit = sha
	}

	// The feature checkout must not carry the published files.
	for _, p := range bundle.Paths {
		os.Remove(filepath.Join(a.repoDir, p))
	}
	pruneEmptyDirs(a.repoDir, bundle.Dir)

	res.Status = "published"
	res.Branch = a.cfg.Publish.Branch
	res.Paths = bundle.Paths
	return res, a.run.WriteJSON("ailogs_publish.json", res)
}

// pruneEmptyDirs removes now-empty directories from relDir upward,
// stopping at the first non-empty parent.
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
