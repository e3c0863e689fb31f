package gitx

import (
	"fmt"
	"os"
)

// WorkCopy is a throwaway detached git worktree used for operations
// that must not disturb the feature branch checkout, like publishing
// logs to a dedicated branch.
type WorkCopy struct {
	git      Runner
	repoDir  string
	Dir      string
	released bool
}

// AcquireWorkCopy creates a detached worktree of HEAD in a temp dir.
// Callers must Release it, typically via defer.
func AcquireWorkCopy(git Runner, repoDir string) (*WorkCopy, error) {
	dir, err := os.MkdirTemp("", "issueforge-workcopy-")
	if err != nil {
		return nil, fmt.Errorf("create workcopy dir: %w", err)
	}
	if _, err := git.Run(repoDir, "worktree", "add", "--detach", dir, "HEAD"); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("add workcopy worktree: %w", err)
	}
	return &WorkCopy{git: git, repoDir: repoDir, Dir: dir}, nil
}

// CheckoutBranch switches the work copy to the named branch, creating
// it fresh or resetting it to the remote tip when one exists.
func (w *WorkCopy) CheckoutBranch(branch string) error {
	w.git.Run(w.repoDir, "fetch", "origin", branch)
	if remoteBranchExists(w.git, w.repoDir, branch) {
		if _, err := w.git.Run(w.Dir, "checkout", "-B", branch, "origin/"+branch); err != nil {
			return fmt.Errorf("checkout %s from origin: %w", branch, err)
		}
		return nil
	}
	if _, err := w.git.Run(w.Dir, "checkout", "-B", branch); err != nil {
		return fmt.Errorf("checkout new branch %s: %w", branch, err)
	}
	return nil
}

// Release removes the worktree and its directory. Safe to call more
// than once.
func (w *WorkCopy) Release() error {
	if w.released {
		return nil
	}
	w.released = true
	_, err := w.git.Run(w.repoDir, "worktree", "remove", "--force", w.Dir)
	if rmErr := os.RemoveAll(w.Dir); rmErr != nil && err == nil {
		err = rmErr
	}
	w.git.Run(w.repoDir, "worktree", "prune")
	if err != nil {
		return fmt.Errorf("release workcopy: %w", err)
	}
	return nil
}
