package gitx

import (
	"fmt"
	"regexp"
	"strings"
)

var branchCleanRe = regexp.MustCompile(`[^a-zA-Z0-9/_-]+`)

// SanitizeBranch normalizes a candidate branch name to characters git
// accepts, collapsing runs of invalid characters into single dashes.
func SanitizeBranch(name string) string {
	s := branchCleanRe.ReplaceAllString(name, "-")
	s = strings.Trim(s, "-/")
	if s == "" {
		return "work"
	}
	return s
}

// RequireCleanWorktree fails when the repo has uncommitted changes.
// Runs happen on a shared checkout, so leftover local edits would leak
// into the agent's commit.
func RequireCleanWorktree(git Runner, repoDir string) error {
	out, err := git.Run(repoDir, "status", "--porcelain")
	if err != nil {
		return fmt.Errorf("check worktree status: %w", err)
	}
	if strings.TrimSpace(out) != "" {
		return fmt.Errorf("worktree at %s has uncommitted changes; commit or stash them before starting a run", repoDir)
	}
	return nil
}

// EnsureBranchOpts controls branch preparation for a run.
type EnsureBranchOpts struct {
	BaseBranch string
	Branch     string
	SyncBase   bool // pull --ff-only the base branch before branching
}

// EnsureBranch checks out the work branch for a run, creating it from
// the base branch when it does not exist. If the branch already exists
// on the remote, the local branch is reset to the remote tip so reruns
// continue where the previous run pushed.
func EnsureBranch(git Runner, repoDir string, opts EnsureBranchOpts) error {
	if opts.Branch == "" {
		return fmt.Errorf("branch name is empty")
	}
	// Best-effort fetch; offline runs still work from local refs.
	git.Run(repoDir, "fetch", "origin", opts.BaseBranch, opts.Branch)

	if _, err := git.Run(repoDir, "checkout", opts.BaseBranch); err != nil {
		return fmt.Errorf("checkout base branch %s: %w", opts.BaseBranch, err)
	}
	if opts.SyncBase {
		if _, err := git.Run(repoDir, "pull", "--ff-only", "origin", opts.BaseBranch); err != nil {
			return fmt.Errorf("sync base branch %s: %w", opts.BaseBranch, err)
		}
	}

	if remoteBranchExists(git, repoDir, opts.Branch) {
		if _, err := git.Run(repoDir, "checkout", "-B", opts.Branch, "origin/"+opts.Branch); err != nil {
			return fmt.Errorf("checkout existing branch %s: %w", opts.Branch, err)
		}
		return nil
	}
	if _, err := git.Run(repoDir, "checkout", "-B", opts.Branch, opts.BaseBranch); err != nil {
		return fmt.Errorf("create branch %s from %s: %w", opts.Branch, opts.BaseBranch, err)
	}
	return nil
}

func remoteBranchExists(git Runner, repoDir, branch string) bool {
	out, err := git.Run(repoDir, "ls-remote", "--heads", "origin", branch)
	return err == nil && strings.TrimSpace(out) != ""
}

// HeadSHA returns the current HEAD commit hash.
func HeadSHA(git Runner, repoDir string) (string, error) {
	out, err := git.Run(repoDir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// HeadMessage returns the full commit message of HEAD, trailers included.
func HeadMessage(git Runner, repoDir string) (string, error) {
	out, err := git.Run(repoDir, "log", "-1", "--pretty=%B")
	if err != nil {
		return "", fmt.Errorf("read HEAD message: %w", err)
	}
	return out, nil
}

// Push pushes a branch to origin. On a non-fast-forward rejection it
// rebases onto the remote branch and retries exactly once; a second
// rejection is returned to the caller.
func Push(git Runner, repoDir, branch string) error {
	_, err := git.Run(repoDir, "push", "-u", "origin", branch)
	if err == nil {
		return nil
	}
	if !isNonFastForward(err) {
		return fmt.Errorf("push %s: %w", branch, err)
	}
	if _, ferr := git.Run(repoDir, "fetch", "origin", branch); ferr != nil {
		return fmt.Errorf("fetch before rebase retry: %w", ferr)
	}
	if _, rerr := git.Run(repoDir, "rebase", "origin/"+branch); rerr != nil {
		git.Run(repoDir, "rebase", "--abort")
		return fmt.Errorf("rebase onto origin/%s: %w", branch, rerr)
	}
	if _, perr := git.Run(repoDir, "push", "-u", "origin", branch); perr != nil {
		return fmt.Errorf("push %s after rebase: %w", branch, perr)
	}
	return nil
}

func isNonFastForward(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "non-fast-forward") ||
		strings.Contains(msg, "fetch first") ||
		strings.Contains(msg, "rejected")
}
