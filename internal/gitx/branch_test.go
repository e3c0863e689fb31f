package gitx

import (
	"strings"
	"testing"
)

func TestSanitizeBranch(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"agent/issue-42-fix-login", "agent/issue-42-fix-login"},
		{"agent/issue 42: fix login!", "agent/issue-42-fix-login"},
		{"///", "work"},
		{"", "work"},
	}
	for _, c := range cases {
		if got := SanitizeBranch(c.in); got != c.want {
			t.Errorf("SanitizeBranch(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestEnsureBranch_NewBranchFromBase(t *testing.T) {
	git := &mockGit{
		results: []mockResult{
			{Output: ""}, // fetch
			{Output: ""}, // checkout base
			{Output: ""}, // ls-remote: empty -> branch not on remote
			{Output: ""}, // checkout -B branch base
		},
	}

	err := EnsureBranch(git, "/repo", EnsureBranchOpts{BaseBranch: "main", Branch: "agent/issue-9"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertArgs(t, git.calls[3].Args, "checkout", "-B", "agent/issue-9", "main")
}

func TestEnsureBranch_ExistingRemoteBranch(t *testing.T) {
	git := &mockGit{
		results: []mockResult{
			{Output: ""},
			{Output: ""},
			{Output: "abc123\trefs/heads/agent/issue-9"},
			{Output: ""},
		},
	}

	err := EnsureBranch(git, "/repo", EnsureBranchOpts{BaseBranch: "main", Branch: "agent/issue-9"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertArgs(t, git.calls[3].Args, "checkout", "-B", "agent/issue-9", "origin/agent/issue-9")
}

func TestEnsureBranch_SyncBase(t *testing.T) {
	git := &mockGit{}

	err := EnsureBranch(git, "/repo", EnsureBranchOpts{BaseBranch: "main", Branch: "agent/issue-9", SyncBase: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertArgs(t, git.calls[2].Args, "pull", "--ff-only", "origin", "main")
}

func TestRequireCleanWorktree_Dirty(t *testing.T) {
	git := &mockGit{
		results: []mockResult{{Output: " M src/main.go"}},
	}

	err := RequireCleanWorktree(git, "/repo")
	if err == nil || !strings.Contains(err.Error(), "uncommitted changes") {
		t.Fatalf("expected dirty-worktree error, got %v", err)
	}
}

func TestRequireCleanWorktree_Clean(t *testing.T) {
	git := &mockGit{results: []mockResult{{Output: ""}}}
	if err := RequireCleanWorktree(git, "/repo"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
