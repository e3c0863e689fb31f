package gitx

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

type mockGit struct {
	calls   []gitCall
	results []mockResult
	idx     int
}

type gitCall struct {
	Dir  string
	Args []string
}

type mockResult struct {
	Output string
	Err    error
}

func (m *mockGit) Run(dir string, args ...string) (string, error) {
	m.calls = append(m.calls, gitCall{Dir: dir, Args: args})
	if m.idx >= len(m.results) {
		return "", nil
	}
	r := m.results[m.idx]
	m.idx++
	return r.Output, r.Err
}

func assertArgs(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected args %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected args %v, got %v", want, got)
		}
	}
}

func TestCommit_HappyPath(t *testing.T) {
	git := &mockGit{
		results: []mockResult{
			{Output: ""},                       // add -A
			{Output: "src/main.go\nREADME.md"}, // diff --cached
			{Output: ""},                       // commit
			{Output: "abc123"},                 // rev-parse HEAD
		},
	}

	res, err := Commit(git, "/repo", CommitOpts{Message: "fix: resolve issue"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SHA != "abc123" {
		t.Errorf("expected sha abc123, got %q", res.SHA)
	}
	if len(res.MeaningfulPaths) != 2 {
		t.Errorf("expected 2 meaningful paths, got %v", res.MeaningfulPaths)
	}
	assertArgs(t, git.calls[0].Args, "add", "-A")
	assertArgs(t, git.calls[2].Args, "commit", "-m", "fix: resolve issue")
}

func TestCommit_NothingStaged(t *testing.T) {
	git := &mockGit{
		results: []mockResult{
			{Output: ""}, // add -A
			{Output: ""}, // diff --cached: empty
		},
	}

	_, err := Commit(git, "/repo", CommitOpts{Message: "fix: something"})
	if !errors.Is(err, ErrNoChanges) {
		t.Fatalf("expected ErrNoChanges, got %v", err)
	}
}

func TestCommit_OnlyIgnoredPaths(t *testing.T) {
	git := &mockGit{
		results: []mockResult{
			{Output: ""},
			{Output: ".trace/evidence/run.md\nai-logs/issue-5/index.md"},
		},
	}

	_, err := Commit(git, "/repo", CommitOpts{
		Message:     "fix: something",
		IgnorePaths: []string{".trace/evidence/run.md", "ai-logs/issue-5/index.md"},
	})
	if !errors.Is(err, ErrNoChanges) {
		t.Fatalf("expected ErrNoChanges, got %v", err)
	}
}

func TestCommit_IgnoredPathsStillCommitted(t *testing.T) {
	git := &mockGit{
		results: []mockResult{
			{Output: ""},
			{Output: "src/main.go\n.trace/evidence/run.md"},
			{Output: ""},
			{Output: "def456"},
		},
	}

	res, err := Commit(git, "/repo", CommitOpts{
		Message:     "fix: something",
		IgnorePaths: []string{".trace/evidence/run.md"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.MeaningfulPaths) != 1 || res.MeaningfulPaths[0] != "src/main.go" {
		t.Errorf("expected meaningful [src/main.go], got %v", res.MeaningfulPaths)
	}
	if len(res.StagedPaths) != 2 {
		t.Errorf("expected both paths staged, got %v", res.StagedPaths)
	}
}

func TestCommit_RequiredPathIndependentOfIgnore(t *testing.T) {
	// A path can be ignored for the meaningful-change test yet still
	// satisfy the required-path check.
	git := &mockGit{
		results: []mockResult{
			{Output: ""},
			{Output: "src/main.go\n.trace/evidence/run.md"},
			{Output: ""},
			{Output: "aaa111"},
		},
	}

	_, err := Commit(git, "/repo", CommitOpts{
		Message:       "fix: something",
		IgnorePaths:   []string{".trace/evidence/run.md"},
		RequiredPaths: []string{".trace/evidence/run.md"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCommit_RequiredPathMissing(t *testing.T) {
	git := &mockGit{
		results: []mockResult{
			{Output: ""},
			{Output: "src/main.go"},
		},
	}

	_, err := Commit(git, "/repo", CommitOpts{
		Message:       "fix: something",
		RequiredPaths: []string{".trace/evidence/run.md"},
	})
	if err == nil || !strings.Contains(err.Error(), "required path") {
		t.Fatalf("expected required-path error, got %v", err)
	}
	if errors.Is(err, ErrNoChanges) {
		t.Fatalf("missing required path must not be ErrNoChanges")
	}
}

func TestCommit_ForceAddPaths(t *testing.T) {
	git := &mockGit{
		results: []mockResult{
			{Output: ""}, // add -A
			{Output: ""}, // add -f ai-logs
			{Output: "src/main.go\nai-logs/index.md"},
			{Output: ""},
			{Output: "bbb222"},
		},
	}

	_, err := Commit(git, "/repo", CommitOpts{
		Message:       "fix: something",
		ForceAddPaths: []string{"ai-logs"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertArgs(t, git.calls[1].Args, "add", "-f", "--", "ai-logs")
}

func TestPush_RebaseRetryOnce(t *testing.T) {
	git := &mockGit{
		results: []mockResult{
			{Output: "", Err: fmt.Errorf("git push: ! [rejected] non-fast-forward: exit status 1")},
			{Output: ""}, // fetch
			{Output: ""}, // rebase
			{Output: ""}, // push retry
		},
	}

	if err := Push(git, "/repo", "agent/issue-7"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(git.calls) != 4 {
		t.Fatalf("expected 4 git calls, got %d", len(git.calls))
	}
	assertArgs(t, git.calls[2].Args, "rebase", "origin/agent/issue-7")
	assertArgs(t, git.calls[3].Args, "push", "-u", "origin", "agent/issue-7")
}

func TestPush_SecondRejectionFails(t *testing.T) {
	git := &mockGit{
		results: []mockResult{
			{Err: fmt.Errorf("non-fast-forward")},
			{Output: ""},
			{Output: ""},
			{Err: fmt.Errorf("non-fast-forward")},
		},
	}

	err := Push(git, "/repo", "agent/issue-7")
	if err == nil || !strings.Contains(err.Error(), "after rebase") {
		t.Fatalf("expected push-after-rebase error, got %v", err)
	}
}

func TestPush_NonRetryableError(t *testing.T) {
	git := &mockGit{
		results: []mockResult{
			{Err: fmt.Errorf("fatal: could not read from remote repository")},
		},
	}

	err := Push(git, "/repo", "agent/issue-7")
	if err == nil {
		t.Fatal("expected error")
	}
	if len(git.calls) != 1 {
		t.Fatalf("expected no retry, got %d calls", len(git.calls))
	}
}
