package ailogs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/issueforge/issueforge/internal/config"
	"github.com/issueforge/issueforge/internal/prompt"
	"github.com/issueforge/issueforge/internal/runstore"
)

// mockGit dispatches on the git subcommand so call order stays
// flexible across the worktree dance.
type mockGit struct {
	calls [][]string
	fn    func(dir string, args ...string) (string, error)
}

func (m *mockGit) Run(dir string, args ...string) (string, error) {
	m.calls = append(m.calls, args)
	if m.fn != nil {
		return m.fn(dir, args...)
	}
	return "", nil
}

func testCfg() config.AILogsConfig {
	return config.AILogsConfig{
		Enabled:   true,
		Required:  true,
		Path:      "ai-logs/issue-{{issue_number}}-{{run_timestamp}}",
		IndexFile: "index.md",
		Publish: config.PublishConfig{
			Mode:          config.PublishSameBranch,
			Branch:        "agent-ai-logs",
			CommitMessage: "chore: archive agent logs for issue #{{issue_number}}",
		},
	}
}

func testVars() prompt.Vars {
	return prompt.Vars{
		"issue_number":  "42",
		"run_timestamp": "20260314-092653",
		"branch_name":   "agent/issue-42",
	}
}

func setup(t *testing.T, cfg config.AILogsConfig) (*Archiver, *runstore.Dir, string, *mockGit) {
	t.Helper()
	run, err := runstore.Create(t.TempDir(), "test", 42, time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC))
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	repoDir := t.TempDir()
	git := &mockGit{}
	return NewArchiver(git, run, repoDir, cfg), run, repoDir, git
}

func TestSave_CopiesArtifactsAndIndex(t *testing.T) {
	a, run, repoDir, _ := setup(t, testCfg())
	run.WriteArtifact("planner_prompt.md", []byte("prompt"))
	run.WriteArtifact("gate-attempt-1-0.log", []byte("log"))

	b, err := a.Save(testVars())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if b.Status != "archived" {
		t.Fatalf("unexpected status %q", b.Status)
	}
	if b.Dir != "ai-logs/issue-42-20260314-092653" {
		t.Errorf("unexpected dir %q", b.Dir)
	}
	if b.FileCount != 2 {
		t.Errorf("expected 2 files, got %d", b.FileCount)
	}

	index, err := os.ReadFile(filepath.Join(repoDir, b.IndexFile))
	if err != nil {
		t.Fatalf("index not written: %v", err)
	}
	if !strings.Contains(string(index), "planner_prompt.md") {
		t.Errorf("index missing file listing: %s", index)
	}
	if _, err := os.Stat(filepath.Join(repoDir, b.Dir, "gate-attempt-1-0.log")); err != nil {
		t.Errorf("artifact not copied: %v", err)
	}
	if !run.HasArtifact("ailogs_status.json") {
		t.Error("expected status artifact")
	}
}

func TestSave_Disabled(t *testing.T) {
	cfg := testCfg()
	cfg.Enabled = false
	a, run, _, _ := setup(t, cfg)

	b, err := a.Save(testVars())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if b.Status != "skipped" {
		t.Errorf("expected skipped, got %q", b.Status)
	}
	if !run.HasArtifact("ailogs_status.json") {
		t.Error("skipped save must still write the status artifact")
	}
}

func TestSave_RejectsEscapingPath(t *testing.T) {
	cfg := testCfg()
	cfg.Path = "../logs-{{issue_number}}"
	a, run, _, _ := setup(t, cfg)
	run.WriteArtifact("x.md", []byte("x"))

	if _, err := a.Save(testVars()); err == nil || !strings.Contains(err.Error(), "escapes") {
		t.Fatalf("expected escape error, got %v", err)
	}
}

func TestPublish_SameBranchLeavesFiles(t *testing.T) {
	a, run, repoDir, git := setup(t, testCfg())
	run.WriteArtifact("planner_prompt.md", []byte("prompt"))
	b, err := a.Save(testVars())
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	res, err := a.PublishDedicated(b, testVars())
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if res.Status != "same-branch" {
		t.Fatalf("unexpected status %q", res.Status)
	}
	if len(git.calls) != 0 {
		t.Errorf("same-branch mode must not touch git, got %v", git.calls)
	}
	if _, err := os.Stat(filepath.Join(repoDir, b.IndexFile)); err != nil {
		t.Error("same-branch mode must leave archived files for the commit")
	}
}

func TestPublish_DedicatedBranch(t *testing.T) {
	cfg := testCfg()
	cfg.Publish.Mode = config.PublishDedicatedBranch
	a, run, repoDir, git := setup(t, cfg)
	run.WriteArtifact("planner_prompt.md", []byte("prompt"))
	b, err := a.Save(testVars())
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	var committed []string
	git.fn = func(dir string, args ...string) (string, error) {
		switch args[0] {
		case "diff":
			// Staged changes present.
			return "", os.ErrInvalid
		case "commit":
			committed = args
			return "", nil
		case "rev-parse":
			return "abc123", nil
		}
		return "", nil
	}

	res, err := a.PublishDedicated(b, testVars())
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if res.Status != "published" || res.Branch != "agent-ai-logs" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Commit != "abc123" {
		t.Errorf("expected commit sha, got %q", res.Commit)
	}
	if len(committed) == 0 || !strings.Contains(committed[2], "issue #42") {
		t.Errorf("unexpected commit args %v", committed)
	}

	// Published files must be gone from the feature checkout, and the
	// emptied archive dir pruned.
	if _, err := os.Stat(filepath.Join(repoDir, b.IndexFile)); !os.IsNotExist(err) {
		t.Error("published files should be removed from the feature checkout")
	}
	if _, err := os.Stat(filepath.Join(repoDir, b.Dir)); !os.IsNotExist(err) {
		t.Error("empty archive dir should be pruned")
	}
}

func TestPublish_NoCommitWhenNothingStaged(t *testing.T) {
	cfg := testCfg()
	cfg.Publish.Mode = config.PublishDedicatedBranch
	a, run, _, git := setup(t, cfg)
	run.WriteArtifact("planner_prompt.md", []byte("prompt"))
	b, err := a.Save(testVars())
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	// diff --cached --quiet exits zero: nothing staged, publish is a no-op commit-wise.
	res, err := a.PublishDedicated(b, testVars())
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if res.Commit != "" {
		t.Errorf("expected no commit, got %q", res.Commit)
	}
	for _, call := range git.calls {
		if call[0] == "commit" {
			t.Error("commit should be skipped when nothing is staged")
		}
	}
}
