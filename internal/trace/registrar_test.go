package trace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/issueforge/issueforge/internal/config"
	"github.com/issueforge/issueforge/internal/prompt"
	"github.com/issueforge/issueforge/internal/runstore"
)

type mockGit struct {
	calls   [][]string
	results []mockResult
	idx     int
}

type mockResult struct {
	Output string
	Err    error
}

func (m *mockGit) Run(dir string, args ...string) (string, error) {
	m.calls = append(m.calls, args)
	if m.idx >= len(m.results) {
		return "", nil
	}
	r := m.results[m.idx]
	m.idx++
	return r.Output, r.Err
}

func testCfg() config.TraceConfig {
	return config.TraceConfig{
		Enabled:         true,
		Required:        true,
		ArtifactPath:    ".trace/evidence/issue-{{issue_number}}-{{run_timestamp}}.md",
		AppendTrailers:  true,
		MaxSectionChars: 6000,
	}
}

func setup(t *testing.T, cfg config.TraceConfig) (*Registrar, *runstore.Dir, string, *mockGit) {
	t.Helper()
	run, err := runstore.Create(t.TempDir(), "test", 42, time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC))
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	repoDir := t.TempDir()
	git := &mockGit{}
	return NewRegistrar(git, run, repoDir, cfg), run, repoDir, git
}

func register(t *testing.T, r *Registrar, run *runstore.Dir) *Registration {
	t.Helper()
	run.WriteArtifact("planner_prompt.md", []byte("plan prompt"))
	run.WriteArtifact("coder_prompt_attempt_1.md", []byte("code prompt"))
	run.WriteArtifact("coder_output_attempt_1.md", []byte("did work"))
	run.WriteArtifact("plan.md", []byte("the plan"))

	reg, err := r.Register(prompt.Vars{"issue_number": "42", "run_timestamp": "20260314-092653"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

func TestRegister_BundleAndAppendix(t *testing.T) {
	r, run, repoDir, _ := setup(t, testCfg())
	reg := register(t, r, run)

	if reg.Status != "registered" {
		t.Fatalf("unexpected status %q", reg.Status)
	}
	wantFile := ".trace/evidence/issue-42-20260314-092653.md"
	if reg.File != wantFile {
		t.Errorf("expected file %q, got %q", wantFile, reg.File)
	}
	if len(reg.SHA256) != 64 {
		t.Errorf("expected sha256 hex digest, got %q", reg.SHA256)
	}
	if !strings.Contains(reg.CommitAppendix, "Trace-File: "+wantFile) {
		t.Errorf("appendix missing file trailer: %q", reg.CommitAppendix)
	}
	if !strings.Contains(reg.CommitAppendix, "Trace-SHA256: "+reg.SHA256) {
		t.Errorf("appendix missing hash trailer: %q", reg.CommitAppendix)
	}

	data, err := os.ReadFile(filepath.Join(repoDir, wantFile))
	if err != nil {
		t.Fatalf("bundle not written into repo: %v", err)
	}
	for _, section := range []string{"## planner_prompt.md", "## coder_prompt_attempt_1.md", "## coder_output_attempt_1.md", "## plan.md", "did work"} {
		if !strings.Contains(string(data), section) {
			t.Errorf("bundle missing %q", section)
		}
	}
	if !run.HasArtifact("trace_status.json") {
		t.Error("expected trace status artifact")
	}
}

func TestRegister_Disabled(t *testing.T) {
	cfg := testCfg()
	cfg.Enabled = false
	r, run, _, _ := setup(t, cfg)

	reg, err := r.Register(prompt.Vars{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.Status != "skipped" {
		t.Errorf("expected skipped, got %q", reg.Status)
	}
	if !run.HasArtifact("trace_status.json") {
		t.Error("skipped registration must still write the status artifact")
	}
}

func TestRegister_RejectsEscapingPath(t *testing.T) {
	cfg := testCfg()
	cfg.ArtifactPath = "../outside/{{issue_number}}.md"
	r, run, _, _ := setup(t, cfg)
	run.WriteArtifact("plan.md", []byte("x"))

	_, err := r.Register(prompt.Vars{"issue_number": "42"})
	if err == nil || !strings.Contains(err.Error(), "escapes") {
		t.Fatalf("expected escape error, got %v", err)
	}
}

func TestRegister_AttemptOrdering(t *testing.T) {
	r, run, _, _ := setup(t, testCfg())
	for _, n := range []int{10, 2, 1} {
		run.WriteArtifact(fmt.Sprintf("coder_prompt_attempt_%d.md", n), []byte("x"))
	}

	reg := register(t, r, run)
	data, _ := run.ReadArtifact("trace_bundle.md")
	bundle := string(data)
	i2 := strings.Index(bundle, "## coder_prompt_attempt_2.md")
	i10 := strings.Index(bundle, "## coder_prompt_attempt_10.md")
	if i2 == -1 || i10 == -1 || i2 > i10 {
		t.Errorf("attempts not numerically ordered (2 at %d, 10 at %d)", i2, i10)
	}
	_ = reg
}

func TestVerify_Passes(t *testing.T) {
	r, run, _, git := setup(t, testCfg())
	reg := register(t, r, run)

	git.results = []mockResult{
		{Output: "fix: something\n\nTrace-File: " + reg.File + "\nTrace-SHA256: " + reg.SHA256},
		{Output: ""}, // cat-file -e
	}

	v, err := r.Verify(reg)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if v.Status != "passed" {
		t.Fatalf("expected passed, got %q (%v)", v.Status, v.Problems)
	}
	if !run.HasArtifact("trace_verify.json") {
		t.Error("expected verify status artifact")
	}
}

func TestVerify_DetectsCorruption(t *testing.T) {
	r, run, repoDir, git := setup(t, testCfg())
	reg := register(t, r, run)

	// Flip one byte of the committed bundle.
	path := filepath.Join(repoDir, reg.File)
	data, _ := os.ReadFile(path)
	data[0] ^= 0xff
	os.WriteFile(path, data, 0o644)

	git.results = []mockResult{
		{Output: "fix: x\n\nTrace-File: " + reg.File + "\nTrace-SHA256: " + reg.SHA256},
		{Output: ""},
	}

	v, err := r.Verify(reg)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if v.Status != "failed" {
		t.Fatalf("expected failed, got %q", v.Status)
	}
}

func TestVerify_MissingTrailers(t *testing.T) {
	r, run, _, git := setup(t, testCfg())
	reg := register(t, r, run)

	git.results = []mockResult{
		{Output: "fix: no trailers here"},
		{Output: ""},
	}

	v, err := r.Verify(reg)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if v.Status != "failed" {
		t.Fatalf("expected failed, got %q", v.Status)
	}
	if len(v.Problems) == 0 || !strings.Contains(v.Problems[0], "trailers") {
		t.Errorf("expected trailer problem, got %v", v.Problems)
	}
}

func TestVerify_SkippedRegistration(t *testing.T) {
	cfg := testCfg()
	cfg.Enabled = false
	r, _, _, _ := setup(t, cfg)

	v, err := r.Verify(&Registration{Status: "skipped"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if v.Status != "skipped" {
		t.Errorf("expected skipped, got %q", v.Status)
	}
}

func TestExtractTrailer(t *testing.T) {
	msg := "fix: x\n\nTrace-File: a.md\nTrace-File: b.md\nTrace-SHA256: abc\n"
	if got := ExtractTrailer(msg, TrailerFile); got != "b.md" {
		t.Errorf("expected last occurrence, got %q", got)
	}
	if got := ExtractTrailer(msg, "Missing-Key"); got != "" {
		t.Errorf("expected empty for missing key, got %q", got)
	}
}
