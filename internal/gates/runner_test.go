package gates

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type mockCmd struct {
	calls   []string
	results []cmdResult
	idx     int
}

type cmdResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

func (m *mockCmd) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	m.calls = append(m.calls, command)
	if m.idx >= len(m.results) {
		return "", "", 0, nil
	}
	r := m.results[m.idx]
	m.idx++
	return r.Stdout, r.Stderr, r.ExitCode, r.Err
}

func TestRun_AllPass(t *testing.T) {
	cmd := &mockCmd{results: []cmdResult{{}, {}}}
	r := NewRunner(cmd, t.TempDir())

	passed, report, results, err := r.Run(context.Background(), []string{"go vet ./...", "go test ./..."}, "/repo", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !passed {
		t.Fatal("expected pass")
	}
	want := "- PASS `go vet ./...`\n- PASS `go test ./...`\n"
	if report != want {
		t.Errorf("report mismatch:\ngot  %q\nwant %q", report, want)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}
}

func TestRun_ShortCircuitsOnFailure(t *testing.T) {
	cmd := &mockCmd{results: []cmdResult{
		{},
		{Stdout: "FAIL pkg", ExitCode: 1},
		{}, // must not be reached
	}}
	r := NewRunner(cmd, t.TempDir())

	passed, report, _, err := r.Run(context.Background(), []string{"lint", "test", "build"}, "/repo", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if passed {
		t.Fatal("expected failure")
	}
	if len(cmd.calls) != 2 {
		t.Fatalf("expected short-circuit after 2 gates, got %d calls", len(cmd.calls))
	}
	if !strings.Contains(report, "- PASS `lint`") {
		t.Errorf("report missing pass line: %q", report)
	}
	if !strings.Contains(report, "- FAIL `test` (see `gate-attempt-2-1.log`)") {
		t.Errorf("report missing fail line: %q", report)
	}
}

func TestRun_EmptyGateListPasses(t *testing.T) {
	cmd := &mockCmd{}
	r := NewRunner(cmd, t.TempDir())

	passed, report, results, err := r.Run(context.Background(), nil, "/repo", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !passed {
		t.Fatal("empty gate list must pass")
	}
	if report != "- No quality gates configured.\n" {
		t.Errorf("unexpected report: %q", report)
	}
	if len(results) != 0 || len(cmd.calls) != 0 {
		t.Error("no gates should run")
	}
}

func TestRun_WritesGateLog(t *testing.T) {
	dir := t.TempDir()
	cmd := &mockCmd{results: []cmdResult{{Stdout: "out here", Stderr: "err here", ExitCode: 3}}}
	r := NewRunner(cmd, dir)

	_, _, results, err := r.Run(context.Background(), []string{"make check"}, "/repo", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].LogFile != "gate-attempt-1-0.log" {
		t.Fatalf("unexpected log name %q", results[0].LogFile)
	}

	data, err := os.ReadFile(filepath.Join(dir, results[0].LogFile))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	log := string(data)
	for _, want := range []string{"# Gate\nmake check", "# Exit Code\n3", "# Stdout\nout here", "# Stderr\nerr here"} {
		if !strings.Contains(log, want) {
			t.Errorf("log missing %q:\n%s", want, log)
		}
	}
}
