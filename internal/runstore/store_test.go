package runstore

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func TestCreate_PathLayout(t *testing.T) {
	base := t.TempDir()

	d, err := Create(base, "webapp", 42, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join(base, ".agent", "runs", "webapp", "20260314-092653-issue-42")
	if d.Path != want {
		t.Errorf("expected path %q, got %q", want, d.Path)
	}
	if d.Timestamp != "20260314-092653" {
		t.Errorf("unexpected timestamp %q", d.Timestamp)
	}
}

func TestCreate_CollisionFails(t *testing.T) {
	base := t.TempDir()
	if _, err := Create(base, "webapp", 42, testNow); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := Create(base, "webapp", 42, testNow); err == nil {
		t.Fatal("expected collision error for same timestamp and issue")
	}
}

func TestCreate_InvalidIssue(t *testing.T) {
	if _, err := Create(t.TempDir(), "webapp", 0, testNow); err == nil {
		t.Fatal("expected error for issue 0")
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	d, err := Create(t.TempDir(), "", 7, testNow)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if d.Namespace != "default" {
		t.Errorf("expected default namespace, got %q", d.Namespace)
	}

	if err := d.WriteArtifact("plan.md", []byte("# Plan\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := d.WriteArtifact("ui-evidence/shot.png", []byte{0x89, 0x50}); err != nil {
		t.Fatalf("write nested: %v", err)
	}

	data, err := d.ReadArtifact("plan.md")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "# Plan\n" {
		t.Errorf("unexpected content %q", data)
	}
	if !d.HasArtifact("ui-evidence/shot.png") {
		t.Error("expected nested artifact to exist")
	}
	if d.HasArtifact("missing.md") {
		t.Error("missing artifact reported present")
	}
}

func TestListFiles_SortedRelative(t *testing.T) {
	d, err := Create(t.TempDir(), "ns", 7, testNow)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, name := range []string{"task.md", "coder_prompt_attempt_1.md", "ui-evidence/a.png"} {
		if err := d.WriteArtifact(name, []byte("x")); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	files, err := d.ListFiles()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"coder_prompt_attempt_1.md", "task.md", "ui-evidence/a.png"}
	if strings.Join(files, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, files)
	}
}

func TestWriteJSON(t *testing.T) {
	d, err := Create(t.TempDir(), "ns", 7, testNow)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := d.WriteJSON("status.json", map[string]string{"status": "passed"}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	data, err := d.ReadArtifact("status.json")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"status": "passed"`) {
		t.Errorf("unexpected json %q", data)
	}
}
