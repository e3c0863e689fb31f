package issue

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type mockGH struct {
	calls   [][]string
	results []mockResult
	idx     int
}

type mockResult struct {
	output string
	err    error
}

func (m *mockGH) Run(dir string, args ...string) (string, error) {
	m.calls = append(m.calls, args)
	if m.idx >= len(m.results) {
		return "", nil
	}
	r := m.results[m.idx]
	m.idx++
	return r.output, r.err
}

func TestGet_ParsesIssue(t *testing.T) {
	gh := &mockGH{results: []mockResult{{output: `{
		"number": 42,
		"title": "Login page crashes on empty password",
		"body": "Steps to reproduce...",
		"url": "https://github.com/acme/webapp/issues/42",
		"state": "OPEN",
		"labels": [{"name": "bug"}, {"name": "frontend"}]
	}`}}}

	c := NewClient(gh, "/repo")
	iss, err := c.Get(42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if iss.Number != 42 || iss.State != "OPEN" {
		t.Errorf("unexpected issue: %+v", iss)
	}
	if len(iss.Labels) != 2 || iss.Labels[0] != "bug" {
		t.Errorf("unexpected labels: %v", iss.Labels)
	}
	if got := gh.calls[0]; got[0] != "issue" || got[1] != "view" || got[2] != "42" {
		t.Errorf("unexpected gh call: %v", got)
	}
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "issue.md")
	content := "\n# Add rate limiting\n\nRequests should be limited per client.\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	iss, err := FromFile(path, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if iss.Title != "Add rate limiting" {
		t.Errorf("unexpected title %q", iss.Title)
	}
	if iss.Body != "Requests should be limited per client." {
		t.Errorf("unexpected body %q", iss.Body)
	}
	if iss.Number != 7 {
		t.Errorf("unexpected number %d", iss.Number)
	}
}

func TestFromFile_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issue.md")
	os.WriteFile(path, []byte("\n\n"), 0o644)
	if _, err := FromFile(path, 1); err == nil {
		t.Fatal("expected error for empty issue file")
	}
}

func TestDefaultPRTitle(t *testing.T) {
	cases := []struct {
		name   string
		issue  Issue
		want   string
	}{
		{"already conventional", Issue{Number: 1, Title: "fix(auth): handle empty token"}, "fix(auth): handle empty token"},
		{"label wins", Issue{Number: 1, Title: "Login broken on Safari", Labels: []string{"bug"}}, "fix: Login broken on Safari"},
		{"keyword fallback", Issue{Number: 1, Title: "Refactor session handling"}, "refactor: Refactor session handling"},
		{"docs keyword", Issue{Number: 1, Title: "Update README badges"}, "docs: Update README badges"},
		{"default feat", Issue{Number: 1, Title: "Dark mode"}, "feat: Dark mode"},
		{"empty title", Issue{Number: 9}, "feat: resolve issue #9"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := DefaultPRTitle(&c.issue); got != c.want {
				t.Errorf("DefaultPRTitle = %q, want %q", got, c.want)
			}
		})
	}
}

func TestTriggerReason(t *testing.T) {
	text := "Some preamble\nTriggered by: pr-comment from @alice\nmore"
	if got := TriggerReason(text); got != "pr-comment from @alice" {
		t.Errorf("TriggerReason = %q", got)
	}
	if TriggerReason("no trigger here") != "" {
		t.Error("expected empty reason")
	}
}

func TestIsCommentTrigger(t *testing.T) {
	cases := map[string]bool{
		"pr-comment from @alice":     true,
		"Review-Comment on file.go":  true,
		"comment-command /agent fix": true,
		"scheduled":                  false,
		"":                           false,
	}
	for reason, want := range cases {
		if got := IsCommentTrigger(reason); got != want {
			t.Errorf("IsCommentTrigger(%q) = %v, want %v", reason, got, want)
		}
	}
}

func TestCollectPRFeedback_FiltersAndClips(t *testing.T) {
	long := strings.Repeat("x", 600)
	gh := &mockGH{results: []mockResult{
		{output: `{"html_url": "https://github.com/acme/webapp/pull/5", "head": {"ref": "agent/issue-3"}, "base": {"ref": "main"}}`},
		{output: `[
			{"user": {"login": "alice"}, "state": "CHANGES_REQUESTED", "body": "` + long + `"},
			{"user": {"login": "ci-bot[bot]"}, "state": "COMMENTED", "body": "build passed"}
		]`},
		{output: `[{"user": {"login": "bob"}, "path": "src/main.go", "body": "rename this"}]`},
		{output: `[{"user": {"login": "carol"}, "body": "/agent rerun"}]`},
	}}

	d, err := CollectPRFeedback(gh, "/repo", "acme/webapp", 5, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.HeadRef != "agent/issue-3" || d.BaseRef != "main" {
		t.Errorf("unexpected refs: %+v", d)
	}
	if d.ItemCount != 2 {
		t.Fatalf("expected 2 items after filtering, got %d", d.ItemCount)
	}
	if strings.Contains(d.Markdown, "ci-bot") {
		t.Error("bot review not filtered")
	}
	if strings.Contains(d.Markdown, "/agent rerun") {
		t.Error("command comment not filtered")
	}
	if !strings.Contains(d.Markdown, "(truncated)") {
		t.Error("long item not clipped")
	}
	if !strings.Contains(d.Markdown, "on `src/main.go`") {
		t.Errorf("review comment path missing: %q", d.Markdown)
	}
}

func TestDigestFromText(t *testing.T) {
	d := DigestFromText("Triggered by: pr-comment\nPlease fix the null check.")
	if d.ItemCount != 1 {
		t.Errorf("expected 1 item, got %d", d.ItemCount)
	}
	if d.Reason != "pr-comment" {
		t.Errorf("unexpected reason %q", d.Reason)
	}
	if DigestFromText("  ").ItemCount != 0 {
		t.Error("blank text should produce empty digest")
	}
}

func TestMergeDigests(t *testing.T) {
	text := DigestFromText("Triggered by: manual\nAlso fix the flaky timer test.")
	pr := &Digest{
		Markdown:  "Feedback from PR #5:\n\n### review by @octocat\nMissing backoff cap.\n",
		ItemCount: 3,
		PRURL:     "https://github.com/octo/fetcher/pull/5",
		HeadRef:   "agent/issue-42-retry",
		BaseRef:   "develop",
		Reason:    "pr-comment",
	}

	d := MergeDigests(text, pr)
	if d.ItemCount != 4 {
		t.Errorf("item count = %d, want 4", d.ItemCount)
	}
	if d.HeadRef != "agent/issue-42-retry" || d.BaseRef != "develop" {
		t.Errorf("refs = %q/%q, want the PR's", d.HeadRef, d.BaseRef)
	}
	if d.PRURL != pr.PRURL {
		t.Errorf("url = %q", d.PRURL)
	}
	if d.Reason != "manual" {
		t.Errorf("reason = %q, want the text's to win", d.Reason)
	}
	textAt := strings.Index(d.Markdown, "flaky timer test")
	prAt := strings.Index(d.Markdown, "Missing backoff cap")
	if textAt < 0 || prAt < 0 || textAt > prAt {
		t.Errorf("markdown order wrong: %q", d.Markdown)
	}

	if got := MergeDigests(nil, pr); got != pr {
		t.Error("nil text should pass the PR digest through")
	}
	if got := MergeDigests(text, nil); got != text {
		t.Error("nil PR digest should pass the text through")
	}
	if got := MergeDigests(&Digest{}, &Digest{Reason: "pr-comment"}); got.Reason != "pr-comment" {
		t.Errorf("reason fallback = %q", got.Reason)
	}
}
