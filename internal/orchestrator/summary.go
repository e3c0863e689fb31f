package orchestrator

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// commitAppendix renders the evidence trailer block appended to the
// commit message: the run highlights first, then UI evidence, then the
// trace trailers last so git still parses them as trailers.
func commitAppendix(ctx *Context) string {
	var parts []string

	if h := runHighlights(ctx); h != "" {
		parts = append(parts, h)
	}
	if ctx.UIEvidence != nil && ctx.UIEvidence.Appendix != "" {
		parts = append(parts, ctx.UIEvidence.Appendix)
	}
	if ctx.Trace != nil && ctx.Trace.CommitAppendix != "" {
		parts = append(parts, ctx.Trace.CommitAppendix)
	}
	return strings.Join(parts, "\n\n")
}

func runHighlights(ctx *Context) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("Attempts: %d", ctx.Attempts))
	if h := firstHighlight(ctx.PlanMarkdown); h != "" {
		lines = append(lines, "Plan: "+h)
	}
	if h := firstHighlight(ctx.ReviewMarkdown); h != "" {
		lines = append(lines, "Review: "+h)
	}
	if h := firstHighlight(ctx.ValidationSummary); h != "" {
		lines = append(lines, "Validation: "+h)
	}
	if ctx.AILogs != nil && ctx.AILogs.Status == "archived" {
		where := "same branch"
		if ctx.AILogsPub != nil && ctx.AILogsPub.Status == "published" {
			where = "branch " + ctx.AILogsPub.Branch
		}
		lines = append(lines, fmt.Sprintf("Agent-Logs: %d file(s) on %s", ctx.AILogs.FileCount, where))
	}
	return strings.Join(lines, "\n")
}

// changeTypes buckets the committed paths for the PR checklist.
func changeTypes(paths []string) []string {
	seen := map[string]bool{}
	for _, p := range paths {
		switch {
		case strings.Contains(p, "_test.") || strings.HasPrefix(p, "test/") || strings.Contains(p, "/test/"):
			seen["tests"] = true
		case strings.HasSuffix(p, ".md") || strings.HasPrefix(p, "docs/"):
			seen["docs"] = true
		case path.Ext(p) == "" || strings.HasSuffix(p, ".yaml") || strings.HasSuffix(p, ".yml") || strings.HasSuffix(p, ".json") || strings.HasSuffix(p, ".toml"):
			seen["config"] = true
		default:
			seen["code"] = true
		}
	}
	var types []string
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// prChecklists renders the automated and manual review checklists
// appended to the PR body. Automated items are checked from recorded
// statuses, never assumed.
func prChecklists(ctx *Context) string {
	var b strings.Builder

	b.WriteString("## Automated Checks\n\n")
	check := func(ok bool, label string) {
		mark := " "
		if ok {
			mark = "x"
		}
		fmt.Fprintf(&b, "- [%s] %s\n", mark, label)
	}
	check(true, fmt.Sprintf("Quality gates passed (attempt %d)", ctx.Attempts))
	check(ctx.Trace != nil && ctx.Trace.Status == "registered", "Trace bundle committed")
	check(ctx.TraceVerify != nil && ctx.TraceVerify.Status == "passed", "Trace integrity verified")
	check(ctx.AILogs != nil && ctx.AILogs.Status == "archived", "Agent logs archived")
	check(ctx.UIEvidence != nil && ctx.UIEvidence.Status == "attached", "UI evidence collected")

	if types := changeTypes(ctx.Commit.Paths); len(types) > 0 {
		fmt.Fprintf(&b, "\nChange scope: %s\n", strings.Join(types, ", "))
	}

	b.WriteString("\n## Reviewer Checklist\n\n")
	for _, item := range []string{
		"The change matches the issue's intent",
		"Edge cases the gates cannot catch are covered",
		"No unrelated files were modified",
	} {
		fmt.Fprintf(&b, "- [ ] %s\n", item)
	}
	return b.String()
}

// runSummary renders the human-readable summary.md artifact.
func runSummary(ctx *Context, status string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Run Summary\n\n")
	fmt.Fprintf(&b, "- Issue: #%d %s\n", ctx.Issue.Number, ctx.Issue.Title)
	fmt.Fprintf(&b, "- Status: %s\n", status)
	fmt.Fprintf(&b, "- Branch: %s (from %s)\n", ctx.BranchName, ctx.BaseBranch)
	fmt.Fprintf(&b, "- Attempts: %d\n", ctx.Attempts)
	if ctx.Commit.SHA != "" {
		fmt.Fprintf(&b, "- Commit: %s (%d file(s))\n", ctx.Commit.SHA, len(ctx.Commit.Paths))
	}
	if ctx.Commit.NoChangeReason != "" {
		fmt.Fprintf(&b, "- No changes: %s\n", ctx.Commit.NoChangeReason)
	}
	if ctx.PullRequest != nil {
		fmt.Fprintf(&b, "- PR: %s (%s)\n", ctx.PullRequest.URL, ctx.PullRequest.Action)
	}

	var evidence []string
	if ctx.Trace != nil {
		evidence = append(evidence, fmt.Sprintf("- Trace: %s", ctx.Trace.Status))
	}
	if ctx.TraceVerify != nil {
		evidence = append(evidence, fmt.Sprintf("- Trace verification: %s", ctx.TraceVerify.Status))
	}
	if ctx.AILogs != nil {
		evidence = append(evidence, fmt.Sprintf("- Agent logs: %s", ctx.AILogs.Status))
	}
	if ctx.AILogsPub != nil {
		evidence = append(evidence, fmt.Sprintf("- Agent logs publish: %s", ctx.AILogsPub.Status))
	}
	if ctx.UIEvidence != nil {
		evidence = append(evidence, fmt.Sprintf("- UI evidence: %s", ctx.UIEvidence.Status))
	}
	if len(evidence) > 0 {
		fmt.Fprintf(&b, "\n## Evidence\n\n%s\n", strings.Join(evidence, "\n"))
	}

	if ctx.ValidationSummary != "" {
		fmt.Fprintf(&b, "\n## Validation\n\n%s", ctx.ValidationSummary)
	}
	return b.String()
}
