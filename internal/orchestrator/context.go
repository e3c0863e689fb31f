package orchestrator

import (
	"strconv"

	"github.com/issueforge/issueforge/internal/ailogs"
	"github.com/issueforge/issueforge/internal/issue"
	"github.com/issueforge/issueforge/internal/pr"
	"github.com/issueforge/issueforge/internal/prompt"
	"github.com/issueforge/issueforge/internal/runstore"
	"github.com/issueforge/issueforge/internal/trace"
	"github.com/issueforge/issueforge/internal/uievidence"
)

// Context carries everything a run accumulates as it moves through the
// pipeline. Typed fields rather than a loose map: a step that needs
// the plan gets ctx.PlanMarkdown or a compile error, not an empty
// string from a mistyped key.
type Context struct {
	Issue        *issue.Issue
	ProjectID    string
	RepoSlug     string
	BaseBranch   string
	BranchName   string
	RunTimestamp string
	Run          *runstore.Dir

	PlanMarkdown      string
	ReviewMarkdown    string
	ValidationSummary string
	Attempts          int

	ExternalFeedback *issue.Digest
	FeedbackPR       int

	Trace       *trace.Registration
	TraceVerify *trace.Verification
	AILogs      *ailogs.Bundle
	AILogsPub   *ailogs.PublishResult
	UIEvidence  *uievidence.Evidence

	Commit struct {
		Status         string
		SHA            string
		Paths          []string
		NoChangeReason string
	}
	PullRequest *pr.ReconcileResult
	Pushed      bool
}

// Vars flattens the context into template variables. Every template in
// the pipeline renders from this one view so variable names stay
// consistent between the planner, coder, reviewer, and PR body.
func (c *Context) Vars() prompt.Vars {
	v := prompt.Vars{
		"issue_number":       strconv.Itoa(c.Issue.Number),
		"issue_title":        c.Issue.Title,
		"issue_body":         c.Issue.Body,
		"issue_url":          c.Issue.URL,
		"project_id":         c.ProjectID,
		"repo_slug":          c.RepoSlug,
		"base_branch":        c.BaseBranch,
		"branch_name":        c.BranchName,
		"run_timestamp":      c.RunTimestamp,
		"plan":               c.PlanMarkdown,
		"review":             c.ReviewMarkdown,
		"validation_summary": c.ValidationSummary,
		"attempts":           strconv.Itoa(c.Attempts),
		"external_feedback":  "",
	}
	if c.ExternalFeedback != nil {
		v["external_feedback"] = c.ExternalFeedback.Markdown
	}
	if c.Run != nil {
		v["run_dir"] = c.Run.Path
	}
	if c.Commit.SHA != "" {
		v["commit_sha"] = c.Commit.SHA
	}
	return v
}
