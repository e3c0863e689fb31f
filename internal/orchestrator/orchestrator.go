// Package orchestrator drives a full issue-to-pull-request run: branch
// setup, plan, the coder/gate attempt loop, evidence collection, the
// commit, and PR reconciliation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/issueforge/issueforge/internal/agent"
	"github.com/issueforge/issueforge/internal/ailogs"
	"github.com/issueforge/issueforge/internal/config"
	"github.com/issueforge/issueforge/internal/db"
	"github.com/issueforge/issueforge/internal/gates"
	"github.com/issueforge/issueforge/internal/gitx"
	"github.com/issueforge/issueforge/internal/issue"
	"github.com/issueforge/issueforge/internal/pr"
	"github.com/issueforge/issueforge/internal/prompt"
	"github.com/issueforge/issueforge/internal/runstore"
	"github.com/issueforge/issueforge/internal/trace"
	"github.com/issueforge/issueforge/internal/uievidence"
	"github.com/issueforge/issueforge/internal/workspace"
)

// Orchestrator wires the run pipeline together.
type Orchestrator struct {
	cfg   *config.Config
	rt    *workspace.Runtime
	git   gitx.Runner
	shell agent.ShellRunner
	cmd   gates.CommandRunner
	gh    issue.CmdRunner
	ghPR  pr.CmdRunner

	events *db.DB // nil disables event logging
	logf   func(format string, args ...any)
	now    func() time.Time
}

// New creates an Orchestrator with real exec-backed runners.
func New(cfg *config.Config, rt *workspace.Runtime) *Orchestrator {
	return &Orchestrator{
		cfg:   cfg,
		rt:    rt,
		git:   &gitx.ExecGit{},
		shell: &agent.ExecShell{},
		cmd:   &gates.ExecRunner{},
		gh:    &issue.ExecGH{},
		ghPR:  &pr.ExecGH{},
		logf:  func(string, ...any) {},
		now:   time.Now,
	}
}

// SetRunners replaces the exec-backed runners. For tests.
func (o *Orchestrator) SetRunners(git gitx.Runner, shell agent.ShellRunner, cmd gates.CommandRunner, gh issue.CmdRunner, ghPR pr.CmdRunner) {
	o.git, o.shell, o.cmd, o.gh, o.ghPR = git, shell, cmd, gh, ghPR
}

// SetEvents attaches the run event database.
func (o *Orchestrator) SetEvents(events *db.DB) { o.events = events }

// SetLogger sets the progress logger.
func (o *Orchestrator) SetLogger(logf func(format string, args ...any)) { o.logf = logf }

// SetClock overrides the clock. For tests.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

// RunOpts configures one run.
type RunOpts struct {
	IssueNumber int
	IssueFile   string // load the issue from a file instead of GitHub
	BranchName  string
	BaseBranch  string
	SyncBase    bool

	Push           bool
	CreatePR       bool
	AllowNoChanges bool

	FeedbackPR       int
	FeedbackText     string
	FeedbackMaxItems int
}

// RunResult is the outcome of a run.
type RunResult struct {
	Ctx       *Context
	Status    string // "completed" or "no-changes"
	NoChanges bool
}

// Run executes the full pipeline for one issue.
func (o *Orchestrator) Run(ctx context.Context, opts RunOpts) (*RunResult, error) {
	if opts.CreatePR && !opts.Push {
		return nil, fmt.Errorf("--create-pr requires --push: an unpushed branch has nothing to open a PR from")
	}

	if err := gitx.RequireCleanWorktree(o.git, o.rt.RepoDir); err != nil {
		return nil, err
	}

	iss, err := o.loadIssue(opts)
	if err != nil {
		return nil, err
	}

	rc := &Context{
		Issue:      iss,
		ProjectID:  o.rt.ProjectID,
		RepoSlug:   o.rt.RepoSlug,
		BaseBranch: o.baseBranch(opts),
		FeedbackPR: opts.FeedbackPR,
	}
	rc.BranchName = o.branchName(opts, iss)

	if err := o.collectFeedback(rc, opts); err != nil {
		return nil, err
	}

	run, err := runstore.Create(o.rt.RepoDir, o.rt.RunNamespace, iss.Number, o.now())
	if err != nil {
		return nil, err
	}
	rc.Run = run
	rc.RunTimestamp = run.Timestamp

	o.event(rc, "run_started", "", 0, rc.BranchName)
	o.logf("run %s for issue #%d on %s", run.Timestamp, iss.Number, rc.BranchName)

	if err := run.WriteArtifact("task.md", []byte(taskArtifact(rc))); err != nil {
		return nil, err
	}

	if err := gitx.EnsureBranch(o.git, o.rt.RepoDir, gitx.EnsureBranchOpts{
		BaseBranch: rc.BaseBranch,
		Branch:     rc.BranchName,
		SyncBase:   opts.SyncBase,
	}); err != nil {
		return nil, err
	}

	invoker := agent.NewInvoker(o.shell, run)
	if err := o.runPlanner(ctx, invoker, rc); err != nil {
		o.event(rc, "run_failed", "planner", 0, err.Error())
		return nil, err
	}

	if err := o.runAttemptLoop(ctx, invoker, rc); err != nil {
		o.event(rc, "run_failed", "attempt_loop", rc.Attempts, err.Error())
		return nil, err
	}

	if err := o.runReviewer(ctx, invoker, rc); err != nil {
		o.event(rc, "run_failed", "reviewer", 0, err.Error())
		return nil, err
	}

	if err := o.collectEvidence(rc); err != nil {
		o.event(rc, "run_failed", "evidence", 0, err.Error())
		return nil, err
	}

	agent.CleanupStrayOutputs(o.git, o.rt.RepoDir)

	noChanges, err := o.reconcileCommit(rc, opts)
	if err != nil {
		o.event(rc, "run_failed", "commit", 0, err.Error())
		return nil, err
	}
	if noChanges {
		o.event(rc, "run_no_changes", "commit", 0, rc.Commit.NoChangeReason)
		o.writeSummary(rc, "no-changes")
		return &RunResult{Ctx: rc, Status: "no-changes", NoChanges: true}, nil
	}

	if err := o.verifyTrace(rc); err != nil {
		o.event(rc, "run_failed", "trace_verify", 0, err.Error())
		return nil, err
	}

	if opts.Push {
		if err := gitx.Push(o.git, o.rt.RepoDir, rc.BranchName); err != nil {
			o.event(rc, "run_failed", "push", 0, err.Error())
			return nil, err
		}
		rc.Pushed = true
		o.event(rc, "pushed", "push", 0, rc.Commit.SHA)
	}

	if opts.CreatePR {
		if err := o.reconcilePR(rc); err != nil {
			o.event(rc, "run_failed", "pr", 0, err.Error())
			return nil, err
		}
	}

	o.acknowledgeFeedback(rc)
	o.writeSummary(rc, "completed")
	o.event(rc, "run_finished", "", rc.Attempts, rc.Commit.SHA)
	return &RunResult{Ctx: rc, Status: "completed"}, nil
}

func (o *Orchestrator) loadIssue(opts RunOpts) (*issue.Issue, error) {
	if opts.IssueFile != "" {
		return issue.FromFile(opts.IssueFile, opts.IssueNumber)
	}
	if opts.IssueNumber <= 0 {
		return nil, fmt.Errorf("an issue number is required")
	}
	return issue.NewClient(o.gh, o.rt.RepoDir).Get(opts.IssueNumber)
}

func (o *Orchestrator) baseBranch(opts RunOpts) string {
	if opts.BaseBranch != "" {
		return opts.BaseBranch
	}
	if o.rt.DefaultBaseBranch != "" {
		return o.rt.DefaultBaseBranch
	}
	return o.cfg.BaseBranch
}

func (o *Orchestrator) branchName(opts RunOpts, iss *issue.Issue) string {
	if opts.BranchName != "" {
		return gitx.SanitizeBranch(opts.BranchName)
	}
	prefix := "agent/"
	if o.rt.ProjectID != "" {
		prefix += o.rt.ProjectID + "-"
	}
	slug := titleSlug(iss.Title)
	name := fmt.Sprintf("%sissue-%d", prefix, iss.Number)
	if slug != "" {
		name += "-" + slug
	}
	return gitx.SanitizeBranch(name)
}

func titleSlug(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	if len(slug) > 40 {
		slug = strings.Trim(slug[:40], "-")
	}
	return slug
}

func (o *Orchestrator) collectFeedback(rc *Context, opts RunOpts) error {
	var text *issue.Digest
	if opts.FeedbackText != "" {
		text = issue.DigestFromText(opts.FeedbackText)
	}
	if opts.FeedbackPR > 0 {
		if o.rt.RepoSlug == "" {
			return fmt.Errorf("--feedback-pr needs a repo slug (set --target-repo or use a manifest project)")
		}
		d, err := issue.CollectPRFeedback(o.gh, o.rt.RepoDir, o.rt.RepoSlug, opts.FeedbackPR, opts.FeedbackMaxItems)
		if err != nil {
			return err
		}
		d = issue.MergeDigests(text, d)
		rc.ExternalFeedback = d
		// A rework run continues on the PR's own branches.
		if d.HeadRef != "" {
			rc.BranchName = d.HeadRef
		}
		if d.BaseRef != "" {
			rc.BaseBranch = d.BaseRef
		}
		return nil
	}
	if text != nil {
		rc.ExternalFeedback = text
	}
	return nil
}

func (o *Orchestrator) runPlanner(ctx context.Context, invoker *agent.Invoker, rc *Context) error {
	text, err := prompt.RenderFile(o.cfg.Templates["planner"], o.rt.RepoDir, rc.Vars())
	if err != nil {
		return err
	}
	res, err := invoker.RunStep(ctx, agent.StepOpts{
		Name:            "planner",
		CommandTemplate: o.cfg.Commands["planner"],
		Vars:            rc.Vars(),
		RepoDir:         o.rt.RepoDir,
		PromptText:      text,
		PromptArtifact:  "planner_prompt.md",
		OutputArtifact:  "plan.md",
		LogArtifact:     "planner_log.md",
		RequireOutput:   true,
	})
	if err != nil {
		return err
	}
	rc.PlanMarkdown = res.Output
	o.event(rc, "planned", "planner", 0, "")
	o.logf("plan ready (%d chars)", len(res.Output))
	return nil
}

func (o *Orchestrator) runAttemptLoop(ctx context.Context, invoker *agent.Invoker, rc *Context) error {
	gateRunner := gates.NewRunner(o.cmd, rc.Run.Path)
	loop := &AttemptLoop{MaxAttempts: o.cfg.MaxAttempts}

	coder := func(attempt int, feedback string) error {
		vars := rc.Vars()
		vars["attempt"] = fmt.Sprintf("%d", attempt)
		vars["feedback"] = feedback
		vars["output_file"] = fmt.Sprintf("coder_output_attempt_%d.md", attempt)
		text, err := prompt.RenderFile(o.cfg.Templates["coder"], o.rt.RepoDir, vars)
		if err != nil {
			return err
		}
		_, err = invoker.RunStep(ctx, agent.StepOpts{
			Name:            "coder",
			CommandTemplate: o.cfg.Commands["coder"],
			Vars:            vars,
			RepoDir:         o.rt.RepoDir,
			PromptText:      text,
			PromptArtifact:  fmt.Sprintf("coder_prompt_attempt_%d.md", attempt),
			OutputArtifact:  fmt.Sprintf("coder_output_attempt_%d.md", attempt),
			LogArtifact:     fmt.Sprintf("coder_log_attempt_%d.md", attempt),
		})
		return err
	}

	gateFn := func(attempt int) (bool, string, error) {
		passed, report, _, err := gateRunner.Run(ctx, o.cfg.QualityGates, o.rt.RepoDir, attempt)
		if err != nil {
			return false, report, err
		}
		name := fmt.Sprintf("validation_attempt_%d.md", attempt)
		if werr := rc.Run.WriteArtifact(name, []byte(report)); werr != nil {
			return false, report, werr
		}
		if passed {
			o.event(rc, "gates_passed", "attempt_loop", attempt, "")
		} else {
			o.event(rc, "gates_failed", "attempt_loop", attempt, report)
		}
		return passed, report, nil
	}

	external := ""
	if rc.ExternalFeedback != nil {
		external = rc.ExternalFeedback.Markdown
	}
	res, err := loop.Run(coder, gateFn, external)
	if res != nil {
		rc.Attempts = res.Attempts
		rc.ValidationSummary = res.LastReport
	}
	return err
}

func (o *Orchestrator) runReviewer(ctx context.Context, invoker *agent.Invoker, rc *Context) error {
	command := o.cfg.Commands["reviewer"]
	if command == "" {
		return nil
	}
	text, err := prompt.RenderFile(o.cfg.Templates["reviewer"], o.rt.RepoDir, rc.Vars())
	if err != nil {
		return err
	}
	res, err := invoker.RunStep(ctx, agent.StepOpts{
		Name:            "reviewer",
		CommandTemplate: command,
		Vars:            rc.Vars(),
		RepoDir:         o.rt.RepoDir,
		PromptText:      text,
		PromptArtifact:  "reviewer_prompt.md",
		OutputArtifact:  "review.md",
		LogArtifact:     "reviewer_log.md",
	})
	if err != nil {
		return err
	}
	rc.ReviewMarkdown = res.Output
	o.event(rc, "reviewed", "reviewer", 0, "")
	return nil
}

// collectEvidence runs the three evidence subsystems. Each writes its
// status artifact even when skipped or failed, and each escalates
// through its own required flag. A degraded subsystem records a
// "failed" status so the run summary and artifacts never report a
// clean run over a broken one.
func (o *Orchestrator) collectEvidence(rc *Context) error {
	registrar := trace.NewRegistrar(o.git, rc.Run, o.rt.RepoDir, o.cfg.Trace)
	reg, err := registrar.Register(rc.Vars())
	out, eerr := Escalate(err, o.cfg.Trace.Required, o.warn)
	if eerr != nil {
		return fmt.Errorf("register trace: %w", eerr)
	}
	if err == nil {
		rc.Trace = reg
	} else {
		rc.Trace = &trace.Registration{Status: StatusFailed}
		if werr := rc.Run.WriteJSON("trace_status.json", out); werr != nil {
			return werr
		}
	}

	archiver := ailogs.NewArchiver(o.git, rc.Run, o.rt.RepoDir, o.cfg.AILogs)
	bundle, err := archiver.Save(rc.Vars())
	out, eerr = Escalate(err, o.cfg.AILogs.Required, o.warn)
	if eerr != nil {
		return fmt.Errorf("archive agent logs: %w", eerr)
	}
	if err == nil {
		rc.AILogs = bundle
		pub, perr := archiver.PublishDedicated(bundle, rc.Vars())
		pout, eerr := Escalate(perr, o.cfg.AILogs.PublishRequired(), o.warn)
		if eerr != nil {
			return fmt.Errorf("publish agent logs: %w", eerr)
		}
		if perr == nil {
			rc.AILogsPub = pub
		} else {
			rc.AILogsPub = &ailogs.PublishResult{Status: StatusFailed}
			if werr := rc.Run.WriteJSON("ailogs_publish.json", pout); werr != nil {
				return werr
			}
		}
	} else {
		rc.AILogs = &ailogs.Bundle{Status: StatusFailed}
		if werr := rc.Run.WriteJSON("ailogs_status.json", out); werr != nil {
			return werr
		}
	}

	collector := uievidence.NewCollector(rc.Run, o.rt.RepoDir, o.cfg.UIEvidence)
	ev, err := collector.Collect()
	out, eerr = Escalate(err, o.cfg.UIEvidence.Required, o.warn)
	if eerr != nil {
		return fmt.Errorf("collect UI evidence: %w", eerr)
	}
	if err == nil {
		rc.UIEvidence = ev
	} else {
		rc.UIEvidence = &uievidence.Evidence{Status: StatusFailed}
		if werr := rc.Run.WriteJSON("uievidence_status.json", out); werr != nil {
			return werr
		}
	}

	o.event(rc, "evidence_collected", "evidence", 0, "")
	return nil
}

// reconcileCommit builds the commit message and stages the change.
// Returns true when the run produced no meaningful changes and the
// caller allowed that.
func (o *Orchestrator) reconcileCommit(rc *Context, opts RunOpts) (bool, error) {
	message, err := prompt.Render(o.cfg.CommitMessage, rc.Vars())
	if err != nil {
		return false, fmt.Errorf("render commit message: %w", err)
	}
	if appendix := commitAppendix(rc); appendix != "" {
		message = strings.TrimSpace(message) + "\n\n" + appendix
	}

	var ignore, force, required []string
	if rc.Trace != nil && rc.Trace.Status == "registered" {
		ignore = append(ignore, rc.Trace.File)
		force = append(force, rc.Trace.File)
		if o.cfg.Trace.Required {
			required = append(required, rc.Trace.File)
		}
	}
	if rc.AILogsPub != nil && rc.AILogsPub.Status == "same-branch" {
		ignore = append(ignore, rc.AILogsPub.Paths...)
		force = append(force, rc.AILogsPub.Paths...)
	}
	if rc.UIEvidence != nil {
		ignore = append(ignore, rc.UIEvidence.CommitPaths...)
		force = append(force, rc.UIEvidence.CommitPaths...)
	}

	res, err := gitx.Commit(o.git, o.rt.RepoDir, gitx.CommitOpts{
		Message:       message,
		IgnorePaths:   ignore,
		ForceAddPaths: force,
		RequiredPaths: required,
	})
	if err != nil {
		if errors.Is(err, gitx.ErrNoChanges) {
			rc.Commit.Status = "no-changes"
			rc.Commit.NoChangeReason = err.Error()
			if noErr := rc.Run.WriteArtifact("no_change.md", []byte(noChangeArtifact(rc))); noErr != nil {
				return false, noErr
			}
			if opts.AllowNoChanges {
				o.logf("no meaningful changes; finishing without a commit")
				return true, nil
			}
			return false, fmt.Errorf("No file changes were created by the coder agent. %v", err)
		}
		return false, err
	}

	rc.Commit.Status = "committed"
	rc.Commit.SHA = res.SHA
	rc.Commit.Paths = res.MeaningfulPaths
	o.event(rc, "committed", "commit", 0, res.SHA)
	o.logf("committed %s (%d file(s))", res.SHA, len(res.MeaningfulPaths))
	return false, nil
}

func (o *Orchestrator) verifyTrace(rc *Context) error {
	if rc.Trace == nil {
		return nil
	}
	registrar := trace.NewRegistrar(o.git, rc.Run, o.rt.RepoDir, o.cfg.Trace)
	v, err := registrar.Verify(rc.Trace)
	if err != nil {
		return err
	}
	rc.TraceVerify = v
	if v.Status == "failed" {
		msg := fmt.Sprintf("trace verification failed: %s", strings.Join(v.Problems, "; "))
		if o.cfg.Trace.Required {
			return errors.New(msg)
		}
		o.warn(msg)
	}
	return nil
}

func (o *Orchestrator) reconcilePR(rc *Context) error {
	if o.rt.RepoSlug == "" {
		return fmt.Errorf("--create-pr needs a repo slug (set --target-repo or use a manifest project)")
	}

	vars := rc.Vars()
	vars["pr_title_default"] = issue.DefaultPRTitle(rc.Issue)
	title, err := prompt.Render(o.cfg.PR.Title, vars)
	if err != nil {
		return fmt.Errorf("render PR title: %w", err)
	}

	body, err := prompt.RenderFile(o.cfg.Templates["pr_body"], o.rt.RepoDir, vars)
	if err != nil {
		return fmt.Errorf("render PR body: %w", err)
	}
	body = strings.TrimSpace(body) + "\n\n" + prChecklists(rc)

	client := pr.NewClient(o.ghPR, o.rt.RepoDir, o.rt.RepoSlug)
	res, err := client.Reconcile(pr.ReconcileOpts{
		BaseBranch:     rc.BaseBranch,
		HeadBranch:     rc.BranchName,
		Title:          title,
		Body:           body,
		Labels:         o.cfg.PR.Labels,
		LabelsRequired: o.cfg.PR.LabelsRequired,
		Draft:          o.cfg.PR.Draft,
	})
	if err != nil {
		return err
	}
	rc.PullRequest = res
	for _, w := range res.Warnings {
		o.warn(w)
	}
	if err := rc.Run.WriteJSON("pr.json", res); err != nil {
		return err
	}
	o.event(rc, "pr_"+res.Action, "pr", 0, res.URL)
	o.logf("PR %s: %s", res.Action, res.URL)
	return nil
}

// acknowledgeFeedback comments on the PR when a comment-triggered
// rework run updated it, so the requester sees the loop closed.
// Best-effort: a failed comment never fails the run.
func (o *Orchestrator) acknowledgeFeedback(rc *Context) {
	if rc.ExternalFeedback == nil || !issue.IsCommentTrigger(rc.ExternalFeedback.Reason) {
		return
	}
	if rc.PullRequest == nil || rc.PullRequest.Action != "updated" {
		return
	}
	body := fmt.Sprintf("Applied the requested changes in %s (attempt count: %d).", rc.Commit.SHA, rc.Attempts)
	client := pr.NewClient(o.ghPR, o.rt.RepoDir, o.rt.RepoSlug)
	if err := client.PostComment(rc.PullRequest.Number, body); err != nil {
		o.warn(fmt.Sprintf("feedback acknowledgement failed: %v", err))
	}
}

func (o *Orchestrator) writeSummary(rc *Context, status string) {
	if err := rc.Run.WriteArtifact("summary.md", []byte(runSummary(rc, status))); err != nil {
		o.warn(fmt.Sprintf("write summary: %v", err))
	}
}

func (o *Orchestrator) warn(msg string) {
	o.logf("warning: %s", msg)
}

func (o *Orchestrator) event(rc *Context, event, step string, attempt int, detail string) {
	if o.events == nil {
		return
	}
	project := rc.ProjectID
	if project == "" {
		project = o.rt.RunNamespace
	}
	if err := o.events.LogRunEvent(project, rc.Issue.Number, event, step, attempt, detail); err != nil {
		o.logf("warning: record event %s: %v", event, err)
	}
}

func taskArtifact(rc *Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Issue #%d: %s\n\n", rc.Issue.Number, rc.Issue.Title)
	if rc.Issue.URL != "" {
		fmt.Fprintf(&b, "%s\n\n", rc.Issue.URL)
	}
	b.WriteString(rc.Issue.Body)
	b.WriteString("\n")
	if rc.ExternalFeedback != nil && rc.ExternalFeedback.Markdown != "" {
		b.WriteString("\n## External Feedback\n\n")
		b.WriteString(rc.ExternalFeedback.Markdown)
	}
	return b.String()
}

func noChangeArtifact(rc *Context) string {
	var b strings.Builder
	b.WriteString("# No Changes\n\n")
	b.WriteString("The coder agent finished without producing meaningful file changes.\n\n")
	fmt.Fprintf(&b, "- Attempts: %d\n", rc.Attempts)
	fmt.Fprintf(&b, "- Reason: %s\n", rc.Commit.NoChangeReason)
	if rc.ValidationSummary != "" {
		fmt.Fprintf(&b, "\n## Last Validation\n\n%s", rc.ValidationSummary)
	}
	return b.String()
}
