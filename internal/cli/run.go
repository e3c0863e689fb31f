package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/issueforge/issueforge/internal/config"
	"github.com/issueforge/issueforge/internal/db"
	"github.com/issueforge/issueforge/internal/gitx"
	"github.com/issueforge/issueforge/internal/orchestrator"
	"github.com/issueforge/issueforge/internal/workspace"
)

var runFlags struct {
	issue     int
	issueFile string

	project      string
	projectsFile string
	targetRepo   string
	targetPath   string

	configPath string
	setJSON    string

	baseBranch string
	branchName string
	noSync     bool

	push           bool
	createPR       bool
	allowNoChanges bool

	feedbackPR       int
	feedbackFile     string
	feedbackText     string
	feedbackMaxItems int
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an issue through plan, implement, gates, and delivery",
	Long: `Run drives one issue end to end: it branches off the base branch,
has the planner and coder agents produce the change, retries until the
quality gates pass, collects the evidence trail, commits, and
optionally pushes and reconciles the pull request.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := workspace.Resolve(&gitx.ExecGit{}, workspace.Opts{
			ProjectID:    runFlags.project,
			ManifestPath: runFlags.projectsFile,
			TargetRepo:   runFlags.targetRepo,
			TargetPath:   runFlags.targetPath,
			BaseBranch:   runFlags.baseBranch,
		})
		if err != nil {
			return err
		}

		cfg, err := loadRunConfig(rt)
		if err != nil {
			return err
		}

		feedbackText := runFlags.feedbackText
		if runFlags.feedbackFile != "" {
			data, err := os.ReadFile(runFlags.feedbackFile)
			if err != nil {
				return fmt.Errorf("read feedback file: %w", err)
			}
			feedbackText = string(data)
		}

		orch := orchestrator.New(cfg, rt)
		orch.SetLogger(progressLogger(cmd))

		if events, err := openEvents(); err == nil {
			defer events.Close()
			orch.SetEvents(events)
		} else {
			fmt.Fprintln(cmd.ErrOrStderr(), styleWarning.Render(fmt.Sprintf("event log unavailable: %v", err)))
		}

		res, err := orch.Run(cmd.Context(), orchestrator.RunOpts{
			IssueNumber:      runFlags.issue,
			IssueFile:        runFlags.issueFile,
			BranchName:       runFlags.branchName,
			BaseBranch:       runFlags.baseBranch,
			SyncBase:         !runFlags.noSync,
			Push:             runFlags.push,
			CreatePR:         runFlags.createPR,
			AllowNoChanges:   runFlags.allowNoChanges,
			FeedbackPR:       runFlags.feedbackPR,
			FeedbackText:     feedbackText,
			FeedbackMaxItems: runFlags.feedbackMaxItems,
		})
		if err != nil {
			return err
		}

		printRunResult(cmd, res)
		return nil
	},
}

// loadRunConfig resolves the layered run config: explicit --config or
// the repo's own .issueforge file as the base, the manifest project's
// overlay on top, inline JSON overrides last.
func loadRunConfig(rt *workspace.Runtime) (*config.Config, error) {
	base := runFlags.configPath
	if base == "" {
		for _, name := range []string{".issueforge.yaml", ".issueforge.yml", ".issueforge.json"} {
			candidate := filepath.Join(rt.RepoDir, name)
			if _, err := os.Stat(candidate); err == nil {
				base = candidate
				break
			}
		}
	}
	var inline []byte
	if runFlags.setJSON != "" {
		inline = []byte(runFlags.setJSON)
	}
	return config.Load(base, []string{rt.ConfigOverlay}, inline)
}

func openEvents() (*db.DB, error) {
	path, err := db.DefaultDBPath()
	if err != nil {
		return nil, err
	}
	d, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func progressLogger(cmd *cobra.Command) func(format string, args ...any) {
	return func(format string, args ...any) {
		line := fmt.Sprintf(format, args...)
		style := styleInfo
		if strings.HasPrefix(line, "warning:") {
			style = styleWarning
		}
		fmt.Fprintln(cmd.ErrOrStderr(), style.Render(line))
	}
}

func printRunResult(cmd *cobra.Command, res *orchestrator.RunResult) {
	w := cmd.OutOrStdout()
	rc := res.Ctx

	if res.NoChanges {
		fmt.Fprintln(w, styleWarning.Render(fmt.Sprintf("Issue #%d produced no changes.", rc.Issue.Number)))
		fmt.Fprintln(w, styleMuted.Render("  run dir: "+rc.Run.Path))
		return
	}

	fmt.Fprintln(w, styleSuccess.Render(fmt.Sprintf("Issue #%d resolved in %d attempt(s).", rc.Issue.Number, rc.Attempts)))
	fmt.Fprintln(w, styleMuted.Render("  branch:  "+rc.BranchName))
	fmt.Fprintln(w, styleMuted.Render("  commit:  "+rc.Commit.SHA))
	if rc.PullRequest != nil {
		fmt.Fprintln(w, styleMuted.Render(fmt.Sprintf("  pr:      %s (%s)", rc.PullRequest.URL, rc.PullRequest.Action)))
	}
	fmt.Fprintln(w, styleMuted.Render("  run dir: "+rc.Run.Path))
}

func init() {
	f := runCmd.Flags()
	f.IntVar(&runFlags.issue, "issue", 0, "issue number to run")
	f.StringVar(&runFlags.issueFile, "issue-file", "", "read the issue from a markdown file instead of GitHub")

	f.StringVar(&runFlags.project, "project", "", "project ID from the projects manifest")
	f.StringVar(&runFlags.projectsFile, "projects-file", "", "path to the projects manifest")
	f.StringVar(&runFlags.targetRepo, "target-repo", "", "owner/name slug, overrides remote detection")
	f.StringVar(&runFlags.targetPath, "target-path", "", "path to the target checkout")

	f.StringVar(&runFlags.configPath, "config", "", "path to the run config file")
	f.StringVar(&runFlags.setJSON, "set-json", "", "inline JSON config overrides, applied last")

	f.StringVar(&runFlags.baseBranch, "base-branch", "", "base branch to branch from")
	f.StringVar(&runFlags.branchName, "branch-name", "", "work branch name, derived from the issue when unset")
	f.BoolVar(&runFlags.noSync, "no-sync", false, "skip pulling the base branch before branching")

	f.BoolVar(&runFlags.push, "push", false, "push the work branch after committing")
	f.BoolVar(&runFlags.createPR, "create-pr", false, "create or update the pull request (requires --push)")
	f.BoolVar(&runFlags.allowNoChanges, "allow-no-changes", false, "finish cleanly when the coder produces no changes")

	f.IntVar(&runFlags.feedbackPR, "feedback-pr", 0, "rework run: collect review feedback from this PR")
	f.StringVar(&runFlags.feedbackFile, "feedback-file", "", "rework run: read feedback from a file")
	f.StringVar(&runFlags.feedbackText, "feedback-text", "", "rework run: feedback text passed to the coder")
	f.IntVar(&runFlags.feedbackMaxItems, "feedback-max-items", 20, "keep at most this many feedback items, newest first")
}
