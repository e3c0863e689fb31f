// Package agent invokes the external AI agent commands (planner,
// coder, reviewer) and manages their prompt and output files.
package agent

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/issueforge/issueforge/internal/prompt"
	"github.com/issueforge/issueforge/internal/runstore"
)

// ShellRunner executes an agent command line. Interface for testing.
type ShellRunner interface {
	Run(ctx context.Context, dir string, command string) (stdout string, stderr string, exitCode int, err error)
}

// ExecShell implements ShellRunner by shelling out.
type ExecShell struct{}

func (e *ExecShell) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return stdoutBuf.String(), stderrBuf.String(), -1, fmt.Errorf("exec: %w", err)
		}
	}
	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

var envVarRe = regexp.MustCompile(`\$\{?([A-Za-z_][A-Za-z0-9_]*)\}?`)

// ResolveCommand expands $VAR and ${VAR} references in a configured
// agent command from the environment, so configs can say
// "$AGENT_BIN --print" without hardcoding install paths.
func ResolveCommand(command string) string {
	return envVarRe.ReplaceAllStringFunc(command, func(match string) string {
		m := envVarRe.FindStringSubmatch(match)
		if m == nil {
			return match
		}
		if val, ok := os.LookupEnv(m[1]); ok {
			return val
		}
		return match
	})
}

// Invoker runs agent steps and archives their prompts and output in
// the run directory.
type Invoker struct {
	shell ShellRunner
	run   *runstore.Dir
}

// NewInvoker creates an Invoker writing artifacts to run.
func NewInvoker(shell ShellRunner, run *runstore.Dir) *Invoker {
	return &Invoker{shell: shell, run: run}
}

// StepOpts configures one agent invocation.
type StepOpts struct {
	Name            string // "planner", "coder", "reviewer"
	CommandTemplate string // configured command, may reference {{prompt_file}} and {{output_file}} and $ENV vars
	Vars            prompt.Vars
	RepoDir         string
	PromptText      string
	PromptArtifact  string // run-dir artifact name for the prompt
	OutputArtifact  string // run-dir artifact name the agent writes; recovered from repo root if misplaced
	LogArtifact     string // run-dir artifact name for the raw stdout/stderr log
	RequireOutput   bool
}

// StepResult describes a completed agent step.
type StepResult struct {
	Output   string
	ExitCode int
}

const excerptChars = 1200

// RunStep renders the agent command, executes it, and archives the
// prompt, raw log, and output artifact. A non-zero agent exit is fatal:
// gate failures are retryable, a broken agent binary is not.
func (iv *Invoker) RunStep(ctx context.Context, opts StepOpts) (*StepResult, error) {
	if err := iv.run.WriteArtifact(opts.PromptArtifact, []byte(opts.PromptText)); err != nil {
		return nil, err
	}

	vars := prompt.Vars{}
	for k, v := range opts.Vars {
		vars[k] = v
	}
	vars["prompt_file"] = iv.run.ArtifactPath(opts.PromptArtifact)
	if opts.OutputArtifact != "" {
		vars["output_file"] = iv.run.ArtifactPath(opts.OutputArtifact)
	}

	command, err := prompt.Render(ResolveCommand(opts.CommandTemplate), vars)
	if err != nil {
		return nil, fmt.Errorf("render %s command: %w", opts.Name, err)
	}

	stdout, stderr, exitCode, err := iv.shell.Run(ctx, opts.RepoDir, command)

	log := fmt.Sprintf("# Command\n%s\n\n# Exit Code\n%d\n\n# Stdout\n%s\n\n# Stderr\n%s\n", command, exitCode, stdout, stderr)
	if opts.LogArtifact != "" {
		if werr := iv.run.WriteArtifact(opts.LogArtifact, []byte(log)); werr != nil {
			return nil, werr
		}
	}

	if err != nil {
		return nil, fmt.Errorf("run %s agent: %w", opts.Name, err)
	}
	if exitCode != 0 {
		return nil, fmt.Errorf("%s agent exited with code %d\nstdout: %s\nstderr: %s",
			opts.Name, exitCode, excerpt(stdout), excerpt(stderr))
	}

	output := ""
	if opts.OutputArtifact != "" {
		output, err = iv.collectOutput(opts, stdout)
		if err != nil {
			return nil, err
		}
	}
	return &StepResult{Output: output, ExitCode: exitCode}, nil
}

// collectOutput finds the agent's output file. Agents sometimes write
// it into the repo root instead of the absolute path they were given;
// recover it from there before falling back to stdout.
func (iv *Invoker) collectOutput(opts StepOpts, stdout string) (string, error) {
	if iv.run.HasArtifact(opts.OutputArtifact) {
		data, err := iv.run.ReadArtifact(opts.OutputArtifact)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	misplaced := filepath.Join(opts.RepoDir, filepath.Base(opts.OutputArtifact))
	if data, err := os.ReadFile(misplaced); err == nil {
		if werr := iv.run.WriteArtifact(opts.OutputArtifact, data); werr != nil {
			return "", werr
		}
		os.Remove(misplaced)
		return string(data), nil
	}

	if strings.TrimSpace(stdout) != "" {
		if werr := iv.run.WriteArtifact(opts.OutputArtifact, []byte(stdout)); werr != nil {
			return "", werr
		}
		return stdout, nil
	}

	if opts.RequireOutput {
		return "", fmt.Errorf("%s agent produced no output (expected %s)", opts.Name, opts.OutputArtifact)
	}
	return "", nil
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= excerptChars {
		return s
	}
	return s[len(s)-excerptChars:]
}
