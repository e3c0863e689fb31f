// Package gates runs the configured quality-gate commands for an
// attempt and renders the markdown report fed back to the coder agent.
package gates

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// CommandRunner abstracts command execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, dir string, command string) (stdout string, stderr string, exitCode int, err error)
}

// ExecRunner implements CommandRunner by shelling out.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
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

// GateResult records one gate command's outcome within an attempt.
type GateResult struct {
	Command  string
	Passed   bool
	ExitCode int
	LogFile  string
}

// Runner executes quality gates and writes per-gate logs into the run
// directory.
type Runner struct {
	cmd     CommandRunner
	logDir  string
	timeout time.Duration
}

// NewRunner creates a gate runner that writes logs under logDir.
func NewRunner(cmd CommandRunner, logDir string) *Runner {
	return &Runner{cmd: cmd, logDir: logDir, timeout: 10 * time.Minute}
}

// LogName returns the log filename for a gate within an attempt.
// Attempts are 1-based, gate indexes 0-based, matching the order the
// gates appear in config.
func LogName(attempt, index int) string {
	return fmt.Sprintf("gate-attempt-%d-%d.log", attempt, index)
}

// Run executes every configured gate in order, stopping at the first
// failure. It returns whether all gates passed and a markdown report
// listing each executed gate. An empty gate list passes by policy:
// projects opt in to gating, and no configured gates means the project
// deliberately ships unguarded.
func (r *Runner) Run(ctx context.Context, gateCmds []string, dir string, attempt int) (bool, string, []GateResult, error) {
	if len(gateCmds) == 0 {
		return true, "- No quality gates configured.\n", nil, nil
	}

	var report strings.Builder
	var results []GateResult
	passed := true

	for i, gateCmd := range gateCmds {
		gateCtx, cancel := context.WithTimeout(ctx, r.timeout)
		stdout, stderr, exitCode, err := r.cmd.Run(gateCtx, dir, gateCmd)
		cancel()
		if err != nil {
			return false, report.String(), results, fmt.Errorf("run gate %q: %w", gateCmd, err)
		}

		logName := LogName(attempt, i)
		if werr := r.writeLog(logName, gateCmd, exitCode, stdout, stderr); werr != nil {
			return false, report.String(), results, werr
		}

		res := GateResult{Command: gateCmd, Passed: exitCode == 0, ExitCode: exitCode, LogFile: logName}
		results = append(results, res)

		if res.Passed {
			fmt.Fprintf(&report, "- PASS `%s`\n", gateCmd)
			continue
		}
		passed = false
		fmt.Fprintf(&report, "- FAIL `%s` (see `%s`)\n", gateCmd, logName)
		break
	}

	return passed, report.String(), results, nil
}

func (r *Runner) writeLog(name, command string, exitCode int, stdout, stderr string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Gate\n%s\n\n", command)
	fmt.Fprintf(&b, "# Exit Code\n%d\n\n", exitCode)
	fmt.Fprintf(&b, "# Stdout\n%s\n\n", stdout)
	fmt.Fprintf(&b, "# Stderr\n%s\n", stderr)

	path := filepath.Join(r.logDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create gate log dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write gate log %s: %w", name, err)
	}
	return nil
}
