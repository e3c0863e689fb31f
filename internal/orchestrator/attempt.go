package orchestrator

import (
	"fmt"
	"strings"
)

// Feedback size limits. External feedback is clipped before gate
// feedback so a long review cannot push the gate report out of the
// composed prompt section.
const (
	externalFeedbackBudget = 6000
	feedbackBudget         = 8000
)

// CoderFunc runs the coder agent for one attempt with the composed
// feedback from the previous attempt ("" on the first).
type CoderFunc func(attempt int, feedback string) error

// GateFunc runs the quality gates for an attempt and returns whether
// they passed plus the markdown report.
type GateFunc func(attempt int) (bool, string, error)

// AttemptLoop retries the coder until the gates pass or attempts run
// out. A coder error is fatal immediately: gates failing means the
// work needs another try, the coder failing means the tooling is
// broken and retrying would burn attempts on the same crash.
type AttemptLoop struct {
	MaxAttempts int
}

// LoopResult describes a finished attempt loop. LastReport is always
// the report of the final executed attempt, pass or fail, so callers
// can surface it in the commit and PR body.
type LoopResult struct {
	Passed     bool
	Attempts   int
	LastReport string
}

// Run executes the loop. externalFeedback (PR review digest or CLI
// text) is included in every attempt's feedback; gate reports only
// from the second attempt on.
func (l *AttemptLoop) Run(coder CoderFunc, gates GateFunc, externalFeedback string) (*LoopResult, error) {
	if l.MaxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts must be positive, got %d", l.MaxAttempts)
	}

	external := clip(externalFeedback, externalFeedbackBudget)
	gateReport := ""
	res := &LoopResult{}

	for attempt := 1; attempt <= l.MaxAttempts; attempt++ {
		res.Attempts = attempt

		if err := coder(attempt, composeFeedback(external, gateReport)); err != nil {
			return nil, fmt.Errorf("attempt %d: %w", attempt, err)
		}

		passed, report, err := gates(attempt)
		if err != nil {
			return nil, fmt.Errorf("attempt %d gates: %w", attempt, err)
		}
		res.LastReport = report
		if passed {
			res.Passed = true
			return res, nil
		}
		gateReport = report
	}

	return res, fmt.Errorf("quality gates still failing after %d attempt(s):\n%s", res.Attempts, res.LastReport)
}

// composeFeedback merges external feedback and the previous gate
// report under one budget, clipping the whole thing as a last resort.
func composeFeedback(external, gateReport string) string {
	var parts []string
	if external != "" {
		parts = append(parts, external)
	}
	if gateReport != "" {
		parts = append(parts, "The previous attempt failed these quality gates:\n"+gateReport)
	}
	return clip(strings.Join(parts, "\n\n"), feedbackBudget)
}

func clip(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... (truncated)"
}
