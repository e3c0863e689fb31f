package orchestrator

import "fmt"

// Outcome statuses for optional subsystems.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Outcome is the recorded result of an optional pipeline step.
type Outcome struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Escalate converts a step error into either a fatal error or a
// warning outcome, depending on whether the step is required. warn
// receives the message in the non-fatal case so the caller can log it.
func Escalate(err error, required bool, warn func(string)) (Outcome, error) {
	if err == nil {
		return Outcome{Status: StatusSuccess}, nil
	}
	if required {
		return Outcome{Status: StatusFailed, Reason: err.Error()}, err
	}
	if warn != nil {
		warn(fmt.Sprintf("optional step failed, continuing: %v", err))
	}
	return Outcome{Status: StatusFailed, Reason: err.Error()}, nil
}
