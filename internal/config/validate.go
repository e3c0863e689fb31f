package config

import "fmt"

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a Config for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError

	if cfg.MaxAttempts <= 0 {
		errs = append(errs, ValidationError{Field: "max_attempts", Message: "must be positive"})
	}
	if cfg.BaseBranch == "" {
		errs = append(errs, ValidationError{Field: "base_branch", Message: "is required"})
	}
	if cfg.CommitMessage == "" {
		errs = append(errs, ValidationError{Field: "commit_message", Message: "is required"})
	}

	for _, cmd := range []string{"planner", "coder"} {
		if cfg.Commands[cmd] == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("commands.%s", cmd),
				Message: "is required",
			})
		}
	}
	for _, tmpl := range []string{"planner", "coder", "pr_body"} {
		if cfg.Templates[tmpl] == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("templates.%s", tmpl),
				Message: "is required",
			})
		}
	}
	// The reviewer step is optional, but enabling the command without a
	// template (or the reverse) is a config mistake.
	if cfg.Commands["reviewer"] != "" && cfg.Templates["reviewer"] == "" {
		errs = append(errs, ValidationError{Field: "templates.reviewer", Message: "is required when commands.reviewer is set"})
	}

	switch cfg.AILogs.Publish.Mode {
	case PublishSameBranch, PublishDedicatedBranch:
	default:
		errs = append(errs, ValidationError{
			Field:   "ai_logs.publish.mode",
			Message: fmt.Sprintf("must be %q or %q", PublishSameBranch, PublishDedicatedBranch),
		})
	}
	if cfg.AILogs.Publish.Mode == PublishDedicatedBranch && cfg.AILogs.Publish.Branch == "" {
		errs = append(errs, ValidationError{Field: "ai_logs.publish.branch", Message: "is required for dedicated-branch mode"})
	}

	switch cfg.UIEvidence.DeliveryMode {
	case DeliveryArtifactOnly, DeliveryCommit:
	default:
		errs = append(errs, ValidationError{
			Field:   "ui_evidence.delivery_mode",
			Message: fmt.Sprintf("must be %q or %q", DeliveryArtifactOnly, DeliveryCommit),
		})
	}

	return errs
}
