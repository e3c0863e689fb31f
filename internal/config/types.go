// Package config loads and validates run configuration. Config files
// are JSON or YAML; overlays deep-merge over the base file so projects
// can override a handful of keys without repeating the whole document.
package config

// Config is the top-level run configuration.
type Config struct {
	BaseBranch    string            `koanf:"base_branch"`
	MaxAttempts   int               `koanf:"max_attempts"`
	CommitMessage string            `koanf:"commit_message"`
	QualityGates  []string          `koanf:"quality_gates"`
	Commands      map[string]string `koanf:"commands"`
	Templates     map[string]string `koanf:"templates"`
	PR            PRConfig          `koanf:"pr"`
	Trace         TraceConfig       `koanf:"trace"`
	AILogs        AILogsConfig      `koanf:"ai_logs"`
	UIEvidence    UIEvidenceConfig  `koanf:"ui_evidence"`
}

// PRConfig controls pull request reconciliation.
type PRConfig struct {
	Title          string   `koanf:"title"`
	Labels         []string `koanf:"labels"`
	LabelsRequired bool     `koanf:"labels_required"`
	Draft          bool     `koanf:"draft"`
}

// TraceConfig controls the prompt/output trace bundle committed with
// the change.
type TraceConfig struct {
	Enabled         bool   `koanf:"enabled"`
	Required        bool   `koanf:"required"`
	ArtifactPath    string `koanf:"artifact_path"`
	AppendTrailers  bool   `koanf:"append_trailers"`
	MaxSectionChars int    `koanf:"max_section_chars"`
}

// AILogsConfig controls archiving of the raw agent logs.
type AILogsConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Required  bool          `koanf:"required"`
	Path      string        `koanf:"path"`
	IndexFile string        `koanf:"index_file"`
	Publish   PublishConfig `koanf:"publish"`
}

// PublishConfig controls where archived logs land: on the feature
// branch alongside the change, or on a dedicated logs branch.
type PublishConfig struct {
	Mode          string `koanf:"mode"` // "same-branch" or "dedicated-branch"
	Branch        string `koanf:"branch"`
	Required      *bool  `koanf:"required"` // nil inherits ai_logs.required
	CommitMessage string `koanf:"commit_message"`
}

// UIEvidenceConfig controls collection of screenshots and other image
// evidence the coder agent drops in the repo.
type UIEvidenceConfig struct {
	Enabled         bool     `koanf:"enabled"`
	Required        bool     `koanf:"required"`
	RepoDir         string   `koanf:"repo_dir"`
	ArtifactDir     string   `koanf:"artifact_dir"`
	ImageExtensions []string `koanf:"image_extensions"`
	DeliveryMode    string   `koanf:"delivery_mode"` // "artifact-only" or "commit"
}

// Publish modes.
const (
	PublishSameBranch      = "same-branch"
	PublishDedicatedBranch = "dedicated-branch"
)

// UI evidence delivery modes.
const (
	DeliveryArtifactOnly = "artifact-only"
	DeliveryCommit       = "commit"
)

// PublishRequired resolves the publish step's required flag, falling
// back to the archive-level flag when unset.
func (c AILogsConfig) PublishRequired() bool {
	if c.Publish.Required != nil {
		return *c.Publish.Required
	}
	return c.Required
}

func defaults() *Config {
	return &Config{
		BaseBranch:    "main",
		MaxAttempts:   3,
		CommitMessage: "fix: resolve issue #{{issue_number}}\n\n{{issue_title}}",
		Templates: map[string]string{
			"planner": "planner.md",
			"coder":   "coder.md",
			"pr_body": "pr_body.md",
		},
		PR: PRConfig{
			Title:          "{{pr_title_default}}",
			LabelsRequired: true,
		},
		Trace: TraceConfig{
			Enabled:         true,
			Required:        true,
			ArtifactPath:    ".trace/evidence/issue-{{issue_number}}-{{run_timestamp}}.md",
			AppendTrailers:  true,
			MaxSectionChars: 6000,
		},
		AILogs: AILogsConfig{
			Enabled:   true,
			Required:  true,
			Path:      "ai-logs/issue-{{issue_number}}-{{run_timestamp}}",
			IndexFile: "index.md",
			Publish: PublishConfig{
				Mode:          PublishSameBranch,
				Branch:        "agent-ai-logs",
				CommitMessage: "chore: archive agent logs for issue #{{issue_number}} ({{run_timestamp}})",
			},
		},
		UIEvidence: UIEvidenceConfig{
			Enabled:         true,
			Required:        false,
			RepoDir:         ".issueforge/ui-evidence",
			ArtifactDir:     "ui-evidence",
			ImageExtensions: []string{".png", ".jpg", ".jpeg", ".webp", ".gif"},
			DeliveryMode:    DeliveryArtifactOnly,
		},
	}
}
