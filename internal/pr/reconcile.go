package pr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ReconcileOpts configures a reconciliation pass.
type ReconcileOpts struct {
	BaseBranch     string
	HeadBranch     string
	Title          string
	Body           string
	Labels         []string
	LabelsRequired bool
	Draft          bool
}

// ReconcileResult describes the PR after reconciliation.
type ReconcileResult struct {
	URL           string   `json:"url"`
	Number        int      `json:"number"`
	Action        string   `json:"action"` // "created" or "updated"
	AppliedLabels []string `json:"applied_labels,omitempty"`
	DroppedLabels []string `json:"dropped_labels,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

// Reconcile converges on exactly one open PR for the head branch:
// updating title, body, and base when one exists, creating it
// otherwise. Labels are applied afterwards and verified by re-reading
// them from the API rather than trusting the write call.
func (c *Client) Reconcile(opts ReconcileOpts) (*ReconcileResult, error) {
	if opts.HeadBranch == "" || opts.BaseBranch == "" {
		return nil, fmt.Errorf("head and base branches are required")
	}

	existing, err := c.FindOpen(opts.HeadBranch)
	if err != nil {
		return nil, err
	}

	res := &ReconcileResult{}
	if existing != nil {
		res.Action = "updated"
		res.Number = existing.Number
		res.URL = existing.URL
		_, err := c.gh.Run(c.repoDir, "api", "--method", "PATCH",
			fmt.Sprintf("repos/%s/pulls/%d", c.slug, existing.Number),
			"-f", "title="+opts.Title,
			"-f", "body="+opts.Body,
			"-f", "base="+opts.BaseBranch)
		if err != nil {
			return nil, fmt.Errorf("update PR #%d: %w", existing.Number, err)
		}
		if existing.Draft && !opts.Draft {
			if err := c.markReady(existing.Number); err != nil {
				return nil, err
			}
		}
	} else {
		res.Action = "created"
		args := []string{"api", "--method", "POST",
			fmt.Sprintf("repos/%s/pulls", c.slug),
			"-f", "title=" + opts.Title,
			"-f", "body=" + opts.Body,
			"-f", "head=" + opts.HeadBranch,
			"-f", "base=" + opts.BaseBranch,
		}
		if opts.Draft {
			args = append(args, "-F", "draft=true")
		}
		out, err := c.gh.Run(c.repoDir, args...)
		if err != nil {
			return nil, fmt.Errorf("create PR for %s: %w", opts.HeadBranch, err)
		}
		var created ghPR
		if jerr := json.Unmarshal([]byte(out), &created); jerr == nil && created.Number > 0 {
			res.Number = created.Number
			res.URL = created.URL
		} else {
			// Creation succeeded but the response was not parseable;
			// resolve the number by looking the PR up again.
			found, ferr := c.FindOpen(opts.HeadBranch)
			if ferr != nil {
				return nil, fmt.Errorf("resolve created PR for %s: %w", opts.HeadBranch, ferr)
			}
			if found == nil {
				return nil, fmt.Errorf("created a PR for %s but no open PR was found afterwards", opts.HeadBranch)
			}
			res.Number = found.Number
			res.URL = found.URL
		}
	}

	if len(opts.Labels) > 0 {
		applied, dropped, warnings, err := c.applyLabels(res.Number, opts.Labels)
		if err != nil {
			return nil, err
		}
		res.AppliedLabels = applied
		res.DroppedLabels = dropped
		res.Warnings = warnings
		if opts.LabelsRequired && len(applied) == 0 {
			return nil, fmt.Errorf("no labels could be applied to PR #%d (wanted %v)", res.Number, opts.Labels)
		}
	}

	return res, nil
}

// markReady flips a draft PR to ready for review, tolerating the API
// telling us it already is.
func (c *Client) markReady(number int) error {
	out, err := c.gh.Run(c.repoDir, "pr", "ready", fmt.Sprintf("%d", number))
	if err != nil {
		low := strings.ToLower(out + " " + err.Error())
		if strings.Contains(low, "already") && strings.Contains(low, "ready") {
			return nil
		}
		if strings.Contains(low, "not a draft") {
			return nil
		}
		return fmt.Errorf("mark PR #%d ready: %w", number, err)
	}
	return nil
}
