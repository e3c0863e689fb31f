// Package pr reconciles the run's pull request: exactly one open PR
// per work branch, updated in place when it already exists, with
// labels resolved against what the repository actually has.
package pr

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// CmdRunner provides gh command execution. Interface for testing.
type CmdRunner interface {
	Run(dir string, args ...string) (string, error)
}

// ExecGH runs gh commands via exec.
type ExecGH struct{}

func (r *ExecGH) Run(dir string, args ...string) (string, error) {
	cmd := exec.Command("gh", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("gh %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Client performs PR operations against one repository.
type Client struct {
	gh      CmdRunner
	repoDir string
	slug    string // owner/name
}

// NewClient creates a PR client for the repo at repoDir with the given
// owner/name slug.
func NewClient(gh CmdRunner, repoDir, slug string) *Client {
	return &Client{gh: gh, repoDir: repoDir, slug: slug}
}

// Owner returns the owner half of the slug.
func (c *Client) Owner() string {
	owner, _, _ := strings.Cut(c.slug, "/")
	return owner
}

type ghPR struct {
	Number  int    `json:"number"`
	URL     string `json:"html_url"`
	State   string `json:"state"`
	Draft   bool   `json:"draft"`
	Head    struct{ Ref string } `json:"head"`
	Labels  []struct{ Name string } `json:"labels"`
}

// FindOpen returns the open PR whose head is the given branch, or nil.
func (c *Client) FindOpen(headBranch string) (*ghPR, error) {
	path := fmt.Sprintf("repos/%s/pulls?state=open&head=%s:%s", c.slug, c.Owner(), headBranch)
	out, err := c.gh.Run(c.repoDir, "api", path)
	if err != nil {
		return nil, fmt.Errorf("list open PRs for %s: %w", headBranch, err)
	}
	var prs []ghPR
	if err := json.Unmarshal([]byte(out), &prs); err != nil {
		return nil, fmt.Errorf("parse open PRs: %w", err)
	}
	if len(prs) == 0 {
		return nil, nil
	}
	return &prs[0], nil
}

// PostComment adds a comment to a PR conversation.
func (c *Client) PostComment(number int, body string) error {
	_, err := c.gh.Run(c.repoDir, "api", "--method", "POST",
		fmt.Sprintf("repos/%s/issues/%d/comments", c.slug, number),
		"-f", "body="+body)
	if err != nil {
		return fmt.Errorf("post comment on PR #%d: %w", number, err)
	}
	return nil
}
