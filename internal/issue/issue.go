// Package issue loads the work item driving a run, either from GitHub
// via the gh CLI or from a local markdown file, and digests pull
// request feedback for rework runs.
package issue

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
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

// Issue is the work item a run implements.
type Issue struct {
	Number int      `json:"number"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	URL    string   `json:"url"`
	State  string   `json:"state"`
	Labels []string `json:"-"`
}

// Client fetches issues from GitHub.
type Client struct {
	gh      CmdRunner
	repoDir string
}

// NewClient creates an issue client operating in repoDir.
func NewClient(gh CmdRunner, repoDir string) *Client {
	return &Client{gh: gh, repoDir: repoDir}
}

type ghLabel struct {
	Name string `json:"name"`
}

type ghIssue struct {
	Number int       `json:"number"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	URL    string    `json:"url"`
	State  string    `json:"state"`
	Labels []ghLabel `json:"labels"`
}

// Get fetches an issue by number via the gh CLI.
func (c *Client) Get(number int) (*Issue, error) {
	out, err := c.gh.Run(c.repoDir, "issue", "view", strconv.Itoa(number),
		"--json", "number,title,body,url,state,labels")
	if err != nil {
		return nil, fmt.Errorf("fetch issue #%d: %w", number, err)
	}
	var raw ghIssue
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("parse issue #%d: %w", number, err)
	}
	iss := &Issue{
		Number: raw.Number,
		Title:  raw.Title,
		Body:   raw.Body,
		URL:    raw.URL,
		State:  raw.State,
	}
	for _, l := range raw.Labels {
		iss.Labels = append(iss.Labels, l.Name)
	}
	return iss, nil
}

// FromFile reads an issue from a local markdown file. The first
// non-empty line becomes the title, with a leading "# " stripped; the
// rest is the body. Used for offline runs and tests.
func FromFile(path string, number int) (*Issue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read issue file: %w", err)
	}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	title := ""
	bodyStart := 0
	for i, line := range lines {
		if t := strings.TrimSpace(line); t != "" {
			title = strings.TrimSpace(strings.TrimPrefix(t, "# "))
			bodyStart = i + 1
			break
		}
	}
	if title == "" {
		return nil, fmt.Errorf("issue file %s is empty", path)
	}
	body := strings.TrimSpace(strings.Join(lines[bodyStart:], "\n"))
	return &Issue{Number: number, Title: title, Body: body, State: "OPEN"}, nil
}
