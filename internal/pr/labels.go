package pr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// labelAliases maps a wanted label to fallbacks tried in order when
// the repository does not define it.
var labelAliases = map[string][]string{
	"agent/":     {"agent-task", "agent"},
	"agent-task": {"agent/", "agent"},
}

// labelColor picks a creation color for a label the repo lacks.
func labelColor(name string) string {
	if strings.HasPrefix(strings.ToLower(name), "agent") {
		return "0E8A16"
	}
	return "1D76DB"
}

type ghLabel struct {
	Name string `json:"name"`
}

// availableLabels fetches the repository's label set, lowercased for
// case-insensitive matching (GitHub treats label names that way).
func (c *Client) availableLabels() (map[string]string, error) {
	out, err := c.gh.Run(c.repoDir, "api", fmt.Sprintf("repos/%s/labels", c.slug), "--paginate")
	if err != nil {
		return nil, fmt.Errorf("list repo labels: %w", err)
	}
	var labels []ghLabel
	if err := json.Unmarshal([]byte(out), &labels); err != nil {
		return nil, fmt.Errorf("parse repo labels: %w", err)
	}
	byLower := make(map[string]string, len(labels))
	for _, l := range labels {
		byLower[strings.ToLower(l.Name)] = l.Name
	}
	return byLower, nil
}

// applyLabels resolves each wanted label against the repo: exact match
// first, then aliases, then creating the label outright. Labels that
// survive none of that are dropped with a warning rather than failing
// the run. The applied set is verified by re-reading the PR's labels.
func (c *Client) applyLabels(number int, wanted []string) (applied, dropped, warnings []string, err error) {
	available, err := c.availableLabels()
	if err != nil {
		return nil, nil, nil, err
	}

	var resolved []string
	for _, want := range wanted {
		name, ok := c.resolveLabel(want, available)
		if !ok {
			dropped = append(dropped, want)
			warnings = append(warnings, fmt.Sprintf("label %q could not be resolved or created; dropped", want))
			continue
		}
		resolved = append(resolved, name)
	}
	if len(resolved) == 0 {
		return nil, dropped, warnings, nil
	}

	args := []string{"api", "--method", "POST",
		fmt.Sprintf("repos/%s/issues/%d/labels", c.slug, number)}
	for _, l := range resolved {
		args = append(args, "-f", "labels[]="+l)
	}
	if _, err := c.gh.Run(c.repoDir, args...); err != nil {
		return nil, dropped, warnings, fmt.Errorf("apply labels to PR #%d: %w", number, err)
	}

	// Trust the read, not the write.
	out, err := c.gh.Run(c.repoDir, "api", fmt.Sprintf("repos/%s/issues/%d/labels", c.slug, number))
	if err != nil {
		return nil, dropped, warnings, fmt.Errorf("verify labels on PR #%d: %w", number, err)
	}
	var current []ghLabel
	if err := json.Unmarshal([]byte(out), &current); err != nil {
		return nil, dropped, warnings, fmt.Errorf("parse PR labels: %w", err)
	}
	present := make(map[string]bool, len(current))
	for _, l := range current {
		present[strings.ToLower(l.Name)] = true
	}
	for _, l := range resolved {
		if present[strings.ToLower(l)] {
			applied = append(applied, l)
		} else {
			warnings = append(warnings, fmt.Sprintf("label %q did not stick on PR #%d", l, number))
		}
	}
	return applied, dropped, warnings, nil
}

// resolveLabel finds a usable repository label for want: the label
// itself, an alias, or a freshly created one.
func (c *Client) resolveLabel(want string, available map[string]string) (string, bool) {
	if name, ok := available[strings.ToLower(want)]; ok {
		return name, true
	}
	for _, alias := range labelAliases[strings.ToLower(want)] {
		if name, ok := available[strings.ToLower(alias)]; ok {
			return name, true
		}
	}
	if c.createLabel(want) {
		available[strings.ToLower(want)] = want
		return want, true
	}
	return "", false
}

// createLabel creates a missing label, treating "already exists" as
// success since another run may have raced us to it.
func (c *Client) createLabel(name string) bool {
	out, err := c.gh.Run(c.repoDir, "api", "--method", "POST",
		fmt.Sprintf("repos/%s/labels", c.slug),
		"-f", "name="+name,
		"-f", "color="+labelColor(name),
		"-f", fmt.Sprintf("description=issueforge label: %s", name))
	if err == nil {
		return true
	}
	return strings.Contains(strings.ToLower(out+err.Error()), "already_exists")
}
