package issue

import (
	"fmt"
	"strings"
)

// conventionalTypes are the commit types recognized when an issue
// title already follows the conventional format.
var conventionalTypes = []string{
	"feat", "fix", "docs", "refactor", "test", "chore", "ci", "perf", "build", "style",
}

// labelTypeMap maps issue labels to conventional commit types.
var labelTypeMap = map[string]string{
	"bug":           "fix",
	"bugfix":        "fix",
	"enhancement":   "feat",
	"feature":       "feat",
	"documentation": "docs",
	"docs":          "docs",
	"refactor":      "refactor",
	"test":          "test",
	"tests":         "test",
	"ci":            "ci",
	"chore":         "chore",
	"performance":   "perf",
	"dependencies":  "chore",
}

// keywordTypeMap maps title keywords to conventional commit types,
// checked in order so the more specific words win.
var keywordTypes = []struct {
	keyword string
	typ     string
}{
	{"fix", "fix"},
	{"bug", "fix"},
	{"broken", "fix"},
	{"crash", "fix"},
	{"error", "fix"},
	{"document", "docs"},
	{"readme", "docs"},
	{"refactor", "refactor"},
	{"cleanup", "refactor"},
	{"clean up", "refactor"},
	{"test", "test"},
	{"coverage", "test"},
	{"upgrade", "chore"},
	{"bump", "chore"},
	{"dependency", "chore"},
	{"ci", "ci"},
	{"pipeline", "ci"},
	{"performance", "perf"},
	{"slow", "perf"},
	{"speed", "perf"},
}

// DefaultPRTitle infers a conventional pull request title from the
// issue. A title already in conventional form is returned unchanged;
// otherwise the type comes from labels first, title keywords second,
// and falls back to feat.
func DefaultPRTitle(iss *Issue) string {
	title := strings.TrimSpace(iss.Title)
	if title == "" {
		return fmt.Sprintf("feat: resolve issue #%d", iss.Number)
	}

	lower := strings.ToLower(title)
	for _, typ := range conventionalTypes {
		if strings.HasPrefix(lower, typ+":") || strings.HasPrefix(lower, typ+"(") {
			return title
		}
	}

	typ := ""
	for _, label := range iss.Labels {
		if t, ok := labelTypeMap[strings.ToLower(label)]; ok {
			typ = t
			break
		}
	}
	if typ == "" {
		for _, k := range keywordTypes {
			if strings.Contains(lower, k.keyword) {
				typ = k.typ
				break
			}
		}
	}
	if typ == "" {
		typ = "feat"
	}
	return fmt.Sprintf("%s: %s", typ, title)
}
