package orchestrator

import (
	"regexp"
	"strings"
)

// Highlight extraction pulls a few informative lines out of the large
// markdown artifacts (plan, review, validation report) so the commit
// appendix carries the substance of the run without the bulk.

const (
	highlightMaxChars = 240
	highlightMaxItems = 3
)

var markdownPrefixRes = []*regexp.Regexp{
	regexp.MustCompile(`^\s{0,3}#{1,6}\s*`),
	regexp.MustCompile(`^\s*[-*+]\s+`),
	regexp.MustCompile(`^\s*\d+[.)]\s+`),
}

var genericHighlightTokens = map[string]bool{
	"plan":     true,
	"review":   true,
	"summary":  true,
	"overview": true,
	"scope":    true,
	"notes":    true,
	"todo":     true,
}

var shortTokenRe = regexp.MustCompile(`^[a-z0-9]{1,2}$`)

func stripMarkdownPrefix(line string) string {
	for _, re := range markdownPrefixRes {
		line = re.ReplaceAllString(line, "")
	}
	return strings.TrimSpace(line)
}

// noninformativeHighlight drops lines that would tell a reader nothing:
// blank lines, bare section labels, and one-or-two character fragments.
func noninformativeHighlight(line string) bool {
	l := strings.ToLower(strings.TrimSpace(line))
	l = strings.Trim(l, ":.")
	if l == "" {
		return true
	}
	if genericHighlightTokens[l] {
		return true
	}
	return shortTokenRe.MatchString(l)
}

func clipHighlight(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max]) + "..."
}

// extractHighlights returns up to maxItems informative lines from a
// markdown document. Fenced code blocks are skipped, list and heading
// markers are stripped, and each item is clipped to maxChars. When no
// line survives the filter the clipped raw text is returned instead,
// so a caller always gets something to show.
func extractHighlights(text string, maxItems, maxChars int) []string {
	if maxItems <= 0 {
		maxItems = highlightMaxItems
	}
	if maxChars <= 0 {
		maxChars = highlightMaxChars
	}

	var out []string
	inFence := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		item := stripMarkdownPrefix(line)
		if noninformativeHighlight(item) {
			continue
		}
		out = append(out, clipHighlight(item, maxChars))
		if len(out) >= maxItems {
			break
		}
	}
	if len(out) == 0 {
		raw := strings.TrimSpace(text)
		if raw == "" {
			return nil
		}
		return []string{clipHighlight(raw, maxChars)}
	}
	return out
}

// firstHighlight is extractHighlights narrowed to the single best line.
func firstHighlight(text string) string {
	hs := extractHighlights(text, 1, highlightMaxChars)
	if len(hs) == 0 {
		return ""
	}
	return hs[0]
}
