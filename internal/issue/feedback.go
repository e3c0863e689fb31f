package issue

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Digest is the condensed external feedback fed into a rework run.
type Digest struct {
	Markdown  string
	ItemCount int
	PRURL     string
	HeadRef   string
	BaseRef   string
	Reason    string
}

const maxItemChars = 500

// Bot authors whose comments are noise for rework purposes. The
// orchestrator's own acknowledgement comments match the command filter
// instead.
var botSuffixes = []string{"[bot]", "-bot"}

var triggerReasonRe = regexp.MustCompile(`(?im)^Triggered by:\s*(.+)$`)

// TriggerReason extracts the "Triggered by:" line from a comment or
// event payload, if present.
func TriggerReason(text string) string {
	m := triggerReasonRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// IsCommentTrigger reports whether a trigger reason means the run was
// started from a PR conversation, in which case the orchestrator
// acknowledges the feedback on the PR after pushing.
func IsCommentTrigger(reason string) bool {
	r := strings.ToLower(strings.TrimSpace(reason))
	for _, prefix := range []string{"pr-comment", "review-comment", "comment-command"} {
		if strings.HasPrefix(r, prefix) {
			return true
		}
	}
	return false
}

func isBotAuthor(login string) bool {
	l := strings.ToLower(login)
	for _, s := range botSuffixes {
		if strings.HasSuffix(l, s) {
			return true
		}
	}
	return false
}

func isCommandComment(body string) bool {
	return strings.HasPrefix(strings.TrimSpace(body), "/agent")
}

func clipItem(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxItemChars {
		return s
	}
	return s[:maxItemChars] + "\n... (truncated)"
}

type feedbackItem struct {
	kind   string
	author string
	state  string
	path   string
	body   string
}

type ghPRInfo struct {
	URL  string `json:"html_url"`
	Head struct {
		Ref string `json:"ref"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
}

type ghReview struct {
	User  struct{ Login string } `json:"user"`
	State string                 `json:"state"`
	Body  string                 `json:"body"`
}

type ghComment struct {
	User struct{ Login string } `json:"user"`
	Path string                 `json:"path"`
	Body string                 `json:"body"`
}

// CollectPRFeedback gathers reviews, review comments, and conversation
// comments from an open PR and renders them as a markdown digest.
// Bot comments and /agent command comments are dropped; each surviving
// item is clipped so one long review cannot crowd out the rest.
func CollectPRFeedback(gh CmdRunner, repoDir, slug string, prNumber, maxItems int) (*Digest, error) {
	if maxItems <= 0 {
		maxItems = 20
	}

	var info ghPRInfo
	out, err := gh.Run(repoDir, "api", fmt.Sprintf("repos/%s/pulls/%d", slug, prNumber))
	if err != nil {
		return nil, fmt.Errorf("fetch PR #%d: %w", prNumber, err)
	}
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		return nil, fmt.Errorf("parse PR #%d: %w", prNumber, err)
	}

	var items []feedbackItem

	var reviews []ghReview
	if out, err := gh.Run(repoDir, "api", fmt.Sprintf("repos/%s/pulls/%d/reviews", slug, prNumber)); err == nil {
		json.Unmarshal([]byte(out), &reviews)
	}
	for _, r := range reviews {
		if isBotAuthor(r.User.Login) || strings.TrimSpace(r.Body) == "" {
			continue
		}
		items = append(items, feedbackItem{kind: "review", author: r.User.Login, state: r.State, body: r.Body})
	}

	var reviewComments []ghComment
	if out, err := gh.Run(repoDir, "api", fmt.Sprintf("repos/%s/pulls/%d/comments", slug, prNumber)); err == nil {
		json.Unmarshal([]byte(out), &reviewComments)
	}
	for _, c := range reviewComments {
		if isBotAuthor(c.User.Login) || isCommandComment(c.Body) {
			continue
		}
		items = append(items, feedbackItem{kind: "review-comment", author: c.User.Login, path: c.Path, body: c.Body})
	}

	var comments []ghComment
	if out, err := gh.Run(repoDir, "api", fmt.Sprintf("repos/%s/issues/%d/comments", slug, prNumber)); err == nil {
		json.Unmarshal([]byte(out), &comments)
	}
	for _, c := range comments {
		if isBotAuthor(c.User.Login) || isCommandComment(c.Body) {
			continue
		}
		items = append(items, feedbackItem{kind: "comment", author: c.User.Login, body: c.Body})
	}

	if len(items) > maxItems {
		items = items[len(items)-maxItems:]
	}

	d := &Digest{
		PRURL:     info.URL,
		HeadRef:   info.Head.Ref,
		BaseRef:   info.Base.Ref,
		ItemCount: len(items),
	}
	if len(items) == 0 {
		return d, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Feedback from PR #%d (%s):\n\n", prNumber, info.URL)
	for _, it := range items {
		header := fmt.Sprintf("%s by @%s", it.kind, it.author)
		if it.state != "" {
			header += " (" + strings.ToLower(it.state) + ")"
		}
		if it.path != "" {
			header += " on `" + it.path + "`"
		}
		fmt.Fprintf(&b, "### %s\n%s\n\n", header, clipItem(it.body))
	}
	d.Markdown = strings.TrimSpace(b.String()) + "\n"
	return d, nil
}

// MergeDigests combines manually supplied feedback with a collected PR
// digest: the text leads the markdown, the PR digest supplies the
// branch refs and URL, and a trigger reason in the text wins over one
// derived from the PR.
func MergeDigests(text, pr *Digest) *Digest {
	if text == nil {
		return pr
	}
	if pr == nil {
		return text
	}
	merged := &Digest{
		ItemCount: text.ItemCount + pr.ItemCount,
		PRURL:     pr.PRURL,
		HeadRef:   pr.HeadRef,
		BaseRef:   pr.BaseRef,
		Reason:    text.Reason,
	}
	if merged.Reason == "" {
		merged.Reason = pr.Reason
	}
	var parts []string
	for _, m := range []string{text.Markdown, pr.Markdown} {
		if strings.TrimSpace(m) != "" {
			parts = append(parts, strings.TrimSpace(m))
		}
	}
	if len(parts) > 0 {
		merged.Markdown = strings.Join(parts, "\n\n") + "\n"
	}
	return merged
}

// DigestFromText wraps manually supplied feedback in a Digest so the
// rest of the pipeline treats CLI-provided feedback and PR feedback
// the same way.
func DigestFromText(text string) *Digest {
	text = strings.TrimSpace(text)
	if text == "" {
		return &Digest{}
	}
	return &Digest{Markdown: text + "\n", ItemCount: 1, Reason: TriggerReason(text)}
}
